package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/rolodex/internal/domain"
)

var (
	likedID   = uuid.MustParse("a1a1a1a1-0000-4000-8000-000000000001")
	ignoredID = uuid.MustParse("b2b2b2b2-0000-4000-8000-000000000002")
	myListID  = uuid.MustParse("c3c3c3c3-0000-4000-8000-000000000003")
)

func openStores(t *testing.T) map[string]*CacheStore {
	t.Helper()
	disk, err := NewCacheStore(t.TempDir(), "http://localhost:8000")
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })

	mem, err := NewCacheStore("", "")
	require.NoError(t, err)

	return map[string]*CacheStore{"bolt": disk, "memory": mem}
}

func operation(n int) domain.BulkOperation {
	done := time.Date(2026, 10, 15, 12, n, 0, 0, time.UTC)
	return domain.BulkOperation{
		ID:           fmt.Sprintf("add_%s_%d", myListID, 1792065600+n),
		Kind:         domain.KindAdd,
		CollectionID: myListID,
		Status:       domain.OperationCompleted,
		Total:        10,
		Processed:    10,
		StartedAt:    done.Add(-time.Minute),
		CompletedAt:  &done,
	}
}

func TestCollectionsRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok := s.GetCollections()
			assert.False(t, ok)

			colls := []domain.Collection{{ID: myListID, Name: "My List", Count: 50000}}
			require.NoError(t, s.SaveCollections(colls))

			got, ok := s.GetCollections()
			require.True(t, ok)
			assert.Equal(t, colls, got)

			s.InvalidateCollections()
			_, ok = s.GetCollections()
			assert.False(t, ok)
		})
	}
}

func TestRolesRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			roles := map[domain.CollectionRole]domain.CollectionID{
				domain.RoleLiked:   likedID,
				domain.RoleIgnored: ignoredID,
			}
			require.NoError(t, s.SaveRoles(roles))

			got, ok := s.GetRoles()
			require.True(t, ok)
			assert.Equal(t, roles, got)
		})
	}
}

func TestJournalNewestFirst(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 1; i <= 3; i++ {
				require.NoError(t, s.AppendOperation(operation(i)))
			}

			ops, err := s.RecentOperations(2)
			require.NoError(t, err)
			require.Len(t, ops, 2)
			assert.Equal(t, operation(3), ops[0])
			assert.Equal(t, operation(2), ops[1])

			all, err := s.RecentOperations(0)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestJournalIsPruned(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < journalLimit+5; i++ {
				require.NoError(t, s.AppendOperation(operation(i%60)))
			}
			ops, err := s.RecentOperations(0)
			require.NoError(t, err)
			assert.Len(t, ops, journalLimit)
		})
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCacheStore(dir, "http://localhost:8000")
	require.NoError(t, err)
	require.NoError(t, s.SaveRoles(map[domain.CollectionRole]domain.CollectionID{domain.RoleLiked: likedID}))
	require.NoError(t, s.AppendOperation(operation(1)))
	require.NoError(t, s.Close())

	s, err = NewCacheStore(dir, "http://LOCALHOST:8000/")
	require.NoError(t, err)
	defer s.Close()

	roles, ok := s.GetRoles()
	require.True(t, ok)
	assert.Equal(t, likedID, roles[domain.RoleLiked])

	ops, err := s.RecentOperations(10)
	require.NoError(t, err)
	assert.Equal(t, []domain.BulkOperation{operation(1)}, ops)
}

func TestInvalidateAll(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SaveCollections([]domain.Collection{{ID: myListID}}))
			require.NoError(t, s.AppendOperation(operation(1)))

			s.InvalidateAll()

			_, ok := s.GetCollections()
			assert.False(t, ok)
			ops, err := s.RecentOperations(0)
			require.NoError(t, err)
			assert.Empty(t, ops)
		})
	}
}
