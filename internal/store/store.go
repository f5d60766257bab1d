package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/rolodex/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketCollections = []byte("collections")
	bucketRoles       = []byte("roles")
	bucketOperations  = []byte("operations")

	allBuckets = [][]byte{bucketCollections, bucketRoles, bucketOperations}
)

// journalLimit caps the operation journal; older entries are pruned on append
const journalLimit = 200

// operationRecord is the persisted form of a terminal bulk operation
type operationRecord struct {
	ID           string                 `json:"id"`
	Kind         domain.OperationKind   `json:"kind"`
	CollectionID string                 `json:"collection_id"`
	Status       domain.OperationStatus `json:"status"`
	Total        int                    `json:"total"`
	Processed    int                    `json:"processed"`
	Errors       []string               `json:"errors,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

// CacheStore implements domain.Store using BoltDB.
type CacheStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache and journal

	// In-memory cache for hot-path reads (promoted on access)
	cache map[string][]byte

	// journal holds operations in memory-only mode, oldest first
	journal []operationRecord
}

var _ domain.Store = (*CacheStore)(nil)

// NewCacheStore opens the cache for serverURL under baseCacheDir.
// An empty baseCacheDir keeps everything in memory.
func NewCacheStore(baseCacheDir, serverURL string) (*CacheStore, error) {
	if baseCacheDir == "" {
		return &CacheStore{cache: make(map[string][]byte)}, nil
	}

	dir := baseCacheDir
	if serverURL != "" {
		dir = filepath.Join(baseCacheDir, hashServerURL(serverURL))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "rolodex.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &CacheStore{db: db, cache: make(map[string][]byte)}, nil
}

// hashServerURL keeps caches for different backends apart
func hashServerURL(serverURL string) string {
	normalized := strings.TrimRight(strings.ToLower(serverURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

func (s *CacheStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic helpers ===

func (s *CacheStore) get(bucket []byte, key string, dest any) bool {
	cacheKey := string(bucket) + ":" + key

	s.mu.RLock()
	if data, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return json.Unmarshal(data, dest) == nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return false
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})

	if data == nil {
		return false
	}

	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	return json.Unmarshal(data, dest) == nil
}

func (s *CacheStore) set(bucket []byte, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	cacheKey := string(bucket) + ":" + key

	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil // Memory-only mode
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *CacheStore) delete(bucket []byte, key string) {
	s.mu.Lock()
	delete(s.cache, string(bucket)+":"+key)
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucket); b != nil {
			b.Delete([]byte(key))
		}
		return nil
	})
}

// === Collections ===

func (s *CacheStore) GetCollections() ([]domain.Collection, bool) {
	var colls []domain.Collection
	ok := s.get(bucketCollections, "list", &colls)
	return colls, ok
}

func (s *CacheStore) SaveCollections(collections []domain.Collection) error {
	return s.set(bucketCollections, "list", collections)
}

func (s *CacheStore) InvalidateCollections() {
	s.delete(bucketCollections, "list")
}

// === Roles ===

// GetRoles returns the cached role table. Roles are keyed by their name
// ("liked", "ignored", "default") so the cache survives enum reordering.
func (s *CacheStore) GetRoles() (map[domain.CollectionRole]domain.CollectionID, bool) {
	var byName map[string]string
	if !s.get(bucketRoles, "table", &byName) {
		return nil, false
	}

	roles := make(map[domain.CollectionRole]domain.CollectionID, len(byName))
	for _, role := range []domain.CollectionRole{domain.RoleDefault, domain.RoleLiked, domain.RoleIgnored} {
		raw, ok := byName[role.String()]
		if !ok {
			continue
		}
		id, err := domain.ParseCollectionID(raw)
		if err != nil {
			return nil, false
		}
		roles[role] = id
	}
	return roles, true
}

func (s *CacheStore) SaveRoles(roles map[domain.CollectionRole]domain.CollectionID) error {
	byName := make(map[string]string, len(roles))
	for role, id := range roles {
		byName[role.String()] = id.String()
	}
	return s.set(bucketRoles, "table", byName)
}

// === Operation journal ===

func (s *CacheStore) AppendOperation(op domain.BulkOperation) error {
	rec := toRecord(op)

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.journal = append(s.journal, rec)
		if over := len(s.journal) - journalLimit; over > 0 {
			s.journal = s.journal[over:]
		}
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOperations)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(sequenceKey(seq), data); err != nil {
			return err
		}

		// Prune oldest entries beyond the limit
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for i := 0; i < len(keys)-journalLimit; i++ {
			if err := b.Delete(keys[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *CacheStore) RecentOperations(limit int) ([]domain.BulkOperation, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var ops []domain.BulkOperation
		for i := len(s.journal) - 1; i >= 0 && (limit <= 0 || len(ops) < limit); i-- {
			ops = append(ops, fromRecord(s.journal[i]))
		}
		return ops, nil
	}

	var ops []domain.BulkOperation
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOperations).Cursor()
		for k, v := c.Last(); k != nil && (limit <= 0 || len(ops) < limit); k, v = c.Prev() {
			var rec operationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode operation %x: %w", k, err)
			}
			ops = append(ops, fromRecord(rec))
		}
		return nil
	})
	return ops, err
}

// sequenceKey encodes seq big-endian so cursor order is append order
func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func toRecord(op domain.BulkOperation) operationRecord {
	c := op.Clone()
	return operationRecord{
		ID:           c.ID,
		Kind:         c.Kind,
		CollectionID: c.CollectionID.String(),
		Status:       c.Status,
		Total:        c.Total,
		Processed:    c.Processed,
		Errors:       c.Errors,
		StartedAt:    c.StartedAt,
		CompletedAt:  c.CompletedAt,
	}
}

func fromRecord(rec operationRecord) domain.BulkOperation {
	op := domain.BulkOperation{
		ID:          rec.ID,
		Kind:        rec.Kind,
		Status:      rec.Status,
		Total:       rec.Total,
		Processed:   rec.Processed,
		Errors:      rec.Errors,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
	}
	if id, err := domain.ParseCollectionID(rec.CollectionID); err == nil {
		op.CollectionID = id
	}
	return op
}

// === Invalidation ===

func (s *CacheStore) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string][]byte)
	s.journal = nil
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			b := tx.Bucket(bucket)
			if b == nil {
				continue
			}
			var keys [][]byte
			c := b.Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				keys = append(keys, append([]byte(nil), k...))
			}
			for _, k := range keys {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
