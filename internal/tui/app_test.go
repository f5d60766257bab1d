package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/rolodex/internal/bulk"
	"github.com/mmcdole/rolodex/internal/collection"
	"github.com/mmcdole/rolodex/internal/domain"
	"github.com/mmcdole/rolodex/internal/selection"
	"github.com/mmcdole/rolodex/internal/status"
	"github.com/mmcdole/rolodex/internal/store"
)

var (
	myList = domain.Collection{ID: uuid.MustParse("c3c3c3c3-0000-4000-8000-000000000003"), Name: "My List", Count: 3}
	liked  = domain.Collection{ID: uuid.MustParse("a1a1a1a1-0000-4000-8000-000000000001"), Name: "Liked Companies List"}
)

type fakeBackend struct {
	page domain.CompanyPage
	ids  []domain.CompanyID
}

func (f *fakeBackend) GetCollections(context.Context) ([]domain.Collection, error) {
	return []domain.Collection{myList, liked}, nil
}

func (f *fakeBackend) GetCollectionPage(context.Context, domain.CollectionID, int, int) (domain.CompanyPage, error) {
	return f.page, nil
}

func (f *fakeBackend) SearchPage(context.Context, domain.Scope, int, int) (domain.CompanyPage, error) {
	return f.page, nil
}

func (f *fakeBackend) AllIDsInScope(context.Context, domain.Scope) ([]domain.CompanyID, error) {
	return f.ids, nil
}

func (f *fakeBackend) BulkAdd(context.Context, domain.CollectionID, []domain.CompanyID, domain.CollectionID) (domain.Receipt, error) {
	return domain.Receipt{}, nil
}

func (f *fakeBackend) BulkRemove(context.Context, domain.CollectionID, []domain.CompanyID) (domain.Receipt, error) {
	return domain.Receipt{}, nil
}

func (f *fakeBackend) GetMembership(_ context.Context, id domain.CompanyID) (domain.Membership, error) {
	return domain.Membership{CompanyID: id}, nil
}

func keyPress(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(s)}
	}
	if s == "esc" {
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

// newTestModel opens My List with one page of three companies
func newTestModel(t *testing.T) (Model, *selection.Store) {
	t.Helper()

	be := &fakeBackend{
		page: domain.CompanyPage{
			Collection: myList,
			Total:      3,
			Companies: []domain.Company{
				{ID: 1, Name: "Acme"},
				{ID: 2, Name: "Globex"},
				{ID: 3, Name: "Initech"},
			},
		},
		ids: []domain.CompanyID{1, 2, 3},
	}
	cache, err := store.NewCacheStore("", "")
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	svc := collection.NewService(be, cache, collection.RoleNames{Liked: liked.Name, Default: myList.Name}, nil)
	_, err = svc.LoadRoles(context.Background())
	require.NoError(t, err)

	sel := selection.NewStore(nil)
	m := NewModel(Deps{
		Collections: svc,
		Scopes:      be,
		Coordinator: bulk.NewCoordinator(bulk.Deps{Selection: sel, Roles: svc.Roles()}),
		Status:      status.NewEngine(be, svc.Roles(), nil, nil),
		Selection:   sel,
		Events:      make(chan tea.Msg),
		PageSize:    25,
	})

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
	m, cmd := update(t, m, CollectionsLoadedMsg{Collections: []domain.Collection{liked, myList}})
	require.NotNil(t, cmd)
	assert.Equal(t, myList.ID, m.Active.ID)

	m, _ = update(t, m, cmd())
	require.Equal(t, 3, m.Table.Len())
	return m, sel
}

func TestModelOpensDefaultCollection(t *testing.T) {
	m, _ := newTestModel(t)

	assert.Equal(t, 3, m.Total)
	assert.False(t, m.Loading)
	assert.Contains(t, m.View(), "Acme")
	assert.Contains(t, m.View(), "1-3 of 3")
}

func TestModelDropsStalePage(t *testing.T) {
	m, _ := newTestModel(t)

	m, _ = update(t, m, PageLoadedMsg{
		Scope:  m.Scope,
		Offset: 25,
		Page:   domain.CompanyPage{Total: 99, Companies: []domain.Company{{ID: 9}}},
	})
	assert.Equal(t, 3, m.Total)
	assert.Equal(t, 3, m.Table.Len())
}

func TestModelSelectionKeys(t *testing.T) {
	m, sel := newTestModel(t)

	m, _ = update(t, m, keyPress(" "))
	assert.True(t, sel.IsSelected(1))

	// move to the third row and select the range from the anchor
	m, _ = update(t, m, keyPress("j"))
	m, _ = update(t, m, keyPress("j"))
	m, _ = update(t, m, keyPress("v"))
	assert.Equal(t, []domain.CompanyID{1, 2, 3}, sel.IDs())

	m, _ = update(t, m, keyPress("esc"))
	assert.Zero(t, sel.Count())

	m, cmd := update(t, m, keyPress("a"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.True(t, sel.AllSelected())
	assert.Equal(t, 3, sel.Count())
	assert.Contains(t, m.View(), "all 3 selected")
}

func TestModelBulkKeysNeedSelection(t *testing.T) {
	m, _ := newTestModel(t)

	m, _ = update(t, m, keyPress("b"))
	assert.False(t, m.Picker.IsVisible())
	assert.Equal(t, "Nothing selected", m.StatusMsg)

	m, _ = update(t, m, keyPress(" "))
	m, _ = update(t, m, keyPress("b"))
	assert.True(t, m.Picker.IsVisible())
	assert.Contains(t, m.View(), "Add 1 to...")

	m, _ = update(t, m, keyPress("esc"))
	assert.False(t, m.Picker.IsVisible())
}

func TestModelNonTerminalRunErrorGoesToStatusBar(t *testing.T) {
	m, _ := newTestModel(t)
	m.Progress.Show("Adding")

	m, _ = update(t, m, BulkFinishedMsg{Err: bulk.ErrBusy})
	assert.False(t, m.Progress.IsVisible())
	assert.True(t, m.StatusIsErr)
	assert.Equal(t, bulk.ErrBusy.Error(), m.StatusMsg)
}

func TestModelTerminalResultWithModalClosed(t *testing.T) {
	m, _ := newTestModel(t)

	m, _ = update(t, m, OperationTerminalMsg{Result: domain.OperationResult{
		Outcome:   domain.OutcomeSucceeded,
		Operation: domain.BulkOperation{Total: 12, Processed: 12},
	}})
	assert.Equal(t, "Done: 12 companies", m.StatusMsg)
}

func TestModelSearchNarrowsScope(t *testing.T) {
	m, sel := newTestModel(t)
	m, _ = update(t, m, keyPress(" "))
	require.Equal(t, 1, sel.Count())

	m, _ = update(t, m, keyPress("/"))
	require.True(t, m.Search.IsVisible())
	for _, r := range "acme" {
		m, _ = update(t, m, keyPress(string(r)))
	}
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	assert.False(t, m.Search.IsVisible())
	assert.Equal(t, domain.Scope{CollectionID: myList.ID, Query: "acme"}, m.Scope)
	assert.Zero(t, sel.Count(), "scope change drops the selection")

	// esc with nothing selected leaves the search
	m, _ = update(t, m, keyPress("esc"))
	assert.False(t, m.Scope.IsFiltered())
}
