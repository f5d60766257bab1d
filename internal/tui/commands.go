package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/rolodex/internal/bulk"
	"github.com/mmcdole/rolodex/internal/collection"
	"github.com/mmcdole/rolodex/internal/domain"
	"github.com/mmcdole/rolodex/internal/status"
)

// Command factories for async operations

// LoadCollectionsCmd loads the collection list. refresh bypasses the cache.
func LoadCollectionsCmd(svc *collection.Service, refresh bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var (
			colls []domain.Collection
			err   error
		)
		if refresh {
			colls, err = svc.Refresh(ctx)
		} else {
			colls, err = svc.Collections(ctx)
		}
		if err != nil {
			return ErrMsg{Err: err, Context: "loading collections"}
		}
		return CollectionsLoadedMsg{Collections: colls}
	}
}

// LoadPageCmd loads one page of scope
func LoadPageCmd(svc *collection.Service, scope domain.Scope, offset, limit int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		page, err := svc.Page(ctx, scope, offset, limit)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading companies"}
		}
		return PageLoadedMsg{Scope: scope, Offset: offset, Page: page}
	}
}

// LoadScopeIDsCmd fetches every id in scope for select-all
func LoadScopeIDsCmd(repo domain.ScopeRepository, scope domain.Scope) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		ids, err := repo.AllIDsInScope(ctx, scope)
		if err != nil {
			return ErrMsg{Err: err, Context: "selecting all"}
		}
		return ScopeIDsLoadedMsg{Scope: scope, IDs: ids}
	}
}

// RunBulkCmd runs one coordinator request. Cancelling ctx detaches.
func RunBulkCmd(ctx context.Context, coord *bulk.Coordinator, req bulk.Request) tea.Cmd {
	return func() tea.Msg {
		result, err := coord.Run(ctx, req)
		return BulkFinishedMsg{Result: result, Err: err}
	}
}

// ClearStatusCmd runs the clear-status flow for ids
func ClearStatusCmd(ctx context.Context, coord *bulk.Coordinator, ids []domain.CompanyID) tea.Cmd {
	return func() tea.Msg {
		result, err := coord.ClearStatus(ctx, ids)
		return BulkFinishedMsg{Result: result, Err: err}
	}
}

// ToggleStatusCmd cycles one company's status
func ToggleStatusCmd(engine *status.Engine, id domain.CompanyID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s, err := engine.Toggle(ctx, id)
		return ToggleFinishedMsg{ID: id, Status: s, Err: err}
	}
}

// WaitForEngineMsgCmd delivers the next observer message
func WaitForEngineMsgCmd(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// ClearStatusBarCmd clears the status bar after a delay
func ClearStatusBarCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}
