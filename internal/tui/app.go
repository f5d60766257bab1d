package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/mmcdole/rolodex/internal/bulk"
	"github.com/mmcdole/rolodex/internal/collection"
	"github.com/mmcdole/rolodex/internal/domain"
	"github.com/mmcdole/rolodex/internal/selection"
	"github.com/mmcdole/rolodex/internal/status"
	"github.com/mmcdole/rolodex/internal/tui/components"
)

// Vertical chrome: header, selection line, footer
const ChromeHeight = 3

// Deps are the engine pieces the front-end drives
type Deps struct {
	Collections  *collection.Service
	Scopes       domain.ScopeRepository
	Coordinator  *bulk.Coordinator
	Status       *status.Engine
	Selection    *selection.Store
	Events       <-chan tea.Msg
	PageSize     int
	ErrorPreview int
	Logger       *slog.Logger
}

// bulkRun is the coordinator run started from this model, if any
type bulkRun struct {
	cancel context.CancelFunc
	target string
}

// Model is the main Bubble Tea model for the application
type Model struct {
	Ready bool
	deps  Deps

	// UI Components
	Table    components.CompanyTable
	Picker   components.CollectionPicker
	Conflict components.ConflictModal
	Progress components.ProgressModal
	Search   components.SearchModal

	// Data
	Collections []domain.Collection
	Active      domain.Collection
	Scope       domain.Scope
	Offset      int
	Total       int

	// Dimensions
	Width  int
	Height int

	// UI state
	StatusMsg   string
	StatusIsErr bool
	Loading     bool
	ShowHelp    bool

	run *bulkRun
}

// NewModel creates a new application model
func NewModel(deps Deps) Model {
	if deps.PageSize <= 0 {
		deps.PageSize = 25
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return Model{
		deps:     deps,
		Table:    components.NewCompanyTable(Keys.tableKeyMap()),
		Picker:   components.NewCollectionPicker(),
		Conflict: components.NewConflictModal(),
		Progress: components.NewProgressModal(deps.ErrorPreview),
		Search:   components.NewSearchModal(),
	}
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		LoadCollectionsCmd(m.deps.Collections, false),
		WaitForEngineMsgCmd(m.deps.Events),
	)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.updateLayout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Progress, cmd, _ = m.Progress.Update(msg)
		return m, cmd

	case CollectionsLoadedMsg:
		m.Collections = msg.Collections
		if m.Active.ID == uuid.Nil {
			if c, ok := m.defaultCollection(); ok {
				return m, m.openCollection(c)
			}
			return m, nil
		}
		for _, c := range msg.Collections {
			if c.ID == m.Active.ID {
				m.Active = c
			}
		}
		return m, nil

	case PageLoadedMsg:
		if msg.Scope != m.Scope || msg.Offset != m.Offset {
			return m, nil // stale
		}
		m.Loading = false
		m.Total = msg.Page.Total
		m.deps.Selection.SetTotalInScope(msg.Page.Total)
		m.deps.Status.Seed(msg.Page.Companies)
		m.Table.SetCompanies(msg.Page.Companies, m.rowState())
		return m, nil

	case ScopeIDsLoadedMsg:
		m.Loading = false
		if msg.Scope != m.Scope {
			return m, nil
		}
		m.deps.Selection.SelectAll(msg.IDs)
		return m, nil

	// Engine signals: each one re-arms the wait
	case SelectionChangedMsg:
		m.Table.Refresh(m.rowState())
		return m, WaitForEngineMsgCmd(m.deps.Events)

	case StatusChangedMsg:
		m.Table.Refresh(m.rowState())
		return m, WaitForEngineMsgCmd(m.deps.Events)

	case OperationProgressMsg:
		m.Progress.SetUpdate(msg.Update)
		return m, WaitForEngineMsgCmd(m.deps.Events)

	case OperationTerminalMsg:
		cmds := []tea.Cmd{WaitForEngineMsgCmd(m.deps.Events)}
		if m.Progress.IsVisible() {
			m.Progress.SetResult(msg.Result)
		} else {
			cmds = append(cmds, m.reportResult(msg.Result))
		}
		return m, tea.Batch(cmds...)

	case ViewRefreshMsg:
		return m, tea.Batch(
			WaitForEngineMsgCmd(m.deps.Events),
			LoadCollectionsCmd(m.deps.Collections, true),
			m.loadPage(),
		)

	case ConflictPromptMsg:
		target := "collection"
		if m.run != nil {
			target = m.run.target
		}
		m.Conflict.Show(target, msg.Report, msg.Reply)
		return m, WaitForEngineMsgCmd(m.deps.Events)

	case BulkFinishedMsg:
		m.run = nil
		if msg.Err != nil && !isTerminalErr(msg.Err) {
			// rejected before any terminal signal (busy, validation)
			m.Progress.Hide()
			return m, m.setStatus(msg.Err.Error(), true)
		}
		return m, nil

	case ToggleFinishedMsg:
		if msg.Err != nil {
			if errors.Is(msg.Err, status.ErrToggleInFlight) {
				return m, m.setStatus("Still updating that company", false)
			}
			return m, m.setStatus("Status change failed: "+msg.Err.Error(), true)
		}
		return m, nil

	case ErrMsg:
		m.Loading = false
		m.deps.Logger.Error("command failed", "error", msg.Err, "context", msg.Context)
		return m, m.setStatus(msg.Error(), true)

	case StatusMsg:
		return m, m.setStatus(msg.Message, msg.IsError)

	case ClearStatusMsg:
		m.StatusMsg = ""
		m.StatusIsErr = false
		return m, nil
	}

	return m, nil
}

// rowState joins selection and displayed status for the table
type rowState struct {
	sel    *selection.Store
	status *status.Engine
}

func (r rowState) IsSelected(id domain.CompanyID) bool { return r.sel.IsSelected(id) }
func (r rowState) Displayed(id domain.CompanyID) domain.CompanyStatus {
	return r.status.Displayed(id)
}

func (m Model) rowState() rowState {
	return rowState{sel: m.deps.Selection, status: m.deps.Status}
}

// defaultCollection picks the default-role collection, else the first
func (m Model) defaultCollection() (domain.Collection, bool) {
	if id, ok := m.deps.Collections.Roles().Lookup(domain.RoleDefault); ok {
		for _, c := range m.Collections {
			if c.ID == id {
				return c, true
			}
		}
	}
	if len(m.Collections) == 0 {
		return domain.Collection{}, false
	}
	return m.Collections[0], true
}

// openCollection switches the active collection and drops any query
func (m *Model) openCollection(c domain.Collection) tea.Cmd {
	m.Active = c
	return m.setScope(domain.Scope{CollectionID: c.ID})
}

// setScope changes the scope; the selection never survives a scope change
func (m *Model) setScope(scope domain.Scope) tea.Cmd {
	m.Scope = scope
	m.Offset = 0
	m.Total = 0
	m.deps.Selection.ResetScope(0)
	return m.loadPage()
}

func (m *Model) loadPage() tea.Cmd {
	if m.Scope.CollectionID == uuid.Nil {
		return nil
	}
	m.Loading = true
	return LoadPageCmd(m.deps.Collections, m.Scope, m.Offset, m.deps.PageSize)
}

// startRun opens the progress modal and launches a coordinator run
func (m *Model) startRun(title, target string, run func(ctx context.Context) tea.Cmd) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.run = &bulkRun{cancel: cancel, target: target}
	m.Progress.SetSize(m.Width, m.Height)
	return tea.Batch(m.Progress.Show(title), run(ctx))
}

// detach stops tracking the active run; server work continues
func (m *Model) detach() {
	if m.run != nil {
		m.run.cancel()
	}
}

func (m Model) busy() bool {
	return m.run != nil || m.deps.Coordinator.Busy()
}

func (m *Model) setStatus(text string, isErr bool) tea.Cmd {
	m.StatusMsg = text
	m.StatusIsErr = isErr
	if isErr {
		return ClearStatusBarCmd(5 * time.Second)
	}
	return ClearStatusBarCmd(3 * time.Second)
}

// reportResult summarizes a result that arrived with the modal closed
func (m *Model) reportResult(r domain.OperationResult) tea.Cmd {
	op := r.Operation
	switch r.Outcome {
	case domain.OutcomeSucceeded:
		if r.Warning != nil {
			return m.setStatus(fmt.Sprintf("Done with %d errors (%d/%d)", len(op.Errors), op.Processed, op.Total), true)
		}
		return m.setStatus(fmt.Sprintf("Done: %d companies", op.Total), false)
	case domain.OutcomeDetached:
		return m.setStatus("Operation continues in the background", false)
	case domain.OutcomeCancelled:
		return m.setStatus("Cancelled", false)
	default:
		return m.setStatus(r.Err.Error(), true)
	}
}

// isTerminalErr reports errors that were already delivered as a terminal signal
func isTerminalErr(err error) bool {
	var opErr *domain.OperationError
	return errors.As(err, &opErr) || errors.Is(err, domain.ErrResolutionCancelled)
}

func (m *Model) updateLayout() {
	m.Table.SetSize(m.Width, m.Height-ChromeHeight)
	m.Picker.SetSize(m.Width, m.Height)
	m.Progress.SetSize(m.Width, m.Height)
}
