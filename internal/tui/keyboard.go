package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/mmcdole/rolodex/internal/bulk"
	"github.com/mmcdole/rolodex/internal/domain"
	"github.com/mmcdole/rolodex/internal/tui/components"
)

// handleKeyMsg handles keyboard input
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c"))) {
		m.detach()
		return m, tea.Quit
	}

	if m.ShowHelp {
		m.ShowHelp = false
		return m, nil
	}

	// Route to active modal if any
	if handled, newModel, cmd := m.routeToModal(msg); handled {
		return newModel, cmd
	}

	sel := m.deps.Selection

	switch {
	case key.Matches(msg, Keys.Quit):
		m.detach()
		return m, tea.Quit

	case key.Matches(msg, Keys.Help):
		m.ShowHelp = true
		return m, nil

	case key.Matches(msg, Keys.Escape):
		if m.Scope.IsFiltered() && sel.Count() == 0 {
			return m, m.setScope(domain.Scope{CollectionID: m.Scope.CollectionID})
		}
		sel.Clear()
		return m, nil

	case key.Matches(msg, Keys.Select):
		if c, ok := m.Table.Current(); ok {
			sel.Toggle(c.ID)
		}
		return m, nil

	case key.Matches(msg, Keys.Range):
		c, ok := m.Table.Current()
		if !ok {
			return m, nil
		}
		anchor, ok := sel.Anchor()
		if !ok {
			sel.Toggle(c.ID)
			return m, nil
		}
		if !sel.SelectRange(m.Table.IDs(), anchor, c.ID) {
			return m, m.setStatus("Range start is not on this page", false)
		}
		return m, nil

	case key.Matches(msg, Keys.SelectAll):
		if m.Scope.CollectionID == m.Active.ID && m.Active.ID != uuid.Nil {
			m.Loading = true
			return m, LoadScopeIDsCmd(m.deps.Scopes, m.Scope)
		}
		return m, nil

	case key.Matches(msg, Keys.ToggleStatus):
		if c, ok := m.Table.Current(); ok {
			return m, ToggleStatusCmd(m.deps.Status, c.ID)
		}
		return m, nil

	case key.Matches(msg, Keys.BulkAdd):
		if cmd, ok := m.checkBulk(); !ok {
			return m, cmd
		}
		m.Picker.SetSize(m.Width, m.Height)
		m.Picker.Show(components.PickBulkTarget,
			fmt.Sprintf("Add %d to...", sel.Count()), m.Collections, m.Active.ID)
		return m, nil

	case key.Matches(msg, Keys.BulkRemove):
		if cmd, ok := m.checkBulk(); !ok {
			return m, cmd
		}
		req := bulk.Request{
			Kind:       domain.KindRemove,
			Collection: m.Active.ID,
			IDs:        sel.IDs(),
		}
		title := fmt.Sprintf("Removing %d from %s", len(req.IDs), m.Active.Name)
		return m, m.startRun(title, m.Active.Name, func(ctx context.Context) tea.Cmd {
			return RunBulkCmd(ctx, m.deps.Coordinator, req)
		})

	case key.Matches(msg, Keys.ClearStatus):
		if cmd, ok := m.checkBulk(); !ok {
			return m, cmd
		}
		ids := sel.IDs()
		title := fmt.Sprintf("Clearing status of %d", len(ids))
		return m, m.startRun(title, "", func(ctx context.Context) tea.Cmd {
			return ClearStatusCmd(ctx, m.deps.Coordinator, ids)
		})

	case key.Matches(msg, Keys.Collections):
		m.Picker.SetSize(m.Width, m.Height)
		m.Picker.Show(components.PickToOpen, "Open collection", m.Collections, uuid.Nil)
		return m, nil

	case key.Matches(msg, Keys.Search):
		m.Search.Show(m.Active.Name, m.Scope.Query)
		return m, nil

	case key.Matches(msg, Keys.NextPage):
		if m.Offset+m.deps.PageSize < m.Total {
			m.Offset += m.deps.PageSize
			return m, m.loadPage()
		}
		return m, nil

	case key.Matches(msg, Keys.PrevPage):
		if m.Offset > 0 {
			m.Offset = max(0, m.Offset-m.deps.PageSize)
			return m, m.loadPage()
		}
		return m, nil

	case key.Matches(msg, Keys.Refresh):
		return m, tea.Batch(
			LoadCollectionsCmd(m.deps.Collections, true),
			m.loadPage(),
		)
	}

	var cmd tea.Cmd
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

// routeToModal sends the key to the topmost visible modal
func (m Model) routeToModal(msg tea.KeyMsg) (bool, tea.Model, tea.Cmd) {
	if m.Conflict.IsVisible() {
		m.Conflict, _ = m.Conflict.Update(msg)
		return true, m, nil
	}

	if m.Progress.IsVisible() {
		var (
			cmd       tea.Cmd
			dismissed bool
		)
		finished := m.Progress.Finished()
		m.Progress, cmd, dismissed = m.Progress.Update(msg)
		if dismissed && !finished {
			// the run keeps going on the server; its result lands in the status bar
			m.detach()
		}
		return true, m, cmd
	}

	if m.Picker.IsVisible() {
		var (
			cmd    tea.Cmd
			chosen bool
		)
		m.Picker, cmd, chosen = m.Picker.Update(msg)
		if !chosen {
			return true, m, cmd
		}
		c, ok := m.Picker.Selected()
		m.Picker.Hide()
		if !ok {
			return true, m, nil
		}
		switch m.Picker.Purpose() {
		case components.PickToOpen:
			return true, m, m.openCollection(c)
		case components.PickBulkTarget:
			req := bulk.Request{
				Kind:       domain.KindAdd,
				Collection: c.ID,
				IDs:        m.deps.Selection.IDs(),
				Source:     m.Active.ID,
			}
			title := fmt.Sprintf("Adding %d to %s", len(req.IDs), c.Name)
			return true, m, m.startRun(title, c.Name, func(ctx context.Context) tea.Cmd {
				return RunBulkCmd(ctx, m.deps.Coordinator, req)
			})
		}
		return true, m, nil
	}

	if m.Search.IsVisible() {
		var (
			cmd       tea.Cmd
			submitted bool
		)
		m.Search, cmd, submitted = m.Search.Update(msg)
		if submitted {
			return true, m, m.setScope(domain.Scope{
				CollectionID: m.Active.ID,
				Query:        m.Search.Query(),
			})
		}
		return true, m, cmd
	}

	return false, m, nil
}

// checkBulk gates the keys that start a coordinator run
func (m *Model) checkBulk() (tea.Cmd, bool) {
	switch {
	case m.busy():
		return m.setStatus(bulk.ErrBusy.Error(), true), false
	case m.deps.Selection.Count() == 0:
		return m.setStatus("Nothing selected", false), false
	}
	return nil, true
}
