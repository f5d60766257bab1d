package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/rolodex/internal/tui/styles"
)

// View renders the application
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}

	if m.ShowHelp {
		return m.renderHelp()
	}

	view := lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.renderSelectionLine(),
		m.Table.View(),
		m.renderFooter(),
	)

	// Overlay modals, topmost last
	for _, modal := range []struct {
		visible bool
		view    func() string
	}{
		{m.Search.IsVisible(), m.Search.View},
		{m.Picker.IsVisible(), m.Picker.View},
		{m.Progress.IsVisible(), m.Progress.View},
		{m.Conflict.IsVisible(), m.Conflict.View},
	} {
		if modal.visible {
			view = lipgloss.Place(m.Width, m.Height,
				lipgloss.Center, lipgloss.Center,
				modal.view())
		}
	}

	return view
}

// renderHeader shows the active collection and any search query
func (m Model) renderHeader() string {
	title := styles.TitleStyle.Render("rolodex")
	if m.Active.Name == "" {
		return title
	}

	parts := []string{title, styles.AccentStyle.Render(m.Active.Name)}
	if role, ok := m.deps.Collections.Roles().RoleOf(m.Active.ID); ok {
		parts = append(parts, styles.DimBadgeStyle.Render(role.String()))
	}
	if m.Scope.IsFiltered() {
		parts = append(parts, styles.SubtitleStyle.Render("search: "+styles.Truncate(m.Scope.Query, max(m.Width/3, 8))))
	}
	return strings.Join(parts, " ")
}

// renderSelectionLine shows the page window and the selection count
func (m Model) renderSelectionLine() string {
	window := "0 companies"
	if m.Total > 0 {
		last := min(m.Offset+m.Table.Len(), m.Total)
		window = fmt.Sprintf("%d-%d of %d", m.Offset+1, last, m.Total)
	}

	sel := m.deps.Selection
	var picked string
	switch n := sel.Count(); {
	case n == 0:
	case sel.AllSelected():
		picked = styles.BadgeStyle.Render(fmt.Sprintf("all %d selected", n))
	default:
		picked = styles.BadgeStyle.Render(fmt.Sprintf("%d selected", n))
	}

	left := styles.DimStyle.Render(window)
	gap := m.Width - lipgloss.Width(left) - lipgloss.Width(picked)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + picked
}

// renderFooter renders a single-line minimal footer
func (m Model) renderFooter() string {
	var left string
	switch {
	case m.Loading:
		left = styles.DimStyle.Render("Loading...")
	case m.StatusMsg != "":
		if m.StatusIsErr {
			left = styles.ErrorStyle.Render(m.StatusMsg)
		} else {
			left = styles.DimStyle.Render(m.StatusMsg)
		}
	case m.busy():
		left = styles.WarningStyle.Render("Operation running in background")
	}

	var center string
	if m.deps.Selection.Count() > 0 {
		center = styles.AccentStyle.Render("b") + styles.DimStyle.Render(" add  ") +
			styles.AccentStyle.Render("d") + styles.DimStyle.Render(" remove  ") +
			styles.AccentStyle.Render("c") + styles.DimStyle.Render(" clear status")
	}

	right := styles.AccentStyle.Render("?") + styles.DimStyle.Render(" help")

	leftWidth := lipgloss.Width(left)
	centerWidth := lipgloss.Width(center)
	rightWidth := lipgloss.Width(right)

	if leftWidth+centerWidth+rightWidth >= m.Width {
		gap := max(m.Width-leftWidth-rightWidth, 0)
		return left + strings.Repeat(" ", gap) + right
	}

	available := m.Width - leftWidth - rightWidth
	leftPad := (available - centerWidth) / 2
	rightPad := available - centerWidth - leftPad

	return left + strings.Repeat(" ", leftPad) + center + strings.Repeat(" ", rightPad) + right
}

// renderHelp renders the help screen from the key map
func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(styles.ModalTitleStyle.Render("Keys"))
	b.WriteString("\n")
	for _, binding := range Keys.helpBindings() {
		h := binding.Help()
		b.WriteString(styles.HelpKeyStyle.Render(styles.Pad(h.Key, 10)))
		b.WriteString(styles.HelpDescStyle.Render(h.Desc))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styles.DimStyle.Render("Press any key to return..."))

	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(b.String()))
}
