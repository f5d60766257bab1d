package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/rolodex/internal/conflict"
	"github.com/mmcdole/rolodex/internal/domain"
	"github.com/mmcdole/rolodex/internal/tui/styles"
)

const conflictPreview = 3

// ConflictModal asks how to handle companies already liked or ignored
type ConflictModal struct {
	visible bool
	target  string
	report  domain.ConflictReport
	reply   chan<- conflict.Action
	keys    ConflictKeyMap
}

// NewConflictModal creates a hidden modal
func NewConflictModal() ConflictModal {
	return ConflictModal{keys: DefaultConflictKeyMap()}
}

// Show displays report; the answer goes to reply exactly once
func (m *ConflictModal) Show(target string, report domain.ConflictReport, reply chan<- conflict.Action) {
	m.visible = true
	m.target = target
	m.report = report
	m.reply = reply
}

// IsVisible returns whether the modal is shown
func (m ConflictModal) IsVisible() bool {
	return m.visible
}

// Answer sends action and hides the modal
func (m *ConflictModal) Answer(action conflict.Action) {
	if m.reply != nil {
		// buffered by the prompter; never blocks
		m.reply <- action
		m.reply = nil
	}
	m.visible = false
}

// Update maps m/s/c to an answer. answered is true once the modal closed.
func (m ConflictModal) Update(msg tea.Msg) (modal ConflictModal, answered bool) {
	if !m.visible {
		return m, false
	}
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, false
	}

	switch {
	case key.Matches(keyMsg, m.keys.Move):
		m.Answer(conflict.ActionMove)
	case key.Matches(keyMsg, m.keys.Skip):
		m.Answer(conflict.ActionSkip)
	case key.Matches(keyMsg, m.keys.Cancel):
		m.Answer(conflict.ActionCancel)
	default:
		return m, false
	}
	return m, true
}

// View renders the modal
func (m ConflictModal) View() string {
	if !m.visible {
		return ""
	}

	var inLiked, inIgnored, other int
	for _, c := range m.report.Conflicts {
		switch c.Type {
		case domain.ConflictInLiked:
			inLiked++
		case domain.ConflictInIgnored:
			inIgnored++
		default:
			other++
		}
	}

	lines := []string{
		styles.ModalTitleStyle.Render("Conflicts adding to " + m.target),
		fmt.Sprintf("%s safe to add", styles.SuccessStyle.Render(fmt.Sprint(len(m.report.SafeToAdd)))),
	}
	if len(m.report.Duplicates) > 0 {
		lines = append(lines, styles.DimStyle.Render(fmt.Sprintf("%d already in collection", len(m.report.Duplicates))))
	}
	if inLiked > 0 {
		lines = append(lines, styles.WarningStyle.Render(fmt.Sprintf("%d in Liked", inLiked)))
	}
	if inIgnored > 0 {
		lines = append(lines, styles.WarningStyle.Render(fmt.Sprintf("%d in Ignored", inIgnored)))
	}
	if other > 0 {
		lines = append(lines, styles.WarningStyle.Render(fmt.Sprintf("%d other conflicts", other)))
	}

	lines = append(lines, "")
	for i, c := range m.report.Conflicts {
		if i == conflictPreview {
			lines = append(lines, styles.DimStyle.Render(fmt.Sprintf("  …and %d more", len(m.report.Conflicts)-conflictPreview)))
			break
		}
		lines = append(lines, styles.DimStyle.Render("  "+styles.Truncate(c.Message, 44)))
	}

	lines = append(lines, "",
		styles.HelpKeyStyle.Render("m")+styles.HelpDescStyle.Render(" move them here  ")+
			styles.HelpKeyStyle.Render("s")+styles.HelpDescStyle.Render(" skip them  ")+
			styles.HelpKeyStyle.Render("c")+styles.HelpDescStyle.Render(" cancel"),
	)

	return styles.ModalStyle.Width(52).Render(strings.Join(lines, "\n"))
}
