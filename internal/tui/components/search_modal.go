package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/rolodex/internal/tui/styles"
)

const searchWidth = 40

// SearchModal edits the server-side search query of the active collection
type SearchModal struct {
	visible    bool
	collection string
	input      textinput.Model
	keys       SearchKeyMap
}

// NewSearchModal creates a hidden search modal
func NewSearchModal() SearchModal {
	ti := textinput.New()
	ti.Placeholder = "name, industry, location..."
	ti.CharLimit = 100
	ti.Width = searchWidth - 4
	ti.Prompt = "/ "
	ti.PromptStyle = styles.FilterPromptStyle
	ti.PlaceholderStyle = styles.DimStyle

	return SearchModal{input: ti, keys: DefaultSearchKeyMap()}
}

// Show opens the modal for collection, prefilled with the current query
func (m *SearchModal) Show(collection, query string) {
	m.visible = true
	m.collection = collection
	m.input.SetValue(query)
	m.input.CursorEnd()
	m.input.Focus()
}

// Hide dismisses the modal
func (m *SearchModal) Hide() {
	m.visible = false
	m.input.Blur()
}

// IsVisible returns whether the modal is shown
func (m SearchModal) IsVisible() bool {
	return m.visible
}

// Query returns the trimmed query. Empty means the whole collection.
func (m SearchModal) Query() string {
	return strings.TrimSpace(m.input.Value())
}

// Update handles keys. submitted is true when the query should be applied.
func (m SearchModal) Update(msg tea.Msg) (modal SearchModal, cmd tea.Cmd, submitted bool) {
	if !m.visible {
		return m, nil, false
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, m.keys.Submit):
			m.Hide()
			return m, nil, true
		case key.Matches(keyMsg, m.keys.Cancel):
			m.Hide()
			return m, nil, false
		case key.Matches(keyMsg, m.keys.Clear):
			m.input.SetValue("")
			return m, nil, false
		}
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd, false
}

// View renders the modal
func (m SearchModal) View() string {
	if !m.visible {
		return ""
	}

	lines := []string{
		styles.ModalTitleStyle.Render("Search"),
		styles.DimStyle.Render("in " + styles.Truncate(m.collection, searchWidth-3)),
		"",
		m.input.View(),
		"",
		styles.HelpKeyStyle.Render("enter") + styles.HelpDescStyle.Render(" apply  ") +
			styles.HelpKeyStyle.Render("C-u") + styles.HelpDescStyle.Render(" clear  ") +
			styles.HelpKeyStyle.Render("esc") + styles.HelpDescStyle.Render(" cancel"),
	}
	return styles.ModalStyle.Width(searchWidth + 4).Render(strings.Join(lines, "\n"))
}
