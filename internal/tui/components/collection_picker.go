package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/rolodex/internal/domain"
	"github.com/mmcdole/rolodex/internal/tui/styles"
)

// PickerPurpose says what the chosen collection will be used for
type PickerPurpose int

const (
	PickToOpen PickerPurpose = iota
	PickBulkTarget
)

// collectionNames implements fuzzy.Source over lowercase names
type collectionNames []domain.Collection

func (c collectionNames) String(i int) string { return strings.ToLower(c[i].Name) }
func (c collectionNames) Len() int            { return len(c) }

// CollectionPicker is a modal listing collections with a fuzzy filter
type CollectionPicker struct {
	visible     bool
	purpose     PickerPurpose
	title       string
	collections []domain.Collection
	exclude     domain.CollectionID

	filterInput textinput.Model
	matches     []fuzzy.Match // nil = unfiltered
	cursor      int

	keys   PickerKeyMap
	width  int
	height int
}

// NewCollectionPicker creates a hidden picker
func NewCollectionPicker() CollectionPicker {
	ti := textinput.New()
	ti.Placeholder = "Filter collections..."
	ti.Prompt = "/ "
	ti.CharLimit = 64
	ti.PromptStyle = styles.FilterPromptStyle
	ti.PlaceholderStyle = styles.DimStyle

	return CollectionPicker{filterInput: ti, keys: DefaultPickerKeyMap()}
}

// Show opens the picker. exclude hides one collection (the active one when
// picking a bulk target).
func (p *CollectionPicker) Show(purpose PickerPurpose, title string, collections []domain.Collection, exclude domain.CollectionID) {
	p.visible = true
	p.purpose = purpose
	p.title = title
	p.exclude = exclude
	p.collections = make([]domain.Collection, 0, len(collections))
	for _, c := range collections {
		if c.ID != exclude {
			p.collections = append(p.collections, c)
		}
	}
	p.cursor = 0
	p.matches = nil
	p.filterInput.SetValue("")
	p.filterInput.Focus()
}

// Hide dismisses the picker
func (p *CollectionPicker) Hide() {
	p.visible = false
	p.filterInput.Blur()
}

// IsVisible returns whether the picker is shown
func (p CollectionPicker) IsVisible() bool {
	return p.visible
}

// Purpose returns what the picker was opened for
func (p CollectionPicker) Purpose() PickerPurpose {
	return p.purpose
}

// SetSize sets the available screen size
func (p *CollectionPicker) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// visibleCount is the number of rows after filtering
func (p CollectionPicker) visibleCount() int {
	if p.matches != nil {
		return len(p.matches)
	}
	return len(p.collections)
}

// at maps a visible row to its collection
func (p CollectionPicker) at(row int) (domain.Collection, bool) {
	if row < 0 || row >= p.visibleCount() {
		return domain.Collection{}, false
	}
	if p.matches != nil {
		return p.collections[p.matches[row].Index], true
	}
	return p.collections[row], true
}

// Selected returns the collection under the cursor
func (p CollectionPicker) Selected() (domain.Collection, bool) {
	return p.at(p.cursor)
}

func (p *CollectionPicker) applyFilter() {
	query := strings.TrimSpace(p.filterInput.Value())
	if query == "" {
		p.matches = nil
	} else {
		p.matches = fuzzy.FindFrom(strings.ToLower(query), collectionNames(p.collections))
		if p.matches == nil {
			p.matches = []fuzzy.Match{}
		}
	}
	p.cursor = 0
}

// Update handles keys. chosen is true when the user confirmed a collection.
func (p CollectionPicker) Update(msg tea.Msg) (picker CollectionPicker, cmd tea.Cmd, chosen bool) {
	if !p.visible {
		return p, nil, false
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil, false
	}

	switch {
	case key.Matches(keyMsg, p.keys.Confirm):
		if _, ok := p.Selected(); ok {
			p.Hide()
			return p, nil, true
		}
		return p, nil, false
	case key.Matches(keyMsg, p.keys.Cancel):
		p.Hide()
		return p, nil, false
	case key.Matches(keyMsg, p.keys.Up):
		if p.cursor > 0 {
			p.cursor--
		}
		return p, nil, false
	case key.Matches(keyMsg, p.keys.Down):
		if p.cursor < p.visibleCount()-1 {
			p.cursor++
		}
		return p, nil, false
	}

	before := p.filterInput.Value()
	p.filterInput, cmd = p.filterInput.Update(msg)
	if p.filterInput.Value() != before {
		p.applyFilter()
	}
	return p, cmd, false
}

// View renders the picker
func (p CollectionPicker) View() string {
	if !p.visible {
		return ""
	}

	modalWidth := 48
	if p.width > 0 && p.width < 60 {
		modalWidth = p.width - 10
	}
	maxRows := 12
	if p.height > 0 {
		maxRows = max(3, min(maxRows, p.height-12))
	}

	lines := []string{
		styles.ModalTitleStyle.Render(p.title),
		p.filterInput.View(),
		"",
	}

	count := p.visibleCount()
	if count == 0 {
		lines = append(lines, styles.DimStyle.Render("  No matching collections"))
	}

	start := 0
	if p.cursor >= maxRows {
		start = p.cursor - maxRows + 1
	}
	for row := start; row < count && row < start+maxRows; row++ {
		c, _ := p.at(row)
		label := p.renderName(row, c)
		line := fmt.Sprintf("%s  %s", label, styles.DimStyle.Render(fmt.Sprintf("(%d)", c.Count)))
		if row == p.cursor {
			line = styles.SelectedItemStyle.Render(styles.Pad(c.Name, modalWidth-16)) +
				styles.DimStyle.Render(fmt.Sprintf(" (%d)", c.Count))
		}
		lines = append(lines, line)
	}

	lines = append(lines, "", styles.DimStyle.Render("Enter: choose  Esc: cancel"))

	return styles.ModalStyle.
		Width(modalWidth).
		Render(strings.Join(lines, "\n"))
}

// renderName highlights the fuzzy-matched characters of a row
func (p CollectionPicker) renderName(row int, c domain.Collection) string {
	name := styles.Truncate(c.Name, 32)
	if p.matches == nil {
		return styles.NormalItemStyle.Render(name)
	}

	matched := make(map[int]bool, len(p.matches[row].MatchedIndexes))
	for _, i := range p.matches[row].MatchedIndexes {
		matched[i] = true
	}

	var b strings.Builder
	normal := lipgloss.NewStyle().Foreground(styles.LightGray)
	for i, r := range name {
		if matched[i] {
			b.WriteString(styles.MatchHighlightStyle.Render(string(r)))
		} else {
			b.WriteString(normal.Render(string(r)))
		}
	}
	return " " + b.String()
}
