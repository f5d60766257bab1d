package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
)

// KeyMap defines all key bindings for the application
type KeyMap struct {
	// Navigation
	Up       key.Binding
	Down     key.Binding
	HalfUp   key.Binding
	HalfDown key.Binding
	Home     key.Binding
	End      key.Binding
	NextPage key.Binding
	PrevPage key.Binding

	// Selection
	Select    key.Binding
	Range     key.Binding
	SelectAll key.Binding
	Escape    key.Binding

	// Actions
	ToggleStatus key.Binding
	BulkAdd      key.Binding
	BulkRemove   key.Binding
	ClearStatus  key.Binding
	Collections  key.Binding
	Search       key.Binding
	Refresh      key.Binding
	Help         key.Binding
	Quit         key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		HalfUp: key.NewBinding(
			key.WithKeys("ctrl+u"),
			key.WithHelp("C-u", "half page up"),
		),
		HalfDown: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("C-d", "half page down"),
		),
		Home: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "go to top"),
		),
		End: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "go to bottom"),
		),
		NextPage: key.NewBinding(
			key.WithKeys("n", "pgdown"),
			key.WithHelp("n", "next page"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("p", "pgup"),
			key.WithHelp("p", "prev page"),
		),

		Select: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "select"),
		),
		Range: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "select range"),
		),
		SelectAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "select all"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear"),
		),

		ToggleStatus: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "like/ignore"),
		),
		BulkAdd: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "add to..."),
		),
		BulkRemove: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "remove"),
		),
		ClearStatus: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear status"),
		),
		Collections: key.NewBinding(
			key.WithKeys("o", "tab"),
			key.WithHelp("o", "open collection"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Keys is the global key bindings instance
var Keys = DefaultKeyMap()

// tableKeyMap keeps the table from claiming space, b, d and u
func (k KeyMap) tableKeyMap() table.KeyMap {
	return table.KeyMap{
		LineUp:       k.Up,
		LineDown:     k.Down,
		PageUp:       key.NewBinding(key.WithKeys("ctrl+b")),
		PageDown:     key.NewBinding(key.WithKeys("ctrl+f")),
		HalfPageUp:   k.HalfUp,
		HalfPageDown: k.HalfDown,
		GotoTop:      k.Home,
		GotoBottom:   k.End,
	}
}

// helpBindings are listed on the help screen, in order
func (k KeyMap) helpBindings() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.NextPage, k.PrevPage,
		k.Select, k.Range, k.SelectAll, k.Escape,
		k.ToggleStatus, k.BulkAdd, k.BulkRemove, k.ClearStatus,
		k.Collections, k.Search, k.Refresh, k.Quit,
	}
}
