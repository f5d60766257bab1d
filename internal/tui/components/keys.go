package components

import "github.com/charmbracelet/bubbles/key"

// PickerKeyMap defines key bindings inside the collection picker. Letters
// are left to the filter input.
type PickerKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

// DefaultPickerKeyMap returns the default picker key bindings
func DefaultPickerKeyMap() PickerKeyMap {
	return PickerKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "ctrl+k", "ctrl+p"),
			key.WithHelp("↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "ctrl+j", "ctrl+n"),
			key.WithHelp("↓", "down"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "choose"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// ConflictKeyMap defines the three answers of the conflict prompt
type ConflictKeyMap struct {
	Move   key.Binding
	Skip   key.Binding
	Cancel key.Binding
}

// DefaultConflictKeyMap returns the default conflict prompt bindings
func DefaultConflictKeyMap() ConflictKeyMap {
	return ConflictKeyMap{
		Move: key.NewBinding(
			key.WithKeys("m", "M"),
			key.WithHelp("m", "move"),
		),
		Skip: key.NewBinding(
			key.WithKeys("s", "S"),
			key.WithHelp("s", "skip"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("c", "C", "esc"),
			key.WithHelp("c", "cancel"),
		),
	}
}

// ProgressKeyMap defines keys while the progress modal is up
type ProgressKeyMap struct {
	Dismiss key.Binding
}

// DefaultProgressKeyMap returns the default progress modal bindings
func DefaultProgressKeyMap() ProgressKeyMap {
	return ProgressKeyMap{
		Dismiss: key.NewBinding(
			key.WithKeys("esc", "enter"),
			key.WithHelp("esc", "dismiss"),
		),
	}
}

// SearchKeyMap defines keys inside the search modal. Everything else edits
// the query.
type SearchKeyMap struct {
	Submit key.Binding
	Cancel key.Binding
	Clear  key.Binding
}

// DefaultSearchKeyMap returns the default search modal bindings
func DefaultSearchKeyMap() SearchKeyMap {
	return SearchKeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "apply"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+u"),
			key.WithHelp("C-u", "clear"),
		),
	}
}
