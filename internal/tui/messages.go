package tui

import (
	"github.com/mmcdole/rolodex/internal/conflict"
	"github.com/mmcdole/rolodex/internal/domain"
)

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// CollectionsLoadedMsg carries the collection list
type CollectionsLoadedMsg struct {
	Collections []domain.Collection
}

// PageLoadedMsg carries one page of the active scope
type PageLoadedMsg struct {
	Scope  domain.Scope
	Offset int
	Page   domain.CompanyPage
}

// ScopeIDsLoadedMsg carries every id of the active scope for select-all
type ScopeIDsLoadedMsg struct {
	Scope domain.Scope
	IDs   []domain.CompanyID
}

// SelectionChangedMsg mirrors domain.SelectionObserver
type SelectionChangedMsg struct {
	Change domain.SelectionChange
}

// OperationProgressMsg mirrors domain.OperationObserver.OnOperationProgress
type OperationProgressMsg struct {
	Update domain.OperationUpdate
}

// OperationTerminalMsg mirrors domain.OperationObserver.OnOperationTerminal
type OperationTerminalMsg struct {
	Result domain.OperationResult
}

// ViewRefreshMsg asks for the current page and counts to be reloaded
type ViewRefreshMsg struct{}

// StatusChangedMsg mirrors domain.StatusObserver
type StatusChangedMsg struct {
	ID     domain.CompanyID
	Status domain.CompanyStatus
}

// ConflictPromptMsg asks the user to resolve conflicts. Exactly one action
// must be sent on Reply.
type ConflictPromptMsg struct {
	Report domain.ConflictReport
	Reply  chan<- conflict.Action
}

// BulkFinishedMsg is returned when a coordinator run returns
type BulkFinishedMsg struct {
	Result domain.OperationResult
	Err    error
}

// ToggleFinishedMsg is returned when a status toggle settles
type ToggleFinishedMsg struct {
	ID     domain.CompanyID
	Status domain.CompanyStatus
	Err    error
}

// ClearStatusMsg clears the status bar message
type ClearStatusMsg struct{}

// StatusMsg sets a temporary status message
type StatusMsg struct {
	Message string
	IsError bool
}
