package domain

// SelectionChange is emitted after every selection mutation
type SelectionChange struct {
	Count       int
	AllSelected bool
}

// SelectionObserver receives selection changes (selectionChanged signal).
type SelectionObserver interface {
	OnSelectionChanged(change SelectionChange)
}

// OperationUpdate is a progress snapshot for the operation modal
type OperationUpdate struct {
	Operation   BulkOperation
	Attempt     int // reconnect attempt in progress, 0 when connected
	MaxAttempts int
}

// Reconnecting returns true while the progress channel is retrying
func (u OperationUpdate) Reconnecting() bool {
	return u.Attempt > 0
}

// Outcome is how a coordinator run ended
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeCancelled // user chose cancel at the conflict prompt
	OutcomeDetached  // user dismissed the modal while tracking; server work continues
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// OperationResult is the terminal report of one bulk run
type OperationResult struct {
	Outcome   Outcome
	Operation BulkOperation
	Err       error // set when Outcome is OutcomeFailed
	Warning   error // ErrPartialFailure on a completed run that skipped items
}

// OperationObserver receives the operationProgress and operationTerminal
// signals, plus a request to refresh the current view.
type OperationObserver interface {
	OnOperationProgress(update OperationUpdate)
	OnOperationTerminal(result OperationResult)
	OnViewRefresh()
}

// StatusObserver receives optimistic and reconciled per-company status changes
type StatusObserver interface {
	OnStatusChanged(id CompanyID, status CompanyStatus)
}

// NoOpObserver discards every signal (for testing/headless use).
type NoOpObserver struct{}

func (NoOpObserver) OnSelectionChanged(SelectionChange) {}
func (NoOpObserver) OnOperationProgress(OperationUpdate) {}
func (NoOpObserver) OnOperationTerminal(OperationResult) {}
func (NoOpObserver) OnViewRefresh() {}
func (NoOpObserver) OnStatusChanged(CompanyID, CompanyStatus) {}
