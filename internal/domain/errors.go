package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrValidation indicates malformed input rejected before any network call
	ErrValidation = errors.New("invalid request")

	// ErrTransport indicates a network or HTTP failure talking to the backend
	ErrTransport = errors.New("backend request failed")

	// ErrNotFound indicates the backend has no such collection, company or operation
	ErrNotFound = errors.New("not found")

	// ErrConflictCheckFailed indicates the pre-flight conflict check could not run
	ErrConflictCheckFailed = errors.New("conflict check failed")

	// ErrResolutionCancelled is the normal exit when the user cancels a conflict prompt
	ErrResolutionCancelled = errors.New("resolution cancelled")

	// ErrDispatchFailed indicates the bulk mutation request was not accepted
	ErrDispatchFailed = errors.New("bulk dispatch failed")

	// ErrTrackingLost indicates the progress channel exhausted its reconnect budget.
	// The operation may still be running server-side.
	ErrTrackingLost = errors.New("lost track of operation progress")

	// ErrOperationFailed indicates the server reported the operation as failed
	ErrOperationFailed = errors.New("bulk operation failed")

	// ErrPartialFailure indicates a completed operation that skipped some items
	ErrPartialFailure = errors.New("bulk operation completed with errors")

	// ErrRoleUnresolved indicates a special collection (liked/ignored) was not found
	ErrRoleUnresolved = errors.New("collection role not resolved")
)

// OperationError carries the last-known state of a bulk operation alongside
// the failure kind, so callers can show partial progress.
type OperationError struct {
	Kind error         // one of the sentinels above
	Op   BulkOperation // last observed snapshot
	Err  error         // underlying cause, may be nil
}

func (e *OperationError) Error() string {
	msg := e.Kind.Error()
	if e.Op.ID != "" {
		msg = fmt.Sprintf("%s (operation %s, %d/%d processed)", msg, e.Op.ID, e.Op.Processed, e.Op.Total)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As
func (e *OperationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
