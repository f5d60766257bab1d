package domain

import (
	"context"
)

// ConflictChecker pre-flights a bulk add against the destination collection
type ConflictChecker interface {
	// CheckConflicts groups ids into conflicts, duplicates and safe-to-add
	CheckConflicts(ctx context.Context, ids []CompanyID, dest CollectionID) (ConflictReport, error)
}

// StatusChecker reports liked/ignored status for a set of companies
type StatusChecker interface {
	CheckStatuses(ctx context.Context, ids []CompanyID) (StatusSummary, error)
}

// BulkMutator starts server-side bulk jobs. Both calls return as soon as the
// job is queued; progress arrives over the realtime channel.
type BulkMutator interface {
	// BulkAdd adds ids to collection. source is uuid.Nil when the add is not a move.
	BulkAdd(ctx context.Context, collection CollectionID, ids []CompanyID, source CollectionID) (Receipt, error)

	// BulkRemove removes ids from collection
	BulkRemove(ctx context.Context, collection CollectionID, ids []CompanyID) (Receipt, error)
}

// ScopeRepository resolves "select all" to the complete id list of a view
type ScopeRepository interface {
	AllIDsInScope(ctx context.Context, scope Scope) ([]CompanyID, error)
}

// OperationRepository reads the server's record of a bulk job
type OperationRepository interface {
	// OperationStatus returns the current state, including accumulated errors
	OperationStatus(ctx context.Context, operationID string) (BulkOperation, error)
}

// CollectionRepository lists collections and pages through their companies
type CollectionRepository interface {
	GetCollections(ctx context.Context) ([]Collection, error)
	GetCollectionPage(ctx context.Context, id CollectionID, offset, limit int) (CompanyPage, error)
}

// SearchRepository pages through companies matching a free-text query
type SearchRepository interface {
	SearchPage(ctx context.Context, scope Scope, offset, limit int) (CompanyPage, error)
}

// MembershipRepository returns the authoritative row for one company
type MembershipRepository interface {
	GetMembership(ctx context.Context, id CompanyID) (Membership, error)
}

// CompanyRepository is the full backend contract (implemented by backend.Client)
type CompanyRepository interface {
	ConflictChecker
	StatusChecker
	BulkMutator
	ScopeRepository
	OperationRepository
	CollectionRepository
	SearchRepository
	MembershipRepository
}
