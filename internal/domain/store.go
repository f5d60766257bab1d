package domain

// Store handles local cache (BoltDB + memory).
// Nothing in it is authoritative; the backend owns all persistence.
type Store interface {
	// === Collections ===
	GetCollections() ([]Collection, bool)
	SaveCollections(collections []Collection) error
	InvalidateCollections()

	// === Role table (populated once at startup) ===
	GetRoles() (map[CollectionRole]CollectionID, bool)
	SaveRoles(roles map[CollectionRole]CollectionID) error

	// === Operation journal ===
	// AppendOperation records a terminal bulk operation for later display
	AppendOperation(op BulkOperation) error
	// RecentOperations returns up to limit records, newest first
	RecentOperations(limit int) ([]BulkOperation, error)

	// === Invalidation ===
	InvalidateAll()

	Close() error
}
