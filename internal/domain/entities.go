package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CompanyID uniquely names one company record. Never recycled within a session.
type CompanyID int

// CollectionID identifies a collection (list) on the backend
type CollectionID = uuid.UUID

// ParseCollectionID parses the textual form of a collection ID
func ParseCollectionID(s string) (CollectionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid collection id %q: %w", s, err)
	}
	return id, nil
}

// CollectionRole names the collections the engine treats specially.
// Roles are resolved to IDs once at startup instead of matching names ad hoc.
type CollectionRole int

const (
	RoleDefault CollectionRole = iota
	RoleLiked
	RoleIgnored
)

func (r CollectionRole) String() string {
	switch r {
	case RoleLiked:
		return "liked"
	case RoleIgnored:
		return "ignored"
	default:
		return "default"
	}
}

// Collection is a named, ordered set of companies
type Collection struct {
	ID    CollectionID `json:"id"`
	Name  string       `json:"name"`
	Count int          `json:"count"`
}

// Scope selects the ids a "select all" should cover: a whole collection,
// or the subset of it matching a search query.
type Scope struct {
	CollectionID CollectionID
	Query        string // empty = whole collection
}

// IsFiltered returns true if the scope narrows the collection by query
func (s Scope) IsFiltered() bool {
	return s.Query != ""
}

// Company is a single row as rendered by the front-end
type Company struct {
	ID            CompanyID
	Name          string
	Liked         bool
	Ignored       bool
	Industry      string
	Stage         string
	Location      string
	EmployeeCount int
	TotalFunding  int64
	FoundedYear   int
}

// Status returns the like/ignore status of the row
func (c Company) Status() CompanyStatus {
	return StatusFromFlags(c.Liked, c.Ignored)
}

// CompanyPage is one page of a collection listing
type CompanyPage struct {
	Collection Collection
	Companies  []Company
	Total      int // items matching the view, not just this page
}

// CompanyStatus is the per-company like/ignore state cycled by the status toggle
type CompanyStatus int

const (
	StatusNone CompanyStatus = iota
	StatusLiked
	StatusIgnored
)

func (s CompanyStatus) String() string {
	switch s {
	case StatusLiked:
		return "liked"
	case StatusIgnored:
		return "ignored"
	default:
		return "none"
	}
}

// StatusFromFlags folds the backend's two booleans into a CompanyStatus.
// A row flagged both ways is reported as liked.
func StatusFromFlags(liked, ignored bool) CompanyStatus {
	switch {
	case liked:
		return StatusLiked
	case ignored:
		return StatusIgnored
	default:
		return StatusNone
	}
}

// Membership is the authoritative collection membership of one company
type Membership struct {
	CompanyID   CompanyID
	Collections []Collection
	IsLiked     bool
	IsIgnored   bool
}

// Status returns the authoritative status for the company
func (m Membership) Status() CompanyStatus {
	return StatusFromFlags(m.IsLiked, m.IsIgnored)
}

// StatusSummary reports how many of a set of companies carry each status
type StatusSummary struct {
	LikedCount    int
	IgnoredCount  int
	NoStatusCount int
	LikedIDs      []CompanyID
	IgnoredIDs    []CompanyID
}

// OperationKind is the mutation a bulk operation performs
type OperationKind string

const (
	KindAdd    OperationKind = "add"
	KindRemove OperationKind = "remove"
)

// OperationStatus is the lifecycle state of a bulk operation
type OperationStatus string

const (
	OperationPending    OperationStatus = "pending"
	OperationInProgress OperationStatus = "in_progress"
	OperationCompleted  OperationStatus = "completed"
	OperationFailed     OperationStatus = "failed"
)

// IsTerminal returns true for completed and failed
func (s OperationStatus) IsTerminal() bool {
	return s == OperationCompleted || s == OperationFailed
}

// BulkOperation is the client-side record of a server-side bulk job
type BulkOperation struct {
	ID           string
	Kind         OperationKind
	CollectionID CollectionID
	Status       OperationStatus
	Total        int
	Processed    int
	Errors       []string
	StartedAt    time.Time
	CompletedAt  *time.Time // set only in terminal states
}

// Percentage returns processed/total as 0-100
func (op BulkOperation) Percentage() float64 {
	if op.Total <= 0 {
		if op.Status == OperationCompleted {
			return 100
		}
		return 0
	}
	return float64(op.Processed) / float64(op.Total) * 100
}

// ErrorPreview returns at most n errors for display
func (op BulkOperation) ErrorPreview(n int) []string {
	if n <= 0 || len(op.Errors) <= n {
		return op.Errors
	}
	return op.Errors[:n]
}

// Clone returns a copy safe to hand to observers
func (op BulkOperation) Clone() BulkOperation {
	c := op
	if op.Errors != nil {
		c.Errors = append([]string(nil), op.Errors...)
	}
	if op.CompletedAt != nil {
		t := *op.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// Receipt is the immediate response to a bulk add/remove request
type Receipt struct {
	OperationID string
	Status      OperationStatus
	Message     string
	Total       int
	Processed   int
}

// Progress is one snapshot pushed over the progress channel
type Progress struct {
	OperationID string          `json:"operation_id"`
	Processed   int             `json:"processed"`
	Total       int             `json:"total"`
	Percentage  float64         `json:"percentage"`
	Status      OperationStatus `json:"status"`
}
