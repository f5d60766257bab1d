package backend

import (
	"github.com/google/uuid"

	"github.com/mmcdole/rolodex/internal/domain"
)

// MapCollections converts collection metadata, skipping entries with bad ids
func MapCollections(in []CollectionMetadata) []domain.Collection {
	out := make([]domain.Collection, 0, len(in))
	for _, m := range in {
		c, ok := mapCollection(m)
		if !ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func mapCollection(m CollectionMetadata) (domain.Collection, bool) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return domain.Collection{}, false
	}
	return domain.Collection{ID: id, Name: m.CollectionName, Count: m.CollectionCount}, true
}

// MapCompanies converts company rows
func MapCompanies(in []Company) []domain.Company {
	out := make([]domain.Company, len(in))
	for i, c := range in {
		out[i] = domain.Company{
			ID:            domain.CompanyID(c.ID),
			Name:          c.CompanyName,
			Liked:         c.Liked,
			Ignored:       c.Ignored,
			Industry:      deref(c.Industry),
			Stage:         deref(c.CompanyStage),
			Location:      deref(c.Location),
			EmployeeCount: deref(c.EmployeeCount),
			TotalFunding:  deref(c.TotalFunding),
			FoundedYear:   deref(c.FoundedYear),
		}
	}
	return out
}

// MapConflictReport converts a conflict check response
func MapConflictReport(r ConflictCheckResponse) domain.ConflictReport {
	conflicts := make([]domain.Conflict, len(r.Conflicts))
	for i, c := range r.Conflicts {
		conflicts[i] = domain.Conflict{
			CompanyID: domain.CompanyID(c.CompanyID),
			Type:      mapConflictType(c.ConflictType),
			Message:   c.Message,
		}
	}
	return domain.ConflictReport{
		Conflicts:    conflicts,
		Duplicates:   toCompanyIDs(r.Duplicates),
		SafeToAdd:    toCompanyIDs(r.SafeToAdd),
		TotalChecked: r.TotalChecked,
	}
}

func mapConflictType(s string) domain.ConflictType {
	switch domain.ConflictType(s) {
	case domain.ConflictInLiked:
		return domain.ConflictInLiked
	case domain.ConflictInIgnored:
		return domain.ConflictInIgnored
	default:
		return domain.ConflictOther
	}
}

// MapStatusSummary converts a status check response
func MapStatusSummary(r StatusCheckResponse) domain.StatusSummary {
	return domain.StatusSummary{
		LikedCount:    r.LikedCount,
		IgnoredCount:  r.IgnoredCount,
		NoStatusCount: r.NoStatusCount,
		LikedIDs:      toCompanyIDs(r.LikedIDs),
		IgnoredIDs:    toCompanyIDs(r.IgnoredIDs),
	}
}

// MapReceipt converts a bulk operation response
func MapReceipt(r BulkOperationResponse) domain.Receipt {
	return domain.Receipt{
		OperationID: r.OperationID,
		Status:      domain.OperationStatus(r.Status),
		Message:     r.Message,
		Total:       r.Total,
		Processed:   r.Processed,
	}
}

// MapOperation converts a bulk operation status record. Kind and collection
// are recovered from the "<kind>_<collection>_<unix>" id when possible.
func MapOperation(s BulkOperationStatus) domain.BulkOperation {
	op := domain.BulkOperation{
		ID:        s.OperationID,
		Status:    domain.OperationStatus(s.Status),
		Total:     s.Total,
		Processed: s.Processed,
		Errors:    s.Errors,
		StartedAt: s.StartedAt.Time,
	}
	if s.CompletedAt != nil && !s.CompletedAt.IsZero() {
		t := s.CompletedAt.Time
		op.CompletedAt = &t
	}
	if kind, coll, ok := parseOperationID(s.OperationID); ok {
		op.Kind = kind
		op.CollectionID = coll
	}
	return op
}

// MapMembership converts a company membership response
func MapMembership(r CompanyCollectionStatus) domain.Membership {
	m := domain.Membership{
		CompanyID: domain.CompanyID(r.CompanyID),
		IsLiked:   r.IsLiked,
		IsIgnored: r.IsIgnored,
	}
	for _, ref := range r.Collections {
		id, err := uuid.Parse(ref.ID)
		if err != nil {
			continue
		}
		m.Collections = append(m.Collections, domain.Collection{ID: id, Name: ref.Name})
	}
	return m
}

func parseOperationID(id string) (domain.OperationKind, domain.CollectionID, bool) {
	for _, kind := range []domain.OperationKind{domain.KindAdd, domain.KindRemove} {
		prefix := string(kind) + "_"
		// uuid text form is 36 bytes
		if len(id) < len(prefix)+36 || id[:len(prefix)] != prefix {
			continue
		}
		coll, err := uuid.Parse(id[len(prefix) : len(prefix)+36])
		if err != nil {
			return "", uuid.Nil, false
		}
		return kind, coll, true
	}
	return "", uuid.Nil, false
}

func toCompanyIDs(in []int) []domain.CompanyID {
	out := make([]domain.CompanyID, len(in))
	for i, v := range in {
		out[i] = domain.CompanyID(v)
	}
	return out
}

func fromCompanyIDs(in []domain.CompanyID) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
