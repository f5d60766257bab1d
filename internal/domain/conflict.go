package domain

import "fmt"

// ConflictType says which status a destination change would implicitly alter
type ConflictType string

const (
	ConflictInLiked   ConflictType = "in_liked"
	ConflictInIgnored ConflictType = "in_ignored"
	ConflictOther     ConflictType = "other"
)

// Conflict is one selected company whose current status the operation would change
type Conflict struct {
	CompanyID CompanyID
	Type      ConflictType
	Message   string
}

// ConflictReport is the server's pre-flight check of a bulk add.
// Each checked id appears in exactly one of the three groups.
type ConflictReport struct {
	Conflicts    []Conflict
	Duplicates   []CompanyID // already in the destination (no-ops)
	SafeToAdd    []CompanyID
	TotalChecked int
}

// NeedsResolution returns true if the user must choose move/skip/cancel
func (r ConflictReport) NeedsResolution() bool {
	return len(r.Conflicts) > 0 || len(r.Duplicates) > 0
}

// ConflictIDs returns the company ids of all conflicts, in report order
func (r ConflictReport) ConflictIDs() []CompanyID {
	ids := make([]CompanyID, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		ids = append(ids, c.CompanyID)
	}
	return ids
}

// Validate checks the report's counting invariant and group exclusivity
func (r ConflictReport) Validate() error {
	n := len(r.Conflicts) + len(r.Duplicates) + len(r.SafeToAdd)
	if r.TotalChecked != n {
		return fmt.Errorf("%w: conflict report checked %d ids but grouped %d", ErrValidation, r.TotalChecked, n)
	}

	seen := make(map[CompanyID]string, n)
	mark := func(id CompanyID, group string) error {
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("%w: company %d reported as both %s and %s", ErrValidation, id, prev, group)
		}
		seen[id] = group
		return nil
	}
	for _, c := range r.Conflicts {
		if err := mark(c.CompanyID, "conflict"); err != nil {
			return err
		}
	}
	for _, id := range r.Duplicates {
		if err := mark(id, "duplicate"); err != nil {
			return err
		}
	}
	for _, id := range r.SafeToAdd {
		if err := mark(id, "safe"); err != nil {
			return err
		}
	}
	return nil
}
