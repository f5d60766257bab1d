// Package conflict turns a server conflict report and the user's choice into
// the final list of companies a bulk add should touch.
//
//	cancel ──► nothing
//	skip   ──► safeToAdd
//	move   ──► safeToAdd ∪ conflicts   (duplicates never, they are no-ops)
//
// A move also requires the conflicting companies to leave the collection
// that caused the conflict; Removals computes those, the caller performs them.
package conflict

import (
	"fmt"
	"strings"

	"github.com/mmcdole/rolodex/internal/domain"
)

// Action is the user's answer to a conflict prompt
type Action string

const (
	ActionMove   Action = "move"
	ActionSkip   Action = "skip"
	ActionCancel Action = "cancel"
)

// ParseAction converts user input to an Action
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionMove, ActionSkip, ActionCancel:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown conflict action %q", domain.ErrValidation, s)
}

// Resolve returns the ids to mutate for the chosen action, without duplicates,
// safe ids first in report order.
func Resolve(report domain.ConflictReport, action Action) []domain.CompanyID {
	switch action {
	case ActionSkip:
		excluded := append(report.ConflictIDs(), report.Duplicates...)
		return dedupe(without(report.SafeToAdd, excluded))
	case ActionMove:
		ids := make([]domain.CompanyID, 0, len(report.SafeToAdd)+len(report.Conflicts))
		ids = append(ids, report.SafeToAdd...)
		ids = append(ids, report.ConflictIDs()...)
		return dedupe(without(ids, report.Duplicates))
	default:
		return []domain.CompanyID{}
	}
}

// RoleLookup maps a collection role to its id
type RoleLookup interface {
	Lookup(role domain.CollectionRole) (domain.CollectionID, bool)
}

// Removals groups the conflicting ids of a move by the collection they must
// leave. ConflictOther has no implied removal. Returns an error if a needed
// role is not resolved.
func Removals(report domain.ConflictReport, roles RoleLookup) (map[domain.CollectionID][]domain.CompanyID, error) {
	out := make(map[domain.CollectionID][]domain.CompanyID)
	for _, c := range report.Conflicts {
		var role domain.CollectionRole
		switch c.Type {
		case domain.ConflictInLiked:
			role = domain.RoleLiked
		case domain.ConflictInIgnored:
			role = domain.RoleIgnored
		default:
			continue
		}
		id, ok := roles.Lookup(role)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrRoleUnresolved, role)
		}
		out[id] = append(out[id], c.CompanyID)
	}
	for id, ids := range out {
		out[id] = dedupe(ids)
	}
	return out, nil
}

func dedupe(ids []domain.CompanyID) []domain.CompanyID {
	seen := make(map[domain.CompanyID]struct{}, len(ids))
	out := make([]domain.CompanyID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func without(ids, drop []domain.CompanyID) []domain.CompanyID {
	if len(drop) == 0 {
		return ids
	}
	skip := make(map[domain.CompanyID]struct{}, len(drop))
	for _, id := range drop {
		skip[id] = struct{}{}
	}
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
