package collection

import (
	"strings"
	"sync"

	"github.com/mmcdole/rolodex/internal/domain"
)

// RoleNames are the backend names of the specially treated collections
type RoleNames struct {
	Liked   string
	Ignored string
	Default string
}

func (n RoleNames) name(role domain.CollectionRole) string {
	switch role {
	case domain.RoleLiked:
		return n.Liked
	case domain.RoleIgnored:
		return n.Ignored
	default:
		return n.Default
	}
}

var allRoles = []domain.CollectionRole{domain.RoleDefault, domain.RoleLiked, domain.RoleIgnored}

// Roles maps collection roles to ids. It is filled once at startup and
// replaced wholesale on refresh, never matched by name at call sites.
type Roles struct {
	mu    sync.RWMutex
	table map[domain.CollectionRole]domain.CollectionID
}

// NewRoles returns a table seeded from table (may be nil)
func NewRoles(table map[domain.CollectionRole]domain.CollectionID) *Roles {
	r := &Roles{}
	r.Replace(table)
	return r
}

// BuildRoles resolves names against collections by case-insensitive exact
// match. Unmatched roles are left out.
func BuildRoles(collections []domain.Collection, names RoleNames) map[domain.CollectionRole]domain.CollectionID {
	table := make(map[domain.CollectionRole]domain.CollectionID)
	for _, role := range allRoles {
		want := strings.TrimSpace(names.name(role))
		if want == "" {
			continue
		}
		for _, c := range collections {
			if strings.EqualFold(strings.TrimSpace(c.Name), want) {
				table[role] = c.ID
				break
			}
		}
	}
	return table
}

// Lookup returns the id playing role
func (r *Roles) Lookup(role domain.CollectionRole) (domain.CollectionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.table[role]
	return id, ok
}

// RoleOf returns the role of id, RoleDefault with false when it has none
func (r *Roles) RoleOf(id domain.CollectionID) (domain.CollectionRole, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for role, rid := range r.table {
		if rid == id {
			return role, true
		}
	}
	return domain.RoleDefault, false
}

// Replace swaps in a new table
func (r *Roles) Replace(table map[domain.CollectionRole]domain.CollectionID) {
	cp := make(map[domain.CollectionRole]domain.CollectionID, len(table))
	for k, v := range table {
		cp[k] = v
	}
	r.mu.Lock()
	r.table = cp
	r.mu.Unlock()
}

// Snapshot returns a copy of the table
func (r *Roles) Snapshot() map[domain.CollectionRole]domain.CollectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make(map[domain.CollectionRole]domain.CollectionID, len(r.table))
	for k, v := range r.table {
		cp[k] = v
	}
	return cp
}
