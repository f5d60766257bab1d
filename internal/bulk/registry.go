package bulk

import (
	"fmt"
	"sync"
	"time"

	"github.com/mmcdole/rolodex/internal/domain"
)

// PredictID builds the id the backend assigns to a bulk job:
// "<kind>_<collection>_<unix seconds>".
func PredictID(kind domain.OperationKind, collection domain.CollectionID, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d", kind, collection, at.Unix())
}

// registry holds the client-side records of bulk operations, keyed by the
// server id. A record created under a predicted id that turned out wrong is
// re-keyed; the predicted id stays resolvable as an alias.
type registry struct {
	mu      sync.Mutex
	records map[string]*domain.BulkOperation
	aliases map[string]string

	// one progress frame for an id not yet known, held until the rekey lands
	pending *domain.Progress
}

func newRegistry() *registry {
	return &registry{
		records: make(map[string]*domain.BulkOperation),
		aliases: make(map[string]string),
	}
}

func (r *registry) create(op domain.BulkOperation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := op.Clone()
	r.records[op.ID] = &rec
	r.pending = nil
}

// resolveLocked follows an alias to the canonical id
func (r *registry) resolveLocked(id string) (string, bool) {
	if _, ok := r.records[id]; ok {
		return id, true
	}
	if to, ok := r.aliases[id]; ok {
		return to, true
	}
	return "", false
}

// owns reports whether id names a record at all, and whether that record is
// the one current resolves to
func (r *registry) owns(current, id string) (known, mine bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.resolveLocked(id)
	if !ok {
		return false, false
	}
	cur, _ := r.resolveLocked(current)
	return true, key == cur
}

// prune drops terminal records and the aliases pointing at them. Records
// still in flight, such as detached runs, are kept so their late frames stay
// recognisable.
func (r *registry) prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, rec := range r.records {
		if rec.Status.IsTerminal() {
			delete(r.records, id)
			n++
		}
	}
	for alias, to := range r.aliases {
		if _, ok := r.records[to]; !ok {
			delete(r.aliases, alias)
		}
	}
	return n
}

func (r *registry) get(id string) (domain.BulkOperation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.resolveLocked(id)
	if !ok {
		return domain.BulkOperation{}, false
	}
	return r.records[key].Clone(), true
}

// rekey moves the record stored under from to to
func (r *registry) rekey(from, to string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.resolveLocked(from)
	if !ok {
		return false
	}
	rec := r.records[key]
	delete(r.records, key)
	rec.ID = to
	r.records[to] = rec
	r.aliases[key] = to
	for alias, target := range r.aliases {
		if target == key {
			r.aliases[alias] = to
		}
	}
	return true
}

// apply folds a progress frame into its record. known is false when the
// frame names an id the registry has never seen; applied is false when the
// frame was stale (processed went backwards or the record is terminal).
func (r *registry) apply(p domain.Progress) (op domain.BulkOperation, known, applied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.resolveLocked(p.OperationID)
	if !ok {
		return domain.BulkOperation{}, false, false
	}
	rec := r.records[key]
	if rec.Status.IsTerminal() || p.Processed < rec.Processed {
		return rec.Clone(), true, false
	}

	rec.Processed = p.Processed
	if p.Total > rec.Total {
		rec.Total = p.Total
	}
	if p.Status != domain.OperationPending || rec.Status == "" {
		rec.Status = p.Status
	}
	return rec.Clone(), true, true
}

// merge applies an authoritative snapshot from the status endpoint
func (r *registry) merge(id string, st domain.BulkOperation) domain.BulkOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.resolveLocked(id)
	if !ok {
		return st
	}
	rec := r.records[key]
	if st.Processed > rec.Processed {
		rec.Processed = st.Processed
	}
	if st.Total > rec.Total {
		rec.Total = st.Total
	}
	if st.Status != "" {
		rec.Status = st.Status
	}
	if len(st.Errors) > 0 {
		rec.Errors = append([]string(nil), st.Errors...)
	}
	return rec.Clone()
}

// update mutates the record in place under the lock
func (r *registry) update(id string, fn func(*domain.BulkOperation)) domain.BulkOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.resolveLocked(id)
	if !ok {
		return domain.BulkOperation{}
	}
	fn(r.records[key])
	return r.records[key].Clone()
}

// buffer keeps the latest frame for an unknown id, replacing any earlier one
func (r *registry) buffer(p domain.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = &p
}

func (r *registry) takePending() (domain.Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return domain.Progress{}, false
	}
	p := *r.pending
	r.pending = nil
	return p, true
}
