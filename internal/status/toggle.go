// Package status cycles a single company through none → liked → ignored → none
// with optimistic display and server reconciliation.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mmcdole/rolodex/internal/domain"
)

// ErrToggleInFlight is returned when a company is toggled again before the
// previous toggle finished
var ErrToggleInFlight = errors.New("status change already in progress")

// Repository is what the engine needs from the backend
type Repository interface {
	domain.BulkMutator
	domain.MembershipRepository
}

// RoleLookup maps a collection role to its id
type RoleLookup interface {
	Lookup(role domain.CollectionRole) (domain.CollectionID, bool)
}

type step struct {
	remove bool
	role   domain.CollectionRole
}

type transition struct {
	next  domain.CompanyStatus
	steps []step
}

// transitions: every status has exactly one successor
var transitions = map[domain.CompanyStatus]transition{
	domain.StatusNone:    {next: domain.StatusLiked, steps: []step{{role: domain.RoleLiked}}},
	domain.StatusLiked:   {next: domain.StatusIgnored, steps: []step{{remove: true, role: domain.RoleLiked}, {role: domain.RoleIgnored}}},
	domain.StatusIgnored: {next: domain.StatusNone, steps: []step{{remove: true, role: domain.RoleIgnored}}},
}

// Next returns the status a toggle moves s to
func Next(s domain.CompanyStatus) domain.CompanyStatus {
	return transitions[s].next
}

// Engine holds the displayed status of every seen company
type Engine struct {
	repo     Repository
	roles    RoleLookup
	observer domain.StatusObserver
	logger   *slog.Logger

	mu        sync.Mutex
	displayed map[domain.CompanyID]domain.CompanyStatus
	inFlight  map[domain.CompanyID]struct{}
}

// NewEngine creates a status engine. observer may be nil.
func NewEngine(repo Repository, roles RoleLookup, observer domain.StatusObserver, logger *slog.Logger) *Engine {
	if observer == nil {
		observer = domain.NoOpObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:      repo,
		roles:     roles,
		observer:  observer,
		logger:    logger,
		displayed: make(map[domain.CompanyID]domain.CompanyStatus),
		inFlight:  make(map[domain.CompanyID]struct{}),
	}
}

// Displayed returns the status currently shown for id
func (e *Engine) Displayed(id domain.CompanyID) domain.CompanyStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.displayed[id]
}

// Seed loads server state after a page fetch. Rows with a toggle in flight
// keep their optimistic status.
func (e *Engine) Seed(companies []domain.Company) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range companies {
		if _, busy := e.inFlight[c.ID]; busy {
			continue
		}
		e.displayed[c.ID] = c.Status()
	}
}

// Reconcile applies an authoritative row and notifies if it changed
func (e *Engine) Reconcile(id domain.CompanyID, liked, ignored bool) {
	e.set(id, domain.StatusFromFlags(liked, ignored))
}

// Toggle advances id to its next status. The new status is displayed before
// any backend call; on failure it is reverted and the row is re-fetched.
func (e *Engine) Toggle(ctx context.Context, id domain.CompanyID) (domain.CompanyStatus, error) {
	e.mu.Lock()
	if _, busy := e.inFlight[id]; busy {
		e.mu.Unlock()
		return e.Displayed(id), ErrToggleInFlight
	}
	prev := e.displayed[id]
	t := transitions[prev]
	e.inFlight[id] = struct{}{}
	e.displayed[id] = t.next
	e.mu.Unlock()

	e.observer.OnStatusChanged(id, t.next)
	defer func() {
		e.mu.Lock()
		delete(e.inFlight, id)
		e.mu.Unlock()
	}()

	if err := e.apply(ctx, id, t.steps); err != nil {
		e.logger.Error("failed to change company status",
			"error", err, "companyID", id, "from", prev.String(), "to", t.next.String())
		e.set(id, prev)
		e.refetch(ctx, id)
		return e.Displayed(id), err
	}

	e.logger.Debug("company status changed", "companyID", id, "status", t.next.String())
	return t.next, nil
}

func (e *Engine) apply(ctx context.Context, id domain.CompanyID, steps []step) error {
	ids := []domain.CompanyID{id}
	for _, s := range steps {
		coll, ok := e.roles.Lookup(s.role)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrRoleUnresolved, s.role)
		}
		var err error
		if s.remove {
			_, err = e.repo.BulkRemove(ctx, coll, ids)
		} else {
			_, err = e.repo.BulkAdd(ctx, coll, ids, uuid.Nil)
		}
		if err != nil {
			op := "add to"
			if s.remove {
				op = "remove from"
			}
			return fmt.Errorf("%s %s collection: %w", op, s.role, err)
		}
	}
	return nil
}

// refetch replaces the reverted status with the server's view. A partially
// applied transition leaves the server somewhere the revert cannot guess.
func (e *Engine) refetch(ctx context.Context, id domain.CompanyID) {
	m, err := e.repo.GetMembership(ctx, id)
	if err != nil {
		e.logger.Warn("failed to re-fetch company membership", "error", err, "companyID", id)
		return
	}
	e.set(id, m.Status())
}

func (e *Engine) set(id domain.CompanyID, s domain.CompanyStatus) {
	e.mu.Lock()
	old, seen := e.displayed[id]
	e.displayed[id] = s
	e.mu.Unlock()

	if !seen || old != s {
		e.observer.OnStatusChanged(id, s)
	}
}
