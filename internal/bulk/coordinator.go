// Package bulk drives one bulk add or remove from the user's selection to a
// terminal outcome.
//
//	Idle ─► CheckingConflicts ─► AwaitingResolution ─► Dispatching ─► Tracking ─► Terminal
//	              (add only)        (only if needed)
//
// Progress arrives over the realtime channel. All record mutation for a run
// happens on the goroutine that called Run.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mmcdole/rolodex/internal/conflict"
	"github.com/mmcdole/rolodex/internal/domain"
	"github.com/mmcdole/rolodex/internal/realtime"
)

// ErrBusy is returned when Run is called while another run is in flight
var ErrBusy = errors.New("a bulk operation is already running")

// Phase of the coordinator state machine
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCheckingConflicts
	PhaseAwaitingResolution
	PhaseDispatching
	PhaseTracking
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCheckingConflicts:
		return "checking_conflicts"
	case PhaseAwaitingResolution:
		return "awaiting_resolution"
	case PhaseDispatching:
		return "dispatching"
	case PhaseTracking:
		return "tracking"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Request describes one bulk mutation
type Request struct {
	Kind       domain.OperationKind
	Collection domain.CollectionID
	IDs        []domain.CompanyID
	Source     domain.CollectionID // collection the ids were selected from, optional
}

func (r Request) validate() error {
	if len(r.IDs) == 0 {
		return fmt.Errorf("%w: no companies selected", domain.ErrValidation)
	}
	if r.Collection == uuid.Nil {
		return fmt.Errorf("%w: no target collection", domain.ErrValidation)
	}
	if r.Kind != domain.KindAdd && r.Kind != domain.KindRemove {
		return fmt.Errorf("%w: unknown operation kind %q", domain.ErrValidation, r.Kind)
	}
	return nil
}

// Backend is the subset of the backend contract the coordinator calls
type Backend interface {
	domain.ConflictChecker
	domain.StatusChecker
	domain.BulkMutator
	domain.OperationRepository
}

// Prompter asks the user how to resolve conflicts. It blocks until answered;
// there is no timeout.
type Prompter interface {
	ChooseResolution(ctx context.Context, report domain.ConflictReport) (conflict.Action, error)
}

// PrompterFunc adapts a function to Prompter
type PrompterFunc func(ctx context.Context, report domain.ConflictReport) (conflict.Action, error)

func (f PrompterFunc) ChooseResolution(ctx context.Context, report domain.ConflictReport) (conflict.Action, error) {
	return f(ctx, report)
}

// ProgressChannel is the realtime subscription used while tracking
type ProgressChannel interface {
	Connect(operationID string)
	Close()
	Events() <-chan realtime.Event
	MaxAttempts() int
}

// Selection is cleared after a successful run
type Selection interface {
	Clear()
}

// Journal records terminal operations
type Journal interface {
	AppendOperation(op domain.BulkOperation) error
}

// Deps are the collaborators of a Coordinator. Prompter, Journal, Observer,
// Logger and Now are optional.
type Deps struct {
	Backend   Backend
	Channel   ProgressChannel
	Selection Selection
	Roles     conflict.RoleLookup
	Prompter  Prompter
	Journal   Journal
	Observer  domain.OperationObserver
	Logger    *slog.Logger
	Now       func() time.Time
}

// Coordinator runs bulk operations one at a time
type Coordinator struct {
	backend   Backend
	channel   ProgressChannel
	selection Selection
	roles     conflict.RoleLookup
	prompter  Prompter
	journal   Journal
	observer  domain.OperationObserver
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	phase Phase

	registry *registry
}

// NewCoordinator creates an idle coordinator
func NewCoordinator(d Deps) *Coordinator {
	if d.Observer == nil {
		d.Observer = domain.NoOpObserver{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Coordinator{
		backend:   d.Backend,
		channel:   d.Channel,
		selection: d.Selection,
		roles:     d.Roles,
		prompter:  d.Prompter,
		journal:   d.Journal,
		observer:  d.Observer,
		logger:    d.Logger,
		now:       d.Now,
		registry:  newRegistry(),
	}
}

// State returns the current phase
func (c *Coordinator) State() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Busy reports whether a run is in flight
func (c *Coordinator) Busy() bool {
	p := c.State()
	return p != PhaseIdle && p != PhaseTerminal
}

// Operation returns the last known record of an operation by server or
// predicted id
func (c *Coordinator) Operation(id string) (domain.BulkOperation, bool) {
	return c.registry.get(id)
}

// Run executes req to a terminal outcome. Cancelling ctx while waiting for a
// conflict answer cancels the run; cancelling it while tracking detaches from
// the operation and leaves it running on the server.
//
// The returned error is nil for succeeded, cancelled and detached outcomes.
func (c *Coordinator) Run(ctx context.Context, req Request) (domain.OperationResult, error) {
	if err := req.validate(); err != nil {
		return domain.OperationResult{Outcome: domain.OutcomeFailed, Err: err}, err
	}
	if !c.acquire() {
		return domain.OperationResult{Outcome: domain.OutcomeFailed, Err: ErrBusy}, ErrBusy
	}
	defer c.setPhase(PhaseTerminal)
	c.prune()
	return c.run(ctx, req, false)
}

// ClearStatus removes liked companies from the liked collection and ignored
// ones from the ignored collection, one tracked removal per role.
func (c *Coordinator) ClearStatus(ctx context.Context, ids []domain.CompanyID) (domain.OperationResult, error) {
	if len(ids) == 0 {
		err := fmt.Errorf("%w: no companies selected", domain.ErrValidation)
		return domain.OperationResult{Outcome: domain.OutcomeFailed, Err: err}, err
	}
	if !c.acquire() {
		return domain.OperationResult{Outcome: domain.OutcomeFailed, Err: ErrBusy}, ErrBusy
	}
	defer c.setPhase(PhaseTerminal)
	c.prune()

	summary, err := c.backend.CheckStatuses(ctx, ids)
	if err != nil {
		return c.fail(domain.BulkOperation{Kind: domain.KindRemove, Total: len(ids)}, domain.ErrDispatchFailed, err)
	}

	var last domain.OperationResult
	ran := false
	for _, group := range []struct {
		role domain.CollectionRole
		ids  []domain.CompanyID
	}{
		{domain.RoleLiked, summary.LikedIDs},
		{domain.RoleIgnored, summary.IgnoredIDs},
	} {
		if len(group.ids) == 0 {
			continue
		}
		coll, ok := c.lookupRole(group.role)
		if !ok {
			err := fmt.Errorf("%w: %s", domain.ErrRoleUnresolved, group.role)
			return c.fail(domain.BulkOperation{Kind: domain.KindRemove, Total: len(group.ids)}, domain.ErrDispatchFailed, err)
		}
		// a leg only journals its success; the selection survives until every leg is done
		res, err := c.run(ctx, Request{Kind: domain.KindRemove, Collection: coll, IDs: group.ids}, true)
		if err != nil || res.Outcome != domain.OutcomeSucceeded {
			return res, err
		}
		last, ran = res, true
	}

	if !ran {
		return c.succeedEmpty(Request{Kind: domain.KindRemove}, false), nil
	}
	c.refresh()
	c.observer.OnOperationTerminal(last)
	return last, nil
}

func (c *Coordinator) prune() {
	if n := c.registry.prune(); n > 0 {
		c.logger.Debug("pruned finished operations", "count", n)
	}
}

func (c *Coordinator) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseIdle && c.phase != PhaseTerminal {
		return false
	}
	c.phase = PhaseDispatching
	return true
}

func (c *Coordinator) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Coordinator) lookupRole(role domain.CollectionRole) (domain.CollectionID, bool) {
	if c.roles == nil {
		return uuid.Nil, false
	}
	return c.roles.Lookup(role)
}

// run drives one request to a terminal outcome. A leg is one step of a
// multi-step run: its success is journaled but leaves the epilogue to the caller.
func (c *Coordinator) run(ctx context.Context, req Request, leg bool) (domain.OperationResult, error) {
	ids := dedupe(req.IDs)
	base := domain.BulkOperation{Kind: req.Kind, CollectionID: req.Collection, Total: len(ids)}

	final := ids
	var removals map[domain.CollectionID][]domain.CompanyID

	if req.Kind == domain.KindAdd {
		c.setPhase(PhaseCheckingConflicts)
		report, err := c.backend.CheckConflicts(ctx, ids, req.Collection)
		if err == nil {
			err = report.Validate()
		}
		if err != nil {
			if ctx.Err() != nil {
				return c.cancelled(base), nil
			}
			return c.fail(base, domain.ErrConflictCheckFailed, err)
		}

		action := conflict.ActionSkip
		if report.NeedsResolution() {
			c.setPhase(PhaseAwaitingResolution)
			action = c.choose(ctx, report)
			if action == conflict.ActionCancel {
				return c.cancelled(base), nil
			}
		}

		final = conflict.Resolve(report, action)
		if action == conflict.ActionMove {
			removals, err = conflict.Removals(report, roleLookup{c})
			if err != nil {
				return c.fail(base, domain.ErrDispatchFailed, err)
			}
		}
	}

	c.setPhase(PhaseDispatching)
	if len(final) == 0 {
		c.logger.Info("nothing to dispatch", "kind", req.Kind, "collection", req.Collection)
		return c.succeedEmpty(req, leg), nil
	}
	base.Total = len(final)

	if err := c.removeConflicting(ctx, removals); err != nil {
		return c.fail(base, domain.ErrDispatchFailed, err)
	}

	return c.dispatchAndTrack(ctx, req, final, leg)
}

func (c *Coordinator) choose(ctx context.Context, report domain.ConflictReport) conflict.Action {
	if c.prompter == nil {
		c.logger.Warn("conflicts found but no prompter configured, cancelling")
		return conflict.ActionCancel
	}
	action, err := c.prompter.ChooseResolution(ctx, report)
	if err != nil || ctx.Err() != nil {
		if err != nil && !errors.Is(err, domain.ErrResolutionCancelled) && !errors.Is(err, context.Canceled) {
			c.logger.Warn("conflict prompt failed, cancelling", "error", err)
		}
		return conflict.ActionCancel
	}
	return action
}

// removeConflicting takes moved companies out of the collections that caused
// their conflicts, one request per collection in parallel.
func (c *Coordinator) removeConflicting(ctx context.Context, removals map[domain.CollectionID][]domain.CompanyID) error {
	if len(removals) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for coll, ids := range removals {
		g.Go(func() error {
			if _, err := c.backend.BulkRemove(gctx, coll, ids); err != nil {
				return fmt.Errorf("removing %d companies from %s: %w", len(ids), coll, err)
			}
			return nil
		})
	}
	return g.Wait()
}

type dispatchResult struct {
	receipt domain.Receipt
	err     error
}

// tracking is the per-run state of the Tracking phase
type tracking struct {
	req        Request
	current    string // id the channel is subscribed to
	leg        bool
	dispatched bool
	lost       bool
	results    <-chan dispatchResult
}

func (c *Coordinator) dispatchAndTrack(ctx context.Context, req Request, ids []domain.CompanyID, leg bool) (domain.OperationResult, error) {
	c.drain()
	started := c.now()
	predicted := PredictID(req.Kind, req.Collection, started)
	c.registry.create(domain.BulkOperation{
		ID:           predicted,
		Kind:         req.Kind,
		CollectionID: req.Collection,
		Status:       domain.OperationPending,
		Total:        len(ids),
		StartedAt:    started,
	})

	// Subscribe before the mutate call so no early frame is missed
	c.channel.Connect(predicted)

	results := make(chan dispatchResult, 1)
	dispatchCtx := context.WithoutCancel(ctx)
	go func() {
		var (
			r   domain.Receipt
			err error
		)
		if req.Kind == domain.KindAdd {
			r, err = c.backend.BulkAdd(dispatchCtx, req.Collection, ids, req.Source)
		} else {
			r, err = c.backend.BulkRemove(dispatchCtx, req.Collection, ids)
		}
		results <- dispatchResult{receipt: r, err: err}
	}()

	c.setPhase(PhaseTracking)
	c.logger.Info("bulk operation dispatched",
		"operationID", predicted, "kind", req.Kind, "collection", req.Collection, "count", len(ids))

	return c.track(ctx, &tracking{req: req, current: predicted, leg: leg, results: results})
}

// drain discards events left over from an earlier run
func (c *Coordinator) drain() {
	events := c.channel.Events()
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}

// finish is a terminal outcome reached inside the tracking loop
type finish struct {
	res domain.OperationResult
	err error
}

func (c *Coordinator) track(ctx context.Context, tr *tracking) (domain.OperationResult, error) {
	events := c.channel.Events()
	for {
		var f *finish
		select {
		case <-ctx.Done():
			return c.detach(tr), nil
		case res := <-tr.results:
			tr.results = nil
			f = c.onDispatched(ctx, tr, res)
		case ev := <-events:
			f = c.onEvent(ctx, tr, ev)
		}
		if f != nil {
			return f.res, f.err
		}
	}
}

func (c *Coordinator) onDispatched(ctx context.Context, tr *tracking, res dispatchResult) *finish {
	tr.dispatched = true
	if res.err != nil {
		return c.failTracked(tr, domain.ErrDispatchFailed, res.err)
	}

	r := res.receipt
	if r.OperationID != "" && r.OperationID != tr.current {
		c.logger.Warn("operation id differs from prediction, re-keying",
			"predicted", tr.current, "actual", r.OperationID)
		c.registry.rekey(tr.current, r.OperationID)
		tr.current = r.OperationID
		c.channel.Connect(r.OperationID)
	}

	op := c.registry.update(tr.current, func(op *domain.BulkOperation) {
		if r.Total > op.Total {
			op.Total = r.Total
		}
		if r.Processed > op.Processed {
			op.Processed = r.Processed
		}
	})
	c.progress(op, 0)

	if p, ok := c.registry.takePending(); ok {
		if f := c.onProgress(ctx, tr, p); f != nil {
			return f
		}
	}
	if tr.lost {
		return c.fallback(ctx, tr)
	}
	return nil
}

func (c *Coordinator) onEvent(ctx context.Context, tr *tracking, ev realtime.Event) *finish {
	if ev.Type == realtime.EventProgress {
		p := ev.Progress
		if p.OperationID == "" {
			p.OperationID = ev.OperationID
		}
		return c.onProgress(ctx, tr, p)
	}

	if ev.OperationID != tr.current {
		return nil // stale session
	}
	op, _ := c.registry.get(tr.current)
	switch ev.State {
	case realtime.StateReconnecting:
		c.logger.Warn("progress channel reconnecting", "operationID", tr.current, "attempt", ev.Attempt)
		c.progress(op, ev.Attempt)
	case realtime.StateOpen:
		c.progress(op, 0)
	case realtime.StateLost, realtime.StateClosedClean:
		tr.lost = true
		if tr.dispatched {
			return c.fallback(ctx, tr)
		}
	}
	return nil
}

func (c *Coordinator) onProgress(ctx context.Context, tr *tracking, p domain.Progress) *finish {
	known, mine := c.registry.owns(tr.current, p.OperationID)
	if !known {
		if !tr.dispatched {
			c.registry.buffer(p)
		} else {
			c.logger.Debug("dropping progress for unknown operation", "operationID", p.OperationID)
		}
		return nil
	}
	if !mine {
		c.logger.Debug("dropping progress for another operation",
			"operationID", p.OperationID, "current", tr.current)
		return nil
	}

	op, _, applied := c.registry.apply(p)
	if !applied {
		return nil
	}

	c.progress(op, 0)
	switch p.Status {
	case domain.OperationCompleted:
		return c.succeed(ctx, tr, op, false)
	case domain.OperationFailed:
		return c.failTracked(tr, domain.ErrOperationFailed, nil)
	}
	return nil
}

// fallback asks the status endpoint once after the channel gave up
func (c *Coordinator) fallback(ctx context.Context, tr *tracking) *finish {
	c.channel.Close()
	st, err := c.backend.OperationStatus(ctx, tr.current)
	if err != nil {
		c.logger.Warn("fallback status fetch failed", "error", err, "operationID", tr.current)
		return c.failTracked(tr, domain.ErrTrackingLost, err)
	}
	op := c.registry.merge(tr.current, st)
	switch st.Status {
	case domain.OperationCompleted:
		return c.succeed(ctx, tr, op, true)
	case domain.OperationFailed:
		return c.failTracked(tr, domain.ErrOperationFailed, nil)
	default:
		return c.failTracked(tr, domain.ErrTrackingLost, nil)
	}
}

func (c *Coordinator) succeed(ctx context.Context, tr *tracking, op domain.BulkOperation, haveErrors bool) *finish {
	c.channel.Close()

	if !haveErrors {
		// best effort: the push channel does not carry per-item errors
		if st, err := c.backend.OperationStatus(ctx, tr.current); err != nil {
			c.logger.Debug("could not fetch operation errors", "error", err, "operationID", tr.current)
		} else {
			op = c.registry.merge(tr.current, st)
		}
	}

	completed := c.now()
	op = c.registry.update(tr.current, func(rec *domain.BulkOperation) {
		rec.Status = domain.OperationCompleted
		rec.CompletedAt = &completed
	})

	result := domain.OperationResult{Outcome: domain.OutcomeSucceeded, Operation: op}
	if len(op.Errors) > 0 && op.Processed < op.Total {
		result.Warning = &domain.OperationError{Kind: domain.ErrPartialFailure, Op: op}
		c.logger.Warn("bulk operation completed with errors",
			"operationID", op.ID, "processed", op.Processed, "total", op.Total, "errors", len(op.Errors))
	} else {
		c.logger.Info("bulk operation completed", "operationID", op.ID, "processed", op.Processed)
	}

	c.done(result, tr.leg)
	return &finish{res: result}
}

func (c *Coordinator) succeedEmpty(req Request, leg bool) domain.OperationResult {
	now := c.now()
	result := domain.OperationResult{
		Outcome: domain.OutcomeSucceeded,
		Operation: domain.BulkOperation{
			Kind:         req.Kind,
			CollectionID: req.Collection,
			Status:       domain.OperationCompleted,
			StartedAt:    now,
			CompletedAt:  &now,
		},
	}
	c.done(result, leg)
	return result
}

// done ends a successful run
func (c *Coordinator) done(result domain.OperationResult, leg bool) {
	if leg {
		c.record(result.Operation)
		return
	}
	c.refresh()
	c.terminal(result)
}

// refresh is the success epilogue: clear the selection and refresh the view
func (c *Coordinator) refresh() {
	if c.selection != nil {
		c.selection.Clear()
	}
	c.observer.OnViewRefresh()
}

func (c *Coordinator) failTracked(tr *tracking, kind, cause error) *finish {
	c.channel.Close()
	completed := c.now()
	op := c.registry.update(tr.current, func(rec *domain.BulkOperation) {
		if kind == domain.ErrOperationFailed {
			rec.Status = domain.OperationFailed
			rec.CompletedAt = &completed
		}
	})
	res, err := c.fail(op, kind, cause)
	return &finish{res: res, err: err}
}

// fail reports a terminal failure; the selection is left intact
func (c *Coordinator) fail(op domain.BulkOperation, kind, cause error) (domain.OperationResult, error) {
	err := &domain.OperationError{Kind: kind, Op: op, Err: cause}
	c.logger.Error("bulk operation failed", "error", err, "operationID", op.ID, "kind", op.Kind)
	result := domain.OperationResult{Outcome: domain.OutcomeFailed, Operation: op, Err: err}
	c.terminal(result)
	return result, err
}

func (c *Coordinator) cancelled(op domain.BulkOperation) domain.OperationResult {
	c.logger.Info("bulk operation cancelled", "kind", op.Kind, "collection", op.CollectionID)
	result := domain.OperationResult{Outcome: domain.OutcomeCancelled, Operation: op}
	c.terminal(result)
	return result
}

// detach stops listening; the server keeps working
func (c *Coordinator) detach(tr *tracking) domain.OperationResult {
	c.channel.Close()
	op, _ := c.registry.get(tr.current)
	c.logger.Info("detached from bulk operation", "operationID", op.ID, "processed", op.Processed, "total", op.Total)
	result := domain.OperationResult{Outcome: domain.OutcomeDetached, Operation: op}
	c.terminal(result)
	return result
}

func (c *Coordinator) terminal(result domain.OperationResult) {
	c.record(result.Operation)
	c.observer.OnOperationTerminal(result)
}

func (c *Coordinator) record(op domain.BulkOperation) {
	if c.journal == nil || op.ID == "" {
		return
	}
	if err := c.journal.AppendOperation(op); err != nil {
		c.logger.Error("failed to journal operation", "error", err, "operationID", op.ID)
	}
}

func (c *Coordinator) progress(op domain.BulkOperation, attempt int) {
	c.observer.OnOperationProgress(domain.OperationUpdate{
		Operation:   op,
		Attempt:     attempt,
		MaxAttempts: c.channel.MaxAttempts(),
	})
}

// roleLookup adapts the coordinator's optional roles to conflict.RoleLookup
type roleLookup struct{ c *Coordinator }

func (r roleLookup) Lookup(role domain.CollectionRole) (domain.CollectionID, bool) {
	return r.c.lookupRole(role)
}

func dedupe(ids []domain.CompanyID) []domain.CompanyID {
	seen := make(map[domain.CompanyID]struct{}, len(ids))
	out := make([]domain.CompanyID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
