package bulk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/rolodex/internal/conflict"
	"github.com/mmcdole/rolodex/internal/domain"
	"github.com/mmcdole/rolodex/internal/realtime"
)

var (
	fixedNow   = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	target     = uuid.MustParse("6f1c2e1a-8f5e-4a39-9b0e-1d2c3b4a5f60")
	source     = uuid.MustParse("0b7d3c44-2a55-4e7f-8c11-9e6a5b4c3d20")
	likedID    = uuid.MustParse("a1a1a1a1-0000-4000-8000-000000000001")
	ignoredID  = uuid.MustParse("b2b2b2b2-0000-4000-8000-000000000002")
	errNetwork = errors.New("connection refused")
)

// ── fakes ──────────────────────────────────────────────────────────────────

type fakeChannel struct {
	mu        sync.Mutex
	events    chan realtime.Event
	connects  []string
	closes    int
	onConnect func(id string)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan realtime.Event, 256)}
}

func (f *fakeChannel) Connect(id string) {
	f.mu.Lock()
	f.connects = append(f.connects, id)
	hook := f.onConnect
	f.mu.Unlock()
	if hook != nil && id != "" {
		hook(id)
	}
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

func (f *fakeChannel) Events() <-chan realtime.Event { return f.events }
func (f *fakeChannel) MaxAttempts() int              { return 5 }

func (f *fakeChannel) progress(id string, processed, total int, status domain.OperationStatus) {
	f.events <- realtime.Event{
		Type:        realtime.EventProgress,
		OperationID: id,
		State:       realtime.StateOpen,
		Progress: domain.Progress{
			OperationID: id,
			Processed:   processed,
			Total:       total,
			Status:      status,
		},
	}
}

func (f *fakeChannel) state(id string, st realtime.State, attempt int) {
	f.events <- realtime.Event{Type: realtime.EventState, OperationID: id, State: st, Attempt: attempt}
}

func (f *fakeChannel) connected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connects...)
}

type mutation struct {
	kind       domain.OperationKind
	collection domain.CollectionID
	ids        []domain.CompanyID
	source     domain.CollectionID
}

type fakeBackend struct {
	mu sync.Mutex

	report      domain.ConflictReport
	conflictErr error
	summary     domain.StatusSummary

	receiptID string // overrides the predicted id when set
	addErr    error
	removeErr error
	adds      []mutation
	removes   []mutation

	status      domain.BulkOperation
	statusErr   error
	statusCalls int

	// onMutate runs inside BulkAdd/BulkRemove with the id the receipt carries
	onMutate func(m mutation, opID string)
}

func (b *fakeBackend) CheckConflicts(_ context.Context, ids []domain.CompanyID, _ domain.CollectionID) (domain.ConflictReport, error) {
	if b.conflictErr != nil {
		return domain.ConflictReport{}, b.conflictErr
	}
	if b.report.TotalChecked == 0 {
		return domain.ConflictReport{SafeToAdd: ids, TotalChecked: len(ids)}, nil
	}
	return b.report, nil
}

func (b *fakeBackend) CheckStatuses(context.Context, []domain.CompanyID) (domain.StatusSummary, error) {
	return b.summary, nil
}

func (b *fakeBackend) BulkAdd(_ context.Context, coll domain.CollectionID, ids []domain.CompanyID, src domain.CollectionID) (domain.Receipt, error) {
	return b.mutate(mutation{kind: domain.KindAdd, collection: coll, ids: ids, source: src}, b.addErr)
}

func (b *fakeBackend) BulkRemove(_ context.Context, coll domain.CollectionID, ids []domain.CompanyID) (domain.Receipt, error) {
	return b.mutate(mutation{kind: domain.KindRemove, collection: coll, ids: ids}, b.removeErr)
}

func (b *fakeBackend) mutate(m mutation, err error) (domain.Receipt, error) {
	b.mu.Lock()
	if m.kind == domain.KindAdd {
		b.adds = append(b.adds, m)
	} else {
		b.removes = append(b.removes, m)
	}
	id := b.receiptID
	hook := b.onMutate
	b.mu.Unlock()

	if err != nil {
		return domain.Receipt{}, err
	}
	if id == "" {
		id = PredictID(m.kind, m.collection, fixedNow)
	}
	if hook != nil {
		hook(m, id)
	}
	return domain.Receipt{OperationID: id, Status: domain.OperationPending, Total: len(m.ids)}, nil
}

func (b *fakeBackend) OperationStatus(_ context.Context, id string) (domain.BulkOperation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusCalls++
	if b.statusErr != nil {
		return domain.BulkOperation{}, b.statusErr
	}
	st := b.status
	st.ID = id
	return st, nil
}

func (b *fakeBackend) addCalls() []mutation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]mutation(nil), b.adds...)
}

func (b *fakeBackend) removeCalls() []mutation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]mutation(nil), b.removes...)
}

type fakeSelection struct {
	mu      sync.Mutex
	cleared int
}

func (s *fakeSelection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
}

func (s *fakeSelection) clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleared
}

type fakeObserver struct {
	mu         sync.Mutex
	updates    []domain.OperationUpdate
	results    []domain.OperationResult
	refreshes  int
	onProgress func(domain.OperationUpdate)
}

func (o *fakeObserver) OnOperationProgress(u domain.OperationUpdate) {
	o.mu.Lock()
	o.updates = append(o.updates, u)
	hook := o.onProgress
	o.mu.Unlock()
	if hook != nil {
		hook(u)
	}
}

func (o *fakeObserver) OnOperationTerminal(r domain.OperationResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, r)
}

func (o *fakeObserver) OnViewRefresh() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refreshes++
}

type fakeJournal struct {
	mu  sync.Mutex
	ops []domain.BulkOperation
}

func (j *fakeJournal) AppendOperation(op domain.BulkOperation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ops = append(j.ops, op)
	return nil
}

type roles map[domain.CollectionRole]domain.CollectionID

func (r roles) Lookup(role domain.CollectionRole) (domain.CollectionID, bool) {
	id, ok := r[role]
	return id, ok
}

type harness struct {
	backend   *fakeBackend
	channel   *fakeChannel
	selection *fakeSelection
	observer  *fakeObserver
	journal   *fakeJournal
	coord     *Coordinator
}

func newHarness(prompter Prompter) *harness {
	h := &harness{
		backend:   &fakeBackend{},
		channel:   newFakeChannel(),
		selection: &fakeSelection{},
		observer:  &fakeObserver{},
		journal:   &fakeJournal{},
	}
	h.coord = NewCoordinator(Deps{
		Backend:   h.backend,
		Channel:   h.channel,
		Selection: h.selection,
		Roles:     roles{domain.RoleLiked: likedID, domain.RoleIgnored: ignoredID},
		Prompter:  prompter,
		Journal:   h.journal,
		Observer:  h.observer,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return fixedNow },
	})
	return h
}

// completes makes every tracked mutation finish immediately
func (h *harness) completes() {
	h.backend.onMutate = func(m mutation, id string) {
		h.channel.progress(id, len(m.ids), len(m.ids), domain.OperationCompleted)
	}
}

func answer(a conflict.Action) Prompter {
	return PrompterFunc(func(context.Context, domain.ConflictReport) (conflict.Action, error) {
		return a, nil
	})
}

func companyIDs(from, to int) []domain.CompanyID {
	var out []domain.CompanyID
	for i := from; i <= to; i++ {
		out = append(out, domain.CompanyID(i))
	}
	return out
}

func addRequest(ids []domain.CompanyID) Request {
	return Request{Kind: domain.KindAdd, Collection: target, IDs: ids, Source: source}
}

// ── happy paths ────────────────────────────────────────────────────────────

func TestAddWithoutConflictsTracksToCompletion(t *testing.T) {
	h := newHarness(nil)
	h.backend.onMutate = func(m mutation, id string) {
		h.channel.progress(id, 1, 3, domain.OperationInProgress)
		h.channel.progress(id, 3, 3, domain.OperationCompleted)
	}

	res, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 3)))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, PredictID(domain.KindAdd, target, fixedNow), res.Operation.ID)
	assert.Equal(t, domain.OperationCompleted, res.Operation.Status)
	assert.Equal(t, 3, res.Operation.Processed)
	assert.NotNil(t, res.Operation.CompletedAt)
	assert.Nil(t, res.Warning)

	adds := h.backend.addCalls()
	require.Len(t, adds, 1)
	assert.Equal(t, companyIDs(1, 3), adds[0].ids)
	assert.Equal(t, source, adds[0].source)

	assert.Equal(t, 1, h.selection.clears())
	assert.Equal(t, 1, h.observer.refreshes)
	require.Len(t, h.observer.results, 1)
	assert.Equal(t, domain.OutcomeSucceeded, h.observer.results[0].Outcome)
	require.Len(t, h.journal.ops, 1)
	assert.Equal(t, res.Operation.ID, h.journal.ops[0].ID)
	assert.False(t, h.coord.Busy())
}

func TestChannelOpenedBeforeDispatch(t *testing.T) {
	h := newHarness(nil)
	var connectedAtDispatch []string
	h.backend.onMutate = func(m mutation, id string) {
		connectedAtDispatch = h.channel.connected()
		h.channel.progress(id, 2, 2, domain.OperationCompleted)
	}

	_, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 2)))

	require.NoError(t, err)
	assert.Equal(t, []string{PredictID(domain.KindAdd, target, fixedNow)}, connectedAtDispatch)
}

func TestReconnectThenCompletedSucceeds(t *testing.T) {
	h := newHarness(nil)
	h.backend.onMutate = func(m mutation, id string) {
		h.channel.progress(id, 0, 200, domain.OperationInProgress)
		h.channel.state(id, realtime.StateClosedError, 0)
		h.channel.state(id, realtime.StateReconnecting, 1)
		h.channel.state(id, realtime.StateOpen, 0)
		h.channel.progress(id, 200, 200, domain.OperationCompleted)
	}

	res, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 200)))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, 200, res.Operation.Processed)
	assert.Equal(t, 1, h.selection.clears())

	var sawReconnect bool
	for _, u := range h.observer.updates {
		if u.Reconnecting() {
			sawReconnect = true
			assert.Equal(t, 1, u.Attempt)
			assert.Equal(t, 5, u.MaxAttempts)
		}
	}
	assert.True(t, sawReconnect)
}

func TestOutOfOrderProgressIsDropped(t *testing.T) {
	h := newHarness(nil)
	h.backend.onMutate = func(m mutation, id string) {
		h.channel.progress(id, 50, 100, domain.OperationInProgress)
		h.channel.progress(id, 30, 100, domain.OperationInProgress)
		h.channel.progress(id, 100, 100, domain.OperationCompleted)
	}

	_, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 100)))
	require.NoError(t, err)

	last := -1
	for _, u := range h.observer.updates {
		assert.GreaterOrEqual(t, u.Operation.Processed, last)
		assert.NotEqual(t, 30, u.Operation.Processed)
		last = u.Operation.Processed
	}
}

func TestRekeyWhenServerIDDiffers(t *testing.T) {
	h := newHarness(nil)
	predicted := PredictID(domain.KindAdd, target, fixedNow)
	actual := "add_" + target.String() + "_1792065601"
	h.backend.receiptID = actual
	h.backend.onMutate = func(m mutation, id string) {
		// frame for the real id races the receipt
		h.channel.progress(actual, 10, 20, domain.OperationInProgress)
	}
	h.channel.onConnect = func(id string) {
		if id == actual {
			h.channel.progress(actual, 20, 20, domain.OperationCompleted)
		}
	}

	res, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 20)))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, actual, res.Operation.ID)
	assert.Equal(t, []string{predicted, actual}, h.channel.connected())

	aliased, ok := h.coord.Operation(predicted)
	require.True(t, ok, "predicted id stays resolvable")
	assert.Equal(t, actual, aliased.ID)

	var processed []int
	for _, u := range h.observer.updates {
		processed = append(processed, u.Operation.Processed)
	}
	assert.Contains(t, processed, 10, "buffered frame applied after rekey")
}

// ── conflicts ──────────────────────────────────────────────────────────────

func scenario150() domain.ConflictReport {
	selected := companyIDs(1, 150)
	conflicts := make([]domain.Conflict, 0, 5)
	for _, id := range selected[10:15] {
		conflicts = append(conflicts, domain.Conflict{CompanyID: id, Type: domain.ConflictInLiked})
	}
	return domain.ConflictReport{
		Duplicates:   selected[:10],
		Conflicts:    conflicts,
		SafeToAdd:    selected[15:],
		TotalChecked: 150,
	}
}

func TestMoveRemovesFromRoleCollectionThenAdds(t *testing.T) {
	h := newHarness(answer(conflict.ActionMove))
	h.backend.report = scenario150()
	h.backend.onMutate = func(m mutation, id string) {
		if m.collection == target {
			h.channel.progress(id, len(m.ids), len(m.ids), domain.OperationCompleted)
		}
	}

	res, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 150)))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)

	removes := h.backend.removeCalls()
	require.Len(t, removes, 1)
	assert.Equal(t, likedID, removes[0].collection)
	assert.Equal(t, companyIDs(11, 15), removes[0].ids)

	adds := h.backend.addCalls()
	require.Len(t, adds, 1)
	assert.Len(t, adds[0].ids, 140)
	assert.Equal(t, 140, res.Operation.Total)
}

func TestSkipDispatchesSafeOnly(t *testing.T) {
	h := newHarness(answer(conflict.ActionSkip))
	h.backend.report = scenario150()
	h.completes()

	_, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 150)))

	require.NoError(t, err)
	assert.Empty(t, h.backend.removeCalls())
	adds := h.backend.addCalls()
	require.Len(t, adds, 1)
	assert.Equal(t, companyIDs(16, 150), adds[0].ids)
}

func TestCancelAtPromptMakesNoCalls(t *testing.T) {
	h := newHarness(answer(conflict.ActionCancel))
	h.backend.report = scenario150()

	res, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 150)))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCancelled, res.Outcome)
	assert.Empty(t, h.backend.addCalls())
	assert.Empty(t, h.backend.removeCalls())
	assert.Empty(t, h.channel.connected())
	assert.Zero(t, h.selection.clears())
	require.Len(t, h.observer.results, 1)
	assert.Equal(t, domain.OutcomeCancelled, h.observer.results[0].Outcome)
}

func TestContextCancelledWhilePromptingCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(PrompterFunc(func(ctx context.Context, _ domain.ConflictReport) (conflict.Action, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}))
	h.backend.report = scenario150()

	res, err := h.coord.Run(ctx, addRequest(companyIDs(1, 150)))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCancelled, res.Outcome)
	assert.Empty(t, h.backend.addCalls())
}

func TestAllDuplicatesIsEmptySuccess(t *testing.T) {
	h := newHarness(answer(conflict.ActionMove))
	h.backend.report = domain.ConflictReport{Duplicates: companyIDs(1, 4), TotalChecked: 4}

	res, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 4)))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.Zero(t, res.Operation.Total)
	assert.Empty(t, h.backend.addCalls())
	assert.Empty(t, h.channel.connected())
}

func TestRemoveSkipsConflictCheck(t *testing.T) {
	h := newHarness(nil)
	h.backend.conflictErr = errNetwork // would fail if called
	h.completes()

	res, err := h.coord.Run(context.Background(), Request{Kind: domain.KindRemove, Collection: target, IDs: companyIDs(1, 5)})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.Len(t, h.backend.removeCalls(), 1)
}

// ── failures ───────────────────────────────────────────────────────────────

func TestConflictCheckFailure(t *testing.T) {
	h := newHarness(nil)
	h.backend.conflictErr = errNetwork

	res, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 3)))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflictCheckFailed)
	assert.ErrorIs(t, err, errNetwork)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Empty(t, h.backend.addCalls())
	assert.Empty(t, h.channel.connected())
	assert.Zero(t, h.selection.clears())
}

func TestDispatchFailureLeavesSelection(t *testing.T) {
	h := newHarness(nil)
	h.backend.addErr = errNetwork

	res, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 3)))

	assert.ErrorIs(t, err, domain.ErrDispatchFailed)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Zero(t, h.selection.clears())
	assert.Zero(t, h.observer.refreshes)
	assert.Positive(t, h.channel.closes)
}

func TestMoveRemovalFailureIsDispatchFailure(t *testing.T) {
	h := newHarness(answer(conflict.ActionMove))
	h.backend.report = scenario150()
	h.backend.removeErr = errNetwork

	_, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 150)))

	assert.ErrorIs(t, err, domain.ErrDispatchFailed)
	assert.Empty(t, h.backend.addCalls())
}

func TestServerReportsFailure(t *testing.T) {
	h := newHarness(nil)
	h.backend.onMutate = func(m mutation, id string) {
		h.channel.progress(id, 40, 100, domain.OperationInProgress)
		h.channel.progress(id, 40, 100, domain.OperationFailed)
	}

	res, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 100)))

	assert.ErrorIs(t, err, domain.ErrOperationFailed)
	var opErr *domain.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, 40, opErr.Op.Processed)
	assert.Equal(t, domain.OperationFailed, res.Operation.Status)
	assert.Zero(t, h.selection.clears())
	require.Len(t, h.journal.ops, 1)
	assert.Equal(t, domain.OperationFailed, h.journal.ops[0].Status)
}

func TestTrackingLostFallsBackOnce(t *testing.T) {
	h := newHarness(nil)
	h.backend.status = domain.BulkOperation{Status: domain.OperationInProgress, Processed: 60, Total: 200}
	h.backend.onMutate = func(m mutation, id string) {
		h.channel.progress(id, 50, 200, domain.OperationInProgress)
		h.channel.state(id, realtime.StateLost, 5)
	}

	res, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 200)))

	assert.ErrorIs(t, err, domain.ErrTrackingLost)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Equal(t, 60, res.Operation.Processed, "last known progress from fallback")
	assert.Equal(t, 1, h.backend.statusCalls)
	assert.Zero(t, h.selection.clears())
}

func TestTrackingLostButCompletedOnServer(t *testing.T) {
	h := newHarness(nil)
	h.backend.status = domain.BulkOperation{Status: domain.OperationCompleted, Processed: 200, Total: 200}
	h.backend.onMutate = func(m mutation, id string) {
		h.channel.state(id, realtime.StateLost, 5)
	}

	res, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 200)))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, 1, h.selection.clears())
}

func TestPartialFailureIsWarning(t *testing.T) {
	h := newHarness(nil)
	h.backend.status = domain.BulkOperation{
		Status:    domain.OperationCompleted,
		Processed: 190,
		Total:     200,
		Errors:    []string{"Error adding company 7: duplicate key"},
	}
	h.backend.onMutate = func(m mutation, id string) {
		h.channel.progress(id, 190, 200, domain.OperationCompleted)
	}

	res, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 200)))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.ErrorIs(t, res.Warning, domain.ErrPartialFailure)
	assert.Len(t, res.Operation.Errors, 1)
}

func TestCancelWhileTrackingDetaches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(nil)
	h.backend.onMutate = func(m mutation, id string) {
		h.channel.progress(id, 10, 100, domain.OperationInProgress)
	}
	h.observer.onProgress = func(u domain.OperationUpdate) {
		if u.Operation.Processed == 10 {
			cancel()
		}
	}

	res, err := h.coord.Run(ctx, addRequest(companyIDs(1, 100)))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDetached, res.Outcome)
	assert.Zero(t, h.selection.clears())
	assert.Positive(t, h.channel.closes)
	assert.Len(t, h.backend.addCalls(), 1, "server work is not cancelled")
}

func TestLateFrameFromDetachedRunIsIgnored(t *testing.T) {
	h := newHarness(nil)
	first := PredictID(domain.KindAdd, target, fixedNow)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.backend.onMutate = func(m mutation, id string) {
		h.channel.progress(id, 10, 100, domain.OperationInProgress)
	}
	h.observer.onProgress = func(u domain.OperationUpdate) {
		if u.Operation.Processed == 10 {
			cancel()
		}
	}
	res, err := h.coord.Run(ctx, addRequest(companyIDs(1, 100)))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeDetached, res.Outcome)

	// left over in the buffer, and another one arriving once the next run subscribes
	h.channel.progress(first, 100, 100, domain.OperationCompleted)
	h.backend.onMutate = nil
	h.observer.mu.Lock()
	h.observer.onProgress = nil
	h.observer.updates = nil
	h.observer.mu.Unlock()
	h.channel.onConnect = func(id string) {
		if id != first {
			h.channel.progress(first, 100, 100, domain.OperationCompleted)
		}
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel2()
	res, err = h.coord.Run(ctx2, Request{Kind: domain.KindAdd, Collection: source, IDs: companyIDs(1, 5)})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDetached, res.Outcome)
	assert.Equal(t, PredictID(domain.KindAdd, source, fixedNow), res.Operation.ID)
	assert.NotEqual(t, domain.OperationCompleted, res.Operation.Status)
	assert.Zero(t, h.selection.clears())
	assert.Zero(t, h.observer.refreshes)
	for _, u := range h.observer.updates {
		assert.NotEqual(t, first, u.Operation.ID, "progress of the detached run leaked")
	}
}

// ── guards ─────────────────────────────────────────────────────────────────

func TestValidationRejectsEmptySelection(t *testing.T) {
	h := newHarness(nil)

	_, err := h.coord.Run(context.Background(), addRequest(nil))

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, h.backend.addCalls())
	assert.Empty(t, h.observer.results)
}

func TestSecondRunWhileBusy(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(PrompterFunc(func(ctx context.Context, _ domain.ConflictReport) (conflict.Action, error) {
		<-release
		return conflict.ActionCancel, nil
	}))
	h.backend.report = scenario150()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.coord.Run(context.Background(), addRequest(companyIDs(1, 150)))
	}()

	require.Eventually(t, func() bool {
		return h.coord.State() == PhaseAwaitingResolution
	}, time.Second, time.Millisecond)
	assert.True(t, h.coord.Busy())

	_, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 2)))
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	<-done
	assert.False(t, h.coord.Busy())
}

// ── clear status ───────────────────────────────────────────────────────────

func TestClearStatusRemovesFromEachRole(t *testing.T) {
	h := newHarness(nil)
	h.backend.summary = domain.StatusSummary{
		LikedCount:   2,
		IgnoredCount: 1,
		LikedIDs:     companyIDs(1, 2),
		IgnoredIDs:   companyIDs(3, 3),
	}
	h.completes()

	res, err := h.coord.ClearStatus(context.Background(), companyIDs(1, 4))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)

	removes := h.backend.removeCalls()
	require.Len(t, removes, 2)
	assert.Equal(t, likedID, removes[0].collection)
	assert.Equal(t, companyIDs(1, 2), removes[0].ids)
	assert.Equal(t, ignoredID, removes[1].collection)
	assert.Equal(t, companyIDs(3, 3), removes[1].ids)
}

func TestClearStatusLaterLegFailureKeepsSelection(t *testing.T) {
	h := newHarness(nil)
	h.backend.summary = domain.StatusSummary{
		LikedCount:   2,
		IgnoredCount: 1,
		LikedIDs:     companyIDs(1, 2),
		IgnoredIDs:   companyIDs(3, 3),
	}
	h.backend.onMutate = func(m mutation, id string) {
		h.channel.progress(id, len(m.ids), len(m.ids), domain.OperationCompleted)
		if m.collection == likedID {
			h.backend.mu.Lock()
			h.backend.removeErr = errNetwork
			h.backend.mu.Unlock()
		}
	}

	res, err := h.coord.ClearStatus(context.Background(), companyIDs(1, 4))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDispatchFailed)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Zero(t, h.selection.clears())
	assert.Zero(t, h.observer.refreshes)

	require.Len(t, h.observer.results, 1, "only the failure is reported")
	assert.Equal(t, domain.OutcomeFailed, h.observer.results[0].Outcome)
	require.Len(t, h.journal.ops, 2, "the finished liked leg is still journaled")
	assert.Equal(t, PredictID(domain.KindRemove, likedID, fixedNow), h.journal.ops[0].ID)
	assert.Equal(t, domain.OperationCompleted, h.journal.ops[0].Status)
}

func TestClearStatusSucceedsOnce(t *testing.T) {
	h := newHarness(nil)
	h.backend.summary = domain.StatusSummary{
		LikedCount:   1,
		IgnoredCount: 1,
		LikedIDs:     companyIDs(1, 1),
		IgnoredIDs:   companyIDs(2, 2),
	}
	h.completes()

	res, err := h.coord.ClearStatus(context.Background(), companyIDs(1, 2))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, 1, h.selection.clears())
	assert.Equal(t, 1, h.observer.refreshes)
	assert.Len(t, h.observer.results, 1)
	assert.Len(t, h.journal.ops, 2)
}

func TestClearStatusNothingToClear(t *testing.T) {
	h := newHarness(nil)

	res, err := h.coord.ClearStatus(context.Background(), companyIDs(1, 4))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.Empty(t, h.backend.removeCalls())
}

// ── registry ───────────────────────────────────────────────────────────────

func TestPredictIDMatchesServerScheme(t *testing.T) {
	assert.Equal(t,
		"remove_6f1c2e1a-8f5e-4a39-9b0e-1d2c3b4a5f60_1792065600",
		PredictID(domain.KindRemove, target, fixedNow))
}

func TestRegistryRekeyKeepsAlias(t *testing.T) {
	r := newRegistry()
	r.create(domain.BulkOperation{ID: "p", Status: domain.OperationPending, Total: 5})

	require.True(t, r.rekey("p", "a"))

	op, known, applied := r.apply(domain.Progress{OperationID: "p", Processed: 2, Total: 5, Status: domain.OperationInProgress})
	assert.True(t, known)
	assert.True(t, applied)
	assert.Equal(t, "a", op.ID)

	_, known, _ = r.apply(domain.Progress{OperationID: "zzz"})
	assert.False(t, known)
}

func TestRegistryIgnoresFramesAfterTerminal(t *testing.T) {
	r := newRegistry()
	r.create(domain.BulkOperation{ID: "a", Total: 5})
	r.apply(domain.Progress{OperationID: "a", Processed: 5, Total: 5, Status: domain.OperationCompleted})

	_, _, applied := r.apply(domain.Progress{OperationID: "a", Processed: 5, Total: 5, Status: domain.OperationFailed})
	assert.False(t, applied)

	op, _ := r.get("a")
	assert.Equal(t, domain.OperationCompleted, op.Status)
}

func TestRegistryBufferHoldsOneFrame(t *testing.T) {
	r := newRegistry()
	r.buffer(domain.Progress{OperationID: "x", Processed: 1})
	r.buffer(domain.Progress{OperationID: "x", Processed: 2})

	p, ok := r.takePending()
	require.True(t, ok)
	assert.Equal(t, 2, p.Processed)

	_, ok = r.takePending()
	assert.False(t, ok)
}

func TestRegistryPruneDropsFinished(t *testing.T) {
	r := newRegistry()
	r.create(domain.BulkOperation{ID: "p", Status: domain.OperationPending, Total: 5})
	require.True(t, r.rekey("p", "a"))
	r.apply(domain.Progress{OperationID: "a", Processed: 5, Total: 5, Status: domain.OperationCompleted})
	r.create(domain.BulkOperation{ID: "b", Status: domain.OperationInProgress, Total: 5})

	assert.Equal(t, 1, r.prune())

	_, ok := r.get("a")
	assert.False(t, ok)
	_, ok = r.get("p")
	assert.False(t, ok, "alias goes with its record")
	_, ok = r.get("b")
	assert.True(t, ok)
}

func TestRegistryOwnsFollowsAlias(t *testing.T) {
	r := newRegistry()
	r.create(domain.BulkOperation{ID: "p", Status: domain.OperationPending})
	r.create(domain.BulkOperation{ID: "other", Status: domain.OperationInProgress})
	require.True(t, r.rekey("p", "a"))

	known, mine := r.owns("a", "p")
	assert.True(t, known)
	assert.True(t, mine)

	known, mine = r.owns("a", "other")
	assert.True(t, known)
	assert.False(t, mine)

	known, _ = r.owns("a", "zzz")
	assert.False(t, known)
}

func TestNewRunPrunesFinishedOperations(t *testing.T) {
	h := newHarness(nil)
	h.completes()

	_, err := h.coord.Run(context.Background(), addRequest(companyIDs(1, 2)))
	require.NoError(t, err)
	_, err = h.coord.Run(context.Background(), Request{Kind: domain.KindAdd, Collection: source, IDs: companyIDs(3, 4)})
	require.NoError(t, err)

	_, ok := h.coord.Operation(PredictID(domain.KindAdd, target, fixedNow))
	assert.False(t, ok)
	_, ok = h.coord.Operation(PredictID(domain.KindAdd, source, fixedNow))
	assert.True(t, ok)
	assert.Len(t, h.journal.ops, 2)
}
