package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/imrishuroy/merchant-orderdesk/internal/alerts"
	"github.com/imrishuroy/merchant-orderdesk/internal/orders"
)

// mockUpdater records calls and blocks each one until release is closed
// (when set), then returns err.
type mockUpdater struct {
	mu      sync.Mutex
	calls   []string
	err     error
	release chan struct{}
	panics  bool
	block   bool // wait for ctx instead of returning
}

func (m *mockUpdater) UpdateOrderStatus(ctx context.Context, orderID string, status orders.Status) error {
	m.mu.Lock()
	m.calls = append(m.calls, orderID+"->"+string(status))
	m.mu.Unlock()
	if m.panics {
		panic("boom")
	}
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if m.release != nil {
		<-m.release
	}
	return m.err
}

func (m *mockUpdater) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func newFixture(api StatusUpdater, start ...orders.Order) (*Workflow, *orders.Store, *alerts.Center) {
	store := orders.NewStore()
	store.Load(start)
	center := alerts.NewCenter(0)
	return New(store, api, center, time.Second), store, center
}

func statusOf(t *testing.T, s *orders.Store, id string) orders.Status {
	t.Helper()
	o, ok := s.Get(id)
	if !ok {
		t.Fatalf("order %s missing", id)
	}
	return o.Status
}

func TestAdvance_Success(t *testing.T) {
	api := &mockUpdater{}
	wf, store, center := newFixture(api, orders.Order{
		ID: "abc123", Status: orders.StatusConfirmed,
		Items: []orders.Item{{Name: "Milk", Quantity: 2, Price: 55}}, TotalAmount: 110,
	})

	m, err := wf.Advance(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Order.Status != orders.StatusPacked || m.Previous != orders.StatusConfirmed {
		t.Fatalf("unexpected mutation: %+v", m)
	}
	if err := m.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}
	if got := api.Calls(); len(got) != 1 || got[0] != "abc123->packed" {
		t.Fatalf("unexpected api calls: %v", got)
	}
	if statusOf(t, store, "abc123") != orders.StatusPacked {
		t.Fatalf("expected packed")
	}
	counts := store.CountByStatus()
	if counts["confirmed"] != 0 || counts["packed"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if len(center.List()) != 0 {
		t.Fatalf("expected no alerts, got %+v", center.List())
	}
}

func TestAdvance_OptimisticBeforePersist(t *testing.T) {
	api := &mockUpdater{release: make(chan struct{})}
	wf, store, _ := newFixture(api, orders.Order{ID: "o1", Status: orders.StatusNew})

	m, err := wf.Advance(context.Background(), "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if statusOf(t, store, "o1") != orders.StatusConfirmed {
		t.Fatalf("expected optimistic confirmed while persist is pending")
	}
	if !wf.Updating("o1") {
		t.Fatalf("expected order to be marked updating")
	}
	if _, err := wf.Advance(context.Background(), "o1"); !errors.Is(err, ErrUpdateInFlight) {
		t.Fatalf("expected ErrUpdateInFlight, got %v", err)
	}

	close(api.release)
	if err := m.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}
	if wf.Updating("o1") {
		t.Fatalf("expected updating flag to clear")
	}
}

func TestAdvance_RollbackOnFailure(t *testing.T) {
	api := &mockUpdater{err: errors.New("503 service unavailable")}
	wf, store, center := newFixture(api, orders.Order{ID: "o1", Status: orders.StatusConfirmed})

	m, err := wf.Advance(context.Background(), "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = m.Wait(context.Background())
	if !errors.Is(err, ErrPersistFailed) {
		t.Fatalf("expected ErrPersistFailed, got %v", err)
	}
	if statusOf(t, store, "o1") != orders.StatusConfirmed {
		t.Fatalf("expected status reverted to confirmed, got %s", statusOf(t, store, "o1"))
	}
	list := center.List()
	if len(list) != 1 || list[0].Kind != alerts.KindUpdateFailed || list[0].OrderID != "o1" {
		t.Fatalf("expected one update_failed alert, got %+v", list)
	}
	if wf.Updating("o1") {
		t.Fatalf("expected updating flag to clear after failure")
	}
}

func TestCancel_RollbackOnFailure(t *testing.T) {
	api := &mockUpdater{err: errors.New("timeout")}
	wf, store, _ := newFixture(api, orders.Order{ID: "o1", Status: orders.StatusReady})

	m, err := wf.Cancel(context.Background(), "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Order.Status != orders.StatusCancelled {
		t.Fatalf("expected optimistic cancelled, got %s", m.Order.Status)
	}
	if err := m.Wait(context.Background()); err == nil {
		t.Fatal("expected persist error")
	}
	if statusOf(t, store, "o1") != orders.StatusReady {
		t.Fatalf("expected ready after rollback")
	}
}

func TestPreconditions(t *testing.T) {
	api := &mockUpdater{}
	wf, _, _ := newFixture(api,
		orders.Order{ID: "d", Status: orders.StatusDelivered},
		orders.Order{ID: "c", Status: orders.StatusCancelled},
	)
	ctx := context.Background()

	if _, err := wf.Advance(ctx, "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	for _, id := range []string{"d", "c"} {
		if _, err := wf.Advance(ctx, id); !errors.Is(err, ErrNoTransition) {
			t.Fatalf("%s: expected ErrNoTransition, got %v", id, err)
		}
		if _, err := wf.Cancel(ctx, id); !errors.Is(err, ErrNotCancellable) {
			t.Fatalf("%s: expected ErrNotCancellable, got %v", id, err)
		}
	}
	if _, err := wf.Apply(ctx, "d", Action("rewind")); err == nil {
		t.Fatal("expected error for unknown action")
	}
	if len(api.Calls()) != 0 {
		t.Fatalf("expected no api calls, got %v", api.Calls())
	}
}

func TestAdvance_NeverSkipsStages(t *testing.T) {
	api := &mockUpdater{}
	wf, store, _ := newFixture(api, orders.Order{ID: "o1", Status: orders.StatusNew})
	ctx := context.Background()

	var path []orders.Status
	for {
		m, err := wf.Advance(ctx, "o1")
		if errors.Is(err, ErrNoTransition) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := m.Wait(ctx); err != nil {
			t.Fatalf("unexpected persist error: %v", err)
		}
		path = append(path, statusOf(t, store, "o1"))
	}
	want := []orders.Status{orders.StatusConfirmed, orders.StatusPacked, orders.StatusReady, orders.StatusDelivered}
	if len(path) != len(want) {
		t.Fatalf("expected %v, got %v", want, path)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, path)
		}
	}
}

func TestReconcileDuringMutation(t *testing.T) {
	api := &mockUpdater{release: make(chan struct{}), err: errors.New("upstream failed")}
	wf, store, _ := newFixture(api,
		orders.Order{ID: "o1", Status: orders.StatusConfirmed},
		orders.Order{ID: "o2", Status: orders.StatusNew},
	)

	m, err := wf.Advance(context.Background(), "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// a poll lands while the persist is still running
	store.Reconcile([]orders.Order{
		{ID: "o1", Status: orders.StatusConfirmed},
		{ID: "o2", Status: orders.StatusNew},
		{ID: "o3", Status: orders.StatusNew},
	})
	if statusOf(t, store, "o1") != orders.StatusConfirmed {
		t.Fatalf("expected poll to overwrite optimistic value")
	}

	close(api.release)
	if err := m.Wait(context.Background()); err == nil {
		t.Fatal("expected persist error")
	}
	snap := store.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected reconciled set of 3, got %d", len(snap))
	}
	if statusOf(t, store, "o1") != orders.StatusConfirmed {
		t.Fatalf("expected authoritative confirmed to survive, got %s", statusOf(t, store, "o1"))
	}
}

func TestAdvance_FailedPersistDoesNotClobberReconciledValue(t *testing.T) {
	api := &mockUpdater{release: make(chan struct{}), err: errors.New("upstream failed")}
	wf, store, center := newFixture(api, orders.Order{ID: "o1", Status: orders.StatusConfirmed})

	m, _ := wf.Advance(context.Background(), "o1")
	// someone else moved it further upstream meanwhile
	store.Reconcile([]orders.Order{{ID: "o1", Status: orders.StatusReady}})
	close(api.release)
	_ = m.Wait(context.Background())

	if statusOf(t, store, "o1") != orders.StatusReady {
		t.Fatalf("expected reconciled ready to stay, got %s", statusOf(t, store, "o1"))
	}
	if len(center.List()) != 1 {
		t.Fatalf("expected failure to still be surfaced")
	}
}

func TestAdvance_HangingCallTimesOut(t *testing.T) {
	api := &mockUpdater{block: true}
	store := orders.NewStore()
	store.Load([]orders.Order{{ID: "o1", Status: orders.StatusPacked}})
	wf := New(store, api, alerts.NewCenter(0), 20*time.Millisecond)

	m, err := wf.Advance(context.Background(), "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = m.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrPersistFailed) {
		t.Fatalf("expected wrapped deadline exceeded, got %v", err)
	}
	if statusOf(t, store, "o1") != orders.StatusPacked {
		t.Fatalf("expected packed after timeout rollback")
	}
	if wf.Updating("o1") {
		t.Fatalf("expected updating flag to clear after timeout")
	}
}

func TestAdvance_CallerCancellationDoesNotAbortPersist(t *testing.T) {
	api := &mockUpdater{release: make(chan struct{})}
	wf, store, _ := newFixture(api, orders.Order{ID: "o1", Status: orders.StatusNew})

	ctx, cancel := context.WithCancel(context.Background())
	m, err := wf.Advance(ctx, "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	close(api.release)
	wf.Wait()
	if m.Err() != nil {
		t.Fatalf("unexpected persist error: %v", m.Err())
	}
	if statusOf(t, store, "o1") != orders.StatusConfirmed {
		t.Fatalf("expected confirmed")
	}
}

func TestAdvance_PanickingCollaborator(t *testing.T) {
	api := &mockUpdater{panics: true}
	wf, store, center := newFixture(api, orders.Order{ID: "o1", Status: orders.StatusNew})

	m, err := wf.Advance(context.Background(), "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Wait(context.Background()); !errors.Is(err, ErrPersistFailed) {
		t.Fatalf("expected ErrPersistFailed, got %v", err)
	}
	if statusOf(t, store, "o1") != orders.StatusNew {
		t.Fatalf("expected rollback to new")
	}
	if len(center.List()) != 1 {
		t.Fatalf("expected an alert")
	}
}
