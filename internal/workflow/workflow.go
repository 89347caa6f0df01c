package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/imrishuroy/merchant-orderdesk/internal/alerts"
	"github.com/imrishuroy/merchant-orderdesk/internal/metrics"
	"github.com/imrishuroy/merchant-orderdesk/internal/orders"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrNoTransition   = errors.New("order has no next status")
	ErrNotCancellable = errors.New("order cannot be cancelled")
	ErrUpdateInFlight = errors.New("order update already in progress")
	ErrPersistFailed  = errors.New("status update was not saved")
)

// DefaultUpdateTimeout bounds a single persist call.
const DefaultUpdateTimeout = 15 * time.Second

// StatusUpdater persists a status transition. Implemented by the REST and
// DynamoDB order API clients.
type StatusUpdater interface {
	UpdateOrderStatus(ctx context.Context, orderID string, status orders.Status) error
}

// Action is a user-triggered transition.
type Action string

const (
	ActionAdvance Action = "advance"
	ActionCancel  Action = "cancel"
)

// Workflow applies Advance and Cancel: optimistic local update, asynchronous
// persist, revert plus alert on failure.
type Workflow struct {
	store   *orders.Store
	api     StatusUpdater
	alerts  *alerts.Center
	timeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// New returns a Workflow. timeout <= 0 uses DefaultUpdateTimeout.
func New(store *orders.Store, api StatusUpdater, center *alerts.Center, timeout time.Duration) *Workflow {
	if timeout <= 0 {
		timeout = DefaultUpdateTimeout
	}
	return &Workflow{
		store:    store,
		api:      api,
		alerts:   center,
		timeout:  timeout,
		inflight: map[string]struct{}{},
	}
}

// Mutation is one optimistic status change whose persist may still be running.
type Mutation struct {
	Action   Action
	Order    orders.Order // as shown optimistically
	Previous orders.Status

	done chan struct{}
	err  error
}

// Done is closed once the persist call finished and any rollback was applied.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Err returns the persist outcome. Only meaningful after Done is closed.
func (m *Mutation) Err() error { return m.err }

// Wait blocks until the persist outcome is known or ctx ends.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Advance moves the order to its next status.
func (w *Workflow) Advance(ctx context.Context, orderID string) (*Mutation, error) {
	return w.start(ctx, orderID, ActionAdvance)
}

// Cancel moves the order to cancelled.
func (w *Workflow) Cancel(ctx context.Context, orderID string) (*Mutation, error) {
	return w.start(ctx, orderID, ActionCancel)
}

// Apply dispatches on action.
func (w *Workflow) Apply(ctx context.Context, orderID string, action Action) (*Mutation, error) {
	switch action {
	case ActionAdvance, ActionCancel:
		return w.start(ctx, orderID, action)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// Updating reports whether a persist is in flight for orderID.
func (w *Workflow) Updating(orderID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.inflight[orderID]
	return ok
}

// Wait blocks until every in-flight persist has finished.
func (w *Workflow) Wait() {
	w.wg.Wait()
}

func target(action Action, current orders.Status) (orders.Status, error) {
	if action == ActionCancel {
		if !orders.CanCancel(current) {
			return "", ErrNotCancellable
		}
		return orders.StatusCancelled, nil
	}
	next, ok := orders.NextStatus(current)
	if !ok {
		return "", ErrNoTransition
	}
	return next, nil
}

func (w *Workflow) start(ctx context.Context, orderID string, action Action) (*Mutation, error) {
	w.mu.Lock()
	if _, busy := w.inflight[orderID]; busy {
		w.mu.Unlock()
		return nil, ErrUpdateInFlight
	}
	var to orders.Status
	current, ok, err := w.store.Transition(orderID, func(cur orders.Status) (orders.Status, error) {
		next, err := target(action, cur)
		to = next
		return next, err
	})
	if !ok {
		w.mu.Unlock()
		return nil, ErrOrderNotFound
	}
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.inflight[orderID] = struct{}{}
	w.wg.Add(1)
	w.mu.Unlock()

	optimistic := current
	optimistic.Status = to
	m := &Mutation{
		Action:   action,
		Order:    optimistic,
		Previous: current.Status,
		done:     make(chan struct{}),
	}

	log.Info().Str("order_id", orderID).Str("action", string(action)).
		Str("from", string(current.Status)).Str("to", string(to)).Msg("status change applied locally")

	// persist outlives the request that triggered it but is still bounded
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	go func() {
		defer w.wg.Done()
		defer cancel()
		w.persist(pctx, m)
	}()
	return m, nil
}

func (w *Workflow) persist(ctx context.Context, m *Mutation) {
	orderID, to := m.Order.ID, m.Order.Status
	defer func() {
		w.mu.Lock()
		delete(w.inflight, orderID)
		w.mu.Unlock()
		close(m.done)
	}()

	err := w.call(ctx, orderID, to)
	if err == nil {
		metrics.Transitions.WithLabelValues(string(m.Action), "ok").Inc()
		log.Info().Str("order_id", orderID).Str("status", string(to)).Msg("status change saved")
		return
	}

	metrics.Transitions.WithLabelValues(string(m.Action), "failed").Inc()
	reverted := w.store.RevertStatus(orderID, to, m.Previous)
	if reverted {
		metrics.Rollbacks.Inc()
	}
	shown := m.Previous
	if !reverted {
		if o, ok := w.store.Get(orderID); ok {
			shown = o.Status
		}
	}
	msg := fmt.Sprintf("Could not mark order %s as %s. It is shown as %s.",
		orderID, orders.DisplayFor(to).Label, orders.DisplayFor(shown).Label)
	if w.alerts != nil {
		w.alerts.Push(alerts.KindUpdateFailed, orderID, msg)
	}
	log.Error().Err(err).Str("order_id", orderID).Str("status", string(to)).
		Bool("reverted", reverted).Msg("status change failed")
	m.err = fmt.Errorf("%w: %w", ErrPersistFailed, err)
}

// call shields the workflow from a collaborator that panics.
func (w *Workflow) call(ctx context.Context, orderID string, to orders.Status) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("update order status panicked: %v", r)
		}
	}()
	return w.api.UpdateOrderStatus(ctx, orderID, to)
}
