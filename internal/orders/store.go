package orders

import (
	"slices"
	"sync"
)

// FilterByStatus returns the orders whose status equals filter, preserving
// input order. "all" returns every order. The result never aliases in.
func FilterByStatus(in []Order, filter string) []Order {
	out := make([]Order, 0, len(in))
	for _, o := range in {
		if filter == FilterAll || string(o.Status) == filter {
			out = append(out, o)
		}
	}
	return out
}

// ApplyStatusChange returns a copy of in where the order with orderID has
// status newStatus. A missing id yields an unchanged copy.
func ApplyStatusChange(in []Order, orderID string, newStatus Status) []Order {
	out := slices.Clone(in)
	for i := range out {
		if out[i].ID == orderID {
			out[i].Status = newStatus
			break
		}
	}
	return out
}

// CountByStatus counts orders per status plus the synthetic "all" total.
// Every status key is present, zero or not.
func CountByStatus(in []Order) map[string]int {
	counts := make(map[string]int, len(progression)+2)
	for _, s := range Statuses() {
		counts[string(s)] = 0
	}
	for _, o := range in {
		counts[string(o.Status)]++
	}
	counts[FilterAll] = len(in)
	return counts
}

// NewArrivals returns orders in fetched whose id is absent from prior and
// whose status is new, in fetch order.
func NewArrivals(prior, fetched []Order) []Order {
	seen := make(map[string]struct{}, len(prior))
	for _, o := range prior {
		seen[o.ID] = struct{}{}
	}
	var out []Order
	for _, o := range fetched {
		if _, ok := seen[o.ID]; ok {
			continue
		}
		if o.Status == StatusNew {
			out = append(out, o)
		}
	}
	return out
}

// Summary holds the dashboard figures derived from a working set.
type Summary struct {
	Counts           map[string]int `json:"counts"`
	PendingRevenue   float64        `json:"pendingRevenue"`   // totals of non-terminal orders
	DeliveredRevenue float64        `json:"deliveredRevenue"` // totals of delivered orders
}

// Summarize computes the dashboard summary.
func Summarize(in []Order) Summary {
	s := Summary{Counts: CountByStatus(in)}
	for _, o := range in {
		switch {
		case o.Status == StatusDelivered:
			s.DeliveredRevenue += o.TotalAmount
		case !o.Status.IsTerminal():
			s.PendingRevenue += o.TotalAmount
		}
	}
	return s
}

// Store is the single owned working set of orders for one merchant session.
// Handlers and the poller run on different goroutines, so access is guarded.
type Store struct {
	mu     sync.RWMutex
	orders []Order
	loaded bool
}

// NewStore returns an empty, not yet loaded store.
func NewStore() *Store {
	return &Store{}
}

// Load replaces the working set.
func (s *Store) Load(in []Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = slices.Clone(in)
	s.loaded = true
}

// Reconcile replaces the working set with fetched and returns the newly
// arrived new-stage orders. Nothing is reported before the first load.
func (s *Store) Reconcile(fetched []Order) []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var arrivals []Order
	if s.loaded {
		arrivals = NewArrivals(s.orders, fetched)
	}
	s.orders = slices.Clone(fetched)
	s.loaded = true
	return arrivals
}

// Loaded reports whether an authoritative list has been loaded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Snapshot returns a copy of the working set.
func (s *Store) Snapshot() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.orders)
}

// Get returns the order with id.
func (s *Store) Get(id string) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}

// FilterByStatus is FilterByStatus over the current working set.
func (s *Store) FilterByStatus(filter string) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterByStatus(s.orders, filter)
}

// ApplyStatusChange sets the status of orderID and returns the new working set.
func (s *Store) ApplyStatusChange(orderID string, newStatus Status) []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = ApplyStatusChange(s.orders, orderID, newStatus)
	return slices.Clone(s.orders)
}

// Transition derives the new status of orderID from its current one and
// applies it under the same lock, so a concurrent Reconcile cannot slip in
// between the read and the write. It returns the order as it was before.
// ok is false when orderID is not in the working set; an error from next
// leaves the working set untouched.
func (s *Store) Transition(orderID string, next func(Status) (Status, error)) (prior Order, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID != orderID {
			continue
		}
		prior = s.orders[i]
		to, err := next(prior.Status)
		if err != nil {
			return prior, true, err
		}
		s.orders = ApplyStatusChange(s.orders, orderID, to)
		return prior, true, nil
	}
	return Order{}, false, nil
}

// RevertStatus sets orderID back to previous only if it still shows
// expected. It reports whether the revert happened. A reconciliation that
// landed in between already holds authoritative state and is left alone.
func (s *Store) RevertStatus(orderID string, expected, previous Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID != orderID {
			continue
		}
		if s.orders[i].Status != expected {
			return false
		}
		s.orders = ApplyStatusChange(s.orders, orderID, previous)
		return true
	}
	return false
}

// CountByStatus recomputes the per-status counts from the current working set.
func (s *Store) CountByStatus() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CountByStatus(s.orders)
}

// Summary recomputes the dashboard summary.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summarize(s.orders)
}
