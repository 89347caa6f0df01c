package alerts

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an alert for the front end.
type Kind string

const (
	KindUpdateFailed  Kind = "update_failed"
	KindRefreshFailed Kind = "refresh_failed"
)

// Alert is a brief, dismissible, user-visible error indication.
type Alert struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	OrderID   string    `json:"orderId,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultCapacity bounds how many undismissed alerts are kept.
const DefaultCapacity = 50

// Center holds undismissed alerts, newest last. When full the oldest is dropped.
type Center struct {
	mu       sync.Mutex
	alerts   []Alert
	capacity int
	nowFunc  func() time.Time
}

// NewCenter returns a Center. capacity <= 0 uses DefaultCapacity.
func NewCenter(capacity int) *Center {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Center{capacity: capacity, nowFunc: time.Now}
}

// Push records a new alert and returns it.
func (c *Center) Push(kind Kind, orderID, message string) Alert {
	a := Alert{
		ID:        uuid.NewString(),
		Kind:      kind,
		OrderID:   orderID,
		Message:   message,
		CreatedAt: c.nowFunc().UTC(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	if over := len(c.alerts) - c.capacity; over > 0 {
		c.alerts = append([]Alert(nil), c.alerts[over:]...)
	}
	return a
}

// List returns a copy of the undismissed alerts.
func (c *Center) List() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

// Dismiss removes the alert with id and reports whether it existed.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, a := range c.alerts {
		if a.ID == id {
			c.alerts = append(c.alerts[:i], c.alerts[i+1:]...)
			return true
		}
	}
	return false
}
