package orders

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/imrishuroy/merchant-orderdesk/internal/metrics"
)

// Status is one stage of an order's fulfillment lifecycle.
type Status string

// Order statuses
const (
	StatusNew       Status = "new"
	StatusConfirmed Status = "confirmed"
	StatusPacked    Status = "packed"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// FilterAll is the synthetic filter / count key covering every status.
const FilterAll = "all"

// progression is the fixed forward order. cancelled is not part of it.
var progression = []Status{StatusNew, StatusConfirmed, StatusPacked, StatusReady, StatusDelivered}

// Statuses lists every status, progression first then cancelled.
func Statuses() []Status {
	out := make([]Status, 0, len(progression)+1)
	out = append(out, progression...)
	return append(out, StatusCancelled)
}

func (s Status) String() string { return string(s) }

// IsValid reports whether s is one of the six canonical statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusConfirmed, StatusPacked, StatusReady, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s has no further transition.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Display is the presentational metadata attached to a status.
type Display struct {
	Label   string `json:"label"`
	Icon    string `json:"icon"`
	Variant string `json:"variant"`
}

var displays = map[Status]Display{
	StatusNew:       {Label: "New", Icon: "bell", Variant: "warning"},
	StatusConfirmed: {Label: "Confirmed", Icon: "check-circle", Variant: "info"},
	StatusPacked:    {Label: "Packed", Icon: "package", Variant: "secondary"},
	StatusReady:     {Label: "Ready", Icon: "truck", Variant: "primary"},
	StatusDelivered: {Label: "Delivered", Icon: "check-check", Variant: "success"},
	StatusCancelled: {Label: "Cancelled", Icon: "x-circle", Variant: "destructive"},
}

// DisplayFor returns the metadata for s. Unknown values get the metadata of StatusNew.
func DisplayFor(s Status) Display {
	if d, ok := displays[s]; ok {
		return d
	}
	return displays[StatusNew]
}

// NextStatus returns the status immediately after current in the progression.
// It returns false for delivered and cancelled. An unknown current value is
// treated as new.
func NextStatus(current Status) (Status, bool) {
	if !current.IsValid() {
		current = StatusNew
	}
	for i, s := range progression {
		if s == current && i+1 < len(progression) {
			return progression[i+1], true
		}
	}
	return "", false
}

// CanCancel reports whether an order in current may be cancelled.
func CanCancel(current Status) bool {
	if !current.IsValid() {
		current = StatusNew
	}
	return !current.IsTerminal()
}

// Progress returns the progress-rail index of s (0..4), or -1 for cancelled.
func Progress(s Status) int {
	if !s.IsValid() {
		return 0
	}
	for i, p := range progression {
		if p == s {
			return i
		}
	}
	return -1
}

// Vocabulary selects how statuses are spelled at an external boundary.
type Vocabulary string

const (
	// VocabularyCanonical uses new/confirmed/packed/ready/delivered/cancelled.
	VocabularyCanonical Vocabulary = "canonical"
	// VocabularyDisplay uses Placed/Confirmed/Preparing/Out for Delivery/Delivered/Cancelled.
	VocabularyDisplay Vocabulary = "display"
)

var displayNames = map[Status]string{
	StatusNew:       "Placed",
	StatusConfirmed: "Confirmed",
	StatusPacked:    "Preparing",
	StatusReady:     "Out for Delivery",
	StatusDelivered: "Delivered",
	StatusCancelled: "Cancelled",
}

// DisplayName maps s to the display vocabulary.
func DisplayName(s Status) string {
	if n, ok := displayNames[s]; ok {
		return n
	}
	return displayNames[StatusNew]
}

// Encode spells s in vocabulary v.
func (v Vocabulary) Encode(s Status) string {
	if v == VocabularyDisplay {
		return DisplayName(s)
	}
	if !s.IsValid() {
		return string(StatusNew)
	}
	return string(s)
}

// aliases maps a folded spelling to its canonical status.
var aliases = map[string]Status{
	"new":              StatusNew,
	"placed":           StatusNew,
	"pending":          StatusNew,
	"confirmed":        StatusConfirmed,
	"accepted":         StatusConfirmed,
	"packed":           StatusPacked,
	"preparing":        StatusPacked,
	"ready":            StatusReady,
	"out for delivery": StatusReady,
	"delivered":        StatusDelivered,
	"completed":        StatusDelivered,
	"cancelled":        StatusCancelled,
	"canceled":         StatusCancelled,
}

func fold(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// ParseStatus accepts either vocabulary, ignoring case, surrounding space,
// and '_' / '-' separators.
func ParseStatus(raw string) (Status, bool) {
	s, ok := aliases[fold(raw)]
	return s, ok
}

// NormalizeStatus is ParseStatus with the fallback applied: anything
// unrecognized becomes StatusNew. The fallback is logged and counted so bad
// upstream data stays visible. ok is false when the fallback was used.
func NormalizeStatus(raw string) (Status, bool) {
	if s, ok := ParseStatus(raw); ok {
		return s, true
	}
	metrics.UnknownStatus.Inc()
	log.Warn().Str("raw_status", raw).Msg("unrecognized order status, treating as new")
	return StatusNew, false
}
