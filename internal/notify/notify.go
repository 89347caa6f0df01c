// Package notify delivers the "new order" side effect: a short sound locally,
// or an event on a queue for other consumers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/imrishuroy/merchant-orderdesk/internal/aws"
	"github.com/imrishuroy/merchant-orderdesk/internal/orders"
)

// NewOrdersEvent is published when new-stage orders arrive.
type NewOrdersEvent struct {
	MerchantID string    `json:"merchant_id"`
	OrderIDs   []string  `json:"order_ids"`
	Count      int       `json:"count"`
	DetectedAt time.Time `json:"detected_at"`
}

// NewEvent builds the event for arrivals.
func NewEvent(merchantID string, arrivals []orders.Order, at time.Time) NewOrdersEvent {
	ids := make([]string, 0, len(arrivals))
	for _, o := range arrivals {
		ids = append(ids, o.ID)
	}
	return NewOrdersEvent{MerchantID: merchantID, OrderIDs: ids, Count: len(ids), DetectedAt: at.UTC()}
}

// Bell rings the terminal bell once per batch of arrivals.
type Bell struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBell writes BEL to w (usually os.Stderr).
func NewBell(w io.Writer) *Bell {
	return &Bell{w: w}
}

func (b *Bell) Play(ctx context.Context, merchantID string, arrivals []orders.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.w.Write([]byte{'\a'}); err != nil {
		return fmt.Errorf("ring bell: %w", err)
	}
	return nil
}

// ErrNoMerchant is returned by the queue chimes when the session carries no
// merchant id; the worker rejects such events.
var ErrNoMerchant = errors.New("new orders event has no merchant id")

// SQSChime publishes a NewOrdersEvent to an SQS queue.
type SQSChime struct {
	publisher *aws.Publisher
	nowFunc   func() time.Time
}

// NewSQSChime returns an SQSChime.
func NewSQSChime(publisher *aws.Publisher) *SQSChime {
	return &SQSChime{publisher: publisher, nowFunc: time.Now}
}

func (c *SQSChime) Play(ctx context.Context, merchantID string, arrivals []orders.Order) error {
	if merchantID == "" {
		return ErrNoMerchant
	}
	ev := NewEvent(merchantID, arrivals, c.nowFunc())
	return c.publisher.SendJSON(ctx, ev, map[string]string{
		"merchant_id": merchantID,
		"event_type":  "new_orders",
	})
}

// messageWriter is the part of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaChime publishes a NewOrdersEvent keyed by merchant id.
type KafkaChime struct {
	writer  messageWriter
	nowFunc func() time.Time
}

// NewKafkaChime returns a KafkaChime. The writer owns topic and brokers.
func NewKafkaChime(writer messageWriter) *KafkaChime {
	return &KafkaChime{writer: writer, nowFunc: time.Now}
}

// NewKafkaWriter builds the writer used by KafkaChime.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

func (c *KafkaChime) Play(ctx context.Context, merchantID string, arrivals []orders.Order) error {
	if merchantID == "" {
		return ErrNoMerchant
	}
	ev := NewEvent(merchantID, arrivals, c.nowFunc())
	body, err := marshalEvent(ev)
	if err != nil {
		return err
	}
	if err := c.writer.WriteMessages(ctx, kafka.Message{Key: []byte(merchantID), Value: body}); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// Chime is the interface shared by every sink.
type Chime interface {
	Play(ctx context.Context, merchantID string, arrivals []orders.Order) error
}

// Multi plays every chime and joins their errors.
type Multi []Chime

func (m Multi) Play(ctx context.Context, merchantID string, arrivals []orders.Order) error {
	var errs []error
	for _, c := range m {
		if err := c.Play(ctx, merchantID, arrivals); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
