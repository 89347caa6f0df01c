package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/imrishuroy/merchant-orderdesk/internal/idempotency"
	"github.com/imrishuroy/merchant-orderdesk/internal/notify"
)

// Processor consumes new-order events from SQS and records them as
// CloudWatch metrics. Redelivered messages are skipped when a dedupe
// store is configured.
type Processor struct {
	metrics metricPutter
	dedupe  *idempotency.Store // optional
	nowFunc func() time.Time
}

// NewProcessor creates a new worker processor. dedupe may be nil.
func NewProcessor(metrics metricPutter, dedupe *idempotency.Store) *Processor {
	return &Processor{metrics: metrics, dedupe: dedupe, nowFunc: time.Now}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	log.Info().Int("records", len(ev.Records)).Msg("received SQS batch")
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			log.Error().Err(err).Str("message_id", rec.MessageId).Msg("worker error")
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	ev, err := notify.DecodeEvent([]byte(rec.Body))
	if err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if ev.MerchantID == "" {
		return fmt.Errorf("message %s has no merchant_id", rec.MessageId)
	}

	key := ""
	if p.dedupe != nil && rec.MessageId != "" {
		key = dedupeKeyPrefix + rec.MessageId
		prior, err := p.dedupe.Begin(ctx, key, ev.MerchantID, dedupeAction)
		if err != nil {
			return fmt.Errorf("dedupe check: %w", err)
		}
		if prior != nil {
			// already recorded, or another invocation has it
			log.Info().Str("message_id", rec.MessageId).Str("status", prior.Status).Msg("duplicate delivery skipped")
			return nil
		}
	}

	if err := p.record(ctx, ev); err != nil {
		if key != "" {
			if merr := p.dedupe.MarkFailed(ctx, key, err.Error()); merr != nil {
				log.Warn().Err(merr).Msg("mark dedupe key failed")
			}
		}
		return err
	}

	if key != "" {
		if err := p.dedupe.MarkDone(ctx, key, "", 200); err != nil {
			return fmt.Errorf("failed to update dedupe record: %w", err)
		}
	}
	log.Info().Str("merchant_id", ev.MerchantID).Int("count", ev.Count).Strs("order_ids", ev.OrderIDs).Msg("new orders recorded")
	return nil
}

func (p *Processor) record(ctx context.Context, ev notify.NewOrdersEvent) error {
	dims := map[string]string{"MerchantID": ev.MerchantID}
	if err := p.metrics.PutCount(ctx, MetricNewOrders, float64(ev.Count), dims); err != nil {
		return fmt.Errorf("record new orders: %w", err)
	}
	if ev.DetectedAt.IsZero() {
		return nil
	}
	lag := p.nowFunc().Sub(ev.DetectedAt).Seconds()
	if lag < 0 {
		lag = 0
	}
	if err := p.metrics.PutCount(ctx, MetricNotificationLag, lag, dims); err != nil {
		return fmt.Errorf("record notification lag: %w", err)
	}
	return nil
}
