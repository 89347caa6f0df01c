package main

import "context"

// CloudWatch metric names written by the worker.
const (
	MetricNewOrders       = "NewOrders"
	MetricNotificationLag = "NotificationLagSeconds"
)

const (
	dedupeAction    = "notify"
	dedupeKeyPrefix = "sqs#"
)

// metricPutter is satisfied by aws.MetricPublisher.
type metricPutter interface {
	PutCount(ctx context.Context, name string, value float64, dimensions map[string]string) error
}
