package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricPublisher writes count metrics to one CloudWatch namespace.
type MetricPublisher struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	nowFunc    func() time.Time
}

// NewMetricPublisher returns a MetricPublisher.
func NewMetricPublisher(client CloudWatchAPI, namespace string) *MetricPublisher {
	return &MetricPublisher{CloudWatch: client, Namespace: namespace, nowFunc: time.Now}
}

// PutCount records value under name with the given dimensions.
func (m *MetricPublisher) PutCount(ctx context.Context, name string, value float64, dimensions map[string]string) error {
	dims := make([]cwtypes.Dimension, 0, len(dimensions))
	for k, v := range dimensions {
		dims = append(dims, cwtypes.Dimension{Name: awsString(k), Value: awsString(v)})
	}
	ts := m.nowFunc()
	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.Namespace,
		MetricData: []cwtypes.MetricDatum{{
			MetricName: &name,
			Value:      &value,
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  &ts,
			Dimensions: dims,
		}},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
