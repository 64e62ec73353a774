package aws

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Metrics publishes one CloudWatch count per reconciler outcome.
type Metrics struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	Logger     *zap.Logger
	nowFunc    func() time.Time
}

// NewMetrics returns a Metrics recorder for namespace.
func NewMetrics(cw CloudWatchAPI, namespace string, logger *zap.Logger) *Metrics {
	return &Metrics{
		CloudWatch: cw,
		Namespace:  namespace,
		Logger:     logger,
		nowFunc:    time.Now,
	}
}

// Count records value for metric, dimensioned by outcome. Failures are logged only.
func (m *Metrics) Count(ctx context.Context, metric, outcome string) {
	if m == nil || m.CloudWatch == nil {
		return
	}
	now := time.Now
	if m.nowFunc != nil {
		now = m.nowFunc
	}
	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.Namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: sdkaws.String(metric),
				Dimensions: []cwtypes.Dimension{
					{Name: sdkaws.String("Outcome"), Value: sdkaws.String(outcome)},
				},
				Timestamp: sdkaws.Time(now()),
				Unit:      cwtypes.StandardUnitCount,
				Value:     sdkaws.Float64(1),
			},
		},
	})
	if err != nil && m.Logger != nil {
		m.Logger.Warn("put metric data failed", zap.String("metric", metric), zap.String("outcome", outcome), zap.Error(err))
	}
}
