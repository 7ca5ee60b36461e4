// Package observe publishes operational telemetry to CloudWatch. Local
// development runs on the no-op collector instead.
package observe

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"agendly/internal/types"
)

// MetricNamespace is the CloudWatch namespace all platform metrics share.
const MetricNamespace = "Agendly"

// Metric names.
const (
	metricRequest = "APIRequest"
	metricSend    = "MessageSend"
	metricSweep   = "SweepTenants"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertions that both collectors implement MetricsCollector.
var (
	_ types.MetricsCollector = (*CloudWatchCollector)(nil)
	_ types.MetricsCollector = (*NoopCollector)(nil)
)

// CloudWatchCollector implements types.MetricsCollector by emitting to
// CloudWatch. A publish failure is logged and dropped; telemetry never
// fails the operation it measures.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchCollector creates a CloudWatchCollector publishing to the
// platform namespace.
func NewCloudWatchCollector(client CloudWatchClient, logger *slog.Logger) *CloudWatchCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCollector{
		client:    client,
		namespace: MetricNamespace,
		logger:    logger,
	}
}

// RecordRequest emits one request count datum and one latency datum with
// Method, Endpoint, and Status dimensions.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String("Method"), Value: aws.String(method)},
		{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
		{Name: aws.String("Status"), Value: aws.String(status)},
	}

	c.put(&cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricRequest),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(metricRequest + "Latency"),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	})
}

// RecordSend emits one send datum with the Result dimension.
func (c *CloudWatchCollector) RecordSend(result types.SendStatus) {
	c.put(&cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricSend),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("Result"), Value: aws.String(string(result))},
				},
			},
		},
	})
}

// RecordSweep emits processed and failed tenant counts for one sweep run.
func (c *CloudWatchCollector) RecordSweep(sweep types.SweepType, processed, failed int) {
	dims := []cwtypes.Dimension{
		{Name: aws.String("Sweep"), Value: aws.String(string(sweep))},
	}

	c.put(&cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricSweep),
				Value:      aws.Float64(float64(processed)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(metricSweep + "Failed"),
				Value:      aws.Float64(float64(failed)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	})
}

func (c *CloudWatchCollector) put(input *cloudwatch.PutMetricDataInput) {
	if _, err := c.client.PutMetricData(context.Background(), input); err != nil {
		c.logger.Error("failed to publish metric",
			"namespace", c.namespace,
			"error", err,
		)
	}
}

// NoopCollector discards all telemetry.
type NoopCollector struct{}

func (NoopCollector) RecordRequest(_, _, _ string, _ time.Duration) {}
func (NoopCollector) RecordSend(_ types.SendStatus)                 {}
func (NoopCollector) RecordSweep(_ types.SweepType, _, _ int)       {}
