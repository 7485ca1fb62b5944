package aws

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsRecorder is what the importer records metrics through.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error
	RecordValue(ctx context.Context, metricName string, value float64, dimensions map[string]string) error
}

// MetricsClient publishes importer metrics to CloudWatch. Every datum carries an
// Environment dimension. It is a no-op unless CLOUDWATCH_ENABLED=true.
type MetricsClient struct {
	client      MetricsAPI
	namespace   string
	environment string
	enabled     bool
}

// MetricsAPI is the CloudWatch call MetricsClient makes.
type MetricsAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

func NewMetricsClient(cfg sdkaws.Config) *MetricsClient {
	namespace := os.Getenv("CLOUDWATCH_NAMESPACE")
	if namespace == "" {
		namespace = "ProductImporter"
	}
	return NewMetricsClientWithAPI(cloudwatch.NewFromConfig(cfg), namespace,
		os.Getenv("APP_ENV"), os.Getenv("CLOUDWATCH_ENABLED") == "true")
}

// NewMetricsClientWithAPI wraps an existing client.
func NewMetricsClientWithAPI(api MetricsAPI, namespace, environment string, enabled bool) *MetricsClient {
	if environment == "" {
		environment = "development"
	}
	return &MetricsClient{client: api, namespace: namespace, environment: environment, enabled: enabled}
}

// PutMetric sends one data point.
func (m *MetricsClient) PutMetric(ctx context.Context, metricName string, value float64, unit types.StandardUnit, dimensions map[string]string) error {
	if m == nil || !m.enabled {
		return nil
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.namespace),
		MetricData: []types.MetricDatum{{
			MetricName: sdkaws.String(metricName),
			Value:      sdkaws.Float64(value),
			Unit:       unit,
			Timestamp:  sdkaws.Time(time.Now()),
			Dimensions: m.dimensions(dimensions),
		}},
	})
	if err != nil {
		return fmt.Errorf("put metric %s: %w", metricName, err)
	}
	return nil
}

// dimensions sorts by name so identical calls produce identical series.
func (m *MetricsClient) dimensions(extra map[string]string) []types.Dimension {
	names := make([]string, 0, len(extra)+1)
	merged := map[string]string{"Environment": m.environment}
	for k, v := range extra {
		merged[k] = v
	}
	for k := range merged {
		names = append(names, k)
	}
	sort.Strings(names)

	dims := make([]types.Dimension, 0, len(names))
	for _, k := range names {
		dims = append(dims, types.Dimension{Name: sdkaws.String(k), Value: sdkaws.String(merged[k])})
	}
	return dims
}

func (m *MetricsClient) RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error {
	return m.PutMetric(ctx, metricName, 1, types.StandardUnitCount, dimensions)
}

// RecordLatency records duration in milliseconds.
func (m *MetricsClient) RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error {
	return m.PutMetric(ctx, metricName, float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
}

func (m *MetricsClient) RecordValue(ctx context.Context, metricName string, value float64, dimensions map[string]string) error {
	return m.PutMetric(ctx, metricName, value, types.StandardUnitNone, dimensions)
}

func (m *MetricsClient) IsEnabled() bool {
	return m != nil && m.enabled
}

const (
	// HTTP metrics
	MetricHTTPRequests = "HTTPRequests"
	MetricHTTPErrors   = "HTTPErrors"
	MetricHTTPLatency  = "HTTPLatency"

	// Import metrics
	MetricImportsStarted   = "ImportsStarted"
	MetricImportsCompleted = "ImportsCompleted"
	MetricImportsFailed    = "ImportsFailed"
	MetricImportDuration   = "ImportDuration"
	MetricRowsImported     = "RowsImported"
	MetricRowErrors        = "RowErrors"

	// Delivery metrics
	MetricWebhooksDelivered = "WebhooksDelivered"
	MetricWebhooksFailed    = "WebhooksFailed"
	MetricQueueTasks        = "QueueTasksProcessed"
)
