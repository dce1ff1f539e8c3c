package relay

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// MetricsCollector records relay traffic of a Client.
type MetricsCollector interface {
	RecordPublish(topic string, attempts int, success bool, duration time.Duration)
	RecordFrame(topic string, delivered bool)
	RecordReconnect(topic string, success bool)
}

// NoOpMetricsCollector discards everything.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordPublish(string, int, bool, time.Duration) {}
func (NoOpMetricsCollector) RecordFrame(string, bool)                       {}
func (NoOpMetricsCollector) RecordReconnect(string, bool)                   {}

// WithMetrics sets the collector for publishes and inbound frames.
func WithMetrics(m MetricsCollector) Option {
	return func(c *Client) { c.metrics = m }
}

const (
	metricPublished       = "relay.publish.total"
	metricPublishFailed   = "relay.publish.failed"
	metricRetries         = "relay.publish.retries"
	metricPublishDuration = "relay.publish.duration"
	metricDelivered       = "relay.frames.delivered"
	metricDropped         = "relay.frames.dropped"
	metricLastFrame       = "relay.frames.last"
	metricReconnects      = "relay.reconnects.total"
	metricReconnectFailed = "relay.reconnects.failed"
)

// Metrics is a MetricsCollector on OpenTelemetry instruments. It owns a
// MeterProvider with a ManualReader so the board can read totals back.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader

	published       metric.Int64Counter
	publishFailed   metric.Int64Counter
	retries         metric.Int64Counter
	publishDuration metric.Float64Histogram
	delivered       metric.Int64Counter
	dropped         metric.Int64Counter
	lastFrame       metric.Int64Gauge
	reconnects      metric.Int64Counter
	reconnectFailed metric.Int64Counter
}

// NewMetrics creates the relay instruments on a private MeterProvider.
func NewMetrics() (*Metrics, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("github.com/mcdev12/livequestion/relay")

	m := &Metrics{provider: provider, reader: reader}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.published, metricPublished, "Messages accepted by the relay", "{message}"},
		{&m.publishFailed, metricPublishFailed, "Publishes given up after retries", "{message}"},
		{&m.retries, metricRetries, "Publish attempts beyond the first", "{attempt}"},
		{&m.delivered, metricDelivered, "Inbound frames handed to a subscriber", "{frame}"},
		{&m.dropped, metricDropped, "Inbound frames that failed to decode", "{frame}"},
		{&m.reconnects, metricReconnects, "Streams reopened after a drop", "{reconnect}"},
		{&m.reconnectFailed, metricReconnectFailed, "Streams abandoned after a drop", "{reconnect}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	m.publishDuration, err = meter.Float64Histogram(
		metricPublishDuration,
		metric.WithDescription("Publish latency including retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publish duration histogram: %w", err)
	}

	m.lastFrame, err = meter.Int64Gauge(
		metricLastFrame,
		metric.WithDescription("Unix time of the last inbound frame"),
		metric.WithUnit("ns"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create last frame gauge: %w", err)
	}
	return m, nil
}

func topicAttr(topic string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("relay.topic", topic))
}

func (m *Metrics) RecordPublish(topic string, attempts int, success bool, duration time.Duration) {
	ctx := context.Background()
	attrs := topicAttr(topic)
	if success {
		m.published.Add(ctx, 1, attrs)
	} else {
		m.publishFailed.Add(ctx, 1, attrs)
	}
	if attempts > 1 {
		m.retries.Add(ctx, int64(attempts-1), attrs)
	}
	if attempts > 0 {
		m.publishDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

func (m *Metrics) RecordFrame(topic string, delivered bool) {
	ctx := context.Background()
	attrs := topicAttr(topic)
	if delivered {
		m.delivered.Add(ctx, 1, attrs)
	} else {
		m.dropped.Add(ctx, 1, attrs)
	}
	m.lastFrame.Record(ctx, time.Now().UnixNano())
}

func (m *Metrics) RecordReconnect(topic string, success bool) {
	ctx := context.Background()
	if success {
		m.reconnects.Add(ctx, 1, topicAttr(topic))
	} else {
		m.reconnectFailed.Add(ctx, 1, topicAttr(topic))
	}
}

// Shutdown flushes and stops the MeterProvider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// CounterSnapshot is the relay totals summed over all topics.
type CounterSnapshot struct {
	Published        uint64        `json:"published"`
	PublishFailed    uint64        `json:"publish_failed"`
	Retries          uint64        `json:"retries"`
	PublishLatency   time.Duration `json:"publish_latency_avg_ns"`
	Delivered        uint64        `json:"delivered"`
	Dropped          uint64        `json:"dropped"`
	Reconnects       uint64        `json:"reconnects"`
	ReconnectsFailed uint64        `json:"reconnects_failed"`
	LastFrame        time.Time     `json:"last_frame,omitzero"`
}

// Snapshot collects the ManualReader and folds the data points into totals.
func (m *Metrics) Snapshot(ctx context.Context) (CounterSnapshot, error) {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return CounterSnapshot{}, fmt.Errorf("failed to collect relay metrics: %w", err)
	}

	var s CounterSnapshot
	sums := map[string]*uint64{
		metricPublished:       &s.Published,
		metricPublishFailed:   &s.PublishFailed,
		metricRetries:         &s.Retries,
		metricDelivered:       &s.Delivered,
		metricDropped:         &s.Dropped,
		metricReconnects:      &s.Reconnects,
		metricReconnectFailed: &s.ReconnectsFailed,
	}
	for _, scope := range rm.ScopeMetrics {
		for _, md := range scope.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				dst, ok := sums[md.Name]
				if !ok {
					continue
				}
				for _, dp := range data.DataPoints {
					*dst += uint64(dp.Value)
				}
			case metricdata.Histogram[float64]:
				if md.Name != metricPublishDuration {
					continue
				}
				var count uint64
				var total float64
				for _, dp := range data.DataPoints {
					count += dp.Count
					total += dp.Sum
				}
				if count > 0 {
					s.PublishLatency = time.Duration(total / float64(count) * float64(time.Second))
				}
			case metricdata.Gauge[int64]:
				if md.Name != metricLastFrame {
					continue
				}
				for _, dp := range data.DataPoints {
					if t := time.Unix(0, dp.Value).UTC(); t.After(s.LastFrame) {
						s.LastFrame = t
					}
				}
			}
		}
	}
	return s, nil
}
