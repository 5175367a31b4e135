// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, distributed tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/lingostream/lingostream"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per fan-out stage ---

	// TranslateDuration tracks one translation call's latency.
	TranslateDuration metric.Float64Histogram

	// SynthesizeDuration tracks one synthesis call's latency, cache misses
	// only.
	SynthesizeDuration metric.Float64Histogram

	// SentenceFanoutDuration tracks a full sentence fan-out, from sentence
	// emission to the last broadcast.
	SentenceFanoutDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors by provider and kind.
	ProviderErrors metric.Int64Counter

	// SentencesEmitted counts aggregated sentences entering the fan-out.
	SentencesEmitted metric.Int64Counter

	// BroadcastsDropped counts room messages lost to full listener queues.
	BroadcastsDropped metric.Int64Counter

	// CacheLookups counts synthesis cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// provider round-trips in an interpretation pipeline.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranslateDuration, err = m.Float64Histogram("lingostream.translate.duration",
		metric.WithDescription("Latency of one translation call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesizeDuration, err = m.Float64Histogram("lingostream.synthesize.duration",
		metric.WithDescription("Latency of one speech synthesis call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SentenceFanoutDuration, err = m.Float64Histogram("lingostream.sentence.fanout.duration",
		metric.WithDescription("Latency of a full sentence fan-out."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("lingostream.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("lingostream.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.SentencesEmitted, err = m.Int64Counter("lingostream.sentences",
		metric.WithDescription("Total aggregated sentences entering the fan-out."),
	); err != nil {
		return nil, err
	}
	if met.BroadcastsDropped, err = m.Int64Counter("lingostream.broadcasts.dropped",
		metric.WithDescription("Total room messages dropped for slow listeners."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("lingostream.synthcache.lookups",
		metric.WithDescription("Total synthesis cache lookups by result."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lingostream.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RegisterStateGauges registers observable gauges for the live room,
// listener, and speaker stream counts. The callbacks run on every scrape.
// The returned registration should be unregistered on shutdown.
func RegisterStateGauges(mp metric.MeterProvider, rooms, listeners, streams func() int64) (metric.Registration, error) {
	m := mp.Meter(meterName)

	roomsGauge, err := m.Int64ObservableGauge("lingostream.rooms.active",
		metric.WithDescription("Number of live session rooms."))
	if err != nil {
		return nil, err
	}
	listenersGauge, err := m.Int64ObservableGauge("lingostream.listeners.active",
		metric.WithDescription("Number of connected listeners across all rooms."))
	if err != nil {
		return nil, err
	}
	streamsGauge, err := m.Int64ObservableGauge("lingostream.speaker_streams.active",
		metric.WithDescription("Number of live speaker streams."))
	if err != nil {
		return nil, err
	}

	return m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(roomsGauge, rooms())
		o.ObserveInt64(listenersGauge, listeners())
		o.ObserveInt64(streamsGauge, streams())
		return nil
	}, roomsGauge, listenersGauge, streamsGauge)
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCacheLookup records one synthesis cache lookup.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordBroadcast records the dropped-delivery count of one broadcast.
func (m *Metrics) RecordBroadcast(ctx context.Context, dropped int) {
	if dropped > 0 {
		m.BroadcastsDropped.Add(ctx, int64(dropped))
	}
}
