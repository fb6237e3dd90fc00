// Package observe provides application-wide observability primitives for
// hearsay: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hearsay metrics.
const meterName = "github.com/hearsay-live/hearsay"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ASRLatency tracks speech-to-text latency. For the streaming path this
	// is the time from StartStream to readiness; for the buffered path it is
	// one Transcribe round trip. Use with attribute:
	//   attribute.String("provider", ...)
	ASRLatency metric.Float64Histogram

	// TranslationLatency tracks one translation round trip.
	TranslationLatency metric.Float64Histogram

	// --- Counters ---

	// AudioFrames counts ingested audio frames. Use with attribute:
	//   attribute.String("codec", ...)
	AudioFrames metric.Int64Counter

	// TranslationErrors counts failed or timed-out translations.
	TranslationErrors metric.Int64Counter

	// SegmentsClosed counts segments closed by the supervisor or by
	// session teardown.
	SegmentsClosed metric.Int64Counter

	// WSMessages counts websocket messages. Use with attribute:
	//   attribute.String("direction", "in"|"out")
	WSMessages metric.Int64Counter

	// HTTPRequests counts HTTP requests by method, path, and status.
	HTTPRequests metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live transcription sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPLatency tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPLatency metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// the pipeline's stage timeouts: translations cut off at 15s, batch ASR at 30s.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ASRLatency, err = m.Float64Histogram("hearsay.asr.latency",
		metric.WithDescription("Latency of speech-to-text operations by provider."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationLatency, err = m.Float64Histogram("hearsay.translation.latency",
		metric.WithDescription("Latency of one translation round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AudioFrames, err = m.Int64Counter("hearsay.audio.frames",
		metric.WithDescription("Total ingested audio frames by codec."),
	); err != nil {
		return nil, err
	}
	if met.TranslationErrors, err = m.Int64Counter("hearsay.translation.errors",
		metric.WithDescription("Total failed or timed-out translations."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsClosed, err = m.Int64Counter("hearsay.segments.closed",
		metric.WithDescription("Total closed transcript segments."),
	); err != nil {
		return nil, err
	}
	if met.WSMessages, err = m.Int64Counter("hearsay.ws.messages",
		metric.WithDescription("Total websocket messages by direction."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequests, err = m.Int64Counter("hearsay.http.requests",
		metric.WithDescription("Total HTTP requests by method, path, and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("hearsay.sessions.active",
		metric.WithDescription("Number of live transcription sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPLatency, err = m.Float64Histogram("hearsay.http.latency",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
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

// RecordAudioFrame records one ingested audio frame for the given codec.
func (m *Metrics) RecordAudioFrame(ctx context.Context, codec string) {
	m.AudioFrames.Add(ctx, 1,
		metric.WithAttributes(attribute.String("codec", codec)),
	)
}

// RecordASRLatency records one ASR operation's duration for the given
// provider.
func (m *Metrics) RecordASRLatency(ctx context.Context, provider string, d time.Duration) {
	m.ASRLatency.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordTranslation records one translation round trip. Failed translations
// also bump the error counter.
func (m *Metrics) RecordTranslation(ctx context.Context, d time.Duration, failed bool) {
	m.TranslationLatency.Record(ctx, d.Seconds())
	if failed {
		m.TranslationErrors.Add(ctx, 1)
	}
}

// RecordSegmentClosed records one closed segment.
func (m *Metrics) RecordSegmentClosed(ctx context.Context) {
	m.SegmentsClosed.Add(ctx, 1)
}

// RecordWSMessage records one websocket message in the given direction
// ("in" for client-to-server, "out" for server-to-client).
func (m *Metrics) RecordWSMessage(ctx context.Context, direction string) {
	m.WSMessages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("direction", direction)),
	)
}
