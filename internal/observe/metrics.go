// Package observe provides application-wide observability primitives for
// the Auricle capture agent: OpenTelemetry metrics, tracing, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Auricle metrics.
const meterName = "github.com/MrWong99/auricle"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Pipeline histograms ---

	// FrameProcessing tracks per-frame processing time in the engine. The
	// buckets are sub-millisecond because a 20ms frame leaves only a few
	// thousand microseconds of budget.
	FrameProcessing metric.Float64Histogram

	// ChunkRoundTrip tracks chunk round-trip latency to the analysis
	// service.
	ChunkRoundTrip metric.Float64Histogram

	// --- Counters ---

	// ChunksEmitted counts chunks produced by the engine.
	ChunksEmitted metric.Int64Counter

	// VADDecisions counts per-frame stable VAD decisions. Use with
	// attribute: attribute.Bool("speech", ...)
	VADDecisions metric.Int64Counter

	// ChunksAdmitted counts chunks sent to the analysis service.
	ChunksAdmitted metric.Int64Counter

	// ChunksDropped counts chunks dropped before transmission. Use with
	// attribute: attribute.String("reason", ...) — "vad", "queue".
	ChunksDropped metric.Int64Counter

	// EngineWarnings counts buffer and performance warnings. Use with
	// attribute: attribute.String("kind", ...)
	EngineWarnings metric.Int64Counter

	// --- Gauges ---

	// NetworkQuality tracks the current quality ordinal (0=poor ..
	// 3=excellent).
	NetworkQuality metric.Int64Gauge

	// EngineState tracks the engine state ordinal (0=idle, 1=initializing,
	// 2=running, 3=error).
	EngineState metric.Int64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks ops-listener request processing time. Use
	// with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// frameBuckets defines histogram bucket boundaries (in seconds) for
// per-frame processing time.
var frameBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// network round trips.
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
	if met.FrameProcessing, err = m.Float64Histogram("auricle.engine.frame.duration",
		metric.WithDescription("Per-frame processing time in the audio engine."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunkRoundTrip, err = m.Float64Histogram("auricle.stream.roundtrip.duration",
		metric.WithDescription("Chunk round-trip latency to the analysis service."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksEmitted, err = m.Int64Counter("auricle.engine.chunks.emitted",
		metric.WithDescription("Total chunks produced by the engine."),
	); err != nil {
		return nil, err
	}
	if met.VADDecisions, err = m.Int64Counter("auricle.vad.decisions",
		metric.WithDescription("Total stable VAD decisions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ChunksAdmitted, err = m.Int64Counter("auricle.stream.chunks.admitted",
		metric.WithDescription("Total chunks sent to the analysis service."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("auricle.stream.chunks.dropped",
		metric.WithDescription("Total chunks dropped before transmission by reason."),
	); err != nil {
		return nil, err
	}
	if met.EngineWarnings, err = m.Int64Counter("auricle.engine.warnings",
		metric.WithDescription("Total buffer and performance warnings by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.NetworkQuality, err = m.Int64Gauge("auricle.stream.quality",
		metric.WithDescription("Current network quality ordinal (0=poor .. 3=excellent)."),
	); err != nil {
		return nil, err
	}
	if met.EngineState, err = m.Int64Gauge("auricle.engine.state",
		metric.WithDescription("Current engine state ordinal (0=idle, 1=initializing, 2=running, 3=error)."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("auricle.http.request.duration",
		metric.WithDescription("Ops-listener request latency by method and path."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordFrame records one frame's processing time.
func (m *Metrics) RecordFrame(ctx context.Context, seconds float64) {
	m.FrameProcessing.Record(ctx, seconds)
}

// RecordChunkEmitted records one emitted chunk together with its stable
// VAD decision.
func (m *Metrics) RecordChunkEmitted(ctx context.Context, speech bool) {
	m.ChunksEmitted.Add(ctx, 1)
	m.VADDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("speech", speech)),
	)
}

// RecordChunkAdmitted records one chunk sent to the analysis service.
func (m *Metrics) RecordChunkAdmitted(ctx context.Context) {
	m.ChunksAdmitted.Add(ctx, 1)
}

// RecordChunkDropped records one chunk dropped before transmission.
func (m *Metrics) RecordChunkDropped(ctx context.Context, reason string) {
	m.ChunksDropped.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordRoundTrip records one chunk round trip.
func (m *Metrics) RecordRoundTrip(ctx context.Context, seconds float64) {
	m.ChunkRoundTrip.Record(ctx, seconds)
}

// RecordWarning records one engine warning by kind.
func (m *Metrics) RecordWarning(ctx context.Context, kind string) {
	m.EngineWarnings.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}
