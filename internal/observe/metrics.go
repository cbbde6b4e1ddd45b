// Package observe provides application-wide observability primitives for
// awkwardescape: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the Prometheus registry set up by [InitProvider]. Components default to
// [DefaultMetrics]; tests should build their own with [NewMetrics] and a
// [sdkmetric.ManualReader] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/awkwardescape"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Call lifecycle ---

	// CallTransitions counts state machine transitions. Attributes:
	//   attribute.String("event", "ring"|"answer"|"decline"|"end"|"reset"),
	//   attribute.String("mode", ...)
	CallTransitions metric.Int64Counter

	// CallDuration tracks how long answered calls last.
	CallDuration metric.Float64Histogram

	// ActiveCalls is 1 while a call is ringing or answered.
	ActiveCalls metric.Int64UpDownCounter

	// --- Script generation ---

	// ScriptGenerations counts generated scripts and messages. Attributes:
	//   attribute.String("kind", "call"|"message"),
	//   attribute.String("source", "llm"|"offline"),
	//   attribute.String("reason", ...) (why the offline path was taken)
	ScriptGenerations metric.Int64Counter

	// ScriptDuration tracks generation latency including fallbacks.
	ScriptDuration metric.Float64Histogram

	// --- Playback ---

	// PlaybackLines counts narrated lines. Attributes:
	//   attribute.String("speaker", ...), attribute.String("path", "tts"|"device"|"estimate")
	PlaybackLines metric.Int64Counter

	// --- Voice Guard ---

	// VoiceGuardSessions counts finished sessions by outcome.
	VoiceGuardSessions metric.Int64Counter

	// ActiveVoiceGuard is 1 while a voice-guard session is listening.
	ActiveVoiceGuard metric.Int64UpDownCounter

	// --- Platform ---

	// PermissionDenials counts denied platform permissions. Attribute:
	//   attribute.String("resource", "microphone"|"notifications")
	PermissionDenials metric.Int64Counter

	// ProviderRequests counts remote provider calls. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", "llm"|"tts"),
	//   attribute.String("status", "ok"|"error")
	ProviderRequests metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds, spanning a
// fast offline template up to a slow LLM round-trip.
var latencyBuckets = []float64{
	0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8,
}

// callBuckets covers fake calls from a hang-up to a long excuse, in seconds.
var callBuckets = []float64{5, 10, 20, 30, 60, 120, 300, 600}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CallTransitions, err = m.Int64Counter("awkwardescape.call.transitions",
		metric.WithDescription("Call lifecycle transitions by event and mode."),
	); err != nil {
		return nil, err
	}
	if met.CallDuration, err = m.Float64Histogram("awkwardescape.call.duration",
		metric.WithDescription("Duration of answered fake calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveCalls, err = m.Int64UpDownCounter("awkwardescape.call.active",
		metric.WithDescription("Calls currently ringing or answered."),
	); err != nil {
		return nil, err
	}

	if met.ScriptGenerations, err = m.Int64Counter("awkwardescape.script.generations",
		metric.WithDescription("Generated scripts and messages by kind, source and fallback reason."),
	); err != nil {
		return nil, err
	}
	if met.ScriptDuration, err = m.Float64Histogram("awkwardescape.script.duration",
		metric.WithDescription("Latency of script and message generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.PlaybackLines, err = m.Int64Counter("awkwardescape.playback.lines",
		metric.WithDescription("Narrated script lines by speaker and audio path."),
	); err != nil {
		return nil, err
	}

	if met.VoiceGuardSessions, err = m.Int64Counter("awkwardescape.voiceguard.sessions",
		metric.WithDescription("Finished voice-guard sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveVoiceGuard, err = m.Int64UpDownCounter("awkwardescape.voiceguard.active",
		metric.WithDescription("Voice-guard sessions currently listening."),
	); err != nil {
		return nil, err
	}

	if met.PermissionDenials, err = m.Int64Counter("awkwardescape.permission.denials",
		metric.WithDescription("Denied platform permissions by resource."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("awkwardescape.provider.requests",
		metric.WithDescription("Remote provider requests by provider, kind and status."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("awkwardescape.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCallTransition records one lifecycle transition.
func (m *Metrics) RecordCallTransition(ctx context.Context, event, mode string) {
	m.CallTransitions.Add(ctx, 1, metric.WithAttributes(Attr("event", event), Attr("mode", mode)))
}

// RecordScriptGeneration records a finished generation. reason is empty for
// successful LLM generations.
func (m *Metrics) RecordScriptGeneration(ctx context.Context, kind, source, reason string, d time.Duration) {
	attrs := metric.WithAttributes(Attr("kind", kind), Attr("source", source), Attr("reason", reason))
	m.ScriptGenerations.Add(ctx, 1, attrs)
	m.ScriptDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("kind", kind), Attr("source", source)))
}

// RecordPlaybackLine records one narrated line.
func (m *Metrics) RecordPlaybackLine(ctx context.Context, speaker, path string) {
	m.PlaybackLines.Add(ctx, 1, metric.WithAttributes(Attr("speaker", speaker), Attr("path", path)))
}

// RecordVoiceGuardOutcome records a finished voice-guard session.
func (m *Metrics) RecordVoiceGuardOutcome(ctx context.Context, outcome string) {
	m.VoiceGuardSessions.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordPermissionDenied records a denied platform permission.
func (m *Metrics) RecordPermissionDenied(ctx context.Context, resource string) {
	m.PermissionDenials.Add(ctx, 1, metric.WithAttributes(Attr("resource", resource)))
}

// RecordProviderRequest records a remote provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
		Attr("status", status),
	))
}
