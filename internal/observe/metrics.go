// Package observe holds the OpenTelemetry instruments of the note pipeline
// and the Prometheus bridge that exposes them on /metrics.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/foxseedlab/mojinote"

// Pass and chunk outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeEmpty    = "empty"
	OutcomeBusy     = "busy"
	OutcomeFailed   = "failed"
	OutcomeConflict = "conflict"
	OutcomeOK       = "ok"
	OutcomeDropped  = "dropped"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	PassDuration   metric.Float64Histogram
	Passes         metric.Int64Counter
	ChunkDuration  metric.Float64Histogram
	Chunks         metric.Int64Counter
	ActiveSessions metric.Int64UpDownCounter
	BufferedRunes  metric.Int64Gauge
	DocumentRunes  metric.Int64Gauge
}

// latencyBuckets are in seconds. Transform calls on long notes take tens of
// seconds.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PassDuration, err = m.Float64Histogram("mojinote.pass.duration",
		metric.WithDescription("Latency of one organize, format, polish or cleanup pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Passes, err = m.Int64Counter("mojinote.passes",
		metric.WithDescription("Pipeline passes by layer and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ChunkDuration, err = m.Float64Histogram("mojinote.transcribe.duration",
		metric.WithDescription("Latency of one chunk transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Chunks, err = m.Int64Counter("mojinote.chunks",
		metric.WithDescription("Transcribed audio chunks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("mojinote.active_sessions",
		metric.WithDescription("Number of recording sessions."),
	); err != nil {
		return nil, err
	}
	if met.BufferedRunes, err = m.Int64Gauge("mojinote.transcript_buffer.runes",
		metric.WithDescription("Transcript text waiting for the organize pass."),
	); err != nil {
		return nil, err
	}
	if met.DocumentRunes, err = m.Int64Gauge("mojinote.document.runes",
		metric.WithDescription("Length of the note document."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) RecordPass(ctx context.Context, layer, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("layer", layer))
	m.Passes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("layer", layer),
		attribute.String("outcome", outcome),
	))
	if outcome == OutcomeApplied || outcome == OutcomeFailed || outcome == OutcomeConflict {
		m.PassDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func (m *Metrics) RecordChunk(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Chunks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome != OutcomeDropped {
		m.ChunkDuration.Record(ctx, elapsed.Seconds())
	}
}

func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) SessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}

func (m *Metrics) SetBufferedRunes(ctx context.Context, sessionID string, n int) {
	if m == nil {
		return
	}
	m.BufferedRunes.Record(ctx, int64(n), metric.WithAttributes(attribute.String("session_id", sessionID)))
}

func (m *Metrics) SetDocumentRunes(ctx context.Context, sessionID string, n int) {
	if m == nil {
		return
	}
	m.DocumentRunes.Record(ctx, int64(n), metric.WithAttributes(attribute.String("session_id", sessionID)))
}
