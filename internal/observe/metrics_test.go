package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordPass(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPass(ctx, "format", OutcomeApplied, 2*time.Second)
	m.RecordPass(ctx, "format", OutcomeApplied, time.Second)
	m.RecordPass(ctx, "format", OutcomeBusy, 0)

	rm := collect(t, reader)
	passes := findMetric(rm, "mojinote.passes")
	if passes == nil {
		t.Fatal("mojinote.passes not found")
	}
	sum, ok := passes.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("mojinote.passes is not a sum")
	}
	var applied int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value("outcome"); ok && v.AsString() == OutcomeApplied {
			applied = dp.Value
		}
	}
	if applied != 2 {
		t.Fatalf("applied passes = %d, want 2", applied)
	}

	dur := findMetric(rm, "mojinote.pass.duration")
	if dur == nil {
		t.Fatal("mojinote.pass.duration not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("pass duration data = %#v", dur.Data)
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Fatalf("duration samples = %d, want 2", got)
	}
}

func TestSessionGaugeAndBufferedRunes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionEnded(ctx)
	m.SetBufferedRunes(ctx, "s1", 42)

	rm := collect(t, reader)
	active := findMetric(rm, "mojinote.active_sessions")
	if active == nil {
		t.Fatal("mojinote.active_sessions not found")
	}
	sum := active.Data.(metricdata.Sum[int64])
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}

	buffered := findMetric(rm, "mojinote.transcript_buffer.runes")
	if buffered == nil {
		t.Fatal("mojinote.transcript_buffer.runes not found")
	}
	gauge := buffered.Data.(metricdata.Gauge[int64])
	if got := gauge.DataPoints[0].Value; got != 42 {
		t.Fatalf("buffered runes = %d, want 42", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordPass(context.Background(), "organize", OutcomeApplied, time.Second)
	m.RecordChunk(context.Background(), OutcomeOK, time.Second)
	m.SessionStarted(context.Background())
}
