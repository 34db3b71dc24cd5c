package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFilesProcessed   = "filescope.files.processed.total"
	metricAnalysisDuration = "filescope.analysis.duration.seconds"
	metricHashBytes        = "filescope.hash.bytes.total"
	metricStoreWrites      = "filescope.store.writes.total"
	metricActiveSessions   = "filescope.sessions.active"

	attrAnalyzer = "analyzer"
	attrSuccess  = "success"
	attrOutcome  = "outcome"

	outcomeOK    = "ok"
	outcomeError = "error"
)

// durationBucketBoundaries covers 1ms to 300s: most per-file analyses are
// sub-second, while hashing large evidence images can run minutes.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300}

// metricBuilder accumulates OTel instrument creation errors,
// enabling batch construction with a single error check.
type metricBuilder struct {
	meter metric.Meter
	err   error
}

func newMetricBuilder(mt metric.Meter) *metricBuilder {
	return &metricBuilder{meter: mt}
}

// counter creates an Int64Counter instrument.
func (b *metricBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)

	return c
}

// histogram creates a Float64Histogram instrument with optional explicit bucket boundaries.
func (b *metricBuilder) histogram(name, desc, unit string, bounds ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(desc),
		metric.WithUnit(unit),
	}

	if len(bounds) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(bounds...))
	}

	h, err := b.meter.Float64Histogram(name, opts...)
	b.setErr(name, err)

	return h
}

// upDownCounter creates an Int64UpDownCounter instrument.
func (b *metricBuilder) upDownCounter(name, desc, unit string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)

	return c
}

// setErr records the first instrument creation error.
func (b *metricBuilder) setErr(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("create %s: %w", name, err)
	}
}

// ScanMetrics holds the OTel instruments for analysis session metrics.
type ScanMetrics struct {
	filesProcessed   metric.Int64Counter
	analysisDuration metric.Float64Histogram
	hashBytes        metric.Int64Counter
	storeWrites      metric.Int64Counter
	activeSessions   metric.Int64UpDownCounter
}

// NewScanMetrics creates the session metric instruments from the given meter.
func NewScanMetrics(mt metric.Meter) (*ScanMetrics, error) {
	b := newMetricBuilder(mt)

	sm := &ScanMetrics{
		filesProcessed:   b.counter(metricFilesProcessed, "Files processed by analysis sessions", "{file}"),
		analysisDuration: b.histogram(metricAnalysisDuration, "Per-file analysis duration in seconds", "s", durationBucketBoundaries...),
		hashBytes:        b.counter(metricHashBytes, "Bytes fed through the hash engine", "By"),
		storeWrites:      b.counter(metricStoreWrites, "Result store write attempts by outcome", "{write}"),
		activeSessions:   b.upDownCounter(metricActiveSessions, "Currently running analysis sessions", "{session}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return sm, nil
}

// RecordFile records one processed file. Safe to call on a nil receiver (no-op).
func (sm *ScanMetrics) RecordFile(ctx context.Context, analyzer string, success bool, d time.Duration) {
	if sm == nil {
		return
	}

	sm.filesProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrAnalyzer, analyzer),
		attribute.Bool(attrSuccess, success),
	))
	sm.analysisDuration.Record(ctx, d.Seconds())
}

// RecordHashedBytes records bytes consumed by digest computation.
func (sm *ScanMetrics) RecordHashedBytes(ctx context.Context, n int64) {
	if sm == nil {
		return
	}

	sm.hashBytes.Add(ctx, n)
}

// RecordStoreWrite records a result persistence attempt.
func (sm *ScanMetrics) RecordStoreWrite(ctx context.Context, err error) {
	if sm == nil {
		return
	}

	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}

	sm.storeWrites.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, outcome)))
}

// SessionStarted increments the active session gauge.
func (sm *ScanMetrics) SessionStarted(ctx context.Context) {
	if sm == nil {
		return
	}

	sm.activeSessions.Add(ctx, 1)
}

// SessionEnded decrements the active session gauge.
func (sm *ScanMetrics) SessionEnded(ctx context.Context) {
	if sm == nil {
		return
	}

	sm.activeSessions.Add(ctx, -1)
}
