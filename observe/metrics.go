package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records subscription lifecycle and fan-out metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOpen records a transport subscription being opened.
	RecordOpen(ctx context.Context, functionRef string)

	// RecordClose records a transport subscription being closed.
	RecordClose(ctx context.Context, functionRef string)

	// RecordUpdate records one transport push fanned out to the given
	// number of listeners. failed reports whether the push carried an
	// error result.
	RecordUpdate(ctx context.Context, functionRef string, listeners int, failed bool)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	openCount   metric.Int64Counter
	closeCount  metric.Int64Counter
	activeSubs  metric.Int64UpDownCounter
	updateCount metric.Int64Counter
	errorCount  metric.Int64Counter
	fanoutHist  metric.Int64Histogram
}

// NewMetrics creates a Metrics instance recording through the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	openCount, err := meter.Int64Counter(
		"livequery.subscriptions.opened",
		metric.WithDescription("Total number of transport subscriptions opened"),
		metric.WithUnit("{subscription}"),
	)
	if err != nil {
		return nil, err
	}

	closeCount, err := meter.Int64Counter(
		"livequery.subscriptions.closed",
		metric.WithDescription("Total number of transport subscriptions closed"),
		metric.WithUnit("{subscription}"),
	)
	if err != nil {
		return nil, err
	}

	activeSubs, err := meter.Int64UpDownCounter(
		"livequery.subscriptions.active",
		metric.WithDescription("Number of currently open transport subscriptions"),
		metric.WithUnit("{subscription}"),
	)
	if err != nil {
		return nil, err
	}

	updateCount, err := meter.Int64Counter(
		"livequery.updates.total",
		metric.WithDescription("Total number of transport pushes received"),
		metric.WithUnit("{push}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"livequery.updates.errors",
		metric.WithDescription("Total number of transport pushes carrying an error"),
		metric.WithUnit("{push}"),
	)
	if err != nil {
		return nil, err
	}

	fanoutHist, err := meter.Int64Histogram(
		"livequery.updates.fanout",
		metric.WithDescription("Listeners notified per transport push"),
		metric.WithUnit("{listener}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		openCount:   openCount,
		closeCount:  closeCount,
		activeSubs:  activeSubs,
		updateCount: updateCount,
		errorCount:  errorCount,
		fanoutHist:  fanoutHist,
	}, nil
}

func functionAttrs(functionRef string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("query.function", functionRef))
}

// RecordOpen records a subscription opening.
func (m *metricsImpl) RecordOpen(ctx context.Context, functionRef string) {
	opt := functionAttrs(functionRef)
	m.openCount.Add(ctx, 1, opt)
	m.activeSubs.Add(ctx, 1, opt)
}

// RecordClose records a subscription closing.
func (m *metricsImpl) RecordClose(ctx context.Context, functionRef string) {
	opt := functionAttrs(functionRef)
	m.closeCount.Add(ctx, 1, opt)
	m.activeSubs.Add(ctx, -1, opt)
}

// RecordUpdate records one push fan-out.
func (m *metricsImpl) RecordUpdate(ctx context.Context, functionRef string, listeners int, failed bool) {
	opt := functionAttrs(functionRef)
	m.updateCount.Add(ctx, 1, opt)
	if failed {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.fanoutHist.Record(ctx, int64(listeners), opt)
}

// nopMetrics records nothing.
type nopMetrics struct{}

// NopMetrics returns a Metrics implementation that records nothing.
func NopMetrics() Metrics {
	return nopMetrics{}
}

func (nopMetrics) RecordOpen(context.Context, string)              {}
func (nopMetrics) RecordClose(context.Context, string)             {}
func (nopMetrics) RecordUpdate(context.Context, string, int, bool) {}

var _ Metrics = (*metricsImpl)(nil)
var _ Metrics = nopMetrics{}
