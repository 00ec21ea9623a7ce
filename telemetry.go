package pidlock

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"pkt.systems/pslog"
)

const meterName = "pkt.systems/pidlock"

type lockMetrics struct {
	attempts  metric.Int64Counter
	contended metric.Int64Counter
	reclaimed metric.Int64Counter
	released  metric.Int64Counter
	waitMs    metric.Int64Histogram
}

func newLockMetrics(mp metric.MeterProvider, logger pslog.Logger) *lockMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &lockMetrics{}
	var err error

	m.attempts, err = meter.Int64Counter(
		"pidlock.acquire.attempts",
		metric.WithDescription("Exclusive create attempts"),
	)
	logMetricInitError(logger, "pidlock.acquire.attempts", err)

	m.contended, err = meter.Int64Counter(
		"pidlock.acquire.contended",
		metric.WithDescription("Exclusive create attempts that found the pidfile present"),
	)
	logMetricInitError(logger, "pidlock.acquire.contended", err)

	m.reclaimed, err = meter.Int64Counter(
		"pidlock.stale.reclaimed",
		metric.WithDescription("Stale pidfiles removed by a waiter"),
	)
	logMetricInitError(logger, "pidlock.stale.reclaimed", err)

	m.released, err = meter.Int64Counter(
		"pidlock.release.total",
		metric.WithDescription("Lock releases by result"),
	)
	logMetricInitError(logger, "pidlock.release.total", err)

	m.waitMs, err = meter.Int64Histogram(
		"pidlock.acquire.wait_ms",
		metric.WithDescription("Time spent acquiring a pidfile"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "pidlock.acquire.wait_ms", err)

	return m
}

func (m *lockMetrics) recordAttempt(ctx context.Context, created bool) {
	if m == nil {
		return
	}
	if m.attempts != nil {
		m.attempts.Add(ctx, 1)
	}
	if !created && m.contended != nil {
		m.contended.Add(ctx, 1)
	}
}

func (m *lockMetrics) recordReclaim(ctx context.Context) {
	if m == nil || m.reclaimed == nil {
		return
	}
	m.reclaimed.Add(ctx, 1)
}

func (m *lockMetrics) recordAcquire(ctx context.Context, elapsed time.Duration, err error) {
	if m == nil || m.waitMs == nil {
		return
	}
	m.waitMs.Record(ctx, elapsed.Milliseconds(), metric.WithAttributes(
		attribute.String("pidlock.acquire.result", acquireResultLabel(err)),
	))
}

func (m *lockMetrics) recordRelease(held bool) {
	if m == nil || m.released == nil {
		return
	}
	result := "lost"
	if held {
		result = "removed"
	}
	m.released.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("pidlock.release.result", result),
	))
}

func acquireResultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case isLocked(err):
		return "contended"
	case isCanceled(err):
		return "canceled"
	default:
		return "error"
	}
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
