package observability

import (
	"log/slog"
	"time"
)

// Timer measures an operation and records it as a Timing metric.
type Timer struct {
	metric  string
	start   time.Time
	logger  *slog.Logger
	metrics Metrics
	tags    []Tag
}

// StartTimer starts timing against the named metric.
func StartTimer(metric string) *Timer {
	return &Timer{
		metric: metric,
		start:  time.Now(),
	}
}

// WithLogger logs the duration at debug level on stop.
func (t *Timer) WithLogger(logger *slog.Logger) *Timer {
	t.logger = logger
	return t
}

// WithMetrics sets the metrics sink.
func (t *Timer) WithMetrics(metrics Metrics) *Timer {
	t.metrics = metrics
	return t
}

// WithTags adds labels to the recorded timing.
func (t *Timer) WithTags(tags ...Tag) *Timer {
	t.tags = append(t.tags, tags...)
	return t
}

// Stop records the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)

	if t.logger != nil {
		t.logger.Debug("operation timed",
			"metric", t.metric,
			"duration_ms", duration.Milliseconds(),
		)
	}
	if t.metrics != nil {
		t.metrics.Timing(t.metric, duration, t.tags...)
	}
	return duration
}

// Elapsed returns the elapsed time without stopping the timer.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
