package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/cadence/pkg/observability"
)

// DefaultStorageTimeout bounds every storage call.
const DefaultStorageTimeout = 3 * time.Second

type options struct {
	now            func() time.Time
	logger         *slog.Logger
	metrics        observability.Metrics
	storageTimeout time.Duration
	locker         domain.QuotaLocker
}

// Option configures the billing services.
type Option func(*options)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics observability.Metrics) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithStorageTimeout bounds each storage call. Non-positive values keep the default.
func WithStorageTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.storageTimeout = d
		}
	}
}

// WithHardQuota makes the gate lock (user, kind) and count inside the
// write transaction. Only the Gate reads it.
func WithHardQuota(locker domain.QuotaLocker) Option {
	return func(o *options) {
		o.locker = locker
	}
}

func newOptions(opts []Option) options {
	o := options{
		now:            time.Now,
		logger:         slog.Default(),
		metrics:        observability.NoopMetrics{},
		storageTimeout: DefaultStorageTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.storageTimeout)
}

// storageError tags err as ErrStorageUnavailable unless it already is.
func storageError(op string, err error) error {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}
