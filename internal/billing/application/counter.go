package application

import (
	"context"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
)

// UsageCounter reports month-to-date consumption.
type UsageCounter struct {
	usage domain.UsageRepository
	opts  options
}

// NewUsageCounter creates a counter over the usage ledger.
func NewUsageCounter(usage domain.UsageRepository, opts ...Option) *UsageCounter {
	return &UsageCounter{usage: usage, opts: newOptions(opts)}
}

// CountThisMonth sums the quantity of (userID, kind) events since the
// start of the current UTC month. Storage failures return
// ErrStorageUnavailable.
func (c *UsageCounter) CountThisMonth(ctx context.Context, userID string, kind domain.EventKind) (float64, error) {
	readCtx, cancel := c.opts.withTimeout(ctx)
	defer cancel()

	total, err := c.usage.SumSince(readCtx, userID, kind, domain.MonthStart(c.opts.now()))
	if err != nil {
		return 0, storageError("count usage", err)
	}
	if total < 0 {
		return 0, nil
	}
	return domain.RoundQuantity(total), nil
}
