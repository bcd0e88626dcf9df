package application

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/cadence/pkg/observability"
)

// Fallback reasons recorded on MetricPlanResolveFallback.
const (
	fallbackNoRecord    = "no_record"
	fallbackNotEntitled = "not_entitled"
	fallbackTimeout     = "timeout"
	fallbackError       = "error"
)

// PlanResolver maps a user to the plan they are entitled to right now.
type PlanResolver struct {
	subscriptions domain.SubscriptionRepository
	opts          options
}

// NewPlanResolver creates a resolver reading from subscriptions.
func NewPlanResolver(subscriptions domain.SubscriptionRepository, opts ...Option) *PlanResolver {
	return &PlanResolver{subscriptions: subscriptions, opts: newOptions(opts)}
}

// ResolveEffectivePlan never fails: lookup errors, timeouts, missing and
// non-entitling records all resolve to the free plan.
func (r *PlanResolver) ResolveEffectivePlan(ctx context.Context, userID string) domain.EffectivePlan {
	readCtx, cancel := r.opts.withTimeout(ctx)
	defer cancel()

	sub, err := r.subscriptions.FindByUserID(readCtx, userID)
	if err != nil {
		reason := fallbackError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fallbackTimeout
		}
		r.opts.logger.WarnContext(ctx, "subscription lookup failed, using free plan",
			"user_id", userID,
			"reason", reason,
			"error", err,
		)
		r.fallback(reason)
		return domain.FreePlan
	}
	if sub == nil {
		r.fallback(fallbackNoRecord)
		return domain.FreePlan
	}

	effective := domain.EffectivePlanOf(sub, r.opts.now())
	if !effective.Active {
		r.fallback(fallbackNotEntitled)
	}
	return effective
}

func (r *PlanResolver) fallback(reason string) {
	r.opts.metrics.Counter(observability.MetricPlanResolveFallback, 1, observability.T("reason", reason))
}
