package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"golang.org/x/sync/errgroup"
)

// StatusService serves read-only plan and usage views.
type StatusService struct {
	resolver      *PlanResolver
	counter       *UsageCounter
	subscriptions domain.SubscriptionRepository
	opts          options
}

// NewStatusService creates a StatusService.
func NewStatusService(resolver *PlanResolver, counter *UsageCounter, subscriptions domain.SubscriptionRepository, opts ...Option) *StatusService {
	return &StatusService{
		resolver:      resolver,
		counter:       counter,
		subscriptions: subscriptions,
		opts:          newOptions(opts),
	}
}

// UsageStatus returns the effective plan and month-to-date usage of every
// kind. The kinds are counted concurrently.
func (s *StatusService) UsageStatus(ctx context.Context, userID string) (domain.UsageStatus, error) {
	if userID == "" {
		return domain.UsageStatus{}, domain.ErrUserRequired
	}
	effective := s.resolver.ResolveEffectivePlan(ctx, userID)

	kinds := domain.EventKinds()
	used := make([]float64, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			n, err := s.counter.CountThisMonth(gctx, userID, kind)
			used[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return domain.UsageStatus{}, err
	}

	status := domain.UsageStatus{
		UserID: userID,
		Plan:   effective.Plan,
		Active: effective.Active,
		Kinds:  make(map[domain.EventKind]domain.KindUsage, len(kinds)),
	}
	for i, kind := range kinds {
		limit := domain.Limit(effective.Plan, kind)
		status.Kinds[kind] = domain.KindUsage{
			Used:      used[i],
			Limit:     limit,
			Remaining: domain.Remaining(limit, used[i]),
		}
	}
	return status, nil
}

// PlanView combines the effective plan with the stored record.
type PlanView struct {
	Plan             domain.Plan     `json:"plan"`
	Active           bool            `json:"active"`
	Status           string          `json:"status"`
	StoredPlan       domain.Plan     `json:"stored_plan,omitempty"`
	CurrentPeriodEnd *time.Time      `json:"current_period_end,omitempty"`
	Provider         string          `json:"provider,omitempty"`
	Info             domain.PlanInfo `json:"info"`
}

// PlanInfo returns the user's effective plan alongside the raw record.
// Users without a record report status "none".
func (s *StatusService) PlanInfo(ctx context.Context, userID string) (PlanView, error) {
	if userID == "" {
		return PlanView{}, domain.ErrUserRequired
	}
	readCtx, cancel := s.opts.withTimeout(ctx)
	sub, err := s.subscriptions.FindByUserID(readCtx, userID)
	cancel()
	if err != nil {
		return PlanView{}, storageError("find subscription", err)
	}

	effective := domain.EffectivePlanOf(sub, s.opts.now())
	info, _ := domain.LookupPlan(effective.Plan)
	view := PlanView{
		Plan:   effective.Plan,
		Active: effective.Active,
		Status: "none",
		Info:   info,
	}
	if sub != nil {
		view.Status = string(sub.Status)
		view.StoredPlan = sub.Plan
		view.CurrentPeriodEnd = sub.CurrentPeriodEnd
		view.Provider = sub.Provider
	}
	return view, nil
}
