package application

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/cadence/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/cadence/internal/shared/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/cadence/pkg/observability"
)

// SubscriptionUpsert is the inbound billing sync payload.
type SubscriptionUpsert struct {
	UserID                 string     `json:"user_id"`
	Plan                   string     `json:"plan"`
	Status                 string     `json:"status"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	Provider               string     `json:"provider,omitempty"`
	ProviderCustomerID     string     `json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID string     `json:"provider_subscription_id,omitempty"`
}

// Invalidator is implemented by subscription repositories that cache reads.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// SyncService is the only writer of subscription records.
type SyncService struct {
	subscriptions domain.SubscriptionRepository
	outbox        outbox.Repository
	uow           sharedApplication.UnitOfWork
	opts          options
}

// NewSyncService creates a SyncService. outboxRepo and uow may be nil.
func NewSyncService(subscriptions domain.SubscriptionRepository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork, opts ...Option) *SyncService {
	return &SyncService{
		subscriptions: subscriptions,
		outbox:        outboxRepo,
		uow:           uow,
		opts:          newOptions(opts),
	}
}

// Upsert validates in and overwrites the user's record. Last write wins.
func (s *SyncService) Upsert(ctx context.Context, in SubscriptionUpsert) (*domain.Subscription, error) {
	sub, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}

	observability.LogOperation(s.opts.logger, "billing.upsert").InfoContext(ctx, "subscription upserted",
		"user_id", sub.UserID,
		"plan", sub.Plan,
		"status", sub.Status,
		"provider", sub.Provider,
	)
	return sub, nil
}

// Cancel marks the user's record canceled, which drops them to free.
func (s *SyncService) Cancel(ctx context.Context, userID string) (*domain.Subscription, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	readCtx, cancel := s.opts.withTimeout(ctx)
	sub, err := s.subscriptions.FindByUserID(readCtx, userID)
	cancel()
	if err != nil {
		return nil, storageError("find subscription", err)
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}

	sub.Status = domain.SubscriptionCanceled
	sub.UpdatedAt = s.opts.now().UTC()
	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}

	observability.LogOperation(s.opts.logger, "billing.cancel").InfoContext(ctx, "subscription canceled",
		"user_id", userID,
		"plan", sub.Plan,
	)
	return sub, nil
}

func (s *SyncService) validate(in SubscriptionUpsert) (*domain.Subscription, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSubscription, domain.ErrUserRequired)
	}
	plan, err := domain.ParsePlan(in.Plan)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSubscription, err)
	}
	status, err := domain.ParseSubscriptionStatus(in.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSubscription, err)
	}

	now := s.opts.now().UTC()
	sub := &domain.Subscription{
		UserID:                 in.UserID,
		Plan:                   plan,
		Status:                 status,
		Provider:               in.Provider,
		ProviderCustomerID:     in.ProviderCustomerID,
		ProviderSubscriptionID: in.ProviderSubscriptionID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if in.CurrentPeriodEnd != nil {
		end := in.CurrentPeriodEnd.UTC()
		sub.CurrentPeriodEnd = &end
	}
	return sub, nil
}

func (s *SyncService) save(ctx context.Context, sub *domain.Subscription) error {
	writeCtx, cancel := s.opts.withTimeout(context.WithoutCancel(ctx))
	defer cancel()

	err := sharedApplication.WithUnitOfWork(writeCtx, s.uow, func(txCtx context.Context) error {
		if err := s.subscriptions.Upsert(txCtx, sub); err != nil {
			return storageError("upsert subscription", err)
		}
		if s.outbox == nil {
			return nil
		}
		events := []sharedDomain.DomainEvent{domain.NewSubscriptionUpserted(sub)}
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, sub.UserID))
		msgs, err := outbox.NewMessages(events)
		if err != nil {
			return fmt.Errorf("encode subscription event: %w", err)
		}
		if err := s.outbox.SaveBatch(txCtx, msgs); err != nil {
			return storageError("save outbox", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if inv, ok := s.subscriptions.(Invalidator); ok {
		if err := inv.Invalidate(ctx, sub.UserID); err != nil {
			s.opts.logger.WarnContext(ctx, "subscription cache invalidation failed",
				"user_id", sub.UserID,
				"error", err,
			)
		}
	}
	return nil
}
