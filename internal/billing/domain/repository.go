package domain

import (
	"context"
	"time"
)

// SubscriptionRepository stores one subscription record per user.
type SubscriptionRepository interface {
	// Upsert overwrites the record for subscription.UserID.
	Upsert(ctx context.Context, subscription *Subscription) error
	// FindByUserID returns nil, nil when the user has no record.
	FindByUserID(ctx context.Context, userID string) (*Subscription, error)
}

// UsageRepository is the append-only usage ledger.
type UsageRepository interface {
	// Append stores event. A repeated (user, kind, request id) returns ErrDuplicateRequest.
	Append(ctx context.Context, event *UsageEvent) error
	// SumSince totals quantity for (user, kind) with created_at >= since.
	SumSince(ctx context.Context, userID string, kind EventKind, since time.Time) (float64, error)
	// FindByRequestID returns nil, nil when no event carries requestID.
	FindByRequestID(ctx context.Context, userID string, kind EventKind, requestID string) (*UsageEvent, error)
}

// QuotaLocker serializes count-then-append for one (user, kind) within the
// transaction carried by ctx.
type QuotaLocker interface {
	LockQuota(ctx context.Context, userID string, kind EventKind) error
}
