package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/cadence/internal/shared/domain"
)

const (
	AggregateUsage        = "usage"
	AggregateSubscription = "subscription"

	RoutingKeyUsageRecorded        = "usage.event.recorded"
	RoutingKeySubscriptionUpserted = "billing.subscription.upserted"
)

// UsageRecorded is emitted when the gate admits and stores a usage event.
type UsageRecorded struct {
	sharedDomain.BaseEvent
	UsageEventID string    `json:"usage_event_id"`
	UserID       string    `json:"user_id"`
	Kind         EventKind `json:"event_kind"`
	Quantity     float64   `json:"quantity"`
	RequestID    string    `json:"request_id,omitempty"`
	Plan         Plan      `json:"plan"`
	UsedAfter    float64   `json:"used_after"`
	Limit        float64   `json:"limit"`
}

// NewUsageRecorded builds the event for an admitted usage event.
func NewUsageRecorded(event *UsageEvent, plan Plan, usedAfter, limit float64) *UsageRecorded {
	return &UsageRecorded{
		BaseEvent:    sharedDomain.NewBaseEvent(event.UserID, AggregateUsage, RoutingKeyUsageRecorded, event.CreatedAt),
		UsageEventID: event.ID.String(),
		UserID:       event.UserID,
		Kind:         event.Kind,
		Quantity:     event.Quantity,
		RequestID:    event.RequestID,
		Plan:         plan,
		UsedAfter:    usedAfter,
		Limit:        limit,
	}
}

// SubscriptionUpserted is emitted when a subscription record is overwritten.
type SubscriptionUpserted struct {
	sharedDomain.BaseEvent
	UserID           string             `json:"user_id"`
	Plan             Plan               `json:"plan"`
	Status           SubscriptionStatus `json:"status"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	Provider         string             `json:"provider,omitempty"`
}

// NewSubscriptionUpserted builds the event for sub.
func NewSubscriptionUpserted(sub *Subscription) *SubscriptionUpserted {
	return &SubscriptionUpserted{
		BaseEvent:        sharedDomain.NewBaseEvent(sub.UserID, AggregateSubscription, RoutingKeySubscriptionUpserted, sub.UpdatedAt),
		UserID:           sub.UserID,
		Plan:             sub.Plan,
		Status:           sub.Status,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		Provider:         sub.Provider,
	}
}
