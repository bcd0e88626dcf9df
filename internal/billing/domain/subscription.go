package domain

import (
	"fmt"
	"strings"
	"time"
)

// SubscriptionStatus is the billing state reported by the payment provider.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// Valid reports whether s is a known status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue, SubscriptionCanceled, SubscriptionInactive:
		return true
	}
	return false
}

// ParseSubscriptionStatus parses a status name.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	status := SubscriptionStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown subscription status %q", s)
	}
	return status, nil
}

// Subscription is the single billing record of a user.
type Subscription struct {
	UserID                 string
	Plan                   Plan
	Status                 SubscriptionStatus
	CurrentPeriodEnd       *time.Time
	Provider               string
	ProviderCustomerID     string
	ProviderSubscriptionID string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsEntitling reports whether the record grants its plan at now.
func (s *Subscription) IsEntitling(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != SubscriptionActive && s.Status != SubscriptionTrialing {
		return false
	}
	return s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now)
}

// EffectivePlan is the plan a user is billed under right now.
type EffectivePlan struct {
	Plan   Plan `json:"plan"`
	Active bool `json:"active"`
}

// FreePlan is the fail-closed fallback.
var FreePlan = EffectivePlan{Plan: PlanFree, Active: false}

// EffectivePlanOf applies the entitling test to sub. Missing records,
// non-entitling records and records with an unknown plan resolve to free.
func EffectivePlanOf(sub *Subscription, now time.Time) EffectivePlan {
	if !sub.IsEntitling(now) || !sub.Plan.Valid() {
		return FreePlan
	}
	return EffectivePlan{Plan: sub.Plan, Active: true}
}
