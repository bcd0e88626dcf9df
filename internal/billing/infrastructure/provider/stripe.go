package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/application"
	"github.com/felixgeelhaar/cadence/internal/billing/domain"
)

// StripeName is the provider name used in routes and records.
const StripeName = "stripe"

type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Object             string            `json:"object"`
	Customer           json.RawMessage   `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	BillingCycleAnchor int64             `json:"billing_cycle_anchor"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// StripeTranslator handles customer.subscription.* events and bare
// subscription objects.
type StripeTranslator struct {
	prices map[string]domain.Plan
}

// NewStripeTranslator maps Stripe price ids to plans.
func NewStripeTranslator(prices map[string]string) (*StripeTranslator, error) {
	m, err := planMap(prices)
	if err != nil {
		return nil, fmt.Errorf("stripe price plans: %w", err)
	}
	return &StripeTranslator{prices: m}, nil
}

func (t *StripeTranslator) Name() string { return StripeName }

// Translate implements Translator.
func (t *StripeTranslator) Translate(payload []byte, _ time.Time) (*application.SubscriptionUpsert, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	object := json.RawMessage(payload)
	if event.Type != "" {
		if !strings.HasPrefix(event.Type, "customer.subscription.") {
			return nil, nil
		}
		object = event.Data.Object
	}

	var sub stripeSubscription
	if err := json.Unmarshal(object, &sub); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if sub.Object != "" && sub.Object != "subscription" {
		return nil, nil
	}

	userID := sub.Metadata["user_id"]
	if userID == "" {
		userID = sub.Metadata["supabase_user_id"]
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: subscription %s has no user id metadata", ErrMalformedPayload, sub.ID)
	}

	plan := domain.PlanFree
	var periodEnd int64
	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if p, ok := t.prices[item.Price.ID]; ok {
			plan = p
		}
		periodEnd = item.CurrentPeriodEnd
	}
	if sub.CurrentPeriodEnd != 0 {
		periodEnd = sub.CurrentPeriodEnd
	}
	if periodEnd == 0 {
		periodEnd = sub.BillingCycleAnchor
	}

	upsert := &application.SubscriptionUpsert{
		UserID:                 userID,
		Plan:                   string(plan),
		Status:                 string(stripeStatus(sub.Status)),
		Provider:               StripeName,
		ProviderCustomerID:     stripeCustomerID(sub.Customer),
		ProviderSubscriptionID: sub.ID,
	}
	if periodEnd > 0 {
		end := time.Unix(periodEnd, 0).UTC()
		upsert.CurrentPeriodEnd = &end
	}
	return upsert, nil
}

// stripeStatus keeps the statuses the domain knows and folds the rest
// (incomplete, unpaid, paused, ...) into inactive.
func stripeStatus(s string) domain.SubscriptionStatus {
	status, err := domain.ParseSubscriptionStatus(s)
	if err != nil {
		return domain.SubscriptionInactive
	}
	return status
}

// stripeCustomerID accepts either an expanded customer object or its id.
func stripeCustomerID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

var _ Translator = (*StripeTranslator)(nil)
