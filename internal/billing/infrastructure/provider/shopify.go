package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/application"
	"github.com/felixgeelhaar/cadence/internal/billing/domain"
)

// ShopifyName is the provider name used in routes and records.
const ShopifyName = "shopify"

// DefaultShopifyPeriod is the entitlement granted per paid order.
const DefaultShopifyPeriod = 30 * 24 * time.Hour

type shopifyOrder struct {
	ID             json.Number `json:"id"`
	NoteAttributes []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"note_attributes"`
	LineItems []struct {
		VariantID json.Number `json:"variant_id"`
	} `json:"line_items"`
	Customer *struct {
		ID json.Number `json:"id"`
	} `json:"customer"`
}

func (o shopifyOrder) attr(name string) string {
	for _, a := range o.NoteAttributes {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// ShopifyTranslator handles paid order webhooks.
type ShopifyTranslator struct {
	variants map[string]domain.Plan
	period   time.Duration
}

// NewShopifyTranslator maps variant ids to plans. A non-positive period
// uses DefaultShopifyPeriod.
func NewShopifyTranslator(variants map[string]string, period time.Duration) (*ShopifyTranslator, error) {
	m, err := planMap(variants)
	if err != nil {
		return nil, fmt.Errorf("shopify variant plans: %w", err)
	}
	if period <= 0 {
		period = DefaultShopifyPeriod
	}
	return &ShopifyTranslator{variants: m, period: period}, nil
}

func (t *ShopifyTranslator) Name() string { return ShopifyName }

// Translate implements Translator. Orders without a user_id note
// attribute are ignored.
func (t *ShopifyTranslator) Translate(payload []byte, now time.Time) (*application.SubscriptionUpsert, error) {
	var order shopifyOrder
	if err := json.Unmarshal(payload, &order); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	userID := order.attr("user_id")
	if userID == "" {
		return nil, nil
	}

	plan := t.planFor(order)
	end := now.Add(t.period).UTC()
	upsert := &application.SubscriptionUpsert{
		UserID:                 userID,
		Plan:                   plan,
		Status:                 string(domain.SubscriptionActive),
		CurrentPeriodEnd:       &end,
		Provider:               ShopifyName,
		ProviderSubscriptionID: order.ID.String(),
	}
	if order.Customer != nil {
		upsert.ProviderCustomerID = order.Customer.ID.String()
	}
	return upsert, nil
}

// planFor prefers the purchased variant, then the plan note attribute,
// then starter.
func (t *ShopifyTranslator) planFor(order shopifyOrder) string {
	if len(order.LineItems) > 0 {
		if p, ok := t.variants[order.LineItems[0].VariantID.String()]; ok {
			return string(p)
		}
	}
	if p := order.attr("plan"); p != "" {
		return p
	}
	return string(domain.PlanStarter)
}

var _ Translator = (*ShopifyTranslator)(nil)
