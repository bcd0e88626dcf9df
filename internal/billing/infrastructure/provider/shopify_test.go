package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShopify(t *testing.T) *ShopifyTranslator {
	t.Helper()
	tr, err := NewShopifyTranslator(map[string]string{"4001": "starter", "4002": "pro"}, 0)
	require.NoError(t, err)
	return tr
}

func TestShopifyTranslator_VariantPlan(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{
		"id": 820982911946154500,
		"note_attributes": [{"name": "user_id", "value": "user-7"}],
		"line_items": [{"variant_id": 4002}],
		"customer": {"id": 115310627314723950}
	}`)

	up, err := newShopify(t).Translate(payload, now)
	require.NoError(t, err)
	require.NotNil(t, up)
	assert.Equal(t, "user-7", up.UserID)
	assert.Equal(t, "pro", up.Plan)
	assert.Equal(t, "active", up.Status)
	assert.Equal(t, "shopify", up.Provider)
	assert.Equal(t, "820982911946154500", up.ProviderSubscriptionID)
	assert.Equal(t, "115310627314723950", up.ProviderCustomerID)
	assert.Equal(t, now.Add(DefaultShopifyPeriod), *up.CurrentPeriodEnd)
}

func TestShopifyTranslator_PlanFallbacks(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tr := newShopify(t)

	up, err := tr.Translate([]byte(`{
		"note_attributes": [{"name": "user_id", "value": "u"}, {"name": "plan", "value": "pro"}],
		"line_items": [{"variant_id": 999}]
	}`), now)
	require.NoError(t, err)
	assert.Equal(t, "pro", up.Plan)

	up, err = tr.Translate([]byte(`{"note_attributes": [{"name": "user_id", "value": "u"}]}`), now)
	require.NoError(t, err)
	assert.Equal(t, "starter", up.Plan)
	assert.Empty(t, up.ProviderCustomerID)
}

func TestShopifyTranslator_IgnoresOrderWithoutUser(t *testing.T) {
	up, err := newShopify(t).Translate([]byte(`{"id": 1, "line_items": [{"variant_id": 4001}]}`), time.Now())
	require.NoError(t, err)
	assert.Nil(t, up)
}

func TestShopifyTranslator_CustomPeriod(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tr, err := NewShopifyTranslator(nil, 7*24*time.Hour)
	require.NoError(t, err)

	up, err := tr.Translate([]byte(`{"note_attributes": [{"name": "user_id", "value": "u"}]}`), now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 7), *up.CurrentPeriodEnd)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(newShopify(t), newStripe(t))
	assert.Equal(t, []string{"shopify", "stripe"}, r.Names())

	tr, err := r.Get("stripe")
	require.NoError(t, err)
	assert.Equal(t, StripeName, tr.Name())

	_, err = r.Get("paypal")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
