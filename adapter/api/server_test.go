package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/cadence/internal/app"
	"github.com/felixgeelhaar/cadence/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret     = "test-secret"
	testAdminToken = "admin-token"
)

type apiHarness struct {
	container *app.Container
	server    *httptest.Server
}

func newAPIHarness(t *testing.T, perMinute int) *apiHarness {
	t.Helper()

	cfg := &config.Config{
		AppEnv:             "test",
		DatabaseDriver:     "sqlite",
		SQLitePath:         filepath.Join(t.TempDir(), "api.db"),
		StorageTimeout:     time.Second,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: time.Second,
		StripePricePlans:   map[string]string{"price_pro": "pro"},
		ShopifyPeriodDays:  30,
	}
	c, err := app.NewContainer(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	verifier, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	handler := NewHandler(HandlerConfig{
		Gate:           c.Gate,
		Status:         c.StatusService,
		Sync:           c.SyncService,
		Providers:      c.Providers,
		Health:         c.Health.Handler(),
		MetricsHandler: c.Metrics.Handler(),
		Verifier:       verifier,
		AdminToken:     testAdminToken,
		Limiter:        NewRateLimiter(nil, perMinute, nil, c.Metrics),
		Metrics:        c.Metrics,
	})
	srv := httptest.NewServer(NewServer(DefaultServerConfig(), handler, nil).Handler())
	t.Cleanup(srv.Close)

	return &apiHarness{container: c, server: srv}
}

func userToken(t *testing.T, userID string, expires time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expires)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (h *apiHarness) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestAPI_ChargeUntilUpgradeRequired(t *testing.T) {
	h := newAPIHarness(t, 1000)
	token := userToken(t, "user-1", time.Hour)

	for i := 0; i < 5; i++ {
		resp, body := h.do(t, http.MethodPost, "/v1/charges", token, `{"kind":"export"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["ok"])
	}

	resp, body := h.do(t, http.MethodPost, "/v1/charges", token, `{"kind":"export"}`)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "upgrade_required", body["error"])

	resp, body = h.do(t, http.MethodGet, "/v1/usage", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "free", body["plan"])
	kinds := body["kinds"].(map[string]any)
	assert.Equal(t, 5.0, kinds["export"].(map[string]any)["used"])
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))
}

func TestAPI_ChargeValidation(t *testing.T) {
	h := newAPIHarness(t, 1000)
	token := userToken(t, "user-1", time.Hour)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"unknown kind", `{"kind":"stems"}`, "unknown_event_kind"},
		{"zero quantity", `{"kind":"generation","quantity":0}`, "invalid_quantity"},
		{"fractional generation", `{"kind":"generation","quantity":1.5}`, "invalid_quantity"},
		{"unknown field", `{"kind":"generation","qty":2}`, "invalid_body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(t, http.MethodPost, "/v1/charges", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestAPI_ChargeIsIdempotentByRequestID(t *testing.T) {
	h := newAPIHarness(t, 1000)
	token := userToken(t, "user-1", time.Hour)

	_, first := h.do(t, http.MethodPost, "/v1/charges", token, `{"kind":"audio_minutes","quantity":2.5,"request_id":"job-1"}`)
	_, second := h.do(t, http.MethodPost, "/v1/charges", token, `{"kind":"audio_minutes","quantity":2.5,"request_id":"job-1"}`)

	assert.Equal(t, 2.5, first["used"])
	assert.Equal(t, 2.5, second["used"])
	assert.Equal(t, true, second["replayed"])
}

func TestAPI_Render(t *testing.T) {
	h := newAPIHarness(t, 1000)
	token := userToken(t, "user-1", time.Hour)

	resp, body := h.do(t, http.MethodPost, "/v1/renders", token, `{"request_id":"r1","minutes":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "r1", body["request_id"])
	assert.Equal(t, 1.0, body["generation"].(map[string]any)["used"])
	assert.Equal(t, 3.0, body["audio_minutes"].(map[string]any)["used"])
}

func TestAPI_AuthRequired(t *testing.T) {
	h := newAPIHarness(t, 1000)

	resp, body := h.do(t, http.MethodGet, "/v1/usage", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])

	resp, _ = h.do(t, http.MethodGet, "/v1/usage", userToken(t, "user-1", -time.Hour), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/v1/usage", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_InternalSubscriptionSync(t *testing.T) {
	h := newAPIHarness(t, 1000)
	userTok := userToken(t, "user-9", time.Hour)

	resp, _ := h.do(t, http.MethodPut, "/internal/subscriptions/user-9", userTok, `{"plan":"pro","status":"active"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := h.do(t, http.MethodPut, "/internal/subscriptions/user-9", testAdminToken, `{"plan":"gold","status":"active"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_subscription", body["error"])

	resp, body = h.do(t, http.MethodPut, "/internal/subscriptions/user-9", testAdminToken, `{"plan":"pro","status":"active"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pro", body["plan"])

	resp, body = h.do(t, http.MethodGet, "/v1/me/plan", userTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pro", body["plan"])
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "active", body["status"])

	resp, body = h.do(t, http.MethodPost, "/v1/billing/cancel", userTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "canceled", body["status"])

	_, body = h.do(t, http.MethodGet, "/v1/me/plan", userTok, "")
	assert.Equal(t, "free", body["plan"])
	assert.Equal(t, false, body["active"])
}

func TestAPI_CancelWithoutSubscription(t *testing.T) {
	h := newAPIHarness(t, 1000)

	resp, body := h.do(t, http.MethodPost, "/v1/billing/cancel", userToken(t, "nobody", time.Hour), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "subscription_not_found", body["error"])
}

func TestAPI_ProviderEvents(t *testing.T) {
	h := newAPIHarness(t, 1000)

	stripe := `{"type":"customer.subscription.updated","data":{"object":{
		"id":"sub_1","customer":"cus_1","status":"active",
		"current_period_end":4102444800,
		"metadata":{"user_id":"user-3"},
		"items":{"data":[{"price":{"id":"price_pro"}}]}}}}`
	resp, body := h.do(t, http.MethodPost, "/internal/billing/stripe/events", testAdminToken, stripe)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pro", body["subscription"].(map[string]any)["plan"])

	resp, body = h.do(t, http.MethodPost, "/internal/billing/shopify/events", testAdminToken, `{"id":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ignored"])

	resp, body = h.do(t, http.MethodPost, "/internal/billing/paypal/events", testAdminToken, `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "unknown_provider", body["error"])

	resp, _ = h.do(t, http.MethodPost, "/internal/billing/stripe/events", testAdminToken, `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_RateLimited(t *testing.T) {
	h := newAPIHarness(t, 2)
	token := userToken(t, "user-1", time.Hour)

	var last *http.Response
	for i := 0; i < 3; i++ {
		last, _ = h.do(t, http.MethodGet, "/v1/usage", token, "")
	}
	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.NotEmpty(t, last.Header.Get("Retry-After"))
}

func TestAPI_PublicEndpoints(t *testing.T) {
	h := newAPIHarness(t, 1000)

	resp, body := h.do(t, http.MethodGet, "/v1/plans", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["plans"], 3)

	resp, _ = h.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	h.do(t, http.MethodGet, "/v1/plans", "", "")
	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/metrics", nil)
	require.NoError(t, err)
	metricsResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}
