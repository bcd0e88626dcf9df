package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	billingApp "github.com/felixgeelhaar/cadence/internal/billing/application"
	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/cadence/internal/billing/infrastructure/provider"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/go-chi/chi/v5"
)

// Handler serves the usage and billing endpoints.
type Handler struct {
	gate           *billingApp.Gate
	status         *billingApp.StatusService
	sync           *billingApp.SyncService
	providers      *provider.Registry
	health         http.Handler
	metricsHandler http.Handler
	verifier       TokenVerifier
	adminToken     string
	limiter        *RateLimiter
	metrics        observability.Metrics
	logger         *slog.Logger
	now            func() time.Time
}

// HandlerConfig holds dependencies for the handler.
type HandlerConfig struct {
	Gate           *billingApp.Gate
	Status         *billingApp.StatusService
	Sync           *billingApp.SyncService
	Providers      *provider.Registry
	Health         http.Handler
	MetricsHandler http.Handler
	Verifier       TokenVerifier
	AdminToken     string
	Limiter        *RateLimiter
	Metrics        observability.Metrics
	Logger         *slog.Logger
	Now            func() time.Time
}

// NewHandler creates a new handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		gate:           cfg.Gate,
		status:         cfg.Status,
		sync:           cfg.Sync,
		providers:      cfg.Providers,
		health:         cfg.Health,
		metricsHandler: cfg.MetricsHandler,
		verifier:       cfg.Verifier,
		adminToken:     cfg.AdminToken,
		limiter:        cfg.Limiter,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		now:            cfg.Now,
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   h.now().UTC().Format(time.RFC3339),
		})
		return
	}
	h.health.ServeHTTP(w, r)
}

// ListPlans handles GET /v1/plans
func (h *Handler) ListPlans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plans": domain.Catalog()})
}

// GetUsage handles GET /v1/usage
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	status, err := h.status.UsageStatus(r.Context(), observability.UserIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetMyPlan handles GET /v1/me/plan
func (h *Handler) GetMyPlan(w http.ResponseWriter, r *http.Request) {
	view, err := h.status.PlanInfo(r.Context(), observability.UserIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type chargeRequest struct {
	Kind      string   `json:"kind"`
	Quantity  *float64 `json:"quantity,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

type upgradeRequired struct {
	Error    string `json:"error"`
	Decision any    `json:"decision"`
}

// Charge handles POST /v1/charges
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	kind, err := domain.ParseEventKind(req.Kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	decision, err := h.gate.Enforce(r.Context(), billingApp.EnforceRequest{
		UserID:    observability.UserIDFromContext(r.Context()),
		Kind:      kind,
		Quantity:  req.Quantity,
		RequestID: req.RequestID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !decision.OK {
		writeJSON(w, http.StatusPaymentRequired, upgradeRequired{Error: "upgrade_required", Decision: decision})
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

type renderRequest struct {
	RequestID string  `json:"request_id,omitempty"`
	Minutes   float64 `json:"minutes,omitempty"`
}

// ChargeRender handles POST /v1/renders
func (h *Handler) ChargeRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.gate.ChargeRender(r.Context(), billingApp.RenderRequest{
		UserID:    observability.UserIDFromContext(r.Context()),
		RequestID: req.RequestID,
		Minutes:   req.Minutes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !result.OK() {
		writeJSON(w, http.StatusPaymentRequired, upgradeRequired{Error: "upgrade_required", Decision: result})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type subscriptionResponse struct {
	UserID           string     `json:"user_id"`
	Plan             string     `json:"plan"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	Provider         string     `json:"provider,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toSubscriptionResponse(sub *domain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		UserID:           sub.UserID,
		Plan:             string(sub.Plan),
		Status:           string(sub.Status),
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		Provider:         sub.Provider,
		UpdatedAt:        sub.UpdatedAt,
	}
}

// CancelMySubscription handles POST /v1/billing/cancel
func (h *Handler) CancelMySubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.sync.Cancel(r.Context(), observability.UserIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// PutSubscription handles PUT /internal/subscriptions/{userID}
func (h *Handler) PutSubscription(w http.ResponseWriter, r *http.Request) {
	var in billingApp.SubscriptionUpsert
	if !decodeJSON(w, r, &in) {
		return
	}
	in.UserID = chi.URLParam(r, "userID")

	sub, err := h.sync.Upsert(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// ProviderEvent handles POST /internal/billing/{provider}/events
func (h *Handler) ProviderEvent(w http.ResponseWriter, r *http.Request) {
	translator, err := h.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	in, err := translator.Translate(payload, h.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if in == nil {
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
		return
	}

	sub, err := h.sync.Upsert(r.Context(), *in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "subscription": toSubscriptionResponse(sub)})
}
