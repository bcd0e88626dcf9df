package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/cadence/internal/billing/infrastructure/provider"
)

// maxBodyBytes caps request bodies, including provider webhook payloads.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}

// writeDomainError maps service errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "invalid_quantity")
	case errors.Is(err, domain.ErrUnknownEventKind):
		writeError(w, http.StatusBadRequest, "unknown_event_kind")
	case errors.Is(err, domain.ErrInvalidSubscription), errors.Is(err, domain.ErrUnknownPlan):
		writeError(w, http.StatusBadRequest, "invalid_subscription")
	case errors.Is(err, domain.ErrUserRequired):
		writeError(w, http.StatusBadRequest, "user_required")
	case errors.Is(err, provider.ErrMalformedPayload):
		writeError(w, http.StatusBadRequest, "malformed_payload")
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, "subscription_not_found")
	case errors.Is(err, provider.ErrUnknownProvider):
		writeError(w, http.StatusNotFound, "unknown_provider")
	case errors.Is(err, domain.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return false
	}
	return true
}
