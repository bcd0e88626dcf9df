package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats outbox.Stats

func (s fixedStats) GetStats() outbox.Stats { return outbox.Stats(s) }

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func TestHealthMux_Healthz(t *testing.T) {
	mux := healthMux(fixedStats{IsRunning: true, PublishedCount: 7, DeadCount: 1}, observability.NewHealthRegistry(time.Second), nil)

	code, body := get(t, mux, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["running"])
	assert.Equal(t, float64(7), body["published"])
	assert.Equal(t, float64(1), body["dead"])
}

func TestHealthMux_Readyz(t *testing.T) {
	health := observability.NewHealthRegistry(time.Second)
	var dbDown atomic.Bool
	health.Register("database", observability.DatabaseHealthChecker(func(ctx context.Context) error {
		if dbDown.Load() {
			return errors.New("connection refused")
		}
		return nil
	}))
	health.Register("rabbitmq", observability.RabbitMQHealthChecker(func(ctx context.Context) error {
		return errors.New("channel closed")
	}))
	mux := healthMux(fixedStats{}, health, nil)

	code, body := get(t, mux, "/readyz")
	assert.Equal(t, http.StatusOK, code, "a degraded broker keeps the worker ready")
	assert.Equal(t, "ready", body["status"])

	dbDown.Store(true)
	code, body = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", body["status"])
}

func TestHealthMux_Metrics(t *testing.T) {
	metrics := observability.NewPrometheusMetrics(nil)
	metrics.Counter(observability.MetricEventsPublished, 1)
	mux := healthMux(fixedStats{}, observability.NewHealthRegistry(time.Second), metrics.Handler())

	code, _ := get(t, mux, "/metrics")
	assert.Equal(t, http.StatusOK, code)
}

func TestRunEvery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		runEvery(ctx, 5*time.Millisecond, func() { calls.Add(1) })
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	// Non-positive intervals return immediately.
	runEvery(context.Background(), 0, func() { t.Fatal("must not run") })
}
