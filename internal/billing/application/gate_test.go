package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateHarness struct {
	subs    *fakeSubscriptionRepo
	usage   *fakeUsageRepo
	outbox  *fakeOutbox
	uow     *fakeUnitOfWork
	metrics *observability.InMemoryMetrics
	gate    *Gate
}

func newGateHarness(extra ...Option) *gateHarness {
	h := &gateHarness{
		subs:    newFakeSubscriptionRepo(),
		usage:   &fakeUsageRepo{},
		outbox:  &fakeOutbox{},
		uow:     &fakeUnitOfWork{},
		metrics: observability.NewInMemoryMetrics(),
	}
	opts := append([]Option{WithClock(clock()), WithMetrics(h.metrics)}, extra...)
	h.gate = NewGate(
		NewPlanResolver(h.subs, opts...),
		NewUsageCounter(h.usage, opts...),
		h.usage,
		h.outbox,
		h.uow,
		opts...,
	)
	return h
}

func (h *gateHarness) seed(userID string, kind domain.EventKind, n int, qty float64) {
	for i := 0; i < n; i++ {
		h.usage.seed(userID, kind, qty, testNow.Add(-time.Hour))
	}
}

func (h *gateHarness) subscribe(userID string, plan domain.Plan, status domain.SubscriptionStatus, end *time.Time) {
	h.subs.put(&domain.Subscription{UserID: userID, Plan: plan, Status: status, CurrentPeriodEnd: end})
}

func f(v float64) *float64 { return &v }

func TestEnforce_FreeUserAtBoundary(t *testing.T) {
	h := newGateHarness()
	h.seed("u", domain.KindGeneration, 9, 1)

	d, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindGeneration})
	require.NoError(t, err)
	assert.Equal(t, domain.Decision{OK: true, Plan: domain.PlanFree, Kind: domain.KindGeneration, Used: 10, Limit: 10, Remaining: 0}, d)

	d, err = h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindGeneration})
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, 10.0, d.Used)
	assert.Equal(t, 0.0, d.Remaining)
	assert.Equal(t, 10, h.usage.count())
}

func TestEnforce_ActiveProUser(t *testing.T) {
	h := newGateHarness()
	end := testNow.AddDate(0, 0, 10)
	h.subscribe("u", domain.PlanPro, domain.SubscriptionActive, &end)
	h.seed("u", domain.KindExport, 50, 1)

	d, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindExport})
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.Equal(t, domain.PlanPro, d.Plan)
	assert.Equal(t, 51.0, d.Used)
	assert.Equal(t, 500.0, d.Limit)
	assert.Equal(t, 449.0, d.Remaining)
}

func TestEnforce_ExpiredSubscriptionFallsBackToFree(t *testing.T) {
	h := newGateHarness()
	end := testNow.Add(-time.Second)
	h.subscribe("u", domain.PlanPro, domain.SubscriptionActive, &end)
	h.seed("u", domain.KindExport, 5, 1)

	d, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindExport})
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, domain.PlanFree, d.Plan)
	assert.Equal(t, 5.0, d.Limit)
}

func TestEnforce_AudioMinutes(t *testing.T) {
	h := newGateHarness()
	h.seed("u", domain.KindAudioMinutes, 1, 14.5)

	d, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindAudioMinutes, Quantity: f(0.5)})
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.Equal(t, 15.0, d.Used)

	d, err = h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindAudioMinutes, Quantity: f(0.1)})
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, 15.0, d.Used)
}

func TestEnforce_FractionalMinutesReachLimitExactly(t *testing.T) {
	for _, hard := range []bool{false, true} {
		var opts []Option
		if hard {
			opts = append(opts, WithHardQuota(&fakeLocker{}))
		}
		h := newGateHarness(opts...)
		h.seed("u", domain.KindAudioMinutes, 1, 0.3)
		h.seed("u", domain.KindAudioMinutes, 1, 8.3)

		d, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindAudioMinutes, Quantity: f(6.4)})
		require.NoError(t, err)
		assert.True(t, d.OK, "hard=%v", hard)
		assert.Equal(t, 15.0, d.Used)
		assert.Equal(t, 0.0, d.Remaining)

		d, err = h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindAudioMinutes, Quantity: f(0.1)})
		require.NoError(t, err)
		assert.False(t, d.OK)
		assert.Equal(t, 15.0, d.Used)
	}
}

func TestEnforce_RejectionReportsRoundedUsage(t *testing.T) {
	h := newGateHarness()
	h.seed("u", domain.KindAudioMinutes, 1, 0.3)
	h.seed("u", domain.KindAudioMinutes, 1, 8.3)

	d, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindAudioMinutes, Quantity: f(6.5)})
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, 8.6, d.Used)
	assert.Equal(t, 6.4, d.Remaining)
}

func TestEnforce_IdempotentRetry(t *testing.T) {
	h := newGateHarness()
	req := EnforceRequest{UserID: "u", Kind: domain.KindGeneration, RequestID: "req-1"}

	first, err := h.gate.Enforce(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.OK)
	assert.False(t, first.Replayed)

	second, err := h.gate.Enforce(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.OK)
	assert.True(t, second.Replayed)
	assert.Equal(t, 1.0, second.Used)
	assert.Equal(t, 9.0, second.Remaining)
	assert.Equal(t, 1, h.usage.count())
	assert.Len(t, h.outbox.messages(), 1)
	assert.Equal(t, int64(1), h.metrics.GetCounter(observability.MetricUsageEnforceTotal,
		observability.T("kind", "generation"), observability.T("plan", "free"), observability.T("outcome", OutcomeReplayed)))
}

func TestEnforce_ReplayWhenQuotaExhausted(t *testing.T) {
	h := newGateHarness()
	h.seed("u", domain.KindExport, 4, 1)
	req := EnforceRequest{UserID: "u", Kind: domain.KindExport, RequestID: "last"}

	_, err := h.gate.Enforce(context.Background(), req)
	require.NoError(t, err)

	d, err := h.gate.Enforce(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.Equal(t, 0.0, d.Remaining)
}

func TestEnforce_ConcurrentDuplicateIsSuccess(t *testing.T) {
	h := newGateHarness()
	h.usage.forceDuplicate = true

	d, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindGeneration, RequestID: "r"})
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.True(t, d.Replayed)
	assert.Equal(t, 1, h.uow.rollbacks)
}

func TestEnforce_InvalidQuantityReadsNothing(t *testing.T) {
	tests := []EnforceRequest{
		{UserID: "u", Kind: domain.KindGeneration, Quantity: f(2)},
		{UserID: "u", Kind: domain.KindExport, Quantity: f(0)},
		{UserID: "u", Kind: domain.KindAudioMinutes, Quantity: f(0)},
		{UserID: "u", Kind: domain.KindAudioMinutes, Quantity: f(-3)},
		{UserID: "u", Kind: "stems"},
		{UserID: "", Kind: domain.KindGeneration},
	}

	for _, req := range tests {
		h := newGateHarness()
		d, err := h.gate.Enforce(context.Background(), req)
		require.Error(t, err)
		assert.False(t, d.OK)
		assert.Zero(t, h.usage.readCount())
		assert.Zero(t, h.usage.count())
	}

	h := newGateHarness()
	_, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindGeneration, Quantity: f(2)})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestEnforce_RejectWritesNothing(t *testing.T) {
	h := newGateHarness()
	h.seed("u", domain.KindGeneration, 10, 1)

	for i := 0; i < 3; i++ {
		d, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindGeneration})
		require.NoError(t, err)
		assert.False(t, d.OK)
	}
	assert.Equal(t, 10, h.usage.count())
	assert.Empty(t, h.outbox.messages())
	assert.Zero(t, h.uow.commits)
}

func TestEnforce_StorageFailures(t *testing.T) {
	t.Run("count", func(t *testing.T) {
		h := newGateHarness()
		h.usage.sumErr = errStorage
		_, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindGeneration})
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	})

	t.Run("append", func(t *testing.T) {
		h := newGateHarness()
		h.usage.appendErr = errStorage
		d, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindGeneration})
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		assert.False(t, d.OK)
		assert.Equal(t, 1, h.uow.rollbacks)
	})

	t.Run("resolver failure is absorbed", func(t *testing.T) {
		h := newGateHarness()
		h.subs.findErr = errStorage
		d, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindGeneration})
		require.NoError(t, err)
		assert.True(t, d.OK)
		assert.Equal(t, domain.PlanFree, d.Plan)
	})
}

func TestEnforce_WriteSurvivesCallerCancellation(t *testing.T) {
	h := newGateHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := h.gate.Enforce(ctx, EnforceRequest{UserID: "u", Kind: domain.KindGeneration})
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.Equal(t, 1, h.usage.count())
}

func TestEnforce_EmitsOutboxMessage(t *testing.T) {
	h := newGateHarness()
	ctx := observability.WithCorrelationID(context.Background(), "corr-9")

	_, err := h.gate.Enforce(ctx, EnforceRequest{UserID: "u", Kind: domain.KindAudioMinutes, Quantity: f(2), RequestID: "r1"})
	require.NoError(t, err)

	msgs := h.outbox.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoutingKeyUsageRecorded, msgs[0].RoutingKey)
	assert.Equal(t, "u", msgs[0].AggregateID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Equal(t, "audio_minutes", payload["event_kind"])
	assert.Equal(t, 2.0, payload["quantity"])
	assert.Equal(t, "r1", payload["request_id"])
	assert.Contains(t, string(msgs[0].Metadata), "corr-9")
	assert.Equal(t, 1, h.uow.commits)
}

func TestEnforce_WithoutOutbox(t *testing.T) {
	usage := &fakeUsageRepo{}
	subs := newFakeSubscriptionRepo()
	gate := NewGate(NewPlanResolver(subs), NewUsageCounter(usage), usage, nil, nil)

	d, err := gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindExport})
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.False(t, gate.HardQuota())
}

func TestEnforce_HardQuotaSerializesConcurrentRequests(t *testing.T) {
	locker := &fakeLocker{}
	h := newGateHarness(WithHardQuota(locker))
	require.True(t, h.gate.HardQuota())

	const callers = 25
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := h.gate.Enforce(context.Background(), EnforceRequest{UserID: "u", Kind: domain.KindGeneration})
			if err == nil && d.OK {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
	assert.Equal(t, 10, h.usage.count())
	assert.Equal(t, callers, locker.calls)
}

func TestChargeRender(t *testing.T) {
	t.Run("charges generation and minutes", func(t *testing.T) {
		h := newGateHarness()
		res, err := h.gate.ChargeRender(context.Background(), RenderRequest{UserID: "u", RequestID: "job", Minutes: 3.5})
		require.NoError(t, err)
		assert.True(t, res.OK())
		require.NotNil(t, res.AudioMinutes)
		assert.Equal(t, 3.5, res.AudioMinutes.Used)

		again, err := h.gate.ChargeRender(context.Background(), RenderRequest{UserID: "u", RequestID: "job", Minutes: 3.5})
		require.NoError(t, err)
		assert.True(t, again.Generation.Replayed)
		assert.True(t, again.AudioMinutes.Replayed)
		assert.Equal(t, 2, h.usage.count())
	})

	t.Run("rejected generation skips minutes", func(t *testing.T) {
		h := newGateHarness()
		h.seed("u", domain.KindGeneration, 10, 1)
		res, err := h.gate.ChargeRender(context.Background(), RenderRequest{UserID: "u", Minutes: 2})
		require.NoError(t, err)
		assert.False(t, res.OK())
		assert.Nil(t, res.AudioMinutes)
		assert.NotEmpty(t, res.RequestID)
	})

	t.Run("zero minutes charges generation only", func(t *testing.T) {
		h := newGateHarness()
		res, err := h.gate.ChargeRender(context.Background(), RenderRequest{UserID: "u"})
		require.NoError(t, err)
		assert.True(t, res.OK())
		assert.Nil(t, res.AudioMinutes)
	})

	t.Run("negative minutes rejected before charging", func(t *testing.T) {
		h := newGateHarness()
		_, err := h.gate.ChargeRender(context.Background(), RenderRequest{UserID: "u", Minutes: -1})
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
		assert.Zero(t, h.usage.count())
	})
}
