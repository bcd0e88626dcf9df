package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/cadence/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/cadence/internal/shared/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/google/uuid"
)

// Enforcement outcomes recorded on MetricUsageEnforceTotal.
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeReplayed = "replayed"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// EnforceRequest asks to consume quantity of kind for a user. A nil
// Quantity means 1.
type EnforceRequest struct {
	UserID    string
	Kind      domain.EventKind
	Quantity  *float64
	RequestID string
}

// Gate admits or rejects metered actions against the plan quota.
type Gate struct {
	resolver *PlanResolver
	counter  *UsageCounter
	usage    domain.UsageRepository
	outbox   outbox.Repository
	uow      sharedApplication.UnitOfWork
	opts     options
}

// NewGate wires the gate. outboxRepo and uow may be nil; without a unit of
// work the append and the outbox write are not atomic.
func NewGate(
	resolver *PlanResolver,
	counter *UsageCounter,
	usage domain.UsageRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	opts ...Option,
) *Gate {
	return &Gate{
		resolver: resolver,
		counter:  counter,
		usage:    usage,
		outbox:   outboxRepo,
		uow:      uow,
		opts:     newOptions(opts),
	}
}

// HardQuota reports whether count and append are serialized per (user, kind).
func (g *Gate) HardQuota() bool {
	return g.opts.locker != nil
}

// Enforce validates the request, then admits it when used+quantity fits
// the effective plan's limit. A rejection is a Decision with OK false,
// not an error, and writes nothing.
func (g *Gate) Enforce(ctx context.Context, req EnforceRequest) (domain.Decision, error) {
	timer := observability.StartTimer(observability.MetricUsageEnforceDuration).
		WithMetrics(g.opts.metrics).
		WithTags(observability.T("kind", string(req.Kind)))
	defer timer.Stop()

	decision, outcome, err := g.enforce(ctx, req)
	g.opts.metrics.Counter(observability.MetricUsageEnforceTotal, 1,
		observability.T("kind", string(req.Kind)),
		observability.T("plan", string(decision.Plan)),
		observability.T("outcome", outcome),
	)

	logger := observability.LogOperation(g.opts.logger, "usage.enforce",
		"user_id", req.UserID,
		"event_kind", req.Kind,
	)
	switch outcome {
	case OutcomeError:
		logger.ErrorContext(ctx, "usage enforcement failed", "error", err)
	case OutcomeRejected:
		logger.InfoContext(ctx, "usage rejected",
			"plan", decision.Plan,
			"used", decision.Used,
			"limit", decision.Limit,
		)
	case OutcomeInvalid:
		logger.DebugContext(ctx, "usage request invalid", "error", err)
	default:
		logger.DebugContext(ctx, "usage admitted",
			"plan", decision.Plan,
			"used", decision.Used,
			"limit", decision.Limit,
			"replayed", decision.Replayed,
		)
	}
	return decision, err
}

func (g *Gate) enforce(ctx context.Context, req EnforceRequest) (domain.Decision, string, error) {
	if req.UserID == "" {
		return domain.Decision{}, OutcomeInvalid, domain.ErrUserRequired
	}
	qty, err := domain.ValidateQuantity(req.Kind, req.Quantity)
	if err != nil {
		return domain.Decision{}, OutcomeInvalid, err
	}

	effective := g.resolver.ResolveEffectivePlan(ctx, req.UserID)
	limit := domain.Limit(effective.Plan, req.Kind)
	decision := domain.Decision{Plan: effective.Plan, Kind: req.Kind, Limit: limit}

	if req.RequestID != "" {
		replayed, err := g.replay(ctx, req, decision)
		if err != nil {
			return decision, OutcomeError, err
		}
		if replayed != nil {
			return *replayed, OutcomeReplayed, nil
		}
	}

	if g.HardQuota() {
		return g.enforceSerialized(ctx, req, qty, decision)
	}

	used, err := g.counter.CountThisMonth(ctx, req.UserID, req.Kind)
	if err != nil {
		return decision, OutcomeError, err
	}
	if !domain.Admits(limit, used, qty) {
		return reject(decision, used), OutcomeRejected, nil
	}

	event := domain.NewUsageEvent(req.UserID, req.Kind, qty, req.RequestID, g.opts.now())
	writeCtx, cancel := g.writeContext(ctx)
	defer cancel()

	err = sharedApplication.WithUnitOfWork(writeCtx, g.uow, func(txCtx context.Context) error {
		return g.record(txCtx, event, decision.Plan, domain.RoundQuantity(used+qty), limit)
	})
	return g.admitted(decision, used, qty, err)
}

// enforceSerialized counts and appends under a per-(user, kind) lock held
// for the whole transaction.
func (g *Gate) enforceSerialized(ctx context.Context, req EnforceRequest, qty float64, decision domain.Decision) (domain.Decision, string, error) {
	var (
		used     float64
		rejected bool
	)
	event := domain.NewUsageEvent(req.UserID, req.Kind, qty, req.RequestID, g.opts.now())
	writeCtx, cancel := g.writeContext(ctx)
	defer cancel()

	err := sharedApplication.WithUnitOfWork(writeCtx, g.uow, func(txCtx context.Context) error {
		if err := g.opts.locker.LockQuota(txCtx, req.UserID, req.Kind); err != nil {
			return storageError("lock quota", err)
		}
		var err error
		used, err = g.counter.CountThisMonth(txCtx, req.UserID, req.Kind)
		if err != nil {
			return err
		}
		if !domain.Admits(decision.Limit, used, qty) {
			rejected = true
			return nil
		}
		return g.record(txCtx, event, decision.Plan, domain.RoundQuantity(used+qty), decision.Limit)
	})
	if err == nil && rejected {
		return reject(decision, used), OutcomeRejected, nil
	}
	return g.admitted(decision, used, qty, err)
}

// replay returns the decision for a request id that was already charged.
func (g *Gate) replay(ctx context.Context, req EnforceRequest, decision domain.Decision) (*domain.Decision, error) {
	readCtx, cancel := g.opts.withTimeout(ctx)
	prior, err := g.usage.FindByRequestID(readCtx, req.UserID, req.Kind, req.RequestID)
	cancel()
	if err != nil {
		return nil, storageError("find request", err)
	}
	if prior == nil {
		return nil, nil
	}

	used, err := g.counter.CountThisMonth(ctx, req.UserID, req.Kind)
	if err != nil {
		return nil, err
	}
	decision.OK = true
	decision.Used = used
	decision.Remaining = domain.Remaining(decision.Limit, used)
	decision.Replayed = true
	return &decision, nil
}

func (g *Gate) record(ctx context.Context, event *domain.UsageEvent, plan domain.Plan, usedAfter, limit float64) error {
	if err := g.usage.Append(ctx, event); err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			return err
		}
		return storageError("append usage", err)
	}
	if g.outbox == nil {
		return nil
	}

	recorded := domain.NewUsageRecorded(event, plan, usedAfter, limit)
	events := []sharedDomain.DomainEvent{recorded}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, event.UserID))
	msgs, err := outbox.NewMessages(events)
	if err != nil {
		return fmt.Errorf("encode usage event: %w", err)
	}
	if err := g.outbox.SaveBatch(ctx, msgs); err != nil {
		return storageError("save outbox", err)
	}
	return nil
}

// admitted maps the result of the write transaction. A duplicate request
// id means a concurrent retry already stored the event.
func (g *Gate) admitted(decision domain.Decision, used, qty float64, err error) (domain.Decision, string, error) {
	outcome := OutcomeAllowed
	switch {
	case errors.Is(err, domain.ErrDuplicateRequest):
		decision.Replayed = true
		outcome = OutcomeReplayed
	case err != nil:
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			err = storageError("record usage", err)
		}
		return decision, OutcomeError, err
	}
	decision.OK = true
	decision.Used = domain.RoundQuantity(used + qty)
	decision.Remaining = domain.Remaining(decision.Limit, decision.Used)
	return decision, outcome, nil
}

// writeContext detaches the write from caller cancellation so an admitted
// event is stored once started, bounded by the storage timeout.
func (g *Gate) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return g.opts.withTimeout(context.WithoutCancel(ctx))
}

func reject(decision domain.Decision, used float64) domain.Decision {
	decision.OK = false
	decision.Used = used
	decision.Remaining = domain.Remaining(decision.Limit, used)
	return decision
}

// RenderRequest charges one generation plus Minutes of audio.
type RenderRequest struct {
	UserID    string
	RequestID string
	Minutes   float64
}

// RenderResult holds the per-kind decisions of a render charge.
type RenderResult struct {
	RequestID    string           `json:"request_id"`
	Generation   domain.Decision  `json:"generation"`
	AudioMinutes *domain.Decision `json:"audio_minutes,omitempty"`
}

// OK reports whether every charged kind was admitted.
func (r RenderResult) OK() bool {
	if !r.Generation.OK {
		return false
	}
	return r.AudioMinutes == nil || r.AudioMinutes.OK
}

// ChargeRender charges a generation under "<id>:gen" and, when Minutes is
// positive, audio minutes under "<id>:min". A rejected generation skips
// the minutes charge. A missing request id is generated.
func (g *Gate) ChargeRender(ctx context.Context, req RenderRequest) (RenderResult, error) {
	if req.Minutes != 0 {
		if _, err := domain.ValidateQuantity(domain.KindAudioMinutes, &req.Minutes); err != nil {
			return RenderResult{}, err
		}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	result := RenderResult{RequestID: req.RequestID}

	gen, err := g.Enforce(ctx, EnforceRequest{
		UserID:    req.UserID,
		Kind:      domain.KindGeneration,
		RequestID: req.RequestID + ":gen",
	})
	result.Generation = gen
	if err != nil || !gen.OK || req.Minutes <= 0 {
		return result, err
	}

	minutes := req.Minutes
	audio, err := g.Enforce(ctx, EnforceRequest{
		UserID:    req.UserID,
		Kind:      domain.KindAudioMinutes,
		Quantity:  &minutes,
		RequestID: req.RequestID + ":min",
	})
	result.AudioMinutes = &audio
	return result, err
}
