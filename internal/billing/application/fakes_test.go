package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/outbox"
)

var errStorage = errors.New("connection reset")

type fakeSubscriptionRepo struct {
	mu          sync.Mutex
	subs        map[string]*domain.Subscription
	findErr     error
	upsertErr   error
	block       bool
	invalidated []string
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: make(map[string]*domain.Subscription)}
}

func (f *fakeSubscriptionRepo) put(sub *domain.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sub
	f.subs[sub.UserID] = &cp
}

func (f *fakeSubscriptionRepo) Upsert(_ context.Context, sub *domain.Subscription) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.put(sub)
	return nil
}

func (f *fakeSubscriptionRepo) FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubscriptionRepo) Invalidate(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userID)
	return nil
}

type fakeUsageRepo struct {
	mu        sync.Mutex
	events    []*domain.UsageEvent
	reads     int
	sumErr    error
	appendErr error
	// forceDuplicate makes Append report a duplicate the pre-check missed.
	forceDuplicate bool
}

func (f *fakeUsageRepo) Append(ctx context.Context, event *domain.UsageEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.appendErr != nil {
		return f.appendErr
	}
	if f.forceDuplicate {
		return domain.ErrDuplicateRequest
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.RequestID != "" {
		for _, e := range f.events {
			if e.UserID == event.UserID && e.Kind == event.Kind && e.RequestID == event.RequestID {
				return domain.ErrDuplicateRequest
			}
		}
	}
	cp := *event
	f.events = append(f.events, &cp)
	return nil
}

func (f *fakeUsageRepo) SumSince(_ context.Context, userID string, kind domain.EventKind, since time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.sumErr != nil {
		return 0, f.sumErr
	}
	var total float64
	for _, e := range f.events {
		if e.UserID == userID && e.Kind == kind && !e.CreatedAt.Before(since) {
			total += e.Quantity
		}
	}
	return total, nil
}

func (f *fakeUsageRepo) FindByRequestID(_ context.Context, userID string, kind domain.EventKind, requestID string) (*domain.UsageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	for _, e := range f.events {
		if e.UserID == userID && e.Kind == kind && e.RequestID == requestID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsageRepo) seed(userID string, kind domain.EventKind, qty float64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, domain.NewUsageEvent(userID, kind, qty, "", at))
}

func (f *fakeUsageRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeUsageRepo) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

type fakeOutbox struct {
	mu   sync.Mutex
	msgs []*outbox.Message
}

func (f *fakeOutbox) Save(ctx context.Context, msg *outbox.Message) error {
	return f.SaveBatch(ctx, []*outbox.Message{msg})
}

func (f *fakeOutbox) SaveBatch(_ context.Context, msgs []*outbox.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeOutbox) GetUnpublished(context.Context, int) ([]*outbox.Message, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkPublished(context.Context, int64) error { return nil }
func (f *fakeOutbox) MarkFailed(context.Context, int64, string, time.Time) error {
	return nil
}
func (f *fakeOutbox) MarkDead(context.Context, int64, string) error { return nil }
func (f *fakeOutbox) DeleteOld(context.Context, int) (int64, error) { return 0, nil }

func (f *fakeOutbox) messages() []*outbox.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*outbox.Message(nil), f.msgs...)
}

type txState struct {
	release []func()
}

type txKey struct{}

// fakeUnitOfWork runs each transaction's release hooks on commit or rollback.
type fakeUnitOfWork struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
}

func (u *fakeUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	return context.WithValue(ctx, txKey{}, &txState{}), nil
}

func (u *fakeUnitOfWork) Commit(ctx context.Context) error {
	u.finish(ctx)
	u.mu.Lock()
	u.commits++
	u.mu.Unlock()
	return nil
}

func (u *fakeUnitOfWork) Rollback(ctx context.Context) error {
	u.finish(ctx)
	u.mu.Lock()
	u.rollbacks++
	u.mu.Unlock()
	return nil
}

func (u *fakeUnitOfWork) finish(ctx context.Context) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		for _, fn := range st.release {
			fn()
		}
	}
}

// fakeLocker holds a mutex per (user, kind) until the transaction ends.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	calls int
}

func (l *fakeLocker) LockQuota(ctx context.Context, userID string, kind domain.EventKind) error {
	st, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		return errors.New("no transaction in context")
	}
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	key := userID + "/" + string(kind)
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.calls++
	l.mu.Unlock()

	m.Lock()
	st.release = append(st.release, m.Unlock)
	return nil
}
