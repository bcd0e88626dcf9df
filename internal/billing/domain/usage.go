package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventKind is a metered consumption category.
type EventKind string

const (
	KindGeneration   EventKind = "generation"
	KindExport       EventKind = "export"
	KindAudioMinutes EventKind = "audio_minutes"
)

// EventKinds lists every metered kind.
func EventKinds() []EventKind {
	return []EventKind{KindGeneration, KindExport, KindAudioMinutes}
}

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	switch k {
	case KindGeneration, KindExport, KindAudioMinutes:
		return true
	}
	return false
}

// ParseEventKind parses a kind name.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, s)
	}
	return k, nil
}

// ValidateQuantity applies the quantity rules for kind and returns the
// effective quantity. A nil quantity means 1. Only audio_minutes accepts
// values other than 1, and those must be finite and positive.
func ValidateQuantity(kind EventKind, quantity *float64) (float64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
	}
	if quantity == nil {
		return 1, nil
	}

	q := *quantity
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0, fmt.Errorf("%w: not a finite number", ErrInvalidQuantity)
	}
	if kind == KindAudioMinutes {
		if q <= 0 {
			return 0, fmt.Errorf("%w: audio_minutes must be positive, got %v", ErrInvalidQuantity, q)
		}
		return q, nil
	}
	if q != 1 {
		return 0, fmt.Errorf("%w: %s must be 1, got %v", ErrInvalidQuantity, kind, q)
	}
	return q, nil
}

// MonthStart returns 00:00 UTC on the first day of the month containing now.
func MonthStart(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// UsageEvent is one admitted unit of consumption. Events are never updated.
type UsageEvent struct {
	ID        uuid.UUID
	UserID    string
	Kind      EventKind
	Quantity  float64
	RequestID string
	CreatedAt time.Time
}

// NewUsageEvent creates an event stamped at now in UTC.
func NewUsageEvent(userID string, kind EventKind, quantity float64, requestID string, now time.Time) *UsageEvent {
	return &UsageEvent{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Quantity:  quantity,
		RequestID: requestID,
		CreatedAt: now.UTC(),
	}
}
