package domain

import "errors"

var (
	// ErrInvalidQuantity is returned for quantities the event kind does not accept.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrUserRequired is returned when a request carries no user id.
	ErrUserRequired = errors.New("user id required")
	// ErrUnknownEventKind is returned for kinds outside the metered set.
	ErrUnknownEventKind = errors.New("unknown event kind")
	// ErrUnknownPlan is returned for plan names outside the catalog.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrInvalidSubscription is returned for malformed subscription upserts.
	ErrInvalidSubscription = errors.New("invalid subscription")
	// ErrStorageUnavailable wraps any storage failure or timeout. Callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrDuplicateRequest is returned by Append when the request id was already recorded.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrSubscriptionNotFound is returned when a user has no subscription record.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)
