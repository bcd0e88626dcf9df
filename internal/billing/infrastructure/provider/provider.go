// Package provider translates payment provider payloads into subscription
// upserts. Payloads are expected to be authenticated upstream.
package provider

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/application"
	"github.com/felixgeelhaar/cadence/internal/billing/domain"
)

var (
	// ErrUnknownProvider is returned by Registry.Get for unregistered names.
	ErrUnknownProvider = errors.New("unknown billing provider")
	// ErrMalformedPayload is returned when a payload cannot be decoded.
	ErrMalformedPayload = errors.New("malformed provider payload")
)

// Translator converts a provider event into a subscription upsert. A nil
// upsert with a nil error means the event is ignored.
type Translator interface {
	Name() string
	Translate(payload []byte, now time.Time) (*application.SubscriptionUpsert, error)
}

// Registry holds translators by provider name.
type Registry struct {
	translators map[string]Translator
}

// NewRegistry creates a registry with the given translators.
func NewRegistry(translators ...Translator) *Registry {
	r := &Registry{translators: make(map[string]Translator, len(translators))}
	for _, t := range translators {
		r.translators[t.Name()] = t
	}
	return r
}

// Get returns the translator registered under name.
func (r *Registry) Get(name string) (Translator, error) {
	t, ok := r.translators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return t, nil
}

// Names lists registered providers in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.translators))
	for name := range r.translators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// planMap validates a provider id to plan name mapping.
func planMap(raw map[string]string) (map[string]domain.Plan, error) {
	out := make(map[string]domain.Plan, len(raw))
	for id, name := range raw {
		plan, err := domain.ParsePlan(name)
		if err != nil {
			return nil, fmt.Errorf("provider id %q: %w", id, err)
		}
		out[id] = plan
	}
	return out, nil
}
