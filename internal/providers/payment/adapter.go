// Package payment contains the provider webhook adapters. Each adapter
// authenticates its provider's transport (signature or shared token) and
// normalizes the provider payload into a provider-agnostic inbound event.
// A forged event that passes Verify is treated as trustworthy downstream.
package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrNotConfigured    = errors.New("provider_not_configured")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrUnknownTier      = errors.New("unknown_tier_mapping")
)

type EventKind int

const (
	// KindIgnored marks provider events with no license consequence.
	KindIgnored EventKind = iota
	KindNewSubscription
	KindUpgrade
	KindCancellation
	KindDonation
)

// InboundEvent is the normalized shape handed to the reconciler.
type InboundEvent struct {
	Kind               EventKind
	Provider           licensedomain.Provider
	ProviderEventID    string
	Email              string
	Tier               licensedomain.Tier
	ProviderCustomerID string

	// Donation-only fields (Ko-fi).
	DonorName   string
	AmountCents int64

	RawPayload []byte
}

// Adapter authenticates and parses one provider's webhook deliveries.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, header http.Header) error
	Parse(ctx context.Context, payload []byte, header http.Header) (*InboundEvent, error)
}

// Registry resolves adapters by provider name.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: map[string]Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(adapter.Provider()))
		if name == "" {
			continue
		}
		registry.adapters[name] = adapter
	}
	return registry
}

func (r *Registry) Get(provider string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(provider))]
	return adapter, ok
}
