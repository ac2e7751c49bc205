package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	pricingdomain "github.com/bitbonsai/license-server/internal/pricing/domain"
	"go.uber.org/zap"
)

type tierLookupStub struct {
	byName    map[string]*pricingdomain.PricingTier
	byPriceID map[string]*pricingdomain.PricingTier
}

func (s *tierLookupStub) GetByName(ctx context.Context, name string) (*pricingdomain.PricingTier, error) {
	if tier, ok := s.byName[name]; ok {
		return tier, nil
	}
	return nil, pricingdomain.ErrTierNotFound
}

func (s *tierLookupStub) GetByStripePriceID(ctx context.Context, priceID string) (*pricingdomain.PricingTier, error) {
	if tier, ok := s.byPriceID[priceID]; ok {
		return tier, nil
	}
	return nil, pricingdomain.ErrTierNotFound
}

func newStripeAdapter(secret string, tiers TierLookup) *StripeAdapter {
	return NewStripeAdapter(secret, tiers, zap.NewNop())
}

func TestStripeVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	header := buildStripeSignatureHeader(secret, payload, timestamp)
	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", header)

	adapter := newStripeAdapter(secret, &tierLookupStub{})
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, timestamp))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	reqHeader.Del("Stripe-Signature")
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error for missing header, got %v", err)
	}
}

func TestStripeVerifyUnconfigured(t *testing.T) {
	adapter := newStripeAdapter("", &tierLookupStub{})
	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", "t=1,v1=deadbeef")

	if err := adapter.Verify(context.Background(), []byte("{}"), reqHeader); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured error, got %v", err)
	}
}

func TestStripeParseEvents(t *testing.T) {
	tiers := &tierLookupStub{
		byName: map[string]*pricingdomain.PricingTier{
			"COMMERCIAL_PRO": {Name: "COMMERCIAL_PRO"},
		},
		byPriceID: map[string]*pricingdomain.PricingTier{
			"price_starter_m": {Name: "COMMERCIAL_STARTER"},
		},
	}
	adapter := newStripeAdapter("whsec_test", tiers)

	tests := []struct {
		name         string
		event        map[string]any
		wantKind     EventKind
		wantTier     licensedomain.Tier
		wantEmail    string
		wantCustomer string
	}{{
		name: "checkout completed",
		event: map[string]any{
			"id":   "evt_checkout",
			"type": "checkout.session.completed",
			"data": map[string]any{
				"object": map[string]any{
					"id":             "cs_1",
					"mode":           "subscription",
					"customer":       "cus_1",
					"customer_email": "buyer@example.com",
					"metadata":       map[string]any{"tierName": "COMMERCIAL_PRO"},
				},
			},
		},
		wantKind:     KindNewSubscription,
		wantTier:     licensedomain.TierCommercialPro,
		wantEmail:    "buyer@example.com",
		wantCustomer: "cus_1",
	}, {
		name: "checkout email from customer details",
		event: map[string]any{
			"id":   "evt_checkout_details",
			"type": "checkout.session.completed",
			"data": map[string]any{
				"object": map[string]any{
					"id":               "cs_2",
					"mode":             "subscription",
					"customer":         "cus_2",
					"customer_details": map[string]any{"email": "detail@example.com"},
					"metadata":         map[string]any{"tierName": "COMMERCIAL_PRO"},
				},
			},
		},
		wantKind:     KindNewSubscription,
		wantTier:     licensedomain.TierCommercialPro,
		wantEmail:    "detail@example.com",
		wantCustomer: "cus_2",
	}, {
		name: "one-time checkout ignored",
		event: map[string]any{
			"id":   "evt_payment_mode",
			"type": "checkout.session.completed",
			"data": map[string]any{
				"object": map[string]any{
					"id":       "cs_3",
					"mode":     "payment",
					"customer": "cus_3",
				},
			},
		},
		wantKind: KindIgnored,
	}, {
		name: "checkout without email ignored",
		event: map[string]any{
			"id":   "evt_no_email",
			"type": "checkout.session.completed",
			"data": map[string]any{
				"object": map[string]any{
					"id":       "cs_4",
					"mode":     "subscription",
					"customer": "cus_4",
					"metadata": map[string]any{"tierName": "COMMERCIAL_PRO"},
				},
			},
		},
		wantKind: KindIgnored,
	}, {
		name: "subscription updated",
		event: map[string]any{
			"id":   "evt_sub_updated",
			"type": "customer.subscription.updated",
			"data": map[string]any{
				"object": map[string]any{
					"id":       "sub_1",
					"customer": "cus_5",
					"items": map[string]any{
						"data": []any{
							map[string]any{"price": map[string]any{"id": "price_starter_m"}},
						},
					},
				},
			},
		},
		wantKind:     KindUpgrade,
		wantTier:     licensedomain.TierCommercialStarter,
		wantCustomer: "cus_5",
	}, {
		name: "subscription deleted",
		event: map[string]any{
			"id":   "evt_sub_deleted",
			"type": "customer.subscription.deleted",
			"data": map[string]any{
				"object": map[string]any{
					"id":       "sub_2",
					"customer": "cus_6",
				},
			},
		},
		wantKind:     KindCancellation,
		wantCustomer: "cus_6",
	}, {
		name: "charge refunded",
		event: map[string]any{
			"id":   "evt_refund",
			"type": "charge.refunded",
			"data": map[string]any{
				"object": map[string]any{
					"id":       "ch_1",
					"customer": "cus_7",
				},
			},
		},
		wantKind:     KindCancellation,
		wantCustomer: "cus_7",
	}, {
		name: "refund without customer ignored",
		event: map[string]any{
			"id":   "evt_refund_anon",
			"type": "charge.refunded",
			"data": map[string]any{
				"object": map[string]any{"id": "ch_2"},
			},
		},
		wantKind: KindIgnored,
	}, {
		name: "unrelated event ignored",
		event: map[string]any{
			"id":   "evt_other",
			"type": "invoice.paid",
			"data": map[string]any{"object": map[string]any{}},
		},
		wantKind: KindIgnored,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("marshal payload: %v", err)
			}
			event, err := adapter.Parse(context.Background(), payload, http.Header{})
			if err != nil {
				t.Fatalf("parse event: %v", err)
			}
			if event.Kind != tt.wantKind {
				t.Fatalf("expected kind %d, got %d", tt.wantKind, event.Kind)
			}
			if event.Provider != licensedomain.ProviderStripe {
				t.Fatalf("expected stripe provider, got %s", event.Provider)
			}
			if tt.wantTier != "" && event.Tier != tt.wantTier {
				t.Fatalf("expected tier %s, got %s", tt.wantTier, event.Tier)
			}
			if tt.wantEmail != "" && event.Email != tt.wantEmail {
				t.Fatalf("expected email %s, got %s", tt.wantEmail, event.Email)
			}
			if tt.wantCustomer != "" && event.ProviderCustomerID != tt.wantCustomer {
				t.Fatalf("expected customer %s, got %s", tt.wantCustomer, event.ProviderCustomerID)
			}
		})
	}
}

func TestStripeUnknownTierBlocks(t *testing.T) {
	adapter := newStripeAdapter("whsec_test", &tierLookupStub{})

	checkout := map[string]any{
		"id":   "evt_unknown_tier",
		"type": "checkout.session.completed",
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_1",
				"mode":           "subscription",
				"customer":       "cus_1",
				"customer_email": "buyer@example.com",
				"metadata":       map[string]any{"tierName": "GOLD_PLATED"},
			},
		},
	}
	payload, err := json.Marshal(checkout)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if _, err := adapter.Parse(context.Background(), payload, http.Header{}); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected unknown tier error, got %v", err)
	}

	updated := map[string]any{
		"id":   "evt_unknown_price",
		"type": "customer.subscription.updated",
		"data": map[string]any{
			"object": map[string]any{
				"id":       "sub_1",
				"customer": "cus_1",
				"items": map[string]any{
					"data": []any{
						map[string]any{"price": map[string]any{"id": "price_missing"}},
					},
				},
			},
		},
	}
	payload, err = json.Marshal(updated)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if _, err := adapter.Parse(context.Background(), payload, http.Header{}); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected unknown tier error, got %v", err)
	}
}

func TestStripeTierNameFallback(t *testing.T) {
	// No pricing row exists, but the name is a known built-in tier.
	adapter := newStripeAdapter("whsec_test", &tierLookupStub{})

	tier, err := adapter.tierFromName(context.Background(), "patreon_pro")
	if err != nil {
		t.Fatalf("tier from name: %v", err)
	}
	if tier != licensedomain.TierPatreonPro {
		t.Fatalf("expected PATREON_PRO, got %s", tier)
	}
}

func TestStripeParseRejectsGarbage(t *testing.T) {
	adapter := newStripeAdapter("whsec_test", &tierLookupStub{})

	for _, payload := range []string{"", "not-json", `{"type":"checkout.session.completed"}`} {
		if _, err := adapter.Parse(context.Background(), []byte(payload), http.Header{}); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("expected invalid payload for %q, got %v", payload, err)
		}
	}
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
