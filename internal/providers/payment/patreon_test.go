package payment

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"go.uber.org/zap"
)

func newPatreonAdapter(secret string) *PatreonAdapter {
	adapter := NewPatreonAdapter(secret, zap.NewNop())
	adapter.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return adapter
}

func buildPatreonSignature(secret string, payload []byte) string {
	mac := hmac.New(md5.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPatreonVerifySignature(t *testing.T) {
	secret := "patreon_secret"
	payload := []byte(`{"data":{"id":"member_1","attributes":{}}}`)

	adapter := newPatreonAdapter(secret)

	reqHeader := http.Header{}
	reqHeader.Set("X-Patreon-Signature", buildPatreonSignature(secret, payload))
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("X-Patreon-Signature", buildPatreonSignature("wrong", payload))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	reqHeader.Del("X-Patreon-Signature")
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error for missing header, got %v", err)
	}

	unconfigured := newPatreonAdapter("")
	reqHeader.Set("X-Patreon-Signature", buildPatreonSignature(secret, payload))
	if err := unconfigured.Verify(context.Background(), payload, reqHeader); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured error, got %v", err)
	}
}

func TestPatreonParseEvents(t *testing.T) {
	adapter := newPatreonAdapter("patreon_secret")

	tests := []struct {
		name     string
		event    string
		cents    int64
		wantKind EventKind
		wantTier licensedomain.Tier
	}{{
		name:     "pledge create",
		event:    "members:pledge:create",
		cents:    500,
		wantKind: KindNewSubscription,
		wantTier: licensedomain.TierPatreonSupporter,
	}, {
		name:     "member create",
		event:    "members:create",
		cents:    1000,
		wantKind: KindNewSubscription,
		wantTier: licensedomain.TierPatreonPlus,
	}, {
		name:     "pledge update",
		event:    "members:pledge:update",
		cents:    1500,
		wantKind: KindUpgrade,
		wantTier: licensedomain.TierPatreonPro,
	}, {
		name:     "pledge delete",
		event:    "members:pledge:delete",
		wantKind: KindCancellation,
	}, {
		name:     "unhandled event",
		event:    "members:note:update",
		wantKind: KindIgnored,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(fmt.Sprintf(
				`{"data":{"id":"member_1","attributes":{"email":"patron@example.com","currently_entitled_amount_cents":%d}}}`,
				tt.cents))
			reqHeader := http.Header{}
			reqHeader.Set("X-Patreon-Event", tt.event)

			event, err := adapter.Parse(context.Background(), payload, reqHeader)
			if err != nil {
				t.Fatalf("parse event: %v", err)
			}
			if event.Kind != tt.wantKind {
				t.Fatalf("expected kind %d, got %d", tt.wantKind, event.Kind)
			}
			if event.Provider != licensedomain.ProviderPatreon {
				t.Fatalf("expected patreon provider, got %s", event.Provider)
			}
			if tt.wantTier != "" && event.Tier != tt.wantTier {
				t.Fatalf("expected tier %s, got %s", tt.wantTier, event.Tier)
			}
			if event.ProviderCustomerID != "member_1" {
				t.Fatalf("expected member_1, got %s", event.ProviderCustomerID)
			}
			wantEventID := fmt.Sprintf("%s:member_1:1700000000000", tt.event)
			if event.ProviderEventID != wantEventID {
				t.Fatalf("expected event id %s, got %s", wantEventID, event.ProviderEventID)
			}
		})
	}
}

func TestPatreonParseRejectsMalformed(t *testing.T) {
	adapter := newPatreonAdapter("patreon_secret")

	reqHeader := http.Header{}
	payload := []byte(`{"data":{"id":"member_1","attributes":{}}}`)
	if _, err := adapter.Parse(context.Background(), payload, reqHeader); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected invalid payload for missing event header, got %v", err)
	}

	reqHeader.Set("X-Patreon-Event", "members:create")
	if _, err := adapter.Parse(context.Background(), []byte("not-json"), reqHeader); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected invalid payload for garbage body, got %v", err)
	}
	if _, err := adapter.Parse(context.Background(), []byte(`{"data":{"attributes":{}}}`), reqHeader); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected invalid payload for missing member id, got %v", err)
	}
}

func TestPatreonTierThresholds(t *testing.T) {
	tests := []struct {
		cents int64
		want  licensedomain.Tier
	}{
		{0, licensedomain.TierFree},
		{499, licensedomain.TierFree},
		{500, licensedomain.TierPatreonSupporter},
		{999, licensedomain.TierPatreonSupporter},
		{1000, licensedomain.TierPatreonPlus},
		{1499, licensedomain.TierPatreonPlus},
		{1500, licensedomain.TierPatreonPro},
		{2499, licensedomain.TierPatreonPro},
		{2500, licensedomain.TierPatreonUltimate},
		{10000, licensedomain.TierPatreonUltimate},
	}

	for _, tt := range tests {
		if got := patreonTierForPledge(tt.cents); got != tt.want {
			t.Fatalf("pledge %d: expected %s, got %s", tt.cents, tt.want, got)
		}
	}
}
