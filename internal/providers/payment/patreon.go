package payment

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"go.uber.org/zap"
)

type PatreonAdapter struct {
	webhookSecret string
	log           *zap.Logger
	now           func() time.Time
}

func NewPatreonAdapter(webhookSecret string, log *zap.Logger) *PatreonAdapter {
	return &PatreonAdapter{
		webhookSecret: strings.TrimSpace(webhookSecret),
		log:           log.Named("payment.patreon"),
		now:           time.Now,
	}
}

func (a *PatreonAdapter) Provider() string {
	return "patreon"
}

// Verify checks X-Patreon-Signature: hex HMAC-MD5 of the raw body. MD5 is
// Patreon's scheme, not a choice made here.
func (a *PatreonAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return ErrNotConfigured
	}

	signature := strings.TrimSpace(headers.Get("X-Patreon-Signature"))
	if signature == "" {
		return ErrInvalidSignature
	}

	mac := hmac.New(md5.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

type patreonPayload struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Email                        string `json:"email"`
			PatronStatus                 string `json:"patron_status"`
			CurrentlyEntitledAmountCents int64  `json:"currently_entitled_amount_cents"`
		} `json:"attributes"`
	} `json:"data"`
}

func (a *PatreonAdapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*InboundEvent, error) {
	eventName := strings.TrimSpace(headers.Get("X-Patreon-Event"))
	if eventName == "" {
		return nil, ErrInvalidPayload
	}

	var body patreonPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, ErrInvalidPayload
	}

	memberID := strings.TrimSpace(body.Data.ID)
	if memberID == "" {
		return nil, ErrInvalidPayload
	}

	// Patreon sends no event id, so one is synthesized from the event name,
	// the member and the delivery time. Retries of the same delivery carry the
	// same body but a fresh timestamp, so dedupe here is per-delivery only.
	eventID := fmt.Sprintf("%s:%s:%d", eventName, memberID, a.now().UnixMilli())

	inbound := &InboundEvent{
		Provider:           licensedomain.ProviderPatreon,
		ProviderEventID:    eventID,
		Email:              strings.TrimSpace(body.Data.Attributes.Email),
		ProviderCustomerID: memberID,
		RawPayload:         payload,
	}

	switch eventName {
	case "members:pledge:create", "members:create":
		inbound.Kind = KindNewSubscription
		inbound.Tier = patreonTierForPledge(body.Data.Attributes.CurrentlyEntitledAmountCents)
	case "members:pledge:update", "members:update":
		inbound.Kind = KindUpgrade
		inbound.Tier = patreonTierForPledge(body.Data.Attributes.CurrentlyEntitledAmountCents)
	case "members:pledge:delete", "members:delete":
		inbound.Kind = KindCancellation
	default:
		a.log.Warn("unhandled patreon event", zap.String("event", eventName))
		inbound.Kind = KindIgnored
	}

	return inbound, nil
}

// patreonTierForPledge maps the entitled pledge amount (cents) to a tier.
func patreonTierForPledge(cents int64) licensedomain.Tier {
	switch {
	case cents >= 2500:
		return licensedomain.TierPatreonUltimate
	case cents >= 1500:
		return licensedomain.TierPatreonPro
	case cents >= 1000:
		return licensedomain.TierPatreonPlus
	case cents >= 500:
		return licensedomain.TierPatreonSupporter
	default:
		return licensedomain.TierFree
	}
}
