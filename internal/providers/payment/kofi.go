package payment

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"go.uber.org/zap"
)

// KofiAdapter handles Ko-fi webhooks. Ko-fi carries no HMAC signature; the
// payload embeds a shared verification token instead. Ko-fi payments are
// donations only and never produce a license.
type KofiAdapter struct {
	verificationToken string
	log               *zap.Logger
}

func NewKofiAdapter(verificationToken string, log *zap.Logger) *KofiAdapter {
	return &KofiAdapter{
		verificationToken: strings.TrimSpace(verificationToken),
		log:               log.Named("payment.kofi"),
	}
}

func (a *KofiAdapter) Provider() string {
	return "kofi"
}

type kofiData struct {
	VerificationToken          string `json:"verification_token"`
	MessageID                  string `json:"message_id"`
	Type                       string `json:"type"`
	FromName                   string `json:"from_name"`
	Amount                     string `json:"amount"`
	Email                      string `json:"email"`
	Currency                   string `json:"currency"`
	IsSubscriptionPayment      bool   `json:"is_subscription_payment"`
	IsFirstSubscriptionPayment bool   `json:"is_first_subscription_payment"`
	KofiTransactionID          string `json:"kofi_transaction_id"`
}

func (a *KofiAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.verificationToken == "" {
		return ErrNotConfigured
	}

	data, err := decodeKofiPayload(payload)
	if err != nil {
		return ErrInvalidPayload
	}
	if data.VerificationToken == "" {
		return ErrInvalidSignature
	}

	if !hmac.Equal([]byte(data.VerificationToken), []byte(a.verificationToken)) {
		return ErrInvalidSignature
	}
	return nil
}

func (a *KofiAdapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*InboundEvent, error) {
	data, err := decodeKofiPayload(payload)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(data.KofiTransactionID) == "" {
		return nil, ErrInvalidPayload
	}

	amountCents, err := parseKofiAmount(data.Amount)
	if err != nil {
		a.log.Warn("unparseable ko-fi amount", zap.String("amount", data.Amount))
		amountCents = 0
	}

	return &InboundEvent{
		Kind:            KindDonation,
		Provider:        licensedomain.ProviderKofi,
		ProviderEventID: strings.TrimSpace(data.KofiTransactionID),
		Email:           strings.TrimSpace(data.Email),
		DonorName:       strings.TrimSpace(data.FromName),
		AmountCents:     amountCents,
		RawPayload:      payload,
	}, nil
}

// decodeKofiPayload accepts both delivery shapes Ko-fi produces: the standard
// form post with a single "data" field, and a bare JSON body.
func decodeKofiPayload(payload []byte) (*kofiData, error) {
	raw := strings.TrimSpace(string(payload))

	if strings.HasPrefix(raw, "data=") || strings.Contains(raw, "&data=") {
		values, err := url.ParseQuery(raw)
		if err != nil {
			return nil, err
		}
		raw = values.Get("data")
	} else if strings.HasPrefix(raw, "{") {
		var envelope struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal([]byte(raw), &envelope); err == nil && envelope.Data != "" {
			raw = envelope.Data
		}
	}

	var data kofiData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// parseKofiAmount converts Ko-fi's decimal string ("3.00") to cents.
func parseKofiAmount(amount string) (int64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(value * 100)), nil
}
