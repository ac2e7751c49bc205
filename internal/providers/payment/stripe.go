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
	"strings"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	pricingdomain "github.com/bitbonsai/license-server/internal/pricing/domain"
	"go.uber.org/zap"
)

// TierLookup is the slice of the pricing service the Stripe adapter needs
// to map a checkout session or subscription back to a license tier.
type TierLookup interface {
	GetByName(ctx context.Context, name string) (*pricingdomain.PricingTier, error)
	GetByStripePriceID(ctx context.Context, priceID string) (*pricingdomain.PricingTier, error)
}

type StripeAdapter struct {
	webhookSecret string
	tiers         TierLookup
	log           *zap.Logger
}

func NewStripeAdapter(webhookSecret string, tiers TierLookup, log *zap.Logger) *StripeAdapter {
	return &StripeAdapter{
		webhookSecret: strings.TrimSpace(webhookSecret),
		tiers:         tiers,
		log:           log.Named("payment.stripe"),
	}
}

func (a *StripeAdapter) Provider() string {
	return "stripe"
}

// Verify checks the Stripe-Signature header: HMAC-SHA256 of "<t>.<payload>"
// keyed with the endpoint webhook secret, hex-encoded in one or more v1 pairs.
func (a *StripeAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return ErrNotConfigured
	}

	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return ErrInvalidSignature
}

func (a *StripeAdapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*InboundEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, ErrInvalidPayload
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return a.parseCheckoutCompleted(ctx, event, payload)
	case "customer.subscription.updated":
		return a.parseSubscription(ctx, event, payload, KindUpgrade)
	case "customer.subscription.deleted":
		return a.parseSubscription(ctx, event, payload, KindCancellation)
	case "charge.refunded":
		return a.parseRefund(event, payload)
	default:
		a.log.Debug("ignoring stripe event", zap.String("type", event.Type))
		return &InboundEvent{Kind: KindIgnored, Provider: licensedomain.ProviderStripe, ProviderEventID: event.ID}, nil
	}
}

type stripeEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID              string            `json:"id"`
	Mode            string            `json:"mode"`
	Customer        string            `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Items    struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

type stripeCharge struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

// parseCheckoutCompleted maps a completed subscription checkout to a new
// license. Checkout sessions are created with tierName in their metadata, so
// the tier resolves locally without a round trip to the Stripe API.
func (a *StripeAdapter) parseCheckoutCompleted(ctx context.Context, event stripeEvent, payload []byte) (*InboundEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, ErrInvalidPayload
	}

	ignored := &InboundEvent{Kind: KindIgnored, Provider: licensedomain.ProviderStripe, ProviderEventID: event.ID}
	if session.Mode != "subscription" {
		return ignored, nil
	}

	email := strings.TrimSpace(session.CustomerEmail)
	if email == "" {
		email = strings.TrimSpace(session.CustomerDetails.Email)
	}
	if email == "" {
		a.log.Error("no email in stripe checkout session", zap.String("session_id", session.ID))
		return ignored, nil
	}

	tier, err := a.tierFromName(ctx, session.Metadata["tierName"])
	if err != nil {
		return nil, err
	}

	return &InboundEvent{
		Kind:               KindNewSubscription,
		Provider:           licensedomain.ProviderStripe,
		ProviderEventID:    event.ID,
		Email:              email,
		Tier:               tier,
		ProviderCustomerID: strings.TrimSpace(session.Customer),
		RawPayload:         payload,
	}, nil
}

func (a *StripeAdapter) parseSubscription(ctx context.Context, event stripeEvent, payload []byte, kind EventKind) (*InboundEvent, error) {
	var subscription stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &subscription); err != nil {
		return nil, ErrInvalidPayload
	}

	customerID := strings.TrimSpace(subscription.Customer)
	if customerID == "" {
		return nil, ErrInvalidPayload
	}

	inbound := &InboundEvent{
		Kind:               kind,
		Provider:           licensedomain.ProviderStripe,
		ProviderEventID:    event.ID,
		ProviderCustomerID: customerID,
		RawPayload:         payload,
	}
	if kind == KindCancellation {
		return inbound, nil
	}

	var priceID string
	if len(subscription.Items.Data) > 0 {
		priceID = strings.TrimSpace(subscription.Items.Data[0].Price.ID)
	}
	tier, err := a.tierFromPriceID(ctx, priceID)
	if err != nil {
		return nil, err
	}
	inbound.Tier = tier
	return inbound, nil
}

func (a *StripeAdapter) parseRefund(event stripeEvent, payload []byte) (*InboundEvent, error) {
	var charge stripeCharge
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, ErrInvalidPayload
	}

	customerID := strings.TrimSpace(charge.Customer)
	if customerID == "" {
		a.log.Warn("refund with no customer id", zap.String("charge_id", charge.ID))
		return &InboundEvent{Kind: KindIgnored, Provider: licensedomain.ProviderStripe, ProviderEventID: event.ID}, nil
	}

	return &InboundEvent{
		Kind:               KindCancellation,
		Provider:           licensedomain.ProviderStripe,
		ProviderEventID:    event.ID,
		ProviderCustomerID: customerID,
		RawPayload:         payload,
	}, nil
}

// tierFromName resolves the tier recorded in checkout session metadata. An
// unknown name blocks license creation rather than guessing a tier.
func (a *StripeAdapter) tierFromName(ctx context.Context, name string) (licensedomain.Tier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		a.log.Error("stripe checkout session has no tierName metadata")
		return "", ErrUnknownTier
	}

	pricingTier, err := a.tiers.GetByName(ctx, name)
	if err != nil && !errors.Is(err, pricingdomain.ErrTierNotFound) {
		return "", err
	}
	if pricingTier != nil {
		return licensedomain.Tier(pricingTier.Name), nil
	}

	tier, err := licensedomain.ParseTier(name)
	if err != nil {
		a.log.Error("unknown tier in stripe checkout metadata", zap.String("tier_name", name))
		return "", ErrUnknownTier
	}
	return tier, nil
}

func (a *StripeAdapter) tierFromPriceID(ctx context.Context, priceID string) (licensedomain.Tier, error) {
	if priceID == "" {
		a.log.Error("stripe subscription has no price id")
		return "", ErrUnknownTier
	}

	pricingTier, err := a.tiers.GetByStripePriceID(ctx, priceID)
	if err != nil && !errors.Is(err, pricingdomain.ErrTierNotFound) {
		return "", err
	}
	if pricingTier == nil {
		a.log.Error("unknown stripe price id, blocking license creation", zap.String("price_id", priceID))
		return "", ErrUnknownTier
	}
	return licensedomain.Tier(pricingTier.Name), nil
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}
