package server

import (
	"io"
	"net/http"
	"strings"

	donationdomain "github.com/bitbonsai/license-server/internal/donation/domain"
	"github.com/bitbonsai/license-server/internal/providers/payment"
	webhookdomain "github.com/bitbonsai/license-server/internal/webhook/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleProviderWebhook authenticates and reconciles one provider delivery.
// Once a delivery is verified and parsed, the reconciler owns the outcome:
// engine failures land in the ledger as FAILED and the provider still gets
// a 200 so it stops retrying.
func (s *Server) HandleProviderWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	adapter, ok := s.adapters.Get(provider)
	if !ok {
		AbortWithError(c, payment.ErrProviderNotFound)
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	if err := adapter.Verify(ctx, payload, c.Request.Header); err != nil {
		s.log.Warn("webhook signature rejected",
			zap.String("provider", provider),
			zap.String("ip", c.ClientIP()),
		)
		AbortWithError(c, err)
		return
	}

	event, err := adapter.Parse(ctx, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	switch event.Kind {
	case payment.KindNewSubscription:
		_, err = s.webhookSvc.ProcessNewSubscription(ctx, webhookdomain.NewSubscription{
			Provider:           event.Provider,
			ProviderEventID:    event.ProviderEventID,
			Email:              event.Email,
			Tier:               event.Tier,
			ProviderCustomerID: event.ProviderCustomerID,
			RawPayload:         event.RawPayload,
		})
	case payment.KindUpgrade:
		_, err = s.webhookSvc.ProcessUpgrade(ctx, webhookdomain.Upgrade{
			Provider:           event.Provider,
			ProviderEventID:    event.ProviderEventID,
			ProviderCustomerID: event.ProviderCustomerID,
			NewTier:            event.Tier,
			RawPayload:         event.RawPayload,
		})
	case payment.KindCancellation:
		_, err = s.webhookSvc.ProcessCancellation(ctx, webhookdomain.Cancellation{
			Provider:           event.Provider,
			ProviderEventID:    event.ProviderEventID,
			ProviderCustomerID: event.ProviderCustomerID,
			RawPayload:         event.RawPayload,
		})
	case payment.KindDonation:
		_, err = s.donationSvc.Record(ctx, donationdomain.RecordRequest{
			Email:           event.Email,
			DonorName:       event.DonorName,
			AmountCents:     event.AmountCents,
			Provider:        event.Provider,
			ProviderEventID: event.ProviderEventID,
			RawPayload:      event.RawPayload,
		})
	case payment.KindIgnored:
		// Acknowledged, nothing to reconcile.
	}

	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (s *Server) ListWebhookEvents(c *gin.Context) {
	skip, take := parsePageQuery(c)

	events, err := s.webhookSvc.ListEvents(c.Request.Context(), skip, take)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	total, err := s.webhookSvc.CountEvents(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
	})
}

func (s *Server) ReplayWebhookEvent(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.webhookSvc.Replay(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "webhook.replay", "webhook_event", id.String(), map[string]any{
		"success": result.Success,
	})

	c.JSON(http.StatusOK, result)
}
