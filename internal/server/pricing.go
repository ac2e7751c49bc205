package server

import (
	"net/http"
	"strings"

	pricingdomain "github.com/bitbonsai/license-server/internal/pricing/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// ListPublicPricingTiers exposes active tiers only; draft and deactivated
// tiers stay private to the admin surface.
func (s *Server) ListPublicPricingTiers(c *gin.Context) {
	tiers, err := s.pricingSvc.ListTiers(c.Request.Context(), true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

func (s *Server) ListPricingTiers(c *gin.Context) {
	tiers, err := s.pricingSvc.ListTiers(c.Request.Context(), false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

func (s *Server) CreatePricingTier(c *gin.Context) {
	var req pricingdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tier, err := s.pricingSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "pricing.create", "pricing_tier", tier.ID.String(), map[string]any{
		"name": tier.Name,
	})

	c.JSON(http.StatusCreated, tier)
}

func (s *Server) UpdatePricingTier(c *gin.Context) {
	id, ok := parseTierID(c)
	if !ok {
		return
	}

	var req pricingdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tier, err := s.pricingSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "pricing.update", "pricing_tier", tier.ID.String(), nil)
	c.JSON(http.StatusOK, tier)
}

func (s *Server) PublishPricingTier(c *gin.Context) {
	id, ok := parseTierID(c)
	if !ok {
		return
	}

	var req pricingdomain.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if strings.TrimSpace(req.StripePriceIDMonthly) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tier, err := s.pricingSvc.Publish(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "pricing.publish", "pricing_tier", tier.ID.String(), map[string]any{
		"name": tier.Name,
	})
	c.JSON(http.StatusOK, tier)
}

func (s *Server) DeactivatePricingTier(c *gin.Context) {
	id, ok := parseTierID(c)
	if !ok {
		return
	}

	tier, err := s.pricingSvc.Deactivate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "pricing.deactivate", "pricing_tier", tier.ID.String(), nil)
	c.JSON(http.StatusOK, tier)
}

type mapPatreonTierRequest struct {
	PatreonTierID string `json:"patreon_tier_id"`
}

func (s *Server) MapPatreonTier(c *gin.Context) {
	id, ok := parseTierID(c)
	if !ok {
		return
	}

	var req mapPatreonTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tier, err := s.pricingSvc.MapPatreonTier(c.Request.Context(), id, req.PatreonTierID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "pricing.map_patreon", "pricing_tier", tier.ID.String(), map[string]any{
		"patreon_tier_id": req.PatreonTierID,
	})
	c.JSON(http.StatusOK, tier)
}

func parseTierID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}
