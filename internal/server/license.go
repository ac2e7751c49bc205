package server

import (
	"net/http"
	"strings"

	auditdomain "github.com/bitbonsai/license-server/internal/audit/domain"
	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type verifyLicenseRequest struct {
	Key string `json:"key"`
}

// VerifyLicense is the public verification endpoint. A bad token is a
// negative verdict with a 200, not an error; only a store outage surfaces
// as a 5xx so clients retry.
func (s *Server) VerifyLicense(c *gin.Context) {
	var req verifyLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.licenseSvc.Verify(c.Request.Context(), req.Key)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.metrics != nil {
		verdict := "invalid"
		if result.Valid {
			verdict = "valid"
		}
		s.metrics.Verifications.WithLabelValues(verdict).Inc()
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) GetPublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"algorithm":  "Ed25519",
		"public_key": s.licenseSvc.PublicKeyPEM(),
	})
}

func (s *Server) CreateLicense(c *gin.Context) {
	var req licensedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	license, err := s.licenseSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "license.create", "license", license.ID.String(), map[string]any{
		"email": license.Email,
		"tier":  string(license.Tier),
	})

	c.JSON(http.StatusCreated, license)
}

func (s *Server) ListLicenses(c *gin.Context) {
	skip, take := parsePageQuery(c)

	licenses, err := s.licenseSvc.FindAll(c.Request.Context(), skip, take)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	total, err := s.licenseSvc.Count(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"licenses": licenses,
		"total":    total,
	})
}

func (s *Server) GetLicenseByID(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	license, err := s.licenseSvc.FindByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if license == nil {
		AbortWithError(c, licensedomain.ErrLicenseNotFound)
		return
	}

	c.JSON(http.StatusOK, license)
}

func (s *Server) ListLicensesByEmail(c *gin.Context) {
	email := strings.TrimSpace(c.Param("email"))
	if email == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	licenses, err := s.licenseSvc.FindByEmail(c.Request.Context(), email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"licenses": licenses})
}

type revokeLicenseRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RevokeLicense(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req revokeLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "Revoked by admin"
	}

	license, err := s.licenseSvc.Revoke(c.Request.Context(), id, reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "license.revoke", "license", license.ID.String(), map[string]any{
		"reason": reason,
	})

	c.JSON(http.StatusOK, license)
}

// recordAudit writes an admin audit entry. Failures are logged inside the
// audit service and never fail the admin mutation.
func (s *Server) recordAudit(c *gin.Context, action, targetType, targetID string, metadata map[string]any) {
	_ = s.auditSvc.Record(c.Request.Context(), auditdomain.RecordRequest{
		ActorType:  auditdomain.ActorAdmin,
		Action:     action,
		TargetType: targetType,
		TargetID:   &targetID,
		Metadata:   metadata,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}
