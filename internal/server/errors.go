package server

import (
	"errors"
	"net/http"

	auditdomain "github.com/bitbonsai/license-server/internal/audit/domain"
	donationdomain "github.com/bitbonsai/license-server/internal/donation/domain"
	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	pricingdomain "github.com/bitbonsai/license-server/internal/pricing/domain"
	"github.com/bitbonsai/license-server/internal/providers/payment"
	webhookdomain "github.com/bitbonsai/license-server/internal/webhook/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, payment.ErrInvalidSignature),
		errors.Is(err, payment.ErrNotConfigured):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, payment.ErrInvalidPayload),
		errors.Is(err, licensedomain.ErrInvalidEmail),
		errors.Is(err, licensedomain.ErrUnknownTier),
		errors.Is(err, payment.ErrUnknownTier),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: errorMessage(err, "invalid request"),
		}
	case errors.Is(err, licensedomain.ErrAlreadyRevoked),
		errors.Is(err, pricingdomain.ErrTierActive),
		errors.Is(err, pricingdomain.ErrTierAlreadyPublished),
		errors.Is(err, pricingdomain.ErrDuplicateName),
		errors.Is(err, webhookdomain.ErrEventNotReplayable):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: errorMessage(err, "conflict"),
		}
	case errors.Is(err, licensedomain.ErrLicenseNotFound),
		errors.Is(err, pricingdomain.ErrTierNotFound),
		errors.Is(err, webhookdomain.ErrEventNotFound),
		errors.Is(err, donationdomain.ErrDonationNotFound),
		errors.Is(err, payment.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func errorMessage(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
