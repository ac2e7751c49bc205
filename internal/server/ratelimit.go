package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookRateLimit throttles provider deliveries per (provider, ip). Limiter
// errors fail open: a redis outage must not drop paid subscription events.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := strings.TrimSpace(c.Param("provider"))
		allowed, err := s.limiter.AllowWebhook(c.Request.Context(), provider, c.ClientIP())
		if err != nil {
			s.log.Warn("webhook rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"type": "rate_limited", "message": "too many requests"},
			})
			return
		}
		c.Next()
	}
}

func (s *Server) VerifyRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := s.limiter.AllowVerify(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("verify rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"type": "rate_limited", "message": "too many requests"},
			})
			return
		}
		c.Next()
	}
}
