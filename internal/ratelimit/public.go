package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"github.com/bitbonsai/license-server/internal/config"
)

const (
	keyWebhook = "webhook:%s:%s"
	keyVerify  = "verify:%s"
)

// PublicLimiter throttles the unauthenticated surface per client IP. A nil
// limiter (rate limiting disabled) allows everything, so callers never need
// to branch on configuration.
type PublicLimiter struct {
	enabled bool

	bucket *TokenBucket

	webhookRate  float64
	webhookBurst int
	verifyRate   float64
	verifyBurst  int
}

func NewPublicLimiter(cfg config.Config) (*PublicLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.WebhookRate <= 0 || limitCfg.WebhookBurst <= 0 {
		return nil, errors.New("webhook rate limit must be positive")
	}
	if limitCfg.VerifyRate <= 0 || limitCfg.VerifyBurst <= 0 {
		return nil, errors.New("verify rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &PublicLimiter{
		enabled:      true,
		bucket:       NewTokenBucket(client),
		webhookRate:  limitCfg.WebhookRate,
		webhookBurst: limitCfg.WebhookBurst,
		verifyRate:   limitCfg.VerifyRate,
		verifyBurst:  limitCfg.VerifyBurst,
	}, nil
}

func (l *PublicLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *PublicLimiter) AllowWebhook(ctx context.Context, provider, ip string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	key := fmt.Sprintf(keyWebhook, strings.TrimSpace(provider), strings.TrimSpace(ip))
	return l.bucket.Allow(ctx, key, l.webhookRate, l.webhookBurst)
}

func (l *PublicLimiter) AllowVerify(ctx context.Context, ip string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyVerify, strings.TrimSpace(ip)), l.verifyRate, l.verifyBurst)
}
