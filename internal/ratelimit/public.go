package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/ambassador/internal/config"
)

const keyPublicEndpoint = "ambassador:ratelimit:%s:%s"

// PublicLimiter throttles unauthenticated endpoints per client IP.
type PublicLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewPublicLimiter(cfg config.Config, bucket *TokenBucket) (*PublicLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return &PublicLimiter{}, nil
	}
	if bucket == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.PublicRate <= 0 || limitCfg.PublicBurst <= 0 {
		return nil, errors.New("public rate limit must be positive")
	}
	return &PublicLimiter{
		enabled: true,
		bucket:  bucket,
		rate:    limitCfg.PublicRate,
		burst:   limitCfg.PublicBurst,
	}, nil
}

func (l *PublicLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow consumes one token from the bucket of (endpoint, clientIP).
func (l *PublicLimiter) Allow(ctx context.Context, endpoint, clientIP string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyPublicEndpoint, strings.TrimSpace(endpoint), strings.TrimSpace(clientIP))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
