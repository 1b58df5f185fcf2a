package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a subject has exhausted its window budget.
var ErrRateLimited = errors.New("rate limited")

// Config holds throttle tuning parameters for the OTP-issuing endpoints.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// Limiter is a fixed-window counter throttle backed by Redis, applied per
// email address and per client IP in front of the code-resend cooldown.
// Redis failures fail open: the auth path must not depend on cache
// availability.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow records one request for the email+IP pair and reports whether it
// is within budget. The first request in a window sets the key TTL.
func (l *Limiter) Allow(ctx context.Context, email, ip string) error {
	if l == nil || l.redis == nil {
		return nil
	}

	if err := l.increment(ctx, otpEmailKey(email)); err != nil {
		return err
	}
	if ip != "" {
		if err := l.increment(ctx, otpIPKey(ip)); err != nil {
			return err
		}
	}

	return nil
}

func (l *Limiter) increment(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return nil // fail open
	}
	if count == 1 {
		l.redis.Expire(ctx, key, l.config.Window)
	}
	if count > int64(l.config.MaxRequests) {
		return ErrRateLimited
	}

	return nil
}

func otpEmailKey(email string) string {
	return fmt.Sprintf("otp_throttle:email:%s", email)
}

func otpIPKey(ip string) string {
	return fmt.Sprintf("otp_throttle:ip:%s", ip)
}
