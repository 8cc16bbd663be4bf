// Package ratelimit throttles mutating requests per client key.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether one more request for key fits the quota.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
	Close() error
}

// New picks the Redis fixed-window limiter when redisAddr is set and the
// in-process token bucket otherwise. perMinute <= 0 disables limiting and
// returns a nil Limiter.
func New(redisAddr, redisPassword, prefix string, perMinute int) (Limiter, error) {
	if perMinute <= 0 {
		return nil, nil
	}
	if redisAddr != "" {
		l, err := NewRedisFixedWindowLimiter(redisAddr, redisPassword, prefix, perMinute, time.Minute)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return NewKeyedLimiter(float64(perMinute)/60, perMinute), nil
}
