// internal/pkg/ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	signInWindow      = 15 * time.Minute
	maxSignInAttempts = 10
)

// Limiter throttles abuse-prone endpoints with Redis counters.
type Limiter struct {
	client *redis.Client
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// CheckSignInAttempt counts a federated sign-in attempt from ip and
// reports whether it is still allowed inside the window.
func (l *Limiter) CheckSignInAttempt(ctx context.Context, ip, provider string) (bool, error) {
	key := fmt.Sprintf("ratelimit:signin:%s:%s", provider, ip)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment sign-in attempt: %w", err)
	}

	// Set expiration on first attempt
	if count == 1 {
		l.client.Expire(ctx, key, signInWindow)
	}

	return count <= maxSignInAttempts, nil
}

// ResetSignInAttempts clears the counter after a successful sign-in.
func (l *Limiter) ResetSignInAttempts(ctx context.Context, ip, provider string) error {
	key := fmt.Sprintf("ratelimit:signin:%s:%s", provider, ip)
	return l.client.Del(ctx, key).Err()
}
