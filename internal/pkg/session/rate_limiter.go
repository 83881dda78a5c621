// internal/pkg/session/rate_limiter.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limits configures the fixed-window counters of the RateLimiter.
type Limits struct {
	LoginAttempts  int64
	LoginWindow    time.Duration
	ResetAttempts  int64
	ResetWindow    time.Duration
	ResendAttempts int64
	ResendWindow   time.Duration
}

// DefaultLimits allows 5 sign-ins per 15 minutes, 3 reset and 3 resend requests per hour.
var DefaultLimits = Limits{
	LoginAttempts:  5,
	LoginWindow:    15 * time.Minute,
	ResetAttempts:  3,
	ResetWindow:    time.Hour,
	ResendAttempts: 3,
	ResendWindow:   time.Hour,
}

type RateLimiter struct {
	client redis.UniversalClient
	limits Limits
}

func NewRateLimiter(client redis.UniversalClient, limits Limits) *RateLimiter {
	return &RateLimiter{client: client, limits: limits}
}

// CheckLoginAttempt checks if a sign-in attempt is allowed and returns the attempts left
func (r *RateLimiter) CheckLoginAttempt(ctx context.Context, ip, email string) (bool, int64, error) {
	count, err := r.hit(ctx, r.loginKey(ip, email), r.limits.LoginWindow)
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment login attempt: %w", err)
	}

	remaining := r.limits.LoginAttempts - count
	if remaining < 0 {
		remaining = 0
	}

	return count <= r.limits.LoginAttempts, remaining, nil
}

// GetRemainingAttempts returns remaining sign-in attempts
func (r *RateLimiter) GetRemainingAttempts(ctx context.Context, ip, email string) (int64, error) {
	count, err := r.client.Get(ctx, r.loginKey(ip, email)).Int64()
	if errors.Is(err, redis.Nil) {
		return r.limits.LoginAttempts, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get login attempts: %w", err)
	}

	remaining := r.limits.LoginAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ResetLoginAttempts resets the sign-in counter
func (r *RateLimiter) ResetLoginAttempts(ctx context.Context, ip, email string) error {
	return r.client.Del(ctx, r.loginKey(ip, email)).Err()
}

// CheckPasswordResetAttempt checks the password reset rate limit
func (r *RateLimiter) CheckPasswordResetAttempt(ctx context.Context, email string) (bool, error) {
	key := fmt.Sprintf("ratelimit:password_reset:%s", strings.ToLower(email))
	count, err := r.hit(ctx, key, r.limits.ResetWindow)
	if err != nil {
		return false, fmt.Errorf("failed to increment password reset attempt: %w", err)
	}
	return count <= r.limits.ResetAttempts, nil
}

// CheckResendAttempt checks the confirmation code resend rate limit
func (r *RateLimiter) CheckResendAttempt(ctx context.Context, email string) (bool, error) {
	key := fmt.Sprintf("ratelimit:resend:%s", strings.ToLower(email))
	count, err := r.hit(ctx, key, r.limits.ResendWindow)
	if err != nil {
		return false, fmt.Errorf("failed to increment resend attempt: %w", err)
	}
	return count <= r.limits.ResendAttempts, nil
}

func (r *RateLimiter) loginKey(ip, email string) string {
	return fmt.Sprintf("ratelimit:login:%s:%s", ip, strings.ToLower(email))
}

// hitScript increments KEYS[1] and gives it a TTL of ARGV[1] ms when it has none,
// so a counter can never outlive its window.
var hitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// hit increments key and starts its window on the first hit
func (r *RateLimiter) hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	return hitScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Int64()
}
