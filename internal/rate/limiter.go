package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds login throttle tuning parameters.
type Config struct {
	EnableIPThrottle bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
}

// Limiter enforces per-identifier and per-IP failed-login budgets using
// Redis counters with a cooldown TTL.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	prefix string
}

// New creates a [Limiter] backed by the given Redis client. A zero
// MaxLoginAttempts disables enforcement entirely.
func New(redisClient redis.UniversalClient, cfg Config, prefix string) *Limiter {
	if prefix == "" {
		prefix = "lr"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		prefix: prefix,
	}
}

func (l *Limiter) enabled() bool {
	return l != nil && l.config.MaxLoginAttempts > 0
}

func (l *Limiter) identifierKey(identifier string) string {
	return l.prefix + ":id:" + identifier
}

func (l *Limiter) ipKey(ip string) string {
	return l.prefix + ":ip:" + ip
}

// CheckLogin reports whether the identifier+IP pair is still within the
// failed-attempt budget.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if !l.enabled() {
		return nil
	}
	if err := l.checkCounter(ctx, l.identifierKey(identifier)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.checkCounter(ctx, l.ipKey(ip))
	}
	return nil
}

// IncrementLogin records a failed login attempt for the identifier+IP pair.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier, ip string) error {
	if !l.enabled() {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.identifierKey(identifier))
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}
	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, l.ipKey(ip))
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// ResetLogin clears the failed-login counters after a successful password
// check or a completed password change.
func (l *Limiter) ResetLogin(ctx context.Context, identifier, ip string) error {
	if !l.enabled() {
		return nil
	}
	keys := []string{l.identifierKey(identifier)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.config.LoginCooldown)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return incr.Val(), nil
}
