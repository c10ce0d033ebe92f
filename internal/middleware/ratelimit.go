package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
)

const rateLimitPrefix = "fundflow:ratelimit:"

// RedisStorage implements fiber.Storage on Redis so limiter counters are
// shared across API instances.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage wraps client. It returns nil for a nil client.
func NewRedisStorage(client *redis.Client) *RedisStorage {
	if client == nil {
		return nil
	}
	return &RedisStorage{client: client}
}

// Get returns nil, nil when the key does not exist.
func (s *RedisStorage) Get(key string) ([]byte, error) {
	val, err := s.client.Get(context.Background(), rateLimitPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores val with an expiry; 0 means no expiry. Empty keys or values are ignored.
func (s *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	return s.client.Set(context.Background(), rateLimitPrefix+key, val, exp).Err()
}

// Delete removes key.
func (s *RedisStorage) Delete(key string) error {
	return s.client.Del(context.Background(), rateLimitPrefix+key).Err()
}

// Reset removes every limiter key.
func (s *RedisStorage) Reset() error {
	ctx := context.Background()
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, rateLimitPrefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close is a no-op; the client is owned by the caller.
func (*RedisStorage) Close() error {
	return nil
}

// RateLimit applies a sliding-window limit keyed by principal id, or by
// client IP for anonymous callers. A nil storage keeps counters in memory.
func RateLimit(storage fiber.Storage, limit int, window time.Duration) fiber.Handler {
	cfg := limiter.Config{
		Max:        limit,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if p := PrincipalFrom(c); p != nil {
				return "user:" + p.ID
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(*fiber.Ctx) error {
			return apperr.New(apperr.KindRateLimited, "too many requests, try again later")
		},
		LimiterMiddleware: limiter.SlidingWindow{},
	}
	if storage != nil {
		cfg.Storage = storage
	}
	return limiter.New(cfg)
}
