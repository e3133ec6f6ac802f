package createguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisClient is the subset of *redis.Client the guard needs.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Redis leases keys across replicas with SET NX PX. A lease expires after
// TTL even if its holder never releases it.
type Redis struct {
	client       RedisClient
	ttl          time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewRedis builds a Redis guard. ttl defaults to 30s.
func NewRedis(client RedisClient, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client:       client,
		ttl:          ttl,
		pollInterval: 50 * time.Millisecond,
		logger:       logger.With("component", "createguard"),
	}
}

// NewRedisFromURL parses a redis:// URL and returns the guard together with
// the client so the caller can close it.
func NewRedisFromURL(rawURL string, ttl time.Duration, logger *slog.Logger) (*Redis, *redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return NewRedis(client, ttl, logger), client, nil
}

// Acquire implements Guard. It polls until the lease is free, the context
// ends or one TTL has elapsed.
func (g *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(g.ttl)

	for {
		ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("createguard: acquire %s: %w", key, err)
		}
		if ok {
			return g.releaser(key, token), nil
		}

		if time.Now().After(deadline) {
			return nil, ErrBusy
		}

		timer := time.NewTimer(g.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrBusy, ctx.Err())
		case <-timer.C:
		}
	}
}

func (g *Redis) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := g.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				g.logger.WarnContext(ctx, "failed to release create lease", "key", key, "error", err)
			}
		})
	}
}
