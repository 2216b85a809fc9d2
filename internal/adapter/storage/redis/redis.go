// Package redis holds the Redis backed fast paths: the idempotency response
// cache, webhook nonces and the API rate limiter. None of them is the source
// of truth for money; the ledger falls back to Postgres on a miss.
package redis

import (
	"context"
	"fmt"
	"time"

	"wallet-ledger/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyPrefix   = "wallet:"
	healthProbe = keyPrefix + "health:probe"
)

// NewClient dials Redis with bounded timeouts so a slow Redis degrades the
// cache instead of stalling ledger requests.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})

	if err := probe(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis at %s: %w", cfg.Addr(), err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Int("pool_size", cfg.PoolSize).
		Msg("redis ready")
	return client, nil
}

// probe pings and then writes a short lived key. Nonces and cached replays
// are writes, so a read-only replica counts as down.
func probe(ctx context.Context, client *goredis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if err := client.Set(ctx, healthProbe, time.Now().Unix(), 10*time.Second).Err(); err != nil {
		return fmt.Errorf("write probe: %w", err)
	}
	return nil
}

// HealthCheck implements ports.HealthChecker.
type HealthCheck struct {
	client *goredis.Client
}

func NewHealthCheck(client *goredis.Client) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) Ping(ctx context.Context) error { return probe(ctx, h.client) }

func (h *HealthCheck) Name() string { return "redis" }

// Critical is false: the ledger falls back to Postgres without Redis.
func (h *HealthCheck) Critical() bool { return false }
