// Package redis keeps the blacklist sets and the geolocation cache.
package redis

import (
	"context"
	"fmt"

	"github.com/DanielPopoola/payment-security-core/internal/config"
	goredis "github.com/redis/go-redis/v9"
)

// Connect opens a client and pings it once so misconfiguration fails at startup.
func Connect(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
