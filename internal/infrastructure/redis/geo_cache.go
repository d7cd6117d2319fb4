package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const geoCachePrefix = "geo:"

// CachingGeoLocator serves lookups from Redis and falls back to the wrapped
// locator. Cache failures are logged and never fail a lookup.
type CachingGeoLocator struct {
	inner  application.GeoLocator
	client goredis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachingGeoLocator(inner application.GeoLocator, client goredis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachingGeoLocator {
	return &CachingGeoLocator{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (c *CachingGeoLocator) Locate(ctx context.Context, ip string) (*domain.GeoLocation, error) {
	key := geoCachePrefix + ip

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var loc domain.GeoLocation
		if jsonErr := json.Unmarshal(raw, &loc); jsonErr == nil {
			return &loc, nil
		}
		c.logger.Warn("discarding corrupt geo cache entry", "ip", ip)
	case !errors.Is(err, goredis.Nil):
		c.logger.Warn("geo cache read failed", "ip", ip, "error", err)
	}

	loc, err := c.inner.Locate(ctx, ip)
	if err != nil || loc == nil {
		return loc, err
	}

	if payload, err := json.Marshal(loc); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("geo cache write failed", "ip", ip, "error", err)
		}
	}
	return loc, nil
}
