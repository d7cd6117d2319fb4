package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	goredis "github.com/redis/go-redis/v9"
)

const blacklistPrefix = "blacklist:"

// Blacklist stores one Redis set per identifier kind.
type Blacklist struct {
	client goredis.UniversalClient
}

var _ application.BlacklistManager = (*Blacklist)(nil)

func NewBlacklist(client goredis.UniversalClient) *Blacklist {
	return &Blacklist{client: client}
}

func blacklistKey(kind application.BlacklistKind) string {
	return blacklistPrefix + string(kind)
}

// ParseBlacklistKind accepts the kind names used in keys and on the command line.
func ParseBlacklistKind(s string) (application.BlacklistKind, error) {
	switch kind := application.BlacklistKind(strings.ToLower(strings.TrimSpace(s))); kind {
	case application.BlacklistIP, application.BlacklistCustomer, application.BlacklistPaymentMethod:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown blacklist kind %q", s)
	}
}

func (b *Blacklist) IsIPBlacklisted(ctx context.Context, ip string) (bool, error) {
	return b.contains(ctx, application.BlacklistIP, ip)
}

func (b *Blacklist) IsCustomerBlacklisted(ctx context.Context, customerID string) (bool, error) {
	return b.contains(ctx, application.BlacklistCustomer, customerID)
}

func (b *Blacklist) IsPaymentMethodBlacklisted(ctx context.Context, paymentMethodID string) (bool, error) {
	return b.contains(ctx, application.BlacklistPaymentMethod, paymentMethodID)
}

func (b *Blacklist) Add(ctx context.Context, kind application.BlacklistKind, value string) error {
	if err := b.client.SAdd(ctx, blacklistKey(kind), value).Err(); err != nil {
		return fmt.Errorf("failed to add %s to blacklist: %w", kind, err)
	}
	return nil
}

func (b *Blacklist) Remove(ctx context.Context, kind application.BlacklistKind, value string) error {
	if err := b.client.SRem(ctx, blacklistKey(kind), value).Err(); err != nil {
		return fmt.Errorf("failed to remove %s from blacklist: %w", kind, err)
	}
	return nil
}

// Members lists a set. Operator tooling only; sets are expected to stay small.
func (b *Blacklist) Members(ctx context.Context, kind application.BlacklistKind) ([]string, error) {
	members, err := b.client.SMembers(ctx, blacklistKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s blacklist: %w", kind, err)
	}
	return members, nil
}

func (b *Blacklist) contains(ctx context.Context, kind application.BlacklistKind, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	ok, err := b.client.SIsMember(ctx, blacklistKey(kind), value).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s blacklist: %w", kind, err)
	}
	return ok, nil
}
