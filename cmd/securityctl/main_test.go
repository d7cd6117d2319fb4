package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/application/mocks"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCards struct {
	cards   map[string]*domain.Card
	revoked []string
}

func (f *fakeCards) Revoke(ctx context.Context, token string) (bool, error) {
	card, ok := f.cards[token]
	if !ok {
		return false, nil
	}
	if !card.Active {
		return true, nil
	}
	card.Active = false
	f.revoked = append(f.revoked, token)
	return true, nil
}

func (f *fakeCards) Purge(ctx context.Context, token string) error {
	card, ok := f.cards[token]
	if !ok {
		return domain.NewNotFoundError("card", token)
	}
	if card.Active {
		return domain.NewInvalidStateError("ACTIVE", "REVOKED")
	}
	delete(f.cards, token)
	return nil
}

func (f *fakeCards) CardsForCustomer(ctx context.Context, customerID string) ([]*domain.Card, error) {
	var out []*domain.Card
	for _, c := range f.cards {
		if c.CustomerID == customerID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeAuths map[string]*domain.Authentication

func (f fakeAuths) Get(ctx context.Context, transactionID string) (*domain.Authentication, error) {
	return f[transactionID], nil
}

func testDeps(cards *fakeCards, auths fakeAuths, blacklist *mocks.MockBlacklist) *deps {
	return &deps{
		migrate: func(ctx context.Context) ([]string, error) {
			return []string{"001_init"}, nil
		},
		cards: func(ctx context.Context) (cardStore, error) { return cards, nil },
		auths: func(ctx context.Context) (authLookup, error) { return auths, nil },
		blacklist: func(ctx context.Context) (blacklistStore, error) {
			return blacklist, nil
		},
	}
}

func run(t *testing.T, d *deps, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(d)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	out, err := run(t, testDeps(nil, nil, nil), "migrate")

	require.NoError(t, err)
	assert.Equal(t, "applied 001_init\n", out)
}

func TestCardCommands(t *testing.T) {
	cards := &fakeCards{cards: map[string]*domain.Card{
		"tok_a": {
			Token: "tok_a", MaskedNumber: "4111********1111", Brand: domain.BrandVisa,
			ExpiryMonth: 3, ExpiryYear: 2031, CustomerID: "cust-1", Active: true,
			CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}}
	d := testDeps(cards, nil, nil)

	out, err := run(t, d, "card", "list", "cust-1")
	require.NoError(t, err)
	assert.Contains(t, out, "4111********1111")
	assert.Contains(t, out, "03/2031")
	assert.Contains(t, out, "active")

	_, err = run(t, d, "card", "purge", "tok_a")
	assert.Equal(t, application.ExitConflict, application.ExitCode(err))

	out, err = run(t, d, "card", "revoke", "tok_a")
	require.NoError(t, err)
	assert.Equal(t, "revoked tok_a\n", out)

	out, err = run(t, d, "card", "revoke", "tok_a")
	require.NoError(t, err)
	assert.Equal(t, "revoked tok_a\n", out)
	assert.Equal(t, []string{"tok_a"}, cards.revoked)

	out, err = run(t, d, "card", "purge", "tok_a")
	require.NoError(t, err)
	assert.Equal(t, "purged tok_a\n", out)

	_, err = run(t, d, "card", "revoke", "tok_a")
	assert.Equal(t, application.ExitNotFound, application.ExitCode(err))
}

func TestThreeDSStatus(t *testing.T) {
	eci := "05"
	auths := fakeAuths{"tx-1": {
		TransactionID:       "tx-1",
		Status:              domain.AuthStatusSuccessful,
		Provider:            domain.ProviderVisaSecure,
		Amount:              decimal.RequireFromString("42.5"),
		Currency:            "USD",
		AuthenticationProof: domain.AuthenticationProof{ECI: &eci},
	}}
	d := testDeps(nil, auths, nil)

	out, err := run(t, d, "3ds", "status", "tx-1")
	require.NoError(t, err)

	var view authenticationView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, domain.AuthStatusSuccessful, view.Status)
	assert.Equal(t, "42.50", view.Amount)
	require.NotNil(t, view.ECI)
	assert.Equal(t, "05", *view.ECI)

	out, err = run(t, d, "3ds", "status", "tx-missing")
	assert.Equal(t, application.ExitNotFound, application.ExitCode(err))
	assert.Contains(t, out, string(domain.AuthStatusNotFound))
}

func TestBlacklistCommands(t *testing.T) {
	blacklist := mocks.NewMockBlacklist()
	d := testDeps(nil, nil, blacklist)

	_, err := run(t, d, "blacklist", "add", "ip", "203.0.113.7")
	require.NoError(t, err)
	_, err = run(t, d, "blacklist", "add", "ip", "198.51.100.1")
	require.NoError(t, err)

	out, err := run(t, d, "blacklist", "check", "IP", "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, "ip 203.0.113.7 is blacklisted\n", out)

	out, err = run(t, d, "blacklist", "list", "ip")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.1\n203.0.113.7\n", out)

	_, err = run(t, d, "blacklist", "remove", "ip", "203.0.113.7")
	require.NoError(t, err)
	out, err = run(t, d, "blacklist", "check", "ip", "203.0.113.7")
	require.NoError(t, err)
	assert.Contains(t, out, "is not blacklisted")

	_, err = run(t, d, "blacklist", "add", "device", "abc")
	assert.Equal(t, application.ExitInvalidInput, application.ExitCode(err))
}

func TestBlacklistCheck_StoreFailure(t *testing.T) {
	blacklist := mocks.NewMockBlacklist()
	blacklist.Err = errors.New("redis: connection refused")

	_, err := run(t, testDeps(nil, nil, blacklist), "blacklist", "check", "customer", "cust-1")

	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, application.ExitUnavailable, application.ExitCode(err))
}
