package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/application/mocks"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var testKeys = Keys{
	Fingerprint: []byte(strings.Repeat("f", 32)),
	Encryption:  []byte(strings.Repeat("e", 32)),
}

func strPtr(s string) *string { return &s }

type VaultServiceTestSuite struct {
	suite.Suite
	cards     *mocks.MockCardRepository
	publisher *mocks.MockEventPublisher
	service   *Service
	now       time.Time
}

func TestVaultServiceSuite(t *testing.T) {
	suite.Run(t, new(VaultServiceTestSuite))
}

func (s *VaultServiceTestSuite) SetupTest() {
	s.cards = mocks.NewMockCardRepository()
	s.publisher = mocks.NewMockEventPublisher()
	s.now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	svc, err := NewService(s.cards, s.publisher, testKeys, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	svc.now = func() time.Time { return s.now }
	s.service = svc
}

func (s *VaultServiceTestSuite) validCommand() TokenizeCommand {
	return TokenizeCommand{
		CustomerID:     "cust-1",
		PAN:            "4111 1111 1111 1111",
		ExpiryMonth:    12,
		ExpiryYear:     2028,
		CVV:            strPtr("123"),
		CardholderName: "Ada Lovelace",
	}
}

// ============================================================================
// TOKENIZE
// ============================================================================

func (s *VaultServiceTestSuite) Test_Tokenize_Success() {
	card, err := s.service.Tokenize(context.Background(), s.validCommand())

	s.Require().NoError(err)
	s.True(strings.HasPrefix(card.Token, "tok_"))
	s.Len(card.Token, len("tok_")+32)
	s.Equal("4111********1111", card.MaskedNumber)
	s.Equal("1111", card.Last4)
	s.Equal(domain.BrandVisa, card.Brand)
	s.True(card.Active)
	s.Equal(fingerprint(testKeys.Fingerprint, "4111111111111111"), card.Fingerprint)
	s.NotContains(card.Token, "4111111111111111")
	s.Equal(1, s.cards.Count())
}

func (s *VaultServiceTestSuite) Test_Tokenize_IsIdempotentPerCustomer() {
	ctx := context.Background()

	first, err := s.service.Tokenize(ctx, s.validCommand())
	s.Require().NoError(err)
	second, err := s.service.Tokenize(ctx, s.validCommand())
	s.Require().NoError(err)

	s.Equal(first.Token, second.Token)
	s.Equal(1, s.cards.Count())
}

func (s *VaultServiceTestSuite) Test_Tokenize_SameNumberDifferentCustomer() {
	ctx := context.Background()
	other := s.validCommand()
	other.CustomerID = "cust-2"

	first, err := s.service.Tokenize(ctx, s.validCommand())
	s.Require().NoError(err)
	second, err := s.service.Tokenize(ctx, other)
	s.Require().NoError(err)

	s.NotEqual(first.Token, second.Token)
	s.Equal(first.Fingerprint, second.Fingerprint)
}

func (s *VaultServiceTestSuite) Test_Tokenize_ConcurrentCallsStoreOneCard() {
	ctx := context.Background()
	const workers = 20

	var wg sync.WaitGroup
	tokens := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			card, err := s.service.Tokenize(ctx, s.validCommand())
			errs[i] = err
			if card != nil {
				tokens[i] = card.Token
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		s.Require().NoError(errs[i])
		s.Equal(tokens[0], tokens[i])
	}
	s.Equal(1, s.cards.Count())
}

func (s *VaultServiceTestSuite) Test_Tokenize_RereadsAfterLosingRace() {
	ctx := context.Background()
	winner := &domain.Card{Token: "tok_winner", CustomerID: "cust-1", Active: true}
	lookups := 0
	s.cards.FindActiveByFingerprintFn = func(ctx context.Context, fp, customerID string) (*domain.Card, error) {
		lookups++
		if lookups == 1 {
			return nil, nil
		}
		return winner, nil
	}
	s.cards.AddFn = func(ctx context.Context, card *domain.Card) error {
		return domain.NewDuplicateCardError(card.CustomerID)
	}

	card, err := s.service.Tokenize(ctx, s.validCommand())

	s.Require().NoError(err)
	s.Equal("tok_winner", card.Token)
	s.Equal(2, lookups)
}

func (s *VaultServiceTestSuite) Test_Tokenize_GivesUpAfterRepeatedConflicts() {
	s.cards.AddFn = func(ctx context.Context, card *domain.Card) error {
		return domain.NewDuplicateCardError(card.CustomerID)
	}

	_, err := s.service.Tokenize(context.Background(), s.validCommand())

	s.True(domain.IsErrorCode(err, domain.ErrCodeInternal))
	s.Equal(maxConflictAttempts, s.cards.GetCalls("Add"))
}

func (s *VaultServiceTestSuite) Test_Tokenize_PropagatesStorageFailure() {
	s.cards.FindActiveByFingerprintFn = func(ctx context.Context, fp, customerID string) (*domain.Card, error) {
		return nil, errors.New("connection refused")
	}

	_, err := s.service.Tokenize(context.Background(), s.validCommand())

	s.True(domain.IsErrorCode(err, domain.ErrCodeInternal))
	s.Contains(err.Error(), "connection refused")
}

func (s *VaultServiceTestSuite) Test_Tokenize_SealsBillingAddress() {
	ctx := context.Background()
	cmd := s.validCommand()
	cmd.BillingAddress = &domain.BillingAddress{Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}

	card, err := s.service.Tokenize(ctx, cmd)
	s.Require().NoError(err)
	s.NotEmpty(card.EncryptedBillingAddress)
	s.NotContains(string(card.EncryptedBillingAddress), "Main St")

	addr, err := s.service.BillingAddress(ctx, card.Token)
	s.Require().NoError(err)
	s.Equal(*cmd.BillingAddress, *addr)
}

// ============================================================================
// VALIDATION
// ============================================================================

func (s *VaultServiceTestSuite) Test_Tokenize_CollectsEveryViolation() {
	cmd := TokenizeCommand{
		PAN:         "4532015112830367",
		ExpiryMonth: 13,
		ExpiryYear:  2060,
		CVV:         strPtr("12a"),
	}

	_, err := s.service.Tokenize(context.Background(), cmd)

	verr, ok := domain.AsValidationError(err)
	s.Require().True(ok)
	s.ElementsMatch(
		[]string{"customer_id", "cardholder_name", "pan", "expiry_month", "expiry_year", "cvv"},
		verr.Fields(),
	)
	s.Equal(0, s.cards.GetCalls("Add"))
}

func (s *VaultServiceTestSuite) Test_Tokenize_RejectsExpiredCard() {
	cmd := s.validCommand()
	cmd.ExpiryMonth = 5
	cmd.ExpiryYear = 2026

	_, err := s.service.Tokenize(context.Background(), cmd)

	verr, ok := domain.AsValidationError(err)
	s.Require().True(ok)
	s.Equal([]string{"expiry"}, verr.Fields())
}

func (s *VaultServiceTestSuite) Test_Tokenize_CardValidThroughExpiryMonth() {
	cmd := s.validCommand()
	cmd.ExpiryMonth = 6
	cmd.ExpiryYear = 2026

	_, err := s.service.Tokenize(context.Background(), cmd)

	s.NoError(err)
}

func (s *VaultServiceTestSuite) Test_Tokenize_AmexNeedsFourDigitCVV() {
	cmd := s.validCommand()
	cmd.PAN = "378282246310005"
	cmd.CVV = strPtr("123")

	_, err := s.service.Tokenize(context.Background(), cmd)
	verr, ok := domain.AsValidationError(err)
	s.Require().True(ok)
	s.Equal([]string{"cvv"}, verr.Fields())

	cmd.CVV = strPtr("1234")
	card, err := s.service.Tokenize(context.Background(), cmd)
	s.Require().NoError(err)
	s.Equal(domain.BrandAmex, card.Brand)
}

func (s *VaultServiceTestSuite) Test_Tokenize_RejectsShortNumber() {
	cmd := s.validCommand()
	cmd.PAN = "424242424242"

	_, err := s.service.Tokenize(context.Background(), cmd)

	verr, ok := domain.AsValidationError(err)
	s.Require().True(ok)
	s.Contains(verr.Fields(), "pan")
}

func (s *VaultServiceTestSuite) Test_Tokenize_NonNumericNumberReportsLengthToo() {
	cmd := s.validCommand()
	cmd.PAN = "12ab"

	_, err := s.service.Tokenize(context.Background(), cmd)

	verr, ok := domain.AsValidationError(err)
	s.Require().True(ok)
	s.Equal([]domain.Violation{
		{Field: "pan", Message: "must contain only digits"},
		{Field: "pan", Message: fmt.Sprintf("must be %d to %d digits", domain.MinPANLength, domain.MaxPANLength)},
	}, verr.Violations)
}

// ============================================================================
// LIFECYCLE
// ============================================================================

func (s *VaultServiceTestSuite) Test_ResolveValidateRevoke() {
	ctx := context.Background()
	card, err := s.service.Tokenize(ctx, s.validCommand())
	s.Require().NoError(err)

	resolved, err := s.service.Resolve(ctx, card.Token)
	s.Require().NoError(err)
	s.Equal(card.Token, resolved.Token)
	s.True(s.service.Validate(ctx, card.Token))

	ok, err := s.service.Revoke(ctx, card.Token)
	s.Require().NoError(err)
	s.True(ok)
	s.False(s.service.Validate(ctx, card.Token))
	s.Equal([]string{domain.EventCardRevoked}, s.publisher.Types())

	ok, err = s.service.Revoke(ctx, card.Token)
	s.Require().NoError(err)
	s.True(ok)
	s.Len(s.publisher.Events(), 1, "second revoke emits nothing")
}

func (s *VaultServiceTestSuite) Test_Tokenize_AfterRevokeIssuesNewToken() {
	ctx := context.Background()
	first, err := s.service.Tokenize(ctx, s.validCommand())
	s.Require().NoError(err)
	_, err = s.service.Revoke(ctx, first.Token)
	s.Require().NoError(err)

	second, err := s.service.Tokenize(ctx, s.validCommand())

	s.Require().NoError(err)
	s.NotEqual(first.Token, second.Token)
}

func (s *VaultServiceTestSuite) Test_UnknownToken() {
	ctx := context.Background()

	card, err := s.service.Resolve(ctx, "tok_missing")
	s.NoError(err)
	s.Nil(card)
	s.False(s.service.Validate(ctx, "tok_missing"))

	ok, err := s.service.Revoke(ctx, "tok_missing")
	s.NoError(err)
	s.False(ok)
}

func (s *VaultServiceTestSuite) Test_Validate_LookupFailureIsInvalid() {
	s.cards.FindByTokenFn = func(ctx context.Context, token string) (*domain.Card, error) {
		return nil, errors.New("timeout")
	}

	s.False(s.service.Validate(context.Background(), "tok_any"))
}

func (s *VaultServiceTestSuite) Test_CardsForCustomer() {
	ctx := context.Background()
	_, err := s.service.Tokenize(ctx, s.validCommand())
	s.Require().NoError(err)
	other := s.validCommand()
	other.PAN = "5555555555554444"
	_, err = s.service.Tokenize(ctx, other)
	s.Require().NoError(err)

	cards, err := s.service.CardsForCustomer(ctx, "cust-1")

	s.Require().NoError(err)
	s.Len(cards, 2)

	_, err = s.service.CardsForCustomer(ctx, "")
	s.True(domain.IsErrorCode(err, domain.ErrCodeValidation))
}

func (s *VaultServiceTestSuite) Test_Purge() {
	ctx := context.Background()
	card, err := s.service.Tokenize(ctx, s.validCommand())
	s.Require().NoError(err)

	err = s.service.Purge(ctx, card.Token)
	s.True(domain.IsErrorCode(err, domain.ErrCodeInvalidState))

	_, err = s.service.Revoke(ctx, card.Token)
	s.Require().NoError(err)
	s.Require().NoError(s.service.Purge(ctx, card.Token))
	s.Equal(0, s.cards.Count())
}

func TestSealer(t *testing.T) {
	sl, err := newSealer(testKeys.Encryption)
	require.NoError(t, err)

	sealed, err := sl.seal([]byte("secret"))
	require.NoError(t, err)
	again, err := sl.seal([]byte("secret"))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce is random")

	plain, err := sl.open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plain))

	sealed[len(sealed)-1] ^= 0xff
	_, err = sl.open(sealed)
	assert.Error(t, err)

	_, err = newSealer([]byte("short"))
	assert.Error(t, err)
}
