// Package vault tokenizes card numbers and manages the resulting tokens.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

const (
	tokenPrefix = "tok_"

	// maxConflictAttempts bounds re-reads after losing an insert race.
	maxConflictAttempts = 3
)

type Service struct {
	cards     application.CardRepository
	publisher application.EventPublisher
	keys      Keys
	sealer    *sealer
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(
	cards application.CardRepository,
	publisher application.EventPublisher,
	keys Keys,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) (*Service, error) {
	if len(keys.Fingerprint) == 0 {
		return nil, errors.New("fingerprint key is required")
	}
	s, err := newSealer(keys.Encryption)
	if err != nil {
		return nil, err
	}
	return &Service{
		cards:     cards,
		publisher: publisher,
		keys:      keys,
		sealer:    s,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Tokenize stores a card and returns its token. Tokenizing a number the
// customer already holds as an active card returns that card unchanged.
func (s *Service) Tokenize(ctx context.Context, cmd TokenizeCommand) (*domain.Card, error) {
	pan := domain.NormalizePAN(cmd.PAN)
	brand := domain.DetectBrand(pan)

	if err := validateTokenize(cmd, pan, brand, s.now()); err != nil {
		s.metrics.Tokenization("invalid")
		return nil, err
	}

	fp := fingerprint(s.keys.Fingerprint, pan)

	for attempt := 1; attempt <= maxConflictAttempts; attempt++ {
		existing, err := s.cards.FindActiveByFingerprint(ctx, fp, cmd.CustomerID)
		if err != nil {
			s.metrics.Tokenization("error")
			return nil, domain.NewInternalError("failed to look up card", err)
		}
		if existing != nil {
			s.metrics.Tokenization("existing")
			return existing, nil
		}

		card, err := s.newCard(cmd, pan, brand, fp)
		if err != nil {
			s.metrics.Tokenization("error")
			return nil, err
		}

		err = s.cards.Add(ctx, card)
		if err == nil {
			s.logger.Info("card tokenized",
				"token", card.Token,
				"customer_id", card.CustomerID,
				"brand", card.Brand,
				"last4", card.Last4,
			)
			s.metrics.Tokenization("created")
			return card, nil
		}

		if !domain.IsErrorCode(err, domain.ErrCodeDuplicateCard) {
			s.metrics.Tokenization("error")
			return nil, domain.NewInternalError("failed to store card", err)
		}

		s.logger.Debug("lost tokenization race, re-reading",
			"customer_id", cmd.CustomerID,
			"attempt", attempt,
		)
	}

	s.metrics.Tokenization("error")
	return nil, domain.NewInternalError("card kept conflicting after retries",
		domain.NewDuplicateCardError(cmd.CustomerID))
}

func (s *Service) newCard(cmd TokenizeCommand, pan string, brand domain.CardBrand, fp string) (*domain.Card, error) {
	token, err := newToken()
	if err != nil {
		return nil, domain.NewInternalError("failed to generate token", err)
	}

	card := &domain.Card{
		Token:          token,
		MaskedNumber:   domain.MaskPAN(pan),
		Last4:          domain.LastFour(pan),
		CardholderName: strings.TrimSpace(cmd.CardholderName),
		ExpiryMonth:    cmd.ExpiryMonth,
		ExpiryYear:     cmd.ExpiryYear,
		Brand:          brand,
		Fingerprint:    fp,
		CustomerID:     cmd.CustomerID,
		Active:         true,
		CreatedAt:      s.now().UTC(),
	}

	if cmd.BillingAddress != nil {
		plain, err := json.Marshal(cmd.BillingAddress)
		if err != nil {
			return nil, domain.NewInternalError("failed to encode billing address", err)
		}
		sealed, err := s.sealer.seal(plain)
		if err != nil {
			return nil, domain.NewInternalError("failed to encrypt billing address", err)
		}
		card.EncryptedBillingAddress = sealed
	}

	return card, nil
}

// newToken draws 122 random bits from a v4 UUID and renders them as 32 hex chars.
func newToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return tokenPrefix + strings.ReplaceAll(id.String(), "-", ""), nil
}

// Resolve returns the card for token, or nil if the token is unknown.
func (s *Service) Resolve(ctx context.Context, token string) (*domain.Card, error) {
	if token == "" {
		return nil, nil
	}
	card, err := s.cards.FindByToken(ctx, token)
	if err != nil {
		return nil, domain.NewInternalError("failed to look up card", err)
	}
	return card, nil
}

// Validate reports whether the token names an active card. Lookup failures count as invalid.
func (s *Service) Validate(ctx context.Context, token string) bool {
	card, err := s.Resolve(ctx, token)
	if err != nil {
		s.logger.Error("card validation lookup failed", "token", token, "error", err)
		return false
	}
	return card != nil && card.Active
}

// Revoke deactivates the card. It returns false for an unknown token and true
// for an already revoked one.
func (s *Service) Revoke(ctx context.Context, token string) (bool, error) {
	card, err := s.Resolve(ctx, token)
	if err != nil {
		return false, err
	}
	if card == nil {
		return false, nil
	}

	revoked, event := card.Revoke(s.now())
	if event == nil {
		return true, nil
	}

	if err := s.cards.Update(ctx, &revoked); err != nil {
		return false, domain.NewInternalError("failed to revoke card", err)
	}

	s.logger.Info("card revoked", "token", token, "customer_id", card.CustomerID)
	s.publish(ctx, event)
	return true, nil
}

func (s *Service) CardsForCustomer(ctx context.Context, customerID string) ([]*domain.Card, error) {
	if strings.TrimSpace(customerID) == "" {
		v := &domain.ValidationError{}
		v.Add("customer_id", "is required")
		return nil, v
	}
	cards, err := s.cards.FindByCustomer(ctx, customerID)
	if err != nil {
		return nil, domain.NewInternalError("failed to list cards", err)
	}
	return cards, nil
}

// BillingAddress decrypts the address stored with an active card. A card
// tokenized without one yields (nil, nil).
func (s *Service) BillingAddress(ctx context.Context, token string) (*domain.BillingAddress, error) {
	card, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if card == nil || !card.Active {
		return nil, domain.NewNotFoundError("card", token)
	}
	if len(card.EncryptedBillingAddress) == 0 {
		return nil, nil
	}

	plain, err := s.sealer.open(card.EncryptedBillingAddress)
	if err != nil {
		return nil, domain.NewInternalError("failed to decrypt billing address", err)
	}
	var addr domain.BillingAddress
	if err := json.Unmarshal(plain, &addr); err != nil {
		return nil, domain.NewInternalError("failed to decode billing address", err)
	}
	return &addr, nil
}

// Purge removes a revoked card's record. Active cards must be revoked first.
func (s *Service) Purge(ctx context.Context, token string) error {
	card, err := s.Resolve(ctx, token)
	if err != nil {
		return err
	}
	if card == nil {
		return domain.NewNotFoundError("card", token)
	}
	if card.Active {
		return domain.NewInvalidStateError("ACTIVE", "REVOKED")
	}
	if err := s.cards.Delete(ctx, token); err != nil {
		return domain.NewInternalError("failed to purge card", err)
	}
	s.logger.Info("card purged", "token", token)
	return nil
}

// publish runs after the change is stored, so a failure is logged, not returned.
func (s *Service) publish(ctx context.Context, events ...domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish events", "count", len(events), "error", err)
	}
}
