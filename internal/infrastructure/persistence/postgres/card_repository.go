package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/jackc/pgx/v5"
)

const activeCardConstraint = "cards_active_fingerprint_customer_key"

const cardColumns = `
	token, masked_number, last4, cardholder_name, expiry_month, expiry_year,
	brand, fingerprint, customer_id, active, encrypted_billing_address,
	created_at, revoked_at`

type CardRepository struct {
	q Executor
}

func NewCardRepository(db *DB) *CardRepository {
	return &CardRepository{q: db.Pool}
}

func (r *CardRepository) FindByToken(ctx context.Context, token string) (*domain.Card, error) {
	query := `SELECT` + cardColumns + ` FROM cards WHERE token = $1`
	return scanCard(r.q.QueryRow(ctx, query, token))
}

func (r *CardRepository) FindActiveByFingerprint(ctx context.Context, fingerprint, customerID string) (*domain.Card, error) {
	query := `SELECT` + cardColumns + `
		FROM cards
		WHERE fingerprint = $1 AND customer_id = $2 AND active`
	return scanCard(r.q.QueryRow(ctx, query, fingerprint, customerID))
}

func (r *CardRepository) FindByCustomer(ctx context.Context, customerID string) ([]*domain.Card, error) {
	query := `SELECT` + cardColumns + `
		FROM cards
		WHERE customer_id = $1
		ORDER BY created_at ASC`

	rows, err := r.q.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("query cards by customer_id: %w", err)
	}
	cards, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Card, error) {
		return scanCardRow(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan cards: %w", err)
	}
	return cards, nil
}

// Add inserts the card. Losing the race for the customer's active slot
// surfaces as a DUPLICATE_CARD error so the vault can re-read the winner.
func (r *CardRepository) Add(ctx context.Context, card *domain.Card) error {
	query := `
		INSERT INTO cards (` + cardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.q.Exec(ctx, query,
		card.Token,
		card.MaskedNumber,
		card.Last4,
		card.CardholderName,
		card.ExpiryMonth,
		card.ExpiryYear,
		string(card.Brand),
		card.Fingerprint,
		card.CustomerID,
		card.Active,
		card.EncryptedBillingAddress,
		card.CreatedAt,
		card.RevokedAt,
	)
	if err != nil {
		if violatedConstraint(err) == activeCardConstraint {
			return domain.NewDuplicateCardError(card.CustomerID)
		}
		return fmt.Errorf("failed to insert card: %w", err)
	}
	return nil
}

// Update writes the mutable columns. Only revocation changes a stored card.
func (r *CardRepository) Update(ctx context.Context, card *domain.Card) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE cards
		SET active = $1, revoked_at = $2
		WHERE token = $3`,
		card.Active, card.RevokedAt, card.Token,
	)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("card", card.Token)
	}
	return nil
}

func (r *CardRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM cards WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	return nil
}

func scanCard(row pgx.Row) (*domain.Card, error) {
	card, err := scanCardRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan card: %w", err)
	}
	return card, nil
}

func scanCardRow(row pgx.Row) (*domain.Card, error) {
	var (
		c     domain.Card
		brand string
	)
	err := row.Scan(
		&c.Token, &c.MaskedNumber, &c.Last4, &c.CardholderName, &c.ExpiryMonth, &c.ExpiryYear,
		&brand, &c.Fingerprint, &c.CustomerID, &c.Active, &c.EncryptedBillingAddress,
		&c.CreatedAt, &c.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Brand = domain.CardBrand(brand)
	return &c, nil
}
