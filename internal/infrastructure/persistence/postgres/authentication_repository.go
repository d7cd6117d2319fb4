package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const authenticationColumns = `
	id, transaction_id, card_token, provider, status, acs_url, pa_req,
	amount, currency, merchant_id, cavv, eci, xid, ds_transaction_id,
	failure_reason, version, created_at, updated_at, completed_at`

// AuthenticationRepository stores 3-D Secure records. The value returned by
// WithTx is bound to the transaction; the root value uses the pool.
type AuthenticationRepository struct {
	db *DB
	q  Executor
	tx pgx.Tx
}

var _ application.AuthenticationRepository = (*AuthenticationRepository)(nil)

func NewAuthenticationRepository(db *DB) *AuthenticationRepository {
	return &AuthenticationRepository{db: db, q: db.Pool}
}

func (r *AuthenticationRepository) WithTx(ctx context.Context, fn func(application.AuthenticationRepository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	return r.db.withTx(ctx, func(tx pgx.Tx) error {
		return fn(&AuthenticationRepository{db: r.db, q: tx, tx: tx})
	})
}

func (r *AuthenticationRepository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Authentication, error) {
	query := `SELECT` + authenticationColumns + `
		FROM threeds_authentications WHERE transaction_id = $1`
	return scanAuthentication(r.q.QueryRow(ctx, query, transactionID))
}

// FindByTransactionIDForUpdate only locks when called inside WithTx.
func (r *AuthenticationRepository) FindByTransactionIDForUpdate(ctx context.Context, transactionID string) (*domain.Authentication, error) {
	query := `SELECT` + authenticationColumns + `
		FROM threeds_authentications WHERE transaction_id = $1
		FOR UPDATE`
	return scanAuthentication(r.q.QueryRow(ctx, query, transactionID))
}

func (r *AuthenticationRepository) FindStalePending(ctx context.Context, olderThan time.Time, after application.StaleCursor, limit int) ([]*domain.Authentication, error) {
	query := `SELECT` + authenticationColumns + `
		FROM threeds_authentications
		WHERE status = 'PENDING'
		  AND created_at < $1
		  AND (created_at, transaction_id) > ($2, $3)
		ORDER BY created_at ASC, transaction_id ASC
		LIMIT $4`

	rows, err := r.q.Query(ctx, query, olderThan, after.CreatedAt, after.TransactionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale authentications: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Authentication, error) {
		return scanAuthenticationRow(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan stale authentications: %w", err)
	}
	return results, nil
}

func (r *AuthenticationRepository) Add(ctx context.Context, auth *domain.Authentication) error {
	query := `
		INSERT INTO threeds_authentications (` + authenticationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := r.q.Exec(ctx, query,
		auth.ID,
		auth.TransactionID,
		auth.CardToken,
		string(auth.Provider),
		string(auth.Status),
		auth.AcsURL,
		auth.PaReq,
		auth.Amount,
		auth.Currency,
		auth.MerchantID,
		auth.CAVV,
		auth.ECI,
		auth.XID,
		auth.DSTransactionID,
		auth.FailureReason,
		auth.Version,
		auth.CreatedAt,
		auth.UpdatedAt,
		auth.CompletedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			v := &domain.ValidationError{}
			v.Add("transaction_id", "already has an authentication")
			return v
		}
		return fmt.Errorf("failed to insert authentication: %w", err)
	}
	return nil
}

// Update is a compare-and-swap on version. On success auth.Version is bumped
// to match the stored row.
func (r *AuthenticationRepository) Update(ctx context.Context, auth *domain.Authentication) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE threeds_authentications
		SET status = $1,
			cavv = $2, eci = $3, xid = $4, ds_transaction_id = $5,
			failure_reason = $6,
			updated_at = $7, completed_at = $8,
			version = version + 1
		WHERE transaction_id = $9 AND version = $10`,
		string(auth.Status),
		auth.CAVV, auth.ECI, auth.XID, auth.DSTransactionID,
		auth.FailureReason,
		auth.UpdatedAt, auth.CompletedAt,
		auth.TransactionID, auth.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update authentication: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM threeds_authentications WHERE transaction_id = $1)`,
			auth.TransactionID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check authentication: %w", err)
		}
		if !exists {
			return domain.NewNotFoundError("authentication", auth.TransactionID)
		}
		return domain.NewConcurrentModificationError("authentication", auth.TransactionID)
	}

	auth.Version++
	return nil
}

func scanAuthentication(row pgx.Row) (*domain.Authentication, error) {
	auth, err := scanAuthenticationRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan authentication: %w", err)
	}
	return auth, nil
}

func scanAuthenticationRow(row pgx.Row) (*domain.Authentication, error) {
	var (
		a        domain.Authentication
		provider string
		status   string
		amount   decimal.Decimal
	)
	err := row.Scan(
		&a.ID, &a.TransactionID, &a.CardToken, &provider, &status, &a.AcsURL, &a.PaReq,
		&amount, &a.Currency, &a.MerchantID, &a.CAVV, &a.ECI, &a.XID, &a.DSTransactionID,
		&a.FailureReason, &a.Version, &a.CreatedAt, &a.UpdatedAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Provider = domain.ProviderName(provider)
	a.Status = domain.AuthenticationStatus(status)
	a.Amount = amount
	return &a, nil
}
