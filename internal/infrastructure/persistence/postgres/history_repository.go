package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `
	id, customer_id, COALESCE(payment_method_id, ''), amount, currency, status, ip_country, created_at`

// TransactionHistory reads the payment platform's transaction log for fraud
// scoring. The core never writes to it.
type TransactionHistory struct {
	q Executor
}

func NewTransactionHistory(db *DB) *TransactionHistory {
	return &TransactionHistory{q: db.Pool}
}

func (r *TransactionHistory) RecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]domain.TransactionRecord, error) {
	return r.list(ctx, `SELECT`+transactionColumns+`
		FROM transactions
		WHERE customer_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`, customerID, since)
}

func (r *TransactionHistory) ByCustomer(ctx context.Context, customerID string) ([]domain.TransactionRecord, error) {
	return r.list(ctx, `SELECT`+transactionColumns+`
		FROM transactions
		WHERE customer_id = $1
		ORDER BY created_at DESC`, customerID)
}

func (r *TransactionHistory) ByPaymentMethod(ctx context.Context, paymentMethodID string) ([]domain.TransactionRecord, error) {
	return r.list(ctx, `SELECT`+transactionColumns+`
		FROM transactions
		WHERE payment_method_id = $1
		ORDER BY created_at DESC`, paymentMethodID)
}

func (r *TransactionHistory) list(ctx context.Context, query string, args ...any) ([]domain.TransactionRecord, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TransactionRecord, error) {
		var (
			t      domain.TransactionRecord
			status string
		)
		err := row.Scan(&t.ID, &t.CustomerID, &t.PaymentMethodID, &t.Amount, &t.Currency, &status, &t.IPCountry, &t.CreatedAt)
		t.Status = domain.TransactionStatus(status)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	return records, nil
}

type PaymentMethodRepository struct {
	q Executor
}

func NewPaymentMethodRepository(db *DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{q: db.Pool}
}

func (r *PaymentMethodRepository) FindByID(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	var (
		pm         domain.PaymentMethod
		methodType string
	)
	err := r.q.QueryRow(ctx, `
		SELECT id, customer_id, type, created_at
		FROM payment_methods WHERE id = $1`, id,
	).Scan(&pm.ID, &pm.CustomerID, &methodType, &pm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan payment method: %w", err)
	}
	pm.Type = domain.PaymentMethodType(methodType)
	return &pm, nil
}
