package processors

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ledgerEntry struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Captured   decimal.Decimal `json:"captured"`
	Refunded   decimal.Decimal `json:"refunded"`
	Currency   string          `json:"currency"`
	CustomerID string          `json:"customer_id"`
	Method     string          `json:"method"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

const (
	ledgerAuthorized = "authorized"
	ledgerCaptured   = "captured"
	ledgerRefunded   = "refunded"
	ledgerVoided     = "voided"
)

var internalStatuses = map[string]domain.ProcessorStatus{
	ledgerAuthorized: domain.ProcessorStatusAuthorized,
	ledgerCaptured:   domain.ProcessorStatusSucceeded,
	ledgerRefunded:   domain.ProcessorStatusSucceeded,
	ledgerVoided:     domain.ProcessorStatusCanceled,
}

// Internal settles cash and gift card payments on an in-process ledger.
// Replayed idempotency keys return the first result.
type Internal struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
	replays map[string]*domain.ProcessorResult
	now     func() time.Time
}

func NewInternal() *Internal {
	return &Internal{
		entries: make(map[string]*ledgerEntry),
		replays: make(map[string]*domain.ProcessorResult),
		now:     time.Now,
	}
}

func (p *Internal) Name() string { return domain.ProcessorInternal }

func (p *Internal) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		SupportsCapture:        true,
		SupportsPartialCapture: true,
		SupportsRefunds:        true,
		SupportsVoid:           true,
	}
}

func (p *Internal) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.ProcessorResult, error) {
	return p.idempotent(domain.OpCreatePayment, req.IdempotencyKey, func() (*domain.ProcessorResult, error) {
		entry := &ledgerEntry{
			ID:         "int_" + uuid.NewString(),
			Status:     ledgerAuthorized,
			Amount:     req.Amount,
			Currency:   req.Currency,
			CustomerID: req.CustomerID,
			Method:     string(req.MethodType),
			UpdatedAt:  p.now().UTC(),
		}
		p.entries[entry.ID] = entry
		return p.result(entry, entry.Amount), nil
	})
}

func (p *Internal) Capture(ctx context.Context, req domain.CaptureRequest) (*domain.ProcessorResult, error) {
	return p.idempotent(domain.OpCapture, req.IdempotencyKey, func() (*domain.ProcessorResult, error) {
		entry, err := p.lookup(req.TransactionID)
		if err != nil {
			return nil, err
		}
		if entry.Status != ledgerAuthorized {
			return nil, conflict("payment is " + entry.Status + ", expected authorized")
		}
		amount := entry.Amount
		if req.Amount != nil {
			amount = *req.Amount
		}
		if amount.GreaterThan(entry.Amount) {
			return nil, invalid("capture amount exceeds authorized amount")
		}
		entry.Captured = amount
		entry.Status = ledgerCaptured
		entry.UpdatedAt = p.now().UTC()
		return p.result(entry, amount), nil
	})
}

func (p *Internal) Refund(ctx context.Context, req domain.RefundRequest) (*domain.ProcessorResult, error) {
	return p.idempotent(domain.OpRefund, req.IdempotencyKey, func() (*domain.ProcessorResult, error) {
		entry, err := p.lookup(req.TransactionID)
		if err != nil {
			return nil, err
		}
		if entry.Status != ledgerCaptured && entry.Status != ledgerRefunded {
			return nil, conflict("payment is " + entry.Status + ", nothing to refund")
		}
		remaining := entry.Captured.Sub(entry.Refunded)
		amount := remaining
		if req.Amount != nil {
			amount = *req.Amount
		}
		if amount.GreaterThan(remaining) {
			return nil, invalid("refund amount exceeds captured amount")
		}
		entry.Refunded = entry.Refunded.Add(amount)
		if entry.Refunded.Equal(entry.Captured) {
			entry.Status = ledgerRefunded
		}
		entry.UpdatedAt = p.now().UTC()
		return p.result(entry, amount), nil
	})
}

func (p *Internal) Void(ctx context.Context, req domain.VoidRequest) (*domain.ProcessorResult, error) {
	return p.idempotent(domain.OpVoid, req.IdempotencyKey, func() (*domain.ProcessorResult, error) {
		entry, err := p.lookup(req.TransactionID)
		if err != nil {
			return nil, err
		}
		if entry.Status != ledgerAuthorized {
			return nil, conflict("payment is " + entry.Status + ", only authorized payments can be voided")
		}
		entry.Status = ledgerVoided
		entry.UpdatedAt = p.now().UTC()
		return p.result(entry, entry.Amount), nil
	})
}

func (p *Internal) GetStatus(ctx context.Context, transactionID string) (*domain.ProcessorResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, err := p.lookup(transactionID)
	if err != nil {
		return nil, err
	}
	return p.result(entry, entry.Amount), nil
}

func (p *Internal) Process3DSecure(ctx context.Context, req domain.ThreeDSecureRequest) (*domain.ProcessorResult, error) {
	return domain.NotSupportedResult(p.Name(), domain.OpProcess3DSecure), nil
}

func (p *Internal) idempotent(op domain.ProcessorOperation, key string, fn func() (*domain.ProcessorResult, error)) (*domain.ProcessorResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	replayKey := string(op) + ":" + key
	if key != "" {
		if prior, ok := p.replays[replayKey]; ok {
			return prior, nil
		}
	}
	result, err := fn()
	if err != nil {
		return nil, err
	}
	if key != "" {
		p.replays[replayKey] = result
	}
	return result, nil
}

// lookup must be called with p.mu held.
func (p *Internal) lookup(id string) (*ledgerEntry, error) {
	entry, ok := p.entries[id]
	if !ok {
		return nil, &ProcessorError{Code: "not_found", Message: "no payment " + id, StatusCode: http.StatusNotFound}
	}
	return entry, nil
}

func (p *Internal) result(entry *ledgerEntry, amount decimal.Decimal) *domain.ProcessorResult {
	raw, _ := json.Marshal(entry)
	return buildResult(p.Name(), entry.ID, internalStatuses[entry.Status], amount, entry.Currency, raw)
}

func conflict(msg string) *ProcessorError {
	return &ProcessorError{Code: "invalid_state", Message: msg, StatusCode: http.StatusConflict}
}

func invalid(msg string) *ProcessorError {
	return &ProcessorError{Code: "invalid_amount", Message: msg, StatusCode: http.StatusUnprocessableEntity}
}
