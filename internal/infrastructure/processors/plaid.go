package processors

import (
	"context"
	"net/http"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/config"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/shopspring/decimal"
)

var plaidStatuses = map[string]domain.ProcessorStatus{
	"pending":         domain.ProcessorStatusPending,
	"posted":          domain.ProcessorStatusProcessing,
	"settled":         domain.ProcessorStatusSucceeded,
	"funds_available": domain.ProcessorStatusSucceeded,
	"cancelled":       domain.ProcessorStatusCanceled,
	"failed":          domain.ProcessorStatusFailed,
	"returned":        domain.ProcessorStatusFailed,
}

type plaidTransferRequest struct {
	AccessToken    string            `json:"access_token"`
	Type           string            `json:"type"`
	Network        string            `json:"network"`
	Amount         string            `json:"amount"`
	ISOCurrency    string            `json:"iso_currency_code"`
	Description    string            `json:"description"`
	UserID         string            `json:"user_id,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type plaidTransferIDRequest struct {
	TransferID string `json:"transfer_id"`
}

type plaidRefundRequest struct {
	TransferID     string `json:"transfer_id"`
	Amount         string `json:"amount,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type plaidTransfer struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Amount      string `json:"amount"`
	ISOCurrency string `json:"iso_currency_code"`
}

type plaidTransferResponse struct {
	Transfer plaidTransfer `json:"transfer"`
}

type plaidRefundResponse struct {
	Refund plaidTransfer `json:"refund"`
}

// Plaid moves money by ACH transfer. Transfers settle on their own, so there
// is no capture step; a pending transfer can still be cancelled.
type Plaid struct {
	client *httpClient
}

func NewPlaid(endpoint config.ProcessorEndpoint, timeout time.Duration) *Plaid {
	return &Plaid{client: newHTTPClient(domain.ProcessorPlaid, endpoint, timeout)}
}

func (p *Plaid) Name() string { return domain.ProcessorPlaid }

func (p *Plaid) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		SupportsRefunds: true,
		SupportsVoid:    true,
	}
}

func (p *Plaid) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.ProcessorResult, error) {
	body := plaidTransferRequest{
		AccessToken:    req.PaymentToken,
		Type:           "debit",
		Network:        "ach",
		Amount:         req.Amount.StringFixed(2),
		ISOCurrency:    req.Currency,
		Description:    truncate(req.Description, 15),
		UserID:         req.CustomerID,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	}
	resp, raw, err := sendRequest[plaidTransferRequest, plaidTransferResponse](ctx, p.client, http.MethodPost, "/transfer/create", &body, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return p.transferResult(resp.Transfer, raw), nil
}

func (p *Plaid) Capture(ctx context.Context, req domain.CaptureRequest) (*domain.ProcessorResult, error) {
	return domain.NotSupportedResult(p.Name(), domain.OpCapture), nil
}

func (p *Plaid) Refund(ctx context.Context, req domain.RefundRequest) (*domain.ProcessorResult, error) {
	body := plaidRefundRequest{TransferID: req.TransactionID, IdempotencyKey: req.IdempotencyKey}
	if req.Amount != nil {
		body.Amount = req.Amount.StringFixed(2)
	}
	resp, raw, err := sendRequest[plaidRefundRequest, plaidRefundResponse](ctx, p.client, http.MethodPost, "/transfer/refund/create", &body, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return p.transferResult(resp.Refund, raw), nil
}

func (p *Plaid) Void(ctx context.Context, req domain.VoidRequest) (*domain.ProcessorResult, error) {
	body := plaidTransferIDRequest{TransferID: req.TransactionID}
	_, raw, err := sendRequest[plaidTransferIDRequest, struct{}](ctx, p.client, http.MethodPost, "/transfer/cancel", &body, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return buildResult(p.Name(), req.TransactionID, domain.ProcessorStatusCanceled, decimal.Zero, "", raw), nil
}

func (p *Plaid) GetStatus(ctx context.Context, transactionID string) (*domain.ProcessorResult, error) {
	body := plaidTransferIDRequest{TransferID: transactionID}
	resp, raw, err := sendRequest[plaidTransferIDRequest, plaidTransferResponse](ctx, p.client, http.MethodPost, "/transfer/get", &body, "")
	if err != nil {
		return nil, err
	}
	return p.transferResult(resp.Transfer, raw), nil
}

func (p *Plaid) Process3DSecure(ctx context.Context, req domain.ThreeDSecureRequest) (*domain.ProcessorResult, error) {
	return domain.NotSupportedResult(p.Name(), domain.OpProcess3DSecure), nil
}

func (p *Plaid) transferResult(t plaidTransfer, raw []byte) *domain.ProcessorResult {
	amount, err := decimal.NewFromString(t.Amount)
	if err != nil {
		amount = decimal.Zero
	}
	return buildResult(p.Name(), t.ID, mapStatus(plaidStatuses, t.Status), amount, t.ISOCurrency, raw)
}

// truncate shortens s to n runes. Plaid limits transfer descriptions.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
