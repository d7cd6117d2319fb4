package processors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/config"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/shopspring/decimal"
)

var paypalStatuses = map[string]domain.ProcessorStatus{
	"created":               domain.ProcessorStatusPending,
	"saved":                 domain.ProcessorStatusPending,
	"payer_action_required": domain.ProcessorStatusRequiresAction,
	"approved":              domain.ProcessorStatusAuthorized,
	"created_authorization": domain.ProcessorStatusAuthorized,
	"pending":               domain.ProcessorStatusProcessing,
	"completed":             domain.ProcessorStatusSucceeded,
	"declined":              domain.ProcessorStatusFailed,
	"failed":                domain.ProcessorStatusFailed,
	"voided":                domain.ProcessorStatusCanceled,
	"cancelled":             domain.ProcessorStatusCanceled,
}

type paypalMoney struct {
	CurrencyCode string `json:"currency_code,omitempty"`
	Value        string `json:"value"`
}

func newPaypalMoney(amount decimal.Decimal, currency string) *paypalMoney {
	return &paypalMoney{CurrencyCode: currency, Value: amount.StringFixed(2)}
}

func (m *paypalMoney) amount() (decimal.Decimal, string) {
	if m == nil {
		return decimal.Zero, ""
	}
	d, err := decimal.NewFromString(m.Value)
	if err != nil {
		return decimal.Zero, m.CurrencyCode
	}
	return d, m.CurrencyCode
}

type paypalOrderRequest struct {
	Intent        string              `json:"intent"`
	PurchaseUnits []paypalPurchase    `json:"purchase_units"`
	PaymentSource *paypalSource       `json:"payment_source,omitempty"`
	Context       *paypalOrderContext `json:"application_context,omitempty"`
}

type paypalPurchase struct {
	ReferenceID string       `json:"reference_id,omitempty"`
	Description string       `json:"description,omitempty"`
	CustomID    string       `json:"custom_id,omitempty"`
	Amount      *paypalMoney `json:"amount"`
}

type paypalSource struct {
	Token paypalToken `json:"token"`
}

type paypalToken struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type paypalOrderContext struct {
	ReturnURL string `json:"return_url,omitempty"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalOrder struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	PurchaseUnits []paypalPurchase `json:"purchase_units"`
	Links         []paypalLink     `json:"links"`
}

type paypalCaptureRequest struct {
	Amount       *paypalMoney `json:"amount,omitempty"`
	FinalCapture bool         `json:"final_capture"`
}

type paypalRefundRequest struct {
	Amount      *paypalMoney `json:"amount,omitempty"`
	NoteToPayer string       `json:"note_to_payer,omitempty"`
}

type paypalPayment struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Amount *paypalMoney `json:"amount"`
}

// PayPal uses the Orders API with AUTHORIZE intent. Authorizations cannot be
// voided through this integration and 3-D Secure is handled by PayPal itself.
type PayPal struct {
	client *httpClient
}

func NewPayPal(endpoint config.ProcessorEndpoint, timeout time.Duration) *PayPal {
	return &PayPal{client: newHTTPClient(domain.ProcessorPayPal, endpoint, timeout)}
}

func (p *PayPal) Name() string { return domain.ProcessorPayPal }

func (p *PayPal) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		SupportsCapture:        true,
		SupportsPartialCapture: true,
		SupportsRefunds:        true,
	}
}

func (p *PayPal) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.ProcessorResult, error) {
	body := paypalOrderRequest{
		Intent: "AUTHORIZE",
		PurchaseUnits: []paypalPurchase{{
			ReferenceID: req.IdempotencyKey,
			Description: req.Description,
			CustomID:    req.CustomerID,
			Amount:      newPaypalMoney(req.Amount, req.Currency),
		}},
	}
	if req.PaymentToken != "" {
		body.PaymentSource = &paypalSource{Token: paypalToken{ID: req.PaymentToken, Type: "BILLING_AGREEMENT"}}
	}
	if req.ReturnURL != "" {
		body.Context = &paypalOrderContext{ReturnURL: req.ReturnURL}
	}

	order, raw, err := sendRequest[paypalOrderRequest, paypalOrder](ctx, p.client, http.MethodPost, "/v2/checkout/orders", &body, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return p.orderResult(order, raw), nil
}

func (p *PayPal) Capture(ctx context.Context, req domain.CaptureRequest) (*domain.ProcessorResult, error) {
	body := paypalCaptureRequest{FinalCapture: req.Amount == nil}
	if req.Amount != nil {
		body.Amount = &paypalMoney{Value: req.Amount.StringFixed(2)}
	}
	path := fmt.Sprintf("/v2/payments/authorizations/%s/capture", url.PathEscape(req.TransactionID))
	return p.payment(ctx, path, &body, req.IdempotencyKey)
}

func (p *PayPal) Refund(ctx context.Context, req domain.RefundRequest) (*domain.ProcessorResult, error) {
	body := paypalRefundRequest{NoteToPayer: req.Reason}
	if req.Amount != nil {
		body.Amount = &paypalMoney{Value: req.Amount.StringFixed(2)}
	}
	path := fmt.Sprintf("/v2/payments/captures/%s/refund", url.PathEscape(req.TransactionID))
	return p.payment(ctx, path, &body, req.IdempotencyKey)
}

func (p *PayPal) Void(ctx context.Context, req domain.VoidRequest) (*domain.ProcessorResult, error) {
	return domain.NotSupportedResult(p.Name(), domain.OpVoid), nil
}

func (p *PayPal) GetStatus(ctx context.Context, transactionID string) (*domain.ProcessorResult, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(transactionID)
	order, raw, err := sendRequest[struct{}, paypalOrder](ctx, p.client, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	return p.orderResult(order, raw), nil
}

func (p *PayPal) Process3DSecure(ctx context.Context, req domain.ThreeDSecureRequest) (*domain.ProcessorResult, error) {
	return domain.NotSupportedResult(p.Name(), domain.OpProcess3DSecure), nil
}

func (p *PayPal) payment(ctx context.Context, path string, body any, idempotencyKey string) (*domain.ProcessorResult, error) {
	payment, raw, err := sendRequest[any, paypalPayment](ctx, p.client, http.MethodPost, path, &body, idempotencyKey)
	if err != nil {
		return nil, err
	}
	amount, currency := payment.Amount.amount()
	return buildResult(p.Name(), payment.ID, mapStatus(paypalStatuses, payment.Status), amount, currency, raw), nil
}

func (p *PayPal) orderResult(order *paypalOrder, raw []byte) *domain.ProcessorResult {
	var (
		amount   = decimal.Zero
		currency string
	)
	if len(order.PurchaseUnits) > 0 {
		amount, currency = order.PurchaseUnits[0].Amount.amount()
	}
	result := buildResult(p.Name(), order.ID, mapStatus(paypalStatuses, order.Status), amount, currency, raw)
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			href := link.Href
			result.ActionURL = &href
			break
		}
	}
	return result
}
