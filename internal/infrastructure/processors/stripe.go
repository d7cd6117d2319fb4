package processors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/config"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
)

var stripeStatuses = map[string]domain.ProcessorStatus{
	"requires_payment_method": domain.ProcessorStatusPending,
	"requires_confirmation":   domain.ProcessorStatusPending,
	"requires_action":         domain.ProcessorStatusRequiresAction,
	"processing":              domain.ProcessorStatusProcessing,
	"requires_capture":        domain.ProcessorStatusAuthorized,
	"succeeded":               domain.ProcessorStatusSucceeded,
	"canceled":                domain.ProcessorStatusCanceled,
	// refund statuses
	"pending": domain.ProcessorStatusPending,
	"failed":  domain.ProcessorStatusFailed,
}

type stripePaymentIntentRequest struct {
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Customer      string            `json:"customer,omitempty"`
	PaymentMethod string            `json:"payment_method"`
	CaptureMethod string            `json:"capture_method"`
	Confirm       bool              `json:"confirm"`
	Description   string            `json:"description,omitempty"`
	ReturnURL     string            `json:"return_url,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type stripeCaptureRequest struct {
	AmountToCapture *int64 `json:"amount_to_capture,omitempty"`
}

type stripeRefundRequest struct {
	PaymentIntent string `json:"payment_intent"`
	Amount        *int64 `json:"amount,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type stripeConfirmRequest struct {
	ThreeDSecure stripeThreeDSecure `json:"three_d_secure"`
}

type stripeThreeDSecure struct {
	Cryptogram                  string `json:"cryptogram,omitempty"`
	ElectronicCommerceIndicator string `json:"electronic_commerce_indicator,omitempty"`
	TransactionID               string `json:"transaction_id,omitempty"`
	XID                         string `json:"xid,omitempty"`
}

type stripePaymentIntent struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	NextAction *struct {
		RedirectToURL *struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
}

type stripeRefund struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Stripe talks to the PaymentIntents API. Card payments are authorized with
// manual capture so captures and voids stay explicit.
type Stripe struct {
	client *httpClient
}

func NewStripe(endpoint config.ProcessorEndpoint, timeout time.Duration) *Stripe {
	return &Stripe{client: newHTTPClient(domain.ProcessorStripe, endpoint, timeout)}
}

func (s *Stripe) Name() string { return domain.ProcessorStripe }

func (s *Stripe) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		SupportsCapture:        true,
		SupportsPartialCapture: true,
		SupportsRefunds:        true,
		SupportsVoid:           true,
		Supports3DSecure:       true,
	}
}

func (s *Stripe) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.ProcessorResult, error) {
	body := stripePaymentIntentRequest{
		Amount:        domain.MinorUnits(req.Amount),
		Currency:      strings.ToLower(req.Currency),
		Customer:      req.CustomerID,
		PaymentMethod: req.PaymentToken,
		CaptureMethod: "manual",
		Confirm:       true,
		Description:   req.Description,
		ReturnURL:     req.ReturnURL,
		Metadata:      req.Metadata,
	}
	return s.intent(ctx, http.MethodPost, "/v1/payment_intents", &body, req.IdempotencyKey)
}

func (s *Stripe) Capture(ctx context.Context, req domain.CaptureRequest) (*domain.ProcessorResult, error) {
	body := stripeCaptureRequest{}
	if req.Amount != nil {
		minor := domain.MinorUnits(*req.Amount)
		body.AmountToCapture = &minor
	}
	path := fmt.Sprintf("/v1/payment_intents/%s/capture", url.PathEscape(req.TransactionID))
	return s.intent(ctx, http.MethodPost, path, &body, req.IdempotencyKey)
}

func (s *Stripe) Refund(ctx context.Context, req domain.RefundRequest) (*domain.ProcessorResult, error) {
	body := stripeRefundRequest{PaymentIntent: req.TransactionID, Reason: req.Reason}
	if req.Amount != nil {
		minor := domain.MinorUnits(*req.Amount)
		body.Amount = &minor
	}
	refund, raw, err := sendRequest[stripeRefundRequest, stripeRefund](ctx, s.client, http.MethodPost, "/v1/refunds", &body, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return buildResult(s.Name(), refund.ID, mapStatus(stripeStatuses, refund.Status),
		domain.FromMinorUnits(refund.Amount), refund.Currency, raw), nil
}

func (s *Stripe) Void(ctx context.Context, req domain.VoidRequest) (*domain.ProcessorResult, error) {
	path := fmt.Sprintf("/v1/payment_intents/%s/cancel", url.PathEscape(req.TransactionID))
	return s.intent(ctx, http.MethodPost, path, &struct{}{}, req.IdempotencyKey)
}

func (s *Stripe) GetStatus(ctx context.Context, transactionID string) (*domain.ProcessorResult, error) {
	path := "/v1/payment_intents/" + url.PathEscape(transactionID)
	pi, raw, err := sendRequest[struct{}, stripePaymentIntent](ctx, s.client, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	return s.intentResult(pi, raw), nil
}

// Process3DSecure confirms the intent with an externally obtained authentication proof.
func (s *Stripe) Process3DSecure(ctx context.Context, req domain.ThreeDSecureRequest) (*domain.ProcessorResult, error) {
	body := stripeConfirmRequest{ThreeDSecure: stripeThreeDSecure{
		Cryptogram:                  deref(req.CAVV),
		ElectronicCommerceIndicator: deref(req.ECI),
		TransactionID:               deref(req.DSTransactionID),
		XID:                         deref(req.XID),
	}}
	path := fmt.Sprintf("/v1/payment_intents/%s/confirm", url.PathEscape(req.TransactionID))
	return s.intent(ctx, http.MethodPost, path, &body, "")
}

func (s *Stripe) intent(ctx context.Context, method, path string, body any, idempotencyKey string) (*domain.ProcessorResult, error) {
	pi, raw, err := sendRequest[any, stripePaymentIntent](ctx, s.client, method, path, &body, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return s.intentResult(pi, raw), nil
}

func (s *Stripe) intentResult(pi *stripePaymentIntent, raw []byte) *domain.ProcessorResult {
	result := buildResult(s.Name(), pi.ID, mapStatus(stripeStatuses, pi.Status),
		domain.FromMinorUnits(pi.Amount), pi.Currency, raw)
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil && pi.NextAction.RedirectToURL.URL != "" {
		actionURL := pi.NextAction.RedirectToURL.URL
		result.ActionURL = &actionURL
	}
	return result
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
