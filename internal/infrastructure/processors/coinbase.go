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

const coinbaseAPIVersion = "2018-03-22"

var coinbaseStatuses = map[string]domain.ProcessorStatus{
	"new":        domain.ProcessorStatusRequiresAction,
	"signed":     domain.ProcessorStatusProcessing,
	"pending":    domain.ProcessorStatusProcessing,
	"completed":  domain.ProcessorStatusSucceeded,
	"resolved":   domain.ProcessorStatusSucceeded,
	"expired":    domain.ProcessorStatusFailed,
	"unresolved": domain.ProcessorStatusFailed,
	"canceled":   domain.ProcessorStatusCanceled,
}

type coinbaseMoney struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type coinbaseChargeRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	PricingType string            `json:"pricing_type"`
	LocalPrice  coinbaseMoney     `json:"local_price"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type coinbaseCharge struct {
	ID        string `json:"id"`
	HostedURL string `json:"hosted_url"`
	Pricing   struct {
		Local coinbaseMoney `json:"local"`
	} `json:"pricing"`
	Timeline []struct {
		Status string    `json:"status"`
		Time   time.Time `json:"time"`
	} `json:"timeline"`
}

type coinbaseChargeResponse struct {
	Data coinbaseCharge `json:"data"`
}

// Coinbase creates hosted crypto charges. The customer pays on Coinbase's page;
// an unpaid charge can be cancelled but settled crypto cannot be refunded.
type Coinbase struct {
	client *httpClient
}

func NewCoinbase(endpoint config.ProcessorEndpoint, timeout time.Duration) *Coinbase {
	client := newHTTPClient(domain.ProcessorCoinbase, endpoint, timeout)
	apiKey := endpoint.APIKey
	client.authorize = func(r *http.Request) {
		r.Header.Set("X-CC-Api-Key", apiKey)
		r.Header.Set("X-CC-Version", coinbaseAPIVersion)
	}
	return &Coinbase{client: client}
}

func (c *Coinbase) Name() string { return domain.ProcessorCoinbase }

func (c *Coinbase) Capabilities() domain.Capabilities {
	return domain.Capabilities{SupportsVoid: true}
}

func (c *Coinbase) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.ProcessorResult, error) {
	metadata := map[string]string{"customer_id": req.CustomerID}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	name := req.Description
	if name == "" {
		name = "Payment " + req.IdempotencyKey
	}
	body := coinbaseChargeRequest{
		Name:        name,
		Description: req.Description,
		PricingType: "fixed_price",
		LocalPrice:  coinbaseMoney{Amount: req.Amount.StringFixed(2), Currency: req.Currency},
		RedirectURL: req.ReturnURL,
		Metadata:    metadata,
	}
	resp, raw, err := sendRequest[coinbaseChargeRequest, coinbaseChargeResponse](ctx, c.client, http.MethodPost, "/charges", &body, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return c.chargeResult(resp.Data, raw), nil
}

func (c *Coinbase) Capture(ctx context.Context, req domain.CaptureRequest) (*domain.ProcessorResult, error) {
	return domain.NotSupportedResult(c.Name(), domain.OpCapture), nil
}

func (c *Coinbase) Refund(ctx context.Context, req domain.RefundRequest) (*domain.ProcessorResult, error) {
	return domain.NotSupportedResult(c.Name(), domain.OpRefund), nil
}

func (c *Coinbase) Void(ctx context.Context, req domain.VoidRequest) (*domain.ProcessorResult, error) {
	path := fmt.Sprintf("/charges/%s/cancel", url.PathEscape(req.TransactionID))
	resp, raw, err := sendRequest[struct{}, coinbaseChargeResponse](ctx, c.client, http.MethodPost, path, &struct{}{}, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return c.chargeResult(resp.Data, raw), nil
}

func (c *Coinbase) GetStatus(ctx context.Context, transactionID string) (*domain.ProcessorResult, error) {
	path := "/charges/" + url.PathEscape(transactionID)
	resp, raw, err := sendRequest[struct{}, coinbaseChargeResponse](ctx, c.client, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	return c.chargeResult(resp.Data, raw), nil
}

func (c *Coinbase) Process3DSecure(ctx context.Context, req domain.ThreeDSecureRequest) (*domain.ProcessorResult, error) {
	return domain.NotSupportedResult(c.Name(), domain.OpProcess3DSecure), nil
}

// chargeResult takes the charge's status from the latest timeline entry.
func (c *Coinbase) chargeResult(charge coinbaseCharge, raw []byte) *domain.ProcessorResult {
	status := domain.ProcessorStatusPending
	if n := len(charge.Timeline); n > 0 {
		status = mapStatus(coinbaseStatuses, charge.Timeline[n-1].Status)
	}
	amount, err := decimal.NewFromString(charge.Pricing.Local.Amount)
	if err != nil {
		amount = decimal.Zero
	}
	result := buildResult(c.Name(), charge.ID, status, amount, charge.Pricing.Local.Currency, raw)
	if charge.HostedURL != "" && status == domain.ProcessorStatusRequiresAction {
		hosted := charge.HostedURL
		result.ActionURL = &hosted
	}
	return result
}
