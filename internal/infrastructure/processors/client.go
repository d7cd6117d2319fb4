// Package processors adapts external payment processors to the dispatcher's
// Processor port. Each adapter owns its wire format and status vocabulary.
package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/config"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/shopspring/decimal"
)

// ProcessorError is a non-2xx answer from a processor API.
type ProcessorError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("processor error [%s]: %s (status: %d)", e.Code, e.Message, e.StatusCode)
}

func (e *ProcessorError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ProcessorErrorCode classifies client errors as validation failures and
// everything else as an external service failure.
func (e *ProcessorError) ProcessorErrorCode() domain.ProcessorErrorCode {
	if e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests {
		return domain.ProcessorErrValidation
	}
	return domain.ProcessorErrExternalService
}

func IsProcessorError(err error) (*ProcessorError, bool) {
	var procErr *ProcessorError
	ok := errors.As(err, &procErr)
	return procErr, ok
}

// errorEnvelope covers the shapes processors use for errors: a nested object,
// a bare string or top level fields.
type errorEnvelope struct {
	Error   json.RawMessage `json:"error"`
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Message string          `json:"message"`
}

type nestedError struct {
	Code    string `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type httpClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	authorize  func(*http.Request)
}

func newHTTPClient(name string, endpoint config.ProcessorEndpoint, timeout time.Duration) *httpClient {
	apiKey := endpoint.APIKey
	return &httpClient{
		name:       name,
		baseURL:    strings.TrimRight(endpoint.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		authorize: func(r *http.Request) {
			if apiKey != "" {
				r.Header.Set("Authorization", "Bearer "+apiKey)
			}
		},
	}
}

// sendRequest returns the decoded body together with the raw bytes so results
// can carry the processor's original response.
func sendRequest[Req any, Resp any](ctx context.Context, c *httpClient, method, path string, reqBody *Req, idempotencyKey string) (*Resp, json.RawMessage, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("error making request to %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading %s response: %w", c.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, parseError(resp.StatusCode, body)
	}

	var out Resp
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, nil, fmt.Errorf("error decoding json response: %w", err)
		}
	}
	return &out, json.RawMessage(body), nil
}

func parseError(status int, body []byte) *ProcessorError {
	procErr := &ProcessorError{
		Code:       strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")),
		Message:    strings.TrimSpace(string(body)),
		StatusCode: status,
	}

	var env errorEnvelope
	if json.Unmarshal(body, &env) != nil {
		return procErr
	}

	var nested nestedError
	var flat string
	switch {
	case len(env.Error) > 0 && json.Unmarshal(env.Error, &nested) == nil && (nested.Code != "" || nested.Message != ""):
		procErr.Code = firstNonEmpty(nested.Code, nested.Type, procErr.Code)
		procErr.Message = firstNonEmpty(nested.Message, procErr.Message)
	case len(env.Error) > 0 && json.Unmarshal(env.Error, &flat) == nil && flat != "":
		procErr.Code = flat
		procErr.Message = firstNonEmpty(env.Message, procErr.Message)
	default:
		procErr.Code = firstNonEmpty(env.Code, env.Name, procErr.Code)
		procErr.Message = firstNonEmpty(env.Message, procErr.Message)
	}
	return procErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func buildResult(processor, id string, status domain.ProcessorStatus, amount decimal.Decimal, currency string, raw json.RawMessage) *domain.ProcessorResult {
	return &domain.ProcessorResult{
		Success:       status != domain.ProcessorStatusFailed,
		TransactionID: id,
		Status:        status,
		Amount:        amount,
		Currency:      strings.ToUpper(currency),
		RawResponse:   raw,
		Processor:     processor,
	}
}

// mapStatus looks up a native status case-insensitively. Unknown values are
// reported as PROCESSING so callers poll instead of assuming an outcome.
func mapStatus(table map[string]domain.ProcessorStatus, native string) domain.ProcessorStatus {
	if s, ok := table[strings.ToLower(native)]; ok {
		return s
	}
	return domain.ProcessorStatusProcessing
}
