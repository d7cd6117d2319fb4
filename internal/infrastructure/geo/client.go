// Package geo resolves IP addresses through an HTTP geolocation service.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/DanielPopoola/payment-security-core/internal/config"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// HTTPError is a non-2xx answer from the lookup service.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("geolocation service returned status %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type lookupResponse struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.GeoConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Locate returns nil without error when the service does not know the address.
func (c *Client) Locate(ctx context.Context, ip string) (loc *domain.GeoLocation, err error) {
	ctx, span := telemetry.StartClientSpan(ctx, "geo.locate", attribute.String("net.peer.ip", ip))
	defer func() { telemetry.EndSpan(span, err) }()

	endpoint := fmt.Sprintf("%s/v1/ip/%s", c.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) != nil || errResp.Message == "" {
			errResp.Message = strings.TrimSpace(string(body))
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: errResp.Message}
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}
	if body.CountryCode == "" {
		return nil, errors.New("geolocation response has no country_code")
	}

	if body.IP == "" {
		body.IP = ip
	}
	return &domain.GeoLocation{
		IP:          body.IP,
		CountryCode: strings.ToUpper(body.CountryCode),
		City:        body.City,
		Region:      body.Region,
		Latitude:    body.Latitude,
		Longitude:   body.Longitude,
	}, nil
}
