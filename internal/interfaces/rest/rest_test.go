package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================================================
// ERROR MAPPING
// ============================================================================

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.NewNotFoundError("card", "tok_1"), http.StatusNotFound},
		{"invalid state", domain.NewInvalidStateError("SUCCESSFUL", "PENDING"), http.StatusConflict},
		{"duplicate card", domain.NewDuplicateCardError("cust-1"), http.StatusConflict},
		{"not supported", domain.NewNotSupportedError("void"), http.StatusUnprocessableEntity},
		{"external", domain.NewExternalServiceError("geo", errors.New("boom")), http.StatusBadGateway},
		{"wrapped", fmt.Errorf("resolve: %w", domain.NewNotFoundError("card", "x")), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWriteError_ValidationDetails(t *testing.T) {
	v := &domain.ValidationError{}
	v.Add("card_number", "fails Luhn check")
	v.Add("expiry_month", "must be between 1 and 12")

	rec := httptest.NewRecorder()
	WriteError(rec, v, discardLogger())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, domain.ErrCodeValidation, body.Error.Code)
	assert.Equal(t, "fails Luhn check", body.Error.Details["card_number"])
	assert.Len(t, body.Error.Details, 2)
}

func TestWriteError_HidesInternalMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: password authentication failed"), discardLogger())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Contains(t, rec.Body.String(), domain.ErrCodeInternal)
}

// ============================================================================
// HEALTH
// ============================================================================

func TestHealthHandler_AllHealthy(t *testing.T) {
	h := NewHealthHandler(time.Second, discardLogger())
	h.Register("postgres", func(ctx context.Context) error { return nil })
	h.Register("redis", func(ctx context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, body.Checks)
}

func TestHealthHandler_Degraded(t *testing.T) {
	h := NewHealthHandler(time.Second, discardLogger())
	h.Register("postgres", func(ctx context.Context) error { return nil })
	h.Register("redis", func(ctx context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "connection refused", body.Checks["redis"])
	assert.Equal(t, "ok", body.Checks["postgres"])
}

func TestHealthHandler_CheckSeesDeadline(t *testing.T) {
	h := NewHealthHandler(20*time.Millisecond, discardLogger())
	h.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewOpsMux(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	server := httptest.NewServer(NewOpsMux(NewHealthHandler(time.Second, discardLogger()), metrics))
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(server.URL+"/healthz", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
