package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/stretchr/testify/assert"
)

type transportErr struct{ retryable bool }

func (e transportErr) Error() string     { return "transport" }
func (e transportErr) IsRetryable() bool { return e.retryable }

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, CategoryTransient},
		{"wrapped cancel", fmt.Errorf("call: %w", context.Canceled), CategoryTransient},
		{"validation", &domain.ValidationError{Violations: []domain.Violation{{Field: "pan"}}}, CategoryClientError},
		{"not found", domain.NewNotFoundError("card", "tok"), CategoryClientError},
		{"invalid state", domain.NewInvalidStateError("FAILED", "PENDING"), CategoryBusinessRule},
		{"duplicate card", domain.NewDuplicateCardError("cust"), CategoryBusinessRule},
		{"not supported", domain.NewNotSupportedError("void"), CategoryBusinessRule},
		{"concurrent", domain.NewConcurrentModificationError("authentication", "tx"), CategoryTransient},
		{"internal", domain.NewInternalError("boom", nil), CategoryInfrastructure},
		{"external without cause", domain.NewExternalServiceError("geo", nil), CategoryTransient},
		{"external permanent", domain.NewExternalServiceError("stripe", transportErr{false}), CategoryPermanent},
		{"external transient", domain.NewExternalServiceError("stripe", transportErr{true}), CategoryTransient},
		{"bare retryable", transportErr{true}, CategoryTransient},
		{"unknown", errors.New("???"), CategoryTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeError(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(domain.NewInternalError("db", nil)))
	assert.True(t, IsRetryable(transportErr{true}))
	assert.False(t, IsRetryable(transportErr{false}))
	assert.False(t, IsRetryable(domain.NewNotFoundError("card", "tok")))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, ExitOK},
		{"validation", &domain.ValidationError{Violations: []domain.Violation{{Field: "kind"}}}, ExitInvalidInput},
		{"not found", domain.NewNotFoundError("card", "tok"), ExitNotFound},
		{"conflict", domain.NewInvalidStateError("ACTIVE", "REVOKED"), ExitConflict},
		{"duplicate", domain.NewDuplicateCardError("cust"), ExitConflict},
		{"unavailable", errors.New("dial tcp: connection refused"), ExitUnavailable},
		{"permanent", transportErr{false}, ExitFailure},
		{"internal", domain.NewInternalError("boom", nil), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
