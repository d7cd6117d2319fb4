package application

import (
	"context"
	"errors"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
)

// ErrorCategory represents the nature of an error for retry logic
type ErrorCategory string

const (
	CategoryTransient      ErrorCategory = "TRANSIENT"
	CategoryPermanent      ErrorCategory = "PERMANENT"
	CategoryBusinessRule   ErrorCategory = "BUSINESS_RULE"
	CategoryClientError    ErrorCategory = "CLIENT_ERROR"
	CategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"
)

// CategorizeError determines error category for retry and logging purposes
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case domain.ErrCodeValidation, domain.ErrCodeNotFound:
			return CategoryClientError
		case domain.ErrCodeInvalidState, domain.ErrCodeDuplicateCard, domain.ErrCodeNotSupported:
			return CategoryBusinessRule
		case domain.ErrCodeConcurrentModification:
			return CategoryTransient
		case domain.ErrCodeInternal:
			return CategoryInfrastructure
		case domain.ErrCodeExternalService:
			if domainErr.Err == nil {
				return CategoryTransient
			}
			return CategorizeError(domainErr.Err)
		}
	}

	// Transport errors (processors, geolocation, MPI) say for themselves.
	var retryable domain.Retryable
	if errors.As(err, &retryable) {
		if retryable.IsRetryable() {
			return CategoryTransient
		}
		return CategoryPermanent
	}

	return CategoryTransient
}

// IsRetryable returns true if the error category suggests retry
func IsRetryable(err error) bool {
	category := CategorizeError(err)
	return category == CategoryTransient || category == CategoryInfrastructure
}

// Exit codes used by operator tooling.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
	ExitNotFound     = 3
	ExitConflict     = 4
	ExitUnavailable  = 5
)

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	switch {
	case domain.IsErrorCode(err, domain.ErrCodeValidation):
		return ExitInvalidInput
	case domain.IsErrorCode(err, domain.ErrCodeNotFound):
		return ExitNotFound
	case domain.IsErrorCode(err, domain.ErrCodeInvalidState),
		domain.IsErrorCode(err, domain.ErrCodeConcurrentModification),
		domain.IsErrorCode(err, domain.ErrCodeDuplicateCard):
		return ExitConflict
	}

	if CategorizeError(err) == CategoryTransient {
		return ExitUnavailable
	}
	return ExitFailure
}
