package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Retryable is implemented by transport errors that know whether a retry can help.
type Retryable interface {
	IsRetryable() bool
}

const (
	ErrCodeValidation             = "VALIDATION_FAILED"
	ErrCodeNotSupported           = "NOT_SUPPORTED"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeExternalService        = "EXTERNAL_SERVICE"
	ErrCodeInternal               = "INTERNAL"
	ErrCodeInvalidState           = "INVALID_STATE"
	ErrCodeConcurrentModification = "CONCURRENT_MODIFICATION"
	ErrCodeDuplicateCard          = "DUPLICATE_CARD"
)

func NewNotSupportedError(what string) *DomainError {
	return &DomainError{
		Code:    ErrCodeNotSupported,
		Message: fmt.Sprintf("%s is not supported", what),
	}
}

func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %s not found", entity, id),
	}
}

func NewExternalServiceError(service string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeExternalService,
		Message: fmt.Sprintf("%s call failed", service),
		Err:     err,
	}
}

func NewInternalError(message string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

func NewInvalidStateError(current, expected string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf("invalid state: record is %s, expected %s", current, expected),
	}
}

func NewConcurrentModificationError(entity, id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeConcurrentModification,
		Message: fmt.Sprintf("%s %s was modified concurrently", entity, id),
	}
}

func NewDuplicateCardError(customerID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeDuplicateCard,
		Message: fmt.Sprintf("customer %s already has an active card with this number", customerID),
	}
}

// Violation is a single failed input rule.
type Violation struct {
	Field   string
	Message string
}

// ValidationError lists every rule an input broke. It unwraps to a
// DomainError with code VALIDATION_FAILED so IsErrorCode works on it.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Add(field, message string) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: message})
}

func (e *ValidationError) HasViolations() bool {
	return len(e.Violations) > 0
}

// Fields returns the names of the failed fields in the order they were recorded.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		fields = append(fields, v.Field)
	}
	return fields
}

// Err returns nil when nothing was recorded, so callers can write
// `if err := v.Err(); err != nil`.
func (e *ValidationError) Err() error {
	if !e.HasViolations() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return &DomainError{Code: ErrCodeValidation, Message: "validation failed"}
}

// IsErrorCode checks if an error is a DomainError with a specific code
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// AsValidationError extracts the violation list from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var validationErr *ValidationError
	ok := errors.As(err, &validationErr)
	return validationErr, ok
}
