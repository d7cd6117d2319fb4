package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
)

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// HTTPStatus maps a domain error code to a response status.
func HTTPStatus(err error) int {
	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}

	switch domainErr.Code {
	case domain.ErrCodeValidation:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeInvalidState, domain.ErrCodeDuplicateCard, domain.ErrCodeConcurrentModification:
		return http.StatusConflict
	case domain.ErrCodeNotSupported:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return domain.ErrCodeInternal
}

// WriteError writes err as a JSON error body. Internal failures are logged and
// replaced with a generic message so storage details never reach the caller.
func WriteError(w http.ResponseWriter, err error, logger *slog.Logger) {
	statusCode := HTTPStatus(err)
	detail := ErrorDetail{
		Code:    errorCode(err),
		Message: err.Error(),
	}

	if validationErr, ok := domain.AsValidationError(err); ok {
		detail.Details = make(map[string]string, len(validationErr.Violations))
		for _, v := range validationErr.Violations {
			detail.Details[v.Field] = v.Message
		}
	}

	if statusCode == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		detail.Message = "internal error"
	}

	writeJSON(w, statusCode, ErrorResponse{Success: false, Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
