package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ProcessorStatus is the canonical status every processor maps its native vocabulary onto.
type ProcessorStatus string

const (
	ProcessorStatusPending        ProcessorStatus = "PENDING"
	ProcessorStatusProcessing     ProcessorStatus = "PROCESSING"
	ProcessorStatusRequiresAction ProcessorStatus = "REQUIRES_ACTION"
	ProcessorStatusAuthorized     ProcessorStatus = "AUTHORIZED"
	ProcessorStatusSucceeded      ProcessorStatus = "SUCCEEDED"
	ProcessorStatusFailed         ProcessorStatus = "FAILED"
	ProcessorStatusCanceled       ProcessorStatus = "CANCELED"
)

type ProcessorErrorCode string

const (
	ProcessorErrNotSupported    ProcessorErrorCode = "NOT_SUPPORTED"
	ProcessorErrExternalService ProcessorErrorCode = "EXTERNAL_SERVICE"
	ProcessorErrValidation      ProcessorErrorCode = "VALIDATION"
)

type ProcessorOperation string

const (
	OpCreatePayment   ProcessorOperation = "create_payment"
	OpCapture         ProcessorOperation = "capture"
	OpRefund          ProcessorOperation = "refund"
	OpVoid            ProcessorOperation = "void"
	OpGetStatus       ProcessorOperation = "get_status"
	OpProcess3DSecure ProcessorOperation = "process_3ds"
)

// Capabilities declares which operations a processor implements.
type Capabilities struct {
	SupportsCapture        bool
	SupportsPartialCapture bool
	SupportsRefunds        bool
	SupportsVoid           bool
	Supports3DSecure       bool
}

// Supports reports whether op is implemented. Create and status lookups always are.
func (c Capabilities) Supports(op ProcessorOperation) bool {
	switch op {
	case OpCapture:
		return c.SupportsCapture
	case OpRefund:
		return c.SupportsRefunds
	case OpVoid:
		return c.SupportsVoid
	case OpProcess3DSecure:
		return c.Supports3DSecure
	default:
		return true
	}
}

type ProcessorResult struct {
	Success       bool
	TransactionID string
	Status        ProcessorStatus
	Amount        decimal.Decimal
	Currency      string
	RawResponse   json.RawMessage
	ActionURL     *string
	ErrorMessage  string
	ErrorCode     ProcessorErrorCode
	Processor     string
}

// FailedResult builds the uniform failure shape returned across the dispatcher boundary.
func FailedResult(processor string, code ProcessorErrorCode, message string) *ProcessorResult {
	return &ProcessorResult{
		Success:      false,
		Status:       ProcessorStatusFailed,
		ErrorCode:    code,
		ErrorMessage: message,
		Processor:    processor,
	}
}

func NotSupportedResult(processor string, op ProcessorOperation) *ProcessorResult {
	return FailedResult(processor, ProcessorErrNotSupported,
		processor+" does not support "+string(op))
}

type CreatePaymentRequest struct {
	IdempotencyKey string
	Amount         decimal.Decimal
	Currency       string
	CustomerID     string
	MethodType     PaymentMethodType
	// PaymentToken is a vault token or a processor-side instrument reference.
	PaymentToken string
	Description  string
	ReturnURL    string
	Metadata     map[string]string
}

type CaptureRequest struct {
	IdempotencyKey string
	TransactionID  string
	// Amount is nil for a full capture.
	Amount *decimal.Decimal
}

type RefundRequest struct {
	IdempotencyKey string
	TransactionID  string
	// Amount is nil for a full refund.
	Amount *decimal.Decimal
	Reason string
}

type VoidRequest struct {
	IdempotencyKey string
	TransactionID  string
}

type ThreeDSecureRequest struct {
	TransactionID string
	AuthenticationProof
}

// Names of the processors the dispatcher routes to.
const (
	ProcessorStripe   = "stripe"
	ProcessorPayPal   = "paypal"
	ProcessorPlaid    = "plaid"
	ProcessorCoinbase = "coinbase"
	ProcessorInternal = "internal"
)

// CodedError is implemented by processor transport errors that already know
// which result code they map to.
type CodedError interface {
	ProcessorErrorCode() ProcessorErrorCode
}
