package application

import (
	"context"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
)

// CardRepository is the port for vaulted card persistence.
// Lookups return (nil, nil) when nothing matches.
type CardRepository interface {
	FindByToken(ctx context.Context, token string) (*domain.Card, error)
	FindActiveByFingerprint(ctx context.Context, fingerprint, customerID string) (*domain.Card, error)
	FindByCustomer(ctx context.Context, customerID string) ([]*domain.Card, error)
	// Add fails with a DUPLICATE_CARD DomainError when the customer already has an
	// active card with the same fingerprint.
	Add(ctx context.Context, card *domain.Card) error
	Update(ctx context.Context, card *domain.Card) error
	Delete(ctx context.Context, token string) error
}

// TransactionHistory is the read-only view of past transactions used for scoring.
type TransactionHistory interface {
	RecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]domain.TransactionRecord, error)
	ByCustomer(ctx context.Context, customerID string) ([]domain.TransactionRecord, error)
	ByPaymentMethod(ctx context.Context, paymentMethodID string) ([]domain.TransactionRecord, error)
}

type PaymentMethodRepository interface {
	FindByID(ctx context.Context, id string) (*domain.PaymentMethod, error)
}

// GeoLocator resolves an IP address. A nil location with a nil error means the
// address is unknown to the service.
type GeoLocator interface {
	Locate(ctx context.Context, ip string) (*domain.GeoLocation, error)
}

type Blacklist interface {
	IsIPBlacklisted(ctx context.Context, ip string) (bool, error)
	IsCustomerBlacklisted(ctx context.Context, customerID string) (bool, error)
	IsPaymentMethodBlacklisted(ctx context.Context, paymentMethodID string) (bool, error)
}

// BlacklistKind names one of the three blacklisted identifier sets.
type BlacklistKind string

const (
	BlacklistIP            BlacklistKind = "ip"
	BlacklistCustomer      BlacklistKind = "customer"
	BlacklistPaymentMethod BlacklistKind = "payment_method"
)

// BlacklistManager edits blacklist membership. Only operator tooling needs it.
type BlacklistManager interface {
	Blacklist
	Add(ctx context.Context, kind BlacklistKind, value string) error
	Remove(ctx context.Context, kind BlacklistKind, value string) error
}

// StaleCursor is the position of the last record a stale scan has seen.
// The zero value starts from the oldest record.
type StaleCursor struct {
	CreatedAt     time.Time
	TransactionID string
}

// AuthenticationRepository is the port for 3-D Secure records.
type AuthenticationRepository interface {
	FindByTransactionID(ctx context.Context, transactionID string) (*domain.Authentication, error)
	// FindByTransactionIDForUpdate locks the row until the surrounding transaction ends.
	FindByTransactionIDForUpdate(ctx context.Context, transactionID string) (*domain.Authentication, error)
	// FindStalePending lists PENDING records created before olderThan that sort
	// after the cursor, ordered by creation time then transaction ID.
	FindStalePending(ctx context.Context, olderThan time.Time, after StaleCursor, limit int) ([]*domain.Authentication, error)
	Add(ctx context.Context, auth *domain.Authentication) error
	// Update writes auth if the stored version still equals auth.Version and
	// bumps the version on success.
	Update(ctx context.Context, auth *domain.Authentication) error
	WithTx(ctx context.Context, fn func(AuthenticationRepository) error) error
}

// ThreeDSInitiateRequest is what a brand provider needs to start a challenge.
type ThreeDSInitiateRequest struct {
	TransactionID  string
	CardToken      string
	MaskedPAN      string
	ExpiryMonth    int
	ExpiryYear     int
	Amount         string
	Currency       string
	MerchantID     string
	ReturnURL      string
	BillingAddress *domain.BillingAddress
	DeviceData     *string
	BrowserInfo    *string
}

// Enrollment answers from the directory server.
const (
	EnrollmentAuthenticated = "Y"
	EnrollmentNotEnrolled   = "N"
	EnrollmentUnavailable   = "U"
	EnrollmentChallenge     = "C"
)

type ThreeDSInitiateResponse struct {
	Status string
	AcsURL *string
	PaReq  *string
	domain.AuthenticationProof
}

type ThreeDSCompleteResponse struct {
	Success bool
	domain.AuthenticationProof
	ErrorMessage *string
}

type ThreeDSProvider interface {
	Name() domain.ProviderName
	InitiateAuthentication(ctx context.Context, req ThreeDSInitiateRequest) (*ThreeDSInitiateResponse, error)
	CompleteAuthentication(ctx context.Context, transactionID, paRes string) (*ThreeDSCompleteResponse, error)
}

// Processor is an external payment processor. Errors are transport or
// protocol failures; the dispatcher folds them into a ProcessorResult.
type Processor interface {
	Name() string
	Capabilities() domain.Capabilities
	CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.ProcessorResult, error)
	Capture(ctx context.Context, req domain.CaptureRequest) (*domain.ProcessorResult, error)
	Refund(ctx context.Context, req domain.RefundRequest) (*domain.ProcessorResult, error)
	Void(ctx context.Context, req domain.VoidRequest) (*domain.ProcessorResult, error)
	GetStatus(ctx context.Context, transactionID string) (*domain.ProcessorResult, error)
	Process3DSecure(ctx context.Context, req domain.ThreeDSecureRequest) (*domain.ProcessorResult, error)
}

// EventPublisher delivers domain events after the state change is stored.
type EventPublisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
}
