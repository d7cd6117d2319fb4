package threeds

import (
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/shopspring/decimal"
)

type InitiateCommand struct {
	TransactionID  string
	CardToken      string
	Amount         decimal.Decimal
	Currency       string
	MerchantID     string
	ReturnURL      string
	BillingAddress *domain.BillingAddress
	DeviceData     *string
	BrowserInfo    *string
}

// InitiationResult tells the caller whether to redirect the cardholder.
// A PENDING status carries the ACS URL and PaReq for the challenge.
type InitiationResult struct {
	Success          bool
	Status           domain.AuthenticationStatus
	AuthenticationID string
	Provider         domain.ProviderName
	AcsURL           *string
	PaReq            *string
	domain.AuthenticationProof
	ErrorMessage *string
}

type CompletionResult struct {
	Success bool
	Status  domain.AuthenticationStatus
	domain.AuthenticationProof
	ErrorMessage *string
}
