package vault

import "github.com/DanielPopoola/payment-security-core/internal/domain"

type TokenizeCommand struct {
	CustomerID     string
	PAN            string
	ExpiryMonth    int
	ExpiryYear     int
	CVV            *string
	CardholderName string
	BillingAddress *domain.BillingAddress
}
