package domain

import (
	"strings"
	"time"
)

type PaymentMethodType string

const (
	MethodCash            PaymentMethodType = "CASH"
	MethodCreditCard      PaymentMethodType = "CREDIT_CARD"
	MethodContactlessCard PaymentMethodType = "CONTACTLESS_CARD"
	MethodMobilePayment   PaymentMethodType = "MOBILE_PAYMENT"
	MethodDigitalWallet   PaymentMethodType = "DIGITAL_WALLET"
	MethodBankTransfer    PaymentMethodType = "BANK_TRANSFER"
	MethodCryptocurrency  PaymentMethodType = "CRYPTOCURRENCY"
	MethodGiftCard        PaymentMethodType = "GIFT_CARD"
)

var AllPaymentMethodTypes = []PaymentMethodType{
	MethodCash,
	MethodCreditCard,
	MethodContactlessCard,
	MethodMobilePayment,
	MethodDigitalWallet,
	MethodBankTransfer,
	MethodCryptocurrency,
	MethodGiftCard,
}

func ParsePaymentMethodType(s string) (PaymentMethodType, bool) {
	t := PaymentMethodType(strings.ToUpper(s))
	for _, known := range AllPaymentMethodTypes {
		if known == t {
			return t, true
		}
	}
	return "", false
}

// PaymentMethod is a customer's stored instrument as seen by fraud scoring.
type PaymentMethod struct {
	ID         string
	CustomerID string
	Type       PaymentMethodType
	CreatedAt  time.Time
}
