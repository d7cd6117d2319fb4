package threeds

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
)

const (
	minPaResLength = 100
	maxPaResLength = 8000
)

func validateInitiate(cmd InitiateCommand) error {
	v := &domain.ValidationError{}

	if strings.TrimSpace(cmd.TransactionID) == "" {
		v.Add("transaction_id", "is required")
	}
	if strings.TrimSpace(cmd.CardToken) == "" {
		v.Add("card_token", "is required")
	}
	if !cmd.Amount.IsPositive() {
		v.Add("amount", "must be greater than zero")
	}
	if !domain.ValidCurrency(cmd.Currency) {
		v.Add("currency", "must be a three-letter ISO 4217 code")
	}
	if strings.TrimSpace(cmd.MerchantID) == "" {
		v.Add("merchant_id", "is required")
	}
	if !isAbsoluteHTTPURL(cmd.ReturnURL) {
		v.Add("return_url", "must be an absolute http or https URL")
	}

	return v.Err()
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// validatePaRes checks the shape of the ACS response only. The provider
// verifies its content.
func validatePaRes(paRes string) error {
	switch {
	case paRes == "":
		return errors.New("PaRes is empty")
	case len(paRes) < minPaResLength || len(paRes) > maxPaResLength:
		return fmt.Errorf("PaRes length %d outside %d-%d", len(paRes), minPaResLength, maxPaResLength)
	}
	if _, err := base64.StdEncoding.DecodeString(paRes); err != nil {
		return fmt.Errorf("PaRes is not valid base64: %w", err)
	}
	return nil
}
