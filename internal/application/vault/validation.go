package vault

import (
	"fmt"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
)

const maxExpiryYears = 20

// validateTokenize checks every rule and reports all failures together.
// pan must already be normalized.
func validateTokenize(cmd TokenizeCommand, pan string, brand domain.CardBrand, now time.Time) error {
	v := &domain.ValidationError{}
	now = now.UTC()

	if strings.TrimSpace(cmd.CustomerID) == "" {
		v.Add("customer_id", "is required")
	}
	if strings.TrimSpace(cmd.CardholderName) == "" {
		v.Add("cardholder_name", "is required")
	}

	if pan == "" {
		v.Add("pan", "is required")
	} else {
		numeric := domain.IsNumeric(pan)
		if !numeric {
			v.Add("pan", "must contain only digits")
		}
		if len(pan) < domain.MinPANLength || len(pan) > domain.MaxPANLength {
			v.Add("pan", fmt.Sprintf("must be %d to %d digits", domain.MinPANLength, domain.MaxPANLength))
		}
		if numeric && !domain.LuhnValid(pan) {
			v.Add("pan", "failed checksum")
		}
	}

	monthValid := cmd.ExpiryMonth >= 1 && cmd.ExpiryMonth <= 12
	if !monthValid {
		v.Add("expiry_month", "must be between 1 and 12")
	}
	if cmd.ExpiryYear > now.Year()+maxExpiryYears {
		v.Add("expiry_year", fmt.Sprintf("must be within %d years", maxExpiryYears))
	}
	if monthValid && !now.Before(domain.ExpiryCutoff(cmd.ExpiryMonth, cmd.ExpiryYear)) {
		v.Add("expiry", "card has expired")
	}

	if cmd.CVV != nil {
		want := brand.CVVLength()
		if !domain.IsNumeric(*cmd.CVV) || len(*cmd.CVV) != want {
			v.Add("cvv", fmt.Sprintf("must be %d digits", want))
		}
	}

	return v.Err()
}
