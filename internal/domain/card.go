// Package domain holds the card, fraud, 3-D Secure and processor models of the security core.
package domain

import (
	"strings"
	"time"
)

const (
	MinPANLength = 13
	MaxPANLength = 19
)

// Card is a tokenized payment card. The PAN itself is never held here.
type Card struct {
	Token          string
	MaskedNumber   string
	Last4          string
	CardholderName string
	ExpiryMonth    int
	ExpiryYear     int
	Brand          CardBrand
	Fingerprint    string
	CustomerID     string
	Active         bool
	CreatedAt      time.Time
	RevokedAt      *time.Time

	// EncryptedBillingAddress is sealed by the vault and opaque to everything else.
	EncryptedBillingAddress []byte
}

type BillingAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Revoke deactivates the card. Revoking an inactive card returns it unchanged
// and a nil event.
func (c Card) Revoke(at time.Time) (Card, *CardRevoked) {
	if !c.Active {
		return c, nil
	}

	revoked := c
	revoked.Active = false
	revokedAt := at.UTC()
	revoked.RevokedAt = &revokedAt

	return revoked, &CardRevoked{
		Token:      c.Token,
		CustomerID: c.CustomerID,
		RevokedAt:  revokedAt,
	}
}

// ExpiresAt is the first instant the card is no longer valid: cards are good
// through the last day of their expiry month, UTC.
func (c Card) ExpiresAt() time.Time {
	return ExpiryCutoff(c.ExpiryMonth, c.ExpiryYear)
}

func ExpiryCutoff(month, year int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// NormalizePAN drops the spaces and dashes people type between digit groups.
func NormalizePAN(pan string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(pan)
}

func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LuhnValid reports whether a digits-only number passes the mod 10 checksum.
func LuhnValid(number string) bool {
	if !IsNumeric(number) {
		return false
	}

	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// MaskPAN keeps the first four and last four digits.
func MaskPAN(pan string) string {
	if len(pan) <= 8 {
		return strings.Repeat("*", len(pan))
	}
	return pan[:4] + strings.Repeat("*", len(pan)-8) + pan[len(pan)-4:]
}

func LastFour(pan string) string {
	if len(pan) < 4 {
		return pan
	}
	return pan[len(pan)-4:]
}
