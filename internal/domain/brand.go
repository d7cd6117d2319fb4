package domain

import "strings"

// CardBrand is the card network derived from the PAN prefix.
type CardBrand string

const (
	BrandVisa       CardBrand = "VISA"
	BrandMastercard CardBrand = "MASTERCARD"
	BrandAmex       CardBrand = "AMEX"
	BrandDiscover   CardBrand = "DISCOVER"
	BrandJCB        CardBrand = "JCB"
	BrandDiners     CardBrand = "DINERS"
	BrandUnknown    CardBrand = "UNKNOWN"
)

// DetectBrand classifies a digits-only PAN. Prefixes are compared as strings,
// which is safe because every prefix in a range has the same width.
func DetectBrand(pan string) CardBrand {
	if len(pan) < 2 {
		switch {
		case strings.HasPrefix(pan, "4"):
			return BrandVisa
		case strings.HasPrefix(pan, "5"):
			return BrandMastercard
		}
		return BrandUnknown
	}

	p2 := pan[:2]
	switch p2 {
	case "34", "37":
		return BrandAmex
	case "35":
		return BrandJCB
	case "30", "36", "38":
		return BrandDiners
	case "65":
		return BrandDiscover
	}

	if strings.HasPrefix(pan, "6011") {
		return BrandDiscover
	}

	if pan[0] == '5' {
		return BrandMastercard
	}
	if len(pan) >= 4 {
		p4 := pan[:4]
		if p4 >= "2221" && p4 <= "2720" {
			return BrandMastercard
		}
	}

	if pan[0] == '4' {
		return BrandVisa
	}

	return BrandUnknown
}

// CVVLength is the number of digits the brand prints on the card.
func (b CardBrand) CVVLength() int {
	if b == BrandAmex {
		return 4
	}
	return 3
}

func ParseCardBrand(s string) CardBrand {
	switch b := CardBrand(strings.ToUpper(s)); b {
	case BrandVisa, BrandMastercard, BrandAmex, BrandDiscover, BrandJCB, BrandDiners:
		return b
	default:
		return BrandUnknown
	}
}
