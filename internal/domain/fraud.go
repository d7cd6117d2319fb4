package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "VERY_LOW"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

type Recommendation string

const (
	RecommendAllow                         Recommendation = "ALLOW"
	RecommendMonitor                       Recommendation = "MONITOR"
	RecommendManualReview                  Recommendation = "MANUAL_REVIEW"
	RecommendRequireAdditionalVerification Recommendation = "REQUIRE_ADDITIONAL_VERIFICATION"
	RecommendBlock                         Recommendation = "BLOCK"
)

type RiskFactorType string

const (
	FactorVelocity        RiskFactorType = "VELOCITY"
	FactorGeography       RiskFactorType = "GEOGRAPHY"
	FactorAmountPattern   RiskFactorType = "AMOUNT_PATTERN"
	FactorCustomerHistory RiskFactorType = "CUSTOMER_HISTORY"
	FactorBlacklist       RiskFactorType = "BLACKLIST"
	FactorPaymentMethod   RiskFactorType = "PAYMENT_METHOD"
)

// FactorOrder is the order factors appear in a result.
var FactorOrder = []RiskFactorType{
	FactorVelocity,
	FactorGeography,
	FactorAmountPattern,
	FactorCustomerHistory,
	FactorBlacklist,
	FactorPaymentMethod,
}

type RiskFactor struct {
	Type        RiskFactorType
	Score       int
	Description string
	Weight      float64
}

type FraudAnalysisResult struct {
	Score          int
	RiskLevel      RiskLevel
	Factors        []RiskFactor
	Recommendation Recommendation
	// FailSafe is set when scoring could not run and the neutral result was returned.
	FailSafe   bool
	AnalyzedAt time.Time
}

// Factor returns the named factor if it was computed.
func (r *FraudAnalysisResult) Factor(t RiskFactorType) (RiskFactor, bool) {
	for _, f := range r.Factors {
		if f.Type == t {
			return f, true
		}
	}
	return RiskFactor{}, false
}

// Transaction is the payment being scored.
type Transaction struct {
	ID              string
	CustomerID      string
	PaymentMethodID string
	Amount          decimal.Decimal
	Currency        string
	CreatedAt       time.Time
}

type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "PENDING"
	TxStatusSucceeded TransactionStatus = "SUCCEEDED"
	TxStatusFailed    TransactionStatus = "FAILED"
	TxStatusRefunded  TransactionStatus = "REFUNDED"
	TxStatusCanceled  TransactionStatus = "CANCELED"
)

// TransactionRecord is a past transaction as read for scoring.
type TransactionRecord struct {
	ID              string
	CustomerID      string
	PaymentMethodID string
	Amount          decimal.Decimal
	Currency        string
	Status          TransactionStatus
	IPCountry       *string
	CreatedAt       time.Time
}

type GeoLocation struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	City        string  `json:"city,omitempty"`
	Region      string  `json:"region,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}
