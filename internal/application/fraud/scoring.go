package fraud

import (
	"math"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
)

// Weights sum to 1. Aggregation renormalizes over the factors actually computed.
var Weights = map[domain.RiskFactorType]float64{
	domain.FactorBlacklist:       0.30,
	domain.FactorVelocity:        0.25,
	domain.FactorGeography:       0.20,
	domain.FactorCustomerHistory: 0.15,
	domain.FactorAmountPattern:   0.07,
	domain.FactorPaymentMethod:   0.03,
}

const (
	failSafeScore       = 50
	blacklistBlockScore = 80
	maxScore            = 100
	minScore            = 0
)

// Aggregate is the weight-normalized, rounded, clamped mean of the factor scores.
func Aggregate(factors []domain.RiskFactor) int {
	var weighted, total float64
	for _, f := range factors {
		weighted += f.Weight * float64(f.Score)
		total += f.Weight
	}
	if total == 0 {
		return minScore
	}
	return clamp(int(math.Round(weighted / total)))
}

func RiskLevelFor(score int) domain.RiskLevel {
	switch {
	case score >= 80:
		return domain.RiskCritical
	case score >= 60:
		return domain.RiskHigh
	case score >= 40:
		return domain.RiskMedium
	case score >= 20:
		return domain.RiskLow
	default:
		return domain.RiskVeryLow
	}
}

// RecommendationFor maps the aggregate to an action. A blacklist hit of 80 or
// more blocks regardless of the aggregate.
func RecommendationFor(score int, factors []domain.RiskFactor) domain.Recommendation {
	for _, f := range factors {
		if f.Type == domain.FactorBlacklist && f.Score >= blacklistBlockScore {
			return domain.RecommendBlock
		}
	}

	switch {
	case score >= 90:
		return domain.RecommendBlock
	case score >= 70:
		return domain.RecommendRequireAdditionalVerification
	case score >= 50:
		return domain.RecommendManualReview
	case score >= 30:
		return domain.RecommendMonitor
	default:
		return domain.RecommendAllow
	}
}

func clamp(score int) int {
	return max(minScore, min(maxScore, score))
}
