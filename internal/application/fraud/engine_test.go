package fraud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/application/mocks"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type panickingMethods struct{}

func (panickingMethods) FindByID(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	panic("payment method store exploded")
}

type FraudEngineTestSuite struct {
	suite.Suite
	history   *mocks.MockTransactionHistory
	methods   *mocks.MockPaymentMethodRepository
	geo       *mocks.MockGeoLocator
	blacklist *mocks.MockBlacklist
	engine    *Engine
	now       time.Time
}

func TestFraudEngineSuite(t *testing.T) {
	suite.Run(t, new(FraudEngineTestSuite))
}

func (s *FraudEngineTestSuite) SetupTest() {
	s.now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	s.history = mocks.NewMockTransactionHistory()
	s.methods = mocks.NewMockPaymentMethodRepository(
		domain.PaymentMethod{ID: "pm-card", CustomerID: "cust-1", Type: domain.MethodCreditCard, CreatedAt: s.now.AddDate(0, 0, -30)},
		domain.PaymentMethod{ID: "pm-crypto", CustomerID: "cust-1", Type: domain.MethodCryptocurrency, CreatedAt: s.now.Add(-time.Hour)},
		domain.PaymentMethod{ID: "pm-wallet", CustomerID: "cust-1", Type: domain.MethodDigitalWallet, CreatedAt: s.now.AddDate(0, 0, -3)},
	)
	s.geo = mocks.NewMockGeoLocator()
	s.blacklist = mocks.NewMockBlacklist()
	s.engine = s.newEngine(s.methods)
}

func (s *FraudEngineTestSuite) newEngine(methods application.PaymentMethodRepository) *Engine {
	e := NewEngine(s.history, methods, s.geo, s.blacklist,
		Config{HighRiskCountries: []string{"kp", "IR"}, Timeout: time.Second},
		nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return s.now }
	return e
}

func (s *FraudEngineTestSuite) tx(amount string) domain.Transaction {
	return domain.Transaction{
		ID:              "tx-current",
		CustomerID:      "cust-1",
		PaymentMethodID: "pm-card",
		Amount:          decimal.RequireFromString(amount),
		Currency:        "USD",
		CreatedAt:       s.now,
	}
}

func (s *FraudEngineTestSuite) record(id string, ago time.Duration, amount string, status domain.TransactionStatus, country string) domain.TransactionRecord {
	r := domain.TransactionRecord{
		ID:              id,
		CustomerID:      "cust-1",
		PaymentMethodID: "pm-card",
		Amount:          decimal.RequireFromString(amount),
		Currency:        "USD",
		Status:          status,
		CreatedAt:       s.now.Add(-ago),
	}
	if country != "" {
		r.IPCountry = &country
	}
	return r
}

func (s *FraudEngineTestSuite) factor(result *domain.FraudAnalysisResult, t domain.RiskFactorType) domain.RiskFactor {
	f, ok := result.Factor(t)
	s.Require().True(ok, "factor %s missing", t)
	return f
}

// ============================================================================
// AGGREGATION
// ============================================================================

func (s *FraudEngineTestSuite) Test_Analyze_BrandNewCustomerIsAllowed() {
	result := s.engine.Analyze(context.Background(), s.tx("49.99"), "", nil)

	s.False(result.FailSafe)
	s.Equal(11, result.Score)
	s.Equal(domain.RiskVeryLow, result.RiskLevel)
	s.Equal(domain.RecommendAllow, result.Recommendation)
	s.Require().Len(result.Factors, 6)

	for i, f := range result.Factors {
		s.Equal(domain.FactorOrder[i], f.Type)
		s.Equal(Weights[f.Type], f.Weight)
	}
	s.Equal(30, s.factor(result, domain.FactorGeography).Score)
	s.Equal(30, s.factor(result, domain.FactorCustomerHistory).Score)
	s.Equal(30, s.factor(result, domain.FactorPaymentMethod).Score)
}

func (s *FraudEngineTestSuite) Test_Analyze_BlacklistedCustomerIsBlocked() {
	s.Require().NoError(s.blacklist.Add(context.Background(), "customer", "cust-1"))
	for i := range 3 {
		s.history.Append(s.record(fmt.Sprintf("old-%d", i), 48*time.Hour, "40", domain.TxStatusSucceeded, "US"))
	}

	result := s.engine.Analyze(context.Background(), s.tx("40"), "", nil)

	s.Equal(95, s.factor(result, domain.FactorBlacklist).Score)
	s.Less(result.Score, 90)
	s.Equal(domain.RecommendBlock, result.Recommendation)
}

func (s *FraudEngineTestSuite) Test_Analyze_ScoreStaysInBounds() {
	ctx := context.Background()
	s.Require().NoError(s.blacklist.Add(ctx, "ip", "203.0.113.9"))
	s.Require().NoError(s.blacklist.Add(ctx, "customer", "cust-1"))
	s.Require().NoError(s.blacklist.Add(ctx, "payment_method", "pm-crypto"))
	s.geo.Set("203.0.113.9", "KP")
	for i := range 25 {
		s.history.Append(s.record(fmt.Sprintf("r-%d", i), time.Duration(i+1)*time.Minute, "10", domain.TxStatusFailed, "US"))
	}
	tx := s.tx("5000")
	tx.PaymentMethodID = "pm-crypto"

	result := s.engine.Analyze(ctx, tx, "203.0.113.9", nil)

	s.False(result.FailSafe)
	s.GreaterOrEqual(result.Score, 0)
	s.LessOrEqual(result.Score, 100)
	for _, f := range result.Factors {
		s.GreaterOrEqual(f.Score, 0, f.Type)
		s.LessOrEqual(f.Score, 100, f.Type)
	}
	s.Equal(100, s.factor(result, domain.FactorBlacklist).Score)
	s.Equal(100, s.factor(result, domain.FactorPaymentMethod).Score)
	s.Equal(domain.RiskCritical, result.RiskLevel)
	s.Equal(domain.RecommendBlock, result.Recommendation)
}

func (s *FraudEngineTestSuite) Test_Analyze_OmitsFactorWhoseSourceFails() {
	s.blacklist.Err = errors.New("redis down")

	result := s.engine.Analyze(context.Background(), s.tx("49.99"), "", nil)

	s.False(result.FailSafe)
	_, ok := result.Factor(domain.FactorBlacklist)
	s.False(ok)
	s.Len(result.Factors, 5)
	// (30*.20 + 30*.15 + 30*.03) / .70
	s.Equal(16, result.Score)
}

func (s *FraudEngineTestSuite) Test_Analyze_OmitsPaymentMethodWhenUnknown() {
	tx := s.tx("49.99")
	tx.PaymentMethodID = "pm-missing"

	result := s.engine.Analyze(context.Background(), tx, "", nil)

	_, ok := result.Factor(domain.FactorPaymentMethod)
	s.False(ok)
	s.Len(result.Factors, 5)
}

// ============================================================================
// FAIL-SAFE
// ============================================================================

func (s *FraudEngineTestSuite) assertFailSafe(result *domain.FraudAnalysisResult) {
	s.True(result.FailSafe)
	s.Equal(50, result.Score)
	s.Equal(domain.RiskMedium, result.RiskLevel)
	s.Equal(domain.RecommendManualReview, result.Recommendation)
	s.Empty(result.Factors)
}

func (s *FraudEngineTestSuite) Test_Analyze_CancelledContextIsFailSafe() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.assertFailSafe(s.engine.Analyze(ctx, s.tx("49.99"), "", nil))
}

func (s *FraudEngineTestSuite) Test_Analyze_CancelledMidwayIsFailSafe() {
	ctx, cancel := context.WithCancel(context.Background())
	s.blacklist.BlockFn = func(context.Context) { cancel() }

	s.assertFailSafe(s.engine.Analyze(ctx, s.tx("49.99"), "", nil))
}

func (s *FraudEngineTestSuite) Test_Analyze_PanicIsFailSafe() {
	engine := s.newEngine(panickingMethods{})

	s.assertFailSafe(engine.Analyze(context.Background(), s.tx("49.99"), "", nil))
}

func (s *FraudEngineTestSuite) Test_Analyze_EveryFactorFailingIsFailSafe() {
	s.history.Err = errors.New("db down")
	s.methods.Err = errors.New("db down")
	s.blacklist.Err = errors.New("redis down")
	s.geo.Err = errors.New("geo down")

	s.assertFailSafe(s.engine.Analyze(context.Background(), s.tx("49.99"), "198.51.100.7", nil))
}

// ============================================================================
// FACTORS
// ============================================================================

func (s *FraudEngineTestSuite) Test_Velocity_Thresholds() {
	cases := []struct {
		recent int
		want   int
	}{
		{0, 0}, {2, 0}, {3, 20}, {5, 20}, {6, 40}, {10, 40}, {11, 70}, {20, 70}, {21, 90},
	}
	for _, tc := range cases {
		s.Run(fmt.Sprintf("%d recent", tc.recent), func() {
			s.SetupTest()
			for i := range tc.recent {
				s.history.Append(s.record(fmt.Sprintf("v-%d", i), time.Duration(i+1)*time.Minute, "10", domain.TxStatusSucceeded, ""))
			}
			// older than the window and the transaction itself never count
			s.history.Append(s.record("old", 2*time.Hour, "10", domain.TxStatusSucceeded, ""))
			s.history.Append(s.record("tx-current", 0, "10", domain.TxStatusPending, ""))

			result := s.engine.Analyze(context.Background(), s.tx("10"), "", nil)
			s.Equal(tc.want, s.factor(result, domain.FactorVelocity).Score)
		})
	}
}

func (s *FraudEngineTestSuite) Test_Geography() {
	usual := func() {
		s.history.Append(
			s.record("g-1", 72*time.Hour, "10", domain.TxStatusSucceeded, "US"),
			s.record("g-2", 48*time.Hour, "10", domain.TxStatusSucceeded, "US"),
			s.record("g-3", 24*time.Hour, "10", domain.TxStatusSucceeded, "GB"),
		)
	}

	cases := []struct {
		name    string
		history bool
		ip      string
		geo     *domain.GeoLocation
		want    int
	}{
		{name: "no ip", history: true, want: 30},
		{name: "unresolvable ip", history: true, ip: "192.0.2.1", want: 30},
		{name: "no history", ip: "198.51.100.1", want: 0},
		{name: "usual country", history: true, ip: "198.51.100.1", want: 0},
		{name: "other country", history: true, ip: "198.51.100.2", want: 50},
		{name: "high-risk country", history: true, ip: "198.51.100.3", want: 80},
		{name: "supplied location wins", history: true, ip: "198.51.100.1", geo: &domain.GeoLocation{CountryCode: "IR"}, want: 80},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			s.geo.Set("198.51.100.1", "US")
			s.geo.Set("198.51.100.2", "FR")
			s.geo.Set("198.51.100.3", "KP")
			if tc.history {
				usual()
			}

			result := s.engine.Analyze(context.Background(), s.tx("10"), tc.ip, tc.geo)
			s.Equal(tc.want, s.factor(result, domain.FactorGeography).Score)
		})
	}
}

func (s *FraudEngineTestSuite) Test_Geography_LocatorFailureOmitsFactor() {
	s.geo.Err = errors.New("geo down")

	result := s.engine.Analyze(context.Background(), s.tx("10"), "198.51.100.1", nil)

	_, ok := result.Factor(domain.FactorGeography)
	s.False(ok)
}

func (s *FraudEngineTestSuite) Test_AmountPattern() {
	cases := []struct {
		name    string
		history []string
		amount  string
		want    int
	}{
		{name: "too little history", history: []string{"10", "10"}, amount: "1000", want: 0},
		{name: "above three times max", history: []string{"10", "20", "30"}, amount: "91", want: 70},
		{name: "above five times average", history: []string{"10", "10", "100"}, amount: "250.50", want: 50},
		{name: "round amount", history: []string{"100", "100", "100"}, amount: "200", want: 30},
		{name: "round but fractional", history: []string{"100", "100", "100"}, amount: "200.50", want: 0},
		{name: "round but small", history: []string{"100", "100", "100"}, amount: "50", want: 0},
		{name: "ordinary", history: []string{"100", "100", "100"}, amount: "123", want: 0},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			for i, amount := range tc.history {
				s.history.Append(s.record(fmt.Sprintf("a-%d", i), time.Duration(i+2)*time.Hour, amount, domain.TxStatusSucceeded, ""))
			}

			result := s.engine.Analyze(context.Background(), s.tx(tc.amount), "", nil)
			s.Equal(tc.want, s.factor(result, domain.FactorAmountPattern).Score)
		})
	}
}

func (s *FraudEngineTestSuite) Test_CustomerHistory() {
	cases := []struct {
		name     string
		statuses []domain.TransactionStatus
		ancient  int
		want     int
	}{
		{name: "first payment", want: 30},
		{name: "second payment", statuses: []domain.TransactionStatus{domain.TxStatusSucceeded}, want: 20},
		{name: "established", statuses: []domain.TransactionStatus{domain.TxStatusSucceeded, domain.TxStatusSucceeded}, want: 0},
		{name: "mostly failing", statuses: []domain.TransactionStatus{domain.TxStatusFailed, domain.TxStatusFailed, domain.TxStatusSucceeded}, want: 60},
		{name: "half failing", statuses: []domain.TransactionStatus{domain.TxStatusFailed, domain.TxStatusSucceeded}, want: 0},
		{name: "old history only", ancient: 2, want: 0},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			for i, st := range tc.statuses {
				s.history.Append(s.record(fmt.Sprintf("h-%d", i), time.Duration(i+2)*time.Hour, "10", st, ""))
			}
			for i := range tc.ancient {
				s.history.Append(s.record(fmt.Sprintf("old-%d", i), 90*24*time.Hour, "10", domain.TxStatusFailed, ""))
			}

			result := s.engine.Analyze(context.Background(), s.tx("10"), "", nil)
			s.Equal(tc.want, s.factor(result, domain.FactorCustomerHistory).Score)
		})
	}
}

func (s *FraudEngineTestSuite) Test_CustomerHistory_ManyFailuresBelowHalf() {
	for i := range 11 {
		s.history.Append(s.record(fmt.Sprintf("f-%d", i), 2*time.Hour, "10", domain.TxStatusFailed, ""))
	}
	for i := range 12 {
		s.history.Append(s.record(fmt.Sprintf("s-%d", i), 3*time.Hour, "10", domain.TxStatusSucceeded, ""))
	}

	result := s.engine.Analyze(context.Background(), s.tx("10"), "", nil)
	s.Equal(60, s.factor(result, domain.FactorCustomerHistory).Score)
}

func (s *FraudEngineTestSuite) Test_Blacklist_Additive() {
	ctx := context.Background()
	s.Require().NoError(s.blacklist.Add(ctx, "ip", "203.0.113.9"))

	result := s.engine.Analyze(ctx, s.tx("10"), "203.0.113.9", nil)
	s.Equal(90, s.factor(result, domain.FactorBlacklist).Score)
	s.Equal(domain.RecommendBlock, result.Recommendation)

	s.Require().NoError(s.blacklist.Add(ctx, "payment_method", "pm-card"))
	result = s.engine.Analyze(ctx, s.tx("10"), "203.0.113.9", nil)
	s.Equal(100, s.factor(result, domain.FactorBlacklist).Score)
}

func (s *FraudEngineTestSuite) Test_PaymentMethod() {
	cases := []struct {
		name   string
		method string
		uses   int
		want   int
	}{
		{name: "established card", method: "pm-card", uses: 2, want: 10},
		{name: "new card", method: "pm-card", uses: 1, want: 30},
		{name: "crypto created today", method: "pm-crypto", want: 100},
		{name: "wallet created this week", method: "pm-wallet", uses: 5, want: 40},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			for i := range tc.uses {
				r := s.record(fmt.Sprintf("u-%d", i), 100*24*time.Hour, "10", domain.TxStatusSucceeded, "")
				r.PaymentMethodID = tc.method
				s.history.Append(r)
			}
			tx := s.tx("10")
			tx.PaymentMethodID = tc.method

			result := s.engine.Analyze(context.Background(), tx, "", nil)
			s.Equal(tc.want, s.factor(result, domain.FactorPaymentMethod).Score)
		})
	}
}

// ============================================================================
// SCORING
// ============================================================================

func TestAggregate(t *testing.T) {
	factors := []domain.RiskFactor{
		{Type: domain.FactorVelocity, Score: 100, Weight: Weights[domain.FactorVelocity]},
		{Type: domain.FactorPaymentMethod, Score: 0, Weight: Weights[domain.FactorPaymentMethod]},
	}
	// 100*.25 / .28
	assert.Equal(t, 89, Aggregate(factors))
	assert.Equal(t, 0, Aggregate(nil))
}

func TestRiskLevelAndRecommendation(t *testing.T) {
	cases := []struct {
		score int
		level domain.RiskLevel
		rec   domain.Recommendation
	}{
		{0, domain.RiskVeryLow, domain.RecommendAllow},
		{19, domain.RiskVeryLow, domain.RecommendAllow},
		{20, domain.RiskLow, domain.RecommendAllow},
		{30, domain.RiskLow, domain.RecommendMonitor},
		{40, domain.RiskMedium, domain.RecommendMonitor},
		{50, domain.RiskMedium, domain.RecommendManualReview},
		{60, domain.RiskHigh, domain.RecommendManualReview},
		{70, domain.RiskHigh, domain.RecommendRequireAdditionalVerification},
		{80, domain.RiskCritical, domain.RecommendRequireAdditionalVerification},
		{90, domain.RiskCritical, domain.RecommendBlock},
		{100, domain.RiskCritical, domain.RecommendBlock},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, RiskLevelFor(tc.score), "score %d", tc.score)
		assert.Equal(t, tc.rec, RecommendationFor(tc.score, nil), "score %d", tc.score)
	}
}

func TestRecommendation_BlacklistOverride(t *testing.T) {
	factors := []domain.RiskFactor{{Type: domain.FactorBlacklist, Score: 80}}
	assert.Equal(t, domain.RecommendBlock, RecommendationFor(5, factors))

	factors[0].Score = 79
	assert.Equal(t, domain.RecommendAllow, RecommendationFor(5, factors))
}
