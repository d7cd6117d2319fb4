// Package fraud scores transactions for fraud risk from independent heuristics.
package fraud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/telemetry"
	"golang.org/x/sync/errgroup"
)

var errScoringPanic = errors.New("fraud scoring panicked")

type Config struct {
	HighRiskCountries []string
	// Timeout bounds one analysis. Zero means no bound beyond the caller's context.
	Timeout time.Duration
}

type factor struct {
	kind    domain.RiskFactorType
	compute func(ctx context.Context, a analysis) (domain.RiskFactor, error)
}

type Engine struct {
	history   application.TransactionHistory
	methods   application.PaymentMethodRepository
	geo       application.GeoLocator
	blacklist application.Blacklist
	highRisk  map[string]struct{}
	timeout   time.Duration
	factors   []factor
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(
	history application.TransactionHistory,
	methods application.PaymentMethodRepository,
	geo application.GeoLocator,
	blacklist application.Blacklist,
	cfg Config,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *Engine {
	highRisk := make(map[string]struct{}, len(cfg.HighRiskCountries))
	for _, c := range cfg.HighRiskCountries {
		highRisk[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}

	e := &Engine{
		history:   history,
		methods:   methods,
		geo:       geo,
		blacklist: blacklist,
		highRisk:  highRisk,
		timeout:   cfg.Timeout,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
	e.factors = []factor{
		{domain.FactorVelocity, e.velocity},
		{domain.FactorGeography, e.geography},
		{domain.FactorAmountPattern, e.amountPattern},
		{domain.FactorCustomerHistory, e.customerHistory},
		{domain.FactorBlacklist, e.blacklisted},
		{domain.FactorPaymentMethod, e.paymentMethod},
	}
	return e
}

func (e *Engine) isHighRisk(country string) bool {
	_, ok := e.highRisk[strings.ToUpper(country)]
	return ok
}

// Analyze scores tx. It never fails: when scoring cannot run it returns the
// neutral fail-safe result so the payment pipeline keeps moving.
func (e *Engine) Analyze(ctx context.Context, tx domain.Transaction, ip string, geo *domain.GeoLocation) (result *domain.FraudAnalysisResult) {
	start := e.now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("fraud scoring panicked",
				"transaction_id", tx.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = e.failSafe()
		}
		e.metrics.FraudAnalysis(result.Recommendation, result.FailSafe, e.now().Sub(start))
	}()

	if err := ctx.Err(); err != nil {
		e.logger.Warn("fraud analysis skipped", "transaction_id", tx.ID, "error", err)
		return e.failSafe()
	}

	scoreCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		scoreCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	factors, err := e.computeFactors(scoreCtx, analysis{tx: tx, ip: ip, geo: geo, now: start})
	switch {
	case err != nil:
		e.logger.Error("fraud scoring failed", "transaction_id", tx.ID, "error", err)
		return e.failSafe()
	case ctx.Err() != nil:
		e.logger.Warn("fraud analysis cancelled", "transaction_id", tx.ID, "error", ctx.Err())
		return e.failSafe()
	case len(factors) == 0:
		e.logger.Warn("no fraud factor could be computed", "transaction_id", tx.ID)
		return e.failSafe()
	}

	score := Aggregate(factors)
	result = &domain.FraudAnalysisResult{
		Score:          score,
		RiskLevel:      RiskLevelFor(score),
		Factors:        factors,
		Recommendation: RecommendationFor(score, factors),
		AnalyzedAt:     e.now().UTC(),
	}

	e.logger.Info("fraud analysis completed",
		"transaction_id", tx.ID,
		"customer_id", tx.CustomerID,
		"score", result.Score,
		"risk_level", result.RiskLevel,
		"recommendation", result.Recommendation,
		"factors", len(factors),
	)
	return result
}

// computeFactors runs every factor concurrently. A factor whose data source
// fails is left out; a panicking factor fails the whole analysis.
func (e *Engine) computeFactors(ctx context.Context, a analysis) ([]domain.RiskFactor, error) {
	computed := make([]*domain.RiskFactor, len(e.factors))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range e.factors {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("fraud factor panicked",
						"factor", f.kind,
						"panic", r,
						"stack", string(debug.Stack()),
					)
					err = fmt.Errorf("%w: %s: %v", errScoringPanic, f.kind, r)
				}
			}()

			rf, ferr := f.compute(gctx, a)
			if ferr != nil {
				e.logger.Warn("fraud factor unavailable",
					"factor", f.kind,
					"transaction_id", a.tx.ID,
					"error", ferr,
				)
				return nil
			}

			rf.Type = f.kind
			rf.Weight = Weights[f.kind]
			rf.Score = clamp(rf.Score)
			computed[i] = &rf
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	factors := make([]domain.RiskFactor, 0, len(computed))
	for _, rf := range computed {
		if rf != nil {
			factors = append(factors, *rf)
		}
	}
	return factors, nil
}

func (e *Engine) failSafe() *domain.FraudAnalysisResult {
	return &domain.FraudAnalysisResult{
		Score:          failSafeScore,
		RiskLevel:      domain.RiskMedium,
		Recommendation: domain.RecommendManualReview,
		FailSafe:       true,
		AnalyzedAt:     e.now().UTC(),
	}
}
