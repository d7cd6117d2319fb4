package fraud

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	velocityWindow = time.Hour
	historyWindow  = 30 * 24 * time.Hour
	newMethodWeek  = 7 * 24 * time.Hour

	minAmountHistory = 3
)

// analysis carries one Analyze call's inputs to every factor.
type analysis struct {
	tx  domain.Transaction
	ip  string
	geo *domain.GeoLocation
	now time.Time
}

// withoutCurrent drops the transaction being scored from history reads.
func (a analysis) withoutCurrent(records []domain.TransactionRecord) []domain.TransactionRecord {
	out := records[:0:0]
	for _, r := range records {
		if a.tx.ID != "" && r.ID == a.tx.ID {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (e *Engine) velocity(ctx context.Context, a analysis) (domain.RiskFactor, error) {
	records, err := e.history.RecentByCustomer(ctx, a.tx.CustomerID, a.now.Add(-velocityWindow))
	if err != nil {
		return domain.RiskFactor{}, fmt.Errorf("recent transactions: %w", err)
	}
	n := len(a.withoutCurrent(records))

	var score int
	switch {
	case n > 20:
		score = 90
	case n > 10:
		score = 70
	case n > 5:
		score = 40
	case n > 2:
		score = 20
	}
	return domain.RiskFactor{
		Score:       score,
		Description: fmt.Sprintf("%d transactions in the last hour", n),
	}, nil
}

func (e *Engine) geography(ctx context.Context, a analysis) (domain.RiskFactor, error) {
	country := ""
	switch {
	case a.geo != nil && a.geo.CountryCode != "":
		country = a.geo.CountryCode
	case a.ip != "":
		loc, err := e.geo.Locate(ctx, a.ip)
		if err != nil {
			return domain.RiskFactor{}, fmt.Errorf("locate ip: %w", err)
		}
		if loc == nil || loc.CountryCode == "" {
			return domain.RiskFactor{Score: 30, Description: "ip address location unknown"}, nil
		}
		country = loc.CountryCode
	default:
		// Decided before history: a first payment without an IP scores 30, not 0.
		return domain.RiskFactor{Score: 30, Description: "no ip address supplied"}, nil
	}

	records, err := e.history.RecentByCustomer(ctx, a.tx.CustomerID, a.now.Add(-historyWindow))
	if err != nil {
		return domain.RiskFactor{}, fmt.Errorf("recent transactions: %w", err)
	}

	usual, ok := mostFrequentCountry(a.withoutCurrent(records))
	switch {
	case !ok:
		return domain.RiskFactor{Score: 0, Description: "no location history"}, nil
	case usual == country:
		return domain.RiskFactor{Score: 0, Description: "usual country " + country}, nil
	case e.isHighRisk(country):
		return domain.RiskFactor{Score: 80, Description: fmt.Sprintf("high-risk country %s, usually %s", country, usual)}, nil
	default:
		return domain.RiskFactor{Score: 50, Description: fmt.Sprintf("country %s, usually %s", country, usual)}, nil
	}
}

// mostFrequentCountry breaks ties alphabetically so results are reproducible.
func mostFrequentCountry(records []domain.TransactionRecord) (string, bool) {
	counts := make(map[string]int)
	for _, r := range records {
		if r.IPCountry != nil && *r.IPCountry != "" {
			counts[*r.IPCountry]++
		}
	}
	if len(counts) == 0 {
		return "", false
	}

	countries := make([]string, 0, len(counts))
	for c := range counts {
		countries = append(countries, c)
	}
	sort.Strings(countries)

	best := countries[0]
	for _, c := range countries[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best, true
}

func (e *Engine) amountPattern(ctx context.Context, a analysis) (domain.RiskFactor, error) {
	records, err := e.history.RecentByCustomer(ctx, a.tx.CustomerID, a.now.Add(-historyWindow))
	if err != nil {
		return domain.RiskFactor{}, fmt.Errorf("recent transactions: %w", err)
	}
	records = a.withoutCurrent(records)
	if len(records) < minAmountHistory {
		return domain.RiskFactor{Score: 0, Description: "insufficient history"}, nil
	}

	maxAmount := records[0].Amount
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.Amount)
		if r.Amount.GreaterThan(maxAmount) {
			maxAmount = r.Amount
		}
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(records))))
	amount := a.tx.Amount

	switch {
	case amount.GreaterThan(maxAmount.Mul(decimal.NewFromInt(3))):
		return domain.RiskFactor{Score: 70, Description: "amount exceeds 3x the recent maximum"}, nil
	case amount.GreaterThan(avg.Mul(decimal.NewFromInt(5))):
		return domain.RiskFactor{Score: 50, Description: "amount exceeds 5x the recent average"}, nil
	case isRoundAmount(amount):
		return domain.RiskFactor{Score: 30, Description: "suspiciously round amount"}, nil
	default:
		return domain.RiskFactor{Score: 0, Description: "amount within usual range"}, nil
	}
}

var roundDivisors = []int64{10, 25, 50, 100}

func isRoundAmount(amount decimal.Decimal) bool {
	if amount.LessThan(decimal.NewFromInt(100)) || !amount.Equal(amount.Truncate(0)) {
		return false
	}
	for _, d := range roundDivisors {
		if amount.Mod(decimal.NewFromInt(d)).IsZero() {
			return true
		}
	}
	return false
}

func (e *Engine) customerHistory(ctx context.Context, a analysis) (domain.RiskFactor, error) {
	recent, err := e.history.RecentByCustomer(ctx, a.tx.CustomerID, a.now.Add(-historyWindow))
	if err != nil {
		return domain.RiskFactor{}, fmt.Errorf("recent transactions: %w", err)
	}
	recent = a.withoutCurrent(recent)

	failures := 0
	for _, r := range recent {
		if r.Status == domain.TxStatusFailed {
			failures++
		}
	}
	if len(recent) > 0 {
		rate := float64(failures) / float64(len(recent))
		if rate > 0.5 || failures > 10 {
			return domain.RiskFactor{
				Score:       60,
				Description: fmt.Sprintf("%d of %d recent transactions failed", failures, len(recent)),
			}, nil
		}
	}

	all, err := e.history.ByCustomer(ctx, a.tx.CustomerID)
	if err != nil {
		return domain.RiskFactor{}, fmt.Errorf("customer transactions: %w", err)
	}
	switch len(a.withoutCurrent(all)) {
	case 0:
		return domain.RiskFactor{Score: 30, Description: "first payment"}, nil
	case 1:
		return domain.RiskFactor{Score: 20, Description: "second payment"}, nil
	default:
		return domain.RiskFactor{Score: 0, Description: "established customer"}, nil
	}
}

func (e *Engine) blacklisted(ctx context.Context, a analysis) (domain.RiskFactor, error) {
	score := 0
	var hits []string

	if a.ip != "" {
		listed, err := e.blacklist.IsIPBlacklisted(ctx, a.ip)
		if err != nil {
			return domain.RiskFactor{}, fmt.Errorf("ip blacklist: %w", err)
		}
		if listed {
			score += 90
			hits = append(hits, "ip")
		}
	}

	listed, err := e.blacklist.IsCustomerBlacklisted(ctx, a.tx.CustomerID)
	if err != nil {
		return domain.RiskFactor{}, fmt.Errorf("customer blacklist: %w", err)
	}
	if listed {
		score += 95
		hits = append(hits, "customer")
	}

	if a.tx.PaymentMethodID != "" {
		listed, err := e.blacklist.IsPaymentMethodBlacklisted(ctx, a.tx.PaymentMethodID)
		if err != nil {
			return domain.RiskFactor{}, fmt.Errorf("payment method blacklist: %w", err)
		}
		if listed {
			score += 85
			hits = append(hits, "payment method")
		}
	}

	if len(hits) == 0 {
		return domain.RiskFactor{Score: 0, Description: "not blacklisted"}, nil
	}
	return domain.RiskFactor{Score: score, Description: "blacklisted " + strings.Join(hits, ", ")}, nil
}

var methodBaseScores = map[domain.PaymentMethodType]int{
	domain.MethodCash:            0,
	domain.MethodBankTransfer:    5,
	domain.MethodCreditCard:      10,
	domain.MethodContactlessCard: 15,
	domain.MethodMobilePayment:   20,
	domain.MethodDigitalWallet:   25,
	domain.MethodGiftCard:        40,
	domain.MethodCryptocurrency:  60,
}

var errUnknownPaymentMethod = errors.New("payment method not found")

func (e *Engine) paymentMethod(ctx context.Context, a analysis) (domain.RiskFactor, error) {
	if a.tx.PaymentMethodID == "" {
		return domain.RiskFactor{}, errUnknownPaymentMethod
	}
	method, err := e.methods.FindByID(ctx, a.tx.PaymentMethodID)
	if err != nil {
		return domain.RiskFactor{}, fmt.Errorf("payment method: %w", err)
	}
	if method == nil {
		return domain.RiskFactor{}, errUnknownPaymentMethod
	}

	uses, err := e.history.ByPaymentMethod(ctx, method.ID)
	if err != nil {
		return domain.RiskFactor{}, fmt.Errorf("payment method transactions: %w", err)
	}

	score := methodBaseScores[method.Type]
	notes := []string{string(method.Type)}

	if len(a.withoutCurrent(uses)) < 2 {
		score += 20
		notes = append(notes, "new method")
	}

	created := method.CreatedAt.UTC()
	now := a.now.UTC()
	switch {
	case sameDate(created, now):
		score += 30
		notes = append(notes, "created today")
	case now.Sub(created) < newMethodWeek:
		score += 15
		notes = append(notes, "created this week")
	}

	return domain.RiskFactor{Score: score, Description: strings.Join(notes, ", ")}, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
