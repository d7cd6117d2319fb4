// Package mocks provides concurrency-safe in-memory doubles for the application ports.
package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
)

// MockCardRepository enforces the one active card per fingerprint and customer rule like the real store.
type MockCardRepository struct {
	mu    sync.RWMutex
	cards map[string]domain.Card
	calls map[string]int

	FindByTokenFn             func(ctx context.Context, token string) (*domain.Card, error)
	FindActiveByFingerprintFn func(ctx context.Context, fingerprint, customerID string) (*domain.Card, error)
	AddFn                     func(ctx context.Context, card *domain.Card) error
	UpdateFn                  func(ctx context.Context, card *domain.Card) error
}

func NewMockCardRepository() *MockCardRepository {
	return &MockCardRepository{
		cards: make(map[string]domain.Card),
		calls: make(map[string]int),
	}
}

func (m *MockCardRepository) inc(method string) {
	m.calls[method]++
}

func (m *MockCardRepository) GetCalls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// Count returns how many cards are stored.
func (m *MockCardRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cards)
}

func (m *MockCardRepository) FindByToken(ctx context.Context, token string) (*domain.Card, error) {
	m.mu.Lock()
	m.inc("FindByToken")
	fn := m.FindByTokenFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, token)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.cards[token]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *MockCardRepository) FindActiveByFingerprint(ctx context.Context, fingerprint, customerID string) (*domain.Card, error) {
	m.mu.Lock()
	m.inc("FindActiveByFingerprint")
	fn := m.FindActiveByFingerprintFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, fingerprint, customerID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.cards {
		if c.Active && c.Fingerprint == fingerprint && c.CustomerID == customerID {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MockCardRepository) FindByCustomer(ctx context.Context, customerID string) ([]*domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inc("FindByCustomer")

	var out []*domain.Card
	for _, c := range m.cards {
		if c.CustomerID == customerID {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockCardRepository) Add(ctx context.Context, card *domain.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inc("Add")
	if m.AddFn != nil {
		return m.AddFn(ctx, card)
	}

	for _, c := range m.cards {
		if c.Active && card.Active && c.Fingerprint == card.Fingerprint && c.CustomerID == card.CustomerID {
			return domain.NewDuplicateCardError(card.CustomerID)
		}
	}
	m.cards[card.Token] = *card
	return nil
}

func (m *MockCardRepository) Update(ctx context.Context, card *domain.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inc("Update")
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, card)
	}

	if _, ok := m.cards[card.Token]; !ok {
		return domain.NewNotFoundError("card", card.Token)
	}
	m.cards[card.Token] = *card
	return nil
}

func (m *MockCardRepository) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inc("Delete")
	delete(m.cards, token)
	return nil
}

// MockTransactionHistory serves a fixed set of records.
type MockTransactionHistory struct {
	mu      sync.RWMutex
	records []domain.TransactionRecord

	Err error
}

func NewMockTransactionHistory(records ...domain.TransactionRecord) *MockTransactionHistory {
	return &MockTransactionHistory{records: records}
}

func (m *MockTransactionHistory) Append(records ...domain.TransactionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
}

func (m *MockTransactionHistory) RecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]domain.TransactionRecord, error) {
	return m.filter(func(r domain.TransactionRecord) bool {
		return r.CustomerID == customerID && !r.CreatedAt.Before(since)
	})
}

func (m *MockTransactionHistory) ByCustomer(ctx context.Context, customerID string) ([]domain.TransactionRecord, error) {
	return m.filter(func(r domain.TransactionRecord) bool { return r.CustomerID == customerID })
}

func (m *MockTransactionHistory) ByPaymentMethod(ctx context.Context, paymentMethodID string) ([]domain.TransactionRecord, error) {
	return m.filter(func(r domain.TransactionRecord) bool { return r.PaymentMethodID == paymentMethodID })
}

func (m *MockTransactionHistory) filter(keep func(domain.TransactionRecord) bool) ([]domain.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []domain.TransactionRecord
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

type MockPaymentMethodRepository struct {
	mu      sync.RWMutex
	methods map[string]domain.PaymentMethod

	Err error
}

func NewMockPaymentMethodRepository(methods ...domain.PaymentMethod) *MockPaymentMethodRepository {
	m := &MockPaymentMethodRepository{methods: make(map[string]domain.PaymentMethod)}
	for _, pm := range methods {
		m.methods[pm.ID] = pm
	}
	return m
}

func (m *MockPaymentMethodRepository) FindByID(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if pm, ok := m.methods[id]; ok {
		return &pm, nil
	}
	return nil, nil
}

// MockAuthenticationRepository behaves like the Postgres store: WithTx holds a
// lock for the whole callback, standing in for the row lock, and Update checks
// the version.
type MockAuthenticationRepository struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	auths map[string]domain.Authentication
	calls map[string]int

	FindByTransactionIDFn func(ctx context.Context, transactionID string) (*domain.Authentication, error)
	AddFn                 func(ctx context.Context, auth *domain.Authentication) error
	UpdateFn              func(ctx context.Context, auth *domain.Authentication) error
}

func NewMockAuthenticationRepository() *MockAuthenticationRepository {
	return &MockAuthenticationRepository{
		auths: make(map[string]domain.Authentication),
		calls: make(map[string]int),
	}
}

func (m *MockAuthenticationRepository) GetCalls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// Stored returns a copy of the stored record, bypassing any overrides.
func (m *MockAuthenticationRepository) Stored(transactionID string) (domain.Authentication, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.auths[transactionID]
	return a, ok
}

// Seed stores auth as-is.
func (m *MockAuthenticationRepository) Seed(auth domain.Authentication) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auths[auth.TransactionID] = auth
}

func (m *MockAuthenticationRepository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Authentication, error) {
	m.mu.Lock()
	m.calls["FindByTransactionID"]++
	fn := m.FindByTransactionIDFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, transactionID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.auths[transactionID]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *MockAuthenticationRepository) FindByTransactionIDForUpdate(ctx context.Context, transactionID string) (*domain.Authentication, error) {
	return m.FindByTransactionID(ctx, transactionID)
}

func (m *MockAuthenticationRepository) FindStalePending(ctx context.Context, olderThan time.Time, after application.StaleCursor, limit int) ([]*domain.Authentication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	before := func(at time.Time, txID string, than application.StaleCursor) bool {
		if !at.Equal(than.CreatedAt) {
			return at.Before(than.CreatedAt)
		}
		return txID < than.TransactionID
	}

	var out []*domain.Authentication
	for _, a := range m.auths {
		if a.Status != domain.AuthStatusPending || !a.CreatedAt.Before(olderThan) {
			continue
		}
		if !before(after.CreatedAt, after.TransactionID, application.StaleCursor{CreatedAt: a.CreatedAt, TransactionID: a.TransactionID}) {
			continue
		}
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		return before(out[i].CreatedAt, out[i].TransactionID, application.StaleCursor{CreatedAt: out[j].CreatedAt, TransactionID: out[j].TransactionID})
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockAuthenticationRepository) Add(ctx context.Context, auth *domain.Authentication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Add"]++
	if m.AddFn != nil {
		return m.AddFn(ctx, auth)
	}

	if _, ok := m.auths[auth.TransactionID]; ok {
		v := &domain.ValidationError{}
		v.Add("transaction_id", "already has an authentication")
		return v
	}
	m.auths[auth.TransactionID] = *auth
	return nil
}

func (m *MockAuthenticationRepository) Update(ctx context.Context, auth *domain.Authentication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Update"]++
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, auth)
	}

	stored, ok := m.auths[auth.TransactionID]
	if !ok {
		return domain.NewNotFoundError("authentication", auth.TransactionID)
	}
	if stored.Version != auth.Version {
		return domain.NewConcurrentModificationError("authentication", auth.TransactionID)
	}
	auth.Version++
	m.auths[auth.TransactionID] = *auth
	return nil
}

func (m *MockAuthenticationRepository) WithTx(ctx context.Context, fn func(application.AuthenticationRepository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(m)
}
