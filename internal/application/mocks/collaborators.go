package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/shopspring/decimal"
)

type MockGeoLocator struct {
	mu        sync.RWMutex
	locations map[string]domain.GeoLocation
	calls     int

	Err error
}

func NewMockGeoLocator() *MockGeoLocator {
	return &MockGeoLocator{locations: make(map[string]domain.GeoLocation)}
}

func (m *MockGeoLocator) Set(ip, country string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[ip] = domain.GeoLocation{IP: ip, CountryCode: country}
}

func (m *MockGeoLocator) Locate(ctx context.Context, ip string) (*domain.GeoLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if loc, ok := m.locations[ip]; ok {
		return &loc, nil
	}
	return nil, nil
}

func (m *MockGeoLocator) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// MockBlacklist keeps one set per kind.
type MockBlacklist struct {
	mu   sync.RWMutex
	sets map[application.BlacklistKind]map[string]struct{}

	Err     error
	BlockFn func(ctx context.Context) // runs before each lookup; lets tests stall a factor
}

func NewMockBlacklist() *MockBlacklist {
	return &MockBlacklist{sets: make(map[application.BlacklistKind]map[string]struct{})}
}

func (m *MockBlacklist) Add(ctx context.Context, kind application.BlacklistKind, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[kind] == nil {
		m.sets[kind] = make(map[string]struct{})
	}
	m.sets[kind][value] = struct{}{}
	return nil
}

func (m *MockBlacklist) Remove(ctx context.Context, kind application.BlacklistKind, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[kind], value)
	return nil
}

// Members returns the set sorted so tests can compare it directly.
func (m *MockBlacklist) Members(ctx context.Context, kind application.BlacklistKind) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sets[kind]))
	for v := range m.sets[kind] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockBlacklist) contains(ctx context.Context, kind application.BlacklistKind, value string) (bool, error) {
	if m.BlockFn != nil {
		m.BlockFn(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return false, m.Err
	}
	_, ok := m.sets[kind][value]
	return ok, nil
}

func (m *MockBlacklist) IsIPBlacklisted(ctx context.Context, ip string) (bool, error) {
	return m.contains(ctx, application.BlacklistIP, ip)
}

func (m *MockBlacklist) IsCustomerBlacklisted(ctx context.Context, customerID string) (bool, error) {
	return m.contains(ctx, application.BlacklistCustomer, customerID)
}

func (m *MockBlacklist) IsPaymentMethodBlacklisted(ctx context.Context, paymentMethodID string) (bool, error) {
	return m.contains(ctx, application.BlacklistPaymentMethod, paymentMethodID)
}

// MockThreeDSProvider challenges by default and accepts every PaRes.
type MockThreeDSProvider struct {
	mu    sync.Mutex
	name  domain.ProviderName
	calls map[string]int
	Delay time.Duration

	InitiateFn func(ctx context.Context, req application.ThreeDSInitiateRequest) (*application.ThreeDSInitiateResponse, error)
	CompleteFn func(ctx context.Context, transactionID, paRes string) (*application.ThreeDSCompleteResponse, error)
}

func NewMockThreeDSProvider(name domain.ProviderName) *MockThreeDSProvider {
	return &MockThreeDSProvider{name: name, calls: make(map[string]int)}
}

func (m *MockThreeDSProvider) inc(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
}

func (m *MockThreeDSProvider) GetCalls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockThreeDSProvider) Name() domain.ProviderName {
	return m.name
}

func (m *MockThreeDSProvider) InitiateAuthentication(ctx context.Context, req application.ThreeDSInitiateRequest) (*application.ThreeDSInitiateResponse, error) {
	m.inc("InitiateAuthentication")
	if m.InitiateFn != nil {
		return m.InitiateFn(ctx, req)
	}
	acsURL := "https://acs.example.com/challenge"
	paReq := "eJxVUk1vgkAQvfdXEO4KqyiUjGtarS2JVqNoem1gB91EPlwWxX/fXUVtb/Pe7Lx585bRuSxOxgoqp6RbSVKiCqOKTgtsWZZ3kbtd0v7JOTU0k"
	return &application.ThreeDSInitiateResponse{
		Status: application.EnrollmentChallenge,
		AcsURL: &acsURL,
		PaReq:  &paReq,
	}, nil
}

func (m *MockThreeDSProvider) CompleteAuthentication(ctx context.Context, transactionID, paRes string) (*application.ThreeDSCompleteResponse, error) {
	m.inc("CompleteAuthentication")
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, transactionID, paRes)
	}
	cavv, eci, xid, ds := "AAABCZIhcQAAAABZlyFxAAAAAAA=", "05", "MDAwMDAwMDAwMDAwMDAwMzIyNzY=", "f25084f0-5b16-4c0a-ae5d-b24808a95e4b"
	return &application.ThreeDSCompleteResponse{
		Success: true,
		AuthenticationProof: domain.AuthenticationProof{
			CAVV:            &cavv,
			ECI:             &eci,
			XID:             &xid,
			DSTransactionID: &ds,
		},
	}, nil
}

// MockProcessor succeeds at everything its capabilities allow.
type MockProcessor struct {
	mu           sync.Mutex
	name         string
	capabilities domain.Capabilities
	calls        map[string]int
	lastKeys     map[string]string

	CreatePaymentFn func(ctx context.Context, req domain.CreatePaymentRequest) (*domain.ProcessorResult, error)
	CaptureFn       func(ctx context.Context, req domain.CaptureRequest) (*domain.ProcessorResult, error)
	RefundFn        func(ctx context.Context, req domain.RefundRequest) (*domain.ProcessorResult, error)
	VoidFn          func(ctx context.Context, req domain.VoidRequest) (*domain.ProcessorResult, error)
	GetStatusFn     func(ctx context.Context, transactionID string) (*domain.ProcessorResult, error)
}

func NewMockProcessor(name string, caps domain.Capabilities) *MockProcessor {
	return &MockProcessor{
		name:         name,
		capabilities: caps,
		calls:        make(map[string]int),
		lastKeys:     make(map[string]string),
	}
}

func (m *MockProcessor) record(method, idempotencyKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
	m.lastKeys[method] = idempotencyKey
}

func (m *MockProcessor) GetCalls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// LastIdempotencyKey returns the key seen by the most recent call of method.
func (m *MockProcessor) LastIdempotencyKey(method string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastKeys[method]
}

func (m *MockProcessor) Name() string                      { return m.name }
func (m *MockProcessor) Capabilities() domain.Capabilities { return m.capabilities }

func (m *MockProcessor) ok(id string, status domain.ProcessorStatus, amount decimal.Decimal, currency string) *domain.ProcessorResult {
	return &domain.ProcessorResult{
		Success:       true,
		TransactionID: id,
		Status:        status,
		Amount:        amount,
		Currency:      currency,
		Processor:     m.name,
	}
}

func (m *MockProcessor) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.ProcessorResult, error) {
	m.record("CreatePayment", req.IdempotencyKey)
	if m.CreatePaymentFn != nil {
		return m.CreatePaymentFn(ctx, req)
	}
	return m.ok("ext-123", domain.ProcessorStatusAuthorized, req.Amount, req.Currency), nil
}

func (m *MockProcessor) Capture(ctx context.Context, req domain.CaptureRequest) (*domain.ProcessorResult, error) {
	m.record("Capture", req.IdempotencyKey)
	if m.CaptureFn != nil {
		return m.CaptureFn(ctx, req)
	}
	if !m.capabilities.SupportsCapture {
		return domain.NotSupportedResult(m.name, domain.OpCapture), nil
	}
	return m.ok(req.TransactionID, domain.ProcessorStatusSucceeded, decimal.Zero, ""), nil
}

func (m *MockProcessor) Refund(ctx context.Context, req domain.RefundRequest) (*domain.ProcessorResult, error) {
	m.record("Refund", req.IdempotencyKey)
	if m.RefundFn != nil {
		return m.RefundFn(ctx, req)
	}
	if !m.capabilities.SupportsRefunds {
		return domain.NotSupportedResult(m.name, domain.OpRefund), nil
	}
	return m.ok(req.TransactionID, domain.ProcessorStatusSucceeded, decimal.Zero, ""), nil
}

func (m *MockProcessor) Void(ctx context.Context, req domain.VoidRequest) (*domain.ProcessorResult, error) {
	m.record("Void", req.IdempotencyKey)
	if m.VoidFn != nil {
		return m.VoidFn(ctx, req)
	}
	if !m.capabilities.SupportsVoid {
		return domain.NotSupportedResult(m.name, domain.OpVoid), nil
	}
	return m.ok(req.TransactionID, domain.ProcessorStatusCanceled, decimal.Zero, ""), nil
}

func (m *MockProcessor) GetStatus(ctx context.Context, transactionID string) (*domain.ProcessorResult, error) {
	m.record("GetStatus", "")
	if m.GetStatusFn != nil {
		return m.GetStatusFn(ctx, transactionID)
	}
	return m.ok(transactionID, domain.ProcessorStatusSucceeded, decimal.Zero, ""), nil
}

func (m *MockProcessor) Process3DSecure(ctx context.Context, req domain.ThreeDSecureRequest) (*domain.ProcessorResult, error) {
	m.record("Process3DSecure", "")
	if !m.capabilities.Supports3DSecure {
		return domain.NotSupportedResult(m.name, domain.OpProcess3DSecure), nil
	}
	return m.ok(req.TransactionID, domain.ProcessorStatusAuthorized, decimal.Zero, ""), nil
}

// MockEventPublisher records every published event.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []domain.Event

	Err error
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *MockEventPublisher) Events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...)
}

// Types returns the event types in publish order.
func (m *MockEventPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType())
	}
	return out
}
