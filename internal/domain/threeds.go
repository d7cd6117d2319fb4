package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// AuthenticationStatus is the lifecycle state of a 3-D Secure authentication.
type AuthenticationStatus string

const (
	AuthStatusNotRequired AuthenticationStatus = "NOT_REQUIRED"
	AuthStatusPending     AuthenticationStatus = "PENDING"
	AuthStatusSuccessful  AuthenticationStatus = "SUCCESSFUL"
	AuthStatusFailed      AuthenticationStatus = "FAILED"
	AuthStatusAbandoned   AuthenticationStatus = "ABANDONED"

	// Query-only answers. Never stored.
	AuthStatusNotFound AuthenticationStatus = "NOT_FOUND"
	AuthStatusError    AuthenticationStatus = "ERROR"
)

func (s AuthenticationStatus) IsTerminal() bool {
	switch s {
	case AuthStatusNotRequired, AuthStatusSuccessful, AuthStatusFailed, AuthStatusAbandoned:
		return true
	default:
		return false
	}
}

// ProviderName identifies a brand's 3-D Secure programme.
type ProviderName string

const (
	ProviderVisaSecure              ProviderName = "VisaSecure"
	ProviderMastercardIdentityCheck ProviderName = "MastercardIdentityCheck"
	ProviderAmexSafeKey             ProviderName = "AmexSafeKey"
	ProviderJSecure                 ProviderName = "JSecure"
	ProviderDiscoverProtectBuy      ProviderName = "DiscoverProtectBuy"
)

var brandProviders = map[CardBrand]ProviderName{
	BrandVisa:       ProviderVisaSecure,
	BrandMastercard: ProviderMastercardIdentityCheck,
	BrandAmex:       ProviderAmexSafeKey,
	BrandJCB:        ProviderJSecure,
	BrandDiscover:   ProviderDiscoverProtectBuy,
}

// ProviderForBrand returns false for brands without a 3-D Secure programme.
func ProviderForBrand(brand CardBrand) (ProviderName, bool) {
	p, ok := brandProviders[brand]
	return p, ok
}

// AuthenticationProof holds the artifacts issued on successful authentication.
type AuthenticationProof struct {
	CAVV            *string
	ECI             *string
	XID             *string
	DSTransactionID *string
}

type Authentication struct {
	ID            string
	TransactionID string
	CardToken     string
	Provider      ProviderName
	Status        AuthenticationStatus
	AcsURL        *string
	PaReq         *string
	Amount        decimal.Decimal
	Currency      string
	MerchantID    string

	AuthenticationProof
	FailureReason *string

	// Version guards concurrent writers. The repository bumps it on every update.
	Version int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

type NewAuthenticationParams struct {
	ID            string
	TransactionID string
	CardToken     string
	Provider      ProviderName
	Amount        decimal.Decimal
	Currency      string
	MerchantID    string
	AcsURL        *string
	PaReq         *string
}

// NewPendingAuthentication starts a challenge awaiting the cardholder's PaRes.
func NewPendingAuthentication(p NewAuthenticationParams, now time.Time) Authentication {
	return newAuthentication(p, AuthStatusPending, now)
}

// NewNotRequiredAuthentication records that the provider declined to challenge.
func NewNotRequiredAuthentication(p NewAuthenticationParams, now time.Time) Authentication {
	a := newAuthentication(p, AuthStatusNotRequired, now)
	completed := a.CreatedAt
	a.CompletedAt = &completed
	return a
}

func newAuthentication(p NewAuthenticationParams, status AuthenticationStatus, now time.Time) Authentication {
	now = now.UTC()
	return Authentication{
		ID:            p.ID,
		TransactionID: p.TransactionID,
		CardToken:     p.CardToken,
		Provider:      p.Provider,
		Status:        status,
		AcsURL:        p.AcsURL,
		PaReq:         p.PaReq,
		Amount:        p.Amount,
		Currency:      p.Currency,
		MerchantID:    p.MerchantID,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Initiated describes the stored record as a creation event.
func (a Authentication) Initiated() AuthenticationInitiated {
	return AuthenticationInitiated{
		AuthenticationID: a.ID,
		TransactionID:    a.TransactionID,
		Provider:         a.Provider,
		Status:           a.Status,
		At:               a.CreatedAt,
	}
}

func (a Authentication) Succeed(proof AuthenticationProof, at time.Time) (Authentication, AuthenticationSucceeded, error) {
	next, err := a.transition(AuthStatusSuccessful, at)
	if err != nil {
		return a, AuthenticationSucceeded{}, err
	}
	next.AuthenticationProof = proof
	return next, AuthenticationSucceeded{
		AuthenticationID: a.ID,
		TransactionID:    a.TransactionID,
		ECI:              proof.ECI,
		At:               next.UpdatedAt,
	}, nil
}

func (a Authentication) Fail(reason string, at time.Time) (Authentication, AuthenticationFailed, error) {
	next, err := a.transition(AuthStatusFailed, at)
	if err != nil {
		return a, AuthenticationFailed{}, err
	}
	next.FailureReason = &reason
	return next, AuthenticationFailed{
		AuthenticationID: a.ID,
		TransactionID:    a.TransactionID,
		Reason:           reason,
		At:               next.UpdatedAt,
	}, nil
}

func (a Authentication) Abandon(at time.Time) (Authentication, AuthenticationAbandoned, error) {
	next, err := a.transition(AuthStatusAbandoned, at)
	if err != nil {
		return a, AuthenticationAbandoned{}, err
	}
	return next, AuthenticationAbandoned{
		AuthenticationID: a.ID,
		TransactionID:    a.TransactionID,
		At:               next.UpdatedAt,
	}, nil
}

func (a Authentication) transition(target AuthenticationStatus, at time.Time) (Authentication, error) {
	if err := a.canTransitionTo(target); err != nil {
		return a, err
	}
	at = at.UTC()
	next := a
	next.Status = target
	next.UpdatedAt = at
	next.CompletedAt = &at
	return next, nil
}

// Only a pending authentication moves. Every other state is final.
func (a Authentication) canTransitionTo(target AuthenticationStatus) error {
	if a.Status == AuthStatusPending {
		return a.allow(target, AuthStatusSuccessful, AuthStatusFailed, AuthStatusAbandoned)
	}
	return NewInvalidStateError(string(a.Status), string(AuthStatusPending))
}

func (a Authentication) allow(target AuthenticationStatus, allowed ...AuthenticationStatus) error {
	if slices.Contains(allowed, target) {
		return nil
	}
	return NewInvalidStateError(string(a.Status), string(target))
}
