package domain

import "time"

// Event is emitted by a state transition and published after the change is stored.
type Event interface {
	EventType() string
	AggregateID() string
	OccurredAt() time.Time
}

const (
	EventCardRevoked             = "card.revoked"
	EventAuthenticationInitiated = "threeds.authentication.initiated"
	EventAuthenticationSucceeded = "threeds.authentication.succeeded"
	EventAuthenticationFailed    = "threeds.authentication.failed"
	EventAuthenticationAbandoned = "threeds.authentication.abandoned"
)

type CardRevoked struct {
	Token      string    `json:"token"`
	CustomerID string    `json:"customer_id"`
	RevokedAt  time.Time `json:"revoked_at"`
}

func (e CardRevoked) EventType() string     { return EventCardRevoked }
func (e CardRevoked) AggregateID() string   { return e.Token }
func (e CardRevoked) OccurredAt() time.Time { return e.RevokedAt }

type AuthenticationInitiated struct {
	AuthenticationID string               `json:"authentication_id"`
	TransactionID    string               `json:"transaction_id"`
	Provider         ProviderName         `json:"provider"`
	Status           AuthenticationStatus `json:"status"`
	At               time.Time            `json:"at"`
}

func (e AuthenticationInitiated) EventType() string     { return EventAuthenticationInitiated }
func (e AuthenticationInitiated) AggregateID() string   { return e.TransactionID }
func (e AuthenticationInitiated) OccurredAt() time.Time { return e.At }

type AuthenticationSucceeded struct {
	AuthenticationID string    `json:"authentication_id"`
	TransactionID    string    `json:"transaction_id"`
	ECI              *string   `json:"eci,omitempty"`
	At               time.Time `json:"at"`
}

func (e AuthenticationSucceeded) EventType() string     { return EventAuthenticationSucceeded }
func (e AuthenticationSucceeded) AggregateID() string   { return e.TransactionID }
func (e AuthenticationSucceeded) OccurredAt() time.Time { return e.At }

type AuthenticationFailed struct {
	AuthenticationID string    `json:"authentication_id"`
	TransactionID    string    `json:"transaction_id"`
	Reason           string    `json:"reason"`
	At               time.Time `json:"at"`
}

func (e AuthenticationFailed) EventType() string     { return EventAuthenticationFailed }
func (e AuthenticationFailed) AggregateID() string   { return e.TransactionID }
func (e AuthenticationFailed) OccurredAt() time.Time { return e.At }

type AuthenticationAbandoned struct {
	AuthenticationID string    `json:"authentication_id"`
	TransactionID    string    `json:"transaction_id"`
	At               time.Time `json:"at"`
}

func (e AuthenticationAbandoned) EventType() string     { return EventAuthenticationAbandoned }
func (e AuthenticationAbandoned) AggregateID() string   { return e.TransactionID }
func (e AuthenticationAbandoned) OccurredAt() time.Time { return e.At }
