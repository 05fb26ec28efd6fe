// Package events delivers lifecycle notifications to the outbound event sink.
// Delivery is best-effort and always happens after the originating
// transaction has committed.
package events

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type Type string

const (
	PaymentCompleted      Type = "payment.completed"
	PaymentRefunded       Type = "payment.refunded"
	SubscriptionActivated Type = "subscription.activated"
	SubscriptionCancelled Type = "subscription.cancelled"
	SubscriptionExpired   Type = "subscription.expired"
)

type Event struct {
	ID               string    `json:"id"`
	Type             Type      `json:"type"`
	OccurredAt       time.Time `json:"occurred_at"`
	UserID           string    `json:"user_id,omitempty"`
	SubscriptionID   string    `json:"subscription_id,omitempty"`
	SubscriptionKind string    `json:"subscription_kind,omitempty"`
	PaymentID        string    `json:"payment_id,omitempty"`
	Amount           string    `json:"amount,omitempty"`
	Status           string    `json:"status,omitempty"`
}

// New stamps an event with a ULID so consumers can dedupe and order by id.
func New(eventType Type, at time.Time) Event {
	at = at.UTC()
	return Event{
		ID:         ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		Type:       eventType,
		OccurredAt: at,
	}
}
