/**
 * @description
 * Message payloads exchanged over the broker. MovementEvent feeds both user
 * notification channels and the read-projection refresh; AccountOpenedEvent is
 * consumed to auto-issue the account's first card.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// MovementEvent is published after a movement reaches a reportable state.
type MovementEvent struct {
	EventID              uuid.UUID     `json:"event_id"`
	MovementID           uuid.UUID     `json:"movement_id"`
	Kind                 MovementKind  `json:"kind"`
	State                MovementState `json:"state"`
	SourceAccountID      *uuid.UUID    `json:"source_account_id,omitempty"`
	DestinationAccountID *uuid.UUID    `json:"destination_account_id,omitempty"`
	Amount               int64         `json:"amount"`
	OwnerID              uuid.UUID     `json:"owner_id"`
	Reason               string        `json:"reason,omitempty"`
	OccurredAt           time.Time     `json:"occurred_at"`
}

// NotificationMessage is the contract with the external notification channel.
// Delivery is best-effort; the channel owns retries.
type NotificationMessage struct {
	Channel      string                 `json:"channel"` // email | sms | push
	Recipient    uuid.UUID              `json:"recipient"`
	TemplateKind string                 `json:"template_kind"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

// AccountOpenedEvent is emitted by the account-opening collaborator when a new
// account is provisioned.
type AccountOpenedEvent struct {
	AccountID  uuid.UUID `json:"account_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}
