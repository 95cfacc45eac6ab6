/**
 * @description
 * This file defines the Card model, a payment credential bound to an account.
 * Issuance is idempotent: the first card for an account is auto-issued exactly
 * once, re-issuing returns the existing card.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// CardNetwork identifies the scheme a card settles on.
type CardNetwork string

const (
	CardNetworkVisa       CardNetwork = "visa"
	CardNetworkMastercard CardNetwork = "mastercard"
	CardNetworkAmex       CardNetwork = "amex"
	CardNetworkDiscover   CardNetwork = "discover"
)

// CardStatus is the lifecycle status of a card.
type CardStatus string

const (
	CardStatusPending CardStatus = "pending"
	CardStatusActive  CardStatus = "active"
	CardStatusBlocked CardStatus = "blocked"
)

// Card maps to the `cards` table. PanLast4 and expiry are display fields; the
// full PAN never enters this service.
type Card struct {
	ID          uuid.UUID   `json:"id"`
	AccountID   uuid.UUID   `json:"account_id"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	Network     CardNetwork `json:"network"`
	PanLast4    string      `json:"pan_last4"`
	ExpiryMonth int         `json:"expiry_month"`
	ExpiryYear  int         `json:"expiry_year"`
	Activated   bool        `json:"activated"`
	Status      CardStatus  `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}
