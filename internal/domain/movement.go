/**
 * @description
 * This file defines the Movement model, the append-only ledger record for every
 * attempted funds movement, together with its state machine and the request DTO
 * the transfer engine consumes.
 *
 * @notes
 * - Direction is encoded by which account id is present: deposits have no source,
 *   withdrawals have no destination, internal transfers have both.
 * - A movement is immutable once terminal. Administrative corrections create a
 *   new compensating movement; history is never rewritten.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// MovementKind identifies what rail a movement travels.
type MovementKind string

const (
	MovementKindInternal        MovementKind = "internal"
	MovementKindDeposit         MovementKind = "deposit"
	MovementKindWithdrawal      MovementKind = "withdrawal"
	MovementKindCardSettlement  MovementKind = "card_settlement"
	MovementKindAdminAdjustment MovementKind = "admin_adjustment"
)

// External reports whether the movement settles over an external rail and
// therefore passes through pending_settlement before completing.
func (k MovementKind) External() bool {
	switch k {
	case MovementKindDeposit, MovementKindWithdrawal, MovementKindCardSettlement:
		return true
	}
	return false
}

// MovementState is a node in the movement state machine:
//
//	received -> validated -> applied -> completed
//
// with `rejected` as the failure exit before apply and `pending_settlement`
// between applied and completed for external rails. Once applied, a movement is
// never rolled back; post-apply bookkeeping failures raise operator alerts.
type MovementState string

const (
	MovementStateReceived          MovementState = "received"
	MovementStateValidated         MovementState = "validated"
	MovementStateApplied           MovementState = "applied"
	MovementStatePendingSettlement MovementState = "pending_settlement"
	MovementStateCompleted         MovementState = "completed"
	MovementStateRejected          MovementState = "rejected"
)

// Terminal reports whether the state permits no further transitions.
func (s MovementState) Terminal() bool {
	return s == MovementStateCompleted || s == MovementStateRejected
}

// Movement maps to the `movements` table.
type Movement struct {
	ID                   uuid.UUID     `json:"id"`
	SourceAccountID      *uuid.UUID    `json:"source_account_id,omitempty"`
	DestinationAccountID *uuid.UUID    `json:"destination_account_id,omitempty"`
	Amount               int64         `json:"amount"` // in cents, always positive
	Kind                 MovementKind  `json:"kind"`
	State                MovementState `json:"state"`
	RejectionReason      *string       `json:"rejection_reason,omitempty"`
	Memo                 string        `json:"memo,omitempty"`
	IdempotencyKey       string        `json:"idempotency_key"`
	InitiatedBy          uuid.UUID     `json:"initiated_by"`
	CreatedAt            time.Time     `json:"created_at"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
}

// AccountIDs returns the accounts the movement touches, source first.
func (m *Movement) AccountIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, 2)
	if m.SourceAccountID != nil {
		ids = append(ids, *m.SourceAccountID)
	}
	if m.DestinationAccountID != nil {
		ids = append(ids, *m.DestinationAccountID)
	}
	return ids
}

// MovementRequest is the validated output of request intake, consumed by the
// transfer engine. Amount is already converted to cents.
type MovementRequest struct {
	SourceAccountID      *uuid.UUID
	DestinationAccountID *uuid.UUID
	Amount               int64
	Kind                 MovementKind
	Memo                 string
	IdempotencyKey       string
}

// MovementListOptions controls pagination for account history queries.
type MovementListOptions struct {
	Limit  int
	Offset int
}

// Actor is the authenticated identity on whose behalf an engine call runs.
// It is passed explicitly into every call; the engine never reads identity
// from ambient state.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

// Role is the coarse authorization level supplied by the auth layer.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// OperatorAlertKind classifies alerts raised for back-office follow-up.
type OperatorAlertKind string

const (
	// AlertReversalRequired is raised when post-apply side effects fail for a
	// movement whose financial effect already landed.
	AlertReversalRequired OperatorAlertKind = "reversal_required"
	// AlertIdempotencyConflict is raised when a retried idempotency key carries
	// a different amount than the original submission.
	AlertIdempotencyConflict OperatorAlertKind = "idempotency_conflict"
	// AlertSettlementStuck is raised when an external movement stays in
	// pending_settlement past the configured deadline.
	AlertSettlementStuck OperatorAlertKind = "settlement_stuck"
)

// OperatorAlert maps to the `operator_alerts` table. Alerts are append-only.
type OperatorAlert struct {
	ID         uuid.UUID         `json:"id"`
	Kind       OperatorAlertKind `json:"kind"`
	MovementID *uuid.UUID        `json:"movement_id,omitempty"`
	Detail     string            `json:"detail"`
	CreatedAt  time.Time         `json:"created_at"`
}
