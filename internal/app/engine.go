/**
 * @description
 * This file contains the transfer engine: the single component allowed to move
 * money. It executes one movement request as an all-or-nothing operation,
 * keeps account balances consistent with the movement ledger, and drives the
 * movement state machine (received -> validated -> applied -> completed, with
 * rejected as the pre-apply failure exit).
 *
 * Key properties:
 * - Idempotency: a client key maps to exactly one movement, applied at most once.
 * - Authorization: every call carries an explicit actor; the engine re-validates
 *   source account ownership instead of trusting the caller.
 * - Post-apply side effects (notification dispatch) never fail or roll back a
 *   movement whose financial effect already landed; they raise operator alerts.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For movement ids.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/lumenbank/banking-service/internal/domain"
	"github.com/lumenbank/banking-service/internal/store"
)

var (
	ErrSameAccountTransfer  = errors.New("source and destination accounts must differ")
	ErrMissingSource        = errors.New("movement kind requires a source account")
	ErrMissingDestination   = errors.New("movement kind requires a destination account")
	ErrNotAccountOwner      = errors.New("account is not owned by the requesting user")
	ErrVerificationRequired = errors.New("identity verification required for this amount")
	ErrAdminOnly            = errors.New("operation requires the admin role")
)

// Notifier delivers movement outcomes to interested parties. Implementations
// are fire-and-forget: a delivery failure must never propagate back into the
// movement's outcome.
type Notifier interface {
	MovementCompleted(ctx context.Context, movement *domain.Movement, ownerID uuid.UUID) error
	MovementRejected(ctx context.Context, movement *domain.Movement, ownerID uuid.UUID, reason string) error
	AdminLargeMovement(ctx context.Context, movement *domain.Movement) error
}

// ProjectionInvalidator lets the engine nudge the read projection after a
// balance change so dashboards converge quickly instead of waiting out the TTL.
type ProjectionInvalidator interface {
	Invalidate(ctx context.Context, accountIDs ...uuid.UUID)
}

// Engine executes movements against the ledger store.
type Engine struct {
	repo                store.Repository
	notifier            Notifier
	projection          ProjectionInvalidator
	adminAlertThreshold int64 // cents; 0 disables admin notifications
	unverifiedLimit     int64 // cents; movements above this require a completed verification case
}

// NewEngine creates a transfer engine.
func NewEngine(repo store.Repository, notifier Notifier, projection ProjectionInvalidator, adminAlertThreshold, unverifiedLimit int64) *Engine {
	return &Engine{
		repo:                repo,
		notifier:            notifier,
		projection:          projection,
		adminAlertThreshold: adminAlertThreshold,
		unverifiedLimit:     unverifiedLimit,
	}
}

// Execute runs one movement request through the full state machine and returns
// the persisted movement. Re-submitting an idempotency key returns the original
// movement without re-applying; a key reuse with a different amount returns the
// original and records an idempotency-conflict alert for the back office.
func (e *Engine) Execute(ctx context.Context, actor domain.Actor, req domain.MovementRequest) (*domain.Movement, error) {
	// 1. Idempotency pre-check. The authoritative check is the unique key
	// constraint inside the apply transaction; this read answers retries
	// without taking any locks.
	existing, err := e.repo.FindMovementByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil && !errors.Is(err, store.ErrMovementNotFound) {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		return e.resolveReplay(ctx, existing, req)
	}

	// 2. Validate request shape and authorization. Business failures are
	// recorded as rejected movements so the audit ledger captures the attempt;
	// an empty reason marks an infrastructure failure, which must not reserve
	// the key.
	if reason, err := e.validate(ctx, actor, req); err != nil {
		if reason == "" {
			return nil, err
		}
		return e.reject(ctx, actor, req, reason, err)
	}

	// 3. Apply. The store locks accounts in a fixed order, re-validates status
	// and balance under those locks, and commits every leg or none.
	movement := &domain.Movement{
		ID:                   uuid.New(),
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		Amount:               req.Amount,
		Kind:                 req.Kind,
		Memo:                 req.Memo,
		IdempotencyKey:       req.IdempotencyKey,
		InitiatedBy:          actor.UserID,
	}
	outcome, err := e.repo.ApplyMovement(ctx, movement)
	if err != nil {
		if outcome != nil && outcome.Movement != nil {
			// Business-rule rejection decided under lock. The movement row is
			// already terminal; report the outcome to the owner.
			applied := outcome.Movement
			reason := "movement rejected"
			if applied.RejectionReason != nil {
				reason = *applied.RejectionReason
			}
			e.dispatchRejected(ctx, applied, actor.UserID, reason)
			return applied, err
		}
		// Infrastructure failure: nothing persisted, the key is free. Safe to
		// retry with the same idempotency key.
		return nil, fmt.Errorf("apply movement: %w", err)
	}
	if outcome.Replayed {
		return e.resolveReplay(ctx, outcome.Movement, req)
	}
	applied := outcome.Movement

	// 4. Record & notify. The financial effect is committed; from here on
	// failures alert operators instead of unwinding balances. External
	// movements are still in pending_settlement here; their completion
	// notification goes out from Settle once the rail confirms.
	e.invalidateProjection(ctx, applied)
	if applied.State == domain.MovementStateCompleted {
		e.dispatchCompleted(ctx, applied, actor.UserID)
	}

	return applied, nil
}

// resolveReplay answers a retried idempotency key. The stored movement is
// returned unchanged; a mismatched amount is treated as a client bug and
// flagged, never executed.
func (e *Engine) resolveReplay(ctx context.Context, existing *domain.Movement, req domain.MovementRequest) (*domain.Movement, error) {
	if existing.Amount != req.Amount {
		log.Printf("level=warn component=engine msg=\"idempotency key reused with different amount\" movement_id=%s key=%s stored_amount=%d request_amount=%d",
			existing.ID, existing.IdempotencyKey, existing.Amount, req.Amount)
		alert := &domain.OperatorAlert{
			ID:         uuid.New(),
			Kind:       domain.AlertIdempotencyConflict,
			MovementID: &existing.ID,
			Detail:     fmt.Sprintf("idempotency key %q replayed with amount %d, original %d", existing.IdempotencyKey, req.Amount, existing.Amount),
		}
		if err := e.repo.CreateOperatorAlert(ctx, alert); err != nil {
			log.Printf("level=error component=engine msg=\"operator alert write failed\" kind=%s err=%v", alert.Kind, err)
		}
	}
	return existing, nil
}

// validate applies every pre-lock business rule. It returns a user-facing
// reason alongside the sentinel error.
func (e *Engine) validate(ctx context.Context, actor domain.Actor, req domain.MovementRequest) (string, error) {
	if req.Amount <= 0 {
		return "amount must be greater than zero", domain.ErrAmountNotPositive
	}

	switch req.Kind {
	case domain.MovementKindInternal:
		if req.SourceAccountID == nil {
			return "internal transfer requires a source account", ErrMissingSource
		}
		if req.DestinationAccountID == nil {
			return "internal transfer requires a destination account", ErrMissingDestination
		}
		if *req.SourceAccountID == *req.DestinationAccountID {
			return "source and destination accounts must differ", ErrSameAccountTransfer
		}
	case domain.MovementKindDeposit:
		if req.DestinationAccountID == nil {
			return "deposit requires a destination account", ErrMissingDestination
		}
	case domain.MovementKindWithdrawal, domain.MovementKindCardSettlement:
		if req.SourceAccountID == nil {
			return "withdrawal requires a source account", ErrMissingSource
		}
	case domain.MovementKindAdminAdjustment:
		if actor.Role != domain.RoleAdmin {
			return "admin adjustment requires the admin role", ErrAdminOnly
		}
		if req.SourceAccountID == nil && req.DestinationAccountID == nil {
			return "adjustment requires at least one account", ErrMissingDestination
		}
	default:
		return "unknown movement kind", fmt.Errorf("unknown movement kind %q", req.Kind)
	}

	// The engine trusts the authenticated identity but not the claimed account:
	// debits require that the actor owns the source account.
	if req.SourceAccountID != nil && actor.Role != domain.RoleAdmin {
		account, err := e.repo.GetAccount(ctx, *req.SourceAccountID)
		if err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				return "source account not found", err
			}
			return "", fmt.Errorf("load source account: %w", err)
		}
		if account.OwnerID != actor.UserID {
			return "source account is not owned by the requesting user", ErrNotAccountOwner
		}
	}

	// Large movements require a completed verification case unless an admin
	// is acting.
	if e.unverifiedLimit > 0 && req.Amount > e.unverifiedLimit && actor.Role != domain.RoleAdmin {
		verificationCase, err := e.repo.GetVerificationCase(ctx, actor.UserID)
		if err != nil {
			return "", fmt.Errorf("load verification case: %w", err)
		}
		if verificationCase.Status() != domain.VerificationCompleted {
			return "identity verification required for this amount", ErrVerificationRequired
		}
	}

	return "", nil
}

// reject records a pre-apply rejection and notifies the requesting user. The
// idempotency key stays reserved so a retry gets the same decision.
func (e *Engine) reject(ctx context.Context, actor domain.Actor, req domain.MovementRequest, reason string, cause error) (*domain.Movement, error) {
	movement := &domain.Movement{
		ID:                   uuid.New(),
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		Amount:               req.Amount,
		Kind:                 req.Kind,
		State:                domain.MovementStateRejected,
		RejectionReason:      &reason,
		Memo:                 req.Memo,
		IdempotencyKey:       req.IdempotencyKey,
		InitiatedBy:          actor.UserID,
	}
	recorded, err := e.repo.RecordRejectedMovement(ctx, movement)
	if err != nil {
		log.Printf("level=error component=engine msg=\"rejected movement write failed\" key=%s err=%v", req.IdempotencyKey, err)
		return nil, cause
	}
	e.dispatchRejected(ctx, recorded, actor.UserID, reason)
	return recorded, cause
}

// ExecuteCardSettlement debits a card's account for a transaction captured by
// the card network. The card must be activated; the movement runs on behalf of
// the card holder and follows the external-rail path through
// pending_settlement.
func (e *Engine) ExecuteCardSettlement(ctx context.Context, cardID uuid.UUID, req domain.MovementRequest) (*domain.Movement, error) {
	card, err := e.repo.FindCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.Status != domain.CardStatusActive {
		return nil, fmt.Errorf("card %s: %w", cardID, store.ErrCardNotActive)
	}
	req.Kind = domain.MovementKindCardSettlement
	req.SourceAccountID = &card.AccountID
	actor := domain.Actor{UserID: card.OwnerID, Role: domain.RoleUser}
	return e.Execute(ctx, actor, req)
}

// Settle completes a movement waiting on its external rail. Balances were
// applied when the movement entered pending_settlement; only the state advances
// and the completion notification goes out.
func (e *Engine) Settle(ctx context.Context, movementID uuid.UUID) (*domain.Movement, error) {
	settled, err := e.repo.CompleteSettlement(ctx, movementID)
	if err != nil {
		return nil, err
	}
	e.dispatchCompleted(ctx, settled, settled.InitiatedBy)
	return settled, nil
}

// dispatchCompleted publishes the outcome to the owning user and, above the
// configured threshold, to administrators. Dispatch failures raise a
// reversal-required alert for operator follow-up; the movement stays completed
// because an automatic reversal could race further activity on the account.
func (e *Engine) dispatchCompleted(ctx context.Context, movement *domain.Movement, ownerID uuid.UUID) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.MovementCompleted(ctx, movement, ownerID); err != nil {
		e.raiseReversalAlert(ctx, movement, err)
	}
	if e.adminAlertThreshold > 0 && movement.Amount >= e.adminAlertThreshold {
		if err := e.notifier.AdminLargeMovement(ctx, movement); err != nil {
			log.Printf("level=warn component=engine msg=\"admin notification failed\" movement_id=%s err=%v", movement.ID, err)
		}
	}
}

func (e *Engine) dispatchRejected(ctx context.Context, movement *domain.Movement, ownerID uuid.UUID, reason string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.MovementRejected(ctx, movement, ownerID, reason); err != nil {
		log.Printf("level=warn component=engine msg=\"rejection notification failed\" movement_id=%s err=%v", movement.ID, err)
	}
}

func (e *Engine) raiseReversalAlert(ctx context.Context, movement *domain.Movement, cause error) {
	log.Printf("level=error component=engine msg=\"post-apply notification failed\" movement_id=%s err=%v", movement.ID, cause)
	alert := &domain.OperatorAlert{
		ID:         uuid.New(),
		Kind:       domain.AlertReversalRequired,
		MovementID: &movement.ID,
		Detail:     fmt.Sprintf("notification dispatch failed after apply: %v", cause),
	}
	if err := e.repo.CreateOperatorAlert(ctx, alert); err != nil {
		log.Printf("level=error component=engine msg=\"operator alert write failed\" kind=%s movement_id=%s err=%v", alert.Kind, movement.ID, err)
	}
}

func (e *Engine) invalidateProjection(ctx context.Context, movement *domain.Movement) {
	if e.projection == nil {
		return
	}
	if ids := movement.AccountIDs(); len(ids) > 0 {
		e.projection.Invalidate(ctx, ids...)
	}
}
