/**
 * @description
 * This file defines the `Repository` interface: the contract for every data
 * access operation the banking core needs. The interface decouples business
 * logic from PostgreSQL so the engine and services can be tested against stub
 * and in-memory implementations.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For identifier handling.
 * - internal/domain: The service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lumenbank/banking-service/internal/domain"
)

// ApplyOutcome reports what the atomic apply did with a movement request.
type ApplyOutcome struct {
	// Movement is the persisted row, either freshly applied or the pre-existing
	// row matched by idempotency key.
	Movement *domain.Movement
	// Replayed is true when the idempotency key already existed and no balance
	// was touched by this call.
	Replayed bool
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Accounts
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
	ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) error

	// Movements. ApplyMovement executes validation and balance mutation as one
	// atomic unit: accounts are row-locked in ascending id order, balances are
	// re-validated against the locked rows, and either every leg commits or
	// none does. The movement row is inserted in the same transaction, so a
	// duplicate idempotency key can never double-apply.
	ApplyMovement(ctx context.Context, movement *domain.Movement) (*ApplyOutcome, error)
	FindMovementByIdempotencyKey(ctx context.Context, key string) (*domain.Movement, error)
	FindMovementByID(ctx context.Context, movementID uuid.UUID) (*domain.Movement, error)
	ListMovementsByAccount(ctx context.Context, accountID uuid.UUID, opts domain.MovementListOptions) ([]domain.Movement, error)
	RecordRejectedMovement(ctx context.Context, movement *domain.Movement) (*domain.Movement, error)
	FindMovementsPendingSettlement(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Movement, error)
	CompleteSettlement(ctx context.Context, movementID uuid.UUID) (*domain.Movement, error)

	// Cards
	IssueCard(ctx context.Context, card *domain.Card) (*domain.Card, bool, error)
	FindCard(ctx context.Context, cardID uuid.UUID) (*domain.Card, error)
	FindCardsByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Card, error)
	ActivateCard(ctx context.Context, cardID uuid.UUID) (*domain.Card, error)

	// Verification
	GetVerificationCase(ctx context.Context, userID uuid.UUID) (*domain.VerificationCase, error)
	UpsertVerificationStep(ctx context.Context, userID uuid.UUID, step domain.VerificationStep) error

	// Operator alerts
	CreateOperatorAlert(ctx context.Context, alert *domain.OperatorAlert) error
}
