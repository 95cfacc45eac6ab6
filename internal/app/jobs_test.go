package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lumenbank/banking-service/internal/domain"
)

func TestSweeperSettlesElapsedMovements(t *testing.T) {
	repo := newMemoryRepo()
	owner := uuid.New()
	dst := repo.addAccount(owner, domain.AccountKindChecking, 0)
	notifier := &recordingNotifier{}
	engine := newTestEngine(repo, notifier, nil)
	actor := domain.Actor{UserID: owner, Role: domain.RoleUser}

	req := domain.MovementRequest{
		DestinationAccountID: &dst.ID,
		Amount:               2_000,
		Kind:                 domain.MovementKindDeposit,
		IdempotencyKey:       "key-sweep",
	}
	movement, err := engine.Execute(context.Background(), actor, req)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if movement.State != domain.MovementStatePendingSettlement {
		t.Fatalf("expected pending_settlement, got %s", movement.State)
	}

	sweeper := NewSweeper(engine, repo, 0)
	sweeper.Run(context.Background())

	settled, err := repo.FindMovementByID(context.Background(), movement.ID)
	if err != nil {
		t.Fatalf("FindMovementByID returned error: %v", err)
	}
	if settled.State != domain.MovementStateCompleted {
		t.Fatalf("state after sweep = %s, want completed", settled.State)
	}
	if notifier.completedCount() != 1 {
		t.Errorf("expected completion notification from sweep, got %d", notifier.completedCount())
	}

	// A second sweep finds nothing and dispatches nothing.
	sweeper.Run(context.Background())
	if notifier.completedCount() != 1 {
		t.Errorf("second sweep dispatched a duplicate notification")
	}
}

func TestSweeperRespectsSettlementDelay(t *testing.T) {
	repo := newMemoryRepo()
	owner := uuid.New()
	dst := repo.addAccount(owner, domain.AccountKindChecking, 0)
	engine := newTestEngine(repo, &recordingNotifier{}, nil)
	actor := domain.Actor{UserID: owner, Role: domain.RoleUser}

	movement, err := engine.Execute(context.Background(), actor, domain.MovementRequest{
		DestinationAccountID: &dst.ID,
		Amount:               2_000,
		Kind:                 domain.MovementKindDeposit,
		IdempotencyKey:       "key-fresh",
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	sweeper := NewSweeper(engine, repo, time.Hour)
	sweeper.Run(context.Background())

	fresh, err := repo.FindMovementByID(context.Background(), movement.ID)
	if err != nil {
		t.Fatalf("FindMovementByID returned error: %v", err)
	}
	if fresh.State != domain.MovementStatePendingSettlement {
		t.Fatalf("fresh movement swept early: state = %s", fresh.State)
	}
}

// settleFailRepo simulates an external rail that keeps refusing to settle.
type settleFailRepo struct {
	*memoryRepo
}

func (r *settleFailRepo) CompleteSettlement(ctx context.Context, movementID uuid.UUID) (*domain.Movement, error) {
	return nil, errors.New("rail unavailable")
}

func TestSweeperEscalatesStuckMovementsOnce(t *testing.T) {
	inner := newMemoryRepo()
	repo := &settleFailRepo{memoryRepo: inner}
	owner := uuid.New()
	dst := inner.addAccount(owner, domain.AccountKindChecking, 0)

	// A movement stuck in pending_settlement since well past the stale deadline.
	stuck := &domain.Movement{
		ID:                   uuid.New(),
		DestinationAccountID: &dst.ID,
		Amount:               2_000,
		Kind:                 domain.MovementKindDeposit,
		State:                domain.MovementStatePendingSettlement,
		IdempotencyKey:       "key-stuck",
		InitiatedBy:          owner,
		CreatedAt:            time.Now().Add(-StaleTimeout - time.Hour),
	}
	inner.mu.Lock()
	inner.movements[stuck.ID] = stuck
	inner.byKey[stuck.IdempotencyKey] = stuck.ID
	inner.mu.Unlock()

	engine := newTestEngine(repo, &recordingNotifier{}, nil)
	sweeper := NewSweeper(engine, repo, 0)

	sweeper.Run(context.Background())
	alerts := inner.alertsOfKind(domain.AlertSettlementStuck)
	if len(alerts) != 1 {
		t.Fatalf("expected one settlement_stuck alert, got %d", len(alerts))
	}
	if alerts[0].MovementID == nil || *alerts[0].MovementID != stuck.ID {
		t.Errorf("alert references wrong movement: %+v", alerts[0])
	}

	// Repeated sweeps do not pile on more alerts for the same movement.
	sweeper.Run(context.Background())
	if got := len(inner.alertsOfKind(domain.AlertSettlementStuck)); got != 1 {
		t.Fatalf("expected alert to be raised once, got %d", got)
	}
}
