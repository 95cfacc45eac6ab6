package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumenbank/banking-service/internal/domain"
	"github.com/lumenbank/banking-service/internal/store"
)

// memoryRepo is an in-memory Repository with the same apply semantics as the
// PostgreSQL implementation: one mutex plays the role of the row locks, so the
// idempotency and conservation behavior under concurrency matches production.
type memoryRepo struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]*domain.Account
	movements map[uuid.UUID]*domain.Movement
	byKey     map[string]uuid.UUID
	cards     map[uuid.UUID]*domain.Card // keyed by account id
	steps     map[uuid.UUID][]domain.VerificationStep
	alerts    []domain.OperatorAlert
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts:  make(map[uuid.UUID]*domain.Account),
		movements: make(map[uuid.UUID]*domain.Movement),
		byKey:     make(map[string]uuid.UUID),
		cards:     make(map[uuid.UUID]*domain.Card),
		steps:     make(map[uuid.UUID][]domain.VerificationStep),
	}
}

func (r *memoryRepo) addAccount(owner uuid.UUID, kind domain.AccountKind, balance int64) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	account := &domain.Account{
		ID:      uuid.New(),
		OwnerID: owner,
		Kind:    kind,
		Balance: balance,
		Status:  domain.AccountStatusActive,
	}
	r.accounts[account.ID] = account
	return account
}

func (r *memoryRepo) balance(id uuid.UUID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id].Balance
}

func (r *memoryRepo) totalBalance() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, account := range r.accounts {
		total += account.Balance
	}
	return total
}

func (r *memoryRepo) alertsOfKind(kind domain.OperatorAlertKind) []domain.OperatorAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.OperatorAlert
	for _, alert := range r.alerts {
		if alert.Kind == kind {
			out = append(out, alert)
		}
	}
	return out
}

func (r *memoryRepo) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *memoryRepo) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	return account.Balance, nil
}

func (r *memoryRepo) ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Account
	for _, account := range r.accounts {
		if account.OwnerID == ownerID {
			out = append(out, *account)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreateAccount(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[account.ID]; exists {
		return nil
	}
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *memoryRepo) ApplyMovement(ctx context.Context, movement *domain.Movement) (*store.ApplyOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byKey[movement.IdempotencyKey]; ok {
		copied := *r.movements[existingID]
		return &store.ApplyOutcome{Movement: &copied, Replayed: true}, nil
	}

	stored := *movement
	stored.State = domain.MovementStateReceived
	stored.CreatedAt = time.Now().UTC()
	r.movements[stored.ID] = &stored
	r.byKey[stored.IdempotencyKey] = stored.ID

	rejectLocked := func(reason string, cause error) (*store.ApplyOutcome, error) {
		stored.State = domain.MovementStateRejected
		stored.RejectionReason = &reason
		copied := stored
		return &store.ApplyOutcome{Movement: &copied}, cause
	}

	for _, id := range stored.AccountIDs() {
		if _, ok := r.accounts[id]; !ok {
			return rejectLocked("account not found", store.ErrAccountNotFound)
		}
	}
	if stored.SourceAccountID != nil {
		src := r.accounts[*stored.SourceAccountID]
		if src.Status != domain.AccountStatusActive {
			return rejectLocked("source account is not active", store.ErrAccountNotActive)
		}
		if src.Balance-stored.Amount < 0 && !src.Kind.AllowsOverdraft() {
			return rejectLocked("insufficient funds", store.ErrInsufficientFunds)
		}
	}
	if stored.DestinationAccountID != nil {
		dst := r.accounts[*stored.DestinationAccountID]
		if dst.Status != domain.AccountStatusActive {
			return rejectLocked("destination account is not active", store.ErrAccountNotActive)
		}
	}

	if stored.SourceAccountID != nil {
		r.accounts[*stored.SourceAccountID].Balance -= stored.Amount
	}
	if stored.DestinationAccountID != nil {
		r.accounts[*stored.DestinationAccountID].Balance += stored.Amount
	}

	if stored.Kind.External() {
		stored.State = domain.MovementStatePendingSettlement
	} else {
		stored.State = domain.MovementStateCompleted
		now := time.Now().UTC()
		stored.CompletedAt = &now
	}
	copied := stored
	return &store.ApplyOutcome{Movement: &copied}, nil
}

func (r *memoryRepo) FindMovementByIdempotencyKey(ctx context.Context, key string) (*domain.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, store.ErrMovementNotFound
	}
	copied := *r.movements[id]
	return &copied, nil
}

func (r *memoryRepo) FindMovementByID(ctx context.Context, movementID uuid.UUID) (*domain.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	movement, ok := r.movements[movementID]
	if !ok {
		return nil, store.ErrMovementNotFound
	}
	copied := *movement
	return &copied, nil
}

func (r *memoryRepo) ListMovementsByAccount(ctx context.Context, accountID uuid.UUID, opts domain.MovementListOptions) ([]domain.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Movement
	for _, movement := range r.movements {
		for _, id := range movement.AccountIDs() {
			if id == accountID {
				out = append(out, *movement)
				break
			}
		}
	}
	return out, nil
}

func (r *memoryRepo) RecordRejectedMovement(ctx context.Context, movement *domain.Movement) (*domain.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existingID, ok := r.byKey[movement.IdempotencyKey]; ok {
		copied := *r.movements[existingID]
		return &copied, nil
	}
	stored := *movement
	stored.CreatedAt = time.Now().UTC()
	r.movements[stored.ID] = &stored
	r.byKey[stored.IdempotencyKey] = stored.ID
	copied := stored
	return &copied, nil
}

func (r *memoryRepo) FindMovementsPendingSettlement(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []domain.Movement
	for _, movement := range r.movements {
		if movement.State == domain.MovementStatePendingSettlement && !movement.CreatedAt.After(cutoff) {
			out = append(out, *movement)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memoryRepo) CompleteSettlement(ctx context.Context, movementID uuid.UUID) (*domain.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	movement, ok := r.movements[movementID]
	if !ok || movement.State != domain.MovementStatePendingSettlement {
		return nil, store.ErrMovementNotSettling
	}
	movement.State = domain.MovementStateCompleted
	now := time.Now().UTC()
	movement.CompletedAt = &now
	copied := *movement
	return &copied, nil
}

func (r *memoryRepo) IssueCard(ctx context.Context, card *domain.Card) (*domain.Card, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.cards[card.AccountID]; ok {
		copied := *existing
		return &copied, false, nil
	}
	stored := *card
	stored.CreatedAt = time.Now().UTC()
	r.cards[card.AccountID] = &stored
	copied := stored
	return &copied, true, nil
}

func (r *memoryRepo) FindCard(ctx context.Context, cardID uuid.UUID) (*domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, card := range r.cards {
		if card.ID == cardID {
			copied := *card
			return &copied, nil
		}
	}
	return nil, store.ErrCardNotFound
}

func (r *memoryRepo) ActivateCard(ctx context.Context, cardID uuid.UUID) (*domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, card := range r.cards {
		if card.ID == cardID {
			if card.Status == domain.CardStatusBlocked {
				return nil, store.ErrCardNotActive
			}
			card.Activated = true
			card.Status = domain.CardStatusActive
			copied := *card
			return &copied, nil
		}
	}
	return nil, store.ErrCardNotActive
}

func (r *memoryRepo) FindCardsByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if card, ok := r.cards[accountID]; ok {
		return []domain.Card{*card}, nil
	}
	return nil, nil
}

func (r *memoryRepo) GetVerificationCase(ctx context.Context, userID uuid.UUID) (*domain.VerificationCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	verificationCase := &domain.VerificationCase{UserID: userID}
	verificationCase.Steps = append(verificationCase.Steps, r.steps[userID]...)
	return verificationCase, nil
}

func (r *memoryRepo) UpsertVerificationStep(ctx context.Context, userID uuid.UUID, step domain.VerificationStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := r.steps[userID]
	for i := range steps {
		if steps[i].ID == step.ID {
			steps[i].Status = step.Status
			steps[i].Required = step.Required
			steps[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	step.UpdatedAt = time.Now().UTC()
	r.steps[userID] = append(steps, step)
	return nil
}

func (r *memoryRepo) CreateOperatorAlert(ctx context.Context, alert *domain.OperatorAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *alert
	stored.CreatedAt = time.Now().UTC()
	r.alerts = append(r.alerts, stored)
	return nil
}

// recordingNotifier captures dispatched outcomes and can simulate channel
// failures.
type recordingNotifier struct {
	mu            sync.Mutex
	completed     []uuid.UUID
	rejected      []uuid.UUID
	admin         []uuid.UUID
	failCompleted error
}

func (n *recordingNotifier) MovementCompleted(ctx context.Context, movement *domain.Movement, ownerID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failCompleted != nil {
		return n.failCompleted
	}
	n.completed = append(n.completed, movement.ID)
	return nil
}

func (n *recordingNotifier) MovementRejected(ctx context.Context, movement *domain.Movement, ownerID uuid.UUID, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejected = append(n.rejected, movement.ID)
	return nil
}

func (n *recordingNotifier) AdminLargeMovement(ctx context.Context, movement *domain.Movement) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admin = append(n.admin, movement.ID)
	return nil
}

func (n *recordingNotifier) completedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.completed)
}

// recordingInvalidator captures projection invalidations.
type recordingInvalidator struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (p *recordingInvalidator) Invalidate(ctx context.Context, accountIDs ...uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, accountIDs...)
}
