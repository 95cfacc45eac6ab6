/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL needed for accounts, movements, cards, verification
 * state and operator alerts, including the atomic movement-apply transaction that
 * keeps balances consistent with the movement ledger.
 *
 * @dependencies
 * - context, errors, fmt, sort, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lumenbank/banking-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, owner_id, kind, balance, status, routing_number, account_number, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID, &account.OwnerID, &account.Kind, &account.Balance, &account.Status,
		&account.RoutingNumber, &account.AccountNumber, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetAccount retrieves a single account by id.
func (r *PostgresRepository) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, accountID))
}

// GetBalance retrieves only the balance of an account.
func (r *PostgresRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

// ListAccountsByOwner retrieves all accounts owned by a user.
func (r *PostgresRepository) ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// CreateAccount inserts a new account row. Used by the account-opening consumer
// and the sandbox seeder, never by the transfer engine.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, owner_id, kind, balance, status, routing_number, account_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		account.ID, account.OwnerID, account.Kind, account.Balance, account.Status,
		account.RoutingNumber, account.AccountNumber,
	)
	return err
}

const movementColumns = `id, source_account_id, destination_account_id, amount, kind, state, rejection_reason, memo, idempotency_key, initiated_by, created_at, completed_at`

func scanMovement(row pgx.Row) (*domain.Movement, error) {
	var m domain.Movement
	err := row.Scan(
		&m.ID, &m.SourceAccountID, &m.DestinationAccountID, &m.Amount, &m.Kind, &m.State,
		&m.RejectionReason, &m.Memo, &m.IdempotencyKey, &m.InitiatedBy, &m.CreatedAt, &m.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMovementNotFound
		}
		return nil, err
	}
	return &m, nil
}

// FindMovementByIdempotencyKey retrieves the movement reserved under a client key.
func (r *PostgresRepository) FindMovementByIdempotencyKey(ctx context.Context, key string) (*domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE idempotency_key = $1`
	return scanMovement(r.db.QueryRow(ctx, query, key))
}

// FindMovementByID retrieves a movement by its id.
func (r *PostgresRepository) FindMovementByID(ctx context.Context, movementID uuid.UUID) (*domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE id = $1`
	return scanMovement(r.db.QueryRow(ctx, query, movementID))
}

// ListMovementsByAccount retrieves an account's movement history, newest first.
func (r *PostgresRepository) ListMovementsByAccount(ctx context.Context, accountID uuid.UUID, opts domain.MovementListOptions) ([]domain.Movement, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + movementColumns + `
		FROM movements
		WHERE source_account_id = $1 OR destination_account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []domain.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, *m)
	}
	return movements, rows.Err()
}

// lockedAccount is the subset of account state read under FOR UPDATE.
type lockedAccount struct {
	id      uuid.UUID
	kind    domain.AccountKind
	status  domain.AccountStatus
	balance int64
}

// ApplyMovement reserves the idempotency key, row-locks every involved account
// in ascending id order, re-validates status and balance against the locked
// rows, and applies every leg of the movement in a single transaction. Business
// rule failures persist the movement as rejected (the key stays reserved so a
// retry sees a deterministic answer) and return the matching sentinel error;
// infrastructure failures roll back entirely so a retry with the same key is
// safe.
func (r *PostgresRepository) ApplyMovement(ctx context.Context, movement *domain.Movement) (*ApplyOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin movement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO movements (id, source_account_id, destination_account_id, amount, kind, state, memo, idempotency_key, initiated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	inserted, err := tx.Exec(ctx, insertQuery,
		movement.ID, movement.SourceAccountID, movement.DestinationAccountID, movement.Amount,
		movement.Kind, domain.MovementStateReceived, movement.Memo, movement.IdempotencyKey, movement.InitiatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if inserted.RowsAffected() == 0 {
		// Lost the key race (or a retry): return the winner's row untouched.
		existing, err := scanMovement(tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements WHERE idempotency_key = $1`, movement.IdempotencyKey))
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return &ApplyOutcome{Movement: existing, Replayed: true}, nil
	}

	// Lock involved accounts in a fixed global order so two movements touching
	// the same pair can never deadlock.
	ids := make([]uuid.UUID, 0, 2)
	if movement.SourceAccountID != nil {
		ids = append(ids, *movement.SourceAccountID)
	}
	if movement.DestinationAccountID != nil {
		ids = append(ids, *movement.DestinationAccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	locked := make(map[uuid.UUID]*lockedAccount, len(ids))
	for _, id := range ids {
		var acc lockedAccount
		err := tx.QueryRow(ctx, `SELECT id, kind, status, balance FROM accounts WHERE id = $1 FOR UPDATE`, id).
			Scan(&acc.id, &acc.kind, &acc.status, &acc.balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.rejectInTx(ctx, tx, movement, "account not found", ErrAccountNotFound)
			}
			return nil, err
		}
		locked[id] = &acc
	}

	if movement.SourceAccountID != nil {
		src := locked[*movement.SourceAccountID]
		if src.status != domain.AccountStatusActive {
			return r.rejectInTx(ctx, tx, movement, "source account is not active", ErrAccountNotActive)
		}
		if src.balance-movement.Amount < 0 && !src.kind.AllowsOverdraft() {
			return r.rejectInTx(ctx, tx, movement, "insufficient funds", ErrInsufficientFunds)
		}
	}
	if movement.DestinationAccountID != nil {
		dst := locked[*movement.DestinationAccountID]
		if dst.status != domain.AccountStatusActive {
			return r.rejectInTx(ctx, tx, movement, "destination account is not active", ErrAccountNotActive)
		}
	}

	if movement.SourceAccountID != nil {
		if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance - $1, updated_at = NOW() WHERE id = $2`, movement.Amount, *movement.SourceAccountID); err != nil {
			return nil, fmt.Errorf("debit source: %w", err)
		}
	}
	if movement.DestinationAccountID != nil {
		if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2`, movement.Amount, *movement.DestinationAccountID); err != nil {
			return nil, fmt.Errorf("credit destination: %w", err)
		}
	}

	finalState := domain.MovementStateCompleted
	if movement.Kind.External() {
		finalState = domain.MovementStatePendingSettlement
	}
	finalizeQuery := `
		UPDATE movements
		SET state = $2, completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE NULL END
		WHERE id = $1
		RETURNING ` + movementColumns
	applied, err := scanMovement(tx.QueryRow(ctx, finalizeQuery, movement.ID, finalState))
	if err != nil {
		return nil, fmt.Errorf("finalize movement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &ApplyOutcome{Movement: applied}, nil
}

// rejectInTx persists the movement as rejected with a reason and commits, so
// the audit ledger records the attempt and retries of the same key see the
// same answer. No account row is modified on this path.
func (r *PostgresRepository) rejectInTx(ctx context.Context, tx pgx.Tx, movement *domain.Movement, reason string, cause error) (*ApplyOutcome, error) {
	query := `
		UPDATE movements
		SET state = $2, rejection_reason = $3
		WHERE id = $1
		RETURNING ` + movementColumns
	rejected, err := scanMovement(tx.QueryRow(ctx, query, movement.ID, domain.MovementStateRejected, reason))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &ApplyOutcome{Movement: rejected}, cause
}

// RecordRejectedMovement persists a movement the engine rejected before the
// apply transaction (ownership, shape or limit failures). The idempotency key
// is still reserved so retries return the original decision.
func (r *PostgresRepository) RecordRejectedMovement(ctx context.Context, movement *domain.Movement) (*domain.Movement, error) {
	query := `
		INSERT INTO movements (id, source_account_id, destination_account_id, amount, kind, state, rejection_reason, memo, idempotency_key, initiated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query,
		movement.ID, movement.SourceAccountID, movement.DestinationAccountID, movement.Amount,
		movement.Kind, domain.MovementStateRejected, movement.RejectionReason, movement.Memo,
		movement.IdempotencyKey, movement.InitiatedBy,
	)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected() == 0 {
		return r.FindMovementByIdempotencyKey(ctx, movement.IdempotencyKey)
	}
	return r.FindMovementByID(ctx, movement.ID)
}

// FindMovementsPendingSettlement retrieves external movements that have waited
// in pending_settlement at least olderThan, oldest first.
func (r *PostgresRepository) FindMovementsPendingSettlement(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Movement, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + movementColumns + `
		FROM movements
		WHERE state = 'pending_settlement' AND created_at <= NOW() - ($1 * INTERVAL '1 second')
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, int(olderThan.Seconds()), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []domain.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, *m)
	}
	return movements, rows.Err()
}

// CompleteSettlement transitions a pending_settlement movement to completed.
// The balance was already applied; only the state advances.
func (r *PostgresRepository) CompleteSettlement(ctx context.Context, movementID uuid.UUID) (*domain.Movement, error) {
	query := `
		UPDATE movements
		SET state = 'completed', completed_at = NOW()
		WHERE id = $1 AND state = 'pending_settlement'
		RETURNING ` + movementColumns
	m, err := scanMovement(r.db.QueryRow(ctx, query, movementID))
	if err != nil {
		if errors.Is(err, ErrMovementNotFound) {
			return nil, ErrMovementNotSettling
		}
		return nil, err
	}
	return m, nil
}

// IssueCard inserts a card for an account unless one already exists. The unique
// constraint on account_id makes issuance idempotent under concurrency; the
// boolean result reports whether this call created the card.
func (r *PostgresRepository) IssueCard(ctx context.Context, card *domain.Card) (*domain.Card, bool, error) {
	insertQuery := `
		INSERT INTO cards (id, account_id, owner_id, network, pan_last4, expiry_month, expiry_year, activated, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, insertQuery,
		card.ID, card.AccountID, card.OwnerID, card.Network, card.PanLast4,
		card.ExpiryMonth, card.ExpiryYear, card.Activated, card.Status,
	)
	if err != nil {
		return nil, false, err
	}

	query := `
		SELECT id, account_id, owner_id, network, pan_last4, expiry_month, expiry_year, activated, status, created_at
		FROM cards WHERE account_id = $1
	`
	var existing domain.Card
	err = r.db.QueryRow(ctx, query, card.AccountID).Scan(
		&existing.ID, &existing.AccountID, &existing.OwnerID, &existing.Network, &existing.PanLast4,
		&existing.ExpiryMonth, &existing.ExpiryYear, &existing.Activated, &existing.Status, &existing.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}
	return &existing, result.RowsAffected() == 1, nil
}

// FindCard retrieves one card by id.
func (r *PostgresRepository) FindCard(ctx context.Context, cardID uuid.UUID) (*domain.Card, error) {
	query := `
		SELECT id, account_id, owner_id, network, pan_last4, expiry_month, expiry_year, activated, status, created_at
		FROM cards WHERE id = $1
	`
	var c domain.Card
	err := r.db.QueryRow(ctx, query, cardID).Scan(
		&c.ID, &c.AccountID, &c.OwnerID, &c.Network, &c.PanLast4,
		&c.ExpiryMonth, &c.ExpiryYear, &c.Activated, &c.Status, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ActivateCard flips a pending card to active. Activating an already active
// card is a no-op; a blocked card stays blocked.
func (r *PostgresRepository) ActivateCard(ctx context.Context, cardID uuid.UUID) (*domain.Card, error) {
	query := `
		UPDATE cards
		SET activated = TRUE, status = 'active'
		WHERE id = $1 AND status IN ('pending', 'active')
		RETURNING id, account_id, owner_id, network, pan_last4, expiry_month, expiry_year, activated, status, created_at
	`
	var c domain.Card
	err := r.db.QueryRow(ctx, query, cardID).Scan(
		&c.ID, &c.AccountID, &c.OwnerID, &c.Network, &c.PanLast4,
		&c.ExpiryMonth, &c.ExpiryYear, &c.Activated, &c.Status, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotActive
		}
		return nil, err
	}
	return &c, nil
}

// FindCardsByAccount retrieves the cards bound to an account.
func (r *PostgresRepository) FindCardsByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Card, error) {
	query := `
		SELECT id, account_id, owner_id, network, pan_last4, expiry_month, expiry_year, activated, status, created_at
		FROM cards WHERE account_id = $1 ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var c domain.Card
		err := rows.Scan(
			&c.ID, &c.AccountID, &c.OwnerID, &c.Network, &c.PanLast4,
			&c.ExpiryMonth, &c.ExpiryYear, &c.Activated, &c.Status, &c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// GetVerificationCase retrieves a user's verification steps in provider order.
// A user the provider has never reported on gets an empty case, which derives
// to not_started.
func (r *PostgresRepository) GetVerificationCase(ctx context.Context, userID uuid.UUID) (*domain.VerificationCase, error) {
	query := `
		SELECT step_id, required, status, updated_at
		FROM verification_steps
		WHERE user_id = $1
		ORDER BY position
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	verificationCase := &domain.VerificationCase{UserID: userID}
	for rows.Next() {
		var step domain.VerificationStep
		if err := rows.Scan(&step.ID, &step.Required, &step.Status, &step.UpdatedAt); err != nil {
			return nil, err
		}
		verificationCase.Steps = append(verificationCase.Steps, step)
	}
	return verificationCase, rows.Err()
}

// UpsertVerificationStep records a step status reported by the verification
// provider, creating the step on first report.
func (r *PostgresRepository) UpsertVerificationStep(ctx context.Context, userID uuid.UUID, step domain.VerificationStep) error {
	query := `
		INSERT INTO verification_steps (user_id, step_id, required, status, position, updated_at)
		VALUES ($1, $2, $3, $4, COALESCE((SELECT MAX(position) + 1 FROM verification_steps WHERE user_id = $1), 0), NOW())
		ON CONFLICT (user_id, step_id)
		DO UPDATE SET status = EXCLUDED.status, required = EXCLUDED.required, updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, userID, step.ID, step.Required, step.Status)
	return err
}

// CreateOperatorAlert appends a back-office alert.
func (r *PostgresRepository) CreateOperatorAlert(ctx context.Context, alert *domain.OperatorAlert) error {
	query := `
		INSERT INTO operator_alerts (id, kind, movement_id, detail)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, alert.ID, alert.Kind, alert.MovementID, alert.Detail)
	return err
}
