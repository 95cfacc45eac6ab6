/**
 * @description
 * This file contains the non-movement business logic of the banking core:
 * account queries, movement history, idempotent card issuance and
 * identity-verification state. Balance mutation lives exclusively in the
 * transfer engine; everything here is read-side or lifecycle bookkeeping.
 *
 * @dependencies
 * - context, crypto/rand, errors, fmt, time: Standard Go libraries.
 * - github.com/google/uuid: For identifiers.
 * - internal/domain, internal/store: Domain models and data access.
 */

package app

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lumenbank/banking-service/internal/domain"
	"github.com/lumenbank/banking-service/internal/store"
)

var ErrForbidden = errors.New("account is not accessible to the requesting user")

// Service provides account, card and verification operations.
type Service struct {
	repo       store.Repository
	projection *Projection
}

// NewService creates a new service instance. projection may be nil, in which
// case balance reads go straight to the repository.
func NewService(repo store.Repository, projection *Projection) *Service {
	return &Service{repo: repo, projection: projection}
}

// authorizeAccount loads an account and checks the actor may read it. Admins
// may read any account; users only their own.
func (s *Service) authorizeAccount(ctx context.Context, actor domain.Actor, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin && account.OwnerID != actor.UserID {
		return nil, ErrForbidden
	}
	return account, nil
}

// ListAccounts returns the actor's accounts.
func (s *Service) ListAccounts(ctx context.Context, actor domain.Actor) ([]domain.Account, error) {
	return s.repo.ListAccountsByOwner(ctx, actor.UserID)
}

// GetAccount returns one account after an ownership check.
func (s *Service) GetAccount(ctx context.Context, actor domain.Actor, accountID uuid.UUID) (*domain.Account, error) {
	return s.authorizeAccount(ctx, actor, accountID)
}

// GetBalance returns the display balance for an account, served from the read
// projection when one is configured.
func (s *Service) GetBalance(ctx context.Context, actor domain.Actor, accountID uuid.UUID) (*domain.AccountBalance, error) {
	if _, err := s.authorizeAccount(ctx, actor, accountID); err != nil {
		return nil, err
	}
	if s.projection != nil {
		return s.projection.Balance(ctx, accountID)
	}
	balance, err := s.repo.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.AccountBalance{AccountID: accountID, AvailableBalance: balance, AsOf: time.Now().UTC()}, nil
}

// ListMovements returns an account's movement history, newest first.
func (s *Service) ListMovements(ctx context.Context, actor domain.Actor, accountID uuid.UUID, opts domain.MovementListOptions) ([]domain.Movement, error) {
	if _, err := s.authorizeAccount(ctx, actor, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListMovementsByAccount(ctx, accountID, opts)
}

// IssueCard issues the account's card if it does not have one yet. Issuance is
// idempotent: repeated calls, including concurrent ones, converge on a single
// card row. The full PAN never exists in this service; only display fields are
// generated here.
func (s *Service) IssueCard(ctx context.Context, actor domain.Actor, accountID uuid.UUID, network domain.CardNetwork) (*domain.Card, error) {
	account, err := s.authorizeAccount(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	if account.Status == domain.AccountStatusClosed {
		return nil, store.ErrAccountNotActive
	}

	switch network {
	case domain.CardNetworkVisa, domain.CardNetworkMastercard, domain.CardNetworkAmex, domain.CardNetworkDiscover:
	case "":
		network = domain.CardNetworkVisa
	default:
		return nil, &ValidationError{Field: "network", Reason: "is not a recognized card network"}
	}

	now := time.Now().UTC()
	card := &domain.Card{
		ID:          uuid.New(),
		AccountID:   account.ID,
		OwnerID:     account.OwnerID,
		Network:     network,
		PanLast4:    randomLast4(),
		ExpiryMonth: int(now.Month()),
		ExpiryYear:  now.Year() + 4,
		Activated:   false,
		Status:      domain.CardStatusPending,
	}
	issued, created, err := s.repo.IssueCard(ctx, card)
	if err != nil {
		return nil, fmt.Errorf("issue card: %w", err)
	}
	if !created {
		log.Printf("level=info component=service msg=\"card issuance replayed; existing card returned\" account_id=%s card_id=%s", account.ID, issued.ID)
	}
	return issued, nil
}

// ActivateCard marks a pending card as activated by its holder, making it
// eligible for settlement. Re-activating an active card is a no-op; blocked
// cards cannot be reactivated through this path.
func (s *Service) ActivateCard(ctx context.Context, actor domain.Actor, accountID, cardID uuid.UUID) (*domain.Card, error) {
	if _, err := s.authorizeAccount(ctx, actor, accountID); err != nil {
		return nil, err
	}
	card, err := s.repo.FindCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.AccountID != accountID {
		return nil, store.ErrCardNotFound
	}
	if card.Status == domain.CardStatusBlocked {
		return nil, store.ErrCardNotActive
	}
	return s.repo.ActivateCard(ctx, cardID)
}

// ListCards returns the cards bound to an account.
func (s *Service) ListCards(ctx context.Context, actor domain.Actor, accountID uuid.UUID) ([]domain.Card, error) {
	if _, err := s.authorizeAccount(ctx, actor, accountID); err != nil {
		return nil, err
	}
	return s.repo.FindCardsByAccount(ctx, accountID)
}

// GetVerificationCase returns the actor's verification case; the derived
// overall status gates higher transfer limits in the engine.
func (s *Service) GetVerificationCase(ctx context.Context, actor domain.Actor) (*domain.VerificationCase, error) {
	return s.repo.GetVerificationCase(ctx, actor.UserID)
}

// RecordVerificationStep stores a step update reported by the external
// verification provider.
func (s *Service) RecordVerificationStep(ctx context.Context, userID uuid.UUID, step domain.VerificationStep) error {
	switch step.Status {
	case domain.VerificationStepPending, domain.VerificationStepInProgress,
		domain.VerificationStepCompleted, domain.VerificationStepFailed:
	default:
		return &ValidationError{Field: "status", Reason: "is not a recognized step status"}
	}
	if step.ID == "" {
		return &ValidationError{Field: "step_id", Reason: "is required"}
	}
	return s.repo.UpsertVerificationStep(ctx, userID, step)
}

func randomLast4() string {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// rand.Read failing means the platform RNG is broken; a fixed suffix
		// is still only a display field.
		return "0000"
	}
	return fmt.Sprintf("%04d", binary.BigEndian.Uint16(buf[:])%10000)
}
