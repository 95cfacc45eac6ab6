package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lumenbank/banking-service/internal/domain"
)

func TestHandleAccountOpenedIssuesFirstCard(t *testing.T) {
	repo := newMemoryRepo()
	owner := uuid.New()
	account := repo.addAccount(owner, domain.AccountKindChecking, 0)
	consumer := NewEventConsumer(NewService(repo, nil), nil)

	body, _ := json.Marshal(domain.AccountOpenedEvent{
		AccountID:  account.ID,
		OwnerID:    owner,
		Kind:       string(domain.AccountKindChecking),
		OccurredAt: time.Now().UTC(),
	})

	if !consumer.handleAccountOpened(body) {
		t.Fatal("handler returned false for a valid event")
	}
	cards, err := repo.FindCardsByAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("FindCardsByAccount returned error: %v", err)
	}
	if len(cards) != 1 {
		t.Fatalf("expected one card after account.opened, got %d", len(cards))
	}

	// Redelivery issues nothing new.
	if !consumer.handleAccountOpened(body) {
		t.Fatal("handler returned false on redelivery")
	}
	cards, _ = repo.FindCardsByAccount(context.Background(), account.ID)
	if len(cards) != 1 {
		t.Fatalf("redelivery created a second card, got %d", len(cards))
	}
}

func TestHandleAccountOpenedDropsGarbage(t *testing.T) {
	repo := newMemoryRepo()
	owner := uuid.New()
	account := repo.addAccount(owner, domain.AccountKindChecking, 0)
	consumer := NewEventConsumer(NewService(repo, nil), nil)

	if !consumer.handleAccountOpened([]byte("not json")) {
		t.Fatal("unparseable events must be acked and dropped, not requeued")
	}

	body, _ := json.Marshal(domain.AccountOpenedEvent{
		AccountID: account.ID,
		OwnerID:   owner,
		Kind:      "mystery",
	})
	if !consumer.handleAccountOpened(body) {
		t.Fatal("events with an unknown account kind must be acked and dropped")
	}
	cards, _ := repo.FindCardsByAccount(context.Background(), account.ID)
	if len(cards) != 0 {
		t.Fatalf("dropped event still issued a card, got %d", len(cards))
	}
}

func TestHandleAccountOpenedRequeuesOnFailure(t *testing.T) {
	repo := newMemoryRepo()
	consumer := NewEventConsumer(NewService(repo, nil), nil)

	// Account does not exist yet; the event should be requeued for retry.
	body, _ := json.Marshal(domain.AccountOpenedEvent{
		AccountID: uuid.New(),
		OwnerID:   uuid.New(),
	})
	if consumer.handleAccountOpened(body) {
		t.Fatal("expected requeue when the account row is not visible yet")
	}
}

func TestHandleMovementEventInvalidatesProjection(t *testing.T) {
	invalidator := &recordingInvalidator{}
	consumer := NewEventConsumer(NewService(newMemoryRepo(), nil), invalidator)

	src := uuid.New()
	dst := uuid.New()
	body, _ := json.Marshal(domain.MovementEvent{
		EventID:              uuid.New(),
		MovementID:           uuid.New(),
		Kind:                 domain.MovementKindInternal,
		State:                domain.MovementStateCompleted,
		SourceAccountID:      &src,
		DestinationAccountID: &dst,
		Amount:               1_000,
	})

	if !consumer.handleMovementEvent(body) {
		t.Fatal("handler returned false for a valid event")
	}
	if len(invalidator.ids) != 2 {
		t.Fatalf("expected both accounts invalidated, got %v", invalidator.ids)
	}
}
