package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/lumenbank/banking-service/internal/domain"
)

// stubPublisher captures published messages and can fail on demand.
type stubPublisher struct {
	events        []domain.MovementEvent
	notifications []domain.NotificationMessage
	failNotify    error
}

func (p *stubPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *stubPublisher) PublishMovementEvent(ctx context.Context, event domain.MovementEvent) error {
	p.events = append(p.events, event)
	return nil
}

func (p *stubPublisher) PublishNotification(ctx context.Context, msg domain.NotificationMessage) error {
	if p.failNotify != nil {
		return p.failNotify
	}
	p.notifications = append(p.notifications, msg)
	return nil
}

func (p *stubPublisher) Close() {}

func TestDispatcherMovementCompleted(t *testing.T) {
	publisher := &stubPublisher{}
	dispatcher := NewDispatcher(publisher, uuid.New())
	owner := uuid.New()
	src := uuid.New()
	movement := &domain.Movement{
		ID:              uuid.New(),
		SourceAccountID: &src,
		Amount:          12345,
		Kind:            domain.MovementKindWithdrawal,
		State:           domain.MovementStateCompleted,
	}

	if err := dispatcher.MovementCompleted(context.Background(), movement, owner); err != nil {
		t.Fatalf("MovementCompleted returned error: %v", err)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one movement event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.MovementID != movement.ID || event.State != domain.MovementStateCompleted || event.OwnerID != owner {
		t.Errorf("movement event fields wrong: %+v", event)
	}
	if len(publisher.notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(publisher.notifications))
	}
	msg := publisher.notifications[0]
	if msg.Recipient != owner || msg.TemplateKind != "movement_completed" {
		t.Errorf("notification fields wrong: %+v", msg)
	}
	if amount, ok := msg.Payload["amount"].(string); !ok || amount != "123.45" {
		t.Errorf("payload amount = %v, want formatted \"123.45\"", msg.Payload["amount"])
	}
}

func TestDispatcherMovementRejectedCarriesReason(t *testing.T) {
	publisher := &stubPublisher{}
	dispatcher := NewDispatcher(publisher, uuid.New())
	owner := uuid.New()
	movement := &domain.Movement{
		ID:     uuid.New(),
		Amount: 500,
		Kind:   domain.MovementKindInternal,
		State:  domain.MovementStateRejected,
	}

	if err := dispatcher.MovementRejected(context.Background(), movement, owner, "insufficient funds"); err != nil {
		t.Fatalf("MovementRejected returned error: %v", err)
	}
	if len(publisher.events) != 1 || publisher.events[0].Reason != "insufficient funds" {
		t.Fatalf("rejection event missing reason: %+v", publisher.events)
	}
	if len(publisher.notifications) != 1 || publisher.notifications[0].Payload["reason"] != "insufficient funds" {
		t.Fatalf("rejection notification missing reason: %+v", publisher.notifications)
	}
}

func TestDispatcherSurfacesPublishFailure(t *testing.T) {
	publisher := &stubPublisher{failNotify: errors.New("broker down")}
	dispatcher := NewDispatcher(publisher, uuid.New())
	movement := &domain.Movement{ID: uuid.New(), Amount: 500, Kind: domain.MovementKindInternal, State: domain.MovementStateCompleted}

	if err := dispatcher.MovementCompleted(context.Background(), movement, uuid.New()); err == nil {
		t.Fatal("expected error when notification publish fails")
	}
}

func TestDispatcherAdminLargeMovementTargetsAdminRecipient(t *testing.T) {
	adminOwner := uuid.New()
	publisher := &stubPublisher{}
	dispatcher := NewDispatcher(publisher, adminOwner)
	movement := &domain.Movement{ID: uuid.New(), Amount: 100_000_00, Kind: domain.MovementKindInternal, State: domain.MovementStateCompleted}

	if err := dispatcher.AdminLargeMovement(context.Background(), movement); err != nil {
		t.Fatalf("AdminLargeMovement returned error: %v", err)
	}
	if len(publisher.notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(publisher.notifications))
	}
	msg := publisher.notifications[0]
	if msg.Recipient != adminOwner || msg.Channel != "email" || msg.TemplateKind != "admin_large_movement" {
		t.Errorf("admin notification fields wrong: %+v", msg)
	}
}
