/**
 * @description
 * This file contains the notification dispatcher: the engine's bridge to the
 * external notification channel. Outcomes are published to the broker as
 * movement events plus per-user notification messages; the notification
 * workers own template rendering, channel fan-out and delivery retries.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For event ids.
 * - pkg/rabbitmq: The event publisher.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lumenbank/banking-service/internal/domain"
	"github.com/lumenbank/banking-service/pkg/rabbitmq"
)

// Dispatcher publishes movement outcomes through the broker. It implements
// Notifier for the engine.
type Dispatcher struct {
	publisher  rabbitmq.Publisher
	adminOwner uuid.UUID // recipient of large-movement admin notifications
}

// NewDispatcher creates a dispatcher over a publisher. adminOwner identifies
// the back-office recipient for large-movement notices.
func NewDispatcher(publisher rabbitmq.Publisher, adminOwner uuid.UUID) *Dispatcher {
	return &Dispatcher{publisher: publisher, adminOwner: adminOwner}
}

// MovementCompleted publishes the lifecycle event and the user-facing
// completion notification. The first error stops the dispatch: the engine
// treats any failure here as grounds for an operator alert.
func (d *Dispatcher) MovementCompleted(ctx context.Context, movement *domain.Movement, ownerID uuid.UUID) error {
	event := movementEvent(movement, ownerID)
	if err := d.publisher.PublishMovementEvent(ctx, event); err != nil {
		return fmt.Errorf("publish movement event: %w", err)
	}
	msg := domain.NotificationMessage{
		Channel:      "push",
		Recipient:    ownerID,
		TemplateKind: "movement_completed",
		Payload: map[string]interface{}{
			"movement_id": movement.ID.String(),
			"kind":        string(movement.Kind),
			"amount":      domain.FormatAmount(movement.Amount),
		},
		OccurredAt: time.Now().UTC(),
	}
	if err := d.publisher.PublishNotification(ctx, msg); err != nil {
		return fmt.Errorf("publish completion notification: %w", err)
	}
	return nil
}

// MovementRejected notifies the requesting user that a movement was declined,
// including the rejection reason.
func (d *Dispatcher) MovementRejected(ctx context.Context, movement *domain.Movement, ownerID uuid.UUID, reason string) error {
	event := movementEvent(movement, ownerID)
	event.Reason = reason
	if err := d.publisher.PublishMovementEvent(ctx, event); err != nil {
		return fmt.Errorf("publish movement event: %w", err)
	}
	msg := domain.NotificationMessage{
		Channel:      "push",
		Recipient:    ownerID,
		TemplateKind: "movement_rejected",
		Payload: map[string]interface{}{
			"movement_id": movement.ID.String(),
			"kind":        string(movement.Kind),
			"amount":      domain.FormatAmount(movement.Amount),
			"reason":      reason,
		},
		OccurredAt: time.Now().UTC(),
	}
	if err := d.publisher.PublishNotification(ctx, msg); err != nil {
		return fmt.Errorf("publish rejection notification: %w", err)
	}
	return nil
}

// AdminLargeMovement sends the back office an email notice for movements at or
// above the configured threshold.
func (d *Dispatcher) AdminLargeMovement(ctx context.Context, movement *domain.Movement) error {
	msg := domain.NotificationMessage{
		Channel:      "email",
		Recipient:    d.adminOwner,
		TemplateKind: "admin_large_movement",
		Payload: map[string]interface{}{
			"movement_id": movement.ID.String(),
			"kind":        string(movement.Kind),
			"amount":      domain.FormatAmount(movement.Amount),
		},
		OccurredAt: time.Now().UTC(),
	}
	if err := d.publisher.PublishNotification(ctx, msg); err != nil {
		return fmt.Errorf("publish admin notification: %w", err)
	}
	return nil
}

func movementEvent(movement *domain.Movement, ownerID uuid.UUID) domain.MovementEvent {
	return domain.MovementEvent{
		EventID:              uuid.New(),
		MovementID:           movement.ID,
		Kind:                 movement.Kind,
		State:                movement.State,
		SourceAccountID:      movement.SourceAccountID,
		DestinationAccountID: movement.DestinationAccountID,
		Amount:               movement.Amount,
		OwnerID:              ownerID,
		OccurredAt:           time.Now().UTC(),
	}
}
