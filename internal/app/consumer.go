/**
 * @description
 * This file contains the broker-facing event handlers. Two concerns live
 * here: auto-issuing a first card when the account-opening collaborator
 * reports a new account, and invalidating the balance projection for
 * movements applied by other service instances.
 *
 * @dependencies
 * - context, encoding/json, log, time: Standard Go libraries.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: The consumer.
 */

package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/lumenbank/banking-service/internal/domain"
	"github.com/lumenbank/banking-service/pkg/rabbitmq"
)

const handlerTimeout = 10 * time.Second

// EventConsumer wires broker events into the application layer.
type EventConsumer struct {
	service    *Service
	projection ProjectionInvalidator
}

// NewEventConsumer creates the event consumer. projection may be nil.
func NewEventConsumer(service *Service, projection ProjectionInvalidator) *EventConsumer {
	return &EventConsumer{service: service, projection: projection}
}

// Start registers the queue bindings and begins consuming in the background.
func (c *EventConsumer) Start(consumer *rabbitmq.Consumer, accountQueue, movementQueue string) error {
	if err := consumer.ConsumeWithBindings(rabbitmq.AccountExchange, accountQueue, map[string]func([]byte) bool{
		"account.opened": c.handleAccountOpened,
	}); err != nil {
		return err
	}
	return consumer.ConsumeWithBindings(rabbitmq.MovementExchange, movementQueue, map[string]func([]byte) bool{
		"movement.completed":          c.handleMovementEvent,
		"movement.pending_settlement": c.handleMovementEvent,
	})
}

// handleAccountOpened issues the new account's first card. Card issuance is
// idempotent, so acking after success and requeueing on failure cannot create
// a second card on redelivery.
func (c *EventConsumer) handleAccountOpened(body []byte) bool {
	var event domain.AccountOpenedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=event_consumer msg=\"unparseable account.opened event; dropping\" err=%v", err)
		return true
	}
	if event.Kind != "" && !domain.AccountKind(event.Kind).Valid() {
		log.Printf("level=warn component=event_consumer msg=\"account.opened event with unknown kind; dropping\" account_id=%s kind=%q", event.AccountID, event.Kind)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	actor := domain.Actor{UserID: event.OwnerID, Role: domain.RoleUser}
	card, err := c.service.IssueCard(ctx, actor, event.AccountID, domain.CardNetworkVisa)
	if err != nil {
		log.Printf("level=warn component=event_consumer msg=\"card auto-issue failed\" account_id=%s err=%v", event.AccountID, err)
		return false
	}
	log.Printf("level=info component=event_consumer msg=\"card issued for new account\" account_id=%s card_id=%s", event.AccountID, card.ID)
	return true
}

// handleMovementEvent drops cached balances for accounts touched by a movement
// another instance applied. Local movements already invalidated inline; a
// second delete is harmless.
func (c *EventConsumer) handleMovementEvent(body []byte) bool {
	var event domain.MovementEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=event_consumer msg=\"unparseable movement event; dropping\" err=%v", err)
		return true
	}
	if c.projection == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	movement := domain.Movement{
		SourceAccountID:      event.SourceAccountID,
		DestinationAccountID: event.DestinationAccountID,
	}
	ids := movement.AccountIDs()
	if len(ids) > 0 {
		c.projection.Invalidate(ctx, ids...)
	}
	return true
}
