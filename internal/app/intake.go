/**
 * @description
 * Request intake: shapes raw user input into a well-formed MovementRequest
 * before it reaches the transfer engine. Intake owns no financial state and its
 * balance pre-check is advisory only; the authoritative validation happens in
 * the engine under account locks.
 *
 * @dependencies
 * - internal/domain: DTOs and money parsing.
 * - github.com/google/uuid: Account id parsing.
 */

package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lumenbank/banking-service/internal/domain"
)

// ValidationError is a user-facing intake failure with an actionable reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is an intake validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

const maxMemoLength = 140

// MovementInput is the raw payload accepted by the transfer, deposit,
// withdrawal and adjustment endpoints. Amount arrives as a decimal string.
type MovementInput struct {
	SourceAccountID      string `json:"source_account_id,omitempty"`
	DestinationAccountID string `json:"destination_account_id,omitempty"`
	Amount               string `json:"amount"`
	Memo                 string `json:"memo,omitempty"`
	IdempotencyKey       string `json:"idempotency_key"`
}

// BuildMovementRequest validates raw input and produces the request the engine
// consumes, with the amount converted exactly to cents.
func BuildMovementRequest(kind domain.MovementKind, input MovementInput) (domain.MovementRequest, error) {
	var req domain.MovementRequest
	req.Kind = kind

	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return req, &ValidationError{Field: "idempotency_key", Reason: "is required"}
	}
	if len(key) > 128 {
		return req, &ValidationError{Field: "idempotency_key", Reason: "must be at most 128 characters"}
	}
	req.IdempotencyKey = key

	amount, err := domain.ParseAmount(strings.TrimSpace(input.Amount))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAmountNotPositive):
			return req, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
		case errors.Is(err, domain.ErrAmountPrecision):
			return req, &ValidationError{Field: "amount", Reason: "must have at most two decimal places"}
		case errors.Is(err, domain.ErrAmountTooLarge):
			return req, &ValidationError{Field: "amount", Reason: "exceeds the supported maximum"}
		default:
			return req, &ValidationError{Field: "amount", Reason: "is not a valid decimal number"}
		}
	}
	req.Amount = amount

	if src := strings.TrimSpace(input.SourceAccountID); src != "" {
		id, err := uuid.Parse(src)
		if err != nil {
			return req, &ValidationError{Field: "source_account_id", Reason: "is not a valid account id"}
		}
		req.SourceAccountID = &id
	}
	if dst := strings.TrimSpace(input.DestinationAccountID); dst != "" {
		id, err := uuid.Parse(dst)
		if err != nil {
			return req, &ValidationError{Field: "destination_account_id", Reason: "is not a valid account id"}
		}
		req.DestinationAccountID = &id
	}

	switch kind {
	case domain.MovementKindInternal:
		if req.SourceAccountID == nil {
			return req, &ValidationError{Field: "source_account_id", Reason: "is required"}
		}
		if req.DestinationAccountID == nil {
			return req, &ValidationError{Field: "destination_account_id", Reason: "is required"}
		}
		if *req.SourceAccountID == *req.DestinationAccountID {
			return req, &ValidationError{Field: "destination_account_id", Reason: "must differ from the source account"}
		}
	case domain.MovementKindDeposit:
		if req.DestinationAccountID == nil {
			return req, &ValidationError{Field: "destination_account_id", Reason: "is required"}
		}
		if req.SourceAccountID != nil {
			return req, &ValidationError{Field: "source_account_id", Reason: "must be empty for deposits"}
		}
	case domain.MovementKindWithdrawal, domain.MovementKindCardSettlement:
		if req.SourceAccountID == nil {
			return req, &ValidationError{Field: "source_account_id", Reason: "is required"}
		}
		if req.DestinationAccountID != nil {
			return req, &ValidationError{Field: "destination_account_id", Reason: "must be empty for withdrawals"}
		}
	case domain.MovementKindAdminAdjustment:
		if req.SourceAccountID == nil && req.DestinationAccountID == nil {
			return req, &ValidationError{Field: "source_account_id", Reason: "adjustment requires at least one account"}
		}
	default:
		return req, &ValidationError{Field: "kind", Reason: "is not a recognized movement kind"}
	}

	memo := strings.TrimSpace(input.Memo)
	if len(memo) > maxMemoLength {
		return req, &ValidationError{Field: "memo", Reason: fmt.Sprintf("must be at most %d characters", maxMemoLength)}
	}
	req.Memo = memo

	return req, nil
}

// CardSettlementInput is the payload the card network collaborator posts when
// a captured transaction settles against a card.
type CardSettlementInput struct {
	CardID         string `json:"card_id"`
	Amount         string `json:"amount"`
	Merchant       string `json:"merchant,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

// BuildCardSettlementRequest validates a network settlement payload. The
// source account is resolved from the card by the engine, not trusted from the
// caller.
func BuildCardSettlementRequest(input CardSettlementInput) (uuid.UUID, domain.MovementRequest, error) {
	var req domain.MovementRequest
	req.Kind = domain.MovementKindCardSettlement

	cardID, err := uuid.Parse(strings.TrimSpace(input.CardID))
	if err != nil {
		return uuid.Nil, req, &ValidationError{Field: "card_id", Reason: "is not a valid card id"}
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return uuid.Nil, req, &ValidationError{Field: "idempotency_key", Reason: "is required"}
	}
	if len(key) > 128 {
		return uuid.Nil, req, &ValidationError{Field: "idempotency_key", Reason: "must be at most 128 characters"}
	}
	req.IdempotencyKey = key

	amount, err := domain.ParseAmount(strings.TrimSpace(input.Amount))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAmountNotPositive):
			return uuid.Nil, req, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
		case errors.Is(err, domain.ErrAmountPrecision):
			return uuid.Nil, req, &ValidationError{Field: "amount", Reason: "must have at most two decimal places"}
		case errors.Is(err, domain.ErrAmountTooLarge):
			return uuid.Nil, req, &ValidationError{Field: "amount", Reason: "exceeds the supported maximum"}
		default:
			return uuid.Nil, req, &ValidationError{Field: "amount", Reason: "is not a valid decimal number"}
		}
	}
	req.Amount = amount

	merchant := strings.TrimSpace(input.Merchant)
	if len(merchant) > maxMemoLength {
		return uuid.Nil, req, &ValidationError{Field: "merchant", Reason: fmt.Sprintf("must be at most %d characters", maxMemoLength)}
	}
	req.Memo = merchant

	return cardID, req, nil
}
