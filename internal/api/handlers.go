/**
 * @description
 * This file contains the HTTP handlers for the funds-movement endpoints.
 * Handlers are responsible for parsing incoming requests, calling the transfer
 * engine, and mapping outcomes and sentinel errors onto HTTP responses. They
 * act as the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For engine logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/lumenbank/banking-service/internal/app"
	"github.com/lumenbank/banking-service/internal/domain"
	"github.com/lumenbank/banking-service/internal/store"
)

// Handlers holds the engine and service that handlers will use.
type Handlers struct {
	engine  *app.Engine
	service *app.Service
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(engine *app.Engine, service *app.Service) *Handlers {
	return &Handlers{engine: engine, service: service}
}

// movementResponse is the wire shape of a movement returned to clients. The
// amount is mirrored as a formatted decimal string so clients never re-derive
// display values from cents.
type movementResponse struct {
	MovementID           string     `json:"movement_id"`
	State                string     `json:"state"`
	Kind                 string     `json:"kind"`
	Amount               int64      `json:"amount"`
	AmountFormatted      string     `json:"amount_formatted"`
	SourceAccountID      *string    `json:"source_account_id,omitempty"`
	DestinationAccountID *string    `json:"destination_account_id,omitempty"`
	Memo                 string     `json:"memo,omitempty"`
	RejectionReason      *string    `json:"rejection_reason,omitempty"`
	IdempotencyKey       string     `json:"idempotency_key"`
	CreatedAt            time.Time  `json:"created_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

func buildMovementResponse(m *domain.Movement) movementResponse {
	resp := movementResponse{
		MovementID:      m.ID.String(),
		State:           string(m.State),
		Kind:            string(m.Kind),
		Amount:          m.Amount,
		AmountFormatted: domain.FormatAmount(m.Amount),
		Memo:            m.Memo,
		RejectionReason: m.RejectionReason,
		IdempotencyKey:  m.IdempotencyKey,
		CreatedAt:       m.CreatedAt,
		CompletedAt:     m.CompletedAt,
	}
	if m.SourceAccountID != nil {
		s := m.SourceAccountID.String()
		resp.SourceAccountID = &s
	}
	if m.DestinationAccountID != nil {
		s := m.DestinationAccountID.String()
		resp.DestinationAccountID = &s
	}
	return resp
}

// CreateTransferHandler handles internal account-to-account transfers.
func (h *Handlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	h.executeMovement(w, r, domain.MovementKindInternal, "transfer")
}

// CreateDepositHandler handles inbound external deposits.
func (h *Handlers) CreateDepositHandler(w http.ResponseWriter, r *http.Request) {
	h.executeMovement(w, r, domain.MovementKindDeposit, "deposit")
}

// CreateWithdrawalHandler handles outbound external withdrawals.
func (h *Handlers) CreateWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	h.executeMovement(w, r, domain.MovementKindWithdrawal, "withdrawal")
}

// CreateAdjustmentHandler handles back-office balance corrections. The engine
// enforces the admin role; the route additionally sits behind the auth group.
func (h *Handlers) CreateAdjustmentHandler(w http.ResponseWriter, r *http.Request) {
	h.executeMovement(w, r, domain.MovementKindAdminAdjustment, "adjustment")
}

func (h *Handlers) executeMovement(w http.ResponseWriter, r *http.Request, kind domain.MovementKind, endpoint string) {
	actor, ok := GetActor(r.Context())
	if !ok {
		http.Error(w, "Could not get actor from context", http.StatusInternalServerError)
		return
	}

	var input app.MovementInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=invalid_json err=%v", endpoint, err)
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	req, err := app.BuildMovementRequest(kind, input)
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=validation user_id=%s err=%v", endpoint, actor.UserID, err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Printf("level=info component=api endpoint=%s outcome=accepted user_id=%s amount=%d key=%s", endpoint, actor.UserID, req.Amount, req.IdempotencyKey)

	movement, err := h.engine.Execute(r.Context(), actor, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=failed user_id=%s err=%v", endpoint, actor.UserID, err)
		h.writeMovementError(w, movement, err)
		return
	}

	h.writeJSON(w, movementStatus(movement), buildMovementResponse(movement))
}

// movementStatus picks the success status for a movement the engine returned
// without error: 201 for a newly completed movement, 202 while an external
// rail is still settling, 200 when a retried key replays a stored rejection.
func movementStatus(movement *domain.Movement) int {
	switch {
	case movement.State == domain.MovementStateRejected:
		return http.StatusOK
	case !movement.State.Terminal():
		return http.StatusAccepted
	}
	return http.StatusCreated
}

// CardSettlementHandler records a transaction captured by the card network
// against a card's account. The route sits behind the internal API key; the
// network's idempotency key makes retried callbacks safe.
func (h *Handlers) CardSettlementHandler(w http.ResponseWriter, r *http.Request) {
	var input app.CardSettlementInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	cardID, req, err := app.BuildCardSettlementRequest(input)
	if err != nil {
		log.Printf("level=warn component=api endpoint=card_settlement outcome=reject reason=validation err=%v", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Printf("level=info component=api endpoint=card_settlement outcome=accepted card_id=%s amount=%d key=%s", cardID, req.Amount, req.IdempotencyKey)

	movement, err := h.engine.ExecuteCardSettlement(r.Context(), cardID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=card_settlement outcome=failed card_id=%s err=%v", cardID, err)
		h.writeMovementError(w, movement, err)
		return
	}

	h.writeJSON(w, movementStatus(movement), buildMovementResponse(movement))
}

// writeMovementError maps engine errors onto HTTP statuses. Business-rule
// rejections carry the persisted rejected movement in the body so the client
// sees the recorded reason.
func (h *Handlers) writeMovementError(w http.ResponseWriter, movement *domain.Movement, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrCardNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrAccountNotActive),
		errors.Is(err, store.ErrCardNotActive):
		status = http.StatusConflict
	case errors.Is(err, app.ErrNotAccountOwner),
		errors.Is(err, app.ErrAdminOnly),
		errors.Is(err, app.ErrVerificationRequired):
		status = http.StatusForbidden
	case errors.Is(err, app.ErrSameAccountTransfer),
		errors.Is(err, app.ErrMissingSource),
		errors.Is(err, app.ErrMissingDestination),
		errors.Is(err, domain.ErrAmountNotPositive):
		status = http.StatusBadRequest
	default:
		h.writeError(w, status, "Internal server error")
		return
	}

	if movement != nil && movement.State == domain.MovementStateRejected {
		h.writeJSON(w, status, buildMovementResponse(movement))
		return
	}
	h.writeError(w, status, err.Error())
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// writeError writes a JSON error envelope.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
