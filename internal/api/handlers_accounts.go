/**
 * @description
 * This file contains the HTTP handlers for the read-side and lifecycle
 * endpoints: account listings, balances, movement history, card issuance and
 * identity-verification state.
 *
 * @dependencies
 * - encoding/json, net/http, strconv: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: Service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumenbank/banking-service/internal/app"
	"github.com/lumenbank/banking-service/internal/domain"
	"github.com/lumenbank/banking-service/internal/store"
)

// ListAccountsHandler returns the authenticated user's accounts.
func (h *Handlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		http.Error(w, "Could not get actor from context", http.StatusInternalServerError)
		return
	}

	accounts, err := h.service.ListAccounts(r.Context(), actor)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_accounts user_id=%s err=%v", actor.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// GetAccountHandler returns one account after an ownership check.
func (h *Handlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	actor, accountID, ok := h.actorAndAccount(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), actor, accountID)
	if err != nil {
		h.writeServiceError(w, "get_account", actor, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// GetBalanceHandler returns one account's available balance from the read
// projection.
func (h *Handlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	actor, accountID, ok := h.actorAndAccount(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), actor, accountID)
	if err != nil {
		h.writeServiceError(w, "get_balance", actor, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// ListMovementsHandler returns an account's movement history, newest first.
// Pagination via ?limit= and ?offset=.
func (h *Handlers) ListMovementsHandler(w http.ResponseWriter, r *http.Request) {
	actor, accountID, ok := h.actorAndAccount(w, r)
	if !ok {
		return
	}

	opts := domain.MovementListOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}

	movements, err := h.service.ListMovements(r.Context(), actor, accountID, opts)
	if err != nil {
		h.writeServiceError(w, "list_movements", actor, err)
		return
	}

	responses := make([]movementResponse, 0, len(movements))
	for i := range movements {
		responses = append(responses, buildMovementResponse(&movements[i]))
	}
	h.writeJSON(w, http.StatusOK, responses)
}

// issueCardRequest is the payload for card issuance. Network is optional.
type issueCardRequest struct {
	Network string `json:"network,omitempty"`
}

// IssueCardHandler issues the account's card. Issuance is idempotent: a repeat
// request returns the existing card with 200 instead of 201.
func (h *Handlers) IssueCardHandler(w http.ResponseWriter, r *http.Request) {
	actor, accountID, ok := h.actorAndAccount(w, r)
	if !ok {
		return
	}

	var req issueCardRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	existing, err := h.service.ListCards(r.Context(), actor, accountID)
	if err != nil {
		h.writeServiceError(w, "issue_card", actor, err)
		return
	}
	hadCard := len(existing) > 0

	card, err := h.service.IssueCard(r.Context(), actor, accountID, domain.CardNetwork(req.Network))
	if err != nil {
		h.writeServiceError(w, "issue_card", actor, err)
		return
	}

	status := http.StatusCreated
	if hadCard {
		status = http.StatusOK
	}
	h.writeJSON(w, status, card)
}

// ActivateCardHandler marks a card as activated by its holder. Activation is
// idempotent; a blocked card cannot be reactivated here.
func (h *Handlers) ActivateCardHandler(w http.ResponseWriter, r *http.Request) {
	actor, accountID, ok := h.actorAndAccount(w, r)
	if !ok {
		return
	}
	cardID, err := uuid.Parse(chi.URLParam(r, "cardID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid card id")
		return
	}

	card, err := h.service.ActivateCard(r.Context(), actor, accountID, cardID)
	if err != nil {
		h.writeServiceError(w, "activate_card", actor, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

// ListCardsHandler returns the cards bound to an account.
func (h *Handlers) ListCardsHandler(w http.ResponseWriter, r *http.Request) {
	actor, accountID, ok := h.actorAndAccount(w, r)
	if !ok {
		return
	}

	cards, err := h.service.ListCards(r.Context(), actor, accountID)
	if err != nil {
		h.writeServiceError(w, "list_cards", actor, err)
		return
	}
	if cards == nil {
		cards = []domain.Card{}
	}
	h.writeJSON(w, http.StatusOK, cards)
}

// verificationResponse adds the derived overall status to the stored steps.
type verificationResponse struct {
	UserID string                    `json:"user_id"`
	Status string                    `json:"status"`
	Steps  []domain.VerificationStep `json:"steps"`
}

// GetVerificationHandler returns the authenticated user's verification case.
func (h *Handlers) GetVerificationHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		http.Error(w, "Could not get actor from context", http.StatusInternalServerError)
		return
	}

	verificationCase, err := h.service.GetVerificationCase(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, "get_verification", actor, err)
		return
	}
	resp := verificationResponse{
		UserID: verificationCase.UserID.String(),
		Status: string(verificationCase.Status()),
		Steps:  verificationCase.Steps,
	}
	if resp.Steps == nil {
		resp.Steps = []domain.VerificationStep{}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// verificationStepInput is the provider callback payload for a step update.
type verificationStepInput struct {
	UserID   string `json:"user_id"`
	StepID   string `json:"step_id"`
	Required bool   `json:"required"`
	Status   string `json:"status"`
}

// UpdateVerificationStepHandler records a step status reported by the external
// verification provider. The route sits behind the internal API key.
func (h *Handlers) UpdateVerificationStepHandler(w http.ResponseWriter, r *http.Request) {
	var input verificationStepInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	userID, err := uuid.Parse(input.UserID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid user_id")
		return
	}

	step := domain.VerificationStep{
		ID:       input.StepID,
		Required: input.Required,
		Status:   domain.VerificationStepStatus(input.Status),
	}
	if err := h.service.RecordVerificationStep(r.Context(), userID, step); err != nil {
		if app.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=update_verification_step user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// actorAndAccount extracts the actor from the context and the account id from
// the URL, writing the error response itself on failure.
func (h *Handlers) actorAndAccount(w http.ResponseWriter, r *http.Request) (domain.Actor, uuid.UUID, bool) {
	actor, ok := GetActor(r.Context())
	if !ok {
		http.Error(w, "Could not get actor from context", http.StatusInternalServerError)
		return domain.Actor{}, uuid.Nil, false
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account id")
		return domain.Actor{}, uuid.Nil, false
	}
	return actor, accountID, true
}

// writeServiceError maps service-layer errors onto HTTP statuses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, endpoint string, actor domain.Actor, err error) {
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, app.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "Account is not accessible")
	case errors.Is(err, store.ErrAccountNotActive):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrCardNotFound):
		h.writeError(w, http.StatusNotFound, "Card not found")
	case errors.Is(err, store.ErrCardNotActive):
		h.writeError(w, http.StatusConflict, err.Error())
	case app.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s user_id=%s err=%v", endpoint, actor.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
