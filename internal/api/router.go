/**
 * @description
 * This file sets up the HTTP router for the banking service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS support for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes creates and returns the router for the banking service. jwksURL
// drives JWT validation for user routes; internalKey guards the
// service-to-service callbacks.
func Routes(h *Handlers, jwksURL, internalKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// User-facing API, behind JWT authentication.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		// Funds movement
		r.Post("/transfers", h.CreateTransferHandler)
		r.Post("/deposits", h.CreateDepositHandler)
		r.Post("/withdrawals", h.CreateWithdrawalHandler)
		r.Post("/admin/adjustments", h.CreateAdjustmentHandler)

		// Accounts and read projection
		r.Get("/accounts", h.ListAccountsHandler)
		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/", h.GetAccountHandler)
			r.Get("/balance", h.GetBalanceHandler)
			r.Get("/movements", h.ListMovementsHandler)
			r.Get("/cards", h.ListCardsHandler)
			r.Post("/cards", h.IssueCardHandler)
			r.Post("/cards/{cardID}/activate", h.ActivateCardHandler)
		})

		// Identity verification state
		r.Get("/verification", h.GetVerificationHandler)
	})

	// Service-to-service callbacks, behind the shared internal key.
	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalKeyMiddleware(internalKey))
		r.Put("/verification/steps", h.UpdateVerificationStepHandler)
		r.Post("/card-settlements", h.CardSettlementHandler)
	})

	return r
}
