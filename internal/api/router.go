/**
 * @description
 * This file sets up the HTTP router for the earnings-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * Route groups:
 * - Creator-facing routes require a JWT and are scoped to the caller.
 * - Internal routes are called by sale/booking collaborators with a service key.
 * - The webhook route authenticates by HMAC signature, not by JWT.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// EarningsRoutes creates and returns the router for the earnings service.
func EarningsRoutes(h *EarningsHandlers, auth AuthConfig, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Gateway webhook; authenticated by signature on the raw body.
	r.Post("/webhooks/payouts", h.PayoutWebhookHandler)

	// Internal endpoints for sale/booking collaborators.
	r.Group(func(r chi.Router) {
		r.Use(RequireInternalKey(internalAPIKey))

		r.Post("/internal/transactions", h.RecordTransactionHandler)
		r.Post("/internal/transactions/{transactionID}/status", h.MarkTransactionStatusHandler)
	})

	// Creator-facing endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(auth))

		r.Get("/balance", h.GetBalanceHandler)
		r.Get("/earnings/summary", h.GetEarningsSummaryHandler)
		r.Get("/transactions", h.ListTransactionsHandler)
		r.Get("/transactions/{transactionID}", h.GetTransactionHandler)

		r.Post("/payout-methods", h.CreatePayoutMethodHandler)
		r.Get("/payout-methods", h.ListPayoutMethodsHandler)
		r.Put("/payout-methods/{methodID}/default", h.SetDefaultPayoutMethodHandler)

		r.Post("/payouts", h.RequestPayoutHandler)
		r.Get("/payouts", h.ListPayoutsHandler)
		r.Get("/payouts/{requestID}", h.GetPayoutHandler)
		r.Post("/payouts/{requestID}/cancel", h.CancelPayoutHandler)
	})

	return r
}
