/**
 * @description
 * This file contains the HTTP handlers for the earnings-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/creatorhub/earnings-service/internal/app"
	"github.com/creatorhub/earnings-service/internal/domain"
	"github.com/creatorhub/earnings-service/internal/store"
)

// EarningsHandlers holds the application service that handlers will use.
type EarningsHandlers struct {
	service *app.Service

	limiter       *app.RedisPayoutRateLimiter
	payoutLimit   int
	payoutWindow  time.Duration
	webhookSecret string
}

// NewEarningsHandlers creates a new instance of EarningsHandlers.
func NewEarningsHandlers(service *app.Service, limiter *app.RedisPayoutRateLimiter, payoutLimit int, payoutWindow time.Duration, webhookSecret string) *EarningsHandlers {
	return &EarningsHandlers{
		service:       service,
		limiter:       limiter,
		payoutLimit:   payoutLimit,
		payoutWindow:  payoutWindow,
		webhookSecret: webhookSecret,
	}
}

// resolveCreator maps the authenticated subject to the internal creator ID,
// writing the error response itself when resolution fails.
func (h *EarningsHandlers) resolveCreator(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get subject from context")
		return uuid.Nil, false
	}

	creatorID, err := h.service.ResolveCreatorID(r.Context(), subject)
	if err != nil {
		if errors.Is(err, store.ErrCreatorNotFound) {
			h.writeError(w, http.StatusNotFound, "Creator account not found")
			return uuid.Nil, false
		}
		log.Printf("level=error component=api msg=\"creator resolution failed\" subject=%s err=%v", subject, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to resolve creator account")
		return uuid.Nil, false
	}
	return creatorID, true
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (h *EarningsHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var validation *app.ValidationError
	if errors.As(err, &validation) {
		h.writeError(w, http.StatusBadRequest, validation.Reason)
		return
	}

	var conflict *app.ConcurrencyConflictError
	if errors.As(err, &conflict) {
		h.writeError(w, http.StatusConflict, "The account is being updated concurrently. Please retry.")
		return
	}

	var gatewayErr *app.GatewayError
	if errors.As(err, &gatewayErr) {
		h.writeError(w, http.StatusBadGateway, "The payment provider could not complete the request.")
		return
	}

	var integrity *app.IntegrityViolationError
	if errors.As(err, &integrity) {
		h.writeError(w, http.StatusServiceUnavailable, "Account balances are under review. Payouts are temporarily suspended.")
		return
	}

	switch {
	case errors.Is(err, store.ErrPayoutsHalted):
		h.writeError(w, http.StatusConflict, "Payouts are temporarily suspended for this account.")
	case errors.Is(err, store.ErrTransactionNotFound),
		errors.Is(err, store.ErrPayoutMethodNotFound),
		errors.Is(err, store.ErrPayoutRequestNotFound),
		errors.Is(err, store.ErrBalanceNotFound),
		errors.Is(err, store.ErrCreatorNotFound):
		h.writeError(w, http.StatusNotFound, "Not found")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unhandled service error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// GetBalanceHandler returns the caller's materialized balance.
func (h *EarningsHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := h.resolveCreator(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), creatorID)
	if err != nil {
		h.writeServiceError(w, "get_balance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// GetEarningsSummaryHandler returns the caller's per-type earnings breakdown.
func (h *EarningsHandlers) GetEarningsSummaryHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := h.resolveCreator(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GetEarningsSummary(r.Context(), creatorID)
	if err != nil {
		h.writeServiceError(w, "earnings_summary", err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// ListTransactionsHandler returns a page of the caller's transaction history.
func (h *EarningsHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := h.resolveCreator(w, r)
	if !ok {
		return
	}

	opts := domain.TransactionListOptions{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
		Status: r.URL.Query().Get("status"),
	}

	txns, err := h.service.ListTransactions(r.Context(), creatorID, opts)
	if err != nil {
		h.writeServiceError(w, "list_transactions", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txns})
}

// GetTransactionHandler returns one transaction owned by the caller.
func (h *EarningsHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := h.resolveCreator(w, r)
	if !ok {
		return
	}

	transactionID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	txn, err := h.service.GetTransaction(r.Context(), transactionID, creatorID)
	if err != nil {
		h.writeServiceError(w, "get_transaction", err)
		return
	}
	h.writeJSON(w, http.StatusOK, txn)
}

// CreatePayoutMethodHandler registers a payout destination for the caller.
func (h *EarningsHandlers) CreatePayoutMethodHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := h.resolveCreator(w, r)
	if !ok {
		return
	}

	var payload domain.CreatePayoutMethodPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	method, err := h.service.CreatePayoutMethod(r.Context(), creatorID, payload)
	if err != nil {
		h.writeServiceError(w, "create_payout_method", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, method)
}

// ListPayoutMethodsHandler returns the caller's payout destinations.
func (h *EarningsHandlers) ListPayoutMethodsHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := h.resolveCreator(w, r)
	if !ok {
		return
	}

	methods, err := h.service.ListPayoutMethods(r.Context(), creatorID)
	if err != nil {
		h.writeServiceError(w, "list_payout_methods", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"payout_methods": methods})
}

// SetDefaultPayoutMethodHandler marks one method as the caller's default.
func (h *EarningsHandlers) SetDefaultPayoutMethodHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := h.resolveCreator(w, r)
	if !ok {
		return
	}

	methodID, err := uuid.Parse(chi.URLParam(r, "methodID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout method ID")
		return
	}

	if err := h.service.SetDefaultPayoutMethod(r.Context(), creatorID, methodID); err != nil {
		h.writeServiceError(w, "set_default_payout_method", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RequestPayoutHandler reserves funds and submits the disbursement. The
// response carries the request in whatever state the submission reached:
// `paid` when the rail settled synchronously, `processing` when the outcome
// is pending, `failed` when the rail rejected it.
func (h *EarningsHandlers) RequestPayoutHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := h.resolveCreator(w, r)
	if !ok {
		return
	}

	if h.limiter != nil && h.payoutLimit > 0 {
		count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), "payout_request", creatorID.String(), h.payoutLimit, h.payoutWindow)
		if err != nil {
			log.Printf("level=warn component=api endpoint=request_payout msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		} else if count > h.payoutLimit {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			h.writeError(w, http.StatusTooManyRequests, "Too many payout requests. Please wait and try again.")
			return
		}
	}

	var payload domain.RequestPayoutPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	request, err := h.service.RequestPayout(r.Context(), creatorID, payload)
	if err != nil {
		h.writeServiceError(w, "request_payout", err)
		return
	}

	// The reservation is durable; the submission outcome is reported but a
	// gateway hiccup here never unwinds the request.
	processed, procErr := h.service.ProcessPayout(r.Context(), request.ID)
	if processed != nil {
		request = processed
	}
	if procErr != nil {
		log.Printf("level=warn component=api endpoint=request_payout msg=\"submission did not settle synchronously\" request_id=%s err=%v", request.ID, procErr)
	}

	h.writeJSON(w, http.StatusCreated, request)
}

// ListPayoutsHandler returns a page of the caller's payout history.
func (h *EarningsHandlers) ListPayoutsHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := h.resolveCreator(w, r)
	if !ok {
		return
	}

	requests, err := h.service.ListPayouts(r.Context(), creatorID, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeServiceError(w, "list_payouts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"payouts": requests})
}

// GetPayoutHandler returns one payout request owned by the caller.
func (h *EarningsHandlers) GetPayoutHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := h.resolveCreator(w, r)
	if !ok {
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout request ID")
		return
	}

	request, err := h.service.GetPayout(r.Context(), requestID, creatorID)
	if err != nil {
		h.writeServiceError(w, "get_payout", err)
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}

// CancelPayoutHandler cancels a still-pending payout request.
func (h *EarningsHandlers) CancelPayoutHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := h.resolveCreator(w, r)
	if !ok {
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout request ID")
		return
	}

	request, err := h.service.CancelPayout(r.Context(), requestID, creatorID)
	if err != nil {
		h.writeServiceError(w, "cancel_payout", err)
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}

// RecordTransactionHandler records a confirmed sale into the ledger. Internal
// route; callers are sale/booking collaborators, never end users.
func (h *EarningsHandlers) RecordTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RecordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	txn, err := h.service.RecordTransaction(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "record_transaction", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, txn)
}

// MarkTransactionStatusHandler applies a status transition to a transaction.
func (h *EarningsHandlers) MarkTransactionStatusHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	txn, err := h.service.MarkTransactionStatus(r.Context(), transactionID, payload.Status)
	if err != nil {
		h.writeServiceError(w, "mark_transaction_status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, txn)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// writeJSON is a helper for writing JSON responses.
func (h *EarningsHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *EarningsHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
