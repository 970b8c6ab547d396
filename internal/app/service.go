/**
 * @description
 * This file contains the core business logic for the earnings-service. The
 * Service struct orchestrates fee calculation, ledger writes, the payout
 * request state machine, and calls to the external payout gateway.
 *
 * Key design decisions:
 * - Balance math lives inside the repository under per-creator row locks; the
 *   service composes those atomic steps and never mutates balances directly.
 * - The gateway is called strictly outside database transactions. A submission
 *   that times out leaves the request in `processing` for the reconciliation
 *   sweep; the engine never guesses an outcome and never auto-resubmits.
 * - Serialization failures from the database are retried a bounded number of
 *   times before surfacing as a ConcurrencyConflictError.
 *
 * @dependencies
 * - internal/store: Repository interface and sentinel errors.
 * - internal/fees: Deterministic integer fee calculator.
 * - pkg/gatewayclient: HTTP client for the payout rail.
 * - pkg/rabbitmq: Event publisher.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/earnings-service/internal/domain"
	"github.com/creatorhub/earnings-service/internal/fees"
	"github.com/creatorhub/earnings-service/internal/store"
	"github.com/creatorhub/earnings-service/pkg/gatewayclient"
	"github.com/creatorhub/earnings-service/pkg/rabbitmq"
)

// EventsExchange is the topic exchange all earnings events are published to.
const EventsExchange = "earnings.events"

// GatewayClient is the subset of the payout gateway API the service uses.
type GatewayClient interface {
	CreateTransfer(ctx context.Context, counterpartyID, reference, narration, currency string, amount int64) (*gatewayclient.TransferResponse, error)
	GetTransfer(ctx context.Context, transferID string) (*gatewayclient.TransferResponse, error)
}

// Config carries the tunable business parameters for the service.
type Config struct {
	// SettlementDelay is how long completed earnings stay pending before they
	// become available. Zero means immediate settlement.
	SettlementDelay time.Duration
	// MinPayout maps currency code to the minimum payout amount in minor units.
	// A currency absent from the map cannot be paid out.
	MinPayout map[string]int64
	// GatewayTimeout bounds a single disbursement submission.
	GatewayTimeout time.Duration
	// ConflictRetries is how many times a serialization failure is retried
	// before surfacing to the caller.
	ConflictRetries int
}

// Service provides the earnings business logic operations.
type Service struct {
	repo    store.Repository
	calc    *fees.Calculator
	gateway GatewayClient
	events  rabbitmq.Publisher
	cfg     Config
}

// NewService creates a new earnings service.
func NewService(repo store.Repository, calc *fees.Calculator, gateway GatewayClient, events rabbitmq.Publisher, cfg Config) *Service {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 30 * time.Second
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = 3
	}
	return &Service{
		repo:    repo,
		calc:    calc,
		gateway: gateway,
		events:  events,
		cfg:     cfg,
	}
}

// ResolveCreatorID maps an authenticated subject to the internal creator ID.
func (s *Service) ResolveCreatorID(ctx context.Context, authSubject string) (uuid.UUID, error) {
	idStr, err := s.repo.FindCreatorIDByAuthSubject(ctx, authSubject)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// withConflictRetry runs op, retrying on database serialization failures with
// a small linear backoff. Any other error is returned immediately.
func (s *Service) withConflictRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= s.cfg.ConflictRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = op()
		if err == nil || !store.IsSerializationFailure(err) {
			return err
		}
		log.Printf("level=warn component=earnings_service msg=\"serialization conflict, retrying\" attempt=%d err=%v", attempt+1, err)
	}
	return &ConcurrencyConflictError{Err: err}
}

func (s *Service) publish(routingKey string, body interface{}) {
	if s.events == nil {
		return
	}
	// Fire-and-forget with its own deadline; a broker outage must not fail the
	// ledger write that already committed.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.events.Publish(ctx, EventsExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=earnings_service msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

// RecordTransaction computes the fee split for a confirmed sale and appends it
// to the ledger atomically with the balance update.
func (s *Service) RecordTransaction(ctx context.Context, req domain.RecordTransactionRequest) (*domain.Transaction, error) {
	if req.CreatorID == uuid.Nil {
		return nil, validationErrorf("creator_id is required")
	}

	status := req.Status
	if status == "" {
		status = domain.TxStatusCompleted
	}
	if status != domain.TxStatusPending && status != domain.TxStatusCompleted {
		return nil, validationErrorf("transactions can only be recorded as pending or completed, got %q", status)
	}

	breakdown, err := s.calc.Calculate(req.GrossAmount, req.Type, req.Currency)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:              uuid.New(),
		CreatorID:       req.CreatorID,
		BuyerID:         req.BuyerID,
		Type:            req.Type,
		Currency:        req.Currency,
		GrossAmount:     req.GrossAmount,
		Subtotal:        breakdown.Subtotal,
		PlatformFee:     breakdown.PlatformFee,
		ProcessingFee:   breakdown.ProcessingFee,
		TotalFees:       breakdown.TotalFees,
		CreatorPayout:   breakdown.CreatorPayout,
		Status:          status,
		RelatedEntityID: req.RelatedEntityID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if status == domain.TxStatusCompleted {
		if s.cfg.SettlementDelay <= 0 {
			txn.SettledAt = &now
			txn.AvailableAt = &now
		} else {
			availableAt := now.Add(s.cfg.SettlementDelay)
			txn.AvailableAt = &availableAt
		}
	}

	err = s.withConflictRetry(ctx, func() error {
		return s.repo.CreateLedgerTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	s.publish(domain.EventTransactionRecorded, domain.TransactionEvent{
		TransactionID: txn.ID,
		CreatorID:     txn.CreatorID,
		Type:          txn.Type,
		Currency:      txn.Currency,
		GrossAmount:   txn.GrossAmount,
		CreatorPayout: txn.CreatorPayout,
		Status:        txn.Status,
		Timestamp:     now,
	})

	log.Printf("level=info component=earnings_service msg=\"transaction recorded\" transaction_id=%s creator_id=%s type=%s gross=%d payout=%d status=%s",
		txn.ID, txn.CreatorID, txn.Type, txn.GrossAmount, txn.CreatorPayout, txn.Status)

	return txn, nil
}

// MarkTransactionStatus applies a status transition to a ledger transaction.
// Legal transitions: pending -> completed, pending -> failed, and
// completed -> refunded. The repository applies the matching balance
// compensation under the creator's row lock.
func (s *Service) MarkTransactionStatus(ctx context.Context, transactionID uuid.UUID, newStatus string) (*domain.Transaction, error) {
	switch newStatus {
	case domain.TxStatusCompleted, domain.TxStatusFailed, domain.TxStatusRefunded:
	default:
		return nil, validationErrorf("unsupported target status %q", newStatus)
	}

	var availableAt *time.Time
	settleImmediately := false
	if newStatus == domain.TxStatusCompleted {
		now := time.Now().UTC()
		if s.cfg.SettlementDelay <= 0 {
			settleImmediately = true
			availableAt = &now
		} else {
			at := now.Add(s.cfg.SettlementDelay)
			availableAt = &at
		}
	}

	var updated *domain.Transaction
	err := s.withConflictRetry(ctx, func() error {
		var opErr error
		updated, opErr = s.repo.MarkTransactionStatus(ctx, transactionID, newStatus, availableAt, settleImmediately)
		return opErr
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidStatusTransition) {
			return nil, validationErrorf("transaction %s cannot transition to %s", transactionID, newStatus)
		}
		return nil, err
	}

	if newStatus == domain.TxStatusRefunded {
		s.publish(domain.EventTransactionRefunded, domain.TransactionEvent{
			TransactionID: updated.ID,
			CreatorID:     updated.CreatorID,
			Type:          updated.Type,
			Currency:      updated.Currency,
			GrossAmount:   updated.GrossAmount,
			CreatorPayout: updated.CreatorPayout,
			Status:        updated.Status,
			Timestamp:     time.Now().UTC(),
		})
	}

	log.Printf("level=info component=earnings_service msg=\"transaction status updated\" transaction_id=%s status=%s", transactionID, newStatus)
	return updated, nil
}

// GetTransaction returns a single ledger transaction scoped to its owner.
func (s *Service) GetTransaction(ctx context.Context, transactionID, creatorID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.CreatorID != creatorID {
		return nil, store.ErrTransactionNotFound
	}
	return txn, nil
}

// ListTransactions returns a page of the creator's ledger history.
func (s *Service) ListTransactions(ctx context.Context, creatorID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return s.repo.ListTransactionsByCreator(ctx, creatorID, opts)
}

// GetBalance returns the creator's materialized balance. A conservation
// breach on read is logged loudly but the stored values are still returned;
// correction is reconciliation's job, not the read path's.
func (s *Service) GetBalance(ctx context.Context, creatorID uuid.UUID) (*domain.Balance, error) {
	balance, err := s.repo.GetBalance(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if !balance.ConservationHolds() {
		log.Printf("level=error component=earnings_service msg=\"conservation breach on materialized balance\" creator_id=%s earned=%d available=%d pending=%d reserved=%d paid_out=%d",
			creatorID, balance.TotalEarned, balance.AvailableBalance, balance.PendingBalance, balance.ReservedBalance, balance.TotalPaidOut)
	}
	return balance, nil
}

// GetEarningsSummary returns the reporting view for a creator.
func (s *Service) GetEarningsSummary(ctx context.Context, creatorID uuid.UUID) (*domain.EarningsSummary, error) {
	return s.repo.GetEarningsSummary(ctx, creatorID)
}

// CreatePayoutMethod registers a payout destination for a creator.
func (s *Service) CreatePayoutMethod(ctx context.Context, creatorID uuid.UUID, payload domain.CreatePayoutMethodPayload) (*domain.PayoutMethod, error) {
	if payload.Type != domain.MethodMobileMoney && payload.Type != domain.MethodBankTransfer {
		return nil, validationErrorf("unsupported payout method type %q", payload.Type)
	}
	if payload.GatewayCounterpartyID == "" {
		return nil, validationErrorf("gateway_counterparty_id is required")
	}
	if payload.Provider == "" {
		return nil, validationErrorf("provider is required")
	}

	now := time.Now().UTC()
	method := &domain.PayoutMethod{
		ID:                    uuid.New(),
		CreatorID:             creatorID,
		Type:                  payload.Type,
		Provider:              payload.Provider,
		DestinationMasked:     payload.DestinationMasked,
		GatewayCounterpartyID: payload.GatewayCounterpartyID,
		IsDefault:             payload.IsDefault,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.CreatePayoutMethod(ctx, method); err != nil {
		return nil, err
	}
	return method, nil
}

// ListPayoutMethods returns all payout destinations for a creator.
func (s *Service) ListPayoutMethods(ctx context.Context, creatorID uuid.UUID) ([]domain.PayoutMethod, error) {
	return s.repo.ListPayoutMethodsByCreator(ctx, creatorID)
}

// SetDefaultPayoutMethod marks one of the creator's methods as default.
func (s *Service) SetDefaultPayoutMethod(ctx context.Context, creatorID, methodID uuid.UUID) error {
	return s.repo.SetDefaultPayoutMethod(ctx, creatorID, methodID)
}

// RequestPayout validates a withdrawal and atomically reserves the funds. The
// request starts in `pending`; the actual gateway submission happens in
// ProcessPayout so no external call ever runs inside the reservation lock.
func (s *Service) RequestPayout(ctx context.Context, creatorID uuid.UUID, payload domain.RequestPayoutPayload) (*domain.PayoutRequest, error) {
	if payload.Amount <= 0 {
		return nil, validationErrorf("payout amount must be positive")
	}
	minimum, ok := s.cfg.MinPayout[payload.Currency]
	if !ok {
		return nil, validationErrorf("payouts are not supported in currency %q", payload.Currency)
	}
	if payload.Amount < minimum {
		return nil, validationErrorf("payout amount %d is below the %s minimum of %d", payload.Amount, payload.Currency, minimum)
	}

	// Ownership check doubles as existence check: a method belonging to
	// another creator is indistinguishable from a missing one.
	if _, err := s.repo.FindPayoutMethodByID(ctx, payload.MethodID, creatorID); err != nil {
		if errors.Is(err, store.ErrPayoutMethodNotFound) {
			return nil, validationErrorf("payout method %s not found", payload.MethodID)
		}
		return nil, err
	}

	now := time.Now().UTC()
	request := &domain.PayoutRequest{
		ID:          uuid.New(),
		CreatorID:   creatorID,
		MethodID:    payload.MethodID,
		Amount:      payload.Amount,
		Currency:    payload.Currency,
		Status:      domain.PayoutStatusPending,
		RequestedAt: now,
		UpdatedAt:   now,
	}

	err := s.withConflictRetry(ctx, func() error {
		return s.repo.ReservePayout(ctx, request)
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return nil, validationErrorf("requested amount %d exceeds the available balance", payload.Amount)
		}
		// store.ErrPayoutsHalted passes through untouched; the API layer maps
		// it to its own status code.
		return nil, err
	}

	s.publish(domain.EventPayoutRequested, domain.PayoutEvent{
		RequestID: request.ID,
		CreatorID: request.CreatorID,
		Amount:    request.Amount,
		Currency:  request.Currency,
		Status:    request.Status,
		Timestamp: now,
	})

	log.Printf("level=info component=earnings_service msg=\"payout reserved\" request_id=%s creator_id=%s amount=%d currency=%s",
		request.ID, request.CreatorID, request.Amount, request.Currency)

	return request, nil
}

// ProcessPayout claims a pending request and submits it to the gateway. The
// request ID is the idempotency key on the rail, so a crashed or repeated
// submission can never disburse twice.
func (s *Service) ProcessPayout(ctx context.Context, requestID uuid.UUID) (*domain.PayoutRequest, error) {
	var request *domain.PayoutRequest
	err := s.withConflictRetry(ctx, func() error {
		var opErr error
		request, opErr = s.repo.ClaimPayoutForProcessing(ctx, requestID)
		return opErr
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidStatusTransition) {
			return nil, validationErrorf("payout request %s is not pending", requestID)
		}
		return nil, err
	}

	method, err := s.repo.FindPayoutMethodByID(ctx, request.MethodID, request.CreatorID)
	if err != nil {
		// The gateway never saw this request, so releasing the reservation
		// cannot race a disbursement on the rail.
		if _, failErr := s.failPayout(ctx, request, "payout method could not be resolved"); failErr != nil {
			var gwErr *GatewayError
			if !errors.As(failErr, &gwErr) {
				log.Printf("level=error component=earnings_service msg=\"failed to release payout after method lookup error\" request_id=%s err=%v", request.ID, failErr)
			}
		}
		return nil, &GatewayError{Op: "resolve_counterparty", Err: err}
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	resp, err := s.gateway.CreateTransfer(gwCtx, method.GatewayCounterpartyID, request.ID.String(), "creator payout", request.Currency, request.Amount)
	if err != nil {
		var gatewayReject *gatewayclient.ErrorResponse
		if errors.As(err, &gatewayReject) {
			// Definitive rejection: release the reservation exactly once.
			return s.failPayout(ctx, request, gatewayReject.Error())
		}
		// Transport failure or timeout: the transfer may or may not exist on
		// the rail. The request stays in processing until the webhook or the
		// reconciliation sweep resolves it.
		log.Printf("level=warn component=earnings_service msg=\"gateway submission inconclusive; leaving request in processing\" request_id=%s err=%v", request.ID, err)
		return nil, &GatewayError{Op: "create_transfer", Err: err}
	}

	if resp.Data.ID != "" {
		if err := s.repo.AttachExternalReference(ctx, request.ID, resp.Data.ID); err != nil {
			log.Printf("level=error component=earnings_service msg=\"failed to attach external reference\" request_id=%s external_id=%s err=%v", request.ID, resp.Data.ID, err)
		} else {
			ref := resp.Data.ID
			request.ExternalReference = &ref
		}
	}

	switch resp.Data.Attributes.Status {
	case gatewayclient.TransferStatusCompleted:
		return s.settlePayout(ctx, request, resp.Data.ID)
	case gatewayclient.TransferStatusFailed:
		reason := resp.Data.Attributes.Reason
		if reason == "" {
			reason = "rejected by gateway"
		}
		return s.failPayout(ctx, request, reason)
	default:
		// Still processing on the rail; the webhook will finish the job.
		request.Status = domain.PayoutStatusProcessing
		log.Printf("level=info component=earnings_service msg=\"payout submitted, awaiting confirmation\" request_id=%s external_id=%s", request.ID, resp.Data.ID)
		return request, nil
	}
}

func (s *Service) settlePayout(ctx context.Context, request *domain.PayoutRequest, externalReference string) (*domain.PayoutRequest, error) {
	now := time.Now().UTC()
	var applied bool
	err := s.withConflictRetry(ctx, func() error {
		var opErr error
		applied, opErr = s.repo.SettlePayout(ctx, request.ID, externalReference, now)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// Already settled or failed by a concurrent path; nothing to do.
		log.Printf("level=info component=earnings_service msg=\"payout settlement was a no-op\" request_id=%s", request.ID)
		return s.repo.FindPayoutRequestByID(ctx, request.ID)
	}

	request.Status = domain.PayoutStatusPaid
	request.ProcessedAt = &now
	request.PayoutDate = &now
	if externalReference != "" {
		request.ExternalReference = &externalReference
	}

	s.publish(domain.EventPayoutPaid, domain.PayoutEvent{
		RequestID:         request.ID,
		CreatorID:         request.CreatorID,
		Amount:            request.Amount,
		Currency:          request.Currency,
		Status:            request.Status,
		ExternalReference: externalReference,
		Timestamp:         now,
	})

	log.Printf("level=info component=earnings_service msg=\"payout paid\" request_id=%s creator_id=%s amount=%d", request.ID, request.CreatorID, request.Amount)
	return request, nil
}

func (s *Service) failPayout(ctx context.Context, request *domain.PayoutRequest, reason string) (*domain.PayoutRequest, error) {
	var applied bool
	err := s.withConflictRetry(ctx, func() error {
		var opErr error
		applied, opErr = s.repo.FailPayout(ctx, request.ID, reason)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		log.Printf("level=info component=earnings_service msg=\"payout failure was a no-op\" request_id=%s", request.ID)
		return s.repo.FindPayoutRequestByID(ctx, request.ID)
	}

	request.Status = domain.PayoutStatusFailed
	request.FailureReason = &reason
	now := time.Now().UTC()
	request.ProcessedAt = &now

	s.publish(domain.EventPayoutFailed, domain.PayoutEvent{
		RequestID: request.ID,
		CreatorID: request.CreatorID,
		Amount:    request.Amount,
		Currency:  request.Currency,
		Status:    request.Status,
		Reason:    reason,
		Timestamp: now,
	})

	log.Printf("level=warn component=earnings_service msg=\"payout failed, reservation released\" request_id=%s reason=%q", request.ID, reason)
	return request, &GatewayError{Op: "create_transfer", Err: errors.New(reason)}
}

// CancelPayout cancels a still-pending payout request and releases its
// reservation. Once a request reached processing it can no longer be
// cancelled; the rail outcome decides.
func (s *Service) CancelPayout(ctx context.Context, requestID, creatorID uuid.UUID) (*domain.PayoutRequest, error) {
	var request *domain.PayoutRequest
	err := s.withConflictRetry(ctx, func() error {
		var opErr error
		request, opErr = s.repo.CancelPayout(ctx, requestID, creatorID)
		return opErr
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidStatusTransition) {
			return nil, validationErrorf("only pending payout requests can be cancelled")
		}
		return nil, err
	}
	log.Printf("level=info component=earnings_service msg=\"payout cancelled\" request_id=%s creator_id=%s", requestID, creatorID)
	return request, nil
}

// GetPayout returns one payout request scoped to its owner.
func (s *Service) GetPayout(ctx context.Context, requestID, creatorID uuid.UUID) (*domain.PayoutRequest, error) {
	request, err := s.repo.FindPayoutRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.CreatorID != creatorID {
		return nil, store.ErrPayoutRequestNotFound
	}
	return request, nil
}

// ListPayouts returns a page of the creator's payout history.
func (s *Service) ListPayouts(ctx context.Context, creatorID uuid.UUID, limit, offset int) ([]domain.PayoutRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListPayoutRequestsByCreator(ctx, creatorID, limit, offset)
}

// HandleGatewayConfirmation applies a webhook delivery from the payout rail.
// Deliveries are at-least-once and may repeat or arrive out of order; the
// conditional status transitions make each terminal outcome apply exactly
// once, and the delivery record keeps an audit trail of what arrived.
func (s *Service) HandleGatewayConfirmation(ctx context.Context, confirmation domain.GatewayConfirmation) error {
	if confirmation.ExternalID == "" {
		return validationErrorf("external_id is required")
	}

	request, err := s.repo.FindPayoutRequestByExternalReference(ctx, confirmation.ExternalID)
	if err != nil {
		if errors.Is(err, store.ErrPayoutRequestNotFound) {
			// Unknown reference: acknowledge so the gateway stops retrying,
			// but keep a loud trace for operators.
			log.Printf("level=warn component=earnings_service msg=\"webhook for unknown transfer\" external_id=%s status=%s", confirmation.ExternalID, confirmation.Status)
			return nil
		}
		return err
	}

	var applied bool
	switch confirmation.Status {
	case "completed", "successful", "paid":
		var settled *domain.PayoutRequest
		settled, err = s.settlePayout(ctx, request, confirmation.ExternalID)
		applied = err == nil && settled != nil && settled.Status == domain.PayoutStatusPaid
	case "failed", "reversed":
		reason := confirmation.Reason
		if reason == "" {
			reason = "transfer failed on the payment rail"
		}
		_, failErr := s.failPayout(ctx, request, reason)
		// failPayout reports the gateway outcome as an error to its caller;
		// for a webhook that outcome is the expected news, not a failure.
		var gwErr *GatewayError
		if failErr != nil && !errors.As(failErr, &gwErr) {
			return failErr
		}
		err = nil
		applied = true
	default:
		log.Printf("level=info component=earnings_service msg=\"ignoring non-terminal webhook status\" external_id=%s status=%s", confirmation.ExternalID, confirmation.Status)
		return nil
	}
	if err != nil {
		return err
	}

	if _, recErr := s.repo.RecordWebhookDelivery(ctx, confirmation.ExternalID, confirmation.Status); recErr != nil {
		log.Printf("level=warn component=earnings_service msg=\"failed to record webhook delivery\" external_id=%s err=%v", confirmation.ExternalID, recErr)
	}

	log.Printf("level=info component=earnings_service msg=\"webhook applied\" external_id=%s status=%s request_id=%s applied=%t",
		confirmation.ExternalID, confirmation.Status, request.ID, applied)
	return nil
}
