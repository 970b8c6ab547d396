package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/creatorhub/earnings-service/internal/domain"
	"github.com/creatorhub/earnings-service/internal/fees"
	"github.com/creatorhub/earnings-service/internal/store"
	"github.com/creatorhub/earnings-service/pkg/gatewayclient"
)

// repoStub satisfies store.Repository via embedding; tests override only the
// methods the path under test touches.
type repoStub struct {
	store.Repository

	createLedgerTransactionFn func(ctx context.Context, txn *domain.Transaction) error
	markTransactionStatusFn   func(ctx context.Context, id uuid.UUID, newStatus string, availableAt *time.Time, settleImmediately bool) (*domain.Transaction, error)
	findPayoutMethodFn        func(ctx context.Context, methodID, creatorID uuid.UUID) (*domain.PayoutMethod, error)
	reservePayoutFn           func(ctx context.Context, request *domain.PayoutRequest) error
	claimPayoutFn             func(ctx context.Context, requestID uuid.UUID) (*domain.PayoutRequest, error)
	attachExternalRefFn       func(ctx context.Context, requestID uuid.UUID, ref string) error
	settlePayoutFn            func(ctx context.Context, requestID uuid.UUID, ref string, paidAt time.Time) (bool, error)
	failPayoutFn              func(ctx context.Context, requestID uuid.UUID, reason string) (bool, error)
	findPayoutByIDFn          func(ctx context.Context, requestID uuid.UUID) (*domain.PayoutRequest, error)
	findPayoutByExternalFn    func(ctx context.Context, ref string) (*domain.PayoutRequest, error)
	recordWebhookFn           func(ctx context.Context, externalID, status string) (bool, error)
	cancelPayoutFn            func(ctx context.Context, requestID, creatorID uuid.UUID) (*domain.PayoutRequest, error)
}

func (s *repoStub) CreateLedgerTransaction(ctx context.Context, txn *domain.Transaction) error {
	return s.createLedgerTransactionFn(ctx, txn)
}

func (s *repoStub) MarkTransactionStatus(ctx context.Context, id uuid.UUID, newStatus string, availableAt *time.Time, settleImmediately bool) (*domain.Transaction, error) {
	return s.markTransactionStatusFn(ctx, id, newStatus, availableAt, settleImmediately)
}

func (s *repoStub) FindPayoutMethodByID(ctx context.Context, methodID, creatorID uuid.UUID) (*domain.PayoutMethod, error) {
	return s.findPayoutMethodFn(ctx, methodID, creatorID)
}

func (s *repoStub) ReservePayout(ctx context.Context, request *domain.PayoutRequest) error {
	return s.reservePayoutFn(ctx, request)
}

func (s *repoStub) ClaimPayoutForProcessing(ctx context.Context, requestID uuid.UUID) (*domain.PayoutRequest, error) {
	return s.claimPayoutFn(ctx, requestID)
}

func (s *repoStub) AttachExternalReference(ctx context.Context, requestID uuid.UUID, ref string) error {
	if s.attachExternalRefFn == nil {
		return nil
	}
	return s.attachExternalRefFn(ctx, requestID, ref)
}

func (s *repoStub) SettlePayout(ctx context.Context, requestID uuid.UUID, ref string, paidAt time.Time) (bool, error) {
	return s.settlePayoutFn(ctx, requestID, ref, paidAt)
}

func (s *repoStub) FailPayout(ctx context.Context, requestID uuid.UUID, reason string) (bool, error) {
	return s.failPayoutFn(ctx, requestID, reason)
}

func (s *repoStub) FindPayoutRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.PayoutRequest, error) {
	return s.findPayoutByIDFn(ctx, requestID)
}

func (s *repoStub) FindPayoutRequestByExternalReference(ctx context.Context, ref string) (*domain.PayoutRequest, error) {
	return s.findPayoutByExternalFn(ctx, ref)
}

func (s *repoStub) RecordWebhookDelivery(ctx context.Context, externalID, status string) (bool, error) {
	if s.recordWebhookFn == nil {
		return true, nil
	}
	return s.recordWebhookFn(ctx, externalID, status)
}

func (s *repoStub) CancelPayout(ctx context.Context, requestID, creatorID uuid.UUID) (*domain.PayoutRequest, error) {
	return s.cancelPayoutFn(ctx, requestID, creatorID)
}

type gatewayStub struct {
	createTransferFn func(ctx context.Context, counterpartyID, reference, narration, currency string, amount int64) (*gatewayclient.TransferResponse, error)
	getTransferFn    func(ctx context.Context, transferID string) (*gatewayclient.TransferResponse, error)
}

func (g *gatewayStub) CreateTransfer(ctx context.Context, counterpartyID, reference, narration, currency string, amount int64) (*gatewayclient.TransferResponse, error) {
	return g.createTransferFn(ctx, counterpartyID, reference, narration, currency, amount)
}

func (g *gatewayStub) GetTransfer(ctx context.Context, transferID string) (*gatewayclient.TransferResponse, error) {
	return g.getTransferFn(ctx, transferID)
}

// publisherStub records routing keys so tests can assert which events fired.
type publisherStub struct {
	mu   sync.Mutex
	keys []string
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *publisherStub) Close() {}

func (p *publisherStub) published(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range p.keys {
		if k == key {
			return true
		}
	}
	return false
}

func newTestService(repo store.Repository, gateway GatewayClient, events *publisherStub) *Service {
	return NewService(repo, fees.NewCalculator(fees.DefaultSchedule()), gateway, events, Config{
		MinPayout: map[string]int64{"TZS": 10000, "USD": 500},
	})
}

func serializationFailure() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
}

func transferResponse(id, status, reason string) *gatewayclient.TransferResponse {
	resp := &gatewayclient.TransferResponse{}
	resp.Data.ID = id
	resp.Data.Attributes.Status = status
	resp.Data.Attributes.Reason = reason
	return resp
}

func TestRecordTransaction_ImmediateSettlement(t *testing.T) {
	var stored *domain.Transaction
	repo := &repoStub{
		createLedgerTransactionFn: func(ctx context.Context, txn *domain.Transaction) error {
			stored = txn
			return nil
		},
	}
	events := &publisherStub{}
	svc := newTestService(repo, nil, events)

	txn, err := svc.RecordTransaction(context.Background(), domain.RecordTransactionRequest{
		CreatorID:   uuid.New(),
		Type:        domain.TypeServiceBooking,
		Currency:    "TZS",
		GrossAmount: 100000,
	})
	if err != nil {
		t.Fatalf("RecordTransaction returned error: %v", err)
	}

	if stored == nil {
		t.Fatal("transaction was never persisted")
	}
	if txn.PlatformFee != 10000 || txn.ProcessingFee != 3000 || txn.CreatorPayout != 87000 {
		t.Fatalf("unexpected fee split: platform=%d processing=%d payout=%d", txn.PlatformFee, txn.ProcessingFee, txn.CreatorPayout)
	}
	if txn.Status != domain.TxStatusCompleted {
		t.Fatalf("expected completed status, got %s", txn.Status)
	}
	if txn.SettledAt == nil || txn.AvailableAt == nil {
		t.Fatal("zero settlement delay should settle immediately")
	}
	if !events.published(domain.EventTransactionRecorded) {
		t.Error("transaction.recorded event was not published")
	}
}

func TestRecordTransaction_SettlementDelayLeavesFundsPending(t *testing.T) {
	var stored *domain.Transaction
	repo := &repoStub{
		createLedgerTransactionFn: func(ctx context.Context, txn *domain.Transaction) error {
			stored = txn
			return nil
		},
	}
	svc := NewService(repo, fees.NewCalculator(fees.DefaultSchedule()), nil, nil, Config{
		SettlementDelay: 48 * time.Hour,
		MinPayout:       map[string]int64{"TZS": 10000},
	})

	before := time.Now().UTC()
	_, err := svc.RecordTransaction(context.Background(), domain.RecordTransactionRequest{
		CreatorID:   uuid.New(),
		Type:        domain.TypeDigitalProduct,
		Currency:    "TZS",
		GrossAmount: 50000,
	})
	if err != nil {
		t.Fatalf("RecordTransaction returned error: %v", err)
	}

	if stored.SettledAt != nil {
		t.Fatal("delayed settlement must not set settled_at at record time")
	}
	if stored.AvailableAt == nil {
		t.Fatal("delayed settlement must schedule available_at")
	}
	earliest := before.Add(48 * time.Hour)
	if stored.AvailableAt.Before(earliest.Add(-time.Minute)) {
		t.Fatalf("available_at %v is earlier than the settlement delay allows", stored.AvailableAt)
	}
}

func TestRecordTransaction_RejectsUnknownStatus(t *testing.T) {
	svc := newTestService(&repoStub{}, nil, &publisherStub{})

	_, err := svc.RecordTransaction(context.Background(), domain.RecordTransactionRequest{
		CreatorID:   uuid.New(),
		Type:        domain.TypeTip,
		Currency:    "TZS",
		GrossAmount: 5000,
		Status:      domain.TxStatusRefunded,
	})

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRecordTransaction_SerializationConflictSurfacesAfterRetries(t *testing.T) {
	attempts := 0
	repo := &repoStub{
		createLedgerTransactionFn: func(ctx context.Context, txn *domain.Transaction) error {
			attempts++
			return serializationFailure()
		},
	}
	svc := newTestService(repo, nil, &publisherStub{})

	_, err := svc.RecordTransaction(context.Background(), domain.RecordTransactionRequest{
		CreatorID:   uuid.New(),
		Type:        domain.TypeMarketplace,
		Currency:    "TZS",
		GrossAmount: 20000,
	})

	var conflict *ConcurrencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConcurrencyConflictError, got %v", err)
	}
	if attempts < 2 {
		t.Fatalf("expected retries before surfacing, got %d attempts", attempts)
	}
}

func TestRequestPayout_BelowMinimumRejected(t *testing.T) {
	svc := newTestService(&repoStub{}, nil, &publisherStub{})

	_, err := svc.RequestPayout(context.Background(), uuid.New(), domain.RequestPayoutPayload{
		MethodID: uuid.New(),
		Amount:   5000,
		Currency: "TZS",
	})

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for sub-minimum amount, got %v", err)
	}
}

func TestRequestPayout_UnsupportedCurrencyRejected(t *testing.T) {
	svc := newTestService(&repoStub{}, nil, &publisherStub{})

	_, err := svc.RequestPayout(context.Background(), uuid.New(), domain.RequestPayoutPayload{
		MethodID: uuid.New(),
		Amount:   100000,
		Currency: "KES",
	})

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for unsupported currency, got %v", err)
	}
}

func TestRequestPayout_ForeignMethodIndistinguishableFromMissing(t *testing.T) {
	repo := &repoStub{
		findPayoutMethodFn: func(ctx context.Context, methodID, creatorID uuid.UUID) (*domain.PayoutMethod, error) {
			return nil, store.ErrPayoutMethodNotFound
		},
	}
	svc := newTestService(repo, nil, &publisherStub{})

	_, err := svc.RequestPayout(context.Background(), uuid.New(), domain.RequestPayoutPayload{
		MethodID: uuid.New(),
		Amount:   15000,
		Currency: "TZS",
	})

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for foreign method, got %v", err)
	}
}

func TestRequestPayout_InsufficientFundsRejected(t *testing.T) {
	creatorID := uuid.New()
	methodID := uuid.New()
	repo := &repoStub{
		findPayoutMethodFn: func(ctx context.Context, mID, cID uuid.UUID) (*domain.PayoutMethod, error) {
			return &domain.PayoutMethod{ID: mID, CreatorID: cID}, nil
		},
		reservePayoutFn: func(ctx context.Context, request *domain.PayoutRequest) error {
			return store.ErrInsufficientFunds
		},
	}
	svc := newTestService(repo, nil, &publisherStub{})

	_, err := svc.RequestPayout(context.Background(), creatorID, domain.RequestPayoutPayload{
		MethodID: methodID,
		Amount:   250000,
		Currency: "TZS",
	})

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for over-withdrawal, got %v", err)
	}
}

func TestRequestPayout_ReservesAndPublishes(t *testing.T) {
	creatorID := uuid.New()
	methodID := uuid.New()
	var reserved *domain.PayoutRequest
	repo := &repoStub{
		findPayoutMethodFn: func(ctx context.Context, mID, cID uuid.UUID) (*domain.PayoutMethod, error) {
			return &domain.PayoutMethod{ID: mID, CreatorID: cID}, nil
		},
		reservePayoutFn: func(ctx context.Context, request *domain.PayoutRequest) error {
			reserved = request
			return nil
		},
	}
	events := &publisherStub{}
	svc := newTestService(repo, nil, events)

	request, err := svc.RequestPayout(context.Background(), creatorID, domain.RequestPayoutPayload{
		MethodID: methodID,
		Amount:   10000,
		Currency: "TZS",
	})
	if err != nil {
		t.Fatalf("RequestPayout returned error: %v", err)
	}
	if reserved == nil || reserved.Status != domain.PayoutStatusPending {
		t.Fatalf("expected a pending reservation, got %+v", reserved)
	}
	if request.Amount != 10000 {
		t.Fatalf("unexpected amount %d", request.Amount)
	}
	if !events.published(domain.EventPayoutRequested) {
		t.Error("payout.requested event was not published")
	}
}

func TestProcessPayout_CompletedTransferSettles(t *testing.T) {
	requestID := uuid.New()
	creatorID := uuid.New()
	methodID := uuid.New()
	settleCalls := 0
	repo := &repoStub{
		claimPayoutFn: func(ctx context.Context, id uuid.UUID) (*domain.PayoutRequest, error) {
			return &domain.PayoutRequest{ID: id, CreatorID: creatorID, MethodID: methodID, Amount: 50000, Currency: "TZS", Status: domain.PayoutStatusProcessing}, nil
		},
		findPayoutMethodFn: func(ctx context.Context, mID, cID uuid.UUID) (*domain.PayoutMethod, error) {
			return &domain.PayoutMethod{ID: mID, CreatorID: cID, GatewayCounterpartyID: "cp_123"}, nil
		},
		settlePayoutFn: func(ctx context.Context, id uuid.UUID, ref string, paidAt time.Time) (bool, error) {
			settleCalls++
			return true, nil
		},
	}
	gateway := &gatewayStub{
		createTransferFn: func(ctx context.Context, counterpartyID, reference, narration, currency string, amount int64) (*gatewayclient.TransferResponse, error) {
			if counterpartyID != "cp_123" {
				t.Errorf("unexpected counterparty %s", counterpartyID)
			}
			if reference != requestID.String() {
				t.Errorf("idempotency reference must be the request ID, got %s", reference)
			}
			return transferResponse("tr_abc", gatewayclient.TransferStatusCompleted, ""), nil
		},
	}
	events := &publisherStub{}
	svc := newTestService(repo, gateway, events)

	request, err := svc.ProcessPayout(context.Background(), requestID)
	if err != nil {
		t.Fatalf("ProcessPayout returned error: %v", err)
	}
	if request.Status != domain.PayoutStatusPaid {
		t.Fatalf("expected paid, got %s", request.Status)
	}
	if settleCalls != 1 {
		t.Fatalf("expected exactly one settlement, got %d", settleCalls)
	}
	if !events.published(domain.EventPayoutPaid) {
		t.Error("payout.paid event was not published")
	}
}

func TestProcessPayout_GatewayRejectionReleasesReservationOnce(t *testing.T) {
	requestID := uuid.New()
	creatorID := uuid.New()
	methodID := uuid.New()
	failCalls := 0
	repo := &repoStub{
		claimPayoutFn: func(ctx context.Context, id uuid.UUID) (*domain.PayoutRequest, error) {
			return &domain.PayoutRequest{ID: id, CreatorID: creatorID, MethodID: methodID, Amount: 50000, Currency: "TZS", Status: domain.PayoutStatusProcessing}, nil
		},
		findPayoutMethodFn: func(ctx context.Context, mID, cID uuid.UUID) (*domain.PayoutMethod, error) {
			return &domain.PayoutMethod{ID: mID, CreatorID: cID, GatewayCounterpartyID: "cp_123"}, nil
		},
		failPayoutFn: func(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
			failCalls++
			return true, nil
		},
	}
	reject := &gatewayclient.ErrorResponse{}
	reject.Errors = append(reject.Errors, struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	}{Title: "invalid_counterparty", Detail: "counterparty is closed", Status: "422"})
	gateway := &gatewayStub{
		createTransferFn: func(ctx context.Context, counterpartyID, reference, narration, currency string, amount int64) (*gatewayclient.TransferResponse, error) {
			return nil, reject
		},
	}
	events := &publisherStub{}
	svc := newTestService(repo, gateway, events)

	request, err := svc.ProcessPayout(context.Background(), requestID)

	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if failCalls != 1 {
		t.Fatalf("compensation must run exactly once, got %d", failCalls)
	}
	if request == nil || request.Status != domain.PayoutStatusFailed {
		t.Fatalf("expected failed request, got %+v", request)
	}
	if !events.published(domain.EventPayoutFailed) {
		t.Error("payout.failed event was not published")
	}
}

func TestProcessPayout_MethodLookupFailureReleasesReservation(t *testing.T) {
	requestID := uuid.New()
	creatorID := uuid.New()
	methodID := uuid.New()
	failCalls := 0
	repo := &repoStub{
		claimPayoutFn: func(ctx context.Context, id uuid.UUID) (*domain.PayoutRequest, error) {
			return &domain.PayoutRequest{ID: id, CreatorID: creatorID, MethodID: methodID, Amount: 50000, Currency: "TZS", Status: domain.PayoutStatusProcessing}, nil
		},
		findPayoutMethodFn: func(ctx context.Context, mID, cID uuid.UUID) (*domain.PayoutMethod, error) {
			return nil, store.ErrPayoutMethodNotFound
		},
		failPayoutFn: func(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
			failCalls++
			return true, nil
		},
	}
	gateway := &gatewayStub{
		createTransferFn: func(ctx context.Context, counterpartyID, reference, narration, currency string, amount int64) (*gatewayclient.TransferResponse, error) {
			t.Fatal("the gateway must not be called without a resolved counterparty")
			return nil, nil
		},
	}
	events := &publisherStub{}
	svc := newTestService(repo, gateway, events)

	_, err := svc.ProcessPayout(context.Background(), requestID)

	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if failCalls != 1 {
		t.Fatalf("a pre-submission failure must release the reservation exactly once, got %d", failCalls)
	}
	if !events.published(domain.EventPayoutFailed) {
		t.Error("payout.failed event was not published")
	}
}

func TestProcessPayout_TimeoutLeavesRequestProcessing(t *testing.T) {
	requestID := uuid.New()
	creatorID := uuid.New()
	methodID := uuid.New()
	repo := &repoStub{
		claimPayoutFn: func(ctx context.Context, id uuid.UUID) (*domain.PayoutRequest, error) {
			return &domain.PayoutRequest{ID: id, CreatorID: creatorID, MethodID: methodID, Amount: 50000, Currency: "TZS", Status: domain.PayoutStatusProcessing}, nil
		},
		findPayoutMethodFn: func(ctx context.Context, mID, cID uuid.UUID) (*domain.PayoutMethod, error) {
			return &domain.PayoutMethod{ID: mID, CreatorID: cID, GatewayCounterpartyID: "cp_123"}, nil
		},
		failPayoutFn: func(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
			t.Fatal("a timed-out submission must never be guessed as failed")
			return false, nil
		},
		settlePayoutFn: func(ctx context.Context, id uuid.UUID, ref string, paidAt time.Time) (bool, error) {
			t.Fatal("a timed-out submission must never be guessed as paid")
			return false, nil
		},
	}
	gateway := &gatewayStub{
		createTransferFn: func(ctx context.Context, counterpartyID, reference, narration, currency string, amount int64) (*gatewayclient.TransferResponse, error) {
			return nil, context.DeadlineExceeded
		},
	}
	svc := newTestService(repo, gateway, &publisherStub{})

	_, err := svc.ProcessPayout(context.Background(), requestID)

	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
}

func TestProcessPayout_AlreadyClaimedRejected(t *testing.T) {
	repo := &repoStub{
		claimPayoutFn: func(ctx context.Context, id uuid.UUID) (*domain.PayoutRequest, error) {
			return nil, store.ErrInvalidStatusTransition
		},
	}
	svc := newTestService(repo, &gatewayStub{}, &publisherStub{})

	_, err := svc.ProcessPayout(context.Background(), uuid.New())

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for non-pending request, got %v", err)
	}
}

func TestCancelPayout_OnlyPending(t *testing.T) {
	repo := &repoStub{
		cancelPayoutFn: func(ctx context.Context, requestID, creatorID uuid.UUID) (*domain.PayoutRequest, error) {
			return nil, store.ErrInvalidStatusTransition
		},
	}
	svc := newTestService(repo, nil, &publisherStub{})

	_, err := svc.CancelPayout(context.Background(), uuid.New(), uuid.New())

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for non-pending cancellation, got %v", err)
	}
}

func TestHandleGatewayConfirmation_DuplicateDeliveryIsNoOp(t *testing.T) {
	requestID := uuid.New()
	creatorID := uuid.New()
	ref := "tr_abc"
	settleApplied := 0
	request := &domain.PayoutRequest{ID: requestID, CreatorID: creatorID, Amount: 50000, Currency: "TZS", Status: domain.PayoutStatusProcessing, ExternalReference: &ref}
	repo := &repoStub{
		findPayoutByExternalFn: func(ctx context.Context, external string) (*domain.PayoutRequest, error) {
			return request, nil
		},
		settlePayoutFn: func(ctx context.Context, id uuid.UUID, external string, paidAt time.Time) (bool, error) {
			// First delivery applies; repeats see the terminal row and no-op.
			settleApplied++
			return settleApplied == 1, nil
		},
		findPayoutByIDFn: func(ctx context.Context, id uuid.UUID) (*domain.PayoutRequest, error) {
			paid := *request
			paid.Status = domain.PayoutStatusPaid
			return &paid, nil
		},
	}
	svc := newTestService(repo, nil, &publisherStub{})

	confirmation := domain.GatewayConfirmation{ExternalID: ref, Status: "completed", Amount: 50000}
	for i := 0; i < 3; i++ {
		if err := svc.HandleGatewayConfirmation(context.Background(), confirmation); err != nil {
			t.Fatalf("delivery %d returned error: %v", i+1, err)
		}
	}

	if settleApplied != 3 {
		t.Fatalf("expected 3 conditional attempts, got %d", settleApplied)
	}
	// The conditional transition means only the first attempt mutated state;
	// the stub enforced that by returning applied=false afterwards.
}

func TestHandleGatewayConfirmation_FailureReleasesReservation(t *testing.T) {
	requestID := uuid.New()
	ref := "tr_fail"
	failCalls := 0
	request := &domain.PayoutRequest{ID: requestID, CreatorID: uuid.New(), Amount: 50000, Currency: "TZS", Status: domain.PayoutStatusProcessing, ExternalReference: &ref}
	repo := &repoStub{
		findPayoutByExternalFn: func(ctx context.Context, external string) (*domain.PayoutRequest, error) {
			return request, nil
		},
		failPayoutFn: func(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
			failCalls++
			if reason == "" {
				t.Error("failure reason must be populated")
			}
			return true, nil
		},
	}
	events := &publisherStub{}
	svc := newTestService(repo, nil, events)

	err := svc.HandleGatewayConfirmation(context.Background(), domain.GatewayConfirmation{
		ExternalID: ref,
		Status:     "failed",
		Reason:     "wallet suspended",
	})
	if err != nil {
		t.Fatalf("HandleGatewayConfirmation returned error: %v", err)
	}
	if failCalls != 1 {
		t.Fatalf("expected exactly one compensation, got %d", failCalls)
	}
	if !events.published(domain.EventPayoutFailed) {
		t.Error("payout.failed event was not published")
	}
}

func TestHandleGatewayConfirmation_UnknownReferenceAcked(t *testing.T) {
	repo := &repoStub{
		findPayoutByExternalFn: func(ctx context.Context, external string) (*domain.PayoutRequest, error) {
			return nil, store.ErrPayoutRequestNotFound
		},
	}
	svc := newTestService(repo, nil, &publisherStub{})

	if err := svc.HandleGatewayConfirmation(context.Background(), domain.GatewayConfirmation{ExternalID: "tr_unknown", Status: "completed"}); err != nil {
		t.Fatalf("unknown reference should be acknowledged, got %v", err)
	}
}
