package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/earnings-service/internal/domain"
	"github.com/creatorhub/earnings-service/internal/fees"
	"github.com/creatorhub/earnings-service/internal/store"
	"github.com/creatorhub/earnings-service/pkg/gatewayclient"
)

func settledTxn(creatorID uuid.UUID, payout int64) domain.Transaction {
	now := time.Now().UTC()
	return domain.Transaction{
		ID:            uuid.New(),
		CreatorID:     creatorID,
		Status:        domain.TxStatusCompleted,
		CreatorPayout: payout,
		SettledAt:     &now,
		AvailableAt:   &now,
	}
}

func TestRebuildBalance_EmptyHistory(t *testing.T) {
	balance := RebuildBalance(uuid.New(), nil, nil)
	if balance.TotalEarned != 0 || balance.AvailableBalance != 0 || balance.PendingBalance != 0 || balance.ReservedBalance != 0 || balance.TotalPaidOut != 0 {
		t.Fatalf("empty history must produce a zero balance, got %+v", balance)
	}
	if !balance.ConservationHolds() {
		t.Fatal("conservation must hold on the zero balance")
	}
}

func TestRebuildBalance_SettledAndPendingEarnings(t *testing.T) {
	creatorID := uuid.New()
	txns := []domain.Transaction{
		settledTxn(creatorID, 87000),
		{ID: uuid.New(), CreatorID: creatorID, Status: domain.TxStatusCompleted, CreatorPayout: 45000}, // awaiting settlement delay
		{ID: uuid.New(), CreatorID: creatorID, Status: domain.TxStatusPending, CreatorPayout: 12000},
		{ID: uuid.New(), CreatorID: creatorID, Status: domain.TxStatusFailed, CreatorPayout: 9000},
	}

	balance := RebuildBalance(creatorID, txns, nil)

	if balance.AvailableBalance != 87000 {
		t.Errorf("available = %d, want 87000", balance.AvailableBalance)
	}
	if balance.PendingBalance != 57000 {
		t.Errorf("pending = %d, want 57000", balance.PendingBalance)
	}
	if balance.TotalEarned != 144000 {
		t.Errorf("total earned = %d, want 144000", balance.TotalEarned)
	}
	if !balance.ConservationHolds() {
		t.Fatalf("conservation violated: %+v", balance)
	}
}

func TestRebuildBalance_RefundNetsToZero(t *testing.T) {
	creatorID := uuid.New()
	txns := []domain.Transaction{
		settledTxn(creatorID, 87000),
		{ID: uuid.New(), CreatorID: creatorID, Status: domain.TxStatusRefunded, CreatorPayout: 87000},
	}

	balance := RebuildBalance(creatorID, txns, nil)

	if balance.AvailableBalance != 87000 {
		t.Errorf("available = %d, want 87000", balance.AvailableBalance)
	}
	if balance.TotalEarned != 87000 {
		t.Errorf("refunded earning must not count toward total earned, got %d", balance.TotalEarned)
	}
	if !balance.ConservationHolds() {
		t.Fatalf("conservation violated: %+v", balance)
	}
}

func TestRebuildBalance_PayoutLifecycle(t *testing.T) {
	creatorID := uuid.New()
	txns := []domain.Transaction{settledTxn(creatorID, 200000)}

	cases := []struct {
		name          string
		status        string
		wantAvailable int64
		wantReserved  int64
		wantPaidOut   int64
	}{
		{name: "pending reserves funds", status: domain.PayoutStatusPending, wantAvailable: 150000, wantReserved: 50000, wantPaidOut: 0},
		{name: "processing keeps the reservation", status: domain.PayoutStatusProcessing, wantAvailable: 150000, wantReserved: 50000, wantPaidOut: 0},
		{name: "paid consumes the reservation", status: domain.PayoutStatusPaid, wantAvailable: 150000, wantReserved: 0, wantPaidOut: 50000},
		{name: "failed releases the reservation", status: domain.PayoutStatusFailed, wantAvailable: 200000, wantReserved: 0, wantPaidOut: 0},
		{name: "cancelled releases the reservation", status: domain.PayoutStatusCancelled, wantAvailable: 200000, wantReserved: 0, wantPaidOut: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			requests := []domain.PayoutRequest{{ID: uuid.New(), CreatorID: creatorID, Amount: 50000, Status: tc.status}}
			balance := RebuildBalance(creatorID, txns, requests)
			if balance.AvailableBalance != tc.wantAvailable {
				t.Errorf("available = %d, want %d", balance.AvailableBalance, tc.wantAvailable)
			}
			if balance.ReservedBalance != tc.wantReserved {
				t.Errorf("reserved = %d, want %d", balance.ReservedBalance, tc.wantReserved)
			}
			if balance.TotalPaidOut != tc.wantPaidOut {
				t.Errorf("paid out = %d, want %d", balance.TotalPaidOut, tc.wantPaidOut)
			}
			if !balance.ConservationHolds() {
				t.Fatalf("conservation violated: %+v", balance)
			}
		})
	}
}

func TestRebuildBalance_IsDeterministic(t *testing.T) {
	creatorID := uuid.New()
	txns := []domain.Transaction{
		settledTxn(creatorID, 87000),
		{ID: uuid.New(), CreatorID: creatorID, Status: domain.TxStatusPending, CreatorPayout: 13000},
	}
	requests := []domain.PayoutRequest{{ID: uuid.New(), CreatorID: creatorID, Amount: 20000, Status: domain.PayoutStatusPaid}}

	first := RebuildBalance(creatorID, txns, requests)
	for i := 0; i < 10; i++ {
		if got := RebuildBalance(creatorID, txns, requests); got != first {
			t.Fatalf("replay %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

// reconcileRepoStub extends repoStub with the read side the reconciler uses.
type reconcileRepoStub struct {
	repoStub

	txns      []domain.Transaction
	requests  []domain.PayoutRequest
	stale     []domain.PayoutRequest
	balance   *domain.Balance
	haltedSet *bool
}

func (s *reconcileRepoStub) ListAllTransactionsByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.Transaction, error) {
	return s.txns, nil
}

func (s *reconcileRepoStub) ListAllPayoutRequestsByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.PayoutRequest, error) {
	return s.requests, nil
}

func (s *reconcileRepoStub) GetBalance(ctx context.Context, creatorID uuid.UUID) (*domain.Balance, error) {
	return s.balance, nil
}

func (s *reconcileRepoStub) SetPayoutsHalted(ctx context.Context, creatorID uuid.UUID, halted bool) error {
	if s.haltedSet != nil {
		*s.haltedSet = halted
	}
	return nil
}

func (s *reconcileRepoStub) ListCreatorIDsWithBalances(ctx context.Context) ([]uuid.UUID, error) {
	return []uuid.UUID{s.balance.CreatorID}, nil
}

func (s *reconcileRepoStub) ListStaleProcessingPayouts(ctx context.Context, olderThan time.Time) ([]domain.PayoutRequest, error) {
	return s.stale, nil
}

func TestReconcileCreator_CleanLedgerPasses(t *testing.T) {
	creatorID := uuid.New()
	txns := []domain.Transaction{settledTxn(creatorID, 87000)}
	requests := []domain.PayoutRequest{{ID: uuid.New(), CreatorID: creatorID, Amount: 20000, Status: domain.PayoutStatusPaid}}
	repo := &reconcileRepoStub{
		txns:     txns,
		requests: requests,
		balance: &domain.Balance{
			CreatorID:        creatorID,
			AvailableBalance: 67000,
			PendingBalance:   0,
			TotalEarned:      87000,
			TotalPaidOut:     20000,
		},
	}
	svc := NewService(repo, fees.NewCalculator(fees.DefaultSchedule()), nil, nil, Config{MinPayout: map[string]int64{"TZS": 10000}})

	if err := svc.ReconcileCreator(context.Background(), creatorID); err != nil {
		t.Fatalf("clean ledger must reconcile, got %v", err)
	}
}

func TestReconcileCreator_InFlightReservationIsNotDrift(t *testing.T) {
	creatorID := uuid.New()
	halted := false
	repo := &reconcileRepoStub{
		txns:     []domain.Transaction{settledTxn(creatorID, 200000)},
		requests: []domain.PayoutRequest{{ID: uuid.New(), CreatorID: creatorID, Amount: 50000, Status: domain.PayoutStatusPending}},
		// The materialized row exactly as ReservePayout leaves it.
		balance: &domain.Balance{
			CreatorID:        creatorID,
			AvailableBalance: 150000,
			PendingBalance:   0,
			ReservedBalance:  50000,
			TotalEarned:      200000,
			TotalPaidOut:     0,
		},
		haltedSet: &halted,
	}
	events := &publisherStub{}
	svc := NewService(repo, fees.NewCalculator(fees.DefaultSchedule()), nil, events, Config{MinPayout: map[string]int64{"TZS": 10000}})

	if err := svc.ReconcileCreator(context.Background(), creatorID); err != nil {
		t.Fatalf("an in-flight reservation is a healthy ledger, got %v", err)
	}
	if halted {
		t.Error("payouts must not be halted for an in-flight reservation")
	}
	if events.published(domain.EventIntegrityViolation) {
		t.Error("no integrity violation event should fire for an in-flight reservation")
	}
}

func TestReconcileCreator_DriftHaltsPayouts(t *testing.T) {
	creatorID := uuid.New()
	halted := false
	repo := &reconcileRepoStub{
		txns: []domain.Transaction{settledTxn(creatorID, 87000)},
		balance: &domain.Balance{
			CreatorID:        creatorID,
			AvailableBalance: 90000, // drifted from the replayed 87000
			TotalEarned:      87000,
		},
		haltedSet: &halted,
	}
	events := &publisherStub{}
	svc := NewService(repo, fees.NewCalculator(fees.DefaultSchedule()), nil, events, Config{MinPayout: map[string]int64{"TZS": 10000}})

	err := svc.ReconcileCreator(context.Background(), creatorID)

	var violation *IntegrityViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected IntegrityViolationError, got %v", err)
	}
	if violation.Recomputed.AvailableBalance != 87000 {
		t.Errorf("recomputed available = %d, want 87000", violation.Recomputed.AvailableBalance)
	}
	if !halted {
		t.Error("drift must halt payouts for the creator")
	}
	if !events.published(domain.EventIntegrityViolation) {
		t.Error("integrity violation event was not published")
	}
}

func TestReconcileAll_CountsViolationsAndContinues(t *testing.T) {
	creatorID := uuid.New()
	repo := &reconcileRepoStub{
		txns: []domain.Transaction{settledTxn(creatorID, 50000)},
		balance: &domain.Balance{
			CreatorID:        creatorID,
			AvailableBalance: 1,
			TotalEarned:      50000,
		},
	}
	svc := NewService(repo, fees.NewCalculator(fees.DefaultSchedule()), nil, &publisherStub{}, Config{MinPayout: map[string]int64{"TZS": 10000}})

	violations, err := svc.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("ReconcileAll returned error: %v", err)
	}
	if violations != 1 {
		t.Fatalf("violations = %d, want 1", violations)
	}
}

func TestSweepStaleProcessing_NoReferenceRaisesOperatorAlert(t *testing.T) {
	creatorID := uuid.New()
	repo := &reconcileRepoStub{
		balance: &domain.Balance{CreatorID: creatorID},
		stale: []domain.PayoutRequest{{
			ID:        uuid.New(),
			CreatorID: creatorID,
			Amount:    50000,
			Currency:  "TZS",
			Status:    domain.PayoutStatusProcessing,
			UpdatedAt: time.Now().UTC().Add(-2 * time.Hour),
		}},
	}
	gateway := &gatewayStub{
		getTransferFn: func(ctx context.Context, transferID string) (*gatewayclient.TransferResponse, error) {
			t.Fatal("a request without a reference has nothing to probe")
			return nil, nil
		},
	}
	events := &publisherStub{}
	svc := NewService(repo, fees.NewCalculator(fees.DefaultSchedule()), gateway, events, Config{MinPayout: map[string]int64{"TZS": 10000}})

	if err := svc.SweepStaleProcessing(context.Background(), time.Hour); err != nil {
		t.Fatalf("SweepStaleProcessing returned error: %v", err)
	}
	if !events.published(domain.EventPayoutStuck) {
		t.Error("payout.stuck event was not published for the unreferenced request")
	}
}

var _ store.Repository = (*reconcileRepoStub)(nil)
