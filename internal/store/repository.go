/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the earnings-service. By defining an
 * interface, we decouple the application's business logic from the specific
 * database implementation (PostgreSQL), making the code more modular and easier
 * to test.
 *
 * All balance mutations behind this interface are serialized per creator via
 * row locking; two concurrent mutations for the same creator can never
 * interleave into a lost update, while different creators proceed in parallel.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/earnings-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Creator identity (pure lookup; identity is owned by an external collaborator)
	FindCreatorIDByAuthSubject(ctx context.Context, authSubject string) (string, error)

	// Ledger methods
	CreateLedgerTransaction(ctx context.Context, txn *domain.Transaction) error
	MarkTransactionStatus(ctx context.Context, transactionID uuid.UUID, newStatus string, availableAt *time.Time, settleImmediately bool) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	ListTransactionsByCreator(ctx context.Context, creatorID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error)
	ListAllTransactionsByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.Transaction, error)
	PromoteMaturedFunds(ctx context.Context, now time.Time) (int64, error)

	// Balance projection methods
	GetBalance(ctx context.Context, creatorID uuid.UUID) (*domain.Balance, error)
	GetEarningsSummary(ctx context.Context, creatorID uuid.UUID) (*domain.EarningsSummary, error)
	SetPayoutsHalted(ctx context.Context, creatorID uuid.UUID, halted bool) error
	ListCreatorIDsWithBalances(ctx context.Context) ([]uuid.UUID, error)

	// Payout method methods
	CreatePayoutMethod(ctx context.Context, method *domain.PayoutMethod) error
	FindPayoutMethodByID(ctx context.Context, methodID uuid.UUID, creatorID uuid.UUID) (*domain.PayoutMethod, error)
	ListPayoutMethodsByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.PayoutMethod, error)
	SetDefaultPayoutMethod(ctx context.Context, creatorID uuid.UUID, methodID uuid.UUID) error

	// Payout request state machine
	ReservePayout(ctx context.Context, request *domain.PayoutRequest) error
	ClaimPayoutForProcessing(ctx context.Context, requestID uuid.UUID) (*domain.PayoutRequest, error)
	AttachExternalReference(ctx context.Context, requestID uuid.UUID, externalReference string) error
	SettlePayout(ctx context.Context, requestID uuid.UUID, externalReference string, paidAt time.Time) (bool, error)
	FailPayout(ctx context.Context, requestID uuid.UUID, failureReason string) (bool, error)
	CancelPayout(ctx context.Context, requestID uuid.UUID, creatorID uuid.UUID) (*domain.PayoutRequest, error)
	FindPayoutRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.PayoutRequest, error)
	FindPayoutRequestByExternalReference(ctx context.Context, externalReference string) (*domain.PayoutRequest, error)
	ListPayoutRequestsByCreator(ctx context.Context, creatorID uuid.UUID, limit, offset int) ([]domain.PayoutRequest, error)
	ListAllPayoutRequestsByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.PayoutRequest, error)
	ListStaleProcessingPayouts(ctx context.Context, olderThan time.Time) ([]domain.PayoutRequest, error)

	// Webhook delivery dedupe
	RecordWebhookDelivery(ctx context.Context, externalID, status string) (bool, error)
}
