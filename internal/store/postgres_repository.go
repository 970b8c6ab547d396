/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface
 * for the ledger side of the service: creators, transactions, and the
 * materialized balance projection. Payout methods and payout requests live in
 * postgres_payout.go.
 *
 * Serialization discipline: every balance mutation locks the creator's
 * `balances` row with SELECT ... FOR UPDATE inside one database transaction,
 * so concurrent writes for the same creator cannot read a stale balance, while
 * writes for different creators proceed in parallel.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creatorhub/earnings-service/internal/domain"
)

var (
	ErrCreatorNotFound         = errors.New("creator not found")
	ErrBalanceNotFound         = errors.New("balance not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrPayoutMethodNotFound    = errors.New("payout method not found")
	ErrPayoutRequestNotFound   = errors.New("payout request not found")
	ErrInsufficientFunds       = errors.New("insufficient available balance")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrPayoutsHalted           = errors.New("payouts halted for creator")
)

// IsSerializationFailure reports whether err is a Postgres serialization or
// deadlock failure that is safe to retry.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindCreatorIDByAuthSubject resolves the internal UUID from an auth provider
// subject. The creators table is managed by the identity collaborator.
func (r *PostgresRepository) FindCreatorIDByAuthSubject(ctx context.Context, authSubject string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, "SELECT id FROM creators WHERE auth_subject = $1", authSubject).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrCreatorNotFound
		}
		return "", err
	}
	return id, nil
}

// lockBalanceRow creates the creator's balance row on first use and locks it
// for the remainder of the enclosing database transaction.
func lockBalanceRow(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID) (*domain.Balance, error) {
	_, err := tx.Exec(ctx, "INSERT INTO balances (creator_id) VALUES ($1) ON CONFLICT (creator_id) DO NOTHING", creatorID)
	if err != nil {
		return nil, err
	}

	var balance domain.Balance
	err = tx.QueryRow(ctx, `
		SELECT creator_id, available_balance, pending_balance, reserved_balance, total_earned, total_paid_out, payouts_halted, updated_at
		FROM balances
		WHERE creator_id = $1
		FOR UPDATE
	`, creatorID).Scan(
		&balance.CreatorID,
		&balance.AvailableBalance,
		&balance.PendingBalance,
		&balance.ReservedBalance,
		&balance.TotalEarned,
		&balance.TotalPaidOut,
		&balance.PayoutsHalted,
		&balance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// CreateLedgerTransaction persists the transaction and applies its effect to
// the creator's balance as a single atomic unit: both succeed or both fail.
// `balance_after` is derived from the locked balance row, never from a prior
// read, so concurrent writers cannot produce an inconsistent snapshot.
func (r *PostgresRepository) CreateLedgerTransaction(ctx context.Context, txn *domain.Transaction) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalanceRow(ctx, tx, txn.CreatorID)
	if err != nil {
		return err
	}

	settled := txn.SettledAt != nil

	available := balance.AvailableBalance
	pending := balance.PendingBalance
	if settled {
		available += txn.CreatorPayout
	} else {
		pending += txn.CreatorPayout
	}
	txn.BalanceAfter = available

	_, err = tx.Exec(ctx, `
		UPDATE balances
		SET available_balance = $1, pending_balance = $2, total_earned = total_earned + $3, updated_at = NOW()
		WHERE creator_id = $4
	`, available, pending, txn.CreatorPayout, txn.CreatorID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (
			id, creator_id, buyer_id, transaction_type, currency, gross_amount,
			subtotal, platform_fee, payment_processing_fee, total_fees, creator_payout,
			status, related_entity_id, balance_after, available_at, settled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		txn.ID,
		txn.CreatorID,
		txn.BuyerID,
		txn.Type,
		txn.Currency,
		txn.GrossAmount,
		txn.Subtotal,
		txn.PlatformFee,
		txn.ProcessingFee,
		txn.TotalFees,
		txn.CreatorPayout,
		txn.Status,
		txn.RelatedEntityID,
		txn.BalanceAfter,
		txn.AvailableAt,
		txn.SettledAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkTransactionStatus applies one legal status transition and its
// compensating balance adjustment atomically. Legal transitions:
// pending->completed, completed->refunded, pending->failed. A refund is a
// compensating adjustment through the balance row, never a silent subtraction.
func (r *PostgresRepository) MarkTransactionStatus(ctx context.Context, transactionID uuid.UUID, newStatus string, availableAt *time.Time, settleImmediately bool) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	txn, err := scanTransaction(tx.QueryRow(ctx, selectTransactionSQL+" WHERE id = $1 FOR UPDATE", transactionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	if !legalTransition(txn.Status, newStatus) {
		return nil, ErrInvalidStatusTransition
	}

	balance, err := lockBalanceRow(ctx, tx, txn.CreatorID)
	if err != nil {
		return nil, err
	}

	available := balance.AvailableBalance
	pending := balance.PendingBalance
	earnedDelta := int64(0)
	settledAt := txn.SettledAt

	switch newStatus {
	case domain.TxStatusCompleted:
		if settleImmediately {
			now := time.Now().UTC()
			pending -= txn.CreatorPayout
			available += txn.CreatorPayout
			settledAt = &now
		}
	case domain.TxStatusFailed:
		pending -= txn.CreatorPayout
		earnedDelta = -txn.CreatorPayout
	case domain.TxStatusRefunded:
		if txn.SettledAt != nil {
			available -= txn.CreatorPayout
		} else {
			pending -= txn.CreatorPayout
		}
		earnedDelta = -txn.CreatorPayout
	}

	_, err = tx.Exec(ctx, `
		UPDATE balances
		SET available_balance = $1, pending_balance = $2, total_earned = total_earned + $3, updated_at = NOW()
		WHERE creator_id = $4
	`, available, pending, earnedDelta, txn.CreatorID)
	if err != nil {
		return nil, err
	}

	updated, err := scanTransaction(tx.QueryRow(ctx, `
		UPDATE transactions
		SET status = $2, available_at = COALESCE($3, available_at), settled_at = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+transactionColumns,
		transactionID, newStatus, availableAt, settledAt,
	))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func legalTransition(current, next string) bool {
	switch current {
	case domain.TxStatusPending:
		return next == domain.TxStatusCompleted || next == domain.TxStatusFailed
	case domain.TxStatusCompleted:
		return next == domain.TxStatusRefunded
	default:
		return false
	}
}

const transactionColumns = `
	id, creator_id, buyer_id, transaction_type, currency, gross_amount,
	subtotal, platform_fee, payment_processing_fee, total_fees, creator_payout,
	status, related_entity_id, balance_after, available_at, settled_at,
	created_at, updated_at`

const selectTransactionSQL = `SELECT ` + transactionColumns + ` FROM transactions`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := row.Scan(
		&txn.ID,
		&txn.CreatorID,
		&txn.BuyerID,
		&txn.Type,
		&txn.Currency,
		&txn.GrossAmount,
		&txn.Subtotal,
		&txn.PlatformFee,
		&txn.ProcessingFee,
		&txn.TotalFees,
		&txn.CreatorPayout,
		&txn.Status,
		&txn.RelatedEntityID,
		&txn.BalanceAfter,
		&txn.AvailableAt,
		&txn.SettledAt,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindTransactionByID retrieves one ledger transaction.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	txn, err := scanTransaction(r.db.QueryRow(ctx, selectTransactionSQL+" WHERE id = $1", transactionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

// ListTransactionsByCreator retrieves a page of the creator's ledger history.
func (r *PostgresRepository) ListTransactionsByCreator(ctx context.Context, creatorID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := selectTransactionSQL + " WHERE creator_id = $1"
	args := []interface{}{creatorID}
	if opts.Status != "" {
		query += " AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4"
		args = append(args, opts.Status, limit, offset)
	} else {
		query += " ORDER BY created_at DESC LIMIT $2 OFFSET $3"
		args = append(args, limit, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *txn)
	}
	return transactions, nil
}

// ListAllTransactionsByCreator retrieves the creator's complete ledger history
// in insertion order. Used by reconciliation to replay from empty state.
func (r *PostgresRepository) ListAllTransactionsByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, selectTransactionSQL+" WHERE creator_id = $1 ORDER BY created_at ASC", creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *txn)
	}
	return transactions, nil
}

// PromoteMaturedFunds moves pending earnings whose settlement hold has elapsed
// into the available balance, per creator, in one statement. Returns the number
// of transactions promoted.
func (r *PostgresRepository) PromoteMaturedFunds(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		WITH matured AS (
			UPDATE transactions
			SET settled_at = $1, updated_at = NOW()
			WHERE status = 'completed' AND settled_at IS NULL AND available_at IS NOT NULL AND available_at <= $1
			RETURNING creator_id, creator_payout
		), agg AS (
			SELECT creator_id, SUM(creator_payout) AS total
			FROM matured
			GROUP BY creator_id
		)
		UPDATE balances b
		SET pending_balance = b.pending_balance - agg.total,
		    available_balance = b.available_balance + agg.total,
		    updated_at = NOW()
		FROM agg
		WHERE b.creator_id = agg.creator_id
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetBalance returns the materialized balance for a creator. This is the
// single shared source for any "available to pay out" figure in the system.
func (r *PostgresRepository) GetBalance(ctx context.Context, creatorID uuid.UUID) (*domain.Balance, error) {
	var balance domain.Balance
	err := r.db.QueryRow(ctx, `
		SELECT creator_id, available_balance, pending_balance, reserved_balance, total_earned, total_paid_out, payouts_halted, updated_at
		FROM balances
		WHERE creator_id = $1
	`, creatorID).Scan(
		&balance.CreatorID,
		&balance.AvailableBalance,
		&balance.PendingBalance,
		&balance.ReservedBalance,
		&balance.TotalEarned,
		&balance.TotalPaidOut,
		&balance.PayoutsHalted,
		&balance.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			// A creator with no ledger activity has an empty balance.
			return &domain.Balance{CreatorID: creatorID}, nil
		}
		return nil, err
	}
	return &balance, nil
}

// GetEarningsSummary returns totals plus a per-type breakdown for reporting.
// Purely derived and read-only; failed and refunded transactions are excluded.
func (r *PostgresRepository) GetEarningsSummary(ctx context.Context, creatorID uuid.UUID) (*domain.EarningsSummary, error) {
	balance, err := r.GetBalance(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	summary := &domain.EarningsSummary{
		CreatorID:        creatorID,
		TotalEarned:      balance.TotalEarned,
		AvailableBalance: balance.AvailableBalance,
		PendingBalance:   balance.PendingBalance,
		ReservedBalance:  balance.ReservedBalance,
		TotalPaidOut:     balance.TotalPaidOut,
	}

	rows, err := r.db.Query(ctx, `
		SELECT transaction_type, COALESCE(SUM(creator_payout), 0), COUNT(*)
		FROM transactions
		WHERE creator_id = $1 AND status IN ('pending', 'completed')
		GROUP BY transaction_type
		ORDER BY transaction_type
	`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var row domain.EarningsByType
		if err := rows.Scan(&row.Type, &row.Earnings, &row.Count); err != nil {
			return nil, err
		}
		summary.ByType = append(summary.ByType, row)
	}
	return summary, nil
}

// SetPayoutsHalted flips the per-creator payout halt flag. Reconciliation sets
// it on drift; only an operator clears it.
func (r *PostgresRepository) SetPayoutsHalted(ctx context.Context, creatorID uuid.UUID, halted bool) error {
	tag, err := r.db.Exec(ctx, "UPDATE balances SET payouts_halted = $1, updated_at = NOW() WHERE creator_id = $2", halted, creatorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

// ListCreatorIDsWithBalances returns every creator with ledger activity, for
// the reconciliation sweep.
func (r *PostgresRepository) ListCreatorIDsWithBalances(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, "SELECT creator_id FROM balances ORDER BY creator_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
