/**
 * @description
 * PostgreSQL implementation of the payout side of the `Repository` interface:
 * payout methods, the payout request state machine, and webhook delivery
 * dedupe records.
 *
 * The reservation discipline lives here: `ReservePayout` moves the amount
 * from the available balance into the reserved balance and creates the pending
 * request under the same row lock used by ledger writes, so two concurrent
 * requests whose combined amount exceeds the available balance can never both
 * succeed. Settlement consumes the reservation into total_paid_out; failure
 * and cancellation return it to available. Settlement and compensation are
 * conditional single-row transitions, which makes replayed gateway
 * confirmations a natural no-op.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/creatorhub/earnings-service/internal/domain"
)

// CreatePayoutMethod inserts a payout destination. The first method for a
// creator always becomes the default; an explicit default demotes the rest.
func (r *PostgresRepository) CreatePayoutMethod(ctx context.Context, method *domain.PayoutMethod) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var existing int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM payout_methods WHERE creator_id = $1", method.CreatorID).Scan(&existing); err != nil {
		return err
	}
	if existing == 0 {
		method.IsDefault = true
	}
	if method.IsDefault {
		if _, err := tx.Exec(ctx, "UPDATE payout_methods SET is_default = false, updated_at = NOW() WHERE creator_id = $1", method.CreatorID); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payout_methods (id, creator_id, type, provider, destination_masked, gateway_counterparty_id, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		method.ID,
		method.CreatorID,
		method.Type,
		method.Provider,
		method.DestinationMasked,
		method.GatewayCounterpartyID,
		method.IsDefault,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const payoutMethodColumns = `
	id, creator_id, type, provider, destination_masked, gateway_counterparty_id, is_default, created_at, updated_at`

func scanPayoutMethod(row pgx.Row) (*domain.PayoutMethod, error) {
	var method domain.PayoutMethod
	err := row.Scan(
		&method.ID,
		&method.CreatorID,
		&method.Type,
		&method.Provider,
		&method.DestinationMasked,
		&method.GatewayCounterpartyID,
		&method.IsDefault,
		&method.CreatedAt,
		&method.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &method, nil
}

// FindPayoutMethodByID retrieves a method owned by the given creator. A method
// belonging to another creator is indistinguishable from a missing one.
func (r *PostgresRepository) FindPayoutMethodByID(ctx context.Context, methodID uuid.UUID, creatorID uuid.UUID) (*domain.PayoutMethod, error) {
	method, err := scanPayoutMethod(r.db.QueryRow(ctx,
		"SELECT "+payoutMethodColumns+" FROM payout_methods WHERE id = $1 AND creator_id = $2",
		methodID, creatorID,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutMethodNotFound
		}
		return nil, err
	}
	return method, nil
}

// ListPayoutMethodsByCreator retrieves all payout methods for a creator.
func (r *PostgresRepository) ListPayoutMethodsByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.PayoutMethod, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+payoutMethodColumns+" FROM payout_methods WHERE creator_id = $1 ORDER BY is_default DESC, created_at DESC",
		creatorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var methods []domain.PayoutMethod
	for rows.Next() {
		method, err := scanPayoutMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, *method)
	}
	return methods, nil
}

// SetDefaultPayoutMethod makes one method the default, demoting the others in
// the same transaction so exactly one default exists per creator.
func (r *PostgresRepository) SetDefaultPayoutMethod(ctx context.Context, creatorID uuid.UUID, methodID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var count int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM payout_methods WHERE id = $1 AND creator_id = $2", methodID, creatorID).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return ErrPayoutMethodNotFound
	}

	if _, err := tx.Exec(ctx, "UPDATE payout_methods SET is_default = false, updated_at = NOW() WHERE creator_id = $1", creatorID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "UPDATE payout_methods SET is_default = true, updated_at = NOW() WHERE id = $1 AND creator_id = $2", methodID, creatorID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ReservePayout atomically (a) verifies the creator's available balance covers
// the amount, (b) moves it into the reserved balance, and (c) creates the
// request in `pending`. The FOR UPDATE lock on the balance row is the
// serialization boundary shared with ledger writes.
func (r *PostgresRepository) ReservePayout(ctx context.Context, request *domain.PayoutRequest) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalanceRow(ctx, tx, request.CreatorID)
	if err != nil {
		return err
	}

	if balance.PayoutsHalted {
		return ErrPayoutsHalted
	}
	if balance.AvailableBalance < request.Amount {
		return ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx,
		"UPDATE balances SET available_balance = available_balance - $1, reserved_balance = reserved_balance + $1, updated_at = NOW() WHERE creator_id = $2",
		request.Amount, request.CreatorID,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payout_requests (id, creator_id, method_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
	`,
		request.ID,
		request.CreatorID,
		request.MethodID,
		request.Amount,
		request.Currency,
	)
	if err != nil {
		return err
	}

	request.Status = domain.PayoutStatusPending
	return tx.Commit(ctx)
}

const payoutRequestColumns = `
	id, creator_id, method_id, amount, currency, status, external_reference,
	failure_reason, requested_at, processed_at, payout_date, updated_at`

func scanPayoutRequest(row pgx.Row) (*domain.PayoutRequest, error) {
	var request domain.PayoutRequest
	err := row.Scan(
		&request.ID,
		&request.CreatorID,
		&request.MethodID,
		&request.Amount,
		&request.Currency,
		&request.Status,
		&request.ExternalReference,
		&request.FailureReason,
		&request.RequestedAt,
		&request.ProcessedAt,
		&request.PayoutDate,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// ClaimPayoutForProcessing transitions pending -> processing. The conditional
// UPDATE makes the claim exclusive: a second concurrent worker gets no row.
func (r *PostgresRepository) ClaimPayoutForProcessing(ctx context.Context, requestID uuid.UUID) (*domain.PayoutRequest, error) {
	request, err := scanPayoutRequest(r.db.QueryRow(ctx, `
		UPDATE payout_requests
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+payoutRequestColumns, requestID))
	if err != nil {
		if err == pgx.ErrNoRows {
			// Distinguish "missing" from "not claimable".
			if _, lookupErr := r.FindPayoutRequestByID(ctx, requestID); lookupErr != nil {
				return nil, lookupErr
			}
			return nil, ErrInvalidStatusTransition
		}
		return nil, err
	}
	return request, nil
}

// AttachExternalReference records the gateway transfer id on an in-flight
// request so later confirmations can be mapped back.
func (r *PostgresRepository) AttachExternalReference(ctx context.Context, requestID uuid.UUID, externalReference string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE payout_requests SET external_reference = $1, updated_at = NOW() WHERE id = $2",
		externalReference, requestID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPayoutRequestNotFound
	}
	return nil
}

// SettlePayout transitions processing -> paid and consumes the reservation,
// moving the amount from reserved_balance to total_paid_out. Returns false
// without error when the request was not in `processing`, which makes
// duplicate confirmations a no-op.
func (r *PostgresRepository) SettlePayout(ctx context.Context, requestID uuid.UUID, externalReference string, paidAt time.Time) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var creatorID uuid.UUID
	var amount int64
	err = tx.QueryRow(ctx, `
		UPDATE payout_requests
		SET status = 'paid',
		    external_reference = COALESCE(NULLIF($2, ''), external_reference),
		    processed_at = $3,
		    payout_date = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING creator_id, amount
	`, requestID, externalReference, paidAt).Scan(&creatorID, &amount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	if _, err := lockBalanceRow(ctx, tx, creatorID); err != nil {
		return false, err
	}
	_, err = tx.Exec(ctx,
		"UPDATE balances SET reserved_balance = reserved_balance - $1, total_paid_out = total_paid_out + $1, updated_at = NOW() WHERE creator_id = $2",
		amount, creatorID,
	)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// FailPayout transitions processing -> failed and returns the reserved amount
// to the available balance as a compensating adjustment. Returns false without
// error when the request was not in `processing`.
func (r *PostgresRepository) FailPayout(ctx context.Context, requestID uuid.UUID, failureReason string) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var creatorID uuid.UUID
	var amount int64
	err = tx.QueryRow(ctx, `
		UPDATE payout_requests
		SET status = 'failed', failure_reason = $2, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING creator_id, amount
	`, requestID, failureReason).Scan(&creatorID, &amount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	if _, err := lockBalanceRow(ctx, tx, creatorID); err != nil {
		return false, err
	}
	_, err = tx.Exec(ctx,
		"UPDATE balances SET reserved_balance = reserved_balance - $1, available_balance = available_balance + $1, updated_at = NOW() WHERE creator_id = $2",
		amount, creatorID,
	)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// CancelPayout transitions pending -> cancelled and releases the reservation.
// Only the owning creator can cancel, and only before processing begins.
func (r *PostgresRepository) CancelPayout(ctx context.Context, requestID uuid.UUID, creatorID uuid.UUID) (*domain.PayoutRequest, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	request, err := scanPayoutRequest(tx.QueryRow(ctx, `
		UPDATE payout_requests
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND creator_id = $2 AND status = 'pending'
		RETURNING `+payoutRequestColumns, requestID, creatorID))
	if err != nil {
		if err == pgx.ErrNoRows {
			var status string
			lookupErr := tx.QueryRow(ctx, "SELECT status FROM payout_requests WHERE id = $1 AND creator_id = $2", requestID, creatorID).Scan(&status)
			if lookupErr == pgx.ErrNoRows {
				return nil, ErrPayoutRequestNotFound
			}
			if lookupErr != nil {
				return nil, lookupErr
			}
			return nil, ErrInvalidStatusTransition
		}
		return nil, err
	}

	if _, err := lockBalanceRow(ctx, tx, creatorID); err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		"UPDATE balances SET reserved_balance = reserved_balance - $1, available_balance = available_balance + $1, updated_at = NOW() WHERE creator_id = $2",
		request.Amount, creatorID,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return request, nil
}

// FindPayoutRequestByID retrieves one payout request.
func (r *PostgresRepository) FindPayoutRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.PayoutRequest, error) {
	request, err := scanPayoutRequest(r.db.QueryRow(ctx,
		"SELECT "+payoutRequestColumns+" FROM payout_requests WHERE id = $1", requestID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutRequestNotFound
		}
		return nil, err
	}
	return request, nil
}

// FindPayoutRequestByExternalReference maps a gateway transfer id back to the
// originating request.
func (r *PostgresRepository) FindPayoutRequestByExternalReference(ctx context.Context, externalReference string) (*domain.PayoutRequest, error) {
	request, err := scanPayoutRequest(r.db.QueryRow(ctx,
		"SELECT "+payoutRequestColumns+" FROM payout_requests WHERE external_reference = $1", externalReference))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutRequestNotFound
		}
		return nil, err
	}
	return request, nil
}

// ListPayoutRequestsByCreator retrieves a page of the creator's payout history.
func (r *PostgresRepository) ListPayoutRequestsByCreator(ctx context.Context, creatorID uuid.UUID, limit, offset int) ([]domain.PayoutRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		"SELECT "+payoutRequestColumns+" FROM payout_requests WHERE creator_id = $1 ORDER BY requested_at DESC LIMIT $2 OFFSET $3",
		creatorID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.PayoutRequest
	for rows.Next() {
		request, err := scanPayoutRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}
	return requests, nil
}

// ListAllPayoutRequestsByCreator retrieves the creator's complete payout
// history in insertion order, for reconciliation replay.
func (r *PostgresRepository) ListAllPayoutRequestsByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.PayoutRequest, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+payoutRequestColumns+" FROM payout_requests WHERE creator_id = $1 ORDER BY requested_at ASC",
		creatorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.PayoutRequest
	for rows.Next() {
		request, err := scanPayoutRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}
	return requests, nil
}

// ListStaleProcessingPayouts returns requests stuck in `processing` longer
// than the retry/reconciliation window. They are surfaced for operators, never
// guessed into `failed`, to avoid a false compensation racing a late success.
func (r *PostgresRepository) ListStaleProcessingPayouts(ctx context.Context, olderThan time.Time) ([]domain.PayoutRequest, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+payoutRequestColumns+" FROM payout_requests WHERE status = 'processing' AND updated_at < $1 ORDER BY updated_at ASC",
		olderThan,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.PayoutRequest
	for rows.Next() {
		request, err := scanPayoutRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}
	return requests, nil
}

// RecordWebhookDelivery inserts a dedupe record for one gateway confirmation.
// Returns false when the same (external_id, status) pair was seen before.
func (r *PostgresRepository) RecordWebhookDelivery(ctx context.Context, externalID, status string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO webhook_deliveries (external_id, status)
		VALUES ($1, $2)
		ON CONFLICT (external_id, status) DO NOTHING
	`, externalID, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
