/**
 * @description
 * Balance projection and reconciliation. The materialized balance row is a
 * cache; the ledger (transactions plus payout requests) is the source of
 * truth. RebuildBalance replays the full history through a pure fold, and the
 * reconciler compares that replay against the materialized row. Any drift
 * halts payouts for the creator and raises an operator alert. Drift is never
 * auto-corrected.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/earnings-service/internal/domain"
)

// RebuildBalance recomputes a creator's balance by folding the complete
// transaction and payout history from empty state. It is pure: no clock, no
// I/O, deterministic for a given history.
func RebuildBalance(creatorID uuid.UUID, txns []domain.Transaction, requests []domain.PayoutRequest) domain.Balance {
	balance := domain.Balance{CreatorID: creatorID}

	for _, txn := range txns {
		switch txn.Status {
		case domain.TxStatusPending:
			balance.TotalEarned += txn.CreatorPayout
			balance.PendingBalance += txn.CreatorPayout
		case domain.TxStatusCompleted:
			balance.TotalEarned += txn.CreatorPayout
			if txn.SettledAt != nil {
				balance.AvailableBalance += txn.CreatorPayout
			} else {
				balance.PendingBalance += txn.CreatorPayout
			}
		case domain.TxStatusRefunded, domain.TxStatusFailed:
			// Net zero: the earning and its compensation cancel out.
		}
	}

	for _, req := range requests {
		switch req.Status {
		case domain.PayoutStatusPending, domain.PayoutStatusProcessing:
			// Funds are reserved but not yet disbursed.
			balance.AvailableBalance -= req.Amount
			balance.ReservedBalance += req.Amount
		case domain.PayoutStatusPaid:
			balance.AvailableBalance -= req.Amount
			balance.TotalPaidOut += req.Amount
		case domain.PayoutStatusFailed, domain.PayoutStatusCancelled:
			// Reservation was released; net zero.
		}
	}

	return balance
}

func balancesDiffer(materialized, recomputed domain.Balance) bool {
	return materialized.AvailableBalance != recomputed.AvailableBalance ||
		materialized.PendingBalance != recomputed.PendingBalance ||
		materialized.ReservedBalance != recomputed.ReservedBalance ||
		materialized.TotalEarned != recomputed.TotalEarned ||
		materialized.TotalPaidOut != recomputed.TotalPaidOut
}

// ReconcileCreator replays one creator's ledger and compares it against the
// materialized balance. On drift, payouts are halted and an
// IntegrityViolationError is returned.
func (s *Service) ReconcileCreator(ctx context.Context, creatorID uuid.UUID) error {
	txns, err := s.repo.ListAllTransactionsByCreator(ctx, creatorID)
	if err != nil {
		return err
	}
	requests, err := s.repo.ListAllPayoutRequestsByCreator(ctx, creatorID)
	if err != nil {
		return err
	}
	materialized, err := s.repo.GetBalance(ctx, creatorID)
	if err != nil {
		return err
	}

	recomputed := RebuildBalance(creatorID, txns, requests)

	if !balancesDiffer(*materialized, recomputed) && recomputed.ConservationHolds() {
		return nil
	}

	violation := &IntegrityViolationError{
		CreatorID:    creatorID,
		Materialized: *materialized,
		Recomputed:   recomputed,
	}

	log.Printf("level=error component=reconciler msg=\"balance drift detected, halting payouts\" creator_id=%s detail=%q", creatorID, violation.Error())

	if err := s.repo.SetPayoutsHalted(ctx, creatorID, true); err != nil {
		log.Printf("level=error component=reconciler msg=\"failed to halt payouts after drift\" creator_id=%s err=%v", creatorID, err)
	}

	s.publish(domain.EventIntegrityViolation, domain.IntegrityViolationEvent{
		CreatorID:    creatorID,
		Materialized: *materialized,
		Recomputed:   recomputed,
		Timestamp:    time.Now().UTC(),
	})

	return violation
}

// ReconcileAll sweeps every creator with a balance row. It keeps going past
// individual drift so one broken ledger cannot hide another, and returns the
// number of violations found.
func (s *Service) ReconcileAll(ctx context.Context) (int, error) {
	creatorIDs, err := s.repo.ListCreatorIDsWithBalances(ctx)
	if err != nil {
		return 0, err
	}

	violations := 0
	for _, creatorID := range creatorIDs {
		if ctx.Err() != nil {
			return violations, ctx.Err()
		}
		if err := s.ReconcileCreator(ctx, creatorID); err != nil {
			if _, ok := err.(*IntegrityViolationError); ok {
				violations++
				continue
			}
			return violations, err
		}
	}

	if violations > 0 {
		log.Printf("level=error component=reconciler msg=\"reconciliation sweep found violations\" count=%d creators=%d", violations, len(creatorIDs))
	} else {
		log.Printf("level=info component=reconciler msg=\"reconciliation sweep clean\" creators=%d", len(creatorIDs))
	}
	return violations, nil
}

// PromoteMaturedFunds moves completed-but-unsettled earnings whose settlement
// delay has elapsed from pending to available.
func (s *Service) PromoteMaturedFunds(ctx context.Context) (int64, error) {
	var promoted int64
	err := s.withConflictRetry(ctx, func() error {
		var opErr error
		promoted, opErr = s.repo.PromoteMaturedFunds(ctx, time.Now().UTC())
		return opErr
	})
	if err != nil {
		return 0, err
	}
	if promoted > 0 {
		log.Printf("level=info component=settlement msg=\"promoted matured funds\" transactions=%d", promoted)
	}
	return promoted, nil
}

// SweepStaleProcessing probes the gateway for payout requests stuck in
// processing past the given age. A terminal answer from the rail resolves the
// request; an inconclusive one only alerts, it never guesses an outcome.
func (s *Service) SweepStaleProcessing(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().UTC().Add(-olderThan)
	stale, err := s.repo.ListStaleProcessingPayouts(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, req := range stale {
		if req.ExternalReference == nil {
			// The reference write was lost after a submission that may have
			// reached the rail. There is nothing to probe; an operator has to
			// match the request against the rail by hand.
			log.Printf("level=error component=reconciler msg=\"stale processing payout with no external reference\" request_id=%s age_cutoff=%s", req.ID, cutoff.Format(time.RFC3339))
			s.publish(domain.EventPayoutStuck, domain.PayoutStuckEvent{
				RequestID:  req.ID,
				CreatorID:  req.CreatorID,
				Amount:     req.Amount,
				Currency:   req.Currency,
				StuckSince: req.UpdatedAt,
				Timestamp:  time.Now().UTC(),
			})
			continue
		}

		resp, err := s.gateway.GetTransfer(ctx, *req.ExternalReference)
		if err != nil {
			log.Printf("level=warn component=reconciler msg=\"gateway probe inconclusive for stale payout\" request_id=%s external_id=%s err=%v", req.ID, *req.ExternalReference, err)
			continue
		}

		r := req
		switch resp.Data.Attributes.Status {
		case "completed", "successful", "paid":
			if _, err := s.settlePayout(ctx, &r, *req.ExternalReference); err != nil {
				log.Printf("level=error component=reconciler msg=\"failed to settle stale payout\" request_id=%s err=%v", req.ID, err)
			}
		case "failed", "reversed":
			reason := resp.Data.Attributes.Reason
			if reason == "" {
				reason = "transfer failed on the payment rail"
			}
			if _, err := s.failPayout(ctx, &r, reason); err != nil {
				var gwErr *GatewayError
				if !errors.As(err, &gwErr) {
					log.Printf("level=error component=reconciler msg=\"failed to release stale payout\" request_id=%s err=%v", req.ID, err)
				}
			}
		default:
			log.Printf("level=warn component=reconciler msg=\"payout still processing on the rail\" request_id=%s external_id=%s", req.ID, *req.ExternalReference)
		}
	}

	return nil
}
