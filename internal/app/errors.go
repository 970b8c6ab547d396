/**
 * @description
 * Error taxonomy for the earnings core. Handlers map these to HTTP statuses so
 * user-visible failures always explain which category applies.
 *
 * - ValidationError: rejected before any state mutation.
 * - ConcurrencyConflictError: optimistic-lock/serialization failure that
 *   survived the bounded internal retry; transient for the caller.
 * - GatewayError: the payment rail call failed or timed out; compensation has
 *   been applied where safe, and the engine never auto-resubmits.
 * - IntegrityViolationError: the conservation invariant does not hold when the
 *   balance is recomputed from the ledger; fatal for the affected creator.
 */

package app

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/creatorhub/earnings-service/internal/domain"
)

// ValidationError rejects a request before any state changes.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConcurrencyConflictError signals that a balance write kept colliding after
// the bounded retry budget was spent. The caller may simply try again.
type ConcurrencyConflictError struct {
	Err error
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("balance update conflict, try again: %v", e.Err)
}

func (e *ConcurrencyConflictError) Unwrap() error { return e.Err }

// GatewayError signals that the payment rail rejected, failed, or timed out.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IntegrityViolationError is raised when reconciliation finds drift between
// the materialized balance and the replayed ledger. Payouts for the creator
// are halted; the drift is never silently auto-corrected.
type IntegrityViolationError struct {
	CreatorID    uuid.UUID
	Materialized domain.Balance
	Recomputed   domain.Balance
}

func (e *IntegrityViolationError) Error() string {
	return fmt.Sprintf(
		"balance integrity violation for creator %s: materialized {available=%d pending=%d reserved=%d earned=%d paid_out=%d} vs recomputed {available=%d pending=%d reserved=%d earned=%d paid_out=%d}",
		e.CreatorID,
		e.Materialized.AvailableBalance, e.Materialized.PendingBalance, e.Materialized.ReservedBalance, e.Materialized.TotalEarned, e.Materialized.TotalPaidOut,
		e.Recomputed.AvailableBalance, e.Recomputed.PendingBalance, e.Recomputed.ReservedBalance, e.Recomputed.TotalEarned, e.Recomputed.TotalPaidOut,
	)
}
