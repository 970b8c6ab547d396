/**
 * @description
 * This file defines the Balance projection and reporting models. The Balance is
 * a materialized view derived from the transaction and payout-request history;
 * it is never an independent source of truth and must always be rebuildable by
 * replaying the ledger from empty state.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Balance is the per-creator materialized money position. The conservation
// invariant holds at all times:
//
//	TotalEarned == AvailableBalance + PendingBalance + ReservedBalance + TotalPaidOut
//
// ReservedBalance is the sum held by pending and processing payout requests:
// no longer spendable, not yet disbursed. A settled payout moves it to
// TotalPaidOut; a failed or cancelled one returns it to AvailableBalance.
type Balance struct {
	CreatorID        uuid.UUID `json:"creator_id"`
	AvailableBalance int64     `json:"available_balance"`
	PendingBalance   int64     `json:"pending_balance"`
	ReservedBalance  int64     `json:"reserved_balance"`
	TotalEarned      int64     `json:"total_earned"`
	TotalPaidOut     int64     `json:"total_paid_out"`
	// PayoutsHalted is set when reconciliation detects drift between the
	// materialized row and the replayed ledger. It blocks new payout
	// requests for this creator until an operator intervenes.
	PayoutsHalted bool      `json:"payouts_halted"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ConservationHolds reports whether the conservation invariant is satisfied.
func (b Balance) ConservationHolds() bool {
	return b.TotalEarned == b.AvailableBalance+b.PendingBalance+b.ReservedBalance+b.TotalPaidOut
}

// EarningsByType is one row of the per-type earnings breakdown.
type EarningsByType struct {
	Type     TransactionType `json:"transaction_type"`
	Earnings int64           `json:"earnings"`
	Count    int64           `json:"count"`
}

// EarningsSummary is the read-only reporting view for a creator.
type EarningsSummary struct {
	CreatorID        uuid.UUID        `json:"creator_id"`
	TotalEarned      int64            `json:"total_earned"`
	AvailableBalance int64            `json:"available_balance"`
	PendingBalance   int64            `json:"pending_balance"`
	ReservedBalance  int64            `json:"reserved_balance"`
	TotalPaidOut     int64            `json:"total_paid_out"`
	ByType           []EarningsByType `json:"by_type"`
}

// Creator is the minimal identity view this service needs. Identity and
// ownership live with an external collaborator; this is a pure lookup.
type Creator struct {
	ID          uuid.UUID `json:"id"`
	AuthSubject string    `json:"auth_subject"`
}
