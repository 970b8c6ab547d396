/**
 * @description
 * Event payloads published to RabbitMQ. Publishing is fire-and-forget: a
 * notification failure can never affect ledger correctness, so these events
 * carry enough context for downstream consumers without requiring a read back.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the earnings.events exchange.
const (
	EventTransactionRecorded = "transaction.recorded"
	EventTransactionRefunded = "transaction.refunded"
	EventPayoutRequested     = "payout.requested"
	EventPayoutPaid          = "payout.paid"
	EventPayoutFailed        = "payout.failed"
	EventPayoutStuck         = "payout.stuck"
	EventIntegrityViolation  = "balance.integrity_violation"
)

// TransactionEvent announces a ledger write.
type TransactionEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	CreatorID     uuid.UUID       `json:"creator_id"`
	Type          TransactionType `json:"transaction_type"`
	Currency      string          `json:"currency"`
	GrossAmount   int64           `json:"gross_amount"`
	CreatorPayout int64           `json:"creator_payout"`
	Status        string          `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
}

// PayoutEvent announces a payout state change.
type PayoutEvent struct {
	RequestID         uuid.UUID `json:"request_id"`
	CreatorID         uuid.UUID `json:"creator_id"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	ExternalReference string    `json:"external_reference,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// PayoutStuckEvent is the operator alert raised when a payout request has sat
// in `processing` past the reconciliation window with no transfer reference to
// probe. The reservation cannot be released automatically; someone has to
// match the request against the rail by hand.
type PayoutStuckEvent struct {
	RequestID  uuid.UUID `json:"request_id"`
	CreatorID  uuid.UUID `json:"creator_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	StuckSince time.Time `json:"stuck_since"`
	Timestamp  time.Time `json:"timestamp"`
}

// IntegrityViolationEvent is the operator alert raised when reconciliation
// finds that the materialized balance has drifted from the replayed ledger.
type IntegrityViolationEvent struct {
	CreatorID    uuid.UUID `json:"creator_id"`
	Materialized Balance   `json:"materialized"`
	Recomputed   Balance   `json:"recomputed"`
	Timestamp    time.Time `json:"timestamp"`
}

// PaymentConfirmedEvent is the message sale/booking collaborators publish when
// a buyer payment settles. It mirrors RecordTransactionRequest.
type PaymentConfirmedEvent struct {
	CreatorID       uuid.UUID       `json:"creator_id"`
	BuyerID         *uuid.UUID      `json:"buyer_id,omitempty"`
	Type            TransactionType `json:"transaction_type"`
	Currency        string          `json:"currency"`
	GrossAmount     int64           `json:"gross_amount"`
	RelatedEntityID *string         `json:"related_entity_id,omitempty"`
}
