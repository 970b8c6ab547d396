/**
 * @description
 * This file defines the core ledger domain models for the earnings-service.
 * These structs represent the entities and data transfer objects (DTOs) used
 * throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (minor units),
 *   which avoids floating-point inaccuracies with financial data.
 * - A Transaction is immutable once `completed`, except for a later status
 *   transition to `refunded` which is applied as a compensating adjustment.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies the kind of creator earning a transaction represents.
type TransactionType string

const (
	TypeMarketplace           TransactionType = "marketplace"
	TypeDigitalProduct        TransactionType = "digital_product"
	TypeServiceBooking        TransactionType = "service_booking"
	TypeCommission            TransactionType = "commission"
	TypeSubscription          TransactionType = "subscription"
	TypeTip                   TransactionType = "tip"
	TypeEventBooking          TransactionType = "event_booking"
	TypeLodgingReservation    TransactionType = "lodging_reservation"
	TypeRestaurantReservation TransactionType = "restaurant_reservation"
	TypeArtisanService        TransactionType = "artisan_service"
	TypeFreelanceInvoice      TransactionType = "freelance_invoice"
	TypePerformanceBooking    TransactionType = "performance_booking"
)

// Transaction statuses.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusRefunded  = "refunded"
	TxStatusFailed    = "failed"
)

// FeeBreakdown is the fee split computed for one gross amount. All values are
// minor units of the transaction currency.
type FeeBreakdown struct {
	Subtotal      int64 `json:"subtotal"`
	PlatformFee   int64 `json:"platform_fee"`
	ProcessingFee int64 `json:"payment_processing_fee"`
	TotalFees     int64 `json:"total_fees"`
	CreatorPayout int64 `json:"creator_payout"`
	Total         int64 `json:"total"`
}

// Transaction represents one ledger record of money earned by a creator.
// This struct maps directly to the `transactions` table in the database.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	CreatorID       uuid.UUID       `json:"creator_id"`
	BuyerID         *uuid.UUID      `json:"buyer_id,omitempty"`
	Type            TransactionType `json:"transaction_type"`
	Currency        string          `json:"currency"`
	GrossAmount     int64           `json:"gross_amount"`
	Subtotal        int64           `json:"subtotal"`
	PlatformFee     int64           `json:"platform_fee"`
	ProcessingFee   int64           `json:"payment_processing_fee"`
	TotalFees       int64           `json:"total_fees"`
	CreatorPayout   int64           `json:"creator_payout"`
	Status          string          `json:"status"`
	RelatedEntityID *string         `json:"related_entity_id,omitempty"`
	// BalanceAfter is an audit snapshot of the creator's available balance
	// immediately after this transaction was applied to the ledger.
	BalanceAfter int64      `json:"balance_after"`
	AvailableAt  *time.Time `json:"available_at,omitempty"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RecordTransactionRequest is the DTO submitted by sale/booking collaborators
// when a payment has been confirmed. Collaborators supply the gross amount and
// classification only; the fee split is computed here, never by the caller.
type RecordTransactionRequest struct {
	CreatorID       uuid.UUID       `json:"creator_id"`
	BuyerID         *uuid.UUID      `json:"buyer_id,omitempty"`
	Type            TransactionType `json:"transaction_type"`
	Currency        string          `json:"currency"`
	GrossAmount     int64           `json:"gross_amount"`
	Status          string          `json:"status,omitempty"`
	RelatedEntityID *string         `json:"related_entity_id,omitempty"`
}

// TransactionListOptions controls pagination for a creator's ledger history.
type TransactionListOptions struct {
	Limit  int
	Offset int
	Status string
}
