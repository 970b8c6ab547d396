/**
 * @description
 * This file defines the payout-side domain models: payout methods (where a
 * creator wants to receive money) and payout requests (the state machine that
 * moves reserved funds through the external payment rail).
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payout method types.
const (
	MethodMobileMoney  = "mobile_money"
	MethodBankTransfer = "bank_transfer"
)

// PayoutRequest statuses. pending -> processing -> {paid | failed} and
// pending -> cancelled; paid, failed and cancelled are terminal.
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusPaid       = "paid"
	PayoutStatusFailed     = "failed"
	PayoutStatusCancelled  = "cancelled"
)

// PayoutMethod represents a creator's saved payout destination.
type PayoutMethod struct {
	ID        uuid.UUID `json:"id"`
	CreatorID uuid.UUID `json:"creator_id"`
	Type      string    `json:"type"`
	Provider  string    `json:"provider"`
	// DestinationMasked is a display-safe rendering of the account number or
	// phone number; the full destination lives with the gateway counterparty.
	DestinationMasked     string    `json:"destination_masked"`
	GatewayCounterpartyID string    `json:"gateway_counterparty_id"`
	IsDefault             bool      `json:"is_default"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// PayoutRequest is one attempt to move earned funds out to a creator.
type PayoutRequest struct {
	ID                uuid.UUID  `json:"id"`
	CreatorID         uuid.UUID  `json:"creator_id"`
	MethodID          uuid.UUID  `json:"method_id"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	ExternalReference *string    `json:"external_reference,omitempty"`
	FailureReason     *string    `json:"failure_reason,omitempty"`
	RequestedAt       time.Time  `json:"requested_at"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	PayoutDate        *time.Time `json:"payout_date,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// RequestPayoutPayload is the DTO for the creator-facing payout endpoint.
type RequestPayoutPayload struct {
	MethodID uuid.UUID `json:"method_id"`
	Amount   int64     `json:"amount"`
	Currency string    `json:"currency"`
}

// CreatePayoutMethodPayload is the DTO for registering a payout destination.
type CreatePayoutMethodPayload struct {
	Type                  string `json:"type"`
	Provider              string `json:"provider"`
	DestinationMasked     string `json:"destination_masked"`
	GatewayCounterpartyID string `json:"gateway_counterparty_id"`
	IsDefault             bool   `json:"is_default"`
}

// GatewayConfirmation is the payload delivered by the payment rail's webhook
// channel. Deliveries are at-least-once and may arrive out of order.
type GatewayConfirmation struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	Reason     string `json:"reason,omitempty"`
}
