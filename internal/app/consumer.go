/**
 * @description
 * AMQP consumer handlers. Sale and booking collaborators publish a
 * payment-confirmed event when a buyer payment settles; this handler records
 * the earning in the ledger. Gateway transfer updates can also arrive over the
 * bus as a backup channel to the HTTP webhook.
 *
 * Handlers return true to ack. Malformed payloads are acked and dropped (a
 * requeue would loop forever); transient processing errors are nacked so the
 * broker redelivers.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/creatorhub/earnings-service/internal/domain"
)

// PaymentConfirmedConsumer records ledger transactions from bus events.
type PaymentConfirmedConsumer struct {
	service *Service
}

func NewPaymentConfirmedConsumer(service *Service) *PaymentConfirmedConsumer {
	return &PaymentConfirmedConsumer{service: service}
}

func (c *PaymentConfirmedConsumer) HandleMessage(body []byte) bool {
	var event domain.PaymentConfirmedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=payment_consumer msg=\"failed to unmarshal payload; dropping\" err=%v", err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := c.service.RecordTransaction(ctx, domain.RecordTransactionRequest{
		CreatorID:       event.CreatorID,
		BuyerID:         event.BuyerID,
		Type:            event.Type,
		Currency:        event.Currency,
		GrossAmount:     event.GrossAmount,
		RelatedEntityID: event.RelatedEntityID,
	})
	if err != nil {
		var validation *ValidationError
		if errors.As(err, &validation) {
			// A bad event will not get better on redelivery.
			log.Printf("level=warn component=payment_consumer msg=\"rejected payment event; dropping\" creator_id=%s reason=%q", event.CreatorID, validation.Reason)
			return true
		}
		log.Printf("level=error component=payment_consumer msg=\"processing error; re-queuing\" creator_id=%s err=%v", event.CreatorID, err)
		return false
	}

	return true
}

// TransferStatusConsumer applies gateway transfer outcomes delivered over the
// bus. It shares the webhook path, so dedupe and conditional transitions
// apply identically regardless of which channel delivered the news first.
type TransferStatusConsumer struct {
	service *Service
}

func NewTransferStatusConsumer(service *Service) *TransferStatusConsumer {
	return &TransferStatusConsumer{service: service}
}

func (c *TransferStatusConsumer) HandleMessage(body []byte) bool {
	var confirmation domain.GatewayConfirmation
	if err := json.Unmarshal(body, &confirmation); err != nil {
		log.Printf("level=warn component=transfer_consumer msg=\"failed to unmarshal payload; dropping\" err=%v", err)
		return true
	}

	confirmation.Status = strings.ToLower(strings.TrimSpace(confirmation.Status))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.service.HandleGatewayConfirmation(ctx, confirmation); err != nil {
		var validation *ValidationError
		if errors.As(err, &validation) {
			log.Printf("level=warn component=transfer_consumer msg=\"rejected transfer event; dropping\" external_id=%s reason=%q", confirmation.ExternalID, validation.Reason)
			return true
		}
		log.Printf("level=error component=transfer_consumer msg=\"processing error; re-queuing\" external_id=%s err=%v", confirmation.ExternalID, err)
		return false
	}

	return true
}
