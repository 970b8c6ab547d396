/**
 * @description
 * Webhook endpoint for the payout gateway. The gateway signs the raw request
 * body with HMAC-SHA256 using a shared secret; the signature arrives in the
 * X-Gateway-Signature header as hex. Verification happens on the exact bytes
 * received, before any JSON decoding.
 *
 * Deliveries are at-least-once and unordered. The endpoint acknowledges with
 * 200 once the confirmation has been durably applied (or recognized as a
 * duplicate); any other response makes the gateway retry.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/creatorhub/earnings-service/internal/domain"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// verifyWebhookSignature checks the HMAC-SHA256 hex signature over body.
func verifyWebhookSignature(secret string, body []byte, provided string) bool {
	if secret == "" || provided == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	provided = strings.TrimSpace(provided)
	provided = strings.TrimPrefix(provided, "sha256=")
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(provided)))
}

// PayoutWebhookHandler applies transfer outcome notifications from the gateway.
func (h *EarningsHandlers) PayoutWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	if !verifyWebhookSignature(h.webhookSecret, body, r.Header.Get("X-Gateway-Signature")) {
		log.Printf("level=warn component=api endpoint=payout_webhook msg=\"signature verification failed\" remote=%s", r.RemoteAddr)
		h.writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var confirmation domain.GatewayConfirmation
	if err := json.Unmarshal(body, &confirmation); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}
	confirmation.Status = strings.ToLower(strings.TrimSpace(confirmation.Status))

	if err := h.service.HandleGatewayConfirmation(r.Context(), confirmation); err != nil {
		h.writeServiceError(w, "payout_webhook", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
