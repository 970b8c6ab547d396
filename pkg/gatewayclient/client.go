/**
 * @description
 * This package provides a client for the external payout gateway. It
 * encapsulates the logic for making authenticated HTTP requests to the
 * gateway's disbursement endpoints, handling request body construction, and
 * parsing responses.
 *
 * Every disbursement carries an Idempotency-Key header (the payout request ID)
 * so a retried submission can never produce a second transfer on the rail.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Transfer statuses reported by the gateway.
const (
	TransferStatusCompleted  = "completed"
	TransferStatusProcessing = "processing"
	TransferStatusFailed     = "failed"
)

// Client is a client for the payout gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new payout gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TransferRequest represents the payload for a gateway disbursement.
type TransferRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Currency  string `json:"currency"`
			Amount    int64  `json:"amount"`
			Reference string `json:"reference"`
			Narration string `json:"narration"`
		} `json:"attributes"`
		Relationships struct {
			Counterparty struct {
				Data struct {
					Type string `json:"type"`
					ID   string `json:"id"`
				} `json:"data"`
			} `json:"counterparty"`
		} `json:"relationships"`
	} `json:"data"`
}

// TransferResponse is the expected response from the gateway's transfer endpoints.
type TransferResponse struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Status string `json:"status"`
			Reason string `json:"reason"`
		} `json:"attributes"`
	} `json:"data"`
}

// ErrorResponse represents a definitive rejection from the gateway API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("gateway api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown gateway api error"
}

// CreateTransfer submits a disbursement to the gateway. The reference doubles
// as the idempotency key: resubmitting the same reference returns the original
// transfer instead of creating a new one.
func (c *Client) CreateTransfer(ctx context.Context, counterpartyID, reference, narration, currency string, amount int64) (*TransferResponse, error) {
	reqPayload := TransferRequest{}
	reqPayload.Data.Type = "Disbursement"
	reqPayload.Data.Attributes.Currency = currency
	reqPayload.Data.Attributes.Amount = amount
	reqPayload.Data.Attributes.Reference = reference
	reqPayload.Data.Attributes.Narration = narration
	reqPayload.Data.Relationships.Counterparty.Data.Type = "Counterparty"
	reqPayload.Data.Relationships.Counterparty.Data.ID = counterpartyID

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/v1/transfers", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Idempotency-Key", reference)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute transfer request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transfer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=gateway_client op=create_transfer status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=gateway_client op=create_transfer status=%d title=%q detail=%q", resp.StatusCode, firstErrorTitle(errResp), firstErrorDetail(errResp))
		return nil, &errResp
	}

	var successResp TransferResponse
	if err := json.Unmarshal(bodyBytes, &successResp); err != nil {
		return nil, fmt.Errorf("failed to decode success response: %w", err)
	}

	return &successResp, nil
}

// GetTransfer fetches the current state of a transfer from the gateway. Used
// by reconciliation when a submission timed out and no webhook has arrived.
func (c *Client) GetTransfer(ctx context.Context, transferID string) (*TransferResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/api/v1/transfers/"+transferID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer lookup request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute transfer lookup: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transfer lookup response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=gateway_client op=get_transfer transfer_id=%s status=%d msg=\"non-2xx response (unparsable error body)\"", transferID, resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		return nil, &errResp
	}

	var successResp TransferResponse
	if err := json.Unmarshal(bodyBytes, &successResp); err != nil {
		return nil, fmt.Errorf("failed to decode transfer lookup response: %w", err)
	}

	return &successResp, nil
}

func firstErrorTitle(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Title
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
