package siem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quorumsec/auditcore/internal/models"
)

// WebhookPayload is the JSON envelope POSTed to HTTP collection
// endpoints. The field names are part of the external wire contract.
type WebhookPayload struct {
	Events   []models.AuditEvent `json:"events"`
	Metadata WebhookMetadata     `json:"metadata"`
}

// WebhookMetadata describes the shipment itself.
type WebhookMetadata struct {
	Product    string `json:"product"`
	Version    string `json:"version"`
	ShipTime   string `json:"shipTime"`
	EventCount int    `json:"eventCount"`
}

// Webhook delivers event batches to HTTP/webhook endpoints as a single
// JSON POST per batch.
type Webhook struct {
	client *http.Client
}

// NewWebhook creates a webhook adapter with a 30 second request timeout.
func NewWebhook() *Webhook {
	return &Webhook{client: &http.Client{Timeout: 30 * time.Second}}
}

// Ship posts the batch to the endpoint's URL. A missing URL is a
// configuration error; any non-2xx response is a delivery failure
// carrying the HTTP status.
func (w *Webhook) Ship(ctx context.Context, endpoint models.SIEMEndpoint, events []models.AuditEvent) error {
	if endpoint.URL == "" {
		return fmt.Errorf("webhook endpoint %q has no URL configured", endpoint.ID)
	}

	payload := WebhookPayload{
		Events: events,
		Metadata: WebhookMetadata{
			Product:    models.ProductName,
			Version:    models.ProductVersion,
			ShipTime:   time.Now().UTC().Format(time.RFC3339),
			EventCount: len(events),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if endpoint.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+endpoint.APIKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %s", resp.Status)
	}
	return nil
}
