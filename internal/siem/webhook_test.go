package siem

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quorumsec/auditcore/internal/models"
	"github.com/quorumsec/auditcore/internal/ocsf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent(msg string) models.AuditEvent {
	event := models.AuditEvent{
		ID:       "test-" + msg,
		Time:     time.Now().UnixMilli(),
		Category: ocsf.CategoryAuthentication,
		Activity: ocsf.ActivityDeny,
		Severity: ocsf.SeverityCritical,
		Status:   ocsf.StatusFailure,
		Message:  msg,
	}
	event.Normalize()
	return event
}

func TestWebhookShipPostsEnvelope(t *testing.T) {
	var gotPayload WebhookPayload
	var gotContentType, gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	endpoint := models.SIEMEndpoint{
		ID:     "hook",
		Type:   models.EndpointWebhook,
		URL:    server.URL,
		APIKey: "s3cret",
	}
	events := []models.AuditEvent{sampleEvent("one"), sampleEvent("two")}

	require.NoError(t, NewWebhook().Ship(context.Background(), endpoint, events))

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Bearer s3cret", gotAuth)
	require.Len(t, gotPayload.Events, 2)
	assert.Equal(t, "one", gotPayload.Events[0].Message)
	assert.Equal(t, models.ProductName, gotPayload.Metadata.Product)
	assert.Equal(t, models.ProductVersion, gotPayload.Metadata.Version)
	assert.Equal(t, 2, gotPayload.Metadata.EventCount)
	_, err := time.Parse(time.RFC3339, gotPayload.Metadata.ShipTime)
	assert.NoError(t, err)
}

func TestWebhookShipOmitsAuthWithoutKey(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	endpoint := models.SIEMEndpoint{ID: "hook", Type: models.EndpointWebhook, URL: server.URL}
	require.NoError(t, NewWebhook().Ship(context.Background(), endpoint, []models.AuditEvent{sampleEvent("x")}))
	assert.Empty(t, gotAuth)
}

func TestWebhookShipNon2xxFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	endpoint := models.SIEMEndpoint{ID: "hook", Type: models.EndpointWebhook, URL: server.URL}
	err := NewWebhook().Ship(context.Background(), endpoint, []models.AuditEvent{sampleEvent("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookShipMissingURL(t *testing.T) {
	endpoint := models.SIEMEndpoint{ID: "hook", Type: models.EndpointWebhook}
	err := NewWebhook().Ship(context.Background(), endpoint, []models.AuditEvent{sampleEvent("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no URL")
}

func TestSenderDispatch(t *testing.T) {
	sender := NewSender()

	err := sender.Send(context.Background(), models.SIEMEndpoint{ID: "odd", Type: "carrier-pigeon"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")

	// Config errors from the adapters surface through Send unchanged.
	err = sender.Send(context.Background(), models.SIEMEndpoint{ID: "s", Type: models.EndpointSyslog}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing host or port")
}
