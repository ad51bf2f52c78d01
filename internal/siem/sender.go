package siem

import (
	"context"
	"fmt"

	"github.com/quorumsec/auditcore/internal/models"
)

// Sender dispatches a batch to the protocol adapter matching the
// endpoint's transport type. It is the single delivery entry point the
// shipping pipeline uses.
type Sender struct {
	webhook *Webhook
	syslog  *Syslogger
}

// NewSender creates a Sender with both protocol adapters wired.
func NewSender() *Sender {
	return &Sender{webhook: NewWebhook(), syslog: NewSyslogger()}
}

// Send delivers the batch via the endpoint's protocol. An unknown
// transport type is a configuration error.
func (s *Sender) Send(ctx context.Context, endpoint models.SIEMEndpoint, events []models.AuditEvent) error {
	switch endpoint.Type {
	case models.EndpointWebhook:
		return s.webhook.Ship(ctx, endpoint, events)
	case models.EndpointSyslog:
		return s.syslog.Ship(ctx, endpoint, events)
	default:
		return fmt.Errorf("endpoint %q has unknown type %q", endpoint.ID, endpoint.Type)
	}
}
