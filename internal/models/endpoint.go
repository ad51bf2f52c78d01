package models

// Endpoint transport types.
const (
	EndpointWebhook = "webhook"
	EndpointSyslog  = "syslog"
)

// SIEMEndpoint is a named shipping target for the outbound pipeline.
// Registration replaces any prior endpoint with the same ID wholesale;
// there are no partial updates beyond the enabled toggle.
type SIEMEndpoint struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"` // "webhook" or "syslog"
	URL             string `json:"url,omitempty"`
	APIKey          string `json:"api_key,omitempty"`
	Host            string `json:"host,omitempty"`
	Port            int    `json:"port,omitempty"`
	Protocol        string `json:"protocol,omitempty"` // "tcp" or "udp"
	Enabled         bool   `json:"enabled"`
	BatchSize       int    `json:"batch_size"`
	FlushIntervalMs int64  `json:"flush_interval_ms"`
	RetryAttempts   int    `json:"retry_attempts"`
	RetryDelayMs    int64  `json:"retry_delay_ms"`
}

// ShipperStats are per-endpoint delivery counters. They accumulate
// monotonically and reset only on process restart.
type ShipperStats struct {
	TotalShipped int64  `json:"total_shipped"`
	TotalFailed  int64  `json:"total_failed"`
	LastShipTime int64  `json:"last_ship_time,omitempty"` // Unix ms
	LastError    string `json:"last_error,omitempty"`
	QueueSize    int    `json:"queue_size"`
}
