package models

import (
	"encoding/json"
	"time"

	"github.com/quorumsec/auditcore/internal/ocsf"
)

// Product metadata stamped onto every event this service persists.
const (
	ProductName    = "auditcore"
	ProductVersion = "1.4.2"
)

// Actor identifies who or what performed the audited operation.
type Actor struct {
	User    string `json:"user,omitempty"`
	Process string `json:"process,omitempty"`
	Session string `json:"session,omitempty"`
}

// Target describes the object the operation acted on.
type Target struct {
	Type string          `json:"type"`
	Name string          `json:"name,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Metadata carries the fixed schema/product identification block.
type Metadata struct {
	Version        string `json:"version"`
	Product        string `json:"product"`
	ProductVersion string `json:"product_version"`
}

// AuditEvent is the atomic unit of the audit log. Events are immutable
// once persisted; they are only ever read, or deleted en masse by the
// retention sweeper.
type AuditEvent struct {
	ID           string        `json:"id"`
	Time         int64         `json:"time"` // Unix milliseconds
	ClassUID     int           `json:"class_uid"`
	ClassName    string        `json:"class_name"`
	Category     ocsf.Category `json:"category_uid"`
	CategoryName string        `json:"category_name"`
	Activity     ocsf.Activity `json:"activity_id"`
	ActivityName string        `json:"activity_name"`
	Severity     ocsf.Severity `json:"severity_id"`
	SeverityName string        `json:"severity"`
	Status       ocsf.Status   `json:"status_id"`
	StatusName   string        `json:"status"`
	StatusDetail string        `json:"status_detail,omitempty"`
	Message      string        `json:"message"`
	Actor        *Actor        `json:"actor,omitempty"`
	Target       *Target       `json:"target,omitempty"`
	Metadata     Metadata      `json:"metadata"`
	RawData      string        `json:"raw_data,omitempty"`
}

// Normalize fills the derived name fields and the fixed class/product
// block from the numeric enum codes.
func (e *AuditEvent) Normalize() {
	e.ClassUID = ocsf.ClassUID
	e.ClassName = ocsf.ClassName
	e.CategoryName = e.Category.String()
	e.ActivityName = e.Activity.String()
	e.SeverityName = e.Severity.String()
	e.StatusName = e.Status.String()
	e.Metadata = Metadata{
		Version:        ocsf.SchemaVersion,
		Product:        ProductName,
		ProductVersion: ProductVersion,
	}
}

// Timestamp returns the event time as a time.Time in UTC.
func (e *AuditEvent) Timestamp() time.Time {
	return time.UnixMilli(e.Time).UTC()
}

// LogParams is the narrow producer-facing contract: everything a caller
// may supply when recording an event. Category, Activity, and Message
// are required; the rest default to zero values.
type LogParams struct {
	Category     ocsf.Category
	Activity     ocsf.Activity
	Severity     ocsf.Severity
	Status       ocsf.Status
	StatusDetail string
	Message      string
	ActorUser    string
	ActorProcess string
	ActorSession string
	TargetType   string
	TargetName   string
	TargetData   json.RawMessage
	RawData      string
}

// EventFilter selects events for queries and exports. Zero values mean
// "no constraint"; all present constraints are ANDed.
type EventFilter struct {
	StartTime  int64         `json:"start_time,omitempty"` // Unix ms, inclusive
	EndTime    int64         `json:"end_time,omitempty"`   // Unix ms, inclusive
	Category   ocsf.Category `json:"category_uid,omitempty"`
	Activity   ocsf.Activity `json:"activity_id,omitempty"`
	TargetType string        `json:"target_type,omitempty"`
	Limit      int           `json:"limit,omitempty"`
	Offset     int           `json:"offset,omitempty"`
}

// AuditStats is the aggregate view returned by the stats endpoint.
type AuditStats struct {
	TotalEvents int64            `json:"total_events"`
	ByCategory  map[string]int64 `json:"by_category"`
	ByActivity  map[string]int64 `json:"by_activity"`
	Last24h     int64            `json:"last_24h"`
	FileSizeMB  float64          `json:"file_size_mb"`
}
