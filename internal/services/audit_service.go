package services

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quorumsec/auditcore/internal/config"
	"github.com/quorumsec/auditcore/internal/database"
	"github.com/quorumsec/auditcore/internal/models"
	"github.com/quorumsec/auditcore/internal/ocsf"
	"github.com/rs/zerolog/log"
)

// ActiveDBFile is the name of the active store file inside the data
// directory. Rotated files carry a timestamp suffix next to it.
const ActiveDBFile = "audit.db"

// EventSink receives a copy of every event the store accepts. The
// shipping pipeline and the live feed both attach through this.
type EventSink interface {
	Offer(event models.AuditEvent)
}

// AuditServiceProvider defines the interface for the audit event store.
type AuditServiceProvider interface {
	Initialize() bool
	Log(params models.LogParams)
	LogIPCCall(method, caller string, status ocsf.Status, detail string)
	LogCredentialAccess(credentialName, user string, status ocsf.Status)
	LogDataAccess(targetType, targetName, user string)
	Query(filter models.EventFilter) []models.AuditEvent
	Stats() models.AuditStats
	ExportJSON(filter models.EventFilter) string
	ExportCSV(filter models.EventFilter) string
	PurgeOlderThan(age time.Duration) int64
	Close()
}

// AuditService owns the on-disk event store: lifecycle, rotation,
// inserts, queries, and exports. Producers call Log and never see an
// error; storage failures are logged locally and swallowed.
type AuditService struct {
	mu    sync.Mutex
	cfg   *config.Config
	db    *sql.DB // nil when closed or rotated-out
	sinks []EventSink

	initialized bool
}

// NewAuditService creates a new AuditService. Call Initialize before use.
func NewAuditService(cfg *config.Config) *AuditService {
	return &AuditService{cfg: cfg}
}

// AttachSink registers a sink that receives every accepted event.
// Attach sinks before Initialize; the sink list is not guarded after.
func (s *AuditService) AttachSink(sink EventSink) {
	s.sinks = append(s.sinks, sink)
}

// dbPath returns the path of the active store file.
func (s *AuditService) dbPath() string {
	return filepath.Join(s.cfg.DataDir, ActiveDBFile)
}

// Initialize creates the data directory, rotates an oversized store
// file, opens the database in WAL mode, and ensures the schema exists.
// It is idempotent and never panics; any failure is logged and reported
// as false.
func (s *AuditService) Initialize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return true
	}

	if err := os.MkdirAll(s.cfg.DataDir, 0o700); err != nil {
		log.Error().Err(err).Str("dir", s.cfg.DataDir).Msg("Failed to create audit data directory")
		return false
	}

	// Rotation is checked before the file is opened so an oversized
	// store from a previous run is renamed away first.
	s.rotateIfNeeded()

	if err := s.openLocked(); err != nil {
		log.Error().Err(err).Str("path", s.dbPath()).Msg("Failed to open audit store")
		return false
	}

	s.initialized = true

	s.insertLocked(s.buildEvent(models.LogParams{
		Category: ocsf.CategorySystem,
		Activity: ocsf.ActivityCreate,
		Severity: ocsf.SeverityInformational,
		Status:   ocsf.StatusSuccess,
		Message:  "audit service initialized",
	}))

	log.Info().Str("path", s.dbPath()).Msg("Audit store initialized")
	return true
}

// openLocked opens the active store file and migrates the schema.
// Caller holds s.mu.
func (s *AuditService) openLocked() error {
	db, err := database.New(s.dbPath())
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return err
	}
	s.db = db
	return nil
}

// Log records an audit event. It never returns an error to the caller:
// when the store is unavailable the event is dropped with a local
// warning, and delivery problems surface only through shipper stats.
func (s *AuditService) Log(params models.LogParams) {
	event := s.buildEvent(params)

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		log.Warn().Str("message", params.Message).Msg("Audit store not initialized, dropping event")
		return
	}

	// Rotation may have closed the handle since the last write.
	s.rotateIfNeeded()
	if s.db == nil {
		if err := s.openLocked(); err != nil {
			s.mu.Unlock()
			log.Error().Err(err).Msg("Failed to reopen audit store after rotation, dropping event")
			return
		}
	}

	ok := s.insertLocked(event)
	s.mu.Unlock()

	if !ok {
		return
	}
	for _, sink := range s.sinks {
		sink.Offer(event)
	}
}

// buildEvent assembles a full AuditEvent from caller-supplied fields
// plus the fixed class and product metadata.
func (s *AuditService) buildEvent(params models.LogParams) models.AuditEvent {
	event := models.AuditEvent{
		ID:           uuid.New().String(),
		Time:         time.Now().UnixMilli(),
		Category:     params.Category,
		Activity:     params.Activity,
		Severity:     params.Severity,
		Status:       params.Status,
		StatusDetail: params.StatusDetail,
		Message:      params.Message,
		RawData:      params.RawData,
	}
	if params.ActorUser != "" || params.ActorProcess != "" || params.ActorSession != "" {
		event.Actor = &models.Actor{
			User:    params.ActorUser,
			Process: params.ActorProcess,
			Session: params.ActorSession,
		}
	}
	if params.TargetType != "" {
		event.Target = &models.Target{
			Type: params.TargetType,
			Name: params.TargetName,
			Data: params.TargetData,
		}
	}
	event.Normalize()
	return event
}

// insertLocked writes one event. Caller holds s.mu. Returns false when
// the insert failed; the failure is logged, never propagated.
func (s *AuditService) insertLocked(event models.AuditEvent) bool {
	var actorUser, actorProcess, actorSession sql.NullString
	if event.Actor != nil {
		actorUser = nullable(event.Actor.User)
		actorProcess = nullable(event.Actor.Process)
		actorSession = nullable(event.Actor.Session)
	}
	var targetType, targetName, targetData sql.NullString
	if event.Target != nil {
		targetType = nullable(event.Target.Type)
		targetName = nullable(event.Target.Name)
		if len(event.Target.Data) > 0 {
			targetData = nullable(string(event.Target.Data))
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO audit_events (
			id, time, class_uid, class_name, category_uid, category_name,
			activity_id, activity_name, severity_id, status_id, status_detail,
			message, actor_user, actor_process, actor_session,
			target_type, target_name, target_data,
			metadata_version, product_name, product_version, raw_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Time, event.ClassUID, event.ClassName,
		event.Category.UID(), event.CategoryName,
		event.Activity.ID(), event.ActivityName,
		int(event.Severity), int(event.Status), nullable(event.StatusDetail),
		event.Message, actorUser, actorProcess, actorSession,
		targetType, targetName, targetData,
		event.Metadata.Version, event.Metadata.Product, event.Metadata.ProductVersion,
		nullable(event.RawData),
	)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to insert audit event")
		return false
	}
	return true
}

// LogIPCCall audits a dispatched IPC method call.
func (s *AuditService) LogIPCCall(method, caller string, status ocsf.Status, detail string) {
	severity := ocsf.SeverityInformational
	if status == ocsf.StatusFailure {
		severity = ocsf.SeverityLow
	}
	s.Log(models.LogParams{
		Category:     ocsf.CategoryApplication,
		Activity:     ocsf.ActivityExecute,
		Severity:     severity,
		Status:       status,
		StatusDetail: detail,
		Message:      fmt.Sprintf("IPC call %q", method),
		ActorProcess: caller,
		TargetType:   "ipc_method",
		TargetName:   method,
	})
}

// LogCredentialAccess audits a read of a stored credential.
func (s *AuditService) LogCredentialAccess(credentialName, user string, status ocsf.Status) {
	severity := ocsf.SeverityMedium
	if status == ocsf.StatusFailure {
		severity = ocsf.SeverityHigh
	}
	s.Log(models.LogParams{
		Category:   ocsf.CategoryAuthentication,
		Activity:   ocsf.ActivityRead,
		Severity:   severity,
		Status:     status,
		Message:    fmt.Sprintf("Credential %q accessed", credentialName),
		ActorUser:  user,
		TargetType: "credential",
		TargetName: credentialName,
	})
}

// LogDataAccess audits a generic read of an application resource.
func (s *AuditService) LogDataAccess(targetType, targetName, user string) {
	s.Log(models.LogParams{
		Category:   ocsf.CategoryDataAccess,
		Activity:   ocsf.ActivityRead,
		Severity:   ocsf.SeverityInformational,
		Status:     ocsf.StatusSuccess,
		Message:    fmt.Sprintf("%s %q read", targetType, targetName),
		ActorUser:  user,
		TargetType: targetType,
		TargetName: targetName,
	})
}

// PurgeOlderThan deletes events older than the given age and returns
// the number of rows removed. Used by the retention sweeper.
func (s *AuditService) PurgeOlderThan(age time.Duration) int64 {
	cutoff := time.Now().Add(-age).UnixMilli()

	s.mu.Lock()
	if !s.initialized || s.db == nil {
		s.mu.Unlock()
		return 0
	}
	res, err := s.db.Exec("DELETE FROM audit_events WHERE time < ?", cutoff)
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to purge expired audit events")
		return 0
	}
	removed, _ := res.RowsAffected()
	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("Purged expired audit events")
		s.Log(models.LogParams{
			Category: ocsf.CategorySystem,
			Activity: ocsf.ActivityDelete,
			Severity: ocsf.SeverityInformational,
			Status:   ocsf.StatusSuccess,
			Message:  fmt.Sprintf("Retention sweep removed %d expired events", removed),
		})
	}
	return removed
}

// Close closes the store file handle. Safe to call more than once.
// Shipping workers are owned by the ShipperService and are shut down
// by it before the store closes.
func (s *AuditService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing audit store")
		}
		s.db = nil
	}
	s.initialized = false
}

// nullable converts an empty string to SQL NULL.
func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
