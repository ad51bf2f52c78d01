package services

import (
	"database/sql"
	"encoding/json"
	"math"
	"os"
	"strings"
	"time"

	"github.com/quorumsec/auditcore/internal/models"
	"github.com/quorumsec/auditcore/internal/ocsf"
	"github.com/rs/zerolog/log"
)

const eventColumns = `id, time, class_uid, class_name, category_uid, category_name,
	activity_id, activity_name, severity_id, status_id, status_detail,
	message, actor_user, actor_process, actor_session,
	target_type, target_name, target_data,
	metadata_version, product_name, product_version, raw_data`

// Query returns events matching the filter, ordered by time descending.
// All present filter fields are ANDed; zero values impose no constraint.
// An uninitialized store yields an empty slice, never an error.
func (s *AuditService) Query(filter models.EventFilter) []models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized || s.db == nil {
		return []models.AuditEvent{}
	}

	where, args := buildWhere(filter)
	query := "SELECT " + eventColumns + " FROM audit_events" + where + " ORDER BY time DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit, but still allows OFFSET
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Error().Err(err).Msg("Audit query failed")
		return []models.AuditEvent{}
	}
	defer rows.Close()

	events := []models.AuditEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan audit event row")
			return []models.AuditEvent{}
		}
		events = append(events, event)
	}
	return events
}

// Stats returns aggregate counts over the store plus the active file
// size. All values are zero when the store is uninitialized.
func (s *AuditService) Stats() models.AuditStats {
	stats := models.AuditStats{
		ByCategory: map[string]int64{},
		ByActivity: map[string]int64{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized || s.db == nil {
		return stats
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&stats.TotalEvents); err != nil {
		log.Error().Err(err).Msg("Failed to count audit events")
		return stats
	}

	s.countsBy("category_name", stats.ByCategory)
	s.countsBy("activity_name", stats.ByActivity)

	dayAgo := time.Now().UnixMilli() - 24*time.Hour.Milliseconds()
	if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events WHERE time >= ?", dayAgo).Scan(&stats.Last24h); err != nil {
		log.Error().Err(err).Msg("Failed to count recent audit events")
	}

	if info, err := os.Stat(s.dbPath()); err == nil {
		stats.FileSizeMB = math.Round(float64(info.Size())/(1024*1024)*100) / 100
	}
	return stats
}

// countsBy fills a name -> count map grouped on the given column.
// Caller holds s.mu.
func (s *AuditService) countsBy(column string, out map[string]int64) {
	rows, err := s.db.Query("SELECT " + column + ", COUNT(*) FROM audit_events GROUP BY " + column)
	if err != nil {
		log.Error().Err(err).Str("column", column).Msg("Failed to aggregate audit events")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			log.Error().Err(err).Msg("Failed to scan aggregate row")
			return
		}
		out[name] = count
	}
}

// buildWhere assembles the WHERE clause for a filter.
func buildWhere(filter models.EventFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.StartTime > 0 {
		clauses = append(clauses, "time >= ?")
		args = append(args, filter.StartTime)
	}
	if filter.EndTime > 0 {
		clauses = append(clauses, "time <= ?")
		args = append(args, filter.EndTime)
	}
	if filter.Category != 0 {
		clauses = append(clauses, "category_uid = ?")
		args = append(args, filter.Category.UID())
	}
	if filter.Activity != 0 {
		clauses = append(clauses, "activity_id = ?")
		args = append(args, filter.Activity.ID())
	}
	if filter.TargetType != "" {
		clauses = append(clauses, "target_type = ?")
		args = append(args, filter.TargetType)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// scanEvent reads one row into an AuditEvent, restoring the optional
// actor and target blocks from their nullable columns.
func scanEvent(rows *sql.Rows) (models.AuditEvent, error) {
	var event models.AuditEvent
	var categoryUID, activityID, severityID, statusID int
	var statusDetail, actorUser, actorProcess, actorSession sql.NullString
	var targetType, targetName, targetData, rawData sql.NullString

	err := rows.Scan(
		&event.ID, &event.Time, &event.ClassUID, &event.ClassName,
		&categoryUID, &event.CategoryName,
		&activityID, &event.ActivityName,
		&severityID, &statusID, &statusDetail,
		&event.Message, &actorUser, &actorProcess, &actorSession,
		&targetType, &targetName, &targetData,
		&event.Metadata.Version, &event.Metadata.Product, &event.Metadata.ProductVersion,
		&rawData,
	)
	if err != nil {
		return models.AuditEvent{}, err
	}

	event.Category = ocsf.Category(categoryUID)
	event.Activity = ocsf.Activity(activityID)
	event.Severity = ocsf.Severity(severityID)
	event.Status = ocsf.Status(statusID)
	event.SeverityName = event.Severity.String()
	event.StatusName = event.Status.String()
	event.StatusDetail = statusDetail.String
	event.RawData = rawData.String

	if actorUser.Valid || actorProcess.Valid || actorSession.Valid {
		event.Actor = &models.Actor{
			User:    actorUser.String,
			Process: actorProcess.String,
			Session: actorSession.String,
		}
	}
	if targetType.Valid {
		event.Target = &models.Target{
			Type: targetType.String,
			Name: targetName.String,
		}
		if targetData.Valid {
			event.Target.Data = json.RawMessage(targetData.String)
		}
	}
	return event, nil
}
