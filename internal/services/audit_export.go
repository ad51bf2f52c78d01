package services

import (
	"encoding/csv"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/quorumsec/auditcore/internal/models"
	"github.com/rs/zerolog/log"
)

// exportRowCap bounds every export regardless of the caller's limit.
const exportRowCap = 10000

// capFilter clamps a filter's limit to the export row cap.
func capFilter(filter models.EventFilter) models.EventFilter {
	if filter.Limit <= 0 || filter.Limit > exportRowCap {
		filter.Limit = exportRowCap
	}
	return filter
}

// ExportJSON serializes matching events as a JSON array, capped at
// 10,000 rows.
func (s *AuditService) ExportJSON(filter models.EventFilter) string {
	events := s.Query(capFilter(filter))
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal audit export")
		return ""
	}
	return string(data)
}

// ExportCSV serializes matching events as CSV, capped at 10,000 rows.
// Timestamps are ISO-8601 and the message field is quoted/escaped by
// the CSV writer. Zero matching rows yield an empty string, not a
// header-only document.
func (s *AuditService) ExportCSV(filter models.EventFilter) string {
	events := s.Query(capFilter(filter))
	if len(events) == 0 {
		return ""
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Write([]string{
		"time", "category", "activity", "severity", "status",
		"actor_user", "target_type", "target_name", "message",
	})
	for _, event := range events {
		var actorUser string
		if event.Actor != nil {
			actorUser = event.Actor.User
		}
		var targetType, targetName string
		if event.Target != nil {
			targetType = event.Target.Type
			targetName = event.Target.Name
		}
		w.Write([]string{
			event.Timestamp().Format(time.RFC3339),
			event.CategoryName,
			event.ActivityName,
			strconv.Itoa(int(event.Severity)),
			event.StatusName,
			actorUser,
			targetType,
			targetName,
			event.Message,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Error().Err(err).Msg("Failed to write audit CSV export")
		return ""
	}
	return sb.String()
}
