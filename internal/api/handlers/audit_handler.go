package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/quorumsec/auditcore/internal/models"
	"github.com/quorumsec/auditcore/internal/ocsf"
	"github.com/quorumsec/auditcore/internal/services"
	"github.com/rs/zerolog/log"
)

// AuditHandler handles HTTP requests against the audit event store.
type AuditHandler struct {
	service services.AuditServiceProvider
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(service services.AuditServiceProvider) *AuditHandler {
	return &AuditHandler{service: service}
}

// Query handles filtered event reads.
// GET /events?start=&end=&category=&activity=&target_type=&limit=&offset=
func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events := h.service.Query(filter)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

// Stats handles the aggregate statistics request.
func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.service.Stats())
}

// Export streams matching events as JSON or CSV, capped server-side.
// GET /events/export?format=csv
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch r.URL.Query().Get("format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-export.csv"`)
		w.Write([]byte(h.service.ExportCSV(filter)))
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(h.service.ExportJSON(filter)))
	default:
		http.Error(w, "Unknown export format", http.StatusBadRequest)
	}
}

// logRequest is the JSON body accepted by the ingest endpoint.
type logRequest struct {
	Category     string          `json:"category"`
	Activity     string          `json:"activity"`
	Severity     int             `json:"severity"`
	Status       int             `json:"status"`
	StatusDetail string          `json:"status_detail"`
	Message      string          `json:"message"`
	ActorUser    string          `json:"actor_user"`
	ActorProcess string          `json:"actor_process"`
	ActorSession string          `json:"actor_session"`
	TargetType   string          `json:"target_type"`
	TargetName   string          `json:"target_name"`
	TargetData   json.RawMessage `json:"target_data"`
	RawData      string          `json:"raw_data"`
}

// Log records an event on behalf of an out-of-process producer.
// POST /events
func (h *AuditHandler) Log(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	category, ok := ocsf.CategoryByName(req.Category)
	if !ok {
		http.Error(w, "Unknown category: "+req.Category, http.StatusBadRequest)
		return
	}
	activity, ok := ocsf.ActivityByName(req.Activity)
	if !ok {
		http.Error(w, "Unknown activity: "+req.Activity, http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	h.service.Log(models.LogParams{
		Category:     category,
		Activity:     activity,
		Severity:     ocsf.Severity(req.Severity),
		Status:       ocsf.Status(req.Status),
		StatusDetail: req.StatusDetail,
		Message:      req.Message,
		ActorUser:    req.ActorUser,
		ActorProcess: req.ActorProcess,
		ActorSession: req.ActorSession,
		TargetType:   req.TargetType,
		TargetName:   req.TargetName,
		TargetData:   req.TargetData,
		RawData:      req.RawData,
	})

	// Log is fire-and-forget; accepting the request is the only
	// acknowledgement producers get.
	w.WriteHeader(http.StatusAccepted)
}

// filterFromQuery parses the common filter query parameters.
func filterFromQuery(r *http.Request) (models.EventFilter, error) {
	var filter models.EventFilter
	q := r.URL.Query()

	if v := q.Get("start"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errBadParam("start")
		}
		filter.StartTime = ms
	}
	if v := q.Get("end"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errBadParam("end")
		}
		filter.EndTime = ms
	}
	if v := q.Get("category"); v != "" {
		category, ok := ocsf.CategoryByName(v)
		if !ok {
			return filter, errBadParam("category")
		}
		filter.Category = category
	}
	if v := q.Get("activity"); v != "" {
		activity, ok := ocsf.ActivityByName(v)
		if !ok {
			return filter, errBadParam("activity")
		}
		filter.Activity = activity
	}
	filter.TargetType = q.Get("target_type")
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filter, errBadParam("limit")
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return filter, errBadParam("offset")
		}
		filter.Offset = offset
	}
	return filter, nil
}

type badParamError string

func (e badParamError) Error() string { return "Invalid query parameter: " + string(e) }

func errBadParam(name string) error {
	err := badParamError(name)
	log.Debug().Str("param", name).Msg("Rejected audit query parameter")
	return err
}
