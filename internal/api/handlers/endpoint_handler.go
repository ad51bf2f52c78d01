package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/quorumsec/auditcore/internal/models"
	"github.com/quorumsec/auditcore/internal/services"
)

// EndpointHandler handles HTTP requests for the SIEM endpoint registry
// and shipping pipeline.
type EndpointHandler struct {
	service services.ShipperServiceProvider
}

// NewEndpointHandler creates a new EndpointHandler.
func NewEndpointHandler(service services.ShipperServiceProvider) *EndpointHandler {
	return &EndpointHandler{service: service}
}

// GetAll returns every registered endpoint config.
func (h *EndpointHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.service.GetEndpoints())
}

// Register handles endpoint registration. An omitted ID is generated.
func (h *EndpointHandler) Register(w http.ResponseWriter, r *http.Request) {
	var endpoint models.SIEMEndpoint
	if err := json.NewDecoder(r.Body).Decode(&endpoint); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if endpoint.Type != models.EndpointWebhook && endpoint.Type != models.EndpointSyslog {
		http.Error(w, "Endpoint type must be webhook or syslog", http.StatusBadRequest)
		return
	}
	if endpoint.ID == "" {
		endpoint.ID = uuid.New().String()
	}

	h.service.RegisterEndpoint(endpoint)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(endpoint)
}

// Unregister removes an endpoint. Unknown IDs are a silent no-op.
func (h *EndpointHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	h.service.UnregisterEndpoint(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// SetEnabled toggles the endpoint's shipping worker.
func (h *EndpointHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.service.SetEndpointEnabled(chi.URLParam(r, "id"), body.Enabled)
	w.WriteHeader(http.StatusNoContent)
}

// GetStats returns delivery counters for one endpoint.
func (h *EndpointHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.service.GetStats(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "Unknown endpoint", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// GetAllStats returns the full id -> stats mapping.
func (h *EndpointHandler) GetAllStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.service.GetAllStats())
}

// Flush forces an immediate flush of one endpoint's queue.
func (h *EndpointHandler) Flush(w http.ResponseWriter, r *http.Request) {
	ok := h.service.FlushEndpoint(chi.URLParam(r, "id"))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"flushed": ok})
}

// FlushAll forces an immediate flush of every enabled endpoint.
func (h *EndpointHandler) FlushAll(w http.ResponseWriter, r *http.Request) {
	h.service.FlushAll()
	w.WriteHeader(http.StatusNoContent)
}
