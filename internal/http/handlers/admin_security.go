package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aegisgraph/aegisgraph/internal/incident"
	"github.com/aegisgraph/aegisgraph/internal/security"
	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// IncidentLister is the incident store surface the console needs.
type IncidentLister interface {
	ListRecent(ctx context.Context, limit int) ([]incident.Record, error)
}

// AdminSecurityHandler serves the security console: reading and setting the
// live mode, and listing recent incidents.
type AdminSecurityHandler struct {
	modes     *security.ModeController
	incidents IncidentLister
	logger    *logging.Logger
}

// NewAdminSecurityHandler creates the console handler. incidents may be nil
// when incident storage is not configured.
func NewAdminSecurityHandler(modes *security.ModeController, incidents IncidentLister, logger *logging.Logger) *AdminSecurityHandler {
	if modes == nil {
		panic("handlers: mode controller cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminSecurityHandler{
		modes:     modes,
		incidents: incidents,
		logger:    logger.Component("admin"),
	}
}

// GetMode serves GET /admin/security-mode.
func (h *AdminSecurityHandler) GetMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"security_mode": string(h.modes.Mode()),
	})
}

// SetMode serves POST /admin/security-mode. Unrecognized mode values coerce
// to NORMAL; the response reports the mode actually applied.
func (h *AdminSecurityHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	applied := h.modes.SetMode(payload.Mode)
	h.logger.Info("operator set security mode", "requested", payload.Mode, "applied", string(applied))
	writeJSON(w, http.StatusOK, map[string]string{
		"security_mode": string(applied),
	})
}

// ListIncidents serves GET /admin/incidents?limit=N.
func (h *AdminSecurityHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	if h.incidents == nil {
		writeJSON(w, http.StatusOK, map[string]any{"incidents": []incident.Record{}})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.incidents.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list incidents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	if records == nil {
		records = []incident.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": records})
}
