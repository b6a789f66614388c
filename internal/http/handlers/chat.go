// Package handlers exposes the gateway's HTTP surface: the clinician chat
// endpoint and the admin security console.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aegisgraph/aegisgraph/internal/model"
	"github.com/aegisgraph/aegisgraph/internal/pipeline"
	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// PipelineRunner is the orchestrator surface the chat endpoint needs.
type PipelineRunner interface {
	Run(ctx context.Context, req model.Request) pipeline.Outcome
}

// ChatHandler accepts clinician questions and runs them through the firewall
// pipeline.
type ChatHandler struct {
	runner PipelineRunner
	logger *logging.Logger
}

// NewChatHandler creates the chat endpoint handler.
func NewChatHandler(runner PipelineRunner, logger *logging.Logger) *ChatHandler {
	if runner == nil {
		panic("handlers: pipeline runner cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{runner: runner, logger: logger.Component("chat")}
}

// ChatRequest is the inbound payload for POST /v1/chat.
type ChatRequest struct {
	RequestID   string `json:"request_id,omitempty"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	ClinicianID string `json:"clinician_id"`
	PatientID   string `json:"patient_id,omitempty"`
	Message     string `json:"message"`
}

func (r ChatRequest) validate() string {
	switch {
	case strings.TrimSpace(r.Message) == "":
		return "message is required"
	case strings.TrimSpace(r.ClinicianID) == "":
		return "clinician_id is required"
	case strings.TrimSpace(r.UserID) == "":
		return "user_id is required"
	}
	return ""
}

// Handle serves POST /v1/chat. Refusals come back as 200s with blocked=true;
// only malformed requests get a 4xx.
func (h *ChatHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var payload ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := payload.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	outcome := h.runner.Run(r.Context(), model.Request{
		RequestID:   payload.RequestID,
		UserID:      payload.UserID,
		Role:        payload.Role,
		ClinicianID: payload.ClinicianID,
		PatientID:   payload.PatientID,
		Message:     payload.Message,
	})
	writeJSON(w, http.StatusOK, outcome)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
