// Package model holds the request shape shared by every pipeline stage.
package model

import (
	"github.com/aegisgraph/aegisgraph/internal/security"
	"github.com/google/uuid"
)

// Request is a single inbound clinical question. It is immutable once
// accepted into the pipeline, except for SecurityMode, which the orchestrator
// overwrites with the live mode at entry.
type Request struct {
	RequestID    string        `json:"request_id"`
	UserID       string        `json:"user_id"`
	Role         string        `json:"role"`
	ClinicianID  string        `json:"clinician_id"`
	PatientID    string        `json:"patient_id"`
	Message      string        `json:"message"`
	SecurityMode security.Mode `json:"security_mode"`
}

// EnsureRequestID assigns a fresh UUID when the caller did not supply one.
func (r *Request) EnsureRequestID() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
}
