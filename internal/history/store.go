// Package history persists the audit trail of every request and serves prior
// exchanges back to the generator as conversation context.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// Record is one immutable audit row: the request, the textual outcome, and
// the decision metadata.
type Record struct {
	RequestID    string    `json:"request_id"`
	ClinicianID  string    `json:"clinician_id"`
	PatientID    string    `json:"patient_id"`
	Message      string    `json:"message"`
	Response     string    `json:"response"`
	Blocked      bool      `json:"blocked"`
	Reason       string    `json:"reason"`
	SecurityMode string    `json:"security_mode"`
	Intent       string    `json:"intent"`
	Authorized   bool      `json:"authorized"`
	Scope        string    `json:"scope"`
	AttackTypes  []string  `json:"attack_types,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Exchange is one prior question/answer pair for a clinician/patient pair.
type Exchange struct {
	Message   string
	Response  string
	Timestamp time.Time
}

// Store writes audit records and reads conversation context from Postgres.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewStore creates a history store. A nil db yields a nil store, and all
// methods on a nil store are no-ops, so audit persistence stays optional.
func NewStore(db *sql.DB, logger *logging.Logger) *Store {
	if db == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{db: db, logger: logger.Component("history")}
}

// Append inserts one audit record.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_history (
			request_id, clinician_id, patient_id, message, response,
			blocked, reason, security_mode, intent, authorized, scope,
			attack_types, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.RequestID, rec.ClinicianID, rec.PatientID, rec.Message, rec.Response,
		rec.Blocked, rec.Reason, rec.SecurityMode, rec.Intent, rec.Authorized, rec.Scope,
		pq.Array(rec.AttackTypes), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: append record: %w", err)
	}
	return nil
}

// RecentExchanges returns up to limit prior non-blocked exchanges for the
// pair, oldest first.
func (s *Store) RecentExchanges(ctx context.Context, clinicianID, patientID string, limit int) ([]Exchange, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT message, response, created_at FROM chat_history
		WHERE clinician_id = $1 AND patient_id = $2 AND blocked = false
		ORDER BY created_at DESC
		LIMIT $3`, clinicianID, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var ex Exchange
		if err := rows.Scan(&ex.Message, &ex.Response, &ex.Timestamp); err != nil {
			return nil, fmt.Errorf("history: scan exchange: %w", err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent exchanges: %w", err)
	}

	// Reverse into chronological order for the generator.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
