package policy

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// pgQuerier is the slice of pgxpool.Pool the store needs. pgxmock satisfies
// it in tests.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	findTreatsSQL = `SELECT COUNT(*) FROM care_relationships
		WHERE clinician_id = $1 AND patient_id = $2 AND relationship = 'TREATS'`
	hasRoleSQL = `SELECT EXISTS(
		SELECT 1 FROM role_grants WHERE clinician_id = $1 AND role = $2)`
)

// GraphStore implements GraphLookup against the Postgres relationship tables.
// The care graph has a single directed edge type, so two indexed tables carry
// it without a dedicated graph database.
type GraphStore struct {
	db     pgQuerier
	logger *logging.Logger
}

// NewGraphStore builds a Postgres-backed relationship lookup.
func NewGraphStore(db pgQuerier, logger *logging.Logger) *GraphStore {
	if db == nil {
		panic("policy: database pool cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GraphStore{db: db, logger: logger.Component("graph_store")}
}

var _ GraphLookup = (*GraphStore)(nil)

// FindTreats reports whether a directed TREATS edge exists between the
// clinician and the patient.
func (s *GraphStore) FindTreats(ctx context.Context, clinicianID, patientID string) (TreatsResult, error) {
	var count int
	if err := s.db.QueryRow(ctx, findTreatsSQL, clinicianID, patientID).Scan(&count); err != nil {
		return TreatsResult{}, fmt.Errorf("policy: find treats edge: %w", err)
	}
	if count == 0 {
		return TreatsResult{}, nil
	}
	return TreatsResult{
		Exists:          true,
		PathLength:      1,
		TraversedLabels: []string{"Clinician", "Patient"},
	}, nil
}

// HasRole reports whether the clinician holds the named role grant.
func (s *GraphStore) HasRole(ctx context.Context, clinicianID, role string) (bool, error) {
	var has bool
	if err := s.db.QueryRow(ctx, hasRoleSQL, clinicianID, role).Scan(&has); err != nil {
		return false, fmt.Errorf("policy: role grant lookup: %w", err)
	}
	return has, nil
}
