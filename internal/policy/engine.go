package policy

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aegisgraph/aegisgraph/internal/intent"
	"github.com/aegisgraph/aegisgraph/internal/model"
	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// TreatsResult is the relationship lookup result for a clinician/patient pair.
type TreatsResult struct {
	Exists          bool
	PathLength      int
	TraversedLabels []string
}

// GraphLookup queries the care-relationship graph. Implementations may fail;
// the engine treats every error as a fail-closed denial.
type GraphLookup interface {
	FindTreats(ctx context.Context, clinicianID, patientID string) (TreatsResult, error)
	HasRole(ctx context.Context, clinicianID, role string) (bool, error)
}

// Emergency-indicator terms that make a request eligible for break-glass.
var emergencyKeywords = []string{"emergency", "unconscious"}

const breakGlassRole = "ER"

// Engine applies the authorization decision rule. Errors never escape
// Decide; every failure inside the decision path degrades to the fail-closed
// lookup-unavailable denial.
type Engine struct {
	graph  GraphLookup
	tracer trace.Tracer
	logger *logging.Logger
}

// NewEngine builds a decision engine over the given relationship graph.
func NewEngine(graph GraphLookup, logger *logging.Logger) *Engine {
	if graph == nil {
		panic("policy: graph lookup cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		graph:  graph,
		tracer: otel.Tracer("aegisgraph.internal.policy"),
		logger: logger.Component("policy"),
	}
}

// Decide produces the access scope and break-glass flag for a request.
func (e *Engine) Decide(ctx context.Context, req model.Request, intentDec intent.Decision) Decision {
	ctx, span := e.tracer.Start(ctx, "policy.graph_check")
	defer span.End()

	// Requests that don't touch patient data skip the lookup entirely.
	if !intentDec.NeedsPatientContext {
		return Decision{
			Authorized:      true,
			Scope:           ScopeNone,
			ReasonCode:      ReasonNoPatientContext,
			ConfidenceScore: 100,
			AuditTrail:      []string{},
		}
	}

	treats, err := e.graph.FindTreats(ctx, req.ClinicianID, req.PatientID)
	if err != nil {
		e.logger.Error("relationship lookup failed, denying",
			"request_id", req.RequestID,
			"clinician_id", req.ClinicianID,
			"error", err,
		)
		return denied(ReasonLookupUnavailable)
	}

	// Break-glass is evaluated regardless of the relationship outcome: an ER
	// clinician handling a declared emergency gets limited access even when
	// no treats edge exists. A role-check failure leaves the relationship
	// result standing rather than denying outright.
	if e.breakGlassApplies(ctx, req) {
		return Decision{
			Authorized:      true,
			Scope:           ScopeLimited,
			BreakGlass:      true,
			ReasonCode:      ReasonBreakGlass,
			ConfidenceScore: treats.PathLength,
			AuditTrail:      treats.TraversedLabels,
		}
	}

	if treats.Exists {
		return Decision{
			Authorized:      true,
			Scope:           ScopeFull,
			ReasonCode:      ReasonRelationshipFound,
			ConfidenceScore: treats.PathLength,
			AuditTrail:      treats.TraversedLabels,
		}
	}

	return denied(ReasonNoRelationship)
}

func (e *Engine) breakGlassApplies(ctx context.Context, req model.Request) bool {
	message := strings.ToLower(req.Message)
	indicated := false
	for _, kw := range emergencyKeywords {
		if strings.Contains(message, kw) {
			indicated = true
			break
		}
	}
	if !indicated {
		return false
	}

	hasRole, err := e.graph.HasRole(ctx, req.ClinicianID, breakGlassRole)
	if err != nil {
		e.logger.Warn("break-glass role check failed, override not applied",
			"request_id", req.RequestID,
			"clinician_id", req.ClinicianID,
			"error", err,
		)
		return false
	}
	return hasRole
}
