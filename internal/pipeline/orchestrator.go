// Package pipeline sequences the gates every clinical request must pass:
// lockdown, intent classification, authorization, safety scan, generation.
// The first refusing gate terminates the request.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aegisgraph/aegisgraph/internal/archive"
	"github.com/aegisgraph/aegisgraph/internal/history"
	"github.com/aegisgraph/aegisgraph/internal/incident"
	"github.com/aegisgraph/aegisgraph/internal/intent"
	"github.com/aegisgraph/aegisgraph/internal/model"
	"github.com/aegisgraph/aegisgraph/internal/notify"
	"github.com/aegisgraph/aegisgraph/internal/observability/metrics"
	"github.com/aegisgraph/aegisgraph/internal/policy"
	"github.com/aegisgraph/aegisgraph/internal/response"
	"github.com/aegisgraph/aegisgraph/internal/safety"
	"github.com/aegisgraph/aegisgraph/internal/security"
	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// historyLimit caps how many prior exchanges are handed to the generator.
const historyLimit = 5

// auditTimeout bounds the detached audit write after the caller's context is
// released.
const auditTimeout = 10 * time.Second

// IntentClassifier tags the kind of request.
type IntentClassifier interface {
	Classify(ctx context.Context, req model.Request) intent.Decision
}

// PolicyEngine produces the authorization verdict.
type PolicyEngine interface {
	Decide(ctx context.Context, req model.Request, intentDec intent.Decision) policy.Decision
}

// SafetyScanner produces the threat verdict.
type SafetyScanner interface {
	Scan(ctx context.Context, req model.Request) safety.Decision
}

// Generator produces the final scoped answer.
type Generator interface {
	Generate(ctx context.Context, req model.Request, pol policy.Decision, scan safety.Decision, hist []history.Exchange) response.Decision
}

// AuditStore persists one record per request and serves prior exchanges as
// generation context.
type AuditStore interface {
	Append(ctx context.Context, rec history.Record) error
	RecentExchanges(ctx context.Context, clinicianID, patientID string, limit int) ([]history.Exchange, error)
}

// OutcomePublisher fans the audit record out to downstream consumers.
type OutcomePublisher interface {
	Publish(ctx context.Context, rec history.Record) error
}

// IncidentStore records escalations and safety blocks for the admin surface.
type IncidentStore interface {
	Put(ctx context.Context, rec incident.Record) error
}

// Alerter notifies the operator about blocked requests.
type Alerter interface {
	SecurityAlert(ctx context.Context, alert notify.Alert)
}

// EvidenceArchiver retains blocked request payloads for review.
type EvidenceArchiver interface {
	ArchiveBlocked(ctx context.Context, ev archive.Evidence) error
}

// Deps wires the orchestrator. Modes, Detector, Classifier, Policy, Scanner,
// and Generator are required; everything else is optional and skipped when
// nil.
type Deps struct {
	Modes      *security.ModeController
	Detector   *security.EscalationDetector
	Classifier IntentClassifier
	Policy     PolicyEngine
	Scanner    SafetyScanner
	Generator  Generator

	Audit     AuditStore
	Publisher OutcomePublisher
	Incidents IncidentStore
	Alerts    Alerter
	Evidence  EvidenceArchiver
	Metrics   *metrics.PipelineMetrics
	Logger    *logging.Logger
}

// Orchestrator is the single entry point for inbound requests. It is safe for
// concurrent use; the shared mode controller and escalation detector carry
// their own locking.
type Orchestrator struct {
	deps   Deps
	tracer trace.Tracer
	logger *logging.Logger
}

// NewOrchestrator panics when a required dependency is missing. Optional
// collaborators may be nil.
func NewOrchestrator(deps Deps) *Orchestrator {
	switch {
	case deps.Modes == nil:
		panic("pipeline: mode controller cannot be nil")
	case deps.Detector == nil:
		panic("pipeline: escalation detector cannot be nil")
	case deps.Classifier == nil:
		panic("pipeline: intent classifier cannot be nil")
	case deps.Policy == nil:
		panic("pipeline: policy engine cannot be nil")
	case deps.Scanner == nil:
		panic("pipeline: safety scanner cannot be nil")
	case deps.Generator == nil:
		panic("pipeline: generator cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Orchestrator{
		deps:   deps,
		tracer: otel.Tracer("aegisgraph.internal.pipeline"),
		logger: deps.Logger.Component("pipeline"),
	}
}

// Run processes one request through every gate. It never returns an error:
// refusals and degraded external calls all surface as a structured Outcome.
func (o *Orchestrator) Run(ctx context.Context, req model.Request) Outcome {
	start := time.Now()
	req.EnsureRequestID()

	ctx, span := o.tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(attribute.String("request.id", req.RequestID)),
	)
	defer span.End()

	// The live mode is authoritative, not the caller's claim.
	req.SecurityMode = o.deps.Modes.Mode()
	span.SetAttributes(attribute.String("security.mode", string(req.SecurityMode)))

	if req.SecurityMode == security.ModeLockdown {
		o.logger.Warn("request refused in lockdown", "request_id", req.RequestID)
		out := Outcome{
			RequestID:    req.RequestID,
			Blocked:      true,
			Reason:       "system in lockdown",
			SecurityMode: req.SecurityMode,
		}
		o.audit(req, out, nil)
		return out
	}

	o.deps.Metrics.ObserveRequest(string(req.SecurityMode))
	defer func() {
		o.deps.Metrics.ObserveLatency(time.Since(start).Seconds())
	}()

	intentDec := o.deps.Classifier.Classify(ctx, req)
	pol := o.deps.Policy.Decide(ctx, req, intentDec)
	o.deps.Metrics.ObserveAuthorization(pol.ConfidenceScore)

	if !pol.Authorized {
		o.deps.Detector.RecordDenial()
		o.maybeEscalate(ctx, req)
		o.deps.Metrics.ObserveBlocked("policy")
		out := Outcome{
			RequestID:    req.RequestID,
			Blocked:      true,
			Reason:       fmt.Sprintf("authorization denied: %s", pol.ReasonCode),
			SecurityMode: req.SecurityMode,
			Intent:       intentDec.Category,
			Scope:        pol.Scope,
		}
		o.audit(req, out, nil)
		return out
	}

	scan := o.deps.Scanner.Scan(ctx, req)
	o.deps.Metrics.ObserveSafetyScan(scan.PHIExposureRisk)

	if scan.Action == safety.ActionBlock {
		o.deps.Detector.RecordBlock()
		o.maybeEscalate(ctx, req)
		o.deps.Metrics.ObserveBlocked("safety")
		o.handleSafetyBlock(ctx, req, scan)
		out := Outcome{
			RequestID:    req.RequestID,
			Blocked:      true,
			Reason:       fmt.Sprintf("safety block: %s", scan.Reason),
			SecurityMode: req.SecurityMode,
			Intent:       intentDec.Category,
			Authorized:   true,
			Scope:        pol.Scope,
			BreakGlass:   pol.BreakGlass,
		}
		o.audit(req, out, scan.AttackTypes)
		return out
	}

	hist := o.recentHistory(ctx, req)
	gen := o.deps.Generator.Generate(ctx, req, pol, scan, hist)
	if gen.Blocked {
		o.deps.Metrics.ObserveBlocked("generation")
		reason := strings.Join(gen.ReasonCodes, ",")
		if reason == "" {
			reason = "generation_failed"
		}
		out := Outcome{
			RequestID:    req.RequestID,
			Blocked:      true,
			Reason:       reason,
			SecurityMode: req.SecurityMode,
			Intent:       intentDec.Category,
			Authorized:   true,
			Scope:        pol.Scope,
			BreakGlass:   pol.BreakGlass,
		}
		o.audit(req, out, nil)
		return out
	}

	if gen.TokensIn != nil && gen.TokensOut != nil && gen.CostUSD != nil {
		o.deps.Metrics.ObserveGeneration(*gen.TokensIn, *gen.TokensOut, *gen.CostUSD)
	}

	out := Outcome{
		RequestID:    req.RequestID,
		FinalText:    gen.FinalText,
		SecurityMode: req.SecurityMode,
		Intent:       intentDec.Category,
		Authorized:   true,
		Scope:        pol.Scope,
		BreakGlass:   pol.BreakGlass,
		TokensIn:     gen.TokensIn,
		TokensOut:    gen.TokensOut,
		CostUSD:      gen.CostUSD,
	}
	o.audit(req, out, nil)
	return out
}

// maybeEscalate runs the detector and tightens the mode when it fires. The
// mode controller only moves NORMAL to STRICT_MODE; an operator-chosen
// posture is never overridden.
func (o *Orchestrator) maybeEscalate(ctx context.Context, req model.Request) {
	if !o.deps.Detector.ShouldEscalate() {
		return
	}
	if !o.deps.Modes.EscalateToStrict() {
		return
	}
	o.deps.Metrics.ObserveEscalation()
	if o.deps.Incidents != nil {
		err := o.deps.Incidents.Put(ctx, incident.Record{
			Kind:         incident.KindEscalation,
			RequestID:    req.RequestID,
			SecurityMode: string(security.ModeStrict),
			Detail:       "denial/block burst crossed the escalation threshold",
		})
		if err != nil {
			o.logger.Error("record escalation incident", "error", err)
		}
	}
}

// handleSafetyBlock runs the best-effort side effects of a block: operator
// alert, incident record, evidence archive. None of them can alter the gate
// outcome.
func (o *Orchestrator) handleSafetyBlock(ctx context.Context, req model.Request, scan safety.Decision) {
	if o.deps.Alerts != nil {
		o.deps.Alerts.SecurityAlert(ctx, notify.Alert{
			RequestID:    req.RequestID,
			SecurityMode: string(req.SecurityMode),
			PatientID:    req.PatientID,
			RiskScore:    scan.RiskScore,
			AttackTypes:  scan.AttackTypes,
			Reason:       scan.Reason,
		})
	}
	if o.deps.Incidents != nil {
		err := o.deps.Incidents.Put(ctx, incident.Record{
			Kind:         incident.KindSafetyBlock,
			RequestID:    req.RequestID,
			SecurityMode: string(req.SecurityMode),
			RiskScore:    scan.RiskScore,
			AttackTypes:  scan.AttackTypes,
			Detail:       scan.Reason,
		})
		if err != nil {
			o.logger.Error("record block incident", "error", err, "request_id", req.RequestID)
		}
	}
	if o.deps.Evidence != nil {
		err := o.deps.Evidence.ArchiveBlocked(ctx, archive.Evidence{
			RequestID:    req.RequestID,
			ClinicianID:  req.ClinicianID,
			PatientID:    req.PatientID,
			Message:      req.Message,
			SecurityMode: string(req.SecurityMode),
			Reason:       scan.Reason,
			RiskScore:    scan.RiskScore,
			AttackTypes:  scan.AttackTypes,
		})
		if err != nil {
			o.logger.Error("archive blocked request", "error", err, "request_id", req.RequestID)
		}
	}
}

// recentHistory loads prior exchanges for generation context. Failure
// degrades to no context.
func (o *Orchestrator) recentHistory(ctx context.Context, req model.Request) []history.Exchange {
	if o.deps.Audit == nil || req.PatientID == "" {
		return nil
	}
	hist, err := o.deps.Audit.RecentExchanges(ctx, req.ClinicianID, req.PatientID, historyLimit)
	if err != nil {
		o.logger.Warn("load conversation history", "error", err, "request_id", req.RequestID)
		return nil
	}
	return hist
}

// audit persists the outcome and fans it out, detached from the request so a
// slow sink cannot extend the caller's latency. Failures are logged only; the
// computed outcome is already final.
func (o *Orchestrator) audit(req model.Request, out Outcome, attackTypes []string) {
	if o.deps.Audit == nil && o.deps.Publisher == nil {
		return
	}
	rec := history.Record{
		RequestID:    req.RequestID,
		ClinicianID:  req.ClinicianID,
		PatientID:    req.PatientID,
		Message:      req.Message,
		Response:     out.FinalText,
		Blocked:      out.Blocked,
		Reason:       out.Reason,
		SecurityMode: string(out.SecurityMode),
		Intent:       string(out.Intent),
		Authorized:   out.Authorized,
		Scope:        string(out.Scope),
		AttackTypes:  attackTypes,
		CreatedAt:    time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if o.deps.Audit != nil {
			if err := o.deps.Audit.Append(ctx, rec); err != nil {
				o.logger.Error("append audit record", "error", err, "request_id", rec.RequestID)
			}
		}
		if o.deps.Publisher != nil {
			if err := o.deps.Publisher.Publish(ctx, rec); err != nil {
				o.logger.Error("publish outcome", "error", err, "request_id", rec.RequestID)
			}
		}
	}()
}
