package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aegisgraph/aegisgraph/internal/intent"
	"github.com/aegisgraph/aegisgraph/internal/model"
)

type fakeGraph struct {
	treats     TreatsResult
	treatsErr  error
	hasRole    bool
	roleErr    error
	findCalls  int
	roleCalls  int
	lastRole   string
	lastDoctor string
}

func (f *fakeGraph) FindTreats(_ context.Context, clinicianID, _ string) (TreatsResult, error) {
	f.findCalls++
	f.lastDoctor = clinicianID
	return f.treats, f.treatsErr
}

func (f *fakeGraph) HasRole(_ context.Context, _ string, role string) (bool, error) {
	f.roleCalls++
	f.lastRole = role
	return f.hasRole, f.roleErr
}

func patientIntent() intent.Decision {
	return intent.NewDecision(intent.CategoryTreatment, true, 0.9, "")
}

func request(message string) model.Request {
	return model.Request{
		RequestID:   "req-1",
		ClinicianID: "D100",
		PatientID:   "P200",
		Message:     message,
	}
}

func TestDecideShortCircuitWithoutPatientContext(t *testing.T) {
	graph := &fakeGraph{}
	e := NewEngine(graph, nil)

	dec := e.Decide(context.Background(), request("how do I file a claim"),
		intent.NewDecision(intent.CategoryBilling, false, 0.8, ""))

	assert.True(t, dec.Authorized)
	assert.Equal(t, ScopeNone, dec.Scope)
	assert.False(t, dec.BreakGlass)
	assert.Equal(t, ReasonNoPatientContext, dec.ReasonCode)
	assert.Zero(t, graph.findCalls, "lookup must not run for non-patient requests")
}

func TestDecideFailsClosedOnLookupError(t *testing.T) {
	graph := &fakeGraph{treatsErr: errors.New("connection refused")}
	e := NewEngine(graph, nil)

	dec := e.Decide(context.Background(), request("what meds"), patientIntent())

	assert.False(t, dec.Authorized)
	assert.Equal(t, ScopeNone, dec.Scope)
	assert.Equal(t, ReasonLookupUnavailable, dec.ReasonCode)
}

func TestDecideFullScopeOnRelationship(t *testing.T) {
	graph := &fakeGraph{treats: TreatsResult{
		Exists:          true,
		PathLength:      1,
		TraversedLabels: []string{"Clinician", "Patient"},
	}}
	e := NewEngine(graph, nil)

	dec := e.Decide(context.Background(), request("what meds"), patientIntent())

	assert.True(t, dec.Authorized)
	assert.Equal(t, ScopeFull, dec.Scope)
	assert.False(t, dec.BreakGlass)
	assert.Equal(t, ReasonRelationshipFound, dec.ReasonCode)
	assert.Equal(t, []string{"Clinician", "Patient"}, dec.AuditTrail)
}

func TestDecideDeniesWithoutRelationship(t *testing.T) {
	graph := &fakeGraph{}
	e := NewEngine(graph, nil)

	dec := e.Decide(context.Background(), request("what meds"), patientIntent())

	assert.False(t, dec.Authorized)
	assert.Equal(t, ScopeNone, dec.Scope)
	assert.Equal(t, ReasonNoRelationship, dec.ReasonCode)
}

func TestDecideBreakGlassOverridesMissingRelationship(t *testing.T) {
	graph := &fakeGraph{hasRole: true}
	e := NewEngine(graph, nil)

	dec := e.Decide(context.Background(), request("Patient is UNCONSCIOUS, this is an EMERGENCY"), patientIntent())

	assert.True(t, dec.Authorized)
	assert.True(t, dec.BreakGlass)
	assert.Equal(t, ScopeLimited, dec.Scope)
	assert.Equal(t, ReasonBreakGlass, dec.ReasonCode)
	assert.Equal(t, "ER", graph.lastRole)
}

func TestDecideBreakGlassRequiresRole(t *testing.T) {
	graph := &fakeGraph{hasRole: false}
	e := NewEngine(graph, nil)

	dec := e.Decide(context.Background(), request("emergency, need allergies"), patientIntent())

	assert.False(t, dec.Authorized)
	assert.False(t, dec.BreakGlass)
	assert.Equal(t, ReasonNoRelationship, dec.ReasonCode)
}

func TestDecideBreakGlassRoleErrorLeavesRelationshipResult(t *testing.T) {
	graph := &fakeGraph{
		treats:  TreatsResult{Exists: true, PathLength: 1, TraversedLabels: []string{"Clinician", "Patient"}},
		roleErr: errors.New("timeout"),
	}
	e := NewEngine(graph, nil)

	dec := e.Decide(context.Background(), request("emergency intubation dosing"), patientIntent())

	// Role check failed, so the override does not fire but the relationship
	// grant still stands.
	assert.True(t, dec.Authorized)
	assert.False(t, dec.BreakGlass)
	assert.Equal(t, ScopeFull, dec.Scope)
}

func TestDecideNoEmergencyKeywordSkipsRoleCheck(t *testing.T) {
	graph := &fakeGraph{treats: TreatsResult{Exists: true, PathLength: 1}}
	e := NewEngine(graph, nil)

	e.Decide(context.Background(), request("routine med review"), patientIntent())

	assert.Zero(t, graph.roleCalls)
}
