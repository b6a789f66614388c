package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisgraph/aegisgraph/internal/history"
	"github.com/aegisgraph/aegisgraph/internal/intent"
	"github.com/aegisgraph/aegisgraph/internal/model"
	"github.com/aegisgraph/aegisgraph/internal/notify"
	"github.com/aegisgraph/aegisgraph/internal/policy"
	"github.com/aegisgraph/aegisgraph/internal/response"
	"github.com/aegisgraph/aegisgraph/internal/safety"
	"github.com/aegisgraph/aegisgraph/internal/security"
)

type fakeClassifier struct {
	dec   intent.Decision
	calls int
}

func (f *fakeClassifier) Classify(context.Context, model.Request) intent.Decision {
	f.calls++
	return f.dec
}

type fakePolicy struct {
	dec policy.Decision
}

func (f *fakePolicy) Decide(context.Context, model.Request, intent.Decision) policy.Decision {
	return f.dec
}

type fakeScanner struct {
	dec   safety.Decision
	calls int
}

func (f *fakeScanner) Scan(context.Context, model.Request) safety.Decision {
	f.calls++
	return f.dec
}

type fakeGenerator struct {
	dec   response.Decision
	calls int
	scope policy.Scope
}

func (f *fakeGenerator) Generate(_ context.Context, _ model.Request, pol policy.Decision, _ safety.Decision, _ []history.Exchange) response.Decision {
	f.calls++
	f.scope = pol.Scope
	return f.dec
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (f *fakeAlerter) SecurityAlert(_ context.Context, alert notify.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
}

func (f *fakeAlerter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

type fakeAudit struct {
	mu      sync.Mutex
	records []history.Record
}

func (f *fakeAudit) Append(_ context.Context, rec history.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAudit) RecentExchanges(context.Context, string, string, int) ([]history.Exchange, error) {
	return nil, nil
}

func (f *fakeAudit) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fixture struct {
	modes      *security.ModeController
	detector   *security.EscalationDetector
	classifier *fakeClassifier
	policy     *fakePolicy
	scanner    *fakeScanner
	generator  *fakeGenerator
	alerts     *fakeAlerter
}

func newFixture() *fixture {
	tokensIn, tokensOut := 50, 20
	cost := 0.000072
	return &fixture{
		modes:    security.NewModeController(time.Minute, nil),
		detector: security.NewEscalationDetector(security.DetectorConfig{Threshold: 3}),
		classifier: &fakeClassifier{dec: intent.NewDecision(
			intent.CategoryTreatment, true, 0.9, "medication question",
		)},
		policy: &fakePolicy{dec: policy.Decision{
			Authorized:      true,
			Scope:           policy.ScopeFull,
			ReasonCode:      policy.ReasonRelationshipFound,
			ConfidenceScore: 95,
		}},
		scanner: &fakeScanner{dec: safety.NewDecision(safety.ActionAllow, 5, 0.1, nil, "clean")},
		generator: &fakeGenerator{dec: response.Decision{
			FinalText: "Patient is on lisinopril 10mg.",
			TokensIn:  &tokensIn,
			TokensOut: &tokensOut,
			CostUSD:   &cost,
		}},
		alerts: &fakeAlerter{},
	}
}

func (f *fixture) orchestrator() *Orchestrator {
	return NewOrchestrator(Deps{
		Modes:      f.modes,
		Detector:   f.detector,
		Classifier: f.classifier,
		Policy:     f.policy,
		Scanner:    f.scanner,
		Generator:  f.generator,
		Alerts:     f.alerts,
	})
}

func testRequest() model.Request {
	return model.Request{
		UserID:      "U1",
		Role:        "physician",
		ClinicianID: "D100",
		PatientID:   "P200",
		Message:     "What medications is the patient on?",
	}
}

func TestSuccessPath(t *testing.T) {
	f := newFixture()
	out := f.orchestrator().Run(context.Background(), testRequest())

	assert.False(t, out.Blocked)
	assert.NotEmpty(t, out.RequestID)
	assert.Equal(t, "Patient is on lisinopril 10mg.", out.FinalText)
	assert.Equal(t, security.ModeNormal, out.SecurityMode)
	assert.Equal(t, intent.CategoryTreatment, out.Intent)
	assert.True(t, out.Authorized)
	assert.Equal(t, policy.ScopeFull, out.Scope)
	require.NotNil(t, out.TokensIn)
	require.NotNil(t, out.TokensOut)
	require.NotNil(t, out.CostUSD)
	assert.Equal(t, 50, *out.TokensIn)
	assert.Equal(t, 20, *out.TokensOut)

	// The generator received the granted scope.
	assert.Equal(t, policy.ScopeFull, f.generator.scope)
}

func TestLockdownGateBypassesEverything(t *testing.T) {
	f := newFixture()
	f.modes.SetMode("LOCKDOWN")

	out := f.orchestrator().Run(context.Background(), testRequest())

	assert.True(t, out.Blocked)
	assert.Contains(t, out.Reason, "lockdown")
	assert.Equal(t, security.ModeLockdown, out.SecurityMode)
	assert.Zero(t, f.classifier.calls)
	assert.Zero(t, f.scanner.calls)
	assert.Zero(t, f.generator.calls)
}

func TestLiveModeOverridesDeclaredMode(t *testing.T) {
	f := newFixture()
	req := testRequest()
	req.SecurityMode = security.ModeLockdown

	out := f.orchestrator().Run(context.Background(), req)

	assert.False(t, out.Blocked)
	assert.Equal(t, security.ModeNormal, out.SecurityMode)
}

func TestDenyGate(t *testing.T) {
	f := newFixture()
	f.policy.dec = policy.Decision{
		Authorized: false,
		Scope:      policy.ScopeNone,
		ReasonCode: policy.ReasonNoRelationship,
	}

	out := f.orchestrator().Run(context.Background(), testRequest())

	assert.True(t, out.Blocked)
	assert.Contains(t, out.Reason, "no_relationship_found")
	assert.Equal(t, policy.ScopeNone, out.Scope)
	assert.Zero(t, f.scanner.calls)
	assert.Zero(t, f.generator.calls)
}

func TestSafetyBlockGate(t *testing.T) {
	f := newFixture()
	f.scanner.dec = safety.NewDecision(
		safety.ActionBlock, 95, 0.8, []string{"prompt_injection"}, "injection attempt",
	)

	out := f.orchestrator().Run(context.Background(), testRequest())

	assert.True(t, out.Blocked)
	assert.Contains(t, out.Reason, "injection attempt")
	assert.Zero(t, f.generator.calls)
	assert.Equal(t, 1, f.alerts.count())
}

func TestDenialBurstEscalatesToStrict(t *testing.T) {
	f := newFixture()
	f.policy.dec = policy.Decision{
		Authorized: false,
		Scope:      policy.ScopeNone,
		ReasonCode: policy.ReasonNoRelationship,
	}
	orc := f.orchestrator()

	for i := 0; i < 2; i++ {
		orc.Run(context.Background(), testRequest())
		assert.Equal(t, security.ModeNormal, f.modes.Mode())
	}

	orc.Run(context.Background(), testRequest())
	assert.Equal(t, security.ModeStrict, f.modes.Mode())

	// The next request runs under the tightened mode.
	out := orc.Run(context.Background(), testRequest())
	assert.Equal(t, security.ModeStrict, out.SecurityMode)
}

func TestEscalationNeverOverridesOperatorLockdown(t *testing.T) {
	f := newFixture()
	f.policy.dec = policy.Decision{
		Authorized: false,
		Scope:      policy.ScopeNone,
		ReasonCode: policy.ReasonLookupUnavailable,
	}
	orc := f.orchestrator()

	for i := 0; i < 3; i++ {
		orc.Run(context.Background(), testRequest())
	}
	assert.Equal(t, security.ModeStrict, f.modes.Mode())

	f.modes.SetMode("LOCKDOWN")
	out := orc.Run(context.Background(), testRequest())
	assert.Contains(t, out.Reason, "lockdown")
	assert.Equal(t, security.ModeLockdown, f.modes.Mode())
}

func TestGenerationFailureBlocks(t *testing.T) {
	f := newFixture()
	f.generator.dec = response.Decision{
		Blocked:     true,
		ReasonCodes: []string{"generation_failed"},
	}

	out := f.orchestrator().Run(context.Background(), testRequest())

	assert.True(t, out.Blocked)
	assert.Contains(t, out.Reason, "generation_failed")
	assert.Nil(t, out.TokensIn)
	assert.Nil(t, out.CostUSD)
}

func TestAuditRecordedOnEveryPath(t *testing.T) {
	f := newFixture()
	audit := &fakeAudit{}
	orc := NewOrchestrator(Deps{
		Modes:      f.modes,
		Detector:   f.detector,
		Classifier: f.classifier,
		Policy:     f.policy,
		Scanner:    f.scanner,
		Generator:  f.generator,
		Audit:      audit,
	})

	orc.Run(context.Background(), testRequest())
	f.modes.SetMode("LOCKDOWN")
	orc.Run(context.Background(), testRequest())

	assert.Eventually(t, func() bool {
		return audit.count() == 2
	}, time.Second, 10*time.Millisecond)
}
