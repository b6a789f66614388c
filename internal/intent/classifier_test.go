package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisgraph/aegisgraph/internal/llm"
	"github.com/aegisgraph/aegisgraph/internal/model"
)

type fakeLLM struct {
	resp llm.Response
	err  error
	last llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	f.last = req
	return f.resp, f.err
}

func testRequest() model.Request {
	return model.Request{
		RequestID:   "req-1",
		UserID:      "u-1",
		Role:        "doctor",
		ClinicianID: "D100",
		PatientID:   "P200",
		Message:     "What medications is this patient on?",
	}
}

func TestClassifyParsesModelOutput(t *testing.T) {
	client := &fakeLLM{resp: llm.Response{
		Text: `{"intent":"TREATMENT","needs_patient_context":true,"confidence":0.92,"reason":"asks about meds"}`,
	}}
	c := NewClassifier(client, "test-model", nil)

	dec := c.Classify(context.Background(), testRequest())

	assert.Equal(t, CategoryTreatment, dec.Category)
	assert.True(t, dec.NeedsPatientContext)
	assert.InDelta(t, 0.92, dec.Confidence, 0.001)
}

func TestClassifyFencedOutput(t *testing.T) {
	client := &fakeLLM{resp: llm.Response{
		Text: "```json\n{\"intent\":\"BILLING\",\"needs_patient_context\":false,\"confidence\":0.7,\"reason\":\"invoice\"}\n```",
	}}
	c := NewClassifier(client, "test-model", nil)

	dec := c.Classify(context.Background(), testRequest())

	assert.Equal(t, CategoryBilling, dec.Category)
	assert.False(t, dec.NeedsPatientContext)
}

func TestClassifyFallsBackOnError(t *testing.T) {
	client := &fakeLLM{err: errors.New("throttled")}
	c := NewClassifier(client, "test-model", nil)

	dec := c.Classify(context.Background(), testRequest())

	assert.Equal(t, CategoryUnknown, dec.Category)
	assert.False(t, dec.NeedsPatientContext)
	assert.Zero(t, dec.Confidence)
	assert.Contains(t, dec.Reason, "classification failed")
}

func TestClassifyFallsBackOnGarbageOutput(t *testing.T) {
	client := &fakeLLM{resp: llm.Response{Text: "I am not able to help with that."}}
	c := NewClassifier(client, "test-model", nil)

	dec := c.Classify(context.Background(), testRequest())

	assert.Equal(t, CategoryUnknown, dec.Category)
}

func TestNewDecisionClamps(t *testing.T) {
	require.Equal(t, 1.0, NewDecision(CategoryAdmin, false, 1.5, "").Confidence)
	require.Equal(t, 0.0, NewDecision(CategoryAdmin, false, -0.2, "").Confidence)
	require.Equal(t, CategoryUnknown, NewDecision(Category("SHOPPING"), false, 0.5, "").Category)
}
