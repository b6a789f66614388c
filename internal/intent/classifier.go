// Package intent classifies inbound questions so the policy engine knows
// whether patient data is in play.
package intent

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aegisgraph/aegisgraph/internal/llm"
	"github.com/aegisgraph/aegisgraph/internal/model"
	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// Category tags the kind of request the clinician is making.
type Category string

const (
	CategoryTreatment Category = "TREATMENT"
	CategoryBilling   Category = "BILLING"
	CategoryAdmin     Category = "ADMIN"
	CategoryUnknown   Category = "UNKNOWN"
)

// Decision is the classifier's verdict for one request.
type Decision struct {
	Category            Category `json:"intent"`
	NeedsPatientContext bool     `json:"needs_patient_context"`
	Confidence          float64  `json:"confidence"`
	Reason              string   `json:"reason"`
}

// NewDecision clamps confidence into [0,1] and normalizes unknown categories.
func NewDecision(category Category, needsPatientContext bool, confidence float64, reason string) Decision {
	switch category {
	case CategoryTreatment, CategoryBilling, CategoryAdmin, CategoryUnknown:
	default:
		category = CategoryUnknown
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Decision{
		Category:            category,
		NeedsPatientContext: needsPatientContext,
		Confidence:          confidence,
		Reason:              reason,
	}
}

// Classifier asks the model to tag each request. Any failure degrades to an
// UNKNOWN decision that does not need patient context, so classification can
// never take the pipeline down.
type Classifier struct {
	llm     llm.Client
	modelID string
	tracer  trace.Tracer
	logger  *logging.Logger
}

// NewClassifier builds a model-backed intent classifier.
func NewClassifier(client llm.Client, modelID string, logger *logging.Logger) *Classifier {
	if client == nil {
		panic("intent: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{
		llm:     client,
		modelID: modelID,
		tracer:  otel.Tracer("aegisgraph.internal.intent"),
		logger:  logger.Component("intent"),
	}
}

// Classify tags the request. The returned Decision is always usable.
func (c *Classifier) Classify(ctx context.Context, req model.Request) Decision {
	ctx, span := c.tracer.Start(ctx, "intent.classify")
	defer span.End()

	resp, err := c.llm.Complete(ctx, llm.Request{
		Model:       c.modelID,
		System:      []string{classifierSystemPrompt},
		Messages:    []llm.Message{{Role: llm.ChatRoleUser, Content: classifierUserPrompt(req)}},
		MaxTokens:   512,
		Temperature: 0,
	})
	if err != nil {
		c.logger.Warn("intent classification failed, falling back to UNKNOWN",
			"request_id", req.RequestID, "error", err)
		return fallbackDecision(err)
	}

	var parsed struct {
		Intent              string  `json:"intent"`
		NeedsPatientContext bool    `json:"needs_patient_context"`
		Confidence          float64 `json:"confidence"`
		Reason              string  `json:"reason"`
	}
	if err := llm.DecodeModelJSON(resp.Text, &parsed); err != nil {
		c.logger.Warn("intent response was not valid JSON",
			"request_id", req.RequestID, "error", err)
		return fallbackDecision(err)
	}

	return NewDecision(Category(parsed.Intent), parsed.NeedsPatientContext, parsed.Confidence, parsed.Reason)
}

func fallbackDecision(err error) Decision {
	return NewDecision(CategoryUnknown, false, 0, fmt.Sprintf("classification failed: %v", err))
}

const classifierSystemPrompt = `You are a medical intent classifier. Classify the intent of the clinician's message.

Classify the intent as one of: TREATMENT, BILLING, ADMIN, or UNKNOWN.
Determine if the request needs patient context (true/false).
Provide a confidence score between 0.0 and 1.0.

Respond ONLY with valid JSON in this exact format:
{
    "intent": "TREATMENT|BILLING|ADMIN|UNKNOWN",
    "needs_patient_context": true,
    "confidence": 0.0,
    "reason": "brief explanation"
}`

func classifierUserPrompt(req model.Request) string {
	return fmt.Sprintf("Message: %s\nRole: %s", req.Message, req.Role)
}
