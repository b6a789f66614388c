// Package response generates the final clinical answer, bounded by the
// authorization scope the policy engine granted.
package response

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aegisgraph/aegisgraph/internal/history"
	"github.com/aegisgraph/aegisgraph/internal/llm"
	"github.com/aegisgraph/aegisgraph/internal/model"
	"github.com/aegisgraph/aegisgraph/internal/policy"
	"github.com/aegisgraph/aegisgraph/internal/safety"
	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// Approximate provider pricing per 1K tokens.
const (
	costPer1KInputTokens  = 0.0008
	costPer1KOutputTokens = 0.0016
)

// Decision is the generation result. Blocked implies FinalText is empty and
// the token and cost fields are nil.
type Decision struct {
	FinalText      string   `json:"final_text"`
	Blocked        bool     `json:"blocked"`
	RedactionCount int      `json:"redaction_count"`
	ReasonCodes    []string `json:"reason_codes"`
	TokensIn       *int     `json:"tokens_in"`
	TokensOut      *int     `json:"tokens_out"`
	CostUSD        *float64 `json:"cost_usd"`
}

// Generator produces scoped clinical answers. Failure degrades to a blocked
// Decision; the raw provider error never reaches the pipeline caller.
type Generator struct {
	llm     llm.Client
	modelID string
	tracer  trace.Tracer
	logger  *logging.Logger
}

// NewGenerator builds a model-backed response generator.
func NewGenerator(client llm.Client, modelID string, logger *logging.Logger) *Generator {
	if client == nil {
		panic("response: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{
		llm:     client,
		modelID: modelID,
		tracer:  otel.Tracer("aegisgraph.internal.response"),
		logger:  logger.Component("response"),
	}
}

// Generate answers the request under the granted scope, seeding the model
// with prior exchanges for the clinician/patient pair.
func (g *Generator) Generate(ctx context.Context, req model.Request, pol policy.Decision, _ safety.Decision, hist []history.Exchange) Decision {
	ctx, span := g.tracer.Start(ctx, "response.generate")
	defer span.End()

	messages := make([]llm.Message, 0, 2*len(hist)+1)
	for _, ex := range hist {
		messages = append(messages,
			llm.Message{Role: llm.ChatRoleUser, Content: ex.Message},
			llm.Message{Role: llm.ChatRoleAssistant, Content: ex.Response},
		)
	}
	messages = append(messages, llm.Message{Role: llm.ChatRoleUser, Content: userPrompt(req)})

	resp, err := g.llm.Complete(ctx, llm.Request{
		Model:       g.modelID,
		System:      []string{scopeSystemPrompt(pol.Scope)},
		Messages:    messages,
		MaxTokens:   1024,
		Temperature: 0,
	})
	if err != nil {
		g.logger.Error("response generation failed",
			"request_id", req.RequestID, "error", err)
		return Decision{
			Blocked:     true,
			ReasonCodes: []string{"generation_failed"},
		}
	}

	tokensIn := int(resp.Usage.InputTokens)
	tokensOut := int(resp.Usage.OutputTokens)
	if resp.Usage.TotalTokens == 0 {
		// Provider reported no usage; fall back to the rough 4-chars-per-token
		// estimate so cost is still populated.
		tokensIn = estimateTokens(userPrompt(req))
		tokensOut = estimateTokens(resp.Text)
	}
	cost := computeCost(tokensIn, tokensOut)

	return Decision{
		FinalText:   resp.Text,
		ReasonCodes: []string{},
		TokensIn:    &tokensIn,
		TokensOut:   &tokensOut,
		CostUSD:     &cost,
	}
}

func scopeSystemPrompt(scope policy.Scope) string {
	switch scope {
	case policy.ScopeFull:
		return `You are a helpful medical assistant with full access to patient information.
Provide accurate, professional clinical responses based on the patient's complete medical record.
Always maintain HIPAA compliance and patient confidentiality.`
	case policy.ScopeLimited:
		return `You are a helpful medical assistant with LIMITED access to patient information.
You may ONLY provide information about:
- Patient allergies
- Current medications
- Medication interactions

DO NOT provide any other patient information. If asked about anything else, politely decline.`
	default:
		return `You are a helpful medical assistant.
You do not have access to specific patient information.
Provide general medical information only.`
	}
}

func userPrompt(req model.Request) string {
	return fmt.Sprintf("Patient ID: %s\nClinician ID: %s\nRole: %s\n\nQuestion: %s",
		req.PatientID, req.ClinicianID, req.Role, req.Message)
}

func estimateTokens(text string) int {
	return len(text) / 4
}

func computeCost(tokensIn, tokensOut int) float64 {
	cost := float64(tokensIn)/1000*costPer1KInputTokens + float64(tokensOut)/1000*costPer1KOutputTokens
	// Rounded to micro-dollars.
	return float64(int64(cost*1e6+0.5)) / 1e6
}
