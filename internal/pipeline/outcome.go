package pipeline

import (
	"github.com/aegisgraph/aegisgraph/internal/intent"
	"github.com/aegisgraph/aegisgraph/internal/policy"
	"github.com/aegisgraph/aegisgraph/internal/security"
)

// Outcome is the structured result of one pipeline run. Policy refusals are
// normal outcomes with Blocked set, never errors; callers always receive an
// Outcome.
type Outcome struct {
	RequestID    string          `json:"request_id"`
	Blocked      bool            `json:"blocked"`
	Reason       string          `json:"reason,omitempty"`
	FinalText    string          `json:"final_text,omitempty"`
	SecurityMode security.Mode   `json:"security_mode"`
	Intent       intent.Category `json:"intent,omitempty"`
	Authorized   bool            `json:"authorized"`
	Scope        policy.Scope    `json:"scope,omitempty"`
	BreakGlass   bool            `json:"break_glass,omitempty"`
	TokensIn     *int            `json:"tokens_in,omitempty"`
	TokensOut    *int            `json:"tokens_out,omitempty"`
	CostUSD      *float64        `json:"cost_usd,omitempty"`
}
