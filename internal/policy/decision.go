// Package policy decides whether a clinician may see the patient data a
// request needs, including the break-glass emergency override.
package policy

// Scope is the granted category of patient-data disclosure.
type Scope string

const (
	ScopeFull    Scope = "FULL"
	ScopeLimited Scope = "LIMITED_ALLERGIES_MEDS"
	ScopeNone    Scope = "NONE"
)

// Reason codes returned by the engine. The generation surface and audit trail
// are the only consumers, so "empty lookup" and "pair not related" collapse
// into the single no_relationship_found code.
const (
	ReasonNoPatientContext  = "no_patient_context_needed"
	ReasonLookupUnavailable = "lookup_unavailable"
	ReasonNoRelationship    = "no_relationship_found"
	ReasonBreakGlass        = "break_glass_emergency"
	ReasonRelationshipFound = "relationship_found"
)

// Decision is the authorization verdict for one request. Authorized implies a
// scope other than NONE except the no-patient-context short circuit, which
// authorizes with NONE because there is nothing to disclose.
type Decision struct {
	Authorized      bool     `json:"authorized"`
	Scope           Scope    `json:"scope"`
	BreakGlass      bool     `json:"break_glass"`
	ReasonCode      string   `json:"reason_code"`
	ConfidenceScore int      `json:"confidence_score"`
	AuditTrail      []string `json:"audit_trail"`
}

func denied(reason string) Decision {
	return Decision{
		Authorized: false,
		Scope:      ScopeNone,
		ReasonCode: reason,
	}
}
