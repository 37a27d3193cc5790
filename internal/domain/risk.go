package domain

import "time"

// RiskFactor is a discrete, named signal of elevated access risk. The
// catalog is closed; weights live in the versioned risk configuration, not
// here.
type RiskFactor string

const (
	FactorWildcardActionPolicy   RiskFactor = "wildcard_action_policy"
	FactorWildcardResourcePolicy RiskFactor = "wildcard_resource_policy"
	FactorAdminEquivalentPolicy  RiskFactor = "admin_equivalent_policy"
	FactorUnusedCredential       RiskFactor = "unused_credential"
	FactorStaleCredential        RiskFactor = "stale_credential_90d"
	FactorInlinePolicy           RiskFactor = "inline_policy"
	FactorNoMFAIndicator         RiskFactor = "no_mfa_indicator"
	FactorExcessGroupCount       RiskFactor = "excess_group_count"
)

// AllRiskFactors is the closed factor catalog. The weight table is validated
// against this list at startup.
var AllRiskFactors = []RiskFactor{
	FactorWildcardActionPolicy,
	FactorWildcardResourcePolicy,
	FactorAdminEquivalentPolicy,
	FactorUnusedCredential,
	FactorStaleCredential,
	FactorInlinePolicy,
	FactorNoMFAIndicator,
	FactorExcessGroupCount,
}

func (f RiskFactor) Valid() bool {
	for _, known := range AllRiskFactors {
		if f == known {
			return true
		}
	}
	return false
}

// ParseWarning records one permission document that could not be parsed
// during factor extraction. The assessment proceeds without it.
type ParseWarning struct {
	Document string `json:"document"`
	Detail   string `json:"detail"`
}

// RiskAssessment is the scored result for one identity. Computed fresh on
// every request; the score is a deterministic, order-independent function of
// the factor set.
type RiskAssessment struct {
	IdentityName    string         `json:"identity_name"`
	Account         string         `json:"account"`
	Factors         []RiskFactor   `json:"factors"`
	Score           int            `json:"score"`
	Level           RiskLevel      `json:"level"`
	Recommendations []string       `json:"recommendations"`
	PartialData     bool           `json:"partial_data"`
	ParseWarnings   []ParseWarning `json:"parse_warnings,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// HasFactor reports whether the assessment contains the given factor.
func (a RiskAssessment) HasFactor(f RiskFactor) bool {
	for _, present := range a.Factors {
		if present == f {
			return true
		}
	}
	return false
}
