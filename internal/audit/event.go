// Package audit provides the emission contract between the access guard /
// risk engine and the external audit sink. Emission is best-effort and off
// the decision-critical path: a slow or dead sink never changes a decision.
package audit

import (
	"time"

	"github.com/google/uuid"

	"iamdash/internal/domain"
)

// EventKind discriminates audit event payloads.
type EventKind string

const (
	KindAccessDecision EventKind = "access_decision"
	KindRiskAssessment EventKind = "risk_assessment"
)

// Event is the flattened audit record for both decision and assessment
// emissions. One row shape keeps every sink implementation trivial.
type Event struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	Principal   string    `json:"principal,omitempty"`
	Role        string    `json:"role,omitempty"`
	Capability  string    `json:"capability,omitempty"`
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason,omitempty"`
	Account     string    `json:"account,omitempty"`
	Identity    string    `json:"identity,omitempty"`
	Score       int       `json:"score,omitempty"`
	Level       string    `json:"level,omitempty"`
	PartialData bool      `json:"partial_data,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DecisionEvent converts an access decision into its audit record.
func DecisionEvent(dec domain.AccessDecision) Event {
	return Event{
		ID:         dec.ID,
		Kind:       KindAccessDecision,
		Principal:  dec.Principal,
		Role:       string(dec.Role),
		Capability: string(dec.Capability),
		Allowed:    dec.Allowed,
		Reason:     string(dec.Reason),
		CreatedAt:  dec.Timestamp,
	}
}

// AssessmentEvent converts a risk assessment into its audit record.
func AssessmentEvent(principal domain.Principal, a domain.RiskAssessment) Event {
	return Event{
		ID:          uuid.NewString(),
		Kind:        KindRiskAssessment,
		Principal:   principal.ID,
		Role:        string(principal.Role),
		Capability:  string(domain.CapAnalyzePermissions),
		Allowed:     true,
		Account:     a.Account,
		Identity:    a.IdentityName,
		Score:       a.Score,
		Level:       string(a.Level),
		PartialData: a.PartialData,
		CreatedAt:   a.Timestamp,
	}
}
