package domain

import "time"

// AccessDecision is the immutable result of a single capability check. It is
// created per check, forwarded to the audit emitter, and never persisted by
// the core itself.
type AccessDecision struct {
	ID         string         `json:"id"`
	Principal  string         `json:"principal,omitempty"`
	Role       Role           `json:"role"`
	Capability Capability     `json:"capability"`
	Allowed    bool           `json:"allowed"`
	Reason     DecisionReason `json:"reason"`
	Timestamp  time.Time      `json:"timestamp"`
}
