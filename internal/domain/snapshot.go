package domain

import "time"

// IdentitySnapshot is a point-in-time, read-only description of a cloud
// identity's permission surface. It is supplied fresh by the caller on every
// analysis and never mutated by the core.
type IdentitySnapshot struct {
	IdentityName     string             `json:"identity_name"`
	Account          string             `json:"account"`
	ARN              string             `json:"arn,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	AttachedPolicies []PolicyDocument   `json:"attached_policies"`
	InlinePolicies   []PolicyDocument   `json:"inline_policies"`
	Credentials      []CredentialRecord `json:"credentials"`
	Groups           []string           `json:"groups"`
	HasConsoleAccess bool               `json:"has_console_access"`
	MFADeviceCount   int                `json:"mfa_device_count"`
}

// PolicyDocument carries one permission document exactly as retrieved from
// the identity provider. Raw is the JSON policy body; parsing happens during
// factor extraction so a malformed document degrades to a warning instead of
// failing the fetch.
type PolicyDocument struct {
	Name string `json:"name"`
	ARN  string `json:"arn,omitempty"`
	Raw  []byte `json:"-"`
}

// CredentialRecord describes one long-lived credential (access key) attached
// to the identity. LastUsed is nil when the credential has never been used.
type CredentialRecord struct {
	ID        string     `json:"id"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// Age returns how old the credential is relative to now.
func (c CredentialRecord) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}
