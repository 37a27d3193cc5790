package domain

import "fmt"

// Role is the closed set of dashboard roles. Immutable once assigned to a
// principal; admin implicitly satisfies every capability check.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleAuditor Role = "auditor"
	RoleViewer  Role = "viewer"
)

// AllRoles lists every valid role. Order is stable for deterministic output.
var AllRoles = []Role{RoleAdmin, RoleAnalyst, RoleAuditor, RoleViewer}

// ParseRole validates an externally supplied role string. Anything outside
// the closed set is rejected; callers must never map unknown input to a
// permissive default.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", &ConfigurationError{Subject: "role", Value: s}
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAnalyst, RoleAuditor, RoleViewer:
		return true
	}
	return false
}

// Capability is a named protected action requiring an authorization decision.
type Capability string

const (
	CapViewIdentities       Capability = "view_identities"
	CapViewRoles            Capability = "view_roles"
	CapViewPolicies         Capability = "view_policies"
	CapAnalyzePermissions   Capability = "analyze_permissions"
	CapViewAllAuditLogs     Capability = "view_all_audit_logs"
	CapViewOwnAuditLogs     Capability = "view_own_audit_logs"
	CapManageUsers          Capability = "manage_users"
	CapManageSystemSettings Capability = "manage_system_settings"
)

// AllCapabilities is the authoritative capability enumeration. The permission
// matrix is validated against this list at startup so that no capability can
// exist without a matrix row.
var AllCapabilities = []Capability{
	CapViewIdentities,
	CapViewRoles,
	CapViewPolicies,
	CapAnalyzePermissions,
	CapViewAllAuditLogs,
	CapViewOwnAuditLogs,
	CapManageUsers,
	CapManageSystemSettings,
}

func (c Capability) Valid() bool {
	for _, known := range AllCapabilities {
		if c == known {
			return true
		}
	}
	return false
}

// DecisionReason explains an access decision.
type DecisionReason string

const (
	ReasonAdminOverride    DecisionReason = "ADMIN_OVERRIDE"
	ReasonGranted          DecisionReason = "GRANTED"
	ReasonRoleInsufficient DecisionReason = "ROLE_INSUFFICIENT"
)

// RiskLevel is the tiered risk classification.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// LogLevel represents log levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

func (r Role) String() string       { return string(r) }
func (c Capability) String() string { return string(c) }

// Principal identifies the authenticated actor making a request. Resolution
// happens outside the core; only the already-resolved role is consumed here.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (p Principal) String() string {
	return fmt.Sprintf("%s(%s)", p.ID, p.Role)
}
