package domain

import (
	"errors"
	"fmt"
)

// ErrAccountNotFound indicates the requested account key is not configured.
var ErrAccountNotFound = errors.New("account not configured")

// ErrIdentityNotFound indicates the identity does not exist in the provider.
var ErrIdentityNotFound = errors.New("identity not found")

// ConfigurationError marks a programming or configuration bug: an unknown
// role or capability value, or a malformed matrix/weight table. These are
// fatal at startup and must never degrade to a silent allow or a runtime
// deny decision.
type ConfigurationError struct {
	Subject string
	Value   string
	Detail  string
}

func (e *ConfigurationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("configuration error: %s %q: %s", e.Subject, e.Value, e.Detail)
	}
	return fmt.Sprintf("configuration error: unknown %s %q", e.Subject, e.Value)
}

// AccessDeniedError is returned when a capability check fails for a
// non-admin role. It states the required roles and the caller's own
// capability set, nothing about other principals.
type AccessDeniedError struct {
	Capability       Capability
	Role             Role
	RequiredRoles    []Role
	RoleCapabilities []Capability
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: role %q lacks capability %q (granted to %v)",
		e.Role, e.Capability, e.RequiredRoles)
}

// IsAccessDenied reports whether err is (or wraps) an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
