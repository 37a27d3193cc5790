package rbac

import "iamdash/internal/domain"

// IsAdmin reports whether the role carries the universal override.
func IsAdmin(role domain.Role) bool {
	return role == domain.RoleAdmin
}
