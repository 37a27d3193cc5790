// Package rbac is the single source of truth for authorization decisions.
// UI rendering and API request handling must both go through Guard.Check;
// no layer may hand-roll a parallel role check.
package rbac

import (
	_ "embed"
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"iamdash/internal/domain"
)

//go:embed permission_matrix.yaml
var defaultMatrixYAML []byte

// MatrixConfig is the declarative permission matrix artifact.
type MatrixConfig struct {
	Version int                 `yaml:"version"`
	Grants  map[string][]string `yaml:"grants"`
}

// Matrix is the compiled, immutable (role, capability) -> allow table.
// Absence of an entry is a deny; matrices are replaced whole, never mutated.
type Matrix struct {
	grants map[domain.Capability]map[domain.Role]bool
}

// LoadMatrixConfig loads the matrix configuration from YAML.
// If configPath is empty, uses the embedded default config.
func LoadMatrixConfig(configPath string) (*MatrixConfig, error) {
	data := defaultMatrixYAML
	if configPath != "" {
		var err error
		data, err = os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
	}

	var cfg MatrixConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BuildMatrix compiles and validates a matrix config. Every capability in
// the closed enumeration must have a row (an empty row means admin-only),
// and every role name in the file must be a known non-admin role. Any
// violation is a ConfigurationError: the process must not start on a
// partial table.
func BuildMatrix(cfg *MatrixConfig) (*Matrix, error) {
	if cfg == nil || cfg.Grants == nil {
		return nil, &domain.ConfigurationError{Subject: "matrix", Value: "", Detail: "empty grants table"}
	}

	grants := make(map[domain.Capability]map[domain.Role]bool, len(domain.AllCapabilities))

	for name, roleNames := range cfg.Grants {
		capability := domain.Capability(name)
		if !capability.Valid() {
			return nil, &domain.ConfigurationError{Subject: "capability", Value: name}
		}
		row := make(map[domain.Role]bool, len(roleNames))
		for _, roleName := range roleNames {
			role, err := domain.ParseRole(roleName)
			if err != nil {
				return nil, fmt.Errorf("matrix row %s: %w", name, err)
			}
			if role == domain.RoleAdmin {
				return nil, &domain.ConfigurationError{
					Subject: "matrix", Value: name,
					Detail: "admin must not appear in a grant row; it overrides the matrix",
				}
			}
			row[role] = true
		}
		grants[capability] = row
	}

	// Totality check: a capability without a row would be an unchecked
	// capability, which is exactly the hole this table exists to close.
	for _, capability := range domain.AllCapabilities {
		if _, ok := grants[capability]; !ok {
			return nil, &domain.ConfigurationError{
				Subject: "matrix", Value: string(capability),
				Detail: "capability has no matrix row",
			}
		}
	}

	return &Matrix{grants: grants}, nil
}

// IsAllowed is the pure, total matrix lookup. Unknown pairs are deny;
// admin is handled by the guard, not here.
func (m *Matrix) IsAllowed(role domain.Role, capability domain.Capability) bool {
	row, ok := m.grants[capability]
	if !ok {
		return false
	}
	return row[role]
}

// RequiredRoles returns every role that satisfies the capability, admin
// included, in the stable AllRoles order.
func (m *Matrix) RequiredRoles(capability domain.Capability) []domain.Role {
	roles := []domain.Role{domain.RoleAdmin}
	row := m.grants[capability]
	for _, role := range domain.AllRoles {
		if row[role] {
			roles = append(roles, role)
		}
	}
	return roles
}

// CapabilitiesOf derives the capability set a role holds from the matrix.
// Admin holds everything.
func (m *Matrix) CapabilitiesOf(role domain.Role) []domain.Capability {
	caps := make([]domain.Capability, 0, len(domain.AllCapabilities))
	for _, capability := range domain.AllCapabilities {
		if role == domain.RoleAdmin || m.IsAllowed(role, capability) {
			caps = append(caps, capability)
		}
	}
	return caps
}

// Provider publishes the process-wide matrix. Reload builds a full new
// table and swaps the pointer in one step, so no in-flight check ever
// observes a partially updated table.
type Provider struct {
	current atomic.Pointer[Matrix]
}

// NewProvider creates a provider seeded with an already-validated matrix.
func NewProvider(m *Matrix) *Provider {
	p := &Provider{}
	p.current.Store(m)
	return p
}

// Current returns the published matrix.
func (p *Provider) Current() *Matrix {
	return p.current.Load()
}

// Swap atomically publishes a new matrix.
func (p *Provider) Swap(m *Matrix) {
	p.current.Store(m)
}

// Reload loads, validates, and atomically publishes the matrix at
// configPath (empty means the embedded default). On error the previous
// matrix stays published unchanged.
func (p *Provider) Reload(configPath string) error {
	cfg, err := LoadMatrixConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load permission matrix: %w", err)
	}
	m, err := BuildMatrix(cfg)
	if err != nil {
		return err
	}
	p.Swap(m)
	return nil
}
