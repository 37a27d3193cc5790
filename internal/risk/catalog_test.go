package risk

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"iamdash/internal/domain"
)

func fullFactorTable(weight int) map[string]FactorSpec {
	factors := make(map[string]FactorSpec, len(domain.AllRiskFactors))
	for _, f := range domain.AllRiskFactors {
		factors[string(f)] = FactorSpec{Weight: weight}
	}
	return factors
}

func TestCatalogValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Catalog)
		wantErr bool
	}{
		{
			name:   "valid",
			mutate: func(c *Catalog) {},
		},
		{
			name: "unknown factor name",
			mutate: func(c *Catalog) {
				c.Factors["exotic_factor"] = FactorSpec{Weight: 10}
			},
			wantErr: true,
		},
		{
			name: "missing factor row",
			mutate: func(c *Catalog) {
				delete(c.Factors, string(domain.FactorInlinePolicy))
			},
			wantErr: true,
		},
		{
			name: "negative weight",
			mutate: func(c *Catalog) {
				c.Factors[string(domain.FactorInlinePolicy)] = FactorSpec{Weight: -5}
			},
			wantErr: true,
		},
		{
			name:    "high below medium",
			mutate:  func(c *Catalog) { c.Thresholds = Thresholds{Medium: 70, High: 30} },
			wantErr: true,
		},
		{
			name:    "high above 100",
			mutate:  func(c *Catalog) { c.Thresholds.High = 120 },
			wantErr: true,
		},
		{
			name:    "zero staleness window",
			mutate:  func(c *Catalog) { c.StalenessDays = 0 },
			wantErr: true,
		},
		{
			name:    "zero group ceiling",
			mutate:  func(c *Catalog) { c.GroupCeiling = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Catalog{
				Version:       1,
				StalenessDays: 90,
				GroupCeiling:  5,
				Factors:       fullFactorTable(10),
				Thresholds:    Thresholds{Medium: 30, High: 70},
			}
			tt.mutate(c)
			err := c.validate()
			if tt.wantErr {
				var cfgErr *domain.ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("validate() = %v, want ConfigurationError", err)
				}
				return
			}
			if err != nil {
				t.Errorf("validate(): %v", err)
			}
		})
	}
}

func TestLoadCatalogFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	yaml := `version: 2
staleness_days: 30
group_ceiling: 3
sensitive_services: [iam]
factors:
  wildcard_action_policy: {weight: 40, recommendation: "Scope actions"}
  wildcard_resource_policy: {weight: 5}
  admin_equivalent_policy: {weight: 60}
  unused_credential: {weight: 5}
  stale_credential_90d: {weight: 5}
  inline_policy: {weight: 5}
  no_mfa_indicator: {weight: 5}
  excess_group_count: {weight: 5}
thresholds: {medium: 20, high: 60}
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if c.Version != 2 || c.StalenessDays != 30 || c.GroupCeiling != 3 {
		t.Errorf("catalog = %+v", c)
	}
	if c.Weight(domain.FactorWildcardActionPolicy) != 40 {
		t.Errorf("wildcard weight = %d", c.Weight(domain.FactorWildcardActionPolicy))
	}
	if !c.sensitiveService("iam") || c.sensitiveService("s3") {
		t.Error("sensitive service set not rebuilt from file")
	}

	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestEngineReloadKeepsCatalogOnError(t *testing.T) {
	c, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	e := NewEngine(c)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("factors: {}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := e.Reload(bad); err == nil {
		t.Fatal("Reload accepted an incomplete weight table")
	}
	if e.Catalog() != c {
		t.Error("failed reload replaced the published catalog")
	}
}
