// Package risk turns an identity snapshot into a deterministic, explainable
// risk assessment. Extraction and scoring are pure over the snapshot plus
// one piece of read-only configuration, the factor catalog.
package risk

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"iamdash/internal/domain"
)

//go:embed risk_weights.yaml
var defaultWeightsYAML []byte

// FactorSpec is one catalog row: the scoring weight and the fixed
// remediation string attached when the factor is present.
type FactorSpec struct {
	Weight         int    `yaml:"weight"`
	Recommendation string `yaml:"recommendation"`
}

// Thresholds are the level cut points: score < Medium is LOW,
// Medium <= score < High is MEDIUM, score >= High is HIGH.
type Thresholds struct {
	Medium int `yaml:"medium"`
	High   int `yaml:"high"`
}

// Catalog is the versioned risk configuration artifact.
type Catalog struct {
	Version           int                   `yaml:"version"`
	StalenessDays     int                   `yaml:"staleness_days"`
	GroupCeiling      int                   `yaml:"group_ceiling"`
	SensitiveServices []string              `yaml:"sensitive_services"`
	Factors           map[string]FactorSpec `yaml:"factors"`
	Thresholds        Thresholds            `yaml:"thresholds"`

	sensitiveSet map[string]bool
}

// LoadCatalog loads and validates the catalog from YAML. An empty path uses
// the embedded default. A weight table that does not cover the whole factor
// enumeration is a ConfigurationError: no factor may exist unweighted.
func LoadCatalog(configPath string) (*Catalog, error) {
	data := defaultWeightsYAML
	if configPath != "" {
		var err error
		data, err = os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse risk weights: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	c.sensitiveSet = make(map[string]bool, len(c.SensitiveServices))
	for _, svc := range c.SensitiveServices {
		c.sensitiveSet[svc] = true
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	for name := range c.Factors {
		if !domain.RiskFactor(name).Valid() {
			return &domain.ConfigurationError{Subject: "risk factor", Value: name}
		}
	}
	for _, factor := range domain.AllRiskFactors {
		spec, ok := c.Factors[string(factor)]
		if !ok {
			return &domain.ConfigurationError{
				Subject: "risk factor", Value: string(factor),
				Detail: "missing from weight table",
			}
		}
		if spec.Weight < 0 {
			return &domain.ConfigurationError{
				Subject: "risk factor", Value: string(factor),
				Detail: "negative weight",
			}
		}
	}
	if c.Thresholds.Medium <= 0 || c.Thresholds.High <= c.Thresholds.Medium || c.Thresholds.High > 100 {
		return &domain.ConfigurationError{
			Subject: "thresholds",
			Value:   fmt.Sprintf("medium=%d high=%d", c.Thresholds.Medium, c.Thresholds.High),
			Detail:  "require 0 < medium < high <= 100",
		}
	}
	if c.StalenessDays <= 0 {
		return &domain.ConfigurationError{Subject: "staleness_days", Value: fmt.Sprint(c.StalenessDays), Detail: "must be positive"}
	}
	if c.GroupCeiling <= 0 {
		return &domain.ConfigurationError{Subject: "group_ceiling", Value: fmt.Sprint(c.GroupCeiling), Detail: "must be positive"}
	}
	return nil
}

// Weight returns the configured weight for a factor.
func (c *Catalog) Weight(f domain.RiskFactor) int {
	return c.Factors[string(f)].Weight
}

// Recommendation returns the fixed remediation string for a factor.
func (c *Catalog) Recommendation(f domain.RiskFactor) string {
	return c.Factors[string(f)].Recommendation
}

func (c *Catalog) sensitiveService(svc string) bool {
	return c.sensitiveSet[svc]
}
