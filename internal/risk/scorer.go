package risk

import (
	"sort"
	"time"

	"iamdash/internal/domain"
)

// Score aggregates a factor set into an assessment. The score is the
// weight sum clamped to [0,100]; identical factor sets always yield
// identical scores regardless of input order. Recommendations are ordered
// by descending weight, ties broken by factor name.
func (e *Engine) Score(identityName, account string, factors []domain.RiskFactor, warnings []domain.ParseWarning) domain.RiskAssessment {
	c := e.Catalog()

	// Deduplicate and canonicalize to catalog order.
	present := make(map[domain.RiskFactor]bool, len(factors))
	for _, f := range factors {
		present[f] = true
	}
	ordered := make([]domain.RiskFactor, 0, len(present))
	for _, f := range domain.AllRiskFactors {
		if present[f] {
			ordered = append(ordered, f)
		}
	}

	score := 0
	for _, f := range ordered {
		score += c.Weight(f)
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	byWeight := make([]domain.RiskFactor, len(ordered))
	copy(byWeight, ordered)
	sort.Slice(byWeight, func(i, j int) bool {
		wi, wj := c.Weight(byWeight[i]), c.Weight(byWeight[j])
		if wi != wj {
			return wi > wj
		}
		return byWeight[i] < byWeight[j]
	})

	recommendations := make([]string, 0, len(byWeight))
	for _, f := range byWeight {
		if rec := c.Recommendation(f); rec != "" {
			recommendations = append(recommendations, rec)
		}
	}

	return domain.RiskAssessment{
		IdentityName:    identityName,
		Account:         account,
		Factors:         ordered,
		Score:           score,
		Level:           levelFor(c.Thresholds, score),
		Recommendations: recommendations,
		PartialData:     len(warnings) > 0,
		ParseWarnings:   warnings,
		Timestamp:       e.now().UTC(),
	}
}

// Assess is Extract followed by Score in one call.
func (e *Engine) Assess(snap domain.IdentitySnapshot) domain.RiskAssessment {
	factors, warnings := e.Extract(snap)
	return e.Score(snap.IdentityName, snap.Account, factors, warnings)
}

func levelFor(t Thresholds, score int) domain.RiskLevel {
	switch {
	case score >= t.High:
		return domain.RiskLevelHigh
	case score >= t.Medium:
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelLow
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}
