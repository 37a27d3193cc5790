package risk

import (
	"math/rand"
	"testing"

	"iamdash/internal/domain"
)

// testCatalog builds a full catalog where only the given factors carry
// weight. Every factor keeps a recommendation so ordering is observable.
func testCatalog(weights map[domain.RiskFactor]int) *Catalog {
	factors := make(map[string]FactorSpec, len(domain.AllRiskFactors))
	for _, f := range domain.AllRiskFactors {
		factors[string(f)] = FactorSpec{Weight: 0, Recommendation: "fix " + string(f)}
	}
	for f, w := range weights {
		factors[string(f)] = FactorSpec{Weight: w, Recommendation: "fix " + string(f)}
	}
	return &Catalog{
		Version:       1,
		StalenessDays: 90,
		GroupCeiling:  5,
		Factors:       factors,
		Thresholds:    Thresholds{Medium: 30, High: 70},
		sensitiveSet:  map[string]bool{"iam": true, "s3": true, "kms": true},
	}
}

func TestScoreEmptyFactorSet(t *testing.T) {
	e := NewEngine(testCatalog(nil))
	a := e.Score("alice", "prod", nil, nil)

	if a.Score != 0 {
		t.Errorf("Score = %d, want 0", a.Score)
	}
	if a.Level != domain.RiskLevelLow {
		t.Errorf("Level = %s, want LOW", a.Level)
	}
	if len(a.Recommendations) != 0 {
		t.Errorf("Recommendations = %v, want empty", a.Recommendations)
	}
	if a.PartialData {
		t.Error("PartialData = true for no warnings")
	}
}

func TestScoreOrderIndependent(t *testing.T) {
	e := NewEngine(testCatalog(map[domain.RiskFactor]int{
		domain.FactorWildcardActionPolicy: 30,
		domain.FactorStaleCredential:      20,
		domain.FactorExcessGroupCount:     10,
		domain.FactorNoMFAIndicator:       15,
	}))

	factors := []domain.RiskFactor{
		domain.FactorWildcardActionPolicy,
		domain.FactorStaleCredential,
		domain.FactorExcessGroupCount,
		domain.FactorNoMFAIndicator,
	}

	first := e.Score("alice", "prod", factors, nil)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := make([]domain.RiskFactor, len(factors))
		copy(shuffled, factors)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := e.Score("alice", "prod", shuffled, nil)
		if got.Score != first.Score || got.Level != first.Level {
			t.Fatalf("permutation changed score: %d/%s vs %d/%s", got.Score, got.Level, first.Score, first.Level)
		}
		for j := range first.Recommendations {
			if got.Recommendations[j] != first.Recommendations[j] {
				t.Fatalf("permutation changed recommendation order")
			}
		}
	}
}

func TestScoreDuplicateFactorsCountOnce(t *testing.T) {
	e := NewEngine(testCatalog(map[domain.RiskFactor]int{
		domain.FactorStaleCredential: 20,
	}))
	a := e.Score("alice", "prod", []domain.RiskFactor{
		domain.FactorStaleCredential,
		domain.FactorStaleCredential,
	}, nil)
	if a.Score != 20 {
		t.Errorf("Score = %d, want 20 (duplicates collapse)", a.Score)
	}
}

func TestScoreMonotonic(t *testing.T) {
	e := NewEngine(testCatalog(map[domain.RiskFactor]int{
		domain.FactorWildcardActionPolicy:   30,
		domain.FactorWildcardResourcePolicy: 25,
		domain.FactorAdminEquivalentPolicy:  50,
		domain.FactorStaleCredential:        20,
		domain.FactorUnusedCredential:       15,
	}))

	var set []domain.RiskFactor
	prev := 0
	for _, f := range domain.AllRiskFactors {
		set = append(set, f)
		got := e.Score("alice", "prod", set, nil).Score
		if got < prev {
			t.Fatalf("adding %s decreased score %d -> %d", f, prev, got)
		}
		prev = got
	}
}

func TestScoreClamped(t *testing.T) {
	e := NewEngine(testCatalog(map[domain.RiskFactor]int{
		domain.FactorAdminEquivalentPolicy:  60,
		domain.FactorWildcardActionPolicy:   60,
		domain.FactorWildcardResourcePolicy: 60,
	}))
	a := e.Score("alice", "prod", []domain.RiskFactor{
		domain.FactorAdminEquivalentPolicy,
		domain.FactorWildcardActionPolicy,
		domain.FactorWildcardResourcePolicy,
	}, nil)
	if a.Score != 100 {
		t.Errorf("Score = %d, want clamp to 100", a.Score)
	}
	if a.Level != domain.RiskLevelHigh {
		t.Errorf("Level = %s, want HIGH", a.Level)
	}
}

func TestLevelThresholdBoundaries(t *testing.T) {
	tests := []struct {
		weight int
		want   domain.RiskLevel
	}{
		{29, domain.RiskLevelLow},
		{30, domain.RiskLevelMedium},
		{69, domain.RiskLevelMedium},
		{70, domain.RiskLevelHigh},
	}

	for _, tt := range tests {
		e := NewEngine(testCatalog(map[domain.RiskFactor]int{
			domain.FactorWildcardActionPolicy: tt.weight,
		}))
		a := e.Score("alice", "prod", []domain.RiskFactor{domain.FactorWildcardActionPolicy}, nil)
		if a.Score != tt.weight {
			t.Errorf("weight %d: Score = %d", tt.weight, a.Score)
		}
		if a.Level != tt.want {
			t.Errorf("score %d: Level = %s, want %s", tt.weight, a.Level, tt.want)
		}
	}
}

func TestRecommendationsOrderedByWeight(t *testing.T) {
	e := NewEngine(testCatalog(map[domain.RiskFactor]int{
		domain.FactorWildcardActionPolicy: 30,
		domain.FactorStaleCredential:      20,
		domain.FactorNoMFAIndicator:       20,
		domain.FactorExcessGroupCount:     10,
	}))

	a := e.Score("alice", "prod", []domain.RiskFactor{
		domain.FactorExcessGroupCount,
		domain.FactorNoMFAIndicator,
		domain.FactorStaleCredential,
		domain.FactorWildcardActionPolicy,
	}, nil)

	want := []string{
		// 30 first, then the 20s tied by name, then 10.
		"fix " + string(domain.FactorWildcardActionPolicy),
		"fix " + string(domain.FactorNoMFAIndicator),
		"fix " + string(domain.FactorStaleCredential),
		"fix " + string(domain.FactorExcessGroupCount),
	}
	if len(a.Recommendations) != len(want) {
		t.Fatalf("Recommendations = %v, want %v", a.Recommendations, want)
	}
	for i := range want {
		if a.Recommendations[i] != want[i] {
			t.Errorf("Recommendations[%d] = %q, want %q", i, a.Recommendations[i], want[i])
		}
	}
}

func TestScoreCarriesWarnings(t *testing.T) {
	e := NewEngine(testCatalog(nil))
	warnings := []domain.ParseWarning{{Document: "broken", Detail: "invalid character"}}
	a := e.Score("alice", "prod", nil, warnings)
	if !a.PartialData {
		t.Error("PartialData = false with warnings present")
	}
	if len(a.ParseWarnings) != 1 {
		t.Errorf("ParseWarnings = %v", a.ParseWarnings)
	}
}

func TestDefaultCatalogLoads(t *testing.T) {
	c, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	for _, f := range domain.AllRiskFactors {
		if c.Recommendation(f) == "" {
			t.Errorf("factor %s has no recommendation", f)
		}
	}
	if c.Weight(domain.FactorWildcardActionPolicy) != 30 {
		t.Errorf("wildcard_action_policy weight = %d, want 30", c.Weight(domain.FactorWildcardActionPolicy))
	}
	if c.Weight(domain.FactorStaleCredential) != 20 {
		t.Errorf("stale_credential_90d weight = %d, want 20", c.Weight(domain.FactorStaleCredential))
	}
}
