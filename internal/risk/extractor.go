package risk

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"iamdash/internal/domain"
	"iamdash/internal/logging"
)

// mutatingActionVerbs are the action-verb prefixes treated as writes when
// combined with Resource: "*".
var mutatingActionVerbs = []string{
	"Put", "Create", "Delete", "Update", "Attach", "Detach",
	"Modify", "Write", "Set", "Add", "Remove", "Terminate", "Run",
}

// Engine evaluates snapshots against the published catalog. The catalog is
// replaced whole via an atomic swap; concurrent extractions never observe a
// partial reload.
type Engine struct {
	catalog atomic.Pointer[Catalog]
	now     func() time.Time
}

// NewEngine creates an engine over an already-validated catalog.
func NewEngine(c *Catalog) *Engine {
	e := &Engine{now: time.Now}
	e.catalog.Store(c)
	return e
}

// Catalog returns the published catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog.Load()
}

// Reload loads, validates, and atomically publishes the catalog at
// configPath. On error the previous catalog stays published.
func (e *Engine) Reload(configPath string) error {
	c, err := LoadCatalog(configPath)
	if err != nil {
		return err
	}
	e.catalog.Store(c)
	return nil
}

// Extract converts a snapshot into its risk factor set. Presence of a
// factor depends only on snapshot content; documents that fail to parse are
// skipped with a warning so one bad document never blocks the rest of the
// identity.
func (e *Engine) Extract(snap domain.IdentitySnapshot) ([]domain.RiskFactor, []domain.ParseWarning) {
	c := e.Catalog()
	now := e.now().UTC()
	present := make(map[domain.RiskFactor]bool)
	warnings := make([]domain.ParseWarning, 0)

	docs := make([]domain.PolicyDocument, 0, len(snap.AttachedPolicies)+len(snap.InlinePolicies))
	docs = append(docs, snap.AttachedPolicies...)
	docs = append(docs, snap.InlinePolicies...)

	for _, doc := range docs {
		// Managed admin policy is recognizable without parsing.
		if strings.HasSuffix(doc.ARN, "policy/AdministratorAccess") {
			present[domain.FactorAdminEquivalentPolicy] = true
		}
		// A document the fetcher could not retrieve hides an unknown amount
		// of access; the assessment must carry the partial-data caveat.
		if len(doc.Raw) == 0 {
			warnings = append(warnings, domain.ParseWarning{
				Document: doc.Name,
				Detail:   "policy document unavailable",
			})
			continue
		}

		var policyDoc map[string]interface{}
		if err := json.Unmarshal(doc.Raw, &policyDoc); err != nil {
			warnings = append(warnings, domain.ParseWarning{
				Document: doc.Name,
				Detail:   err.Error(),
			})
			logging.LogWarn("Skipping unparseable policy document", map[string]interface{}{
				"identity": snap.IdentityName,
				"account":  snap.Account,
				"document": doc.Name,
				"error":    err.Error(),
			})
			continue
		}
		e.inspectPolicy(c, policyDoc, present)
	}

	if len(snap.InlinePolicies) > 0 {
		present[domain.FactorInlinePolicy] = true
	}

	for _, cred := range snap.Credentials {
		if !cred.Active {
			continue
		}
		if cred.LastUsed == nil {
			present[domain.FactorUnusedCredential] = true
			continue
		}
		if now.Sub(*cred.LastUsed) > time.Duration(c.StalenessDays)*24*time.Hour {
			present[domain.FactorStaleCredential] = true
		}
	}

	if snap.HasConsoleAccess && snap.MFADeviceCount == 0 {
		present[domain.FactorNoMFAIndicator] = true
	}

	if len(snap.Groups) > c.GroupCeiling {
		present[domain.FactorExcessGroupCount] = true
	}

	// Emit in catalog order so the factor set is stable for identical input.
	factors := make([]domain.RiskFactor, 0, len(present))
	for _, factor := range domain.AllRiskFactors {
		if present[factor] {
			factors = append(factors, factor)
		}
	}
	return factors, warnings
}

// inspectPolicy walks a parsed policy document's statements and marks the
// policy-shaped factors. Statement may be a single object or a list.
func (e *Engine) inspectPolicy(c *Catalog, policyDoc map[string]interface{}, present map[domain.RiskFactor]bool) {
	for _, stmt := range normalizeStatements(policyDoc["Statement"]) {
		if effect, _ := stmt["Effect"].(string); effect != "Allow" {
			continue
		}

		actions := normalizeToList(stmt["Action"])
		resources := normalizeToList(stmt["Resource"])

		allResources := false
		for _, resource := range resources {
			if resource == "*" {
				allResources = true
				break
			}
		}

		hasMutating := false
		for _, action := range actions {
			if action == "*" || action == "*:*" {
				present[domain.FactorWildcardActionPolicy] = true
				hasMutating = true
				if allResources {
					present[domain.FactorAdminEquivalentPolicy] = true
				}
				continue
			}
			service, verb, ok := strings.Cut(action, ":")
			if !ok {
				continue
			}
			if verb == "*" {
				hasMutating = true
				if c.sensitiveService(service) {
					present[domain.FactorWildcardActionPolicy] = true
				}
				continue
			}
			if isMutatingVerb(verb) {
				hasMutating = true
			}
		}

		if allResources && hasMutating {
			present[domain.FactorWildcardResourcePolicy] = true
		}
	}
}

func isMutatingVerb(verb string) bool {
	for _, prefix := range mutatingActionVerbs {
		if strings.HasPrefix(verb, prefix) {
			return true
		}
	}
	return false
}

// normalizeStatements handles the Statement field being either a single
// statement object or a list of them.
func normalizeStatements(value interface{}) []map[string]interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{v}
	case []interface{}:
		result := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if stmt, ok := item.(map[string]interface{}); ok {
				result = append(result, stmt)
			}
		}
		return result
	default:
		return nil
	}
}

// normalizeToList normalizes a value to a list of strings
func normalizeToList(value interface{}) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return []string{}
	}
}
