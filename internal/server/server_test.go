package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"iamdash/internal/app"
	"iamdash/internal/audit"
	"iamdash/internal/awsiam"
	"iamdash/internal/config"
	"iamdash/internal/domain"
	"iamdash/internal/rbac"
	"iamdash/internal/risk"
)

type fixtureSource struct {
	snapshots  map[string]domain.IdentitySnapshot
	identities []awsiam.IdentitySummary
}

func (f *fixtureSource) FetchIdentitySnapshot(ctx context.Context, identityName string) (domain.IdentitySnapshot, error) {
	snap, ok := f.snapshots[identityName]
	if !ok {
		return domain.IdentitySnapshot{}, domain.ErrIdentityNotFound
	}
	return snap, nil
}

func (f *fixtureSource) ListIdentities(ctx context.Context) ([]awsiam.IdentitySummary, error) {
	return f.identities, nil
}

func (f *fixtureSource) ListRoles(ctx context.Context) ([]awsiam.RoleSummary, error) {
	return nil, nil
}

func (f *fixtureSource) ListPolicies(ctx context.Context) ([]awsiam.PolicySummary, error) {
	return nil, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	matrixCfg, err := rbac.LoadMatrixConfig("")
	if err != nil {
		t.Fatalf("LoadMatrixConfig: %v", err)
	}
	matrix, err := rbac.BuildMatrix(matrixCfg)
	if err != nil {
		t.Fatalf("BuildMatrix: %v", err)
	}
	provider := rbac.NewProvider(matrix)

	catalog, err := risk.LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	engine := risk.NewEngine(catalog)

	sink := audit.NewMemorySink()
	emitter := audit.NewEmitter(sink, 64, time.Second)

	source := &fixtureSource{
		snapshots: map[string]domain.IdentitySnapshot{
			"svc-deploy": {
				IdentityName: "svc-deploy",
				Account:      "prod",
				AttachedPolicies: []domain.PolicyDocument{{
					Name: "wide",
					Raw:  []byte(`{"Statement":[{"Effect":"Allow","Action":"*","Resource":"*"}]}`),
				}},
			},
		},
		identities: []awsiam.IdentitySummary{{UserName: "svc-deploy"}},
	}

	cfg := &config.Config{Accounts: map[string]config.Account{"prod": {Key: "prod"}}}
	dashboard := app.NewWithSources(cfg, provider, engine, emitter, sink,
		func(ctx context.Context, account string) (app.SnapshotSource, error) {
			if account != "prod" {
				return nil, domain.ErrAccountNotFound
			}
			return source, nil
		},
		func(ctx context.Context, account string) (app.DirectorySource, error) {
			if account != "prod" {
				return nil, domain.ErrAccountNotFound
			}
			return source, nil
		},
	)
	t.Cleanup(func() { _ = dashboard.Close() })
	return New(dashboard, ":0").Router()
}

func doRequest(t *testing.T, h http.Handler, path, role, principal string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if role != "" {
		req.Header.Set("X-Dashboard-Role", role)
	}
	if principal != "" {
		req.Header.Set("X-Dashboard-Principal", principal)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestPrincipalHeaderRequired(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name      string
		role      string
		principal string
		want      int
	}{
		{"missing role header", "", "alice", http.StatusUnauthorized},
		{"unknown role", "superuser", "alice", http.StatusUnauthorized},
		{"missing principal header", "viewer", "", http.StatusUnauthorized},
		{"known role and principal", "viewer", "alice", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, "/api/accounts", tt.role, tt.principal)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestAuditSelfWithoutPrincipalHeader(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, "/api/audit/events/self", "viewer", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthNeedsNoPrincipal(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if _, ok := body["audit"]; !ok {
		t.Error("health body missing audit counters")
	}
}

func TestAnalyzeEndpointByRole(t *testing.T) {
	h := newTestServer(t)
	path := "/api/accounts/prod/identities/svc-deploy/analysis"

	rec := doRequest(t, h, path, "analyst", "carol")
	if rec.Code != http.StatusOK {
		t.Fatalf("analyst status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["identity_name"] != "svc-deploy" {
		t.Errorf("identity_name = %v", body["identity_name"])
	}
	if body["level"] != "HIGH" {
		t.Errorf("level = %v, want HIGH for a full-admin policy", body["level"])
	}

	rec = doRequest(t, h, path, "admin", "root")
	if rec.Code != http.StatusOK {
		t.Errorf("admin status = %d", rec.Code)
	}
}

func TestAnalyzeDeniedBodyStatesRequiredRoles(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, "/api/accounts/prod/identities/svc-deploy/analysis", "viewer", "vera")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["capability"] != "analyze_permissions" {
		t.Errorf("capability = %v", body["capability"])
	}
	required, ok := body["required_roles"].([]interface{})
	if !ok || len(required) == 0 {
		t.Fatalf("required_roles = %v", body["required_roles"])
	}
	if required[0] != "admin" {
		t.Errorf("required_roles = %v, want admin first", required)
	}
	if _, ok := body["role_capabilities"]; !ok {
		t.Error("denial body missing role_capabilities")
	}
}

func TestAnalyzeUnknownTargets(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, "/api/accounts/staging/identities/svc-deploy/analysis", "analyst", "carol")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown account status = %d", rec.Code)
	}

	rec = doRequest(t, h, "/api/accounts/prod/identities/ghost/analysis", "analyst", "carol")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown identity status = %d", rec.Code)
	}
}

func TestHighRiskQueryValidation(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, "/api/accounts/prod/high-risk?min_score=150", "analyst", "carol")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("min_score=150 status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, h, "/api/accounts/prod/high-risk?min_score=60", "analyst", "carol")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["total"] != float64(1) {
		t.Errorf("total = %v, want 1", body["total"])
	}
}

func TestAuditEndpointsByRole(t *testing.T) {
	h := newTestServer(t)

	// Seed some history.
	doRequest(t, h, "/api/accounts/prod/identities/svc-deploy/analysis", "analyst", "carol")

	if rec := doRequest(t, h, "/api/audit/events", "analyst", "carol"); rec.Code != http.StatusForbidden {
		t.Errorf("analyst all-events status = %d, want 403", rec.Code)
	}
	if rec := doRequest(t, h, "/api/audit/events", "auditor", "audrey"); rec.Code != http.StatusOK {
		t.Errorf("auditor all-events status = %d", rec.Code)
	}
	if rec := doRequest(t, h, "/api/audit/events/self", "viewer", "vera"); rec.Code != http.StatusOK {
		t.Errorf("viewer self-events status = %d", rec.Code)
	}
	if rec := doRequest(t, h, "/api/audit/events/self?limit=0", "viewer", "vera"); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", rec.Code)
	}
}

func TestCapabilitiesReflectMatrix(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, "/api/capabilities", "viewer", "vera")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	caps, ok := body["capabilities"].([]interface{})
	if !ok {
		t.Fatalf("capabilities = %v", body["capabilities"])
	}
	set := map[string]bool{}
	for _, c := range caps {
		set[c.(string)] = true
	}
	if !set["view_identities"] || !set["view_own_audit_logs"] {
		t.Errorf("viewer capabilities missing expected entries: %v", set)
	}
	if set["analyze_permissions"] || set["manage_users"] {
		t.Errorf("viewer capabilities too broad: %v", set)
	}

	rec = doRequest(t, h, "/api/capabilities", "admin", "root")
	body = decodeBody(t, rec)
	if caps, _ := body["capabilities"].([]interface{}); len(caps) != len(domain.AllCapabilities) {
		t.Errorf("admin capabilities = %v, want all %d", caps, len(domain.AllCapabilities))
	}
}
