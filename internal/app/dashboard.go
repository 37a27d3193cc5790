// Package app wires the dashboard core together and exposes its operations.
// Every operation goes through the same rbac.Guard; there is no entry point
// that can reach identity data around it.
package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"iamdash/internal/audit"
	"iamdash/internal/awsiam"
	"iamdash/internal/config"
	"iamdash/internal/domain"
	"iamdash/internal/logging"
	"iamdash/internal/rbac"
	"iamdash/internal/risk"
)

// SnapshotSource fetches identity snapshots. *awsiam.Fetcher satisfies it;
// tests substitute a fixture source.
type SnapshotSource interface {
	FetchIdentitySnapshot(ctx context.Context, identityName string) (domain.IdentitySnapshot, error)
}

// DirectorySource serves the listing views for one account.
type DirectorySource interface {
	ListIdentities(ctx context.Context) ([]awsiam.IdentitySummary, error)
	ListRoles(ctx context.Context) ([]awsiam.RoleSummary, error)
	ListPolicies(ctx context.Context) ([]awsiam.PolicySummary, error)
}

// Dashboard is the application core behind both the HTTP API and the CLI.
type Dashboard struct {
	cfg     *config.Config
	guard   *rbac.Guard
	matrix  *rbac.Provider
	engine  *risk.Engine
	emitter *audit.Emitter
	sink    audit.Sink
	clients *awsiam.ClientManager

	// Per-account source constructors; replaced in tests.
	snapshotSource  func(ctx context.Context, account string) (SnapshotSource, error)
	directorySource func(ctx context.Context, account string) (DirectorySource, error)
}

// New builds the dashboard over live AWS clients.
func New(cfg *config.Config, matrix *rbac.Provider, engine *risk.Engine, emitter *audit.Emitter, sink audit.Sink) *Dashboard {
	clients := awsiam.NewClientManager(cfg.Accounts)
	d := NewWithSources(cfg, matrix, engine, emitter, sink,
		func(ctx context.Context, account string) (SnapshotSource, error) {
			client, err := clients.IAMClient(ctx, account)
			if err != nil {
				return nil, err
			}
			return awsiam.NewFetcher(client, account), nil
		},
		func(ctx context.Context, account string) (DirectorySource, error) {
			client, err := clients.IAMClient(ctx, account)
			if err != nil {
				return nil, err
			}
			return awsiam.NewDirectory(client), nil
		},
	)
	d.clients = clients
	return d
}

// VerifyAccounts runs an STS preflight for every configured account so dead
// credentials surface at startup, not on the first user request. Failures
// are logged, not fatal: one broken account must not take the others down.
func (d *Dashboard) VerifyAccounts(ctx context.Context) {
	if d.clients == nil {
		return
	}
	for _, key := range d.cfg.AccountKeys() {
		accountID, err := d.clients.VerifyCredentials(ctx, key)
		if err != nil {
			logging.LogError("Account credential check failed", err, map[string]interface{}{
				"account": key,
			})
			continue
		}
		logging.LogInfo("Verified account credentials", map[string]interface{}{
			"account":    key,
			"account_id": accountID,
		})
	}
}

// NewWithSources builds the dashboard over caller-supplied per-account
// sources. Used by tests and by deployments that front a cached snapshot
// store instead of live AWS clients.
func NewWithSources(
	cfg *config.Config,
	matrix *rbac.Provider,
	engine *risk.Engine,
	emitter *audit.Emitter,
	sink audit.Sink,
	snapshots func(ctx context.Context, account string) (SnapshotSource, error),
	directories func(ctx context.Context, account string) (DirectorySource, error),
) *Dashboard {
	return &Dashboard{
		cfg:             cfg,
		matrix:          matrix,
		engine:          engine,
		emitter:         emitter,
		sink:            sink,
		guard:           rbac.NewGuard(matrix, emitter),
		snapshotSource:  snapshots,
		directorySource: directories,
	}
}

// Guard exposes the shared access guard so presentation layers can gate
// rendering decisions with the exact same table the API uses.
func (d *Dashboard) Guard() *rbac.Guard {
	return d.guard
}

// Matrix exposes the published permission matrix (read-only view).
func (d *Dashboard) Matrix() *rbac.Matrix {
	return d.matrix.Current()
}

// Accounts returns the configured account keys, gated by view_identities.
func (d *Dashboard) Accounts(ctx context.Context, principal domain.Principal) ([]string, error) {
	if _, err := d.guard.Require(ctx, principal, domain.CapViewIdentities); err != nil {
		return nil, err
	}
	return d.cfg.AccountKeys(), nil
}

// Identities lists the IAM users of an account, gated by view_identities.
func (d *Dashboard) Identities(ctx context.Context, principal domain.Principal, account string) ([]awsiam.IdentitySummary, error) {
	if _, err := d.guard.Require(ctx, principal, domain.CapViewIdentities); err != nil {
		return nil, err
	}
	dir, err := d.directorySource(ctx, account)
	if err != nil {
		return nil, err
	}
	return dir.ListIdentities(ctx)
}

// Roles lists the IAM roles of an account, gated by view_roles.
func (d *Dashboard) Roles(ctx context.Context, principal domain.Principal, account string) ([]awsiam.RoleSummary, error) {
	if _, err := d.guard.Require(ctx, principal, domain.CapViewRoles); err != nil {
		return nil, err
	}
	dir, err := d.directorySource(ctx, account)
	if err != nil {
		return nil, err
	}
	return dir.ListRoles(ctx)
}

// Policies lists an account's customer-managed policies, gated by
// view_policies.
func (d *Dashboard) Policies(ctx context.Context, principal domain.Principal, account string) ([]awsiam.PolicySummary, error) {
	if _, err := d.guard.Require(ctx, principal, domain.CapViewPolicies); err != nil {
		return nil, err
	}
	dir, err := d.directorySource(ctx, account)
	if err != nil {
		return nil, err
	}
	return dir.ListPolicies(ctx)
}

// Analyze checks analyze_permissions, fetches a fresh snapshot, extracts
// risk factors, scores them, and emits the assessment to the audit sink.
func (d *Dashboard) Analyze(ctx context.Context, principal domain.Principal, account, identityName string) (domain.RiskAssessment, error) {
	if _, err := d.guard.Require(ctx, principal, domain.CapAnalyzePermissions); err != nil {
		return domain.RiskAssessment{}, err
	}

	source, err := d.snapshotSource(ctx, account)
	if err != nil {
		return domain.RiskAssessment{}, err
	}

	start := time.Now()
	snap, err := source.FetchIdentitySnapshot(ctx, identityName)
	if err != nil {
		return domain.RiskAssessment{}, err
	}

	assessment := d.engine.Assess(snap)
	d.emitter.EmitAssessment(principal, assessment)

	logging.LogInfo("Completed risk assessment", map[string]interface{}{
		"operation":   "analyze",
		"account":     account,
		"identity":    identityName,
		"score":       assessment.Score,
		"level":       string(assessment.Level),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return assessment, nil
}

// HighRisk assesses every identity in the account and returns those at or
// above minScore, highest first. Gated by analyze_permissions.
func (d *Dashboard) HighRisk(ctx context.Context, principal domain.Principal, account string, minScore int) ([]domain.RiskAssessment, error) {
	if _, err := d.guard.Require(ctx, principal, domain.CapAnalyzePermissions); err != nil {
		return nil, err
	}

	dir, err := d.directorySource(ctx, account)
	if err != nil {
		return nil, err
	}
	source, err := d.snapshotSource(ctx, account)
	if err != nil {
		return nil, err
	}

	identities, err := dir.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]domain.RiskAssessment, 0)
	for _, identity := range identities {
		snap, err := source.FetchIdentitySnapshot(ctx, identity.UserName)
		if err != nil {
			logging.LogWarn("Skipping identity in high-risk scan", map[string]interface{}{
				"account": account, "identity": identity.UserName, "error": err.Error(),
			})
			continue
		}
		assessment := d.engine.Assess(snap)
		d.emitter.EmitAssessment(principal, assessment)
		if assessment.Score >= minScore {
			results = append(results, assessment)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].IdentityName < results[j].IdentityName
	})
	logging.LogOperationEnd("high_risk_scan", time.Since(start), true, nil)
	return results, nil
}

// AuditEvents returns recent audit events. The all-principals view requires
// view_all_audit_logs; the self view requires view_own_audit_logs and is
// always scoped to the caller.
func (d *Dashboard) AuditEvents(ctx context.Context, principal domain.Principal, all bool, limit int) ([]audit.Event, error) {
	// Sinks treat an empty principal filter as match-all, so an unscoped
	// self view would return every principal's events.
	if !all && principal.ID == "" {
		return nil, &domain.ConfigurationError{
			Subject: "principal", Value: "",
			Detail: "self-scoped audit view requires a principal ID",
		}
	}
	capability := domain.CapViewOwnAuditLogs
	filter := audit.Filter{Principal: principal.ID, Limit: limit}
	if all {
		capability = domain.CapViewAllAuditLogs
		filter.Principal = ""
	}
	if _, err := d.guard.Require(ctx, principal, capability); err != nil {
		return nil, err
	}
	events, err := d.sink.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("audit query failed: %w", err)
	}
	return events, nil
}

// AuditStats reports emitter counters for the health endpoint.
func (d *Dashboard) AuditStats() audit.EmitterStats {
	return d.emitter.Stats()
}

// Close flushes the audit queue.
func (d *Dashboard) Close() error {
	return d.emitter.Close()
}
