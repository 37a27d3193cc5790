package rbac

import (
	"context"
	"time"

	"github.com/google/uuid"

	"iamdash/internal/domain"
)

// DecisionEmitter receives every access decision. Emission must never block
// or fail a check; implementations buffer and drop rather than stall.
type DecisionEmitter interface {
	EmitDecision(dec domain.AccessDecision)
}

// Guard is the enforcement boundary. Both the UI-facing and API-facing
// layers call the same Check; there is no second table anywhere.
type Guard struct {
	matrix  *Provider
	emitter DecisionEmitter
	now     func() time.Time
}

// NewGuard creates the guard. emitter may be nil (decisions still returned,
// nothing emitted); the server wires a real emitter.
func NewGuard(matrix *Provider, emitter DecisionEmitter) *Guard {
	return &Guard{
		matrix:  matrix,
		emitter: emitter,
		now:     time.Now,
	}
}

// Check evaluates one capability request for the principal. Invalid role or
// capability values are configuration bugs and return an error instead of a
// deny decision, so they surface in testing rather than hiding as silent
// denies (or worse, allows).
func (g *Guard) Check(ctx context.Context, principal domain.Principal, capability domain.Capability) (domain.AccessDecision, error) {
	if !principal.Role.Valid() {
		return domain.AccessDecision{}, &domain.ConfigurationError{Subject: "role", Value: string(principal.Role)}
	}
	if !capability.Valid() {
		return domain.AccessDecision{}, &domain.ConfigurationError{Subject: "capability", Value: string(capability)}
	}

	dec := domain.AccessDecision{
		ID:         uuid.NewString(),
		Principal:  principal.ID,
		Role:       principal.Role,
		Capability: capability,
		Timestamp:  g.now().UTC(),
	}

	if IsAdmin(principal.Role) {
		dec.Allowed = true
		dec.Reason = domain.ReasonAdminOverride
	} else if g.matrix.Current().IsAllowed(principal.Role, capability) {
		dec.Allowed = true
		dec.Reason = domain.ReasonGranted
	} else {
		dec.Allowed = false
		dec.Reason = domain.ReasonRoleInsufficient
	}

	if g.emitter != nil {
		g.emitter.EmitDecision(dec)
	}
	return dec, nil
}

// Require runs Check and converts a deny into an AccessDeniedError carrying
// the required roles and the caller's own capability set.
func (g *Guard) Require(ctx context.Context, principal domain.Principal, capability domain.Capability) (domain.AccessDecision, error) {
	dec, err := g.Check(ctx, principal, capability)
	if err != nil {
		return dec, err
	}
	if !dec.Allowed {
		m := g.matrix.Current()
		return dec, &domain.AccessDeniedError{
			Capability:       capability,
			Role:             principal.Role,
			RequiredRoles:    m.RequiredRoles(capability),
			RoleCapabilities: m.CapabilitiesOf(principal.Role),
		}
	}
	return dec, nil
}
