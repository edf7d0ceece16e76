package service

import (
	"context"
	"fmt"

	"github.com/opsportal/portal/internal/core/domain"
)

// AccessGuard derives the owner scope for a request. The scope always comes
// from the session's active context; the guard never falls back to trying the
// tenant's other facet.
type AccessGuard struct {
	contexts *ContextService
}

// NewAccessGuard returns an AccessGuard backed by the context service.
func NewAccessGuard(contexts *ContextService) *AccessGuard {
	return &AccessGuard{contexts: contexts}
}

// ScopeFor re-resolves the session's context and returns the scope for the
// active facet. A dual-context tenant with no selection gets
// ErrContextSelectionRequired.
func (g *AccessGuard) ScopeFor(ctx context.Context, sess *domain.Session) (domain.OwnerScope, error) {
	snap, err := g.contexts.snapshot(ctx, sess)
	if err != nil {
		return domain.OwnerScope{}, err
	}

	sum := ResolveContext(sess, snap.asClient, snap.asVendor)
	if sum.SelectionRequired {
		return domain.OwnerScope{}, domain.ErrContextSelectionRequired
	}
	if sum.Active.IsZero() {
		return domain.OwnerScope{}, fmt.Errorf("%w: you have no client or vendor relationships yet", domain.ErrAuthorizationDenied)
	}

	return domain.NewOwnerScope(sum.Active.Role, snap.tenant.Facets.For(sum.Active.Role))
}

// ActorFor builds the timeline actor for a session acting in scope.
func ActorFor(sess *domain.Session, scope domain.OwnerScope) domain.Actor {
	return domain.Actor{
		UserID:   sess.UserID,
		TenantID: sess.TenantID,
		Role:     scope.Role(),
	}
}
