package ports

import (
	"context"

	"github.com/opsportal/portal/internal/core/domain"
)

// ContextService resolves and switches the facet role a session acts in.
type ContextService interface {
	Resolve(ctx context.Context, s *domain.Session) (domain.ContextSummary, error)
	Switch(ctx context.Context, s *domain.Session, role domain.FacetRole, counterparty domain.FacetID) (*domain.Session, error)
}

// AccessGuard turns a session into the owner scope for its active context.
type AccessGuard interface {
	ScopeFor(ctx context.Context, s *domain.Session) (domain.OwnerScope, error)
}
