package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

// ResolveContext computes the roles available to the session's tenant from a
// snapshot of its relationships. asClient are the edges where the tenant's
// client facet is the client side, asVendor those where its vendor facet is
// the vendor side. It performs no I/O.
func ResolveContext(s *domain.Session, asClient, asVendor []domain.Relationship) domain.ContextSummary {
	clientCPs := reachableCounterparties(asClient, domain.FacetClient)
	vendorCPs := reachableCounterparties(asVendor, domain.FacetVendor)

	sum := domain.ContextSummary{
		HasClientContext:     len(clientCPs) > 0,
		HasVendorContext:     len(vendorCPs) > 0,
		ClientCounterparties: len(clientCPs),
		VendorCounterparties: len(vendorCPs),
	}
	sum.HasDualContext = sum.HasClientContext && sum.HasVendorContext

	active := s.Active
	if !active.IsZero() && !selectable(active, clientCPs, vendorCPs) {
		// The stored selection points at a role or counterparty that is gone.
		active = domain.ActiveContext{}
	}

	switch {
	case !active.IsZero():
		sum.Active = active
	case sum.HasDualContext:
		sum.SelectionRequired = true
	case sum.HasClientContext:
		sum.Active = domain.ActiveContext{Role: domain.FacetClient}
	case sum.HasVendorContext:
		sum.Active = domain.ActiveContext{Role: domain.FacetVendor}
	}
	return sum
}

// reachableCounterparties returns the distinct counterparties on edges that
// still count toward a context.
func reachableCounterparties(rels []domain.Relationship, role domain.FacetRole) map[domain.FacetID]struct{} {
	out := make(map[domain.FacetID]struct{}, len(rels))
	for _, r := range rels {
		if !r.Status.Reachable() {
			continue
		}
		out[r.Counterparty(role)] = struct{}{}
	}
	return out
}

func selectable(a domain.ActiveContext, clientCPs, vendorCPs map[domain.FacetID]struct{}) bool {
	var cps map[domain.FacetID]struct{}
	switch a.Role {
	case domain.FacetClient:
		cps = clientCPs
	case domain.FacetVendor:
		cps = vendorCPs
	default:
		return false
	}
	if len(cps) == 0 {
		return false
	}
	if a.CounterpartyFacetID == "" {
		return true
	}
	_, ok := cps[a.CounterpartyFacetID]
	return ok
}

// ContextService resolves and switches session contexts against the live
// relationship graph. It keeps no cache of relationship membership.
type ContextService struct {
	relationships ports.RelationshipRepository
	tenants       ports.TenantRepository
	sessions      ports.SessionRepository
	log           zerolog.Logger
	now           func() time.Time
}

// NewContextService returns a ContextService.
func NewContextService(
	relationships ports.RelationshipRepository,
	tenants ports.TenantRepository,
	sessions ports.SessionRepository,
	log zerolog.Logger,
) *ContextService {
	return &ContextService{
		relationships: relationships,
		tenants:       tenants,
		sessions:      sessions,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type graphSnapshot struct {
	tenant   *domain.Tenant
	asClient []domain.Relationship
	asVendor []domain.Relationship
}

func (s *ContextService) snapshot(ctx context.Context, sess *domain.Session) (*graphSnapshot, error) {
	tenant, err := s.tenants.Find(ctx, sess.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve context: %w", err)
	}
	asClient, err := s.relationships.ListByClientFacet(ctx, tenant.Facets.Client)
	if err != nil {
		return nil, fmt.Errorf("resolve context: client relationships: %w", err)
	}
	asVendor, err := s.relationships.ListByVendorFacet(ctx, tenant.Facets.Vendor)
	if err != nil {
		return nil, fmt.Errorf("resolve context: vendor relationships: %w", err)
	}
	return &graphSnapshot{tenant: tenant, asClient: asClient, asVendor: asVendor}, nil
}

// Resolve returns the context summary for the session.
func (s *ContextService) Resolve(ctx context.Context, sess *domain.Session) (domain.ContextSummary, error) {
	snap, err := s.snapshot(ctx, sess)
	if err != nil {
		return domain.ContextSummary{}, err
	}
	return ResolveContext(sess, snap.asClient, snap.asVendor), nil
}

// Switch validates that the tenant holds role (and, if given, a relationship
// with counterparty in that role) before persisting it as the active context.
func (s *ContextService) Switch(ctx context.Context, sess *domain.Session, role domain.FacetRole, counterparty domain.FacetID) (*domain.Session, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrAuthorizationDenied, role)
	}

	snap, err := s.snapshot(ctx, sess)
	if err != nil {
		return nil, err
	}

	rels := snap.asClient
	if role == domain.FacetVendor {
		rels = snap.asVendor
	}
	cps := reachableCounterparties(rels, role)
	if len(cps) == 0 {
		return nil, fmt.Errorf("%w: you have no %s relationships yet", domain.ErrAuthorizationDenied, role)
	}
	if counterparty != "" {
		if _, ok := cps[counterparty]; !ok {
			return nil, fmt.Errorf("%w: no %s relationship with that counterparty", domain.ErrAuthorizationDenied, role)
		}
	}

	active := domain.ActiveContext{Role: role, CounterpartyFacetID: counterparty}
	now := s.now()
	if err := s.sessions.UpdateActiveContext(ctx, sess.ID, active, now); err != nil {
		return nil, fmt.Errorf("switch context: %w", err)
	}

	s.log.Info().
		Str("tenant_id", sess.TenantID).
		Str("user_id", sess.UserID).
		Str("role", string(role)).
		Msg("context switched")

	updated := *sess
	updated.Active = active
	updated.UpdatedAt = now
	return &updated, nil
}
