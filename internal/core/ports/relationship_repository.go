package ports

import (
	"context"
	"time"

	"github.com/opsportal/portal/internal/core/domain"
)

// RelationshipRepository persists the client/vendor relationship graph. Every
// read is filtered by a facet or tenant key; there is no unfiltered listing.
type RelationshipRepository interface {
	// ListByClientFacet returns edges where facet is the client side.
	ListByClientFacet(ctx context.Context, facet domain.FacetID) ([]domain.Relationship, error)
	// ListByVendorFacet returns edges where facet is the vendor side.
	ListByVendorFacet(ctx context.Context, facet domain.FacetID) ([]domain.Relationship, error)
	// FindActivePair returns the active edge for the pair or ErrRelationshipNotFound.
	FindActivePair(ctx context.Context, client, vendor domain.FacetID) (*domain.Relationship, error)
	// FindForTenant returns the edge only if one of the tenant's facets is on it.
	FindForTenant(ctx context.Context, id string, facets domain.Facets) (*domain.Relationship, error)
	Create(ctx context.Context, rel *domain.Relationship) error
	// UpdateStatus moves the edge from one status to another. It fails with
	// ErrConcurrentUpdate when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to domain.RelationshipStatus, at time.Time) error
}
