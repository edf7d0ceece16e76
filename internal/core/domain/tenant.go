package domain

import (
	"strings"
	"time"

	"github.com/opsportal/portal/internal/ids"
)

// FacetRole is the side of a relationship a tenant is acting on.
type FacetRole string

const (
	FacetClient FacetRole = "client"
	FacetVendor FacetRole = "vendor"
)

// Valid reports whether r is one of the two facet roles.
func (r FacetRole) Valid() bool {
	return r == FacetClient || r == FacetVendor
}

// FacetID addresses one side of a tenant. Client facet ids carry the "cf_"
// prefix and vendor facet ids "vf_", so a facet id alone tells which side it is.
type FacetID string

const (
	clientFacetPrefix = "cf_"
	vendorFacetPrefix = "vf_"
)

// Role reports the side encoded in the facet id, or "" if the id is malformed.
func (f FacetID) Role() FacetRole {
	switch {
	case strings.HasPrefix(string(f), clientFacetPrefix):
		return FacetClient
	case strings.HasPrefix(string(f), vendorFacetPrefix):
		return FacetVendor
	default:
		return ""
	}
}

// Facets is the pair of immutable facet identities of a tenant.
type Facets struct {
	Client FacetID `json:"client_facet_id"`
	Vendor FacetID `json:"vendor_facet_id"`
}

// NewFacets issues a fresh facet pair. It is called exactly once per tenant.
func NewFacets() Facets {
	return Facets{
		Client: FacetID(clientFacetPrefix + strings.ToLower(ids.Sortable())),
		Vendor: FacetID(vendorFacetPrefix + strings.ToLower(ids.Sortable())),
	}
}

// For returns the facet id for the given role.
func (f Facets) For(role FacetRole) FacetID {
	switch role {
	case FacetClient:
		return f.Client
	case FacetVendor:
		return f.Vendor
	default:
		return ""
	}
}

// Owns reports whether id is one of this tenant's facets.
func (f Facets) Owns(id FacetID) bool {
	return id != "" && (id == f.Client || id == f.Vendor)
}

// Tenant is an organization taking part in the portal.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Facets    Facets    `json:"facets"`
	CreatedAt time.Time `json:"created_at"`
}
