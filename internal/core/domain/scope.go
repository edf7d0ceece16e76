package domain

import "fmt"

// OwnerScope is the facet a scoped read or write is filtered by. Its fields are
// unexported so the only way to obtain one is NewOwnerScope, and every scoped
// repository method takes one.
type OwnerScope struct {
	role    FacetRole
	facetID FacetID
}

// NewOwnerScope builds a scope for the given facet. The facet id must belong to
// the given role.
func NewOwnerScope(role FacetRole, facetID FacetID) (OwnerScope, error) {
	if !role.Valid() || facetID == "" || facetID.Role() != role {
		return OwnerScope{}, fmt.Errorf("%w: role %q facet %q", ErrScopeRequired, role, facetID)
	}
	return OwnerScope{role: role, facetID: facetID}, nil
}

func (s OwnerScope) Role() FacetRole  { return s.role }
func (s OwnerScope) FacetID() FacetID { return s.facetID }

// IsZero reports whether the scope was never built through NewOwnerScope.
func (s OwnerScope) IsZero() bool { return s.facetID == "" }

// Matches reports whether a record with the given client and vendor facets is
// visible in this scope. Only the side matching the scope's role is compared.
func (s OwnerScope) Matches(client, vendor FacetID) bool {
	if s.IsZero() {
		return false
	}
	if s.role == FacetClient {
		return client == s.facetID
	}
	return vendor == s.facetID
}

// Touches reports whether the scope's facet is either party of a directional
// record such as a payment. Only the single active facet is compared.
func (s OwnerScope) Touches(a, b FacetID) bool {
	return !s.IsZero() && (a == s.facetID || b == s.facetID)
}
