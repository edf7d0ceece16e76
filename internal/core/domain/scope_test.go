package domain

import (
	"errors"
	"testing"
)

func TestNewOwnerScope_RejectsMismatchedFacet(t *testing.T) {
	facets := NewFacets()

	if _, err := NewOwnerScope(FacetClient, facets.Vendor); !errors.Is(err, ErrScopeRequired) {
		t.Fatalf("expected ErrScopeRequired for vendor facet in client role, got %v", err)
	}
	if _, err := NewOwnerScope("", facets.Client); !errors.Is(err, ErrScopeRequired) {
		t.Fatalf("expected ErrScopeRequired for empty role, got %v", err)
	}
	if _, err := NewOwnerScope(FacetClient, ""); !errors.Is(err, ErrScopeRequired) {
		t.Fatalf("expected ErrScopeRequired for empty facet, got %v", err)
	}
}

func TestOwnerScope_MatchesOnlyActiveSide(t *testing.T) {
	a := NewFacets()
	b := NewFacets()

	scope, err := NewOwnerScope(FacetClient, a.Client)
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	if !scope.Matches(a.Client, b.Vendor) {
		t.Fatalf("expected client-side match")
	}
	// The same tenant's vendor facet on the vendor side must not match a client scope.
	if scope.Matches(b.Client, a.Vendor) {
		t.Fatalf("client scope matched on vendor side")
	}
}

func TestOwnerScope_ZeroValueMatchesNothing(t *testing.T) {
	var scope OwnerScope
	if !scope.IsZero() {
		t.Fatalf("expected zero scope")
	}
	if scope.Matches("", "") || scope.Touches("", "") {
		t.Fatalf("zero scope must not match")
	}
}

func TestFacets_RoleEncodedInID(t *testing.T) {
	f := NewFacets()
	if f.Client.Role() != FacetClient || f.Vendor.Role() != FacetVendor {
		t.Fatalf("unexpected roles: %s %s", f.Client.Role(), f.Vendor.Role())
	}
	if f.Client == f.Vendor {
		t.Fatalf("facet ids must differ")
	}
	if FacetID("x_123").Role() != "" {
		t.Fatalf("malformed id should have no role")
	}
}

func TestRelationshipStatus_Transitions(t *testing.T) {
	if !RelationshipActive.CanTransitionTo(RelationshipTerminated) {
		t.Fatalf("active -> terminated should be allowed")
	}
	if RelationshipTerminated.CanTransitionTo(RelationshipActive) {
		t.Fatalf("terminated is final")
	}
	if RelationshipPending.Reachable() || RelationshipTerminated.Reachable() {
		t.Fatalf("pending and terminated are not reachable")
	}
}
