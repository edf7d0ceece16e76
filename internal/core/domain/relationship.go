package domain

import "time"

// RelationshipStatus is the lifecycle state of a client/vendor edge.
type RelationshipStatus string

const (
	RelationshipPending    RelationshipStatus = "pending"
	RelationshipActive     RelationshipStatus = "active"
	RelationshipSuspended  RelationshipStatus = "suspended"
	RelationshipTerminated RelationshipStatus = "terminated"
)

var relationshipTransitions = map[RelationshipStatus][]RelationshipStatus{
	RelationshipPending:   {RelationshipActive, RelationshipTerminated},
	RelationshipActive:    {RelationshipSuspended, RelationshipTerminated},
	RelationshipSuspended: {RelationshipActive, RelationshipTerminated},
}

// CanTransitionTo reports whether a relationship may move from s to next.
func (s RelationshipStatus) CanTransitionTo(next RelationshipStatus) bool {
	for _, allowed := range relationshipTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reachable reports whether a counterparty on an edge in this status counts
// toward the tenant's available contexts.
func (s RelationshipStatus) Reachable() bool {
	return s == RelationshipActive || s == RelationshipSuspended
}

// Relationship is a directed edge from a client facet to a vendor facet.
// Terminated relationships are kept for audit.
type Relationship struct {
	ID            string             `json:"id"`
	ClientFacetID FacetID            `json:"client_facet_id"`
	VendorFacetID FacetID            `json:"vendor_facet_id"`
	Status        RelationshipStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Counterparty returns the facet on the other side from the given role.
func (r Relationship) Counterparty(role FacetRole) FacetID {
	if role == FacetClient {
		return r.VendorFacetID
	}
	return r.ClientFacetID
}
