package domain

import "time"

// CaseStatus represents the lifecycle state of a case.
type CaseStatus string

const (
	CaseOpen       CaseStatus = "open"
	CaseInProgress CaseStatus = "in_progress"
	CaseResolved   CaseStatus = "resolved"
	CaseClosed     CaseStatus = "closed"
	CaseCancelled  CaseStatus = "cancelled"
	// CaseSubmitted is an intake state. Cases in it are readable but have no
	// outbound transitions here.
	CaseSubmitted CaseStatus = "submitted"
)

// LifecycleStatuses are the statuses governed by the transition table.
var LifecycleStatuses = []CaseStatus{CaseOpen, CaseInProgress, CaseResolved, CaseClosed, CaseCancelled}

// caseTransitions is strictly forward: no skipping, no reversal.
var caseTransitions = map[CaseStatus][]CaseStatus{
	CaseOpen:       {CaseInProgress},
	CaseInProgress: {CaseResolved},
	CaseResolved:   {CaseClosed},
}

// Valid reports whether s is a known status.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseOpen, CaseInProgress, CaseResolved, CaseClosed, CaseCancelled, CaseSubmitted:
		return true
	}
	return false
}

// CanTransitionTo reports whether a transition from s to next is in the table.
func (s CaseStatus) CanTransitionTo(next CaseStatus) bool {
	for _, allowed := range caseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outbound transitions.
func (s CaseStatus) Terminal() bool {
	return len(caseTransitions[s]) == 0
}

// ValidateTransition returns an *InvalidTransitionError naming the pair when
// from -> to is not allowed.
func ValidateTransition(from, to CaseStatus) error {
	if !from.CanTransitionTo(to) {
		return &InvalidTransitionError{From: string(from), To: string(to)}
	}
	return nil
}

// Stamp records when and by whom a milestone status was reached.
type Stamp struct {
	At          time.Time `json:"at" bson:"at"`
	ActorUserID string    `json:"actor_user_id" bson:"actor_user_id"`
}

// Case is a unit of work between one client facet and one vendor facet. The
// facet pair is fixed at creation.
type Case struct {
	ID             string          `json:"id" bson:"_id"`
	RelationshipID string          `json:"relationship_id" bson:"relationship_id"`
	ClientFacetID  FacetID         `json:"client_facet_id" bson:"client_facet_id"`
	VendorFacetID  FacetID         `json:"vendor_facet_id" bson:"vendor_facet_id"`
	Subject        string          `json:"subject" bson:"subject"`
	Description    string          `json:"description,omitempty" bson:"description,omitempty"`
	Status         CaseStatus      `json:"status" bson:"status"`
	OpenedBy       string          `json:"opened_by" bson:"opened_by"`
	Resolved       *Stamp          `json:"resolved,omitempty" bson:"resolved,omitempty"`
	Closed         *Stamp          `json:"closed,omitempty" bson:"closed,omitempty"`
	Timeline       []TimelineEntry `json:"timeline" bson:"timeline"`
	IdempotencyKey string          `json:"-" bson:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" bson:"updated_at"`
}
