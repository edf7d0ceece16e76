package domain

import "time"

// TimelineKind distinguishes machine-generated events from human input.
type TimelineKind string

const (
	TimelineSystem   TimelineKind = "system"
	TimelineNote     TimelineKind = "note"
	TimelineEvidence TimelineKind = "evidence"
)

// Actor identifies who caused a timeline entry.
type Actor struct {
	UserID   string    `json:"user_id" bson:"user_id"`
	TenantID string    `json:"tenant_id" bson:"tenant_id"`
	Role     FacetRole `json:"role" bson:"role"`
}

// TimelineEntry is an immutable record appended to a case. Entries are never
// updated or removed.
type TimelineEntry struct {
	ID           string       `json:"id" bson:"id"`
	Kind         TimelineKind `json:"kind" bson:"kind"`
	FromStatus   CaseStatus   `json:"from_status,omitempty" bson:"from_status,omitempty"`
	ToStatus     CaseStatus   `json:"to_status,omitempty" bson:"to_status,omitempty"`
	Body         string       `json:"body,omitempty" bson:"body,omitempty"`
	EvidencePath string       `json:"evidence_path,omitempty" bson:"evidence_path,omitempty"`
	Actor        Actor        `json:"actor" bson:"actor"`
	CreatedAt    time.Time    `json:"created_at" bson:"created_at"`
}
