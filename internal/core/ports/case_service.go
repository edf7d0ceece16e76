package ports

import (
	"context"
	"io"
	"time"

	"github.com/opsportal/portal/internal/core/domain"
)

// CreateCaseInput opens a case against a counterparty facet.
type CreateCaseInput struct {
	Scope          domain.OwnerScope
	Actor          domain.Actor
	Counterparty   domain.FacetID
	Subject        string
	Description    string
	// IdempotencyKey makes retried creates return the case created first.
	IdempotencyKey string
}

// CreateCaseResult is the created case. AlreadyExisted is set on an
// idempotent replay.
type CreateCaseResult struct {
	Case           *domain.Case
	AlreadyExisted bool
}

// TransitionInput requests a status change.
type TransitionInput struct {
	Scope  domain.OwnerScope
	Actor  domain.Actor
	CaseID string
	To     domain.CaseStatus
	Note   string // optional
}

// TransitionResult is the updated case and the timeline entries written.
type TransitionResult struct {
	Case   *domain.Case
	Events []domain.TimelineEntry
}

// AddNoteInput appends a human note.
type AddNoteInput struct {
	Scope  domain.OwnerScope
	Actor  domain.Actor
	CaseID string
	Body   string
}

// AttachEvidenceInput uploads an evidence file.
type AttachEvidenceInput struct {
	Scope    domain.OwnerScope
	Actor    domain.Actor
	CaseID   string
	Filename string
	Content  io.Reader
}

// EvidenceLink is a signed download link.
type EvidenceLink struct {
	Path      string
	URL       string
	ExpiresAt time.Time
}

// ListCasesInput carries a scoped listing request.
type ListCasesInput struct {
	Scope  domain.OwnerScope
	Filter ListCasesFilter
}

// ListCasesResult is a page of cases.
type ListCasesResult struct {
	Items      []*domain.Case
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// CaseService is the case lifecycle engine.
type CaseService interface {
	Create(ctx context.Context, in CreateCaseInput) (*CreateCaseResult, error)
	Get(ctx context.Context, scope domain.OwnerScope, caseID string) (*domain.Case, error)
	List(ctx context.Context, in ListCasesInput) (*ListCasesResult, error)
	Transition(ctx context.Context, in TransitionInput) (*TransitionResult, error)
	AddNote(ctx context.Context, in AddNoteInput) (*domain.TimelineEntry, error)
	AttachEvidence(ctx context.Context, in AttachEvidenceInput) (*EvidenceLink, error)
	// EvidenceURL signs a fresh link for evidence already attached to the case.
	EvidenceURL(ctx context.Context, scope domain.OwnerScope, caseID, path string) (*EvidenceLink, error)
}
