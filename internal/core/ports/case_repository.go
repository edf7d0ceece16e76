package ports

import (
	"context"
	"time"

	"github.com/opsportal/portal/internal/core/domain"
)

// ListCasesFilter carries the optional filters of a scoped case listing.
type ListCasesFilter struct {
	Status string
	Page   int // 1-based
	Limit  int
}

// CaseTransition is the atomic write applied for one status change.
type CaseTransition struct {
	CaseID  string
	From    domain.CaseStatus
	To      domain.CaseStatus
	At      time.Time
	Stamp   *domain.Stamp
	Entries []domain.TimelineEntry
}

// CaseRepository persists cases. Every read and write takes an owner scope and
// filters by it in the same query; a case outside the scope is reported as
// ErrCaseNotFound, exactly like a case that does not exist.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	FindScoped(ctx context.Context, scope domain.OwnerScope, caseID string) (*domain.Case, error)
	FindByIdempotencyKey(ctx context.Context, scope domain.OwnerScope, key string) (*domain.Case, error)
	ListScoped(ctx context.Context, scope domain.OwnerScope, filter ListCasesFilter) ([]*domain.Case, int64, error)
	// ApplyTransition sets the new status, the optional stamp and appends the
	// entries, conditioned on the stored status still being t.From.
	ApplyTransition(ctx context.Context, scope domain.OwnerScope, t CaseTransition) error
	// AppendTimeline appends entries. Timeline entries are never updated or removed.
	AppendTimeline(ctx context.Context, scope domain.OwnerScope, caseID string, entries ...domain.TimelineEntry) error
}
