package ports

import (
	"context"
	"time"

	"github.com/opsportal/portal/internal/core/domain"
)

// TenantRepository reads tenants. Facet ids are written once at creation and
// there is no method that changes them.
type TenantRepository interface {
	Find(ctx context.Context, id string) (*domain.Tenant, error)
	FindByFacet(ctx context.Context, facet domain.FacetID) (*domain.Tenant, error)
}

// UserRepository reads users and links them to provider subjects.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByProviderSubject(ctx context.Context, subject string) (*domain.User, error)
	LinkProviderSubject(ctx context.Context, userID, subject string) error
}

// AcceptInvitation carries everything created or linked when an invitation is
// accepted. NewTenant is nil when the invitee already has a tenant.
type AcceptInvitation struct {
	InvitationID string
	AcceptedAt   time.Time
	NewTenant    *domain.Tenant
	User         *domain.User
	// CreateUser is false when User already exists and is only linked.
	CreateUser   bool
	Relationship *domain.Relationship
}

// InvitationRepository persists invitations.
type InvitationRepository interface {
	Create(ctx context.Context, inv *domain.Invitation) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error)
	// Accept marks the invitation accepted and creates the tenant, user and
	// relationship in one transaction. It fails with ErrInvitationNotPending
	// if the invitation left the pending state concurrently.
	Accept(ctx context.Context, in AcceptInvitation) error
	// Revoke moves a pending invitation issued by inviterTenantID to revoked.
	Revoke(ctx context.Context, id, inviterTenantID string, at time.Time) error
	MarkExpired(ctx context.Context, id string, at time.Time) error
}
