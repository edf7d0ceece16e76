package ports

import (
	"context"

	"github.com/opsportal/portal/internal/core/domain"
)

// InviteInput creates an invitation from the session's tenant.
type InviteInput struct {
	Session      *domain.Session
	InviterRole  domain.FacetRole
	InviteeEmail string
	// InviteeFacetID links an already registered tenant instead of creating one.
	InviteeFacetID domain.FacetID
}

// InviteResult carries the raw token, which is only available at creation.
type InviteResult struct {
	Invitation *domain.Invitation
	Token      string
}

// AcceptInviteInput accepts an invitation by token. Session is set when the
// invitation links an already registered tenant; otherwise a tenant and an
// owner user are created and Password becomes that user's provider credential.
type AcceptInviteInput struct {
	Token      string
	Session    *domain.Session
	TenantName string
	UserName   string
	Password   string
	Origin     string
}

// AcceptInviteResult is the created relationship and the new session.
type AcceptInviteResult struct {
	Relationship *domain.Relationship
	Session      *domain.Session
}

// RelationshipService manages invitations and relationship status.
type RelationshipService interface {
	Invite(ctx context.Context, in InviteInput) (*InviteResult, error)
	Accept(ctx context.Context, in AcceptInviteInput) (*AcceptInviteResult, error)
	Revoke(ctx context.Context, s *domain.Session, invitationID string) error
	ChangeStatus(ctx context.Context, s *domain.Session, relationshipID string, to domain.RelationshipStatus) (*domain.Relationship, error)
}
