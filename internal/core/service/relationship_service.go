package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
	"github.com/opsportal/portal/internal/ids"
)

// RelationshipService manages invitations and the status of existing edges.
type RelationshipService struct {
	relationships ports.RelationshipRepository
	invitations   ports.InvitationRepository
	tenants       ports.TenantRepository
	users         ports.UserRepository
	idp           ports.IdentityProvider
	sessions      ports.SessionService
	notifier      ports.Notifier
	inviteTTL     time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

func NewRelationshipService(
	relationships ports.RelationshipRepository,
	invitations ports.InvitationRepository,
	tenants ports.TenantRepository,
	users ports.UserRepository,
	idp ports.IdentityProvider,
	sessions ports.SessionService,
	notifier ports.Notifier,
	inviteTTL time.Duration,
	logger zerolog.Logger,
) *RelationshipService {
	if inviteTTL <= 0 {
		inviteTTL = 7 * 24 * time.Hour
	}
	return &RelationshipService{
		relationships: relationships,
		invitations:   invitations,
		tenants:       tenants,
		users:         users,
		idp:           idp,
		sessions:      sessions,
		notifier:      notifier,
		inviteTTL:     inviteTTL,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// HashInviteToken returns the stored form of an invitation token.
func HashInviteToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func requireManager(sess *domain.Session) error {
	if sess == nil {
		return domain.ErrUnauthenticated
	}
	if sess.UserRole != domain.RoleOwner && sess.UserRole != domain.RoleAdmin {
		return fmt.Errorf("%w: only owners and admins manage relationships", domain.ErrAuthorizationDenied)
	}
	return nil
}

// Invite issues an invitation in which the session's tenant takes InviterRole.
// The raw token is returned once and only its hash is stored.
func (s *RelationshipService) Invite(ctx context.Context, in ports.InviteInput) (*ports.InviteResult, error) {
	if err := requireManager(in.Session); err != nil {
		return nil, err
	}
	if !in.InviterRole.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, in.InviterRole)
	}
	email := normalizeEmail(in.InviteeEmail)
	if email == "" {
		return nil, fmt.Errorf("%w: invitee email is required", domain.ErrInvalidInput)
	}

	inviter, err := s.tenants.Find(ctx, in.Session.TenantID)
	if err != nil {
		return nil, fmt.Errorf("invite: %w", err)
	}

	var inviteeTenant *domain.Tenant
	if in.InviteeFacetID != "" {
		if in.InviteeFacetID.Role() != opposite(in.InviterRole) {
			return nil, fmt.Errorf("%w: invitee facet must be a %s facet", domain.ErrInvalidInput, opposite(in.InviterRole))
		}
		inviteeTenant, err = s.tenants.FindByFacet(ctx, in.InviteeFacetID)
		if err != nil {
			return nil, err
		}
		if inviteeTenant.ID == inviter.ID {
			return nil, domain.ErrSelfRelationship
		}
		client, vendor := orient(in.InviterRole, inviter.Facets.For(in.InviterRole), in.InviteeFacetID)
		if _, err := s.relationships.FindActivePair(ctx, client, vendor); err == nil {
			return nil, domain.ErrRelationshipExists
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("invite: %w", err)
		}
	}

	token, err := ids.Opaque()
	if err != nil {
		return nil, fmt.Errorf("invite token: %w", err)
	}

	now := s.now()
	inv := &domain.Invitation{
		ID:              ids.New(),
		TokenHash:       HashInviteToken(token),
		InviterTenantID: inviter.ID,
		InviterUserID:   in.Session.UserID,
		InviterRole:     in.InviterRole,
		InviteeEmail:    email,
		InviteeFacetID:  in.InviteeFacetID,
		Status:          domain.InvitationPending,
		ExpiresAt:       now.Add(s.inviteTTL),
		CreatedAt:       now,
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("invite: %w", err)
	}

	s.logger.Info().
		Str("invitation_id", inv.ID).
		Str("tenant_id", inviter.ID).
		Str("inviter_role", string(in.InviterRole)).
		Msg("invitation created")

	n := ports.Notification{
		Type:    ports.NotifyInvitationCreated,
		Payload: map[string]string{"invitation_id": inv.ID, "invitee_email": email, "inviter": inviter.Name},
	}
	if inviteeTenant != nil {
		n.RecipientTenantID = inviteeTenant.ID
	}
	s.notifier.Notify(ctx, n)

	return &ports.InviteResult{Invitation: inv, Token: token}, nil
}

// orient places the inviter's facet and the invitee's facet on their sides.
func orient(inviterRole domain.FacetRole, inviterFacet, inviteeFacet domain.FacetID) (client, vendor domain.FacetID) {
	if inviterRole == domain.FacetClient {
		return inviterFacet, inviteeFacet
	}
	return inviteeFacet, inviterFacet
}

// Accept consumes an invitation. An invitation naming an existing facet is
// accepted by a signed-in owner or admin of that tenant; any other invitation creates
// a new tenant with the invitee as its owner and signs them in.
func (s *RelationshipService) Accept(ctx context.Context, in ports.AcceptInviteInput) (*ports.AcceptInviteResult, error) {
	if in.Token == "" {
		return nil, domain.ErrInvitationNotFound
	}
	inv, err := s.invitations.FindByTokenHash(ctx, HashInviteToken(in.Token))
	if err != nil {
		return nil, err
	}

	now := s.now()
	if inv.Status != domain.InvitationPending {
		return nil, domain.ErrInvitationNotPending
	}
	if inv.ExpiredAt(now) {
		if err := s.invitations.MarkExpired(ctx, inv.ID, now); err != nil {
			s.logger.Warn().Err(err).Str("invitation_id", inv.ID).Msg("failed to mark invitation expired")
		}
		return nil, domain.ErrInvitationExpired
	}

	inviter, err := s.tenants.Find(ctx, inv.InviterTenantID)
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}

	if inv.InviteeFacetID != "" {
		return s.acceptAsExisting(ctx, in, inv, inviter, now)
	}
	return s.acceptAsNew(ctx, in, inv, inviter, now)
}

func (s *RelationshipService) acceptAsExisting(ctx context.Context, in ports.AcceptInviteInput, inv *domain.Invitation, inviter *domain.Tenant, now time.Time) (*ports.AcceptInviteResult, error) {
	if in.Session == nil {
		return nil, domain.ErrUnauthenticated
	}
	invitee, err := s.tenants.Find(ctx, in.Session.TenantID)
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}
	if !invitee.Facets.Owns(inv.InviteeFacetID) {
		return nil, domain.ErrInvitationNotFound
	}
	if err := requireManager(in.Session); err != nil {
		return nil, err
	}
	if invitee.ID == inviter.ID {
		return nil, domain.ErrSelfRelationship
	}

	rel := newRelationship(inv, inviter, inv.InviteeFacetID, now)
	if err := s.invitations.Accept(ctx, ports.AcceptInvitation{
		InvitationID: inv.ID,
		AcceptedAt:   now,
		Relationship: rel,
	}); err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}

	s.accepted(ctx, inv, invitee.ID, rel)
	return &ports.AcceptInviteResult{Relationship: rel, Session: in.Session}, nil
}

func (s *RelationshipService) acceptAsNew(ctx context.Context, in ports.AcceptInviteInput, inv *domain.Invitation, inviter *domain.Tenant, now time.Time) (*ports.AcceptInviteResult, error) {
	tenantName := strings.TrimSpace(in.TenantName)
	if tenantName == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: tenant name and password are required", domain.ErrInvalidInput)
	}
	if _, err := s.users.FindByEmail(ctx, inv.InviteeEmail); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}

	// An account the provider already knows is linked by email on first login.
	var subject string
	pUser, err := s.idp.SignUp(ctx, inv.InviteeEmail, in.Password)
	switch {
	case err == nil:
		subject = pUser.ID
	case errors.Is(err, domain.ErrUserExists):
	default:
		return nil, fmt.Errorf("accept invitation: provider sign-up: %w", err)
	}

	tenant := &domain.Tenant{
		ID:        ids.New(),
		Name:      tenantName,
		Facets:    domain.NewFacets(),
		CreatedAt: now,
	}
	user := &domain.User{
		ID:              ids.New(),
		TenantID:        tenant.ID,
		Email:           inv.InviteeEmail,
		Name:            strings.TrimSpace(in.UserName),
		Role:            domain.RoleOwner,
		ProviderSubject: subject,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	rel := newRelationship(inv, inviter, tenant.Facets.For(inv.InviteeRole()), now)

	if err := s.invitations.Accept(ctx, ports.AcceptInvitation{
		InvitationID: inv.ID,
		AcceptedAt:   now,
		NewTenant:    tenant,
		User:         user,
		CreateUser:   true,
		Relationship: rel,
	}); err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}

	s.accepted(ctx, inv, tenant.ID, rel)

	sess, err := s.sessions.Login(ctx, ports.LoginInput{Email: inv.InviteeEmail, Password: in.Password, Origin: in.Origin})
	if err != nil {
		// The tenant exists now; the invitee can still sign in later.
		s.logger.Warn().Err(err).Str("tenant_id", tenant.ID).Msg("sign-in after invitation acceptance failed")
		return &ports.AcceptInviteResult{Relationship: rel}, nil
	}
	return &ports.AcceptInviteResult{Relationship: rel, Session: sess}, nil
}

func newRelationship(inv *domain.Invitation, inviter *domain.Tenant, inviteeFacet domain.FacetID, now time.Time) *domain.Relationship {
	client, vendor := orient(inv.InviterRole, inviter.Facets.For(inv.InviterRole), inviteeFacet)
	return &domain.Relationship{
		ID:            ids.New(),
		ClientFacetID: client,
		VendorFacetID: vendor,
		Status:        domain.RelationshipActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *RelationshipService) accepted(ctx context.Context, inv *domain.Invitation, inviteeTenantID string, rel *domain.Relationship) {
	s.logger.Info().
		Str("invitation_id", inv.ID).
		Str("relationship_id", rel.ID).
		Str("invitee_tenant_id", inviteeTenantID).
		Msg("invitation accepted")

	s.notifier.Notify(ctx, ports.Notification{
		RecipientTenantID: inv.InviterTenantID,
		RecipientUserID:   inv.InviterUserID,
		Type:              ports.NotifyInvitationAccept,
		Payload:           map[string]string{"invitation_id": inv.ID, "relationship_id": rel.ID},
	})
}

// Revoke withdraws a pending invitation issued by the session's tenant.
func (s *RelationshipService) Revoke(ctx context.Context, sess *domain.Session, invitationID string) error {
	if err := requireManager(sess); err != nil {
		return err
	}
	if err := s.invitations.Revoke(ctx, invitationID, sess.TenantID, s.now()); err != nil {
		return err
	}
	s.logger.Info().Str("invitation_id", invitationID).Str("tenant_id", sess.TenantID).Msg("invitation revoked")
	return nil
}

// ChangeStatus moves a relationship the session's tenant is part of to a new
// status. Suspending or terminating an edge removes it from context
// resolution on the next request.
func (s *RelationshipService) ChangeStatus(ctx context.Context, sess *domain.Session, relationshipID string, to domain.RelationshipStatus) (*domain.Relationship, error) {
	if err := requireManager(sess); err != nil {
		return nil, err
	}
	tenant, err := s.tenants.Find(ctx, sess.TenantID)
	if err != nil {
		return nil, fmt.Errorf("change relationship status: %w", err)
	}
	rel, err := s.relationships.FindForTenant(ctx, relationshipID, tenant.Facets)
	if err != nil {
		return nil, err
	}
	if !rel.Status.CanTransitionTo(to) {
		return nil, &domain.InvalidTransitionError{From: string(rel.Status), To: string(to)}
	}

	now := s.now()
	if err := s.relationships.UpdateStatus(ctx, rel.ID, rel.Status, to, now); err != nil {
		return nil, fmt.Errorf("change relationship status: %w", err)
	}

	s.logger.Info().
		Str("relationship_id", rel.ID).
		Str("from", string(rel.Status)).
		Str("to", string(to)).
		Str("tenant_id", tenant.ID).
		Msg("relationship status changed")

	rel.Status = to
	rel.UpdatedAt = now
	return rel, nil
}
