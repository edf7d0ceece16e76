package domain

import "time"

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

// Terminal reports whether the status can no longer change.
func (s InvitationStatus) Terminal() bool {
	return s != InvitationPending
}

// Invitation asks an outside party to join as the counterparty of the inviting
// tenant. InviterRole is the side the inviting tenant takes; the invitee takes
// the opposite side.
type Invitation struct {
	ID              string           `json:"id"`
	TokenHash       string           `json:"-"`
	InviterTenantID string           `json:"inviter_tenant_id"`
	InviterUserID   string           `json:"inviter_user_id"`
	InviterRole     FacetRole        `json:"inviter_role"`
	InviteeEmail    string           `json:"invitee_email"`
	InviteeFacetID  FacetID          `json:"invitee_facet_id,omitempty"`
	Status          InvitationStatus `json:"status"`
	ExpiresAt       time.Time        `json:"expires_at"`
	AcceptedAt      *time.Time       `json:"accepted_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// ExpiredAt reports whether the invitation's window has closed at now.
func (i *Invitation) ExpiredAt(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// InviteeRole is the side the accepting tenant will take.
func (i *Invitation) InviteeRole() FacetRole {
	if i.InviterRole == FacetClient {
		return FacetVendor
	}
	return FacetClient
}
