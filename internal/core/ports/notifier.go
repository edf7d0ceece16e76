package ports

import "context"

// Notification types emitted by the core.
const (
	NotifyCaseCreated       = "case.created"
	NotifyCaseTransitioned  = "case.transitioned"
	NotifyCaseNote          = "case.note"
	NotifyInvitationCreated = "invitation.created"
	NotifyInvitationAccept  = "invitation.accepted"
)

// Notification is a fire-and-forget message for a user or a tenant.
type Notification struct {
	RecipientTenantID string
	RecipientUserID   string
	Type              string
	Payload           map[string]string
}

// Notifier accepts notifications without blocking. Delivery failures are
// logged by the implementation and never returned to the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
