package domain

import "time"

// AuthMethod records which credential path created a session.
type AuthMethod string

const (
	AuthProvider AuthMethod = "provider"
	// AuthLegacy sessions were established through the deprecated local
	// credential store and hold no provider refresh token.
	AuthLegacy AuthMethod = "legacy"
)

// ActiveContext is the facet role selected for a session, optionally narrowed
// to a single counterparty. The zero value means nothing was selected.
type ActiveContext struct {
	Role                FacetRole `json:"role,omitempty"`
	CounterpartyFacetID FacetID   `json:"counterparty_facet_id,omitempty"`
}

// IsZero reports whether no context has been selected.
func (a ActiveContext) IsZero() bool {
	return a.Role == ""
}

// ProviderTokens is the identity provider's current token pair.
type ProviderTokens struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"token_expires_at"`
}

// Session is the server-side session record keyed by an opaque id.
type Session struct {
	ID         string         `json:"-"`
	UserID     string         `json:"user_id"`
	TenantID   string         `json:"tenant_id"`
	UserRole   string         `json:"user_role"`
	Active     ActiveContext  `json:"active_context"`
	Tokens     ProviderTokens `json:"tokens"`
	AuthMethod AuthMethod     `json:"auth_method"`
	ExpiresAt  time.Time      `json:"expires_at"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// CanRefresh reports whether the session holds a provider refresh token.
func (s *Session) CanRefresh() bool {
	return s.Tokens.RefreshToken != ""
}

// Claims returns the authorization claims for this session's principal.
func (s *Session) Claims() Claims {
	return Claims{TenantID: s.TenantID, UserID: s.UserID, UserRole: s.UserRole}
}

// Claims are the authorization attributes written into provider tokens and
// evaluated by the datastore's row-level security policies.
type Claims struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	UserRole string `json:"user_role,omitempty"`
}

// Complete reports whether both identity claims are present.
func (c Claims) Complete() bool {
	return c.TenantID != "" && c.UserID != ""
}

// RealtimeToken is the only token material exposable to a client.
type RealtimeToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}
