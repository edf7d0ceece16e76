package ports

import (
	"context"

	"github.com/opsportal/portal/internal/core/domain"
)

// LoginInput carries password login data. Origin is the caller's network
// address and keys per-origin rate limits.
type LoginInput struct {
	Email    string
	Password string
	Origin   string
}

// OAuthCallbackInput carries an authorization code exchange.
type OAuthCallbackInput struct {
	Code     string
	Verifier string
	Origin   string
}

// SessionService keeps server-side sessions in step with the identity provider.
type SessionService interface {
	Login(ctx context.Context, in LoginInput) (*domain.Session, error)
	LoginWithOAuth(ctx context.Context, in OAuthCallbackInput) (*domain.Session, error)
	Logout(ctx context.Context, sessionID string) error
	RequestPasswordReset(ctx context.Context, email, redirectURL, origin string) error
	// Authenticate loads the session and refreshes its provider tokens when
	// they are close to expiry.
	Authenticate(ctx context.Context, sessionID string) (*domain.Session, error)
	EnsureFresh(ctx context.Context, s *domain.Session) (*domain.Session, error)
	IssueRealtimeToken(ctx context.Context, s *domain.Session, origin string) (*domain.RealtimeToken, error)
}
