package ports

import (
	"context"
	"time"

	"github.com/opsportal/portal/internal/core/domain"
)

// ProviderSession is a token pair issued by the identity provider.
type ProviderSession struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Tokens converts the provider session into the stored token pair.
func (p *ProviderSession) Tokens() domain.ProviderTokens {
	return domain.ProviderTokens{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt,
	}
}

// ProviderUser is the provider's view of a user.
type ProviderUser struct {
	ID     string
	Email  string
	Claims domain.Claims
}

// ProviderPrincipal is the verified content of an access token.
type ProviderPrincipal struct {
	Subject   string
	Email     string
	Claims    domain.Claims
	ExpiresAt time.Time
}

// IdentityProvider wraps the external authentication service.
type IdentityProvider interface {
	// SignIn verifies a password. Bad credentials yield ErrAuthenticationFailure.
	SignIn(ctx context.Context, email, password string) (*ProviderUser, *ProviderSession, error)
	// AdminSetClaims writes claims into the user's token metadata.
	AdminSetClaims(ctx context.Context, providerUserID string, claims domain.Claims) (*ProviderUser, error)
	// RefreshSession exchanges a refresh token for a new pair.
	RefreshSession(ctx context.Context, refreshToken string) (*ProviderSession, error)
	// VerifyToken validates an access token. Invalid tokens yield ErrUnauthenticated.
	VerifyToken(ctx context.Context, accessToken string) (*ProviderPrincipal, error)
	// SignUp registers a new provider account. An email already registered
	// yields ErrUserExists.
	SignUp(ctx context.Context, email, password string) (*ProviderUser, error)
	SendPasswordReset(ctx context.Context, email, redirectURL string) error
	ExchangeOAuthCode(ctx context.Context, code, verifier string) (*ProviderUser, *ProviderSession, error)
}
