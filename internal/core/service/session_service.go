package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
	"github.com/opsportal/portal/internal/ids"
)

// SessionConfig tunes session lifetime and the refresh window.
type SessionConfig struct {
	TTL              time.Duration
	RefreshThreshold time.Duration
	// MaxRefreshJitter bounds the random widening of the refresh window.
	MaxRefreshJitter time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.TTL <= 0 {
		c.TTL = 12 * time.Hour
	}
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = 300 * time.Second
	}
	if c.MaxRefreshJitter < 0 {
		c.MaxRefreshJitter = 0
	}
	return c
}

// Limiters groups the budgets enforced by the session service. A nil limiter
// allows everything.
type Limiters struct {
	PerSession ports.RateLimiter
	PerOrigin  ports.RateLimiter
}

// dummyHash is compared against when the email is unknown so both legacy
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

// SessionService keeps server-side sessions and the identity provider's
// tokens in step. Claims written to the provider are always confirmed in a
// refreshed token before a session is created.
type SessionService struct {
	idp      ports.IdentityProvider
	users    ports.UserRepository
	sessions ports.SessionRepository
	limits   Limiters
	cfg      SessionConfig
	log      zerolog.Logger
	now      func() time.Time
	jitter   func() time.Duration
}

// NewSessionService returns a SessionService.
func NewSessionService(
	idp ports.IdentityProvider,
	users ports.UserRepository,
	sessions ports.SessionRepository,
	limits Limiters,
	cfg SessionConfig,
	log zerolog.Logger,
) *SessionService {
	cfg = cfg.withDefaults()
	s := &SessionService{
		idp:      idp,
		users:    users,
		sessions: sessions,
		limits:   limits,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.jitter = func() time.Duration {
		if s.cfg.MaxRefreshJitter <= 0 {
			return 0
		}
		return time.Duration(rand.Int64N(int64(s.cfg.MaxRefreshJitter)))
	}
	return s
}

// NeedsRefresh reports whether a token expiring at expiresAt should be
// refreshed at now. The window is threshold widened by jitter.
func NeedsRefresh(expiresAt, now time.Time, threshold, jitter time.Duration) bool {
	return expiresAt.Sub(now) < threshold+jitter
}

// Login authenticates with the identity provider and falls back to the legacy
// credential store when the provider rejects the credentials.
func (s *SessionService) Login(ctx context.Context, in ports.LoginInput) (*domain.Session, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, domain.ErrAuthenticationFailure
	}
	if err := allow(ctx, s.limits.PerOrigin, "login:origin:"+in.Origin); err != nil {
		return nil, err
	}

	pUser, pSession, err := s.idp.SignIn(ctx, email, in.Password)
	if err == nil {
		return s.establish(ctx, pUser, pSession)
	}
	if !errors.Is(err, domain.ErrAuthenticationFailure) {
		s.log.Warn().Err(err).Msg("identity provider sign-in failed, trying legacy credentials")
	}

	return s.legacyLogin(ctx, email, in.Password)
}

// LoginWithOAuth completes an authorization code exchange.
func (s *SessionService) LoginWithOAuth(ctx context.Context, in ports.OAuthCallbackInput) (*domain.Session, error) {
	if in.Code == "" {
		return nil, domain.ErrAuthenticationFailure
	}
	if err := allow(ctx, s.limits.PerOrigin, "login:origin:"+in.Origin); err != nil {
		return nil, err
	}

	pUser, pSession, err := s.idp.ExchangeOAuthCode(ctx, in.Code, in.Verifier)
	if err != nil {
		s.log.Warn().Err(err).Msg("oauth code exchange failed")
		return nil, domain.ErrAuthenticationFailure
	}
	return s.establish(ctx, pUser, pSession)
}

// establish maps the provider user onto a local user, writes the claims,
// refreshes with the pre-update refresh token and confirms the claims are in
// the new access token. Only then is a session persisted.
func (s *SessionService) establish(ctx context.Context, pUser *ports.ProviderUser, pSession *ports.ProviderSession) (*domain.Session, error) {
	user, err := s.localUser(ctx, pUser)
	if err != nil {
		return nil, err
	}

	claims := domain.Claims{TenantID: user.TenantID, UserID: user.ID, UserRole: user.Role}
	logger := s.log.With().Str("user_id", user.ID).Str("tenant_id", user.TenantID).Logger()

	if _, err := s.idp.AdminSetClaims(ctx, pUser.ID, claims); err != nil {
		logger.Error().Err(err).Msg("writing provider claims failed")
		return nil, fmt.Errorf("%w: claims update", domain.ErrClaimsSyncFailure)
	}

	refreshed, err := s.idp.RefreshSession(ctx, pSession.RefreshToken)
	if err != nil {
		logger.Error().Err(err).Msg("refresh after claims update failed")
		return nil, fmt.Errorf("%w: refresh after claims update", domain.ErrClaimsSyncFailure)
	}

	principal, err := s.idp.VerifyToken(ctx, refreshed.AccessToken)
	if err != nil || principal.Claims.TenantID != claims.TenantID || principal.Claims.UserID != claims.UserID {
		logger.Error().Err(err).Msg("refreshed token does not carry the expected claims")
		return nil, fmt.Errorf("%w: claims not present in refreshed token", domain.ErrClaimsSyncFailure)
	}

	tokens := refreshed.Tokens()
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = pSession.RefreshToken
	}

	sess, err := s.start(ctx, user, domain.AuthProvider, tokens)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("auth_method", string(sess.AuthMethod)).Msg("session established")
	return sess, nil
}

// localUser finds the user for a provider subject, linking by email on the
// first provider login of a pre-existing account.
func (s *SessionService) localUser(ctx context.Context, pUser *ports.ProviderUser) (*domain.User, error) {
	user, err := s.users.FindByProviderSubject(ctx, pUser.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	user, err = s.users.FindByEmail(ctx, normalizeEmail(pUser.Email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.log.Warn().Str("subject", pUser.ID).Msg("provider user has no local account")
			return nil, domain.ErrAuthenticationFailure
		}
		return nil, err
	}
	if err := s.users.LinkProviderSubject(ctx, user.ID, pUser.ID); err != nil {
		return nil, fmt.Errorf("link provider subject: %w", err)
	}
	user.ProviderSubject = pUser.ID
	return user, nil
}

func (s *SessionService) legacyLogin(ctx context.Context, email, password string) (*domain.Session, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, domain.ErrAuthenticationFailure
		}
		return nil, err
	}
	if user.PasswordHash == "" {
		return nil, domain.ErrAuthenticationFailure
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrAuthenticationFailure
	}

	sess, err := s.start(ctx, user, domain.AuthLegacy, domain.ProviderTokens{})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("user_id", user.ID).
		Str("tenant_id", user.TenantID).
		Msg("legacy session established")
	return sess, nil
}

func (s *SessionService) start(ctx context.Context, user *domain.User, method domain.AuthMethod, tokens domain.ProviderTokens) (*domain.Session, error) {
	id, err := ids.Opaque()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	now := s.now()
	sess := &domain.Session{
		ID:         id,
		UserID:     user.ID,
		TenantID:   user.TenantID,
		UserRole:   user.Role,
		Tokens:     tokens,
		AuthMethod: method,
		ExpiresAt:  now.Add(s.cfg.TTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Logout deletes the session. Deleting an unknown session is not an error.
func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	return nil
}

// RequestPasswordReset asks the provider to send a reset email. The outcome
// is not revealed to the caller so the endpoint cannot probe for accounts.
func (s *SessionService) RequestPasswordReset(ctx context.Context, email, redirectURL, origin string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if err := allow(ctx, s.limits.PerOrigin, "password-reset:origin:"+origin); err != nil {
		return err
	}
	if err := s.idp.SendPasswordReset(ctx, email, redirectURL); err != nil {
		s.log.Warn().Err(err).Msg("password reset request failed")
	}
	return nil
}

// Authenticate loads the session and, for provider sessions, refreshes the
// token pair when it is inside the refresh window.
func (s *SessionService) Authenticate(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, domain.ErrUnauthenticated
	}
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}
	if sess.AuthMethod != domain.AuthProvider {
		return sess, nil
	}
	return s.EnsureFresh(ctx, sess)
}

// EnsureFresh refreshes the session's tokens when they are inside the refresh
// window. Any failure leaves the stored tokens untouched and asks the caller to
// sign in again.
func (s *SessionService) EnsureFresh(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	now := s.now()
	if !NeedsRefresh(sess.Tokens.ExpiresAt, now, s.cfg.RefreshThreshold, s.jitter()) {
		return sess, nil
	}
	if !sess.CanRefresh() {
		return nil, domain.ErrReauthenticationRequired
	}

	logger := s.log.With().Str("user_id", sess.UserID).Str("tenant_id", sess.TenantID).Logger()

	refreshed, err := s.idp.RefreshSession(ctx, sess.Tokens.RefreshToken)
	if err != nil {
		logger.Warn().Err(err).Msg("ambient token refresh failed")
		return nil, domain.ErrReauthenticationRequired
	}
	principal, err := s.idp.VerifyToken(ctx, refreshed.AccessToken)
	if err != nil || principal.Claims.TenantID != sess.TenantID || principal.Claims.UserID != sess.UserID {
		logger.Warn().Err(err).Msg("refreshed token lost its claims")
		return nil, domain.ErrReauthenticationRequired
	}

	tokens := refreshed.Tokens()
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = sess.Tokens.RefreshToken
	}
	if err := s.sessions.UpdateTokens(ctx, sess.ID, tokens, now); err != nil {
		return nil, fmt.Errorf("store refreshed tokens: %w", err)
	}
	logger.Debug().Time("expires_at", tokens.ExpiresAt).Msg("provider tokens refreshed")

	updated := *sess
	updated.Tokens = tokens
	updated.UpdatedAt = now
	return &updated, nil
}

// IssueRealtimeToken returns a fresh access token for the realtime channel.
// Legacy sessions have nothing to issue and must sign in again.
func (s *SessionService) IssueRealtimeToken(ctx context.Context, sess *domain.Session, origin string) (*domain.RealtimeToken, error) {
	if err := allow(ctx, s.limits.PerSession, "realtime:session:"+sess.ID); err != nil {
		return nil, err
	}
	if err := allow(ctx, s.limits.PerOrigin, "realtime:origin:"+origin); err != nil {
		return nil, err
	}
	if !sess.CanRefresh() {
		return nil, domain.ErrReauthenticationRequired
	}

	fresh, err := s.EnsureFresh(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &domain.RealtimeToken{
		AccessToken: fresh.Tokens.AccessToken,
		ExpiresAt:   fresh.Tokens.ExpiresAt,
	}, nil
}

func allow(ctx context.Context, l ports.RateLimiter, key string) error {
	if l == nil {
		return nil
	}
	d := l.Allow(ctx, key)
	if d.Allowed {
		return nil
	}
	retry := time.Until(d.ResetAt)
	if retry < time.Second {
		retry = time.Second
	}
	return &domain.RateLimitError{RetryAfter: retry}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
