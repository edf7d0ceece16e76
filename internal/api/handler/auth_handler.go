package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opsportal/portal/internal/api/metrics"
	"github.com/opsportal/portal/internal/api/middleware"
	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// AuthHandler serves the sign-in surface.
type AuthHandler struct {
	sessions      ports.SessionService
	cookie        CookieConfig
	resetRedirect string
}

// NewAuthHandler creates an AuthHandler. resetRedirect is where the password
// reset email sends the user.
func NewAuthHandler(sessions ports.SessionService, cookie CookieConfig, resetRedirect string) *AuthHandler {
	return &AuthHandler{sessions: sessions, cookie: cookie, resetRedirect: resetRedirect}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type oauthCallbackRequest struct {
	Code         string `json:"code" validate:"required"`
	CodeVerifier string `json:"code_verifier" validate:"required"`
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type sessionResponse struct {
	UserID        string               `json:"user_id"`
	TenantID      string               `json:"tenant_id"`
	UserRole      string               `json:"user_role"`
	ActiveContext domain.ActiveContext `json:"active_context"`
	ExpiresAt     time.Time            `json:"expires_at"`
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		UserID:        s.UserID,
		TenantID:      s.TenantID,
		UserRole:      s.UserRole,
		ActiveContext: s.Active,
		ExpiresAt:     s.ExpiresAt.UTC(),
	}
}

// Login signs a user in with email and password.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	sess, err := h.sessions.Login(c.Request().Context(), ports.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Origin:   origin(c),
	})
	metrics.LoginsTotal.WithLabelValues("password", loginResult(err)).Inc()
	if err != nil {
		return err
	}

	h.setCookie(c, sess)
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

// OAuthCallback completes an authorization code sign-in.
//
// @Summary      Complete OAuth sign-in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      oauthCallbackRequest  true  "Authorization code and PKCE verifier"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /auth/oauth/callback [post]
func (h *AuthHandler) OAuthCallback(c echo.Context) error {
	var req oauthCallbackRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	sess, err := h.sessions.LoginWithOAuth(c.Request().Context(), ports.OAuthCallbackInput{
		Code:     req.Code,
		Verifier: req.CodeVerifier,
		Origin:   origin(c),
	})
	metrics.LoginsTotal.WithLabelValues("oauth", loginResult(err)).Inc()
	if err != nil {
		return err
	}

	h.setCookie(c, sess)
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

// Logout deletes the caller's session. It succeeds without a session.
//
// @Summary      Logout
// @Tags         auth
// @Success      204
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	var id string
	if ck, err := c.Cookie(h.cookie.Name); err == nil {
		id = ck.Value
	}
	if err := h.sessions.Logout(c.Request().Context(), id); err != nil {
		return err
	}
	middleware.ClearSessionCookie(c, h.cookie.Name)
	return c.NoContent(http.StatusNoContent)
}

// PasswordReset asks the identity provider to email a reset link. The
// response is the same whether or not the account exists.
//
// @Summary      Request a password reset
// @Tags         auth
// @Accept       json
// @Param        body  body  passwordResetRequest  true  "Account email"
// @Success      202
// @Failure      400   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /auth/password-reset [post]
func (h *AuthHandler) PasswordReset(c echo.Context) error {
	var req passwordResetRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.sessions.RequestPasswordReset(c.Request().Context(), req.Email, h.resetRedirect, origin(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *AuthHandler) setCookie(c echo.Context, sess *domain.Session) {
	setSessionCookie(c, h.cookie, sess)
}

func setSessionCookie(c echo.Context, cfg CookieConfig, sess *domain.Session) {
	c.SetCookie(&http.Cookie{
		Name:     cfg.Name,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func loginResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrAuthenticationFailure):
		return "denied"
	case errors.Is(err, domain.ErrClaimsSyncFailure):
		return "claims_sync_failed"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}
