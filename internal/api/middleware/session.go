package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/rls"
)

// Context keys shared with the handlers.
const (
	SessionKey = "session"
	ScopeKey   = "scope"
)

// SessionAuthenticator loads a session by id and keeps its tokens fresh.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, sessionID string) (*domain.Session, error)
}

// Session resolves the caller's session from the session cookie, or from an
// "Authorization: Bearer <session id>" header for non-browser clients, and
// stores it under SessionKey. The session row is read with service claims;
// everything after this middleware runs under the session's own claims.
func Session(auth SessionAuthenticator, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := sessionID(c.Request(), cookieName)
			if id == "" {
				return domain.ErrUnauthenticated
			}
			if err := attachSession(c, auth, cookieName, id); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// OptionalSession behaves like Session when the caller presents a valid
// session and otherwise lets the request through without one.
func OptionalSession(auth SessionAuthenticator, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id := sessionID(c.Request(), cookieName); id != "" {
				_ = attachSession(c, auth, cookieName, id)
			}
			return next(c)
		}
	}
}

func attachSession(c echo.Context, auth SessionAuthenticator, cookieName, id string) error {
	req := c.Request()
	sess, err := auth.Authenticate(rls.WithService(req.Context()), id)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) || errors.Is(err, domain.ErrReauthenticationRequired) {
			ClearSessionCookie(c, cookieName)
		}
		return err
	}
	c.SetRequest(req.WithContext(rls.WithUser(req.Context(), sess.Claims())))
	c.Set(SessionKey, sess)
	return nil
}

// ServiceClaims runs the handler with service claims. It is used on routes
// that act before any principal is known, such as login.
func ServiceClaims() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(rls.WithService(req.Context())))
			return next(c)
		}
	}
}

func sessionID(r *http.Request, cookieName string) string {
	if ck, err := r.Cookie(cookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// ClearSessionCookie expires the session cookie on the client.
func ClearSessionCookie(c echo.Context, cookieName string) {
	c.SetCookie(&http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
