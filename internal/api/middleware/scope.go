package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/opsportal/portal/internal/core/domain"
)

// ScopeResolver derives the owner scope of a session's active context.
type ScopeResolver interface {
	ScopeFor(ctx context.Context, s *domain.Session) (domain.OwnerScope, error)
}

// Scope resolves the owner scope once per request and stores it under
// ScopeKey. A dual-context tenant that has not picked a role is stopped here
// with ErrContextSelectionRequired. It must run after Session.
func Scope(guard ScopeResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, ok := c.Get(SessionKey).(*domain.Session)
			if !ok {
				return domain.ErrUnauthenticated
			}
			scope, err := guard.ScopeFor(c.Request().Context(), sess)
			if err != nil {
				return err
			}
			c.Set(ScopeKey, scope)
			return next(c)
		}
	}
}
