package middleware

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opsportal/portal/internal/core/domain"
)

// RBAC enforces tenant-local role-based access control. It must run after
// Session.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}
	denied := fmt.Errorf("%w: requires role %s", domain.ErrAuthorizationDenied, strings.Join(allowedRoles, " or "))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, ok := c.Get(SessionKey).(*domain.Session)
			if !ok {
				return domain.ErrUnauthenticated
			}
			if _, ok := allowed[sess.UserRole]; !ok {
				return denied
			}
			return next(c)
		}
	}
}
