package handler

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/opsportal/portal/internal/api/middleware"
	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

// ctxSession returns the session injected by the Session middleware. Its
// absence means the route was registered without the middleware.
func ctxSession(c echo.Context) (*domain.Session, error) {
	sess, ok := c.Get(middleware.SessionKey).(*domain.Session)
	if !ok || sess == nil {
		return nil, domain.ErrUnauthenticated
	}
	return sess, nil
}

// ctxScope returns the session and the owner scope injected by the Scope
// middleware.
func ctxScope(c echo.Context) (*domain.Session, domain.OwnerScope, error) {
	sess, err := ctxSession(c)
	if err != nil {
		return nil, domain.OwnerScope{}, err
	}
	scope, ok := c.Get(middleware.ScopeKey).(domain.OwnerScope)
	if !ok || scope.IsZero() {
		return nil, domain.OwnerScope{}, domain.ErrScopeRequired
	}
	return sess, scope, nil
}

// origin keys per-origin rate limits.
func origin(c echo.Context) string {
	return c.RealIP()
}

// pageParams reads ?page= and ?limit=. Missing values are left at zero for the
// service to default.
func pageParams(c echo.Context) (ports.Page, error) {
	var p ports.Page
	var err error
	if v := c.QueryParam("page"); v != "" {
		if p.Page, err = strconv.Atoi(v); err != nil || p.Page < 1 {
			return p, fmt.Errorf("%w: page must be a positive integer", domain.ErrInvalidInput)
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		if p.Limit, err = strconv.Atoi(v); err != nil || p.Limit < 1 {
			return p, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput)
		}
	}
	return p, nil
}

// bind decodes the request body and validates it.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid payload", domain.ErrInvalidInput)
	}
	if err := c.Validate(req); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
	}
	return nil
}
