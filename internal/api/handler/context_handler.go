package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

// ContextHandler exposes the caller's available and active facet contexts.
type ContextHandler struct {
	contexts ports.ContextService
	sessions ports.SessionService
}

func NewContextHandler(contexts ports.ContextService, sessions ports.SessionService) *ContextHandler {
	return &ContextHandler{contexts: contexts, sessions: sessions}
}

type switchContextRequest struct {
	Role                string `json:"role" validate:"required,oneof=client vendor"`
	CounterpartyFacetID string `json:"counterparty_facet_id"`
}

// Get returns the context summary for the session.
//
// @Summary      Current context
// @Tags         context
// @Produce      json
// @Security     SessionCookie
// @Success      200  {object}  domain.ContextSummary
// @Failure      401  {object}  map[string]string
// @Router       /v1/context [get]
func (h *ContextHandler) Get(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}
	sum, err := h.contexts.Resolve(c.Request().Context(), sess)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

// Switch selects the facet role, and optionally a single counterparty, the
// session acts in.
//
// @Summary      Switch context
// @Tags         context
// @Accept       json
// @Produce      json
// @Security     SessionCookie
// @Param        body  body      switchContextRequest  true  "Target role"
// @Success      200   {object}  domain.ContextSummary
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /v1/context/switch [post]
func (h *ContextHandler) Switch(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}
	var req switchContextRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	updated, err := h.contexts.Switch(ctx, sess, domain.FacetRole(req.Role), domain.FacetID(req.CounterpartyFacetID))
	if err != nil {
		return err
	}
	sum, err := h.contexts.Resolve(ctx, updated)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

// RealtimeToken issues the access token for the realtime channel.
//
// @Summary      Issue realtime token
// @Tags         context
// @Produce      json
// @Security     SessionCookie
// @Success      200  {object}  domain.RealtimeToken
// @Failure      401  {object}  map[string]string
// @Failure      429  {object}  map[string]string
// @Router       /v1/realtime/token [post]
func (h *ContextHandler) RealtimeToken(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}
	tok, err := h.sessions.IssueRealtimeToken(c.Request().Context(), sess, origin(c))
	if err != nil {
		return err
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, tok)
}
