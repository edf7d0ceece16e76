package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opsportal/portal/internal/api/middleware"
	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
	"github.com/opsportal/portal/internal/rls"
)

// RelationshipHandler manages invitations and relationship status.
type RelationshipHandler struct {
	relationships ports.RelationshipService
	cookie        CookieConfig
}

func NewRelationshipHandler(relationships ports.RelationshipService, cookie CookieConfig) *RelationshipHandler {
	return &RelationshipHandler{relationships: relationships, cookie: cookie}
}

type inviteRequest struct {
	InviterRole    string `json:"inviter_role" validate:"required,oneof=client vendor"`
	InviteeEmail   string `json:"invitee_email" validate:"required,email"`
	InviteeFacetID string `json:"invitee_facet_id"`
}

type inviteResponse struct {
	Invitation *domain.Invitation `json:"invitation"`
	// Token is shown once; only its hash is stored.
	Token string `json:"token"`
}

type acceptInviteRequest struct {
	Token      string `json:"token" validate:"required"`
	TenantName string `json:"tenant_name" validate:"max=200"`
	UserName   string `json:"user_name" validate:"max=200"`
	Password   string `json:"password"`
}

type acceptInviteResponse struct {
	Relationship *domain.Relationship `json:"relationship"`
	Session      *sessionResponse     `json:"session,omitempty"`
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended terminated"`
}

// Invite handles POST /v1/invitations.
//
// @Summary      Invite a counterparty
// @Tags         relationships
// @Accept       json
// @Produce      json
// @Security     SessionCookie
// @Param        body  body      inviteRequest  true  "Invitation"
// @Success      201   {object}  inviteResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /v1/invitations [post]
func (h *RelationshipHandler) Invite(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}
	var req inviteRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.relationships.Invite(c.Request().Context(), ports.InviteInput{
		Session:        sess,
		InviterRole:    domain.FacetRole(req.InviterRole),
		InviteeEmail:   req.InviteeEmail,
		InviteeFacetID: domain.FacetID(req.InviteeFacetID),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inviteResponse{Invitation: res.Invitation, Token: res.Token})
}

// Accept handles POST /v1/invitations/accept. A signed-in caller accepts on
// behalf of their tenant; otherwise a tenant and owner account are created
// and signed in.
//
// @Summary      Accept an invitation
// @Tags         relationships
// @Accept       json
// @Produce      json
// @Param        body  body      acceptInviteRequest  true  "Invitation token and new account details"
// @Success      201   {object}  acceptInviteResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      410   {object}  map[string]string
// @Router       /v1/invitations/accept [post]
func (h *RelationshipHandler) Accept(c echo.Context) error {
	var req acceptInviteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, _ := c.Get(middleware.SessionKey).(*domain.Session)

	// The token is the credential; the writes span both tenants.
	ctx := rls.WithService(c.Request().Context())
	res, err := h.relationships.Accept(ctx, ports.AcceptInviteInput{
		Token:      req.Token,
		Session:    sess,
		TenantName: req.TenantName,
		UserName:   req.UserName,
		Password:   req.Password,
		Origin:     origin(c),
	})
	if err != nil {
		return err
	}

	resp := acceptInviteResponse{Relationship: res.Relationship}
	if res.Session != nil && res.Session != sess {
		setSessionCookie(c, h.cookie, res.Session)
		sr := toSessionResponse(res.Session)
		resp.Session = &sr
	}
	return c.JSON(http.StatusCreated, resp)
}

// Revoke handles DELETE /v1/invitations/:id.
//
// @Summary      Revoke an invitation
// @Tags         relationships
// @Security     SessionCookie
// @Param        id  path  string  true  "Invitation id"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /v1/invitations/{id} [delete]
func (h *RelationshipHandler) Revoke(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}
	if err := h.relationships.Revoke(c.Request().Context(), sess, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ChangeStatus handles PATCH /v1/relationships/:id.
//
// @Summary      Change relationship status
// @Tags         relationships
// @Accept       json
// @Produce      json
// @Security     SessionCookie
// @Param        id    path      string               true  "Relationship id"
// @Param        body  body      changeStatusRequest  true  "Target status"
// @Success      200   {object}  domain.Relationship
// @Failure      404   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /v1/relationships/{id} [patch]
func (h *RelationshipHandler) ChangeStatus(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}
	var req changeStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	rel, err := h.relationships.ChangeStatus(c.Request().Context(), sess, c.Param("id"), domain.RelationshipStatus(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rel)
}

