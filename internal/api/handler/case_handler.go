package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opsportal/portal/internal/api/metrics"
	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
	"github.com/opsportal/portal/internal/core/service"
)

// CaseHandler handles HTTP requests for case operations. Every route runs
// behind the Scope middleware; a case outside the active scope is answered
// exactly like a case that does not exist.
type CaseHandler struct {
	cases            ports.CaseService
	maxEvidenceBytes int64
}

func NewCaseHandler(cases ports.CaseService, maxEvidenceBytes int64) *CaseHandler {
	return &CaseHandler{cases: cases, maxEvidenceBytes: maxEvidenceBytes}
}

// --- Request / Response types ---

type createCaseRequest struct {
	CounterpartyFacetID string `json:"counterparty_facet_id" validate:"required"`
	Subject             string `json:"subject" validate:"required,max=200"`
	Description         string `json:"description" validate:"max=5000"`
}

type transitionRequest struct {
	To   string `json:"to" validate:"required,oneof=open in_progress resolved closed cancelled submitted"`
	Note string `json:"note" validate:"max=5000"`
}

type noteRequest struct {
	Body string `json:"body" validate:"required,max=5000"`
}

type caseListResponse struct {
	Items      []*domain.Case `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

type transitionResponse struct {
	Case   *domain.Case           `json:"case"`
	Events []domain.TimelineEntry `json:"events"`
}

type evidenceLinkResponse struct {
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toLinkResponse(l *ports.EvidenceLink) evidenceLinkResponse {
	return evidenceLinkResponse{Path: l.Path, URL: l.URL, ExpiresAt: l.ExpiresAt.UTC()}
}

// Create handles POST /v1/cases.
//
// @Summary      Open a case
// @Tags         cases
// @Accept       json
// @Produce      json
// @Security     SessionCookie
// @Param        Idempotency-Key  header    string             false  "Idempotency key to prevent duplicate submissions"
// @Param        body             body      createCaseRequest  true   "Case details"
// @Success      201              {object}  domain.Case
// @Success      200              {object}  domain.Case  "Replay of an earlier request with the same key"
// @Failure      400              {object}  map[string]string
// @Failure      404              {object}  map[string]string
// @Failure      409              {object}  map[string]string
// @Router       /v1/cases [post]
func (h *CaseHandler) Create(c echo.Context) error {
	sess, scope, err := ctxScope(c)
	if err != nil {
		return err
	}
	var req createCaseRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.cases.Create(c.Request().Context(), ports.CreateCaseInput{
		Scope:          scope,
		Actor:          service.ActorFor(sess, scope),
		Counterparty:   domain.FacetID(req.CounterpartyFacetID),
		Subject:        req.Subject,
		Description:    req.Description,
		IdempotencyKey: c.Request().Header.Get("Idempotency-Key"),
	})
	if err != nil {
		return err
	}

	if res.AlreadyExisted {
		return c.JSON(http.StatusOK, res.Case)
	}
	metrics.CasesCreatedTotal.WithLabelValues(string(scope.Role())).Inc()
	return c.JSON(http.StatusCreated, res.Case)
}

// List handles GET /v1/cases.
//
// @Summary      List cases
// @Tags         cases
// @Produce      json
// @Security     SessionCookie
// @Param        status  query     string  false  "Filter by status"
// @Param        page    query     int     false  "Page number (1-based)"
// @Param        limit   query     int     false  "Page size"
// @Success      200     {object}  caseListResponse
// @Failure      400     {object}  map[string]string
// @Router       /v1/cases [get]
func (h *CaseHandler) List(c echo.Context) error {
	_, scope, err := ctxScope(c)
	if err != nil {
		return err
	}
	page, err := pageParams(c)
	if err != nil {
		return err
	}

	res, err := h.cases.List(c.Request().Context(), ports.ListCasesInput{
		Scope: scope,
		Filter: ports.ListCasesFilter{
			Status: c.QueryParam("status"),
			Page:   page.Page,
			Limit:  page.Limit,
		},
	})
	if err != nil {
		return err
	}

	items := res.Items
	if items == nil {
		items = []*domain.Case{}
	}
	return c.JSON(http.StatusOK, caseListResponse{
		Items:      items,
		Total:      res.Total,
		Page:       res.Page,
		Limit:      res.Limit,
		TotalPages: res.TotalPages,
	})
}

// Get handles GET /v1/cases/:id.
//
// @Summary      Get a case
// @Tags         cases
// @Produce      json
// @Security     SessionCookie
// @Param        id   path      string  true  "Case id"
// @Success      200  {object}  domain.Case
// @Failure      404  {object}  map[string]string
// @Router       /v1/cases/{id} [get]
func (h *CaseHandler) Get(c echo.Context) error {
	_, scope, err := ctxScope(c)
	if err != nil {
		return err
	}
	cs, err := h.cases.Get(c.Request().Context(), scope, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cs)
}

// Transition handles POST /v1/cases/:id/transitions.
//
// @Summary      Change case status
// @Tags         cases
// @Accept       json
// @Produce      json
// @Security     SessionCookie
// @Param        id    path      string             true  "Case id"
// @Param        body  body      transitionRequest  true  "Target status and optional note"
// @Success      200   {object}  transitionResponse
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /v1/cases/{id}/transitions [post]
func (h *CaseHandler) Transition(c echo.Context) error {
	sess, scope, err := ctxScope(c)
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.cases.Transition(c.Request().Context(), ports.TransitionInput{
		Scope:  scope,
		Actor:  service.ActorFor(sess, scope),
		CaseID: c.Param("id"),
		To:     domain.CaseStatus(req.To),
		Note:   req.Note,
	})
	if err != nil {
		return err
	}

	for _, ev := range res.Events {
		if ev.Kind == domain.TimelineSystem {
			metrics.CaseTransitionsTotal.WithLabelValues(string(ev.FromStatus), string(ev.ToStatus)).Inc()
		}
	}
	return c.JSON(http.StatusOK, transitionResponse{Case: res.Case, Events: res.Events})
}

// AddNote handles POST /v1/cases/:id/notes.
//
// @Summary      Add a note
// @Tags         cases
// @Accept       json
// @Produce      json
// @Security     SessionCookie
// @Param        id    path      string       true  "Case id"
// @Param        body  body      noteRequest  true  "Note"
// @Success      201   {object}  domain.TimelineEntry
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /v1/cases/{id}/notes [post]
func (h *CaseHandler) AddNote(c echo.Context) error {
	sess, scope, err := ctxScope(c)
	if err != nil {
		return err
	}
	var req noteRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	entry, err := h.cases.AddNote(c.Request().Context(), ports.AddNoteInput{
		Scope:  scope,
		Actor:  service.ActorFor(sess, scope),
		CaseID: c.Param("id"),
		Body:   req.Body,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, entry)
}

// AttachEvidence handles POST /v1/cases/:id/evidence (multipart field "file").
//
// @Summary      Attach evidence
// @Tags         cases
// @Accept       multipart/form-data
// @Produce      json
// @Security     SessionCookie
// @Param        id    path      string  true  "Case id"
// @Param        file  formData  file    true  "Evidence file"
// @Success      201   {object}  evidenceLinkResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      413   {object}  map[string]string
// @Router       /v1/cases/{id}/evidence [post]
func (h *CaseHandler) AttachEvidence(c echo.Context) error {
	sess, scope, err := ctxScope(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: file is required", domain.ErrInvalidInput)
	}
	if h.maxEvidenceBytes > 0 && fh.Size > h.maxEvidenceBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("evidence must be at most %d bytes", h.maxEvidenceBytes))
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	link, err := h.cases.AttachEvidence(c.Request().Context(), ports.AttachEvidenceInput{
		Scope:    scope,
		Actor:    service.ActorFor(sess, scope),
		CaseID:   c.Param("id"),
		Filename: fh.Filename,
		Content:  f,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toLinkResponse(link))
}

// EvidenceURL handles GET /v1/cases/:id/evidence-url?path=.
//
// @Summary      Sign an evidence link
// @Tags         cases
// @Produce      json
// @Security     SessionCookie
// @Param        id    path      string  true  "Case id"
// @Param        path  query     string  true  "Evidence path from the timeline"
// @Success      200   {object}  evidenceLinkResponse
// @Failure      404   {object}  map[string]string
// @Router       /v1/cases/{id}/evidence-url [get]
func (h *CaseHandler) EvidenceURL(c echo.Context) error {
	_, scope, err := ctxScope(c)
	if err != nil {
		return err
	}
	p := c.QueryParam("path")
	if p == "" {
		return fmt.Errorf("%w: path is required", domain.ErrInvalidInput)
	}
	link, err := h.cases.EvidenceURL(c.Request().Context(), scope, c.Param("id"), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toLinkResponse(link))
}
