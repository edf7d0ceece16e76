package handler

import (
	"mime"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

// EvidenceHandler serves evidence files to holders of a signed link. The
// token is the only credential; no session is required.
type EvidenceHandler struct {
	store ports.EvidenceStore
}

func NewEvidenceHandler(store ports.EvidenceStore) *EvidenceHandler {
	return &EvidenceHandler{store: store}
}

// Download handles GET /v1/evidence?token=.
//
// @Summary      Download evidence
// @Tags         cases
// @Produce      octet-stream
// @Param        token  query  string  true  "Signed link token"
// @Success      200
// @Failure      404  {object}  map[string]string
// @Router       /v1/evidence [get]
func (h *EvidenceHandler) Download(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return domain.ErrEvidenceNotFound
	}
	p, err := h.store.ResolveToken(token)
	if err != nil {
		return err
	}

	rc, err := h.store.Open(c.Request().Context(), p)
	if err != nil {
		return err
	}
	defer rc.Close()

	name := path.Base(p)
	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = echo.MIMEOctetStream
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Response().Header().Set("Cache-Control", "private, no-store")
	return c.Stream(http.StatusOK, ctype, rc)
}
