package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/opsportal/portal/internal/api/metrics"
	"github.com/opsportal/portal/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorMapping renders a domain error. When detail is false the sentinel's own
// text is used, so wrapping context added by services never reaches clients.
type errorMapping struct {
	err    error
	status int
	code   string
	detail bool
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{domain.ErrAuthenticationFailure, http.StatusUnauthorized, "invalid_credentials", false},
	{domain.ErrReauthenticationRequired, http.StatusUnauthorized, "reauthentication_required", false},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", false},
	{domain.ErrSessionNotFound, http.StatusUnauthorized, "unauthenticated", false},
	{domain.ErrClaimsSyncFailure, http.StatusServiceUnavailable, "claims_sync_failed", false},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", false},
	{domain.ErrContextSelectionRequired, http.StatusConflict, "context_selection_required", false},
	{domain.ErrAuthorizationDenied, http.StatusForbidden, "authorization_denied", true},
	{domain.ErrScopeRequired, http.StatusForbidden, "authorization_denied", false},

	{domain.ErrCaseNotFound, http.StatusNotFound, "not_found", false},
	{domain.ErrPaymentNotFound, http.StatusNotFound, "not_found", false},
	{domain.ErrInvoiceNotFound, http.StatusNotFound, "not_found", false},
	{domain.ErrRelationshipNotFound, http.StatusNotFound, "not_found", false},
	{domain.ErrInvitationNotFound, http.StatusNotFound, "not_found", false},
	{domain.ErrEvidenceNotFound, http.StatusNotFound, "not_found", false},
	{domain.ErrTenantNotFound, http.StatusNotFound, "not_found", false},
	{domain.ErrUserNotFound, http.StatusNotFound, "not_found", false},
	{domain.ErrNotFound, http.StatusNotFound, "not_found", false},

	{domain.ErrInvalidTransition, http.StatusUnprocessableEntity, "invalid_transition", true},
	{domain.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update", false},
	{domain.ErrRelationshipExists, http.StatusConflict, "relationship_exists", false},
	{domain.ErrRelationshipInactive, http.StatusUnprocessableEntity, "relationship_inactive", false},
	{domain.ErrSelfRelationship, http.StatusUnprocessableEntity, "self_relationship", false},
	{domain.ErrInvitationNotPending, http.StatusConflict, "invitation_not_pending", false},
	{domain.ErrInvitationExpired, http.StatusGone, "invitation_expired", false},
	{domain.ErrUserExists, http.StatusConflict, "user_exists", false},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input", true},
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that maps domain errors
// to status codes, logs unexpected errors without leaking them and renders
// {"error": "<message>", "code": "<code>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var rle *domain.RateLimitError
		if errors.As(err, &rle) {
			secs := int(math.Ceil(rle.RetryAfter.Seconds()))
			c.Response().Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
		}

		status, body := resolveError(err, log, c)
		if status == http.StatusTooManyRequests {
			metrics.RateLimitedTotal.WithLabelValues(c.Path()).Inc()
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message), Code: httpCode(he.Code)}
	}

	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		msg := m.err.Error()
		if m.detail {
			msg = detailMessage(err, m.err)
		}
		return m.status, errorResponse{Error: msg, Code: m.code}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: "internal"}
}

// detailMessage returns the most specific message carrying sentinel: the
// typed error if there is one, else the outermost error whose text starts
// with the sentinel's.
func detailMessage(err, sentinel error) string {
	var ite *domain.InvalidTransitionError
	if errors.As(err, &ite) {
		return ite.Error()
	}
	prefix := sentinel.Error()
	for e := err; e != nil; e = errors.Unwrap(e) {
		if msg := e.Error(); len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
			return msg
		}
	}
	return prefix
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "error"
	}
}
