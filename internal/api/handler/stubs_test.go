package handler

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opsportal/portal/internal/api/middleware"
	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func withScope(c echo.Context, sess *domain.Session, scope domain.OwnerScope) {
	c.Set(middleware.SessionKey, sess)
	c.Set(middleware.ScopeKey, scope)
}

type stubSessionService struct {
	loginFn         func(ctx context.Context, in ports.LoginInput) (*domain.Session, error)
	oauthFn         func(ctx context.Context, in ports.OAuthCallbackInput) (*domain.Session, error)
	logoutFn        func(ctx context.Context, id string) error
	resetFn         func(ctx context.Context, email, redirectURL, origin string) error
	realtimeTokenFn func(ctx context.Context, s *domain.Session, origin string) (*domain.RealtimeToken, error)
}

func (s *stubSessionService) Login(ctx context.Context, in ports.LoginInput) (*domain.Session, error) {
	return s.loginFn(ctx, in)
}

func (s *stubSessionService) LoginWithOAuth(ctx context.Context, in ports.OAuthCallbackInput) (*domain.Session, error) {
	return s.oauthFn(ctx, in)
}

func (s *stubSessionService) Logout(ctx context.Context, id string) error {
	return s.logoutFn(ctx, id)
}

func (s *stubSessionService) RequestPasswordReset(ctx context.Context, email, redirectURL, origin string) error {
	return s.resetFn(ctx, email, redirectURL, origin)
}

func (s *stubSessionService) Authenticate(ctx context.Context, id string) (*domain.Session, error) {
	return nil, domain.ErrUnauthenticated
}

func (s *stubSessionService) EnsureFresh(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	return sess, nil
}

func (s *stubSessionService) IssueRealtimeToken(ctx context.Context, sess *domain.Session, origin string) (*domain.RealtimeToken, error) {
	return s.realtimeTokenFn(ctx, sess, origin)
}

type stubCaseService struct {
	createFn     func(ctx context.Context, in ports.CreateCaseInput) (*ports.CreateCaseResult, error)
	getFn        func(ctx context.Context, scope domain.OwnerScope, id string) (*domain.Case, error)
	listFn       func(ctx context.Context, in ports.ListCasesInput) (*ports.ListCasesResult, error)
	transitionFn func(ctx context.Context, in ports.TransitionInput) (*ports.TransitionResult, error)
	addNoteFn    func(ctx context.Context, in ports.AddNoteInput) (*domain.TimelineEntry, error)
	attachFn     func(ctx context.Context, in ports.AttachEvidenceInput) (*ports.EvidenceLink, error)
	urlFn        func(ctx context.Context, scope domain.OwnerScope, caseID, path string) (*ports.EvidenceLink, error)
}

func (s *stubCaseService) Create(ctx context.Context, in ports.CreateCaseInput) (*ports.CreateCaseResult, error) {
	return s.createFn(ctx, in)
}

func (s *stubCaseService) Get(ctx context.Context, scope domain.OwnerScope, id string) (*domain.Case, error) {
	return s.getFn(ctx, scope, id)
}

func (s *stubCaseService) List(ctx context.Context, in ports.ListCasesInput) (*ports.ListCasesResult, error) {
	return s.listFn(ctx, in)
}

func (s *stubCaseService) Transition(ctx context.Context, in ports.TransitionInput) (*ports.TransitionResult, error) {
	return s.transitionFn(ctx, in)
}

func (s *stubCaseService) AddNote(ctx context.Context, in ports.AddNoteInput) (*domain.TimelineEntry, error) {
	return s.addNoteFn(ctx, in)
}

func (s *stubCaseService) AttachEvidence(ctx context.Context, in ports.AttachEvidenceInput) (*ports.EvidenceLink, error) {
	return s.attachFn(ctx, in)
}

func (s *stubCaseService) EvidenceURL(ctx context.Context, scope domain.OwnerScope, caseID, path string) (*ports.EvidenceLink, error) {
	return s.urlFn(ctx, scope, caseID, path)
}

type stubEvidenceStore struct {
	files  map[string]string
	tokens map[string]string
}

func (s *stubEvidenceStore) Upload(ctx context.Context, path string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.files[path] = string(b)
	return nil
}

func (s *stubEvidenceStore) SignedURL(ctx context.Context, path string) (string, time.Time, error) {
	return "/v1/evidence?token=" + path, time.Now().Add(time.Minute), nil
}

func (s *stubEvidenceStore) ResolveToken(token string) (string, error) {
	p, ok := s.tokens[token]
	if !ok {
		return "", domain.ErrEvidenceNotFound
	}
	return p, nil
}

func (s *stubEvidenceStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	body, ok := s.files[path]
	if !ok {
		return nil, domain.ErrEvidenceNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}
