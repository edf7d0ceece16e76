package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
	"github.com/opsportal/portal/internal/ids"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// CaseService runs the case lifecycle. Every operation starts with a
// scope-filtered read, so a case outside the caller's active facet behaves
// exactly like a case that does not exist.
type CaseService struct {
	cases         ports.CaseRepository
	relationships ports.RelationshipRepository
	tenants       ports.TenantRepository
	evidence      ports.EvidenceStore
	notifier      ports.Notifier
	logger        zerolog.Logger
	now           func() time.Time
}

func NewCaseService(
	cases ports.CaseRepository,
	relationships ports.RelationshipRepository,
	tenants ports.TenantRepository,
	evidence ports.EvidenceStore,
	notifier ports.Notifier,
	logger zerolog.Logger,
) *CaseService {
	return &CaseService{
		cases:         cases,
		relationships: relationships,
		tenants:       tenants,
		evidence:      evidence,
		notifier:      notifier,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a case between the scope's facet and the counterparty. The
// pair must have an active relationship. If an idempotency key is provided and
// already seen in this scope, the earlier case is returned without side effects.
func (s *CaseService) Create(ctx context.Context, in ports.CreateCaseInput) (*ports.CreateCaseResult, error) {
	if in.Scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}

	if in.IdempotencyKey != "" {
		existing, err := s.cases.FindByIdempotencyKey(ctx, in.Scope, in.IdempotencyKey)
		switch {
		case err == nil && existing != nil:
			s.logger.Info().Str("idempotency_key", in.IdempotencyKey).Str("case_id", existing.ID).Msg("idempotent replay")
			return &ports.CreateCaseResult{Case: existing, AlreadyExisted: true}, nil
		case err != nil && !errors.Is(err, domain.ErrCaseNotFound):
			return nil, fmt.Errorf("create case: idempotency lookup: %w", err)
		}
	}

	client, vendor, err := pairFor(in.Scope, in.Counterparty)
	if err != nil {
		return nil, err
	}

	counterparty, err := s.tenants.FindByFacet(ctx, in.Counterparty)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrRelationshipNotFound
		}
		return nil, fmt.Errorf("create case: %w", err)
	}
	if counterparty.ID == in.Actor.TenantID {
		return nil, domain.ErrSelfRelationship
	}

	rel, err := s.relationships.FindActivePair(ctx, client, vendor)
	if err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}

	now := s.now()
	c := &domain.Case{
		ID:             ids.Sortable(),
		RelationshipID: rel.ID,
		ClientFacetID:  client,
		VendorFacetID:  vendor,
		Subject:        subject,
		Description:    strings.TrimSpace(in.Description),
		Status:         domain.CaseOpen,
		OpenedBy:       in.Actor.UserID,
		Timeline: []domain.TimelineEntry{
			systemEntry(in.Actor, "", domain.CaseOpen, now),
		},
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.cases.Create(ctx, c); err != nil {
		s.logger.Error().Err(err).Msg("failed to create case")
		return nil, err
	}

	s.logger.Info().
		Str("case_id", c.ID).
		Str("tenant_id", in.Actor.TenantID).
		Str("role", string(in.Scope.Role())).
		Msg("case created")

	s.notifier.Notify(ctx, ports.Notification{
		RecipientTenantID: counterparty.ID,
		Type:              ports.NotifyCaseCreated,
		Payload:           map[string]string{"case_id": c.ID, "subject": c.Subject},
	})

	return &ports.CreateCaseResult{Case: c}, nil
}

// pairFor orders the scope's facet and the counterparty into client and vendor.
func pairFor(scope domain.OwnerScope, counterparty domain.FacetID) (client, vendor domain.FacetID, err error) {
	if counterparty == "" {
		return "", "", fmt.Errorf("%w: counterparty is required", domain.ErrInvalidInput)
	}
	switch scope.Role() {
	case domain.FacetClient:
		client, vendor = scope.FacetID(), counterparty
	case domain.FacetVendor:
		client, vendor = counterparty, scope.FacetID()
	}
	if client.Role() != domain.FacetClient || vendor.Role() != domain.FacetVendor {
		return "", "", fmt.Errorf("%w: counterparty must be a %s facet", domain.ErrInvalidInput, opposite(scope.Role()))
	}
	return client, vendor, nil
}

func opposite(r domain.FacetRole) domain.FacetRole {
	if r == domain.FacetClient {
		return domain.FacetVendor
	}
	return domain.FacetClient
}

// Get returns a case visible in scope.
func (s *CaseService) Get(ctx context.Context, scope domain.OwnerScope, caseID string) (*domain.Case, error) {
	if scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	return s.cases.FindScoped(ctx, scope, caseID)
}

// List returns a page of cases visible in scope, optionally filtered by status.
func (s *CaseService) List(ctx context.Context, in ports.ListCasesInput) (*ports.ListCasesResult, error) {
	if in.Scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	if in.Filter.Status != "" && !domain.CaseStatus(in.Filter.Status).Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, in.Filter.Status)
	}

	filter := in.Filter
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit)

	items, total, err := s.cases.ListScoped(ctx, in.Scope, filter)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}

	return &ports.ListCasesResult{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: int(math.Ceil(float64(total) / float64(filter.Limit))),
	}, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// Transition moves a case to a new status. The status change, the optional
// milestone stamp, one system entry and the optional note are written in one
// conditional update.
func (s *CaseService) Transition(ctx context.Context, in ports.TransitionInput) (*ports.TransitionResult, error) {
	if in.Scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}

	c, err := s.cases.FindScoped(ctx, in.Scope, in.CaseID)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateTransition(c.Status, in.To); err != nil {
		return nil, err
	}

	now := s.now()
	events := []domain.TimelineEntry{systemEntry(in.Actor, c.Status, in.To, now)}
	if note := strings.TrimSpace(in.Note); note != "" {
		events = append(events, noteEntry(in.Actor, note, now))
	}

	var stamp *domain.Stamp
	if in.To == domain.CaseResolved || in.To == domain.CaseClosed {
		stamp = &domain.Stamp{At: now, ActorUserID: in.Actor.UserID}
	}

	err = s.cases.ApplyTransition(ctx, in.Scope, ports.CaseTransition{
		CaseID:  c.ID,
		From:    c.Status,
		To:      in.To,
		At:      now,
		Stamp:   stamp,
		Entries: events,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			s.logger.Warn().Str("case_id", c.ID).Str("from", string(c.Status)).Msg("transition lost a race")
		}
		return nil, fmt.Errorf("transition case: %w", err)
	}

	from := c.Status
	c.Status = in.To
	c.UpdatedAt = now
	switch in.To {
	case domain.CaseResolved:
		c.Resolved = stamp
	case domain.CaseClosed:
		c.Closed = stamp
	}
	c.Timeline = append(c.Timeline, events...)

	s.logger.Info().
		Str("case_id", c.ID).
		Str("from", string(from)).
		Str("to", string(in.To)).
		Str("actor", in.Actor.UserID).
		Msg("case transitioned")

	s.notifyCounterparty(ctx, in.Scope, c, ports.NotifyCaseTransitioned, map[string]string{
		"case_id": c.ID,
		"from":    string(from),
		"to":      string(in.To),
	})

	return &ports.TransitionResult{Case: c, Events: events}, nil
}

// AddNote appends a human note to the case timeline.
func (s *CaseService) AddNote(ctx context.Context, in ports.AddNoteInput) (*domain.TimelineEntry, error) {
	if in.Scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, fmt.Errorf("%w: note body is required", domain.ErrInvalidInput)
	}

	c, err := s.cases.FindScoped(ctx, in.Scope, in.CaseID)
	if err != nil {
		return nil, err
	}

	entry := noteEntry(in.Actor, body, s.now())
	if err := s.cases.AppendTimeline(ctx, in.Scope, c.ID, entry); err != nil {
		return nil, fmt.Errorf("add note: %w", err)
	}

	s.notifyCounterparty(ctx, in.Scope, c, ports.NotifyCaseNote, map[string]string{"case_id": c.ID})
	return &entry, nil
}

// AttachEvidence uploads a file and records it on the timeline. It does not
// touch the case status.
func (s *CaseService) AttachEvidence(ctx context.Context, in ports.AttachEvidenceInput) (*ports.EvidenceLink, error) {
	if in.Scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	name := sanitizeFilename(in.Filename)
	if name == "" || in.Content == nil {
		return nil, fmt.Errorf("%w: evidence file is required", domain.ErrInvalidInput)
	}

	c, err := s.cases.FindScoped(ctx, in.Scope, in.CaseID)
	if err != nil {
		return nil, err
	}

	objectPath := path.Join("cases", c.ID, strings.ToLower(ids.Sortable())+"-"+name)
	if err := s.evidence.Upload(ctx, objectPath, in.Content); err != nil {
		return nil, fmt.Errorf("upload evidence: %w", err)
	}

	now := s.now()
	entry := domain.TimelineEntry{
		ID:           ids.Sortable(),
		Kind:         domain.TimelineEvidence,
		Body:         name,
		EvidencePath: objectPath,
		Actor:        in.Actor,
		CreatedAt:    now,
	}
	if err := s.cases.AppendTimeline(ctx, in.Scope, c.ID, entry); err != nil {
		return nil, fmt.Errorf("record evidence: %w", err)
	}

	s.logger.Info().Str("case_id", c.ID).Str("path", objectPath).Msg("evidence attached")
	return s.sign(ctx, objectPath)
}

// EvidenceURL signs a link for evidence recorded on a case visible in scope.
func (s *CaseService) EvidenceURL(ctx context.Context, scope domain.OwnerScope, caseID, evidencePath string) (*ports.EvidenceLink, error) {
	if scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	c, err := s.cases.FindScoped(ctx, scope, caseID)
	if err != nil {
		return nil, err
	}
	for _, e := range c.Timeline {
		if e.Kind == domain.TimelineEvidence && e.EvidencePath == evidencePath {
			return s.sign(ctx, evidencePath)
		}
	}
	return nil, domain.ErrEvidenceNotFound
}

func (s *CaseService) sign(ctx context.Context, objectPath string) (*ports.EvidenceLink, error) {
	url, expires, err := s.evidence.SignedURL(ctx, objectPath)
	if err != nil {
		return nil, fmt.Errorf("sign evidence url: %w", err)
	}
	return &ports.EvidenceLink{Path: objectPath, URL: url, ExpiresAt: expires}, nil
}

// notifyCounterparty tells the tenant on the other side of the case. Lookup
// failures are logged and swallowed.
func (s *CaseService) notifyCounterparty(ctx context.Context, scope domain.OwnerScope, c *domain.Case, kind string, payload map[string]string) {
	other := c.VendorFacetID
	if scope.Role() == domain.FacetVendor {
		other = c.ClientFacetID
	}
	t, err := s.tenants.FindByFacet(ctx, other)
	if err != nil {
		s.logger.Warn().Err(err).Str("case_id", c.ID).Msg("notification recipient lookup failed")
		return
	}
	s.notifier.Notify(ctx, ports.Notification{
		RecipientTenantID: t.ID,
		Type:              kind,
		Payload:           payload,
	})
}

func systemEntry(actor domain.Actor, from, to domain.CaseStatus, at time.Time) domain.TimelineEntry {
	return domain.TimelineEntry{
		ID:         ids.Sortable(),
		Kind:       domain.TimelineSystem,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		CreatedAt:  at,
	}
}

func noteEntry(actor domain.Actor, body string, at time.Time) domain.TimelineEntry {
	return domain.TimelineEntry{
		ID:        ids.Sortable(),
		Kind:      domain.TimelineNote,
		Body:      body,
		Actor:     actor,
		CreatedAt: at,
	}
}

// sanitizeFilename keeps the base name and drops anything that could escape
// the case's evidence prefix.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
