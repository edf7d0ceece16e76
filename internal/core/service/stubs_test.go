package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Directory: tenants, users, relationships
// ---------------------------------------------------------------------------

type stubTenantRepo struct {
	byID map[string]*domain.Tenant
}

func newStubTenantRepo(tenants ...*domain.Tenant) *stubTenantRepo {
	r := &stubTenantRepo{byID: make(map[string]*domain.Tenant)}
	for _, t := range tenants {
		r.byID[t.ID] = t
	}
	return r
}

func (r *stubTenantRepo) Find(_ context.Context, id string) (*domain.Tenant, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *stubTenantRepo) FindByFacet(_ context.Context, facet domain.FacetID) (*domain.Tenant, error) {
	for _, t := range r.byID {
		if t.Facets.Owns(facet) {
			clone := *t
			return &clone, nil
		}
	}
	return nil, domain.ErrTenantNotFound
}

func newTenant(id string) *domain.Tenant {
	return &domain.Tenant{ID: id, Name: "Tenant " + id, Facets: domain.NewFacets()}
}

type stubUserRepo struct {
	byID   map[string]*domain.User
	linked map[string]string
}

func newStubUserRepo(users ...*domain.User) *stubUserRepo {
	r := &stubUserRepo{byID: make(map[string]*domain.User), linked: make(map[string]string)}
	for _, u := range users {
		r.byID[u.ID] = u
	}
	return r
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.byID {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByProviderSubject(_ context.Context, subject string) (*domain.User, error) {
	for _, u := range r.byID {
		if u.ProviderSubject != "" && u.ProviderSubject == subject {
			clone := *u
			return &clone, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) LinkProviderSubject(_ context.Context, userID, subject string) error {
	u, ok := r.byID[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.ProviderSubject = subject
	r.linked[userID] = subject
	return nil
}

type stubRelationshipRepo struct {
	rels      []*domain.Relationship
	listCalls int
}

func (r *stubRelationshipRepo) add(client, vendor domain.FacetID, status domain.RelationshipStatus) *domain.Relationship {
	rel := &domain.Relationship{
		ID:            string(client) + "->" + string(vendor),
		ClientFacetID: client,
		VendorFacetID: vendor,
		Status:        status,
	}
	r.rels = append(r.rels, rel)
	return rel
}

func (r *stubRelationshipRepo) ListByClientFacet(_ context.Context, facet domain.FacetID) ([]domain.Relationship, error) {
	r.listCalls++
	var out []domain.Relationship
	for _, rel := range r.rels {
		if rel.ClientFacetID == facet {
			out = append(out, *rel)
		}
	}
	return out, nil
}

func (r *stubRelationshipRepo) ListByVendorFacet(_ context.Context, facet domain.FacetID) ([]domain.Relationship, error) {
	r.listCalls++
	var out []domain.Relationship
	for _, rel := range r.rels {
		if rel.VendorFacetID == facet {
			out = append(out, *rel)
		}
	}
	return out, nil
}

func (r *stubRelationshipRepo) FindActivePair(_ context.Context, client, vendor domain.FacetID) (*domain.Relationship, error) {
	for _, rel := range r.rels {
		if rel.ClientFacetID == client && rel.VendorFacetID == vendor && rel.Status == domain.RelationshipActive {
			clone := *rel
			return &clone, nil
		}
	}
	return nil, domain.ErrRelationshipNotFound
}

func (r *stubRelationshipRepo) FindForTenant(_ context.Context, id string, facets domain.Facets) (*domain.Relationship, error) {
	for _, rel := range r.rels {
		if rel.ID == id && (facets.Owns(rel.ClientFacetID) || facets.Owns(rel.VendorFacetID)) {
			clone := *rel
			return &clone, nil
		}
	}
	return nil, domain.ErrRelationshipNotFound
}

func (r *stubRelationshipRepo) Create(_ context.Context, rel *domain.Relationship) error {
	clone := *rel
	r.rels = append(r.rels, &clone)
	return nil
}

func (r *stubRelationshipRepo) UpdateStatus(_ context.Context, id string, from, to domain.RelationshipStatus, at time.Time) error {
	for _, rel := range r.rels {
		if rel.ID == id {
			if rel.Status != from {
				return domain.ErrConcurrentUpdate
			}
			rel.Status = to
			rel.UpdatedAt = at
			return nil
		}
	}
	return domain.ErrRelationshipNotFound
}

// ---------------------------------------------------------------------------
// Sessions and identity provider
// ---------------------------------------------------------------------------

type stubSessionRepo struct {
	mu        sync.Mutex
	byID      map[string]*domain.Session
	createErr error
	tokenSets int
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{byID: make(map[string]*domain.Session)}
}

func (r *stubSessionRepo) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	clone := *s
	r.byID[s.ID] = &clone
	return nil
}

func (r *stubSessionRepo) FindByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *stubSessionRepo) UpdateActiveContext(_ context.Context, id string, active domain.ActiveContext, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.Active = active
	s.UpdatedAt = at
	return nil
}

func (r *stubSessionRepo) UpdateTokens(_ context.Context, id string, tokens domain.ProviderTokens, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.Tokens = tokens
	s.UpdatedAt = at
	r.tokenSets++
	return nil
}

func (r *stubSessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *stubSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// stubIdP is a scripted identity provider. Claims written through
// AdminSetClaims show up in tokens verified after the next refresh.
type stubIdP struct {
	users        map[string]string // email -> password
	subjects     map[string]string // email -> provider subject
	claims       map[string]domain.Claims
	tokenClaims  map[string]domain.Claims // access token -> claims
	tokenExpiry  time.Time
	signInErr    error
	setClaimsErr error
	refreshErr   error
	dropClaims   bool
	signUpErr    error
	resetErr     error
	calls        []string
	resets       []string
	seq          int
}

func newStubIdP() *stubIdP {
	return &stubIdP{
		users:       make(map[string]string),
		subjects:    make(map[string]string),
		claims:      make(map[string]domain.Claims),
		tokenClaims: make(map[string]domain.Claims),
		tokenExpiry: time.Now().Add(time.Hour),
	}
}

func (p *stubIdP) register(email, password, subject string) {
	p.users[email] = password
	p.subjects[email] = subject
}

func (p *stubIdP) issue(subject string) *ports.ProviderSession {
	p.seq++
	access := fmt.Sprintf("access-%s-%d", subject, p.seq)
	p.tokenClaims[access] = p.claims[subject]
	return &ports.ProviderSession{
		AccessToken:  access,
		RefreshToken: "refresh-" + subject,
		ExpiresAt:    p.tokenExpiry,
	}
}

func (p *stubIdP) SignIn(_ context.Context, email, password string) (*ports.ProviderUser, *ports.ProviderSession, error) {
	p.calls = append(p.calls, "SignIn")
	if p.signInErr != nil {
		return nil, nil, p.signInErr
	}
	if pw, ok := p.users[email]; !ok || pw != password {
		return nil, nil, domain.ErrAuthenticationFailure
	}
	subject := p.subjects[email]
	return &ports.ProviderUser{ID: subject, Email: email}, p.issue(subject), nil
}

func (p *stubIdP) SignUp(_ context.Context, email, password string) (*ports.ProviderUser, error) {
	p.calls = append(p.calls, "SignUp")
	if p.signUpErr != nil {
		return nil, p.signUpErr
	}
	if _, ok := p.users[email]; ok {
		return nil, domain.ErrUserExists
	}
	subject := "sub-" + email
	p.register(email, password, subject)
	return &ports.ProviderUser{ID: subject, Email: email}, nil
}

func (p *stubIdP) AdminSetClaims(_ context.Context, providerUserID string, claims domain.Claims) (*ports.ProviderUser, error) {
	p.calls = append(p.calls, "AdminSetClaims")
	if p.setClaimsErr != nil {
		return nil, p.setClaimsErr
	}
	p.claims[providerUserID] = claims
	return &ports.ProviderUser{ID: providerUserID, Claims: claims}, nil
}

func (p *stubIdP) RefreshSession(_ context.Context, refreshToken string) (*ports.ProviderSession, error) {
	p.calls = append(p.calls, "RefreshSession")
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	subject := refreshToken[len("refresh-"):]
	s := p.issue(subject)
	if p.dropClaims {
		p.tokenClaims[s.AccessToken] = domain.Claims{}
	}
	return s, nil
}

func (p *stubIdP) VerifyToken(_ context.Context, accessToken string) (*ports.ProviderPrincipal, error) {
	p.calls = append(p.calls, "VerifyToken")
	c, ok := p.tokenClaims[accessToken]
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	return &ports.ProviderPrincipal{Claims: c, ExpiresAt: p.tokenExpiry}, nil
}

func (p *stubIdP) SendPasswordReset(_ context.Context, email, _ string) error {
	p.calls = append(p.calls, "SendPasswordReset")
	p.resets = append(p.resets, email)
	return p.resetErr
}

func (p *stubIdP) ExchangeOAuthCode(_ context.Context, code, _ string) (*ports.ProviderUser, *ports.ProviderSession, error) {
	p.calls = append(p.calls, "ExchangeOAuthCode")
	for email, subject := range p.subjects {
		if code == "code-"+subject {
			return &ports.ProviderUser{ID: subject, Email: email}, p.issue(subject), nil
		}
	}
	return nil, nil, domain.ErrAuthenticationFailure
}

func (p *stubIdP) called(name string) int {
	n := 0
	for _, c := range p.calls {
		if c == name {
			n++
		}
	}
	return n
}

// stubLimiter allows budget requests per key.
type stubLimiter struct {
	budget int
	seen   map[string]int
}

func newStubLimiter(budget int) *stubLimiter {
	return &stubLimiter{budget: budget, seen: make(map[string]int)}
}

func (l *stubLimiter) Allow(_ context.Context, key string) ports.RateDecision {
	l.seen[key]++
	used := l.seen[key]
	return ports.RateDecision{
		Allowed:   used <= l.budget,
		Limit:     l.budget,
		Remaining: max(l.budget-used, 0),
		ResetAt:   time.Now().Add(30 * time.Second),
	}
}

// ---------------------------------------------------------------------------
// Cases, evidence, notifications
// ---------------------------------------------------------------------------

// stubCaseRepo mirrors the real query filters: every scoped call compares the
// scope facet to the matching side of the case.
type stubCaseRepo struct {
	byID        map[string]*domain.Case
	applyErr    error
	idemErr     error
	appendCalls int
	applyCalls  int
}

func newStubCaseRepo() *stubCaseRepo {
	return &stubCaseRepo{byID: make(map[string]*domain.Case)}
}

func cloneCase(c *domain.Case) *domain.Case {
	clone := *c
	clone.Timeline = append([]domain.TimelineEntry(nil), c.Timeline...)
	return &clone
}

func (r *stubCaseRepo) Create(_ context.Context, c *domain.Case) error {
	r.byID[c.ID] = cloneCase(c)
	return nil
}

func (r *stubCaseRepo) scoped(scope domain.OwnerScope, id string) (*domain.Case, error) {
	c, ok := r.byID[id]
	if !ok || !scope.Matches(c.ClientFacetID, c.VendorFacetID) {
		return nil, domain.ErrCaseNotFound
	}
	return c, nil
}

func (r *stubCaseRepo) FindScoped(_ context.Context, scope domain.OwnerScope, id string) (*domain.Case, error) {
	c, err := r.scoped(scope, id)
	if err != nil {
		return nil, err
	}
	return cloneCase(c), nil
}

func (r *stubCaseRepo) FindByIdempotencyKey(_ context.Context, scope domain.OwnerScope, key string) (*domain.Case, error) {
	if r.idemErr != nil {
		return nil, r.idemErr
	}
	for _, c := range r.byID {
		if c.IdempotencyKey == key && scope.Matches(c.ClientFacetID, c.VendorFacetID) {
			return cloneCase(c), nil
		}
	}
	return nil, domain.ErrCaseNotFound
}

func (r *stubCaseRepo) ListScoped(_ context.Context, scope domain.OwnerScope, f ports.ListCasesFilter) ([]*domain.Case, int64, error) {
	var matched []*domain.Case
	for _, c := range r.byID {
		if !scope.Matches(c.ClientFacetID, c.VendorFacetID) {
			continue
		}
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		matched = append(matched, cloneCase(c))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	start := (f.Page - 1) * f.Limit
	if start >= len(matched) {
		return []*domain.Case{}, total, nil
	}
	end := min(start+f.Limit, len(matched))
	return matched[start:end], total, nil
}

func (r *stubCaseRepo) ApplyTransition(_ context.Context, scope domain.OwnerScope, t ports.CaseTransition) error {
	r.applyCalls++
	if r.applyErr != nil {
		return r.applyErr
	}
	c, err := r.scoped(scope, t.CaseID)
	if err != nil {
		return err
	}
	if c.Status != t.From {
		return domain.ErrConcurrentUpdate
	}
	c.Status = t.To
	c.UpdatedAt = t.At
	switch t.To {
	case domain.CaseResolved:
		c.Resolved = t.Stamp
	case domain.CaseClosed:
		c.Closed = t.Stamp
	}
	c.Timeline = append(c.Timeline, t.Entries...)
	return nil
}

func (r *stubCaseRepo) AppendTimeline(_ context.Context, scope domain.OwnerScope, caseID string, entries ...domain.TimelineEntry) error {
	r.appendCalls++
	c, err := r.scoped(scope, caseID)
	if err != nil {
		return err
	}
	c.Timeline = append(c.Timeline, entries...)
	return nil
}

type stubEvidenceStore struct {
	objects map[string][]byte
}

func newStubEvidenceStore() *stubEvidenceStore {
	return &stubEvidenceStore{objects: make(map[string][]byte)}
}

func (s *stubEvidenceStore) Upload(_ context.Context, path string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[path] = b
	return nil
}

func (s *stubEvidenceStore) SignedURL(_ context.Context, path string) (string, time.Time, error) {
	if _, ok := s.objects[path]; !ok {
		return "", time.Time{}, domain.ErrEvidenceNotFound
	}
	return "https://files.test/" + path + "?sig=ok", time.Now().Add(15 * time.Minute), nil
}

func (s *stubEvidenceStore) ResolveToken(token string) (string, error) {
	return token, nil
}

func (s *stubEvidenceStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := s.objects[path]
	if !ok {
		return nil, domain.ErrEvidenceNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type stubNotifier struct {
	sent []ports.Notification
}

func (n *stubNotifier) Notify(_ context.Context, msg ports.Notification) {
	n.sent = append(n.sent, msg)
}

// ---------------------------------------------------------------------------
// Invitations and ledger
// ---------------------------------------------------------------------------

type stubInvitationRepo struct {
	byID      map[string]*domain.Invitation
	accepted  []ports.AcceptInvitation
	tenants   *stubTenantRepo
	users     *stubUserRepo
	rels      *stubRelationshipRepo
	acceptErr error
}

func newStubInvitationRepo(tenants *stubTenantRepo, users *stubUserRepo, rels *stubRelationshipRepo) *stubInvitationRepo {
	return &stubInvitationRepo{
		byID:    make(map[string]*domain.Invitation),
		tenants: tenants,
		users:   users,
		rels:    rels,
	}
}

func (r *stubInvitationRepo) Create(_ context.Context, inv *domain.Invitation) error {
	clone := *inv
	r.byID[inv.ID] = &clone
	return nil
}

func (r *stubInvitationRepo) FindByTokenHash(_ context.Context, hash string) (*domain.Invitation, error) {
	for _, inv := range r.byID {
		if inv.TokenHash == hash {
			clone := *inv
			return &clone, nil
		}
	}
	return nil, domain.ErrInvitationNotFound
}

func (r *stubInvitationRepo) Accept(ctx context.Context, in ports.AcceptInvitation) error {
	if r.acceptErr != nil {
		return r.acceptErr
	}
	inv, ok := r.byID[in.InvitationID]
	if !ok {
		return domain.ErrInvitationNotFound
	}
	if inv.Status != domain.InvitationPending {
		return domain.ErrInvitationNotPending
	}
	inv.Status = domain.InvitationAccepted
	at := in.AcceptedAt
	inv.AcceptedAt = &at
	if in.NewTenant != nil {
		r.tenants.byID[in.NewTenant.ID] = in.NewTenant
	}
	if in.CreateUser && in.User != nil {
		r.users.byID[in.User.ID] = in.User
	}
	_ = r.rels.Create(ctx, in.Relationship)
	r.accepted = append(r.accepted, in)
	return nil
}

func (r *stubInvitationRepo) Revoke(_ context.Context, id, inviterTenantID string, _ time.Time) error {
	inv, ok := r.byID[id]
	if !ok || inv.InviterTenantID != inviterTenantID {
		return domain.ErrInvitationNotFound
	}
	if inv.Status != domain.InvitationPending {
		return domain.ErrInvitationNotPending
	}
	inv.Status = domain.InvitationRevoked
	return nil
}

func (r *stubInvitationRepo) MarkExpired(_ context.Context, id string, _ time.Time) error {
	if inv, ok := r.byID[id]; ok {
		inv.Status = domain.InvitationExpired
	}
	return nil
}

type stubPaymentRepo struct {
	items    []*domain.Payment
	lastPage ports.Page
}

func (r *stubPaymentRepo) FindScoped(_ context.Context, scope domain.OwnerScope, id string) (*domain.Payment, error) {
	for _, p := range r.items {
		if p.ID == id && scope.Touches(p.PayerFacetID, p.PayeeFacetID) {
			clone := *p
			return &clone, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *stubPaymentRepo) ListScoped(_ context.Context, scope domain.OwnerScope, page ports.Page) ([]*domain.Payment, error) {
	r.lastPage = page
	var out []*domain.Payment
	for _, p := range r.items {
		if scope.Touches(p.PayerFacetID, p.PayeeFacetID) {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubInvoiceRepo struct {
	items []*domain.Invoice
}

func (r *stubInvoiceRepo) FindScoped(_ context.Context, scope domain.OwnerScope, id string) (*domain.Invoice, error) {
	for _, inv := range r.items {
		if inv.ID == id && scope.Touches(inv.IssuerFacetID, inv.RecipientFacet) {
			clone := *inv
			return &clone, nil
		}
	}
	return nil, domain.ErrInvoiceNotFound
}

func (r *stubInvoiceRepo) ListScoped(_ context.Context, scope domain.OwnerScope, _ ports.Page) ([]*domain.Invoice, error) {
	var out []*domain.Invoice
	for _, inv := range r.items {
		if scope.Touches(inv.IssuerFacetID, inv.RecipientFacet) {
			out = append(out, inv)
		}
	}
	return out, nil
}
