package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

type caseFixture struct {
	svc      *CaseService
	repo     *stubCaseRepo
	rels     *stubRelationshipRepo
	evidence *stubEvidenceStore
	notifier *stubNotifier
	// acme is the client, globex the vendor, initech is unrelated.
	acme, globex, initech *domain.Tenant
}

func newCaseFixture() *caseFixture {
	f := &caseFixture{
		repo:     newStubCaseRepo(),
		rels:     &stubRelationshipRepo{},
		evidence: newStubEvidenceStore(),
		notifier: &stubNotifier{},
		acme:     newTenant("acme"),
		globex:   newTenant("globex"),
		initech:  newTenant("initech"),
	}
	f.rels.add(f.acme.Facets.Client, f.globex.Facets.Vendor, domain.RelationshipActive)
	tenants := newStubTenantRepo(f.acme, f.globex, f.initech)
	f.svc = NewCaseService(f.repo, f.rels, tenants, f.evidence, f.notifier, zerolog.Nop())
	return f
}

func mustScope(t *testing.T, tenant *domain.Tenant, role domain.FacetRole) domain.OwnerScope {
	t.Helper()
	scope, err := domain.NewOwnerScope(role, tenant.Facets.For(role))
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	return scope
}

func actorOf(tenant *domain.Tenant, role domain.FacetRole) domain.Actor {
	return domain.Actor{UserID: "u-" + tenant.ID, TenantID: tenant.ID, Role: role}
}

func (f *caseFixture) open(t *testing.T) *domain.Case {
	t.Helper()
	res, err := f.svc.Create(context.Background(), ports.CreateCaseInput{
		Scope:        mustScope(t, f.acme, domain.FacetClient),
		Actor:        actorOf(f.acme, domain.FacetClient),
		Counterparty: f.globex.Facets.Vendor,
		Subject:      "Pallets arrived damaged",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return res.Case
}

func TestCaseService_Create(t *testing.T) {
	f := newCaseFixture()
	c := f.open(t)

	if c.Status != domain.CaseOpen {
		t.Fatalf("expected open, got %s", c.Status)
	}
	if c.ClientFacetID != f.acme.Facets.Client || c.VendorFacetID != f.globex.Facets.Vendor {
		t.Fatalf("unexpected facet pair: %s %s", c.ClientFacetID, c.VendorFacetID)
	}
	if len(c.Timeline) != 1 || c.Timeline[0].Kind != domain.TimelineSystem || c.Timeline[0].ToStatus != domain.CaseOpen {
		t.Fatalf("expected one opening entry, got %+v", c.Timeline)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].RecipientTenantID != "globex" {
		t.Fatalf("expected the vendor to be notified, got %+v", f.notifier.sent)
	}
}

func TestCaseService_Create_RequiresActiveRelationship(t *testing.T) {
	f := newCaseFixture()

	_, err := f.svc.Create(context.Background(), ports.CreateCaseInput{
		Scope:        mustScope(t, f.acme, domain.FacetClient),
		Actor:        actorOf(f.acme, domain.FacetClient),
		Counterparty: f.initech.Facets.Vendor,
		Subject:      "No relationship here",
	})
	if !errors.Is(err, domain.ErrRelationshipNotFound) {
		t.Fatalf("expected ErrRelationshipNotFound, got %v", err)
	}
	if len(f.repo.byID) != 0 {
		t.Fatalf("no case may be created")
	}
}

func TestCaseService_Create_RejectsSelfRelationship(t *testing.T) {
	f := newCaseFixture()
	f.rels.add(f.acme.Facets.Client, f.acme.Facets.Vendor, domain.RelationshipActive)

	_, err := f.svc.Create(context.Background(), ports.CreateCaseInput{
		Scope:        mustScope(t, f.acme, domain.FacetClient),
		Actor:        actorOf(f.acme, domain.FacetClient),
		Counterparty: f.acme.Facets.Vendor,
		Subject:      "Talking to myself",
	})
	if !errors.Is(err, domain.ErrSelfRelationship) {
		t.Fatalf("expected ErrSelfRelationship, got %v", err)
	}
}

func TestCaseService_Create_Validation(t *testing.T) {
	f := newCaseFixture()
	scope := mustScope(t, f.acme, domain.FacetClient)

	if _, err := f.svc.Create(context.Background(), ports.CreateCaseInput{Scope: scope, Counterparty: f.globex.Facets.Vendor, Subject: "  "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank subject, got %v", err)
	}
	if _, err := f.svc.Create(context.Background(), ports.CreateCaseInput{Scope: scope, Counterparty: f.globex.Facets.Client, Subject: "x"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a same-side counterparty, got %v", err)
	}
	if _, err := f.svc.Create(context.Background(), ports.CreateCaseInput{Subject: "x"}); !errors.Is(err, domain.ErrScopeRequired) {
		t.Fatalf("expected ErrScopeRequired, got %v", err)
	}
}

func TestCaseService_Create_IdempotentReplay(t *testing.T) {
	f := newCaseFixture()
	in := ports.CreateCaseInput{
		Scope:          mustScope(t, f.acme, domain.FacetClient),
		Actor:          actorOf(f.acme, domain.FacetClient),
		Counterparty:   f.globex.Facets.Vendor,
		Subject:        "Retry me",
		IdempotencyKey: "idem-1",
	}

	first, err := f.svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("first Create returned error: %v", err)
	}
	second, err := f.svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("second Create returned error: %v", err)
	}
	if !second.AlreadyExisted || second.Case.ID != first.Case.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Case.ID, second)
	}
	if len(f.repo.byID) != 1 {
		t.Fatalf("expected one stored case, got %d", len(f.repo.byID))
	}
}

func TestCaseService_Create_IdempotencyLookupFailure(t *testing.T) {
	f := newCaseFixture()
	f.repo.idemErr = errors.New("mongo: server selection timeout")

	_, err := f.svc.Create(context.Background(), ports.CreateCaseInput{
		Scope:          mustScope(t, f.acme, domain.FacetClient),
		Actor:          actorOf(f.acme, domain.FacetClient),
		Counterparty:   f.globex.Facets.Vendor,
		Subject:        "Retry me",
		IdempotencyKey: "idem-1",
	})
	if !errors.Is(err, f.repo.idemErr) {
		t.Fatalf("expected the lookup error, got %v", err)
	}
	if len(f.repo.byID) != 0 {
		t.Fatalf("no case may be stored when the key cannot be checked, got %d", len(f.repo.byID))
	}
}

// The vendor works a case from open to closed, with a note on the way.
func TestCaseService_Transition_Lifecycle(t *testing.T) {
	f := newCaseFixture()
	c := f.open(t)
	vendor := mustScope(t, f.globex, domain.FacetVendor)
	actor := actorOf(f.globex, domain.FacetVendor)

	res, err := f.svc.Transition(context.Background(), ports.TransitionInput{
		Scope: vendor, Actor: actor, CaseID: c.ID, To: domain.CaseInProgress, Note: "Looking into it",
	})
	if err != nil {
		t.Fatalf("Transition returned error: %v", err)
	}
	if res.Case.Status != domain.CaseInProgress {
		t.Fatalf("expected in_progress, got %s", res.Case.Status)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expected a system entry and a note, got %d entries", len(res.Events))
	}
	sys, note := res.Events[0], res.Events[1]
	if sys.Kind != domain.TimelineSystem || sys.FromStatus != domain.CaseOpen || sys.ToStatus != domain.CaseInProgress {
		t.Fatalf("unexpected system entry: %+v", sys)
	}
	if sys.Actor != actor {
		t.Fatalf("system entry must record the actor, got %+v", sys.Actor)
	}
	if note.Kind != domain.TimelineNote || note.Body != "Looking into it" || note.ToStatus != "" {
		t.Fatalf("unexpected note entry: %+v", note)
	}

	res, err = f.svc.Transition(context.Background(), ports.TransitionInput{Scope: vendor, Actor: actor, CaseID: c.ID, To: domain.CaseResolved})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("a transition without a note writes exactly one entry, got %d", len(res.Events))
	}
	if res.Case.Resolved == nil || res.Case.Resolved.ActorUserID != actor.UserID || res.Case.Resolved.At.IsZero() {
		t.Fatalf("expected a resolved stamp, got %+v", res.Case.Resolved)
	}

	client := mustScope(t, f.acme, domain.FacetClient)
	res, err = f.svc.Transition(context.Background(), ports.TransitionInput{Scope: client, Actor: actorOf(f.acme, domain.FacetClient), CaseID: c.ID, To: domain.CaseClosed})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if res.Case.Closed == nil || res.Case.Closed.ActorUserID != "u-acme" {
		t.Fatalf("expected a closed stamp, got %+v", res.Case.Closed)
	}

	stored := f.repo.byID[c.ID]
	if len(stored.Timeline) != 5 {
		t.Fatalf("expected 5 timeline entries (open, in_progress, note, resolved, closed), got %d", len(stored.Timeline))
	}
}

func TestCaseService_Transition_RepeatIsInvalid(t *testing.T) {
	f := newCaseFixture()
	c := f.open(t)
	in := ports.TransitionInput{
		Scope:  mustScope(t, f.globex, domain.FacetVendor),
		Actor:  actorOf(f.globex, domain.FacetVendor),
		CaseID: c.ID,
		To:     domain.CaseInProgress,
	}

	if _, err := f.svc.Transition(context.Background(), in); err != nil {
		t.Fatalf("first transition failed: %v", err)
	}
	_, err := f.svc.Transition(context.Background(), in)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	var ite *domain.InvalidTransitionError
	if !errors.As(err, &ite) || ite.From != "in_progress" || ite.To != "in_progress" {
		t.Fatalf("expected the error to name the pair, got %v", err)
	}
	if len(f.repo.byID[c.ID].Timeline) != 2 {
		t.Fatalf("a rejected transition must not write entries")
	}
}

func TestCaseService_Transition_SkippingIsInvalid(t *testing.T) {
	f := newCaseFixture()
	c := f.open(t)

	_, err := f.svc.Transition(context.Background(), ports.TransitionInput{
		Scope:  mustScope(t, f.acme, domain.FacetClient),
		Actor:  actorOf(f.acme, domain.FacetClient),
		CaseID: c.ID,
		To:     domain.CaseClosed,
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if f.repo.applyCalls != 0 {
		t.Fatalf("no write may happen for an invalid transition")
	}
}

// initech holds both facets but is on neither side of the case.
func TestCaseService_UnrelatedTenantSeesNotFound(t *testing.T) {
	f := newCaseFixture()
	c := f.open(t)

	for _, role := range []domain.FacetRole{domain.FacetClient, domain.FacetVendor} {
		scope := mustScope(t, f.initech, role)

		if _, err := f.svc.Get(context.Background(), scope, c.ID); !errors.Is(err, domain.ErrCaseNotFound) {
			t.Fatalf("%s: expected ErrCaseNotFound on get, got %v", role, err)
		}
		_, err := f.svc.Transition(context.Background(), ports.TransitionInput{
			Scope: scope, Actor: actorOf(f.initech, role), CaseID: c.ID, To: domain.CaseInProgress,
		})
		if !errors.Is(err, domain.ErrCaseNotFound) {
			t.Fatalf("%s: expected ErrCaseNotFound on transition, got %v", role, err)
		}
		if _, err := f.svc.Get(context.Background(), scope, "does-not-exist"); err.Error() != domain.ErrCaseNotFound.Error() {
			t.Fatalf("absent and foreign cases must look alike, got %v", err)
		}
	}
	if f.repo.byID[c.ID].Status != domain.CaseOpen {
		t.Fatalf("foreign transition must not change the case")
	}
}

// acme's vendor facet is not on the case even though acme's client facet is.
func TestCaseService_WrongFacetOfOwningTenant(t *testing.T) {
	f := newCaseFixture()
	c := f.open(t)

	if _, err := f.svc.Get(context.Background(), mustScope(t, f.acme, domain.FacetVendor), c.ID); !errors.Is(err, domain.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound from the other facet, got %v", err)
	}
}

func TestCaseService_Transition_LostRace(t *testing.T) {
	f := newCaseFixture()
	c := f.open(t)
	f.repo.applyErr = domain.ErrConcurrentUpdate

	_, err := f.svc.Transition(context.Background(), ports.TransitionInput{
		Scope:  mustScope(t, f.globex, domain.FacetVendor),
		Actor:  actorOf(f.globex, domain.FacetVendor),
		CaseID: c.ID,
		To:     domain.CaseInProgress,
	})
	if !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}

func TestCaseService_List(t *testing.T) {
	f := newCaseFixture()
	for i := 0; i < 3; i++ {
		f.open(t)
	}

	res, err := f.svc.List(context.Background(), ports.ListCasesInput{
		Scope:  mustScope(t, f.globex, domain.FacetVendor),
		Filter: ports.ListCasesFilter{Page: 1, Limit: 2},
	})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if res.Total != 3 || len(res.Items) != 2 || res.TotalPages != 2 {
		t.Fatalf("unexpected page: total=%d items=%d pages=%d", res.Total, len(res.Items), res.TotalPages)
	}

	res, err = f.svc.List(context.Background(), ports.ListCasesInput{Scope: mustScope(t, f.initech, domain.FacetVendor)})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if res.Total != 0 || res.Limit != defaultPageLimit {
		t.Fatalf("unrelated tenant must see nothing, got %+v", res)
	}

	if _, err := f.svc.List(context.Background(), ports.ListCasesInput{
		Scope:  mustScope(t, f.acme, domain.FacetClient),
		Filter: ports.ListCasesFilter{Status: "exploded"},
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown status, got %v", err)
	}
}

func TestCaseService_AddNote(t *testing.T) {
	f := newCaseFixture()
	c := f.open(t)

	entry, err := f.svc.AddNote(context.Background(), ports.AddNoteInput{
		Scope:  mustScope(t, f.globex, domain.FacetVendor),
		Actor:  actorOf(f.globex, domain.FacetVendor),
		CaseID: c.ID,
		Body:   "Photos requested",
	})
	if err != nil {
		t.Fatalf("AddNote returned error: %v", err)
	}
	if entry.Kind != domain.TimelineNote {
		t.Fatalf("unexpected kind %s", entry.Kind)
	}
	if f.repo.byID[c.ID].Status != domain.CaseOpen {
		t.Fatalf("notes must not change the status")
	}

	_, err = f.svc.AddNote(context.Background(), ports.AddNoteInput{
		Scope:  mustScope(t, f.initech, domain.FacetVendor),
		CaseID: c.ID,
		Body:   "sneaky",
	})
	if !errors.Is(err, domain.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
}

func TestCaseService_AttachEvidence(t *testing.T) {
	f := newCaseFixture()
	c := f.open(t)
	scope := mustScope(t, f.acme, domain.FacetClient)

	link, err := f.svc.AttachEvidence(context.Background(), ports.AttachEvidenceInput{
		Scope:    scope,
		Actor:    actorOf(f.acme, domain.FacetClient),
		CaseID:   c.ID,
		Filename: "../../etc/damage.jpg",
		Content:  strings.NewReader("jpeg bytes"),
	})
	if err != nil {
		t.Fatalf("AttachEvidence returned error: %v", err)
	}
	if !strings.HasPrefix(link.Path, "cases/"+c.ID+"/") || !strings.HasSuffix(link.Path, "-damage.jpg") {
		t.Fatalf("unexpected evidence path %q", link.Path)
	}
	if link.URL == "" || link.ExpiresAt.IsZero() {
		t.Fatalf("expected a signed link, got %+v", link)
	}

	stored := f.repo.byID[c.ID]
	last := stored.Timeline[len(stored.Timeline)-1]
	if last.Kind != domain.TimelineEvidence || last.EvidencePath != link.Path {
		t.Fatalf("expected an evidence entry, got %+v", last)
	}
	if stored.Status != domain.CaseOpen {
		t.Fatalf("evidence must not change the status")
	}

	again, err := f.svc.EvidenceURL(context.Background(), scope, c.ID, link.Path)
	if err != nil || again.Path != link.Path {
		t.Fatalf("EvidenceURL failed: %v", err)
	}
	if _, err := f.svc.EvidenceURL(context.Background(), scope, c.ID, "cases/other/file"); !errors.Is(err, domain.ErrEvidenceNotFound) {
		t.Fatalf("expected ErrEvidenceNotFound, got %v", err)
	}
}
