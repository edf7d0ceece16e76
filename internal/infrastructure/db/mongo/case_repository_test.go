package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

func mustScope(t *testing.T, role domain.FacetRole, facet domain.FacetID) domain.OwnerScope {
	t.Helper()
	s, err := domain.NewOwnerScope(role, facet)
	if err != nil {
		t.Fatalf("NewOwnerScope: %v", err)
	}
	return s
}

func TestScopeFilter_UsesTheActiveSideOnly(t *testing.T) {
	client := scopedID(mustScope(t, domain.FacetClient, "cf_acme"), "c1")
	if client["client_facet_id"] != "cf_acme" || client["_id"] != "c1" {
		t.Fatalf("unexpected client filter: %v", client)
	}
	if _, ok := client["vendor_facet_id"]; ok {
		t.Fatalf("client scope must not filter on the vendor side: %v", client)
	}

	vendor := scopeFilter(mustScope(t, domain.FacetVendor, "vf_acme"))
	if vendor["vendor_facet_id"] != "vf_acme" || len(vendor) != 1 {
		t.Fatalf("unexpected vendor filter: %v", vendor)
	}
}

func TestListFilter_Status(t *testing.T) {
	q := listFilter(mustScope(t, domain.FacetClient, "cf_acme"), ports.ListCasesFilter{Status: "open"})
	if q["status"] != "open" || q["client_facet_id"] != "cf_acme" {
		t.Fatalf("unexpected list filter: %v", q)
	}
}

func TestTransitionUpdate_ConditionedOnFromStatus(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stamp := &domain.Stamp{At: at, ActorUserID: "u1"}
	entries := []domain.TimelineEntry{{ID: "e1", Kind: domain.TimelineSystem, FromStatus: domain.CaseInProgress, ToStatus: domain.CaseResolved}}

	filter, update := transitionUpdate(mustScope(t, domain.FacetVendor, "vf_globex"), ports.CaseTransition{
		CaseID:  "c1",
		From:    domain.CaseInProgress,
		To:      domain.CaseResolved,
		At:      at,
		Stamp:   stamp,
		Entries: entries,
	})

	if filter["_id"] != "c1" || filter["status"] != "in_progress" || filter["vendor_facet_id"] != "vf_globex" {
		t.Fatalf("unexpected filter: %v", filter)
	}
	set := update["$set"].(bson.M)
	if set["status"] != "resolved" || set["resolved"] != stamp {
		t.Fatalf("unexpected $set: %v", set)
	}
	if _, ok := set["closed"]; ok {
		t.Fatalf("only the reached milestone is stamped")
	}
	push := update["$push"].(bson.M)["timeline"].(bson.M)["$each"].([]domain.TimelineEntry)
	if len(push) != 1 || push[0].ID != "e1" {
		t.Fatalf("unexpected $push: %v", push)
	}
}

func TestTransitionUpdate_NoStampForIntermediateStatus(t *testing.T) {
	_, update := transitionUpdate(mustScope(t, domain.FacetClient, "cf_acme"), ports.CaseTransition{
		CaseID: "c1",
		From:   domain.CaseOpen,
		To:     domain.CaseInProgress,
		At:     time.Now(),
	})
	set := update["$set"].(bson.M)
	if _, ok := set["resolved"]; ok {
		t.Fatalf("in_progress must not be stamped: %v", set)
	}
}
