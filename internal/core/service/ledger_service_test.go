package service

import (
	"context"
	"errors"
	"testing"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

func TestLedgerService_ScopeFiltersPaymentsAndInvoices(t *testing.T) {
	acme, globex, initech := newTenant("acme"), newTenant("globex"), newTenant("initech")

	payments := &stubPaymentRepo{items: []*domain.Payment{
		{ID: "p1", PayerFacetID: acme.Facets.Client, PayeeFacetID: globex.Facets.Vendor, AmountMinor: 12500, Currency: "EUR"},
	}}
	invoices := &stubInvoiceRepo{items: []*domain.Invoice{
		{ID: "i1", Number: "INV-1", IssuerFacetID: globex.Facets.Vendor, RecipientFacet: acme.Facets.Client},
	}}
	svc := NewLedgerService(payments, invoices)

	payer := mustScope(t, acme, domain.FacetClient)
	payee := mustScope(t, globex, domain.FacetVendor)

	if _, err := svc.GetPayment(context.Background(), payer, "p1"); err != nil {
		t.Fatalf("payer should see the payment: %v", err)
	}
	if _, err := svc.GetPayment(context.Background(), payee, "p1"); err != nil {
		t.Fatalf("payee should see the payment: %v", err)
	}
	if _, err := svc.GetInvoice(context.Background(), payer, "i1"); err != nil {
		t.Fatalf("recipient should see the invoice: %v", err)
	}

	for _, scope := range []domain.OwnerScope{
		mustScope(t, initech, domain.FacetClient),
		mustScope(t, acme, domain.FacetVendor),
	} {
		if _, err := svc.GetPayment(context.Background(), scope, "p1"); !errors.Is(err, domain.ErrPaymentNotFound) {
			t.Fatalf("expected ErrPaymentNotFound for %s, got %v", scope.FacetID(), err)
		}
		if _, err := svc.GetInvoice(context.Background(), scope, "i1"); !errors.Is(err, domain.ErrInvoiceNotFound) {
			t.Fatalf("expected ErrInvoiceNotFound for %s, got %v", scope.FacetID(), err)
		}
		items, err := svc.ListPayments(context.Background(), scope, ports.Page{})
		if err != nil || len(items) != 0 {
			t.Fatalf("expected no payments, got %d (%v)", len(items), err)
		}
	}

	if payments.lastPage.Page != 1 || payments.lastPage.Limit != defaultPageLimit {
		t.Fatalf("expected normalized paging, got %+v", payments.lastPage)
	}
}

func TestLedgerService_ZeroScope(t *testing.T) {
	svc := NewLedgerService(&stubPaymentRepo{}, &stubInvoiceRepo{})
	if _, err := svc.ListInvoices(context.Background(), domain.OwnerScope{}, ports.Page{}); !errors.Is(err, domain.ErrScopeRequired) {
		t.Fatalf("expected ErrScopeRequired, got %v", err)
	}
}
