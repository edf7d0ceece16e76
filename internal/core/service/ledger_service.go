package service

import (
	"context"
	"fmt"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

// LedgerService reads payments and invoices through the caller's owner scope.
type LedgerService struct {
	payments ports.PaymentRepository
	invoices ports.InvoiceRepository
}

func NewLedgerService(payments ports.PaymentRepository, invoices ports.InvoiceRepository) *LedgerService {
	return &LedgerService{payments: payments, invoices: invoices}
}

func (s *LedgerService) GetPayment(ctx context.Context, scope domain.OwnerScope, id string) (*domain.Payment, error) {
	if scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	return s.payments.FindScoped(ctx, scope, id)
}

func (s *LedgerService) ListPayments(ctx context.Context, scope domain.OwnerScope, page ports.Page) ([]*domain.Payment, error) {
	if scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	page.Page, page.Limit = normalizePage(page.Page, page.Limit)
	items, err := s.payments.ListScoped(ctx, scope, page)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return items, nil
}

func (s *LedgerService) GetInvoice(ctx context.Context, scope domain.OwnerScope, id string) (*domain.Invoice, error) {
	if scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	return s.invoices.FindScoped(ctx, scope, id)
}

func (s *LedgerService) ListInvoices(ctx context.Context, scope domain.OwnerScope, page ports.Page) ([]*domain.Invoice, error) {
	if scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	page.Page, page.Limit = normalizePage(page.Page, page.Limit)
	items, err := s.invoices.ListScoped(ctx, scope, page)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return items, nil
}
