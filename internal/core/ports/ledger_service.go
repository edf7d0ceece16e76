package ports

import (
	"context"

	"github.com/opsportal/portal/internal/core/domain"
)

// LedgerService exposes scope-filtered payment and invoice reads.
type LedgerService interface {
	GetPayment(ctx context.Context, scope domain.OwnerScope, id string) (*domain.Payment, error)
	ListPayments(ctx context.Context, scope domain.OwnerScope, page Page) ([]*domain.Payment, error)
	GetInvoice(ctx context.Context, scope domain.OwnerScope, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, scope domain.OwnerScope, page Page) ([]*domain.Invoice, error)
}
