package ports

import (
	"context"

	"github.com/opsportal/portal/internal/core/domain"
)

// Page is a 1-based pagination window.
type Page struct {
	Page  int
	Limit int
}

// PaymentRepository reads payments where the scope's facet is payer or payee.
type PaymentRepository interface {
	FindScoped(ctx context.Context, scope domain.OwnerScope, id string) (*domain.Payment, error)
	ListScoped(ctx context.Context, scope domain.OwnerScope, page Page) ([]*domain.Payment, error)
}

// InvoiceRepository reads invoices where the scope's facet is issuer or recipient.
type InvoiceRepository interface {
	FindScoped(ctx context.Context, scope domain.OwnerScope, id string) (*domain.Invoice, error)
	ListScoped(ctx context.Context, scope domain.OwnerScope, page Page) ([]*domain.Invoice, error)
}
