package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

// PaymentRepository reads payments touching the scope's facet. The facet
// predicate is part of every query in addition to the row-level policy.
type PaymentRepository struct {
	store *Store
}

var _ ports.PaymentRepository = (*PaymentRepository)(nil)

func NewPaymentRepository(store *Store) *PaymentRepository {
	return &PaymentRepository{store: store}
}

const paymentColumns = `id, payer_facet_id, payee_facet_id, amount_minor, currency, status, case_id, coalesce(invoice_id, ''), created_at`

func (r *PaymentRepository) FindScoped(ctx context.Context, scope domain.OwnerScope, id string) (*domain.Payment, error) {
	if scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	var p *domain.Payment
	err := r.store.withClaims(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = scanPayment(tx.QueryRowContext(ctx, `
			select `+paymentColumns+` from payments
			where id = $1 and (payer_facet_id = $2 or payee_facet_id = $2)
		`, id, string(scope.FacetID())))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PaymentRepository) ListScoped(ctx context.Context, scope domain.OwnerScope, page ports.Page) ([]*domain.Payment, error) {
	if scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	var out []*domain.Payment
	err := r.store.withClaims(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			select `+paymentColumns+` from payments
			where payer_facet_id = $1 or payee_facet_id = $1
			order by created_at desc
			limit $2 offset $3
		`, string(scope.FacetID()), page.Limit, offset(page.Page, page.Limit))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanPayment(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		p            domain.Payment
		payer, payee string
	)
	if err := row.Scan(&p.ID, &payer, &payee, &p.AmountMinor, &p.Currency, &p.Status, &p.CaseID, &p.InvoiceID, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.PayerFacetID = domain.FacetID(payer)
	p.PayeeFacetID = domain.FacetID(payee)
	return &p, nil
}

type InvoiceRepository struct {
	store *Store
}

var _ ports.InvoiceRepository = (*InvoiceRepository)(nil)

func NewInvoiceRepository(store *Store) *InvoiceRepository {
	return &InvoiceRepository{store: store}
}

const invoiceColumns = `id, number, issuer_facet_id, recipient_facet_id, amount_minor, currency, status, due_at, created_at`

func (r *InvoiceRepository) FindScoped(ctx context.Context, scope domain.OwnerScope, id string) (*domain.Invoice, error) {
	if scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	var inv *domain.Invoice
	err := r.store.withClaims(ctx, func(tx *sql.Tx) error {
		var err error
		inv, err = scanInvoice(tx.QueryRowContext(ctx, `
			select `+invoiceColumns+` from invoices
			where id = $1 and (issuer_facet_id = $2 or recipient_facet_id = $2)
		`, id, string(scope.FacetID())))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *InvoiceRepository) ListScoped(ctx context.Context, scope domain.OwnerScope, page ports.Page) ([]*domain.Invoice, error) {
	if scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	var out []*domain.Invoice
	err := r.store.withClaims(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			select `+invoiceColumns+` from invoices
			where issuer_facet_id = $1 or recipient_facet_id = $1
			order by created_at desc
			limit $2 offset $3
		`, string(scope.FacetID()), page.Limit, offset(page.Page, page.Limit))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			inv, err := scanInvoice(rows)
			if err != nil {
				return err
			}
			out = append(out, inv)
		}
		return rows.Err()
	})
	return out, err
}

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var (
		inv               domain.Invoice
		issuer, recipient string
	)
	if err := row.Scan(&inv.ID, &inv.Number, &issuer, &recipient, &inv.AmountMinor, &inv.Currency, &inv.Status, &inv.DueAt, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.IssuerFacetID = domain.FacetID(issuer)
	inv.RecipientFacet = domain.FacetID(recipient)
	return &inv, nil
}
