package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

type TenantRepository struct {
	store *Store
}

var _ ports.TenantRepository = (*TenantRepository)(nil)

func NewTenantRepository(store *Store) *TenantRepository {
	return &TenantRepository{store: store}
}

const tenantColumns = `id, name, client_facet_id, vendor_facet_id, created_at`

func (r *TenantRepository) Find(ctx context.Context, id string) (*domain.Tenant, error) {
	return r.findOne(ctx, `select `+tenantColumns+` from tenants where id = $1`, id)
}

// FindByFacet looks the tenant up by either of its facets.
func (r *TenantRepository) FindByFacet(ctx context.Context, facet domain.FacetID) (*domain.Tenant, error) {
	var column string
	switch facet.Role() {
	case domain.FacetClient:
		column = "client_facet_id"
	case domain.FacetVendor:
		column = "vendor_facet_id"
	default:
		return nil, domain.ErrTenantNotFound
	}
	return r.findOne(ctx, `select `+tenantColumns+` from tenants where `+column+` = $1`, string(facet))
}

func (r *TenantRepository) findOne(ctx context.Context, query string, arg any) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.store.withClaims(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, query, arg).Scan(&t.ID, &t.Name, &t.Facets.Client, &t.Facets.Vendor, &t.CreatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func insertTenant(ctx context.Context, tx *sql.Tx, t *domain.Tenant) error {
	_, err := tx.ExecContext(ctx, `
		insert into tenants(id, name, client_facet_id, vendor_facet_id, created_at)
		values ($1, $2, $3, $4, $5)
	`, t.ID, t.Name, string(t.Facets.Client), string(t.Facets.Vendor), t.CreatedAt)
	return err
}

type UserRepository struct {
	store *Store
}

var _ ports.UserRepository = (*UserRepository)(nil)

func NewUserRepository(store *Store) *UserRepository {
	return &UserRepository{store: store}
}

const userColumns = `id, tenant_id, email, name, role, coalesce(provider_subject, ''), password_hash, created_at, updated_at`

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, `select `+userColumns+` from users where id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, `select `+userColumns+` from users where email = $1`, email)
}

func (r *UserRepository) FindByProviderSubject(ctx context.Context, subject string) (*domain.User, error) {
	return r.findOne(ctx, `select `+userColumns+` from users where provider_subject = $1`, subject)
}

func (r *UserRepository) LinkProviderSubject(ctx context.Context, userID, subject string) error {
	return r.store.withClaims(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			update users set provider_subject = $2, updated_at = now()
			where id = $1
		`, userID, subject)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrUserExists
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.store.withClaims(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, query, arg).Scan(
			&u.ID, &u.TenantID, &u.Email, &u.Name, &u.Role,
			&u.ProviderSubject, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
		)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func insertUser(ctx context.Context, tx *sql.Tx, u *domain.User) error {
	var subject sql.NullString
	if u.ProviderSubject != "" {
		subject = sql.NullString{String: u.ProviderSubject, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		insert into users(id, tenant_id, email, name, role, provider_subject, password_hash, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.TenantID, u.Email, u.Name, u.Role, subject, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrUserExists
	}
	return err
}
