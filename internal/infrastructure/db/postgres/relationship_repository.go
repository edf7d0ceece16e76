package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

type RelationshipRepository struct {
	store *Store
}

var _ ports.RelationshipRepository = (*RelationshipRepository)(nil)

func NewRelationshipRepository(store *Store) *RelationshipRepository {
	return &RelationshipRepository{store: store}
}

const relationshipColumns = `id, client_facet_id, vendor_facet_id, status, created_at, updated_at`

func (r *RelationshipRepository) ListByClientFacet(ctx context.Context, facet domain.FacetID) ([]domain.Relationship, error) {
	return r.list(ctx, `select `+relationshipColumns+` from relationships where client_facet_id = $1 order by created_at`, facet)
}

func (r *RelationshipRepository) ListByVendorFacet(ctx context.Context, facet domain.FacetID) ([]domain.Relationship, error) {
	return r.list(ctx, `select `+relationshipColumns+` from relationships where vendor_facet_id = $1 order by created_at`, facet)
}

func (r *RelationshipRepository) FindActivePair(ctx context.Context, client, vendor domain.FacetID) (*domain.Relationship, error) {
	return r.findOne(ctx, `
		select `+relationshipColumns+` from relationships
		where client_facet_id = $1 and vendor_facet_id = $2 and status = 'active'
	`, string(client), string(vendor))
}

func (r *RelationshipRepository) FindForTenant(ctx context.Context, id string, facets domain.Facets) (*domain.Relationship, error) {
	return r.findOne(ctx, `
		select `+relationshipColumns+` from relationships
		where id = $1 and (client_facet_id = $2 or vendor_facet_id = $3)
	`, id, string(facets.Client), string(facets.Vendor))
}

func (r *RelationshipRepository) Create(ctx context.Context, rel *domain.Relationship) error {
	return r.store.withClaims(ctx, func(tx *sql.Tx) error {
		return insertRelationship(ctx, tx, rel)
	})
}

func (r *RelationshipRepository) UpdateStatus(ctx context.Context, id string, from, to domain.RelationshipStatus, at time.Time) error {
	return r.store.withClaims(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			update relationships set status = $3, updated_at = $4
			where id = $1 and status = $2
		`, id, string(from), string(to), at)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrRelationshipExists
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrConcurrentUpdate
		}
		return nil
	})
}

func (r *RelationshipRepository) list(ctx context.Context, query string, facet domain.FacetID) ([]domain.Relationship, error) {
	var out []domain.Relationship
	err := r.store.withClaims(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, string(facet))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rel, err := scanRelationship(rows)
			if err != nil {
				return err
			}
			out = append(out, *rel)
		}
		return rows.Err()
	})
	return out, err
}

func (r *RelationshipRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Relationship, error) {
	var rel *domain.Relationship
	err := r.store.withClaims(ctx, func(tx *sql.Tx) error {
		var err error
		rel, err = scanRelationship(tx.QueryRowContext(ctx, query, args...))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRelationshipNotFound
	}
	if err != nil {
		return nil, err
	}
	return rel, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRelationship(row rowScanner) (*domain.Relationship, error) {
	var (
		rel            domain.Relationship
		client, vendor string
		status         string
	)
	if err := row.Scan(&rel.ID, &client, &vendor, &status, &rel.CreatedAt, &rel.UpdatedAt); err != nil {
		return nil, err
	}
	rel.ClientFacetID = domain.FacetID(client)
	rel.VendorFacetID = domain.FacetID(vendor)
	rel.Status = domain.RelationshipStatus(status)
	return &rel, nil
}

func insertRelationship(ctx context.Context, tx *sql.Tx, rel *domain.Relationship) error {
	_, err := tx.ExecContext(ctx, `
		insert into relationships(id, client_facet_id, vendor_facet_id, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, rel.ID, string(rel.ClientFacetID), string(rel.VendorFacetID), string(rel.Status), rel.CreatedAt, rel.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrRelationshipExists
	}
	return err
}
