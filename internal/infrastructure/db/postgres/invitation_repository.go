package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

type InvitationRepository struct {
	store *Store
}

var _ ports.InvitationRepository = (*InvitationRepository)(nil)

func NewInvitationRepository(store *Store) *InvitationRepository {
	return &InvitationRepository{store: store}
}

func (r *InvitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	return r.store.withClaims(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			insert into invitations(id, token_hash, inviter_tenant_id, inviter_user_id, inviter_role,
				invitee_email, invitee_facet_id, status, expires_at, created_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, inv.ID, inv.TokenHash, inv.InviterTenantID, inv.InviterUserID, string(inv.InviterRole),
			inv.InviteeEmail, string(inv.InviteeFacetID), string(inv.Status), inv.ExpiresAt, inv.CreatedAt)
		return err
	})
}

func (r *InvitationRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	var (
		inv                 domain.Invitation
		role, facet, status string
		acceptedAt          sql.NullTime
	)
	err := r.store.withClaims(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			select id, token_hash, inviter_tenant_id, inviter_user_id, inviter_role,
				invitee_email, invitee_facet_id, status, expires_at, accepted_at, created_at
			from invitations where token_hash = $1
		`, tokenHash).Scan(
			&inv.ID, &inv.TokenHash, &inv.InviterTenantID, &inv.InviterUserID, &role,
			&inv.InviteeEmail, &facet, &status, &inv.ExpiresAt, &acceptedAt, &inv.CreatedAt,
		)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.InviterRole = domain.FacetRole(role)
	inv.InviteeFacetID = domain.FacetID(facet)
	inv.Status = domain.InvitationStatus(status)
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	return &inv, nil
}

// Accept claims the invitation first so that two concurrent acceptances cannot
// both create a tenant.
func (r *InvitationRepository) Accept(ctx context.Context, in ports.AcceptInvitation) error {
	return r.store.withClaims(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			update invitations set status = 'accepted', accepted_at = $2
			where id = $1 and status = 'pending'
		`, in.InvitationID, in.AcceptedAt)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrInvitationNotPending
		}

		if in.NewTenant != nil {
			if err := insertTenant(ctx, tx, in.NewTenant); err != nil {
				return err
			}
		}
		if in.CreateUser && in.User != nil {
			if err := insertUser(ctx, tx, in.User); err != nil {
				return err
			}
		}
		return insertRelationship(ctx, tx, in.Relationship)
	})
}

func (r *InvitationRepository) Revoke(ctx context.Context, id, inviterTenantID string, at time.Time) error {
	return r.store.withClaims(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			update invitations set status = 'revoked'
			where id = $1 and inviter_tenant_id = $2 and status = 'pending'
		`, id, inviterTenantID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		var status string
		err = tx.QueryRowContext(ctx, `
			select status from invitations where id = $1 and inviter_tenant_id = $2
		`, id, inviterTenantID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrInvitationNotFound
		}
		if err != nil {
			return err
		}
		return domain.ErrInvitationNotPending
	})
}

func (r *InvitationRepository) MarkExpired(ctx context.Context, id string, at time.Time) error {
	return r.store.withClaims(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			update invitations set status = 'expired'
			where id = $1 and status = 'pending' and expires_at <= $2
		`, id, at)
		return err
	})
}
