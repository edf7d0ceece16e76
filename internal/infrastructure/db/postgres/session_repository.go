package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

// SessionRepository stores server-side sessions. Lookups by id happen before
// the principal is known, so callers run them under service claims.
type SessionRepository struct {
	store *Store
	now   func() time.Time
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(store *Store) *SessionRepository {
	return &SessionRepository{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	return r.store.withClaims(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			insert into sessions(id, user_id, tenant_id, user_role, active_role, active_counterparty,
				access_token, refresh_token, token_expires_at, auth_method, expires_at, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, s.ID, s.UserID, s.TenantID, s.UserRole,
			string(s.Active.Role), string(s.Active.CounterpartyFacetID),
			s.Tokens.AccessToken, s.Tokens.RefreshToken, nullTime(s.Tokens.ExpiresAt),
			string(s.AuthMethod), s.ExpiresAt, s.CreatedAt, s.UpdatedAt)
		return err
	})
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	var (
		s            domain.Session
		role, cp     string
		method       string
		tokenExpires sql.NullTime
	)
	err := r.store.withClaims(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			select id, user_id, tenant_id, user_role, active_role, active_counterparty,
				access_token, refresh_token, token_expires_at, auth_method, expires_at, created_at, updated_at
			from sessions
			where id = $1 and expires_at > $2
		`, id, r.now()).Scan(
			&s.ID, &s.UserID, &s.TenantID, &s.UserRole, &role, &cp,
			&s.Tokens.AccessToken, &s.Tokens.RefreshToken, &tokenExpires,
			&method, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt,
		)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Active = domain.ActiveContext{Role: domain.FacetRole(role), CounterpartyFacetID: domain.FacetID(cp)}
	s.AuthMethod = domain.AuthMethod(method)
	if tokenExpires.Valid {
		s.Tokens.ExpiresAt = tokenExpires.Time
	}
	return &s, nil
}

func (r *SessionRepository) UpdateActiveContext(ctx context.Context, id string, active domain.ActiveContext, at time.Time) error {
	return r.update(ctx, `
		update sessions set active_role = $2, active_counterparty = $3, updated_at = $4
		where id = $1
	`, id, string(active.Role), string(active.CounterpartyFacetID), at)
}

func (r *SessionRepository) UpdateTokens(ctx context.Context, id string, tokens domain.ProviderTokens, at time.Time) error {
	return r.update(ctx, `
		update sessions set access_token = $2, refresh_token = $3, token_expires_at = $4, updated_at = $5
		where id = $1
	`, id, tokens.AccessToken, tokens.RefreshToken, nullTime(tokens.ExpiresAt), at)
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	return r.store.withClaims(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `delete from sessions where id = $1`, id)
		return err
	})
}

func (r *SessionRepository) update(ctx context.Context, query string, args ...any) error {
	return r.store.withClaims(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrSessionNotFound
		}
		return nil
	})
}
