// Package rls carries the principal that row-level security policies evaluate.
// Repositories read it from the context and publish it to the database as
// request.jwt.claims at the start of every transaction.
package rls

import (
	"context"
	"encoding/json"

	"github.com/opsportal/portal/internal/core/domain"
)

// Database roles seen by the policies.
const (
	RoleAuthenticated = "authenticated"
	RoleService       = "service"
	RoleAnonymous     = "anon"
)

// Claims is the JSON document published to the database.
type Claims struct {
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	UserRole string `json:"user_role,omitempty"`
}

type ctxKey struct{}

// WithUser scopes ctx to a signed-in principal.
func WithUser(ctx context.Context, c domain.Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, Claims{
		Role:     RoleAuthenticated,
		TenantID: c.TenantID,
		UserID:   c.UserID,
		UserRole: c.UserRole,
	})
}

// WithService marks ctx as acting for the platform itself, e.g. while
// resolving credentials before any tenant is known.
func WithService(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, Claims{Role: RoleService})
}

// FromContext returns the claims on ctx. A context without claims is anonymous
// and the policies grant it nothing.
func FromContext(ctx context.Context) Claims {
	if c, ok := ctx.Value(ctxKey{}).(Claims); ok {
		return c
	}
	return Claims{Role: RoleAnonymous}
}

// JSON encodes the claims on ctx.
func JSON(ctx context.Context) (string, error) {
	b, err := json.Marshal(FromContext(ctx))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
