package ports

import (
	"context"
	"time"

	"github.com/opsportal/portal/internal/core/domain"
)

// SessionRepository persists server-side sessions. Updates are plain
// overwrites: the session row is the serialization point and the last write wins.
type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	// FindByID returns ErrSessionNotFound for missing or expired sessions.
	FindByID(ctx context.Context, id string) (*domain.Session, error)
	UpdateActiveContext(ctx context.Context, id string, active domain.ActiveContext, at time.Time) error
	UpdateTokens(ctx context.Context, id string, tokens domain.ProviderTokens, at time.Time) error
	Delete(ctx context.Context, id string) error
}
