package ports

import (
	"context"
	"io"
	"time"
)

// EvidenceStore stores case evidence files.
type EvidenceStore interface {
	Upload(ctx context.Context, path string, r io.Reader) error
	// SignedURL returns a time-limited download URL for path.
	SignedURL(ctx context.Context, path string) (string, time.Time, error)
	// ResolveToken validates a signed URL token and returns the path it grants.
	ResolveToken(token string) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}
