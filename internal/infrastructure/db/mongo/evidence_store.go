package mongo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

const (
	evidenceBucket     = "evidence"
	defaultLinkTTL     = 15 * time.Minute
	evidenceTokenScope = "evidence:read"
)

// EvidenceConfig configures the signed download links.
type EvidenceConfig struct {
	// BaseURL is the public download endpoint; the token is added as a query parameter.
	BaseURL string
	Secret  []byte
	LinkTTL time.Duration
}

// EvidenceStore keeps evidence files in GridFS and hands out HMAC signed,
// time-limited download links. Files are addressed by their storage path.
type EvidenceStore struct {
	db  *mongo.Database
	cfg EvidenceConfig
	now func() time.Time
}

var _ ports.EvidenceStore = (*EvidenceStore)(nil)

func NewEvidenceStore(db *mongo.Database, cfg EvidenceConfig) (*EvidenceStore, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("evidence store: signing secret is required")
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = defaultLinkTTL
	}
	return &EvidenceStore{db: db, cfg: cfg, now: time.Now}, nil
}

// bucket returns a bucket bound to ctx's deadline. Deadlines are per bucket,
// so each call gets its own.
func (s *EvidenceStore) bucket(ctx context.Context) (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(s.db, options.GridFSBucket().SetName(evidenceBucket))
	if err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTimeout)
	}
	if err := b.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := b.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *EvidenceStore) Upload(ctx context.Context, path string, r io.Reader) error {
	b, err := s.bucket(ctx)
	if err != nil {
		return err
	}
	if _, err := b.UploadFromStream(path, r); err != nil {
		return fmt.Errorf("upload evidence: %w", err)
	}
	return nil
}

func (s *EvidenceStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	b, err := s.bucket(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := b.OpenDownloadStreamByName(path)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, domain.ErrEvidenceNotFound
		}
		return nil, err
	}
	return stream, nil
}

type evidenceClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// SignedURL issues a link that grants read access to path until it expires.
func (s *EvidenceStore) SignedURL(_ context.Context, path string) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.cfg.LinkTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, evidenceClaims{
		Path: path,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   evidenceTokenScope,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(s.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign evidence link: %w", err)
	}
	return s.cfg.BaseURL + "?token=" + url.QueryEscape(signed), exp, nil
}

// ResolveToken validates a link token. Any invalid or expired token is
// reported as ErrEvidenceNotFound.
func (s *EvidenceStore) ResolveToken(token string) (string, error) {
	var claims evidenceClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithSubject(evidenceTokenScope),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.Path == "" {
		return "", domain.ErrEvidenceNotFound
	}
	return claims.Path, nil
}
