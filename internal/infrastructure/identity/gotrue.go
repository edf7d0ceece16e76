// Package identity is the client for the external GoTrue-compatible
// authentication service.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

// Config holds the provider endpoint and keys.
type Config struct {
	BaseURL string
	// AnonKey is sent as the apikey header on every request.
	AnonKey string
	// ServiceKey authorizes admin calls such as writing claims.
	ServiceKey string
	// JWTSecret verifies access tokens locally.
	JWTSecret []byte
	Timeout   time.Duration
}

// Client implements ports.IdentityProvider over the provider's REST API.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

var _ ports.IdentityProvider = (*Client)(nil)

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		now:  time.Now,
	}
}

type userResponse struct {
	ID          string        `json:"id"`
	Email       string        `json:"email"`
	AppMetadata domain.Claims `json:"app_metadata"`
}

func (u userResponse) toProvider() *ports.ProviderUser {
	return &ports.ProviderUser{ID: u.ID, Email: u.Email, Claims: u.AppMetadata}
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         userResponse `json:"user"`
}

func (t tokenResponse) session(now time.Time) *ports.ProviderSession {
	exp := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	if t.ExpiresAt > 0 {
		exp = time.Unix(t.ExpiresAt, 0).UTC()
	}
	return &ports.ProviderSession{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken, ExpiresAt: exp}
}

// apiError is the provider's error body. Older deployments use error and
// error_description, newer ones code and msg.
type apiError struct {
	status      int
	Name        string `json:"error"`
	Description string `json:"error_description"`
	ErrorCode   string `json:"error_code"`
	Msg         string `json:"msg"`
}

func (e *apiError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Description
	}
	if msg == "" {
		msg = e.Name
	}
	return fmt.Sprintf("identity provider: status %d: %s", e.status, msg)
}

func (e *apiError) userExists() bool {
	if e.ErrorCode == "user_already_exists" || e.ErrorCode == "email_exists" {
		return true
	}
	return e.status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(e.Msg), "already registered")
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, target any, admin bool) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.AnonKey)
	if admin {
		req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &apiError{status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// clientError reports whether the provider rejected the request itself, as
// opposed to failing to serve it.
func clientError(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.status >= 400 && apiErr.status < 500
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*ports.ProviderUser, *ports.ProviderSession, error) {
	var tok tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}},
		map[string]string{"email": email, "password": password}, &tok, false)
	if err != nil {
		if clientError(err) {
			return nil, nil, domain.ErrAuthenticationFailure
		}
		return nil, nil, err
	}
	return tok.User.toProvider(), tok.session(c.now()), nil
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*ports.ProviderUser, error) {
	// Depending on the email confirmation setting the provider answers with a
	// bare user or with a session wrapping it.
	var raw struct {
		userResponse
		User *userResponse `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/signup", nil,
		map[string]string{"email": email, "password": password}, &raw, false)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.userExists() {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}
	if raw.User != nil {
		return raw.User.toProvider(), nil
	}
	return raw.userResponse.toProvider(), nil
}

// AdminSetClaims replaces the user's app metadata with claims.
func (c *Client) AdminSetClaims(ctx context.Context, providerUserID string, claims domain.Claims) (*ports.ProviderUser, error) {
	var u userResponse
	err := c.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(providerUserID), nil,
		map[string]any{"app_metadata": claims}, &u, true)
	if err != nil {
		return nil, fmt.Errorf("set claims: %w", err)
	}
	return u.toProvider(), nil
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*ports.ProviderSession, error) {
	var tok tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}},
		map[string]string{"refresh_token": refreshToken}, &tok, false)
	if err != nil {
		if clientError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrReauthenticationRequired, err)
		}
		return nil, err
	}
	return tok.session(c.now()), nil
}

type accessClaims struct {
	Email       string        `json:"email"`
	AppMetadata domain.Claims `json:"app_metadata"`
	jwt.RegisteredClaims
}

// VerifyToken checks the signature and expiry locally with the shared secret.
func (c *Client) VerifyToken(_ context.Context, accessToken string) (*ports.ProviderPrincipal, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(accessToken, &claims, func(*jwt.Token) (any, error) {
		return c.cfg.JWTSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, domain.ErrUnauthenticated
	}
	return &ports.ProviderPrincipal{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Claims:    claims.AppMetadata,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (c *Client) SendPasswordReset(ctx context.Context, email, redirectURL string) error {
	var q url.Values
	if redirectURL != "" {
		q = url.Values{"redirect_to": {redirectURL}}
	}
	return c.do(ctx, http.MethodPost, "/recover", q, map[string]string{"email": email}, nil, false)
}

// ExchangeOAuthCode completes a PKCE authorization code flow.
func (c *Client) ExchangeOAuthCode(ctx context.Context, code, verifier string) (*ports.ProviderUser, *ports.ProviderSession, error) {
	var tok tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"pkce"}},
		map[string]string{"auth_code": code, "code_verifier": verifier}, &tok, false)
	if err != nil {
		if clientError(err) {
			return nil, nil, domain.ErrAuthenticationFailure
		}
		return nil, nil, err
	}
	return tok.User.toProvider(), tok.session(c.now()), nil
}
