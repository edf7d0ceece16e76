package domain

import (
	"errors"
	"fmt"
	"time"
)

// Authentication and session errors.
var (
	ErrAuthenticationFailure    = errors.New("invalid credentials")
	ErrReauthenticationRequired = errors.New("re-authentication required")
	ErrClaimsSyncFailure        = errors.New("claims synchronization failed")
	ErrUnauthenticated          = errors.New("not authenticated")
	ErrSessionNotFound          = errors.New("session not found")
	ErrRateLimited              = errors.New("rate limit exceeded")
)

// Authorization errors. ErrAuthorizationDenied is only used before a record is
// touched (e.g. switching into a role the tenant does not hold). Record-level
// ownership failures are reported as not found.
var (
	ErrAuthorizationDenied      = errors.New("authorization denied")
	ErrContextSelectionRequired = errors.New("context selection required")
)

// ErrNotFound is the parent of every record-level not-found error. A record
// that exists but is not owned by the caller's active facet yields the same error.
var ErrNotFound = errors.New("not found")

var (
	ErrCaseNotFound         = fmt.Errorf("case %w", ErrNotFound)
	ErrPaymentNotFound      = fmt.Errorf("payment %w", ErrNotFound)
	ErrInvoiceNotFound      = fmt.Errorf("invoice %w", ErrNotFound)
	ErrRelationshipNotFound = fmt.Errorf("relationship %w", ErrNotFound)
	ErrInvitationNotFound   = fmt.Errorf("invitation %w", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrTenantNotFound       = fmt.Errorf("tenant %w", ErrNotFound)
	ErrEvidenceNotFound     = fmt.Errorf("evidence %w", ErrNotFound)
)

// State machine and invariant errors.
var (
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrConcurrentUpdate     = errors.New("record was modified concurrently")
	ErrRelationshipExists   = errors.New("an active relationship already exists for this pair")
	ErrRelationshipInactive = errors.New("relationship is not active")
	ErrSelfRelationship     = errors.New("a tenant cannot be its own counterparty")
	ErrInvitationNotPending = errors.New("invitation is no longer pending")
	ErrInvitationExpired    = errors.New("invitation has expired")
	ErrUserExists           = errors.New("user already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrScopeRequired        = errors.New("owner scope required")
)

// InvalidTransitionError names the illegal pair. It matches ErrInvalidTransition
// under errors.Is.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition.Error(), e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// RateLimitError reports how long the caller should wait. It matches
// ErrRateLimited under errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
