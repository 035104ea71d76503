package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PrincipalKind separates the two credential universes. Members and
// moderators live in different tables and are signed with different keys;
// a token for one kind never authenticates the other.
type PrincipalKind string

const (
	KindMember    PrincipalKind = "member"
	KindModerator PrincipalKind = "moderator"
)

// Valid reports whether k is one of the two known kinds.
func (k PrincipalKind) Valid() bool {
	return k == KindMember || k == KindModerator
}

// Principal is an authenticatable identity of either kind.
type Principal struct {
	ID             string
	Kind           PrincipalKind
	Email          string
	DisplayName    string
	PasswordHash   string
	FailedAttempts int
	LockedUntil    *time.Time
	Active         bool
	LastLoginAt    *time.Time
	LastLoginIP    string
	CreatedAt      time.Time
}

// PrincipalSummary is the outward projection (no password hash, no counters).
type PrincipalSummary struct {
	ID          string        `json:"id"`
	Kind        PrincipalKind `json:"kind"`
	Email       string        `json:"email"`
	DisplayName string        `json:"display_name"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Summary returns the safe projection of p.
func (p *Principal) Summary() PrincipalSummary {
	return PrincipalSummary{
		ID:          p.ID,
		Kind:        p.Kind,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		CreatedAt:   p.CreatedAt,
	}
}

// NormalizeEmail lowercases and trims an email for lookup and storage.
// Uniqueness is enforced on the normalized form, per kind.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	// ErrInvalidCredentials covers both unknown email and wrong password;
	// callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountBanned is returned for a known but deactivated principal.
	ErrAccountBanned = errors.New("account banned")
	// ErrInvalidToken covers missing, malformed, expired and wrong-kind
	// tokens uniformly.
	ErrInvalidToken = errors.New("invalid token")
	// ErrPrincipalNotFound is returned by repositories on lookup miss.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrEmailTaken is returned on registration against an existing email.
	ErrEmailTaken = errors.New("email already registered")
)

// AccountLockedError rejects a login attempt during an active lockout
// window. RetryAfter is the remaining window, rounded up to whole seconds.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter)
}

// RateLimitedError rejects a request that exceeded a rate policy window.
type RateLimitedError struct {
	Policy     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (%s), retry after %s", e.Policy, e.RetryAfter)
}
