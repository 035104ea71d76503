package core

import "time"

// Default lockout tuning. Both kinds use the same shape; values are
// configurable per kind via Config.
const (
	DefaultLockoutMaxAttempts = 5
	DefaultLockoutDuration    = 10 * time.Minute
)

// LockoutPolicy is the per-kind brute-force threshold.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// LockoutState is the mutable counter slice of a principal. Transitions
// here are pure; persistence applies them atomically (see
// PrincipalRepository.ApplyLoginFailure).
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// Locked reports whether the state is inside an active lockout window.
// An elapsed window counts as unlocked; the stale LockedUntil is cleared
// by the next transition, not by a background sweep.
func (s LockoutState) Locked(now time.Time) bool {
	return s.LockedUntil != nil && s.LockedUntil.After(now)
}

// RetryAfter returns the remaining lockout window, zero when not locked.
func (s LockoutState) RetryAfter(now time.Time) time.Duration {
	if !s.Locked(now) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// OnFailure returns the state after one failed password check. A stale
// (expired) lock is reset before counting, so the first failure after an
// elapsed window starts a fresh count of 1. Reaching MaxAttempts sets the
// lock window.
func (s LockoutState) OnFailure(p LockoutPolicy, now time.Time) LockoutState {
	next := s
	if next.LockedUntil != nil && !next.LockedUntil.After(now) {
		next.FailedAttempts = 0
		next.LockedUntil = nil
	}
	next.FailedAttempts++
	if next.FailedAttempts >= p.MaxAttempts {
		until := now.Add(p.LockDuration)
		next.LockedUntil = &until
	}
	return next
}

// OnSuccess returns the cleared state after a successful login.
func (s LockoutState) OnSuccess() LockoutState {
	return LockoutState{}
}
