package core

import (
	"testing"
	"time"
)

func TestLockoutFailuresAccumulateAndLock(t *testing.T) {
	policy := LockoutPolicy{MaxAttempts: 5, LockDuration: 10 * time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	state := LockoutState{}
	for i := 1; i < policy.MaxAttempts; i++ {
		state = state.OnFailure(policy, now)
		if state.FailedAttempts != i {
			t.Fatalf("after %d failures got FailedAttempts=%d", i, state.FailedAttempts)
		}
		if state.Locked(now) {
			t.Fatalf("locked after only %d failures", i)
		}
	}

	state = state.OnFailure(policy, now)
	if !state.Locked(now) {
		t.Fatalf("expected lock after %d failures", policy.MaxAttempts)
	}
	if got := state.RetryAfter(now); got != policy.LockDuration {
		t.Fatalf("RetryAfter = %v, want %v", got, policy.LockDuration)
	}
}

func TestLockoutExpiresByTimePassing(t *testing.T) {
	policy := LockoutPolicy{MaxAttempts: 2, LockDuration: 10 * time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	state := LockoutState{}.OnFailure(policy, now).OnFailure(policy, now)
	if !state.Locked(now) {
		t.Fatalf("expected locked state")
	}

	later := now.Add(policy.LockDuration)
	if state.Locked(later) {
		t.Fatalf("lock should have expired at the window boundary")
	}
	if got := state.RetryAfter(later); got != 0 {
		t.Fatalf("RetryAfter after expiry = %v, want 0", got)
	}
}

func TestLockoutFailureAfterExpiredWindowStartsFresh(t *testing.T) {
	policy := LockoutPolicy{MaxAttempts: 3, LockDuration: 10 * time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	state := LockoutState{}
	for i := 0; i < policy.MaxAttempts; i++ {
		state = state.OnFailure(policy, now)
	}
	if !state.Locked(now) {
		t.Fatalf("expected locked state")
	}

	// first failure after the window elapsed counts as 1, not MaxAttempts+1
	later := now.Add(policy.LockDuration + time.Minute)
	state = state.OnFailure(policy, later)
	if state.FailedAttempts != 1 {
		t.Fatalf("FailedAttempts after stale lock = %d, want 1", state.FailedAttempts)
	}
	if state.Locked(later) {
		t.Fatalf("should not be re-locked after a single fresh failure")
	}
}

func TestLockoutSuccessClearsState(t *testing.T) {
	policy := LockoutPolicy{MaxAttempts: 5, LockDuration: 10 * time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	state := LockoutState{}.OnFailure(policy, now).OnFailure(policy, now).OnSuccess()
	if state.FailedAttempts != 0 || state.LockedUntil != nil {
		t.Fatalf("OnSuccess left residue: %+v", state)
	}
}
