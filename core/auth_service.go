package core

import (
	"context"
	"strings"
	"time"
)

// LoginResult is what a successful login hands back to the handler.
type LoginResult struct {
	Principal PrincipalSummary
	Token     string
}

// AuthService verifies credentials and issues tokens. Lockout policies are
// independent per kind.
type AuthService struct {
	principals PrincipalRepository
	codec      *TokenCodec
	policies   map[PrincipalKind]LockoutPolicy
	now        func() time.Time
}

func NewAuthService(principals PrincipalRepository, codec *TokenCodec, memberPolicy, moderatorPolicy LockoutPolicy) *AuthService {
	return &AuthService{
		principals: principals,
		codec:      codec,
		policies: map[PrincipalKind]LockoutPolicy{
			KindMember:    memberPolicy,
			KindModerator: moderatorPolicy,
		},
		now: time.Now,
	}
}

// Login authenticates an email/password pair for the given kind.
//
// An unknown email and a wrong password return the identical
// ErrInvalidCredentials; a dummy bcrypt comparison runs on the miss path
// so response timing does not reveal whether the account exists. A locked
// account is rejected before any password comparison and without touching
// its counters. Every wrong-password attempt durably persists the updated
// counter before the error is returned.
func (s *AuthService) Login(ctx context.Context, kind PrincipalKind, email, password, ip string) (LoginResult, error) {
	if !kind.Valid() {
		return LoginResult{}, ErrInvalidCredentials
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	now := s.now()
	p, err := s.principals.FindActiveByEmail(ctx, kind, email)
	if err != nil {
		CheckPassword(password, dummyPasswordHash)
		return LoginResult{}, ErrInvalidCredentials
	}

	state := LockoutState{FailedAttempts: p.FailedAttempts, LockedUntil: p.LockedUntil}
	if state.Locked(now) {
		retry := state.RetryAfter(now)
		return LoginResult{}, &AccountLockedError{RetryAfter: retry}
	}

	if !CheckPassword(password, p.PasswordHash) {
		if _, err := s.principals.ApplyLoginFailure(ctx, kind, p.ID, s.policies[kind], now); err != nil {
			return LoginResult{}, err
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := s.principals.RecordLoginSuccess(ctx, kind, p.ID, ip, now); err != nil {
		return LoginResult{}, err
	}

	token, err := s.codec.Issue(p.ID, kind, now)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Principal: p.Summary(), Token: token}, nil
}
