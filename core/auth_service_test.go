package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakePrincipalRepo is an in-memory PrincipalRepository. ApplyLoginFailure
// runs under the mutex so it is atomic the way the SQL implementation is.
type fakePrincipalRepo struct {
	mu         sync.Mutex
	principals map[string]*Principal // key: kind + "/" + email
	byID       map[string]*Principal // key: kind + "/" + id
	nextID     int
}

func newFakePrincipalRepo() *fakePrincipalRepo {
	return &fakePrincipalRepo{
		principals: make(map[string]*Principal),
		byID:       make(map[string]*Principal),
	}
}

func (r *fakePrincipalRepo) add(kind PrincipalKind, email, password string, active bool) *Principal {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, err := HashPassword(password)
	if err != nil {
		panic(err)
	}
	r.nextID++
	p := &Principal{
		ID:           fmt.Sprintf("%s-%d", kind, r.nextID),
		Kind:         kind,
		Email:        NormalizeEmail(email),
		DisplayName:  "Test " + email,
		PasswordHash: hash,
		Active:       active,
		CreatedAt:    time.Now(),
	}
	r.principals[string(kind)+"/"+p.Email] = p
	r.byID[string(kind)+"/"+p.ID] = p
	return p
}

func (r *fakePrincipalRepo) Create(ctx context.Context, kind PrincipalKind, email, displayName, passwordHash string) (*Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = NormalizeEmail(email)
	if _, ok := r.principals[string(kind)+"/"+email]; ok {
		return nil, ErrEmailTaken
	}
	r.nextID++
	p := &Principal{
		ID:           fmt.Sprintf("%s-%d", kind, r.nextID),
		Kind:         kind,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	r.principals[string(kind)+"/"+email] = p
	r.byID[string(kind)+"/"+p.ID] = p
	return p, nil
}

func (r *fakePrincipalRepo) FindActiveByEmail(ctx context.Context, kind PrincipalKind, email string) (*Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[string(kind)+"/"+NormalizeEmail(email)]
	if !ok || !p.Active {
		return nil, ErrPrincipalNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePrincipalRepo) FindByID(ctx context.Context, kind PrincipalKind, id string) (*Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[string(kind)+"/"+id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePrincipalRepo) ApplyLoginFailure(ctx context.Context, kind PrincipalKind, id string, policy LockoutPolicy, now time.Time) (LockoutState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[string(kind)+"/"+id]
	if !ok {
		return LockoutState{}, ErrPrincipalNotFound
	}
	state := LockoutState{FailedAttempts: p.FailedAttempts, LockedUntil: p.LockedUntil}
	state = state.OnFailure(policy, now)
	p.FailedAttempts = state.FailedAttempts
	p.LockedUntil = state.LockedUntil
	return state, nil
}

func (r *fakePrincipalRepo) RecordLoginSuccess(ctx context.Context, kind PrincipalKind, id, ip string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[string(kind)+"/"+id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.FailedAttempts = 0
	p.LockedUntil = nil
	p.LastLoginIP = ip
	t := now
	p.LastLoginAt = &t
	return nil
}

func (r *fakePrincipalRepo) SetActive(ctx context.Context, kind PrincipalKind, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[string(kind)+"/"+id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.Active = active
	return nil
}

func (r *fakePrincipalRepo) List(ctx context.Context, kind PrincipalKind, page, perPage int) ([]AdminPrincipalListItem, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []AdminPrincipalListItem
	for _, p := range r.byID {
		if p.Kind != kind {
			continue
		}
		items = append(items, AdminPrincipalListItem{
			ID:          p.ID,
			Email:       p.Email,
			DisplayName: p.DisplayName,
			Active:      p.Active,
			CreatedAt:   p.CreatedAt,
		})
	}
	return items, len(items), nil
}

func (r *fakePrincipalRepo) HasAny(ctx context.Context, kind PrincipalKind) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if p.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePrincipalRepo) state(kind PrincipalKind, id string) LockoutState {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.byID[string(kind)+"/"+id]
	return LockoutState{FailedAttempts: p.FailedAttempts, LockedUntil: p.LockedUntil}
}

func testAuthService(repo *fakePrincipalRepo) *AuthService {
	policy := LockoutPolicy{MaxAttempts: 5, LockDuration: 10 * time.Minute}
	return NewAuthService(repo, testCodec(), policy, policy)
}

func TestLoginSuccess(t *testing.T) {
	repo := newFakePrincipalRepo()
	p := repo.add(KindMember, "alice@example.com", "correct horse", true)
	svc := testAuthService(repo)

	res, err := svc.Login(context.Background(), KindMember, "Alice@Example.com ", "correct horse", "203.0.113.9")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if res.Principal.ID != p.ID {
		t.Fatalf("got principal %s, want %s", res.Principal.ID, p.ID)
	}
	claims, err := testCodec().Verify(res.Token, KindMember)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.PrincipalID != p.ID {
		t.Fatalf("token pid = %s, want %s", claims.PrincipalID, p.ID)
	}

	stored, _ := repo.FindByID(context.Background(), KindMember, p.ID)
	if stored.LastLoginIP != "203.0.113.9" || stored.LastLoginAt == nil {
		t.Fatalf("login metadata not recorded: %+v", stored)
	}
}

func TestLoginUnknownEmailAndWrongPasswordIndistinguishable(t *testing.T) {
	repo := newFakePrincipalRepo()
	repo.add(KindMember, "alice@example.com", "correct horse", true)
	svc := testAuthService(repo)
	ctx := context.Background()

	_, errUnknown := svc.Login(ctx, KindMember, "nobody@example.com", "whatever", "")
	_, errWrong := svc.Login(ctx, KindMember, "alice@example.com", "wrong", "")
	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", errUnknown)
	}
	if !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", errWrong)
	}
}

func TestLoginLocksAfterMaxAttempts(t *testing.T) {
	repo := newFakePrincipalRepo()
	p := repo.add(KindMember, "alice@example.com", "correct horse", true)
	svc := testAuthService(repo)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Login(ctx, KindMember, "alice@example.com", "wrong", ""); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: got %v", i+1, err)
		}
	}

	// even the right password is rejected while locked
	_, err := svc.Login(ctx, KindMember, "alice@example.com", "correct horse", "")
	var locked *AccountLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected AccountLockedError, got %v", err)
	}
	if locked.RetryAfter <= 0 || locked.RetryAfter > 10*time.Minute {
		t.Fatalf("RetryAfter out of range: %v", locked.RetryAfter)
	}

	// rejected while locked must not advance the counter
	before := repo.state(KindMember, p.ID)
	_, _ = svc.Login(ctx, KindMember, "alice@example.com", "wrong", "")
	after := repo.state(KindMember, p.ID)
	if after.FailedAttempts != before.FailedAttempts {
		t.Fatalf("locked attempt advanced counter: %d -> %d", before.FailedAttempts, after.FailedAttempts)
	}
}

func TestLoginSuccessClearsCounter(t *testing.T) {
	repo := newFakePrincipalRepo()
	p := repo.add(KindMember, "alice@example.com", "correct horse", true)
	svc := testAuthService(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = svc.Login(ctx, KindMember, "alice@example.com", "wrong", "")
	}
	if _, err := svc.Login(ctx, KindMember, "alice@example.com", "correct horse", ""); err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if st := repo.state(KindMember, p.ID); st.FailedAttempts != 0 || st.LockedUntil != nil {
		t.Fatalf("counter not cleared after success: %+v", st)
	}
}

func TestLoginKindsAreIsolated(t *testing.T) {
	repo := newFakePrincipalRepo()
	repo.add(KindMember, "dual@example.com", "member pass", true)
	repo.add(KindModerator, "dual@example.com", "mod pass", true)
	svc := testAuthService(repo)
	ctx := context.Background()

	if _, err := svc.Login(ctx, KindModerator, "dual@example.com", "member pass", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("member password accepted for moderator login: %v", err)
	}
	res, err := svc.Login(ctx, KindModerator, "dual@example.com", "mod pass", "")
	if err != nil {
		t.Fatalf("moderator login error: %v", err)
	}
	if _, err := testCodec().Verify(res.Token, KindMember); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("moderator token verified as member")
	}
}

func TestConcurrentFailuresCountFully(t *testing.T) {
	repo := newFakePrincipalRepo()
	p := repo.add(KindMember, "alice@example.com", "correct horse", true)
	svc := testAuthService(repo)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Login(ctx, KindMember, "alice@example.com", "wrong", "")
		}()
	}
	wg.Wait()

	st := repo.state(KindMember, p.ID)
	if st.LockedUntil == nil {
		t.Fatalf("expected a lock after %d concurrent failures, state=%+v", attempts, st)
	}
	// every pre-lock failure must be counted; attempts arriving after the
	// lock are rejected without touching the counter, so the recorded count
	// lands in [MaxAttempts, attempts]
	if st.FailedAttempts < 5 || st.FailedAttempts > attempts {
		t.Fatalf("FailedAttempts = %d, want between 5 and %d", st.FailedAttempts, attempts)
	}
}
