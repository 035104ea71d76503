package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminPrincipalListItem is a projection for admin account listing (no
// password hash).
type AdminPrincipalListItem struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	DisplayName    string     `json:"display_name"`
	Active         bool       `json:"active"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until"`
	LastLoginAt    *time.Time `json:"last_login_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// PrincipalRepository is the narrow credential-store contract the auth
// core depends on. The two kinds are stored in separate tables; every
// method takes the kind explicitly so a member id can never address a
// moderator row.
type PrincipalRepository interface {
	Create(ctx context.Context, kind PrincipalKind, email, displayName, passwordHash string) (*Principal, error)
	FindActiveByEmail(ctx context.Context, kind PrincipalKind, email string) (*Principal, error)
	FindByID(ctx context.Context, kind PrincipalKind, id string) (*Principal, error)
	// ApplyLoginFailure applies the lockout OnFailure transition as one
	// conditional UPDATE and returns the resulting state. Concurrent
	// failures against the same principal serialize on the row; counts are
	// never lost to read-modify-write races.
	ApplyLoginFailure(ctx context.Context, kind PrincipalKind, id string, policy LockoutPolicy, now time.Time) (LockoutState, error)
	// RecordLoginSuccess clears the counters and stamps last-login
	// metadata in one UPDATE.
	RecordLoginSuccess(ctx context.Context, kind PrincipalKind, id, ip string, now time.Time) error
	SetActive(ctx context.Context, kind PrincipalKind, id string, active bool) error
	List(ctx context.Context, kind PrincipalKind, page, perPage int) ([]AdminPrincipalListItem, int, error)
	HasAny(ctx context.Context, kind PrincipalKind) (bool, error)
}

// storeTimeout bounds every credential-store round trip so a slow
// database cannot hang request handling.
const storeTimeout = 3 * time.Second

// PgPrincipalRepository implements PrincipalRepository using pgxpool.
type PgPrincipalRepository struct {
	db *pgxpool.Pool
}

func NewPgPrincipalRepository(db *pgxpool.Pool) *PgPrincipalRepository {
	return &PgPrincipalRepository{db: db}
}

// tableFor maps a kind to its table. Kinds are a closed set; anything else
// is a programming error surfaced as such.
func tableFor(kind PrincipalKind) (string, error) {
	switch kind {
	case KindMember:
		return "members", nil
	case KindModerator:
		return "moderators", nil
	default:
		return "", fmt.Errorf("unknown principal kind %q", kind)
	}
}

const principalColumns = `id, email, display_name, password_hash, failed_attempts, locked_until, active, last_login_at, last_login_ip, created_at`

func scanPrincipal(row pgx.Row, kind PrincipalKind) (*Principal, error) {
	var p Principal
	var lastIP *string
	if err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &p.PasswordHash, &p.FailedAttempts,
		&p.LockedUntil, &p.Active, &p.LastLoginAt, &lastIP, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, err
	}
	if lastIP != nil {
		p.LastLoginIP = *lastIP
	}
	p.Kind = kind
	return &p, nil
}

func (r *PgPrincipalRepository) Create(ctx context.Context, kind PrincipalKind, email, displayName, passwordHash string) (*Principal, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	id := uuid.NewString()
	email = NormalizeEmail(email)
	q := fmt.Sprintf(`INSERT INTO %s (id, email, display_name, password_hash) VALUES ($1,$2,$3,$4) RETURNING created_at`, table)
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, q, id, email, displayName, passwordHash).Scan(&createdAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		// fallback for stores that do not surface sqlstate
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &Principal{
		ID:          id,
		Kind:        kind,
		Email:       email,
		DisplayName: displayName,
		Active:      true,
		CreatedAt:   createdAt,
	}, nil
}

func (r *PgPrincipalRepository) FindActiveByEmail(ctx context.Context, kind PrincipalKind, email string) (*Principal, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	q := fmt.Sprintf(`SELECT %s FROM %s WHERE email=$1 AND active`, principalColumns, table)
	return scanPrincipal(r.db.QueryRow(ctx, q, NormalizeEmail(email)), kind)
}

func (r *PgPrincipalRepository) FindByID(ctx context.Context, kind PrincipalKind, id string) (*Principal, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1`, principalColumns, table)
	return scanPrincipal(r.db.QueryRow(ctx, q, id), kind)
}

// ApplyLoginFailure expresses the OnFailure transition in SQL so the
// increment and the maybe-lock decision commit atomically. An elapsed lock
// restarts the count at 1; reaching the threshold writes the new window.
func (r *PgPrincipalRepository) ApplyLoginFailure(ctx context.Context, kind PrincipalKind, id string, policy LockoutPolicy, now time.Time) (LockoutState, error) {
	table, err := tableFor(kind)
	if err != nil {
		return LockoutState{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	lockUntil := now.Add(policy.LockDuration)
	q := fmt.Sprintf(`
UPDATE %s SET
  failed_attempts = CASE
    WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
    ELSE failed_attempts + 1
  END,
  locked_until = CASE
    WHEN (CASE
      WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
      ELSE failed_attempts + 1
    END) >= $3 THEN $4
    WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN NULL
    ELSE locked_until
  END
WHERE id = $1
RETURNING failed_attempts, locked_until
`, table)

	var state LockoutState
	if err := r.db.QueryRow(ctx, q, id, now, policy.MaxAttempts, lockUntil).Scan(&state.FailedAttempts, &state.LockedUntil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LockoutState{}, ErrPrincipalNotFound
		}
		return LockoutState{}, err
	}
	return state, nil
}

func (r *PgPrincipalRepository) RecordLoginSuccess(ctx context.Context, kind PrincipalKind, id, ip string, now time.Time) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	q := fmt.Sprintf(`
UPDATE %s SET failed_attempts = 0, locked_until = NULL, last_login_at = $2, last_login_ip = $3
WHERE id = $1
`, table)
	tag, err := r.db.Exec(ctx, q, id, now, ip)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

func (r *PgPrincipalRepository) SetActive(ctx context.Context, kind PrincipalKind, id string, active bool) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, fmt.Sprintf(`UPDATE %s SET active=$2 WHERE id=$1`, table), id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// List returns paginated accounts for the admin surface.
func (r *PgPrincipalRepository) List(ctx context.Context, kind PrincipalKind, page, perPage int) ([]AdminPrincipalListItem, int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, 0, err
	}
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var total int
	if err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := fmt.Sprintf(`
SELECT id, email, display_name, active, failed_attempts, locked_until, last_login_at, created_at
FROM %s ORDER BY created_at, id LIMIT $1 OFFSET $2
`, table)
	rows, err := r.db.Query(ctx, q, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]AdminPrincipalListItem, 0, perPage)
	for rows.Next() {
		var it AdminPrincipalListItem
		if err := rows.Scan(&it.ID, &it.Email, &it.DisplayName, &it.Active, &it.FailedAttempts,
			&it.LockedUntil, &it.LastLoginAt, &it.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func (r *PgPrincipalRepository) HasAny(ctx context.Context, kind PrincipalKind) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var one int
	if err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT 1 FROM %s LIMIT 1`, table)).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
