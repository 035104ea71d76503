package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Badge is an award granted to a member by the badge worker.
type Badge struct {
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	AwardedAt time.Time `json:"awarded_at"`
}

// BadgeRepository persists badge awards and the counters the rules read.
type BadgeRepository interface {
	// Award grants a badge idempotently; awarding the same slug twice to
	// the same member is a no-op. Returns true when a new row was written.
	Award(ctx context.Context, memberID, slug, name string, now time.Time) (bool, error)
	ListByMember(ctx context.Context, memberID string) ([]Badge, error)
	CountArticlesByAuthor(ctx context.Context, memberID string) (int, error)
	CountQuestionsByAuthor(ctx context.Context, memberID string) (int, error)
	CountAnswersByAuthor(ctx context.Context, memberID string) (int, error)
	CountReportsByReporter(ctx context.Context, memberID string) (int, error)
}

// PgBadgeRepository implements BadgeRepository using pgxpool.
type PgBadgeRepository struct {
	db *pgxpool.Pool
}

func NewPgBadgeRepository(db *pgxpool.Pool) *PgBadgeRepository {
	return &PgBadgeRepository{db: db}
}

func (r *PgBadgeRepository) Award(ctx context.Context, memberID, slug, name string, now time.Time) (bool, error) {
	const q = `
INSERT INTO member_badges (id, member_id, slug, name, awarded_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (member_id, slug) DO NOTHING
`
	tag, err := r.db.Exec(ctx, q, uuid.NewString(), memberID, slug, name, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgBadgeRepository) ListByMember(ctx context.Context, memberID string) ([]Badge, error) {
	rows, err := r.db.Query(ctx, `
SELECT slug, name, awarded_at FROM member_badges WHERE member_id=$1 ORDER BY awarded_at
`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var badges []Badge
	for rows.Next() {
		var b Badge
		if err := rows.Scan(&b.Slug, &b.Name, &b.AwardedAt); err != nil {
			return nil, err
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

func (r *PgBadgeRepository) CountArticlesByAuthor(ctx context.Context, memberID string) (int, error) {
	return r.countBy(ctx, `SELECT COUNT(*) FROM articles WHERE author_id=$1 AND NOT hidden`, memberID)
}

func (r *PgBadgeRepository) CountQuestionsByAuthor(ctx context.Context, memberID string) (int, error) {
	return r.countBy(ctx, `SELECT COUNT(*) FROM questions WHERE author_id=$1 AND NOT hidden`, memberID)
}

func (r *PgBadgeRepository) CountAnswersByAuthor(ctx context.Context, memberID string) (int, error) {
	return r.countBy(ctx, `SELECT COUNT(*) FROM answers WHERE author_id=$1`, memberID)
}

func (r *PgBadgeRepository) CountReportsByReporter(ctx context.Context, memberID string) (int, error) {
	return r.countBy(ctx, `SELECT COUNT(*) FROM reports WHERE reporter_id=$1`, memberID)
}

func (r *PgBadgeRepository) countBy(ctx context.Context, q, memberID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, q, memberID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
