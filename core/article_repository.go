package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Article is a member-authored post. Hidden articles stay in the store but
// are only visible to moderators.
type Article struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Hidden     bool      `json:"hidden,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ArticleModeration carries the extra fields moderators see on listings.
type ArticleModeration struct {
	Article
	ReportCount int `json:"report_count"`
}

type ArticleRepository interface {
	Create(ctx context.Context, authorID, title, body string) (*Article, error)
	// List returns visible articles; includeHidden widens it to the full
	// moderation view.
	List(ctx context.Context, includeHidden bool, page, perPage int) ([]Article, int, error)
	ListModeration(ctx context.Context, page, perPage int) ([]ArticleModeration, int, error)
	Get(ctx context.Context, id string, includeHidden bool) (*Article, error)
	SetHidden(ctx context.Context, id string, hidden bool) error
}

// PgArticleRepository implements ArticleRepository using pgxpool.
type PgArticleRepository struct {
	db *pgxpool.Pool
}

func NewPgArticleRepository(db *pgxpool.Pool) *PgArticleRepository {
	return &PgArticleRepository{db: db}
}

func (r *PgArticleRepository) Create(ctx context.Context, authorID, title, body string) (*Article, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	id := uuid.NewString()
	const q = `
INSERT INTO articles (id, author_id, title, body) VALUES ($1,$2,$3,$4)
RETURNING created_at, updated_at
`
	var a Article
	if err := r.db.QueryRow(ctx, q, id, authorID, title, body).Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ID = id
	a.AuthorID = authorID
	a.Title = title
	a.Body = body
	return &a, nil
}

func (r *PgArticleRepository) List(ctx context.Context, includeHidden bool, page, perPage int) ([]Article, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	filter := `WHERE NOT a.hidden`
	if includeHidden {
		filter = ``
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM articles a `+filter).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
SELECT a.id, a.author_id, m.display_name, a.title, a.body, a.hidden, a.created_at, a.updated_at
FROM articles a JOIN members m ON m.id = a.author_id `+filter+`
ORDER BY a.created_at DESC, a.id DESC
LIMIT $1 OFFSET $2
`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Article, 0, perPage)
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.AuthorID, &a.AuthorName, &a.Title, &a.Body, &a.Hidden, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// ListModeration is the moderator view: hidden rows included, open report
// counts joined in.
func (r *PgArticleRepository) ListModeration(ctx context.Context, page, perPage int) ([]ArticleModeration, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM articles`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
SELECT a.id, a.author_id, m.display_name, a.title, a.body, a.hidden, a.created_at, a.updated_at,
  (SELECT COUNT(*) FROM reports rp WHERE rp.subject_kind='article' AND rp.subject_id=a.id AND rp.status='open')
FROM articles a JOIN members m ON m.id = a.author_id
ORDER BY a.created_at DESC, a.id DESC
LIMIT $1 OFFSET $2
`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]ArticleModeration, 0, perPage)
	for rows.Next() {
		var a ArticleModeration
		if err := rows.Scan(&a.ID, &a.AuthorID, &a.AuthorName, &a.Title, &a.Body, &a.Hidden, &a.CreatedAt, &a.UpdatedAt, &a.ReportCount); err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *PgArticleRepository) Get(ctx context.Context, id string, includeHidden bool) (*Article, error) {
	q := `
SELECT a.id, a.author_id, m.display_name, a.title, a.body, a.hidden, a.created_at, a.updated_at
FROM articles a JOIN members m ON m.id = a.author_id
WHERE a.id=$1
`
	if !includeHidden {
		q += ` AND NOT a.hidden`
	}
	var a Article
	if err := r.db.QueryRow(ctx, q, id).Scan(&a.ID, &a.AuthorID, &a.AuthorName, &a.Title, &a.Body, &a.Hidden, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, err
	}
	return &a, nil
}

func (r *PgArticleRepository) SetHidden(ctx context.Context, id string, hidden bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE articles SET hidden=$2, updated_at=now() WHERE id=$1`, id, hidden)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
