package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Announcement is a moderator-authored platform notice shown to everyone.
type Announcement struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Pinned     bool      `json:"pinned"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type AnnouncementRepository interface {
	List(ctx context.Context, page, perPage int) ([]Announcement, int, error)
	Get(ctx context.Context, id string) (*Announcement, error)
	Create(ctx context.Context, authorID, title, body string, pinned bool) (*Announcement, error)
	Update(ctx context.Context, id, title, body string, pinned bool) (*Announcement, error)
	Delete(ctx context.Context, id string) error
}

type PgAnnouncementRepository struct {
	db *pgxpool.Pool
}

func NewPgAnnouncementRepository(db *pgxpool.Pool) *PgAnnouncementRepository {
	return &PgAnnouncementRepository{db: db}
}

func (r *PgAnnouncementRepository) List(ctx context.Context, page, perPage int) ([]Announcement, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM announcements`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
SELECT a.id, a.author_id, m.display_name, a.title, a.body, a.pinned, a.created_at, a.updated_at
FROM announcements a
JOIN moderators m ON m.id = a.author_id
ORDER BY a.pinned DESC, a.updated_at DESC, a.id DESC
LIMIT $1 OFFSET $2
`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Announcement, 0, perPage)
	for rows.Next() {
		var a Announcement
		if err := rows.Scan(&a.ID, &a.AuthorID, &a.AuthorName, &a.Title, &a.Body, &a.Pinned, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *PgAnnouncementRepository) Get(ctx context.Context, id string) (*Announcement, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	const q = `
SELECT a.id, a.author_id, m.display_name, a.title, a.body, a.pinned, a.created_at, a.updated_at
FROM announcements a
JOIN moderators m ON m.id = a.author_id
WHERE a.id = $1`
	var a Announcement
	if err := r.db.QueryRow(ctx, q, id).Scan(&a.ID, &a.AuthorID, &a.AuthorName, &a.Title, &a.Body, &a.Pinned, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PgAnnouncementRepository) Create(ctx context.Context, authorID, title, body string, pinned bool) (*Announcement, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	const q = `
INSERT INTO announcements (id, author_id, title, body, pinned)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`
	a := Announcement{ID: uuid.NewString(), AuthorID: authorID, Title: title, Body: body, Pinned: pinned}
	if err := r.db.QueryRow(ctx, q, a.ID, authorID, title, body, pinned).Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PgAnnouncementRepository) Update(ctx context.Context, id, title, body string, pinned bool) (*Announcement, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	const q = `
UPDATE announcements SET title=$2, body=$3, pinned=$4, updated_at=now()
WHERE id=$1
RETURNING author_id, created_at, updated_at`
	a := Announcement{ID: id, Title: title, Body: body, Pinned: pinned}
	if err := r.db.QueryRow(ctx, q, id, title, body, pinned).Scan(&a.AuthorID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PgAnnouncementRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	tag, err := r.db.Exec(ctx, `DELETE FROM announcements WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("announcement not found")
	}
	return nil
}
