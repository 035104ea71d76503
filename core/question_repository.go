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

// Question is a member question thread; Answers hang off it.
type Question struct {
	ID               string    `json:"id"`
	AuthorID         string    `json:"author_id"`
	AuthorName       string    `json:"author_name,omitempty"`
	Title            string    `json:"title"`
	Body             string    `json:"body"`
	Hidden           bool      `json:"hidden,omitempty"`
	AcceptedAnswerID *string   `json:"accepted_answer_id,omitempty"`
	AnswerCount      int       `json:"answer_count"`
	CreatedAt        time.Time `json:"created_at"`
}

type Answer struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"question_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Body       string    `json:"body"`
	Accepted   bool      `json:"accepted"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrNotQuestionAuthor rejects accept-answer by anyone but the asker.
var ErrNotQuestionAuthor = errors.New("only the question author can accept an answer")

type QuestionRepository interface {
	Create(ctx context.Context, authorID, title, body string) (*Question, error)
	List(ctx context.Context, includeHidden bool, page, perPage int) ([]Question, int, error)
	Get(ctx context.Context, id string, includeHidden bool) (*Question, []Answer, error)
	SetHidden(ctx context.Context, id string, hidden bool) error
	CreateAnswer(ctx context.Context, questionID, authorID, body string) (*Answer, error)
	// AcceptAnswer marks the answer accepted, enforcing that callerID
	// authored the question. One accepted answer per question.
	AcceptAnswer(ctx context.Context, questionID, answerID, callerID string) error
}

// PgQuestionRepository implements QuestionRepository using pgxpool.
type PgQuestionRepository struct {
	db *pgxpool.Pool
}

func NewPgQuestionRepository(db *pgxpool.Pool) *PgQuestionRepository {
	return &PgQuestionRepository{db: db}
}

func (r *PgQuestionRepository) Create(ctx context.Context, authorID, title, body string) (*Question, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	id := uuid.NewString()
	const q = `INSERT INTO questions (id, author_id, title, body) VALUES ($1,$2,$3,$4) RETURNING created_at`
	var question Question
	if err := r.db.QueryRow(ctx, q, id, authorID, title, body).Scan(&question.CreatedAt); err != nil {
		return nil, err
	}
	question.ID = id
	question.AuthorID = authorID
	question.Title = title
	question.Body = body
	return &question, nil
}

func (r *PgQuestionRepository) List(ctx context.Context, includeHidden bool, page, perPage int) ([]Question, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	filter := `WHERE NOT q.hidden`
	if includeHidden {
		filter = ``
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM questions q `+filter).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
SELECT q.id, q.author_id, m.display_name, q.title, q.body, q.hidden, q.accepted_answer_id, q.created_at,
  (SELECT COUNT(*) FROM answers a WHERE a.question_id = q.id)
FROM questions q JOIN members m ON m.id = q.author_id `+filter+`
ORDER BY q.created_at DESC, q.id DESC
LIMIT $1 OFFSET $2
`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Question, 0, perPage)
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.AuthorID, &q.AuthorName, &q.Title, &q.Body, &q.Hidden,
			&q.AcceptedAnswerID, &q.CreatedAt, &q.AnswerCount); err != nil {
			return nil, 0, err
		}
		items = append(items, q)
	}
	return items, total, rows.Err()
}

func (r *PgQuestionRepository) Get(ctx context.Context, id string, includeHidden bool) (*Question, []Answer, error) {
	q := `
SELECT q.id, q.author_id, m.display_name, q.title, q.body, q.hidden, q.accepted_answer_id, q.created_at
FROM questions q JOIN members m ON m.id = q.author_id
WHERE q.id=$1
`
	if !includeHidden {
		q += ` AND NOT q.hidden`
	}
	var question Question
	if err := r.db.QueryRow(ctx, q, id).Scan(&question.ID, &question.AuthorID, &question.AuthorName,
		&question.Title, &question.Body, &question.Hidden, &question.AcceptedAnswerID, &question.CreatedAt); err != nil {
		return nil, nil, err
	}

	rows, err := r.db.Query(ctx, `
SELECT a.id, a.question_id, a.author_id, m.display_name, a.body, a.accepted, a.created_at
FROM answers a JOIN members m ON m.id = a.author_id
WHERE a.question_id=$1
ORDER BY a.accepted DESC, a.created_at, a.id
`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var answers []Answer
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.AuthorID, &a.AuthorName, &a.Body, &a.Accepted, &a.CreatedAt); err != nil {
			return nil, nil, err
		}
		answers = append(answers, a)
	}
	question.AnswerCount = len(answers)
	return &question, answers, rows.Err()
}

func (r *PgQuestionRepository) SetHidden(ctx context.Context, id string, hidden bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE questions SET hidden=$2 WHERE id=$1`, id, hidden)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgQuestionRepository) CreateAnswer(ctx context.Context, questionID, authorID, body string) (*Answer, error) {
	body = strings.TrimSpace(body)

	// answering a hidden or missing question is a lookup miss
	var one int
	if err := r.db.QueryRow(ctx, `SELECT 1 FROM questions WHERE id=$1 AND NOT hidden`, questionID).Scan(&one); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	const q = `INSERT INTO answers (id, question_id, author_id, body) VALUES ($1,$2,$3,$4) RETURNING created_at`
	var a Answer
	if err := r.db.QueryRow(ctx, q, id, questionID, authorID, body).Scan(&a.CreatedAt); err != nil {
		return nil, err
	}
	a.ID = id
	a.QuestionID = questionID
	a.AuthorID = authorID
	a.Body = body
	return &a, nil
}

func (r *PgQuestionRepository) AcceptAnswer(ctx context.Context, questionID, answerID, callerID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var authorID string
	if err := tx.QueryRow(ctx, `SELECT author_id FROM questions WHERE id=$1 AND NOT hidden`, questionID).Scan(&authorID); err != nil {
		return err
	}
	if authorID != callerID {
		return ErrNotQuestionAuthor
	}

	tag, err := tx.Exec(ctx, `UPDATE answers SET accepted=true WHERE id=$1 AND question_id=$2`, answerID, questionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if _, err := tx.Exec(ctx, `UPDATE answers SET accepted=false WHERE question_id=$1 AND id<>$2`, questionID, answerID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE questions SET accepted_answer_id=$2 WHERE id=$1`, questionID, answerID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
