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

// Report is a member complaint against a piece of content. Moderators
// resolve or dismiss them.
type Report struct {
	ID           string     `json:"id"`
	ReporterID   string     `json:"reporter_id"`
	ReporterName string     `json:"reporter_name,omitempty"`
	SubjectKind  string     `json:"subject_kind"` // article|question|answer
	SubjectID    string     `json:"subject_id"`
	Reason       string     `json:"reason"`
	Status       string     `json:"status"` // open|resolved|dismissed
	ResolvedBy   *string    `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

var reportSubjectKinds = map[string]struct{}{
	"article":  {},
	"question": {},
	"answer":   {},
}

// ValidReportSubjectKind reports whether kind names a reportable content type.
func ValidReportSubjectKind(kind string) bool {
	_, ok := reportSubjectKinds[strings.ToLower(strings.TrimSpace(kind))]
	return ok
}

type ReportRepository interface {
	Create(ctx context.Context, reporterID, subjectKind, subjectID, reason string) (*Report, error)
	ListOpen(ctx context.Context, page, perPage int) ([]Report, int, error)
	// Resolve closes an open report with status resolved or dismissed.
	// Resolving a non-open report is a lookup miss.
	Resolve(ctx context.Context, id, moderatorID, status string, now time.Time) error
}

// PgReportRepository implements ReportRepository using pgxpool.
type PgReportRepository struct {
	db *pgxpool.Pool
}

func NewPgReportRepository(db *pgxpool.Pool) *PgReportRepository {
	return &PgReportRepository{db: db}
}

func (r *PgReportRepository) Create(ctx context.Context, reporterID, subjectKind, subjectID, reason string) (*Report, error) {
	subjectKind = strings.ToLower(strings.TrimSpace(subjectKind))
	reason = strings.TrimSpace(reason)
	id := uuid.NewString()
	const q = `
INSERT INTO reports (id, reporter_id, subject_kind, subject_id, reason, status)
VALUES ($1,$2,$3,$4,$5,'open') RETURNING created_at
`
	var rep Report
	if err := r.db.QueryRow(ctx, q, id, reporterID, subjectKind, subjectID, reason).Scan(&rep.CreatedAt); err != nil {
		return nil, err
	}
	rep.ID = id
	rep.ReporterID = reporterID
	rep.SubjectKind = subjectKind
	rep.SubjectID = subjectID
	rep.Reason = reason
	rep.Status = "open"
	return &rep, nil
}

func (r *PgReportRepository) ListOpen(ctx context.Context, page, perPage int) ([]Report, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM reports WHERE status='open'`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
SELECT r.id, r.reporter_id, m.display_name, r.subject_kind, r.subject_id, r.reason, r.status, r.created_at
FROM reports r JOIN members m ON m.id = r.reporter_id
WHERE r.status='open'
ORDER BY r.created_at, r.id
LIMIT $1 OFFSET $2
`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Report, 0, perPage)
	for rows.Next() {
		var rep Report
		if err := rows.Scan(&rep.ID, &rep.ReporterID, &rep.ReporterName, &rep.SubjectKind,
			&rep.SubjectID, &rep.Reason, &rep.Status, &rep.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, rep)
	}
	return items, total, rows.Err()
}

func (r *PgReportRepository) Resolve(ctx context.Context, id, moderatorID, status string, now time.Time) error {
	if status != "resolved" && status != "dismissed" {
		return errors.New("status must be resolved or dismissed")
	}
	const q = `
UPDATE reports SET status=$2, resolved_by=$3, resolved_at=$4
WHERE id=$1 AND status='open'
`
	tag, err := r.db.Exec(ctx, q, id, status, moderatorID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
