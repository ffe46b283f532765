package justification

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"qrattend/internal/attendance"
	"qrattend/internal/store"
)

// Repository persists justifications. Attendance record lookups are
// delegated to the embedded attendance repository.
type Repository struct {
	*attendance.Repository
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{Repository: attendance.NewRepository(db), db: db}
}

func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case store.IsNoRows(err):
		return attendance.ErrNoRows
	case store.IsUniqueViolation(err):
		return attendance.ErrDuplicate
	}
	return errors.Wrap(err, op)
}

// FindAbsences returns the student's absent records for a module on date.
func (r *Repository) FindAbsences(ctx context.Context, studentID, moduleID, date string) ([]attendance.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, session_id, module_id, attended_on, status, recorded_at
		FROM attendance_records
		WHERE student_id = $1 AND module_id = $2 AND attended_on = $3 AND status = 'absent'
		ORDER BY recorded_at, id
	`, studentID, moduleID, date)
	if err != nil {
		return nil, translate(err, "find absences")
	}
	defer rows.Close()

	var res []attendance.Record
	for rows.Next() {
		var rec attendance.Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.ModuleID, &rec.Date, &status, &rec.RecordedAt); err != nil {
			return nil, translate(err, "scan absence")
		}
		rec.Status = attendance.Status(status)
		res = append(res, rec)
	}
	return res, translate(rows.Err(), "find absences")
}

// HasActive reports whether a pending or approved justification exists for the record.
func (r *Repository) HasActive(ctx context.Context, attendanceID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM justifications WHERE attendance_id = $1 AND status <> 'rejected'
	`, attendanceID).Scan(&n)
	if err != nil {
		return false, translate(err, "count justifications")
	}
	return n > 0, nil
}

// Insert writes a new justification.
func (r *Repository) Insert(ctx context.Context, j Justification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO justifications (id, student_id, attendance_id, reason, evidence_ref, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, j.ID, j.StudentID, j.AttendanceID, j.Reason, j.EvidenceRef, string(j.Status), j.SubmittedAt.UTC())
	return translate(err, "insert justification")
}

// Resolve moves a pending justification to status. It reports false when
// the row is missing or no longer pending.
func (r *Repository) Resolve(ctx context.Context, id string, status Status, reviewerID string, at time.Time, note string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE justifications
		SET status = $1, reviewed_by = $2, reviewed_at = $3, review_note = $4
		WHERE id = $5 AND status = 'pending'
	`, string(status), reviewerID, at.UTC(), note, id)
	if err != nil {
		return false, translate(err, "resolve justification")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, translate(err, "resolve justification")
	}
	return n == 1, nil
}

const viewQuery = `
	SELECT j.id, j.student_id, j.attendance_id, j.reason, j.evidence_ref, j.status, j.submitted_at,
	       j.reviewed_by, j.reviewed_at, j.review_note,
	       a.attended_on, a.module_id, COALESCE(m.code, ''), COALESCE(m.name, ''),
	       a.session_id, COALESCE(s.kind, ''), COALESCE(s.room, ''), COALESCE(s.teacher_id, '')
	FROM justifications j
	JOIN attendance_records a ON a.id = j.attendance_id
	LEFT JOIN modules m ON m.id = a.module_id
	LEFT JOIN scheduled_sessions s ON s.id = a.session_id`

func scanView(row interface{ Scan(...any) error }) (View, error) {
	var v View
	var status string
	var reviewedAt sql.NullTime
	err := row.Scan(
		&v.ID, &v.StudentID, &v.AttendanceID, &v.Reason, &v.EvidenceRef, &status, &v.SubmittedAt,
		&v.ReviewedBy, &reviewedAt, &v.ReviewNote,
		&v.AbsenceDate, &v.ModuleID, &v.ModuleCode, &v.ModuleName,
		&v.SessionID, &v.SessionKind, &v.Room, &v.TeacherID,
	)
	v.Status = Status(status)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		v.ReviewedAt = &t
	}
	return v, err
}

// Get returns one justification view.
func (r *Repository) Get(ctx context.Context, id string) (View, error) {
	v, err := scanView(r.db.QueryRowContext(ctx, viewQuery+` WHERE j.id = $1`, id))
	return v, translate(err, "get justification")
}

// List returns views matching f, newest submission first.
func (r *Repository) List(ctx context.Context, f Filter) ([]View, error) {
	query := viewQuery
	args := []any{}
	clauses := []string{}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, clause+" = $"+strconv.Itoa(len(args)))
	}
	if f.StudentID != "" {
		add("j.student_id", f.StudentID)
	}
	if f.TeacherID != "" {
		add("s.teacher_id", f.TeacherID)
	}
	if f.Status != "" {
		add("j.status", string(f.Status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY j.submitted_at DESC, j.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "list justifications")
	}
	defer rows.Close()

	var res []View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, translate(err, "scan justification")
		}
		res = append(res, v)
	}
	return res, translate(rows.Err(), "list justifications")
}
