package attendance

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"qrattend/internal/store"
)

// Repository persists attendance data with database/sql. The queries run
// unchanged on Postgres (pgx) and SQLite; placeholders are numbered in order
// of appearance so both drivers bind them the same way.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case store.IsNoRows(err):
		return ErrNoRows
	case store.IsUniqueViolation(err):
		return ErrDuplicate
	}
	return errors.Wrap(err, op)
}

// CreateModule inserts a module.
func (r *Repository) CreateModule(ctx context.Context, m Module) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO modules (id, code, name) VALUES ($1, $2, $3)
	`, m.ID, m.Code, m.Name)
	return translate(err, "insert module")
}

// GetModule returns a module by id.
func (r *Repository) GetModule(ctx context.Context, id string) (Module, error) {
	var m Module
	err := r.db.QueryRowContext(ctx, `SELECT id, code, name FROM modules WHERE id = $1`, id).
		Scan(&m.ID, &m.Code, &m.Name)
	return m, translate(err, "get module")
}

// CreateSession inserts a timetable entry.
func (r *Repository) CreateSession(ctx context.Context, s ScheduledSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_sessions (id, module_id, teacher_id, room, day_of_week, start_time, end_time, kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.ModuleID, s.TeacherID, s.Room, s.DayOfWeek, s.StartTime, s.EndTime, string(s.Kind))
	return translate(err, "insert session")
}

const sessionColumns = `id, module_id, teacher_id, room, day_of_week, start_time, end_time, kind`

func scanSession(row interface{ Scan(...any) error }) (ScheduledSession, error) {
	var s ScheduledSession
	var kind string
	err := row.Scan(&s.ID, &s.ModuleID, &s.TeacherID, &s.Room, &s.DayOfWeek, &s.StartTime, &s.EndTime, &kind)
	s.Kind = SessionKind(kind)
	return s, err
}

// GetSession returns a session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (ScheduledSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM scheduled_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	return s, translate(err, "get session")
}

// ListSessions returns sessions ordered by day and start time, optionally for one teacher.
func (r *Repository) ListSessions(ctx context.Context, teacherID string) ([]ScheduledSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM scheduled_sessions`
	args := []any{}
	if teacherID != "" {
		query += ` WHERE teacher_id = $1`
		args = append(args, teacherID)
	}
	query += ` ORDER BY day_of_week, start_time, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "list sessions")
	}
	defer rows.Close()

	var res []ScheduledSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, translate(err, "scan session")
		}
		res = append(res, s)
	}
	return res, translate(rows.Err(), "list sessions")
}

// InsertCode stores an issued code.
func (r *Repository) InsertCode(ctx context.Context, c AttendanceCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_codes (token, session_id, issued_by, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.Token, c.SessionID, c.IssuedBy, c.IssuedAt.UTC(), c.ExpiresAt.UTC())
	return translate(err, "insert code")
}

// GetCode looks a code up by token.
func (r *Repository) GetCode(ctx context.Context, token string) (AttendanceCode, error) {
	var c AttendanceCode
	err := r.db.QueryRowContext(ctx, `
		SELECT token, session_id, issued_by, issued_at, expires_at
		FROM attendance_codes WHERE token = $1
	`, token).Scan(&c.Token, &c.SessionID, &c.IssuedBy, &c.IssuedAt, &c.ExpiresAt)
	return c, translate(err, "get code")
}

// ListCodes returns codes for sessions taught by teacherID, newest first.
func (r *Repository) ListCodes(ctx context.Context, teacherID string) ([]AttendanceCode, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.token, c.session_id, c.issued_by, c.issued_at, c.expires_at
		FROM attendance_codes c
		JOIN scheduled_sessions s ON s.id = c.session_id
		WHERE s.teacher_id = $1
		ORDER BY c.issued_at DESC
	`, teacherID)
	if err != nil {
		return nil, translate(err, "list codes")
	}
	defer rows.Close()

	var res []AttendanceCode
	for rows.Next() {
		var c AttendanceCode
		if err := rows.Scan(&c.Token, &c.SessionID, &c.IssuedBy, &c.IssuedAt, &c.ExpiresAt); err != nil {
			return nil, translate(err, "scan code")
		}
		res = append(res, c)
	}
	return res, translate(rows.Err(), "list codes")
}

// DeleteCodesExpiredBefore removes inert codes and reports how many were deleted.
func (r *Repository) DeleteCodesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_codes WHERE expires_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, translate(err, "purge codes")
	}
	return res.RowsAffected()
}

const recordColumns = `id, student_id, session_id, module_id, attended_on, status, recorded_at`

func scanRecord(row interface{ Scan(...any) error }, extra ...any) (Record, error) {
	var rec Record
	var status string
	dest := append([]any{&rec.ID, &rec.StudentID, &rec.SessionID, &rec.ModuleID, &rec.Date, &status, &rec.RecordedAt}, extra...)
	err := row.Scan(dest...)
	rec.Status = Status(status)
	return rec, err
}

// FindRecord returns the record for (student, session, date).
func (r *Repository) FindRecord(ctx context.Context, studentID, sessionID, date string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE student_id = $1 AND session_id = $2 AND attended_on = $3
	`, studentID, sessionID, date)
	rec, err := scanRecord(row)
	return rec, translate(err, "find record")
}

// GetRecord returns a record by id.
func (r *Repository) GetRecord(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	return rec, translate(err, "get record")
}

// InsertRecord writes a record. The unique constraint on
// (student_id, session_id, attended_on) surfaces as ErrDuplicate.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, session_id, module_id, attended_on, status, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.StudentID, rec.SessionID, rec.ModuleID, rec.Date, string(rec.Status), rec.RecordedAt.UTC())
	return translate(err, "insert record")
}

// ListHistory returns a student's records joined with module and session metadata.
func (r *Repository) ListHistory(ctx context.Context, studentID string) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.student_id, a.session_id, a.module_id, a.attended_on, a.status, a.recorded_at,
		       COALESCE(m.code, ''), COALESCE(m.name, ''),
		       COALESCE(s.kind, ''), COALESCE(s.room, ''), COALESCE(s.day_of_week, 0),
		       COALESCE(s.start_time, ''), COALESCE(s.end_time, '')
		FROM attendance_records a
		LEFT JOIN modules m ON m.id = a.module_id
		LEFT JOIN scheduled_sessions s ON s.id = a.session_id
		WHERE a.student_id = $1
		ORDER BY a.attended_on DESC, a.recorded_at DESC
	`, studentID)
	if err != nil {
		return nil, translate(err, "list history")
	}
	defer rows.Close()

	var res []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var sess ScheduledSession
		var kind string
		rec, err := scanRecord(rows,
			&e.Module.Code, &e.Module.Name,
			&kind, &sess.Room, &sess.DayOfWeek, &sess.StartTime, &sess.EndTime)
		if err != nil {
			return nil, translate(err, "scan history")
		}
		e.Record = rec
		e.Module.ID = rec.ModuleID
		sess.ID = rec.SessionID
		sess.Kind = SessionKind(kind)
		e.Session = sessionInfo(sess)
		res = append(res, e)
	}
	return res, translate(rows.Err(), "list history")
}
