package store

import (
	"context"
	"fmt"
	"strings"
)

// Migrate creates the schema if it does not exist yet. Statements are
// idempotent, so running it on every start is safe.
func Migrate(ctx context.Context, db *DB) error {
	ts := "TIMESTAMPTZ"
	if db.Driver == DriverSQLite {
		ts = "DATETIME"
	}
	for _, stmt := range schema {
		stmt = strings.ReplaceAll(stmt, "{{ts}}", ts)
		if _, err := db.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS modules (
		id   VARCHAR(64) PRIMARY KEY,
		code VARCHAR(32) NOT NULL UNIQUE,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_sessions (
		id          VARCHAR(64) PRIMARY KEY,
		module_id   VARCHAR(64) NOT NULL REFERENCES modules(id),
		teacher_id  VARCHAR(64) NOT NULL,
		room        TEXT NOT NULL DEFAULT '',
		day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
		start_time  VARCHAR(5) NOT NULL,
		end_time    VARCHAR(5) NOT NULL,
		kind        VARCHAR(20) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_teacher ON scheduled_sessions(teacher_id)`,
	`CREATE TABLE IF NOT EXISTS attendance_codes (
		token      VARCHAR(64) PRIMARY KEY,
		session_id VARCHAR(64) NOT NULL,
		issued_by  VARCHAR(64) NOT NULL DEFAULT '',
		issued_at  {{ts}} NOT NULL,
		expires_at {{ts}} NOT NULL,
		CHECK (expires_at > issued_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_codes_session ON attendance_codes(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_codes_expires ON attendance_codes(expires_at)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id          VARCHAR(64) PRIMARY KEY,
		student_id  VARCHAR(64) NOT NULL,
		session_id  VARCHAR(64) NOT NULL,
		module_id   VARCHAR(64) NOT NULL,
		attended_on VARCHAR(10) NOT NULL,
		status      VARCHAR(10) NOT NULL CHECK (status IN ('present', 'absent')),
		recorded_at {{ts}} NOT NULL,
		UNIQUE (student_id, session_id, attended_on)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_student ON attendance_records(student_id, attended_on)`,
	`CREATE TABLE IF NOT EXISTS justifications (
		id            VARCHAR(64) PRIMARY KEY,
		student_id    VARCHAR(64) NOT NULL,
		attendance_id VARCHAR(64) NOT NULL REFERENCES attendance_records(id),
		reason        TEXT NOT NULL,
		evidence_ref  TEXT NOT NULL DEFAULT '',
		status        VARCHAR(10) NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
		submitted_at  {{ts}} NOT NULL,
		reviewed_by   VARCHAR(64) NOT NULL DEFAULT '',
		reviewed_at   {{ts}},
		review_note   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_justifications_student ON justifications(student_id, submitted_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_justifications_active ON justifications(attendance_id) WHERE status <> 'rejected'`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id           VARCHAR(64) PRIMARY KEY,
		recipient_id VARCHAR(64) NOT NULL,
		kind         VARCHAR(40) NOT NULL,
		message      TEXT NOT NULL,
		ref_id       VARCHAR(64) NOT NULL DEFAULT '',
		is_read      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at)`,
}
