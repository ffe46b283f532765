package attendance

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for dedup keys and storage.
const DateLayout = "2006-01-02"

// Status is the presence state of an attendance record.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// Valid reports whether s is a supported status.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// SessionKind is the teaching format of a scheduled session.
type SessionKind string

const (
	KindLecture      SessionKind = "lecture"
	KindDirectedWork SessionKind = "directed_work"
	KindPractical    SessionKind = "practical"
)

// Valid reports whether k is a supported session kind.
func (k SessionKind) Valid() bool {
	switch k {
	case KindLecture, KindDirectedWork, KindPractical:
		return true
	default:
		return false
	}
}

// Module is a course unit.
type Module struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ScheduledSession is one timetable entry. StartTime and EndTime are "HH:MM".
type ScheduledSession struct {
	ID        string      `json:"id"`
	ModuleID  string      `json:"module_id"`
	TeacherID string      `json:"teacher_id"`
	Room      string      `json:"room"`
	DayOfWeek int         `json:"day_of_week"`
	StartTime string      `json:"start_time"`
	EndTime   string      `json:"end_time"`
	Kind      SessionKind `json:"kind"`
}

// TimeRange renders the slot for display, e.g. "08:30 - 10:00".
func (s ScheduledSession) TimeRange() string {
	return fmt.Sprintf("%s - %s", s.StartTime, s.EndTime)
}

// AttendanceCode is one issuance event bound to a session.
type AttendanceCode struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	IssuedBy  string    `json:"issued_by,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the code is no longer usable at now.
// A code whose expiry equals now is expired.
func (c AttendanceCode) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Record is the ground truth of presence for one student, session and calendar date.
type Record struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	SessionID  string    `json:"session_id"`
	ModuleID   string    `json:"module_id"`
	Date       string    `json:"date"`
	Status     Status    `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SessionInfo is the display metadata returned with an outcome.
type SessionInfo struct {
	ID        string      `json:"id"`
	Kind      SessionKind `json:"type"`
	Room      string      `json:"room"`
	Time      string      `json:"time"`
	DayOfWeek int         `json:"day_of_week"`
}

func sessionInfo(s ScheduledSession) SessionInfo {
	return SessionInfo{ID: s.ID, Kind: s.Kind, Room: s.Room, Time: s.TimeRange(), DayOfWeek: s.DayOfWeek}
}

// Outcome is the result of a submission. AlreadyRegistered distinguishes an
// idempotent replay from a fresh registration.
type Outcome struct {
	Record            Record      `json:"attendance"`
	AlreadyRegistered bool        `json:"already_registered"`
	Module            Module      `json:"module"`
	Session           SessionInfo `json:"session"`
}

// HistoryEntry is a record joined with its module and session.
type HistoryEntry struct {
	Record
	Module  Module      `json:"module"`
	Session SessionInfo `json:"session"`
}

func parseClock(v string) (time.Time, error) {
	return time.Parse("15:04", v)
}

// ParseDate validates a "YYYY-MM-DD" calendar date.
func ParseDate(v string) (string, error) {
	d, err := time.Parse(DateLayout, v)
	if err != nil {
		return "", fmt.Errorf("invalid date %q, use YYYY-MM-DD", v)
	}
	return d.Format(DateLayout), nil
}
