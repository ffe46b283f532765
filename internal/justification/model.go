package justification

import "time"

// Status is the review state of a justification.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Justification is a student's contest of one absence record.
type Justification struct {
	ID           string     `json:"id"`
	StudentID    string     `json:"student_id"`
	AttendanceID string     `json:"attendance_id"`
	Reason       string     `json:"reason"`
	EvidenceRef  string     `json:"evidence_ref,omitempty"`
	Status       Status     `json:"status"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	ReviewedBy   string     `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	ReviewNote   string     `json:"review_note,omitempty"`
}

// View is a justification joined with its absence, module and session.
type View struct {
	Justification
	AbsenceDate string `json:"absence_date"`
	ModuleID    string `json:"module_id"`
	ModuleCode  string `json:"module_code"`
	ModuleName  string `json:"module_name"`
	SessionID   string `json:"session_id"`
	SessionKind string `json:"session_kind"`
	Room        string `json:"room"`
	TeacherID   string `json:"teacher_id"`
}

// Filter narrows a listing. Empty fields are ignored.
type Filter struct {
	StudentID string
	TeacherID string
	Status    Status
}
