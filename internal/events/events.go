// Package events defines the messages published on the work queue.
package events

import (
	"encoding/json"

	"qrattend/internal/queue"
)

const (
	AttendanceRecorded    = "attendance.recorded"
	JustificationFiled    = "justification.filed"
	JustificationReviewed = "justification.reviewed"
)

// Recorded is published after a fresh attendance registration.
type Recorded struct {
	RecordID  string `json:"record_id"`
	StudentID string `json:"student_id"`
	SessionID string `json:"session_id"`
	Date      string `json:"date"`
}

// Filed is published when a student files a justification.
type Filed struct {
	JustificationID string `json:"justification_id"`
	StudentID       string `json:"student_id"`
	TeacherID       string `json:"teacher_id"`
	ModuleName      string `json:"module_name"`
	AbsenceDate     string `json:"absence_date"`
}

// Reviewed is published when a reviewer resolves a justification.
type Reviewed struct {
	JustificationID string `json:"justification_id"`
	StudentID       string `json:"student_id"`
	ReviewerID      string `json:"reviewer_id"`
	Status          string `json:"status"`
	ModuleName      string `json:"module_name"`
	AbsenceDate     string `json:"absence_date"`
}

// Encode wraps a payload into a queue message of the given type.
func Encode(typ string, payload any) (queue.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return queue.Message{}, err
	}
	return queue.Message{Type: typ, Body: body}, nil
}

// Decode unmarshals a message body into out.
func Decode(msg queue.Message, out any) error {
	return json.Unmarshal(msg.Body, out)
}
