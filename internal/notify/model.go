package notify

import (
	"time"

	"qrattend/internal/apperr"
)

// Notification kinds.
const (
	KindJustificationFiled    = "justification_filed"
	KindJustificationReviewed = "justification_reviewed"
)

// Notification is a message for one user.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	RefID       string    `json:"ref_id,omitempty"`
	Read        bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

var ErrNotFound = apperr.New(apperr.NotFound, "notification_not_found", "notification not found")
