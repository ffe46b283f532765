package justification

import "qrattend/internal/apperr"

var (
	ErrNoMatchingAbsence = apperr.New(apperr.NotFound, "no_matching_absence", "no matching absence record found")
	ErrNotFound          = apperr.New(apperr.NotFound, "justification_not_found", "justification not found")
	ErrAlreadyResolved   = apperr.New(apperr.Conflict, "already_resolved", "justification has already been reviewed")
	ErrDuplicate         = apperr.New(apperr.Conflict, "duplicate_justification", "a justification for this absence is already pending or approved")
	ErrNotReviewer       = apperr.New(apperr.Forbidden, "not_reviewer", "only the session's teacher can review this justification")
)
