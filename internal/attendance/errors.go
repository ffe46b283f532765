package attendance

import (
	"errors"

	"qrattend/internal/apperr"
)

var (
	ErrInvalidCode     = apperr.New(apperr.NotFound, "invalid_code", "invalid attendance code")
	ErrExpiredCode     = apperr.New(apperr.Expired, "expired_code", "attendance code has expired")
	ErrSessionNotFound = apperr.New(apperr.NotFound, "session_not_found", "scheduled session not found")
	ErrModuleNotFound  = apperr.New(apperr.NotFound, "module_not_found", "module not found")
	ErrNotSessionOwner = apperr.New(apperr.Forbidden, "not_session_teacher", "only the session's teacher can issue codes for it")
	ErrModuleExists    = apperr.New(apperr.Conflict, "module_exists", "a module with this code already exists")
)

// Repository-level sentinels. Implementations return these so the service
// can tell "no row" and "unique violation" apart from storage failures.
var (
	ErrNoRows    = errors.New("attendance: no rows")
	ErrDuplicate = errors.New("attendance: duplicate key")
)
