package attendance

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"qrattend/internal/apperr"
)

// CreateModule registers a course module.
func (s *Service) CreateModule(ctx context.Context, m Module) (Module, error) {
	m.Code = strings.TrimSpace(m.Code)
	m.Name = strings.TrimSpace(m.Name)
	if m.Code == "" || m.Name == "" {
		return Module{}, apperr.Validationf("module code and name are required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := s.store.CreateModule(ctx, m); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return Module{}, ErrModuleExists
		}
		return Module{}, apperr.StorageErr(err)
	}
	return m, nil
}

// CreateSession adds a timetable entry.
func (s *Service) CreateSession(ctx context.Context, sess ScheduledSession) (ScheduledSession, error) {
	if err := validateSession(sess); err != nil {
		return ScheduledSession{}, err
	}
	if _, err := s.store.GetModule(ctx, sess.ModuleID); err != nil {
		if errors.Is(err, ErrNoRows) {
			return ScheduledSession{}, ErrModuleNotFound
		}
		return ScheduledSession{}, apperr.StorageErr(err)
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return ScheduledSession{}, apperr.New(apperr.Conflict, "session_exists", "session already exists")
		}
		return ScheduledSession{}, apperr.StorageErr(err)
	}
	return sess, nil
}

// ListSessions returns the timetable, optionally restricted to one teacher,
// ordered by day and start time.
func (s *Service) ListSessions(ctx context.Context, teacherID string) ([]ScheduledSession, error) {
	sessions, err := s.store.ListSessions(ctx, strings.TrimSpace(teacherID))
	if err != nil {
		return nil, apperr.StorageErr(err)
	}
	if sessions == nil {
		sessions = []ScheduledSession{}
	}
	return sessions, nil
}

// GetSession loads one scheduled session.
func (s *Service) GetSession(ctx context.Context, id string) (ScheduledSession, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return ScheduledSession{}, ErrSessionNotFound
		}
		return ScheduledSession{}, apperr.StorageErr(err)
	}
	return sess, nil
}

func validateSession(s ScheduledSession) error {
	if s.ModuleID == "" || s.TeacherID == "" {
		return apperr.Validationf("module_id and teacher_id are required")
	}
	if !s.Kind.Valid() {
		return apperr.Validationf("invalid session kind %q, must be lecture, directed_work or practical", s.Kind)
	}
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return apperr.Validationf("day_of_week must be between 0 (Sunday) and 6")
	}
	start, err := parseClock(s.StartTime)
	if err != nil {
		return apperr.Validationf("invalid start_time %q, use HH:MM", s.StartTime)
	}
	end, err := parseClock(s.EndTime)
	if err != nil {
		return apperr.Validationf("invalid end_time %q, use HH:MM", s.EndTime)
	}
	if !end.After(start) {
		return apperr.Validationf("end_time must be after start_time")
	}
	return nil
}
