package attendance

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/apperr"
	"qrattend/internal/events"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
)

const (
	DefaultCodeTTL = 10 * time.Minute
	MinCodeTTL     = time.Second
	DefaultMaxTTL  = 4 * time.Hour
)

// Store is the persistence contract of the attendance engine.
// Lookups return ErrNoRows when nothing matches; inserts return ErrDuplicate
// on a unique-constraint violation.
type Store interface {
	CreateModule(ctx context.Context, m Module) error
	GetModule(ctx context.Context, id string) (Module, error)
	CreateSession(ctx context.Context, s ScheduledSession) error
	GetSession(ctx context.Context, id string) (ScheduledSession, error)
	ListSessions(ctx context.Context, teacherID string) ([]ScheduledSession, error)

	InsertCode(ctx context.Context, c AttendanceCode) error
	GetCode(ctx context.Context, token string) (AttendanceCode, error)
	ListCodes(ctx context.Context, teacherID string) ([]AttendanceCode, error)
	DeleteCodesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	FindRecord(ctx context.Context, studentID, sessionID, date string) (Record, error)
	InsertRecord(ctx context.Context, r Record) error
	ListHistory(ctx context.Context, studentID string) ([]HistoryEntry, error)
}

// Publisher receives domain events. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	Location   *time.Location
	Now        func() time.Time
	Publisher  Publisher
}

// Service issues codes and records attendance.
type Service struct {
	store      Store
	pub        Publisher
	now        func() time.Time
	loc        *time.Location
	defaultTTL time.Duration
	maxTTL     time.Duration
}

// NewService creates a service backed by store.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:      store,
		pub:        opts.Publisher,
		now:        opts.Now,
		loc:        opts.Location,
		defaultTTL: opts.DefaultTTL,
		maxTTL:     opts.MaxTTL,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = DefaultCodeTTL
	}
	if s.maxTTL <= 0 {
		s.maxTTL = DefaultMaxTTL
	}
	if s.defaultTTL > s.maxTTL {
		s.defaultTTL = s.maxTTL
	}
	return s
}

// IssueRequest describes a code issuance. TTL zero means the configured default.
// AnyScope lets administrators issue for sessions they do not teach.
type IssueRequest struct {
	SessionID string
	TTL       time.Duration
	IssuedBy  string
	AnyScope  bool
}

// Issue creates a time-boxed code bound to one scheduled session.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (AttendanceCode, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return AttendanceCode{}, apperr.Validationf("session_id is required")
	}
	ttl := req.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if ttl < MinCodeTTL || ttl > s.maxTTL {
		return AttendanceCode{}, apperr.Validationf("ttl must be between %s and %s", MinCodeTTL, s.maxTTL)
	}

	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return AttendanceCode{}, ErrSessionNotFound
		}
		return AttendanceCode{}, apperr.StorageErr(err)
	}
	if !req.AnyScope && req.IssuedBy != sess.TeacherID {
		return AttendanceCode{}, ErrNotSessionOwner
	}

	token, err := newToken()
	if err != nil {
		return AttendanceCode{}, apperr.StorageErr(err)
	}
	now := s.now().UTC()
	code := AttendanceCode{
		Token:     token,
		SessionID: sess.ID,
		IssuedBy:  req.IssuedBy,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.store.InsertCode(ctx, code); err != nil {
		return AttendanceCode{}, apperr.StorageErr(err)
	}
	metrics.ObserveCodeIssued()
	return code, nil
}

// Submit validates a scanned code and records attendance at most once per
// student, session and calendar day.
func (s *Service) Submit(ctx context.Context, token, studentID string) (Outcome, error) {
	out, err := s.submit(ctx, strings.TrimSpace(token), strings.TrimSpace(studentID))
	switch {
	case err == nil && out.AlreadyRegistered:
		metrics.ObserveSubmission(metrics.OutcomeAlreadyRegistered)
	case err == nil:
		metrics.ObserveSubmission(metrics.OutcomeRecorded)
	case errors.Is(err, ErrInvalidCode):
		metrics.ObserveSubmission(metrics.OutcomeInvalidCode)
	case errors.Is(err, ErrExpiredCode):
		metrics.ObserveSubmission(metrics.OutcomeExpiredCode)
	case errors.Is(err, ErrSessionNotFound):
		metrics.ObserveSubmission(metrics.OutcomeSessionNotFound)
	default:
		metrics.ObserveSubmission(metrics.OutcomeError)
	}
	return out, err
}

func (s *Service) submit(ctx context.Context, token, studentID string) (Outcome, error) {
	if token == "" || studentID == "" {
		return Outcome{}, apperr.Validationf("code and student_id are required")
	}

	code, err := s.store.GetCode(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return Outcome{}, ErrInvalidCode
		}
		return Outcome{}, apperr.StorageErr(err)
	}

	// Read the clock after the lookup so a code that expires while it is
	// being fetched is still rejected.
	now := s.now()
	if code.ExpiredAt(now) {
		return Outcome{}, ErrExpiredCode
	}

	sess, err := s.store.GetSession(ctx, code.SessionID)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return Outcome{}, ErrSessionNotFound
		}
		return Outcome{}, apperr.StorageErr(err)
	}
	mod, err := s.module(ctx, sess.ModuleID)
	if err != nil {
		return Outcome{}, err
	}

	date := now.In(s.loc).Format(DateLayout)
	out := Outcome{Module: mod, Session: sessionInfo(sess)}

	existing, err := s.store.FindRecord(ctx, studentID, sess.ID, date)
	switch {
	case err == nil:
		out.Record, out.AlreadyRegistered = existing, true
		return out, nil
	case !errors.Is(err, ErrNoRows):
		return Outcome{}, apperr.StorageErr(err)
	}

	rec := Record{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		SessionID:  sess.ID,
		ModuleID:   sess.ModuleID,
		Date:       date,
		Status:     StatusPresent,
		RecordedAt: now.UTC(),
	}
	if err := s.store.InsertRecord(ctx, rec); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return Outcome{}, apperr.StorageErr(err)
		}
		// Lost a race with a concurrent submission for the same day.
		existing, err := s.store.FindRecord(ctx, studentID, sess.ID, date)
		if err != nil {
			return Outcome{}, apperr.StorageErr(err)
		}
		out.Record, out.AlreadyRegistered = existing, true
		return out, nil
	}

	out.Record = rec
	s.publish(ctx, events.AttendanceRecorded, events.Recorded{
		RecordID:  rec.ID,
		StudentID: rec.StudentID,
		SessionID: rec.SessionID,
		Date:      rec.Date,
	})
	return out, nil
}

// History returns a student's records, most recent first.
func (s *Service) History(ctx context.Context, studentID string) ([]HistoryEntry, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, apperr.Validationf("student_id is required")
	}
	entries, err := s.store.ListHistory(ctx, studentID)
	if err != nil {
		return nil, apperr.StorageErr(err)
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return entries, nil
}

// RecordAbsences marks the given students absent for a session on date,
// leaving existing records untouched. It returns the number of rows created.
func (s *Service) RecordAbsences(ctx context.Context, sessionID, date string, studentIDs []string) (int, error) {
	day, err := ParseDate(date)
	if err != nil {
		return 0, apperr.Validationf("%v", err)
	}
	if len(studentIDs) == 0 {
		return 0, apperr.Validationf("student_ids is required")
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return 0, ErrSessionNotFound
		}
		return 0, apperr.StorageErr(err)
	}

	created := 0
	seen := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		rec := Record{
			ID:         uuid.NewString(),
			StudentID:  id,
			SessionID:  sess.ID,
			ModuleID:   sess.ModuleID,
			Date:       day,
			Status:     StatusAbsent,
			RecordedAt: s.now().UTC(),
		}
		if err := s.store.InsertRecord(ctx, rec); err != nil {
			if errors.Is(err, ErrDuplicate) {
				continue
			}
			return created, apperr.StorageErr(err)
		}
		created++
	}
	return created, nil
}

// ListCodes returns codes issued for sessions taught by teacherID, newest first.
func (s *Service) ListCodes(ctx context.Context, teacherID string) ([]AttendanceCode, error) {
	codes, err := s.store.ListCodes(ctx, teacherID)
	if err != nil {
		return nil, apperr.StorageErr(err)
	}
	if codes == nil {
		codes = []AttendanceCode{}
	}
	return codes, nil
}

// PurgeExpired deletes codes that expired more than retention ago.
func (s *Service) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < 0 {
		retention = 0
	}
	n, err := s.store.DeleteCodesExpiredBefore(ctx, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, apperr.StorageErr(err)
	}
	return n, nil
}

func (s *Service) module(ctx context.Context, id string) (Module, error) {
	mod, err := s.store.GetModule(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return Module{ID: id}, nil
		}
		return Module{}, apperr.StorageErr(err)
	}
	return mod, nil
}

func (s *Service) publish(ctx context.Context, typ string, payload any) {
	if s.pub == nil {
		return
	}
	msg, err := events.Encode(typ, payload)
	if err == nil {
		err = s.pub.Publish(ctx, msg)
	}
	if err != nil {
		log.Printf("publish %s failed: %v", typ, err)
	}
}

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newToken returns "QR-" followed by 16 base32 characters (80 random bits).
func newToken() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "QR-" + tokenEncoding.EncodeToString(b), nil
}
