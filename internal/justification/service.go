package justification

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/apperr"
	"qrattend/internal/attendance"
	"qrattend/internal/events"
	"qrattend/internal/metrics"
)

// Store persists justifications. Lookups return attendance.ErrNoRows when
// nothing matches and inserts return attendance.ErrDuplicate on a unique violation.
type Store interface {
	GetRecord(ctx context.Context, id string) (attendance.Record, error)
	FindAbsences(ctx context.Context, studentID, moduleID, date string) ([]attendance.Record, error)
	HasActive(ctx context.Context, attendanceID string) (bool, error)
	Insert(ctx context.Context, j Justification) error
	Get(ctx context.Context, id string) (View, error)
	Resolve(ctx context.Context, id string, status Status, reviewerID string, at time.Time, note string) (bool, error)
	List(ctx context.Context, f Filter) ([]View, error)
}

// Service manages the justification lifecycle:
// pending -> approved | rejected, both terminal.
type Service struct {
	store Store
	pub   attendance.Publisher
	now   func() time.Time
}

// NewService creates a service. now may be nil.
func NewService(store Store, pub attendance.Publisher, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, pub: pub, now: now}
}

// FileRequest is a student's contest of an absence. Date, when set, must
// match the absence's calendar date.
type FileRequest struct {
	StudentID    string
	AttendanceID string
	Date         string
	Reason       string
	EvidenceRef  string
}

// Check applies the filing rules to req without writing anything.
func (s *Service) Check(ctx context.Context, req FileRequest) error {
	_, _, err := s.eligible(ctx, req)
	return err
}

// File creates a pending justification for an absence owned by the student.
func (s *Service) File(ctx context.Context, req FileRequest) (Justification, error) {
	req, rec, err := s.eligible(ctx, req)
	if err != nil {
		return Justification{}, err
	}

	j := Justification{
		ID:           uuid.NewString(),
		StudentID:    req.StudentID,
		AttendanceID: rec.ID,
		Reason:       req.Reason,
		EvidenceRef:  req.EvidenceRef,
		Status:       StatusPending,
		SubmittedAt:  s.now().UTC(),
	}
	if err := s.store.Insert(ctx, j); err != nil {
		if errors.Is(err, attendance.ErrDuplicate) {
			return Justification{}, ErrDuplicate
		}
		return Justification{}, apperr.StorageErr(err)
	}
	metrics.ObserveJustification("filed")

	if v, err := s.store.Get(ctx, j.ID); err == nil {
		s.publish(ctx, events.JustificationFiled, events.Filed{
			JustificationID: j.ID,
			StudentID:       j.StudentID,
			TeacherID:       v.TeacherID,
			ModuleName:      v.ModuleName,
			AbsenceDate:     v.AbsenceDate,
		})
	} else {
		log.Printf("load justification %s for notification: %v", j.ID, err)
	}
	return j, nil
}

func (s *Service) eligible(ctx context.Context, req FileRequest) (FileRequest, attendance.Record, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.AttendanceID = strings.TrimSpace(req.AttendanceID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.StudentID == "" || req.AttendanceID == "" || req.Reason == "" {
		return req, attendance.Record{}, apperr.Validationf("student_id, absence reference and reason are required")
	}
	if req.Date != "" {
		d, err := attendance.ParseDate(req.Date)
		if err != nil {
			return req, attendance.Record{}, apperr.Validationf("%v", err)
		}
		req.Date = d
	}

	rec, err := s.store.GetRecord(ctx, req.AttendanceID)
	if err != nil {
		if errors.Is(err, attendance.ErrNoRows) {
			return req, attendance.Record{}, ErrNoMatchingAbsence
		}
		return req, attendance.Record{}, apperr.StorageErr(err)
	}
	if rec.StudentID != req.StudentID || rec.Status != attendance.StatusAbsent {
		return req, attendance.Record{}, ErrNoMatchingAbsence
	}
	if req.Date != "" && rec.Date != req.Date {
		return req, attendance.Record{}, ErrNoMatchingAbsence
	}

	active, err := s.store.HasActive(ctx, rec.ID)
	if err != nil {
		return req, attendance.Record{}, apperr.StorageErr(err)
	}
	if active {
		return req, attendance.Record{}, ErrDuplicate
	}

	return req, rec, nil
}

// ResolveAbsence finds the student's absence for a module on a calendar
// date. When several sessions of the module were missed that day, the first
// one without an active justification wins.
func (s *Service) ResolveAbsence(ctx context.Context, studentID, moduleID, date string) (string, error) {
	if strings.TrimSpace(studentID) == "" || strings.TrimSpace(moduleID) == "" || date == "" {
		return "", apperr.Validationf("student_id, module_id and absence_date are required")
	}
	day, err := attendance.ParseDate(date)
	if err != nil {
		return "", apperr.Validationf("%v", err)
	}
	recs, err := s.store.FindAbsences(ctx, studentID, moduleID, day)
	if err != nil {
		return "", apperr.StorageErr(err)
	}
	if len(recs) == 0 {
		return "", ErrNoMatchingAbsence
	}
	for _, rec := range recs {
		active, err := s.store.HasActive(ctx, rec.ID)
		if err != nil {
			return "", apperr.StorageErr(err)
		}
		if !active {
			return rec.ID, nil
		}
	}
	return recs[0].ID, nil
}

// ReviewRequest resolves a pending justification. AnyScope lets
// administrators review justifications outside their own sessions.
type ReviewRequest struct {
	ID         string
	Decision   Status
	ReviewerID string
	Note       string
	AnyScope   bool
}

// Review transitions a pending justification to approved or rejected.
func (s *Service) Review(ctx context.Context, req ReviewRequest) (Justification, error) {
	if req.Decision != StatusApproved && req.Decision != StatusRejected {
		return Justification{}, apperr.Validationf("decision must be approved or rejected")
	}
	if strings.TrimSpace(req.ID) == "" {
		return Justification{}, apperr.Validationf("justification id is required")
	}

	v, err := s.get(ctx, req.ID)
	if err != nil {
		return Justification{}, err
	}
	if !req.AnyScope && v.TeacherID != req.ReviewerID {
		return Justification{}, ErrNotReviewer
	}
	if v.Status.Terminal() {
		return Justification{}, ErrAlreadyResolved
	}

	at := s.now().UTC()
	note := strings.TrimSpace(req.Note)
	updated, err := s.store.Resolve(ctx, v.ID, req.Decision, req.ReviewerID, at, note)
	if err != nil {
		return Justification{}, apperr.StorageErr(err)
	}
	if !updated {
		// Someone else resolved it (or removed it) between the read and the update.
		if _, err := s.get(ctx, req.ID); err != nil {
			return Justification{}, err
		}
		return Justification{}, ErrAlreadyResolved
	}

	j := v.Justification
	j.Status = req.Decision
	j.ReviewedBy = req.ReviewerID
	j.ReviewedAt = &at
	j.ReviewNote = note
	metrics.ObserveJustification(string(req.Decision))

	s.publish(ctx, events.JustificationReviewed, events.Reviewed{
		JustificationID: j.ID,
		StudentID:       j.StudentID,
		ReviewerID:      req.ReviewerID,
		Status:          string(j.Status),
		ModuleName:      v.ModuleName,
		AbsenceDate:     v.AbsenceDate,
	})
	return j, nil
}

// Get returns one justification with its joined metadata.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	return s.get(ctx, id)
}

// ListForStudent returns a student's justifications, newest first.
func (s *Service) ListForStudent(ctx context.Context, studentID string) ([]View, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, apperr.Validationf("student_id is required")
	}
	return s.list(ctx, Filter{StudentID: studentID})
}

// ListForReviewer returns justifications on sessions taught by teacherID, newest first.
func (s *Service) ListForReviewer(ctx context.Context, teacherID string) ([]View, error) {
	if strings.TrimSpace(teacherID) == "" {
		return nil, apperr.Validationf("teacher_id is required")
	}
	return s.list(ctx, Filter{TeacherID: teacherID})
}

// ListAll returns every justification, optionally by status.
func (s *Service) ListAll(ctx context.Context, status Status) ([]View, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validationf("invalid status %q", status)
	}
	return s.list(ctx, Filter{Status: status})
}

func (s *Service) list(ctx context.Context, f Filter) ([]View, error) {
	views, err := s.store.List(ctx, f)
	if err != nil {
		return nil, apperr.StorageErr(err)
	}
	if views == nil {
		views = []View{}
	}
	return views, nil
}

func (s *Service) get(ctx context.Context, id string) (View, error) {
	v, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, attendance.ErrNoRows) {
			return View{}, ErrNotFound
		}
		return View{}, apperr.StorageErr(err)
	}
	return v, nil
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
