// Package notify turns queue events into per-user notifications.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/apperr"
	"qrattend/internal/events"
	"qrattend/internal/queue"
)

// Store persists notifications.
type Store interface {
	InsertNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id, recipientID string) (bool, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a service. now may be nil.
func NewService(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// Handle processes one queue message. Unknown types are ignored.
func (s *Service) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case events.JustificationFiled:
		var ev events.Filed
		if err := events.Decode(msg, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		if ev.TeacherID == "" {
			log.Printf("justification %s has no reviewing teacher, skipping notification", ev.JustificationID)
			return nil
		}
		return s.push(ctx, ev.TeacherID, KindJustificationFiled, ev.JustificationID,
			fmt.Sprintf("New absence justification from %s for %s on %s", ev.StudentID, moduleLabel(ev.ModuleName), ev.AbsenceDate))

	case events.JustificationReviewed:
		var ev events.Reviewed
		if err := events.Decode(msg, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		return s.push(ctx, ev.StudentID, KindJustificationReviewed, ev.JustificationID,
			fmt.Sprintf("Your justification for %s on %s was %s", moduleLabel(ev.ModuleName), ev.AbsenceDate, ev.Status))

	case events.AttendanceRecorded:
		var ev events.Recorded
		if err := events.Decode(msg, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		log.Printf("attendance recorded: student=%s session=%s date=%s", ev.StudentID, ev.SessionID, ev.Date)
		return nil
	}
	log.Printf("notify: ignoring message type %q", msg.Type)
	return nil
}

func (s *Service) push(ctx context.Context, recipient, kind, ref, text string) error {
	n := Notification{
		ID:          uuid.NewString(),
		RecipientID: recipient,
		Kind:        kind,
		Message:     text,
		RefID:       ref,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		return apperr.StorageErr(err)
	}
	return nil
}

// List returns a recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, recipientID string, unreadOnly bool) ([]Notification, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, apperr.Validationf("recipient is required")
	}
	res, err := s.store.ListNotifications(ctx, recipientID, unreadOnly)
	if err != nil {
		return nil, apperr.StorageErr(err)
	}
	if res == nil {
		res = []Notification{}
	}
	return res, nil
}

// MarkRead flags a notification owned by recipientID as read.
func (s *Service) MarkRead(ctx context.Context, id, recipientID string) error {
	ok, err := s.store.MarkNotificationRead(ctx, id, recipientID)
	if err != nil {
		return apperr.StorageErr(err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Run consumes q until ctx ends, handing every message to svc.
func Run(ctx context.Context, q queue.Queue, svc *Service) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	log.Printf("notification consumer started")
	for msg := range msgs {
		if err := svc.Handle(ctx, msg); err != nil {
			log.Printf("handle %s: %v", msg.Type, err)
		}
	}
	log.Printf("notification consumer stopped")
	return nil
}

func moduleLabel(name string) string {
	if name == "" {
		return "the module"
	}
	return name
}
