package inmem

import (
	"context"
	"sort"

	"qrattend/internal/attendance"
	"qrattend/internal/notify"
)

type notificationRepository struct {
	db *DB
}

// NewNotificationRepository returns a notify.Store over db.
func NewNotificationRepository(db *DB) notify.Store {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) InsertNotification(_ context.Context, n notify.Notification) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.notifications[n.ID]; ok {
		return attendance.ErrDuplicate
	}
	repo.db.notifications[n.ID] = n
	return nil
}

func (repo *notificationRepository) ListNotifications(_ context.Context, recipientID string, unreadOnly bool) ([]notify.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var res []notify.Notification
	for _, n := range repo.db.notifications {
		if n.RecipientID != recipientID || (unreadOnly && n.Read) {
			continue
		}
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (repo *notificationRepository) MarkNotificationRead(_ context.Context, id, recipientID string) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n, ok := repo.db.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return false, nil
	}
	n.Read = true
	repo.db.notifications[id] = n
	return true, nil
}
