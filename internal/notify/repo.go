package notify

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Repository stores notifications with database/sql.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertNotification writes n.
func (r *Repository) InsertNotification(ctx context.Context, n Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, kind, message, ref_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.RecipientID, n.Kind, n.Message, n.RefID, n.Read, n.CreatedAt.UTC())
	return errors.Wrap(err, "insert notification")
}

// ListNotifications returns a recipient's notifications, newest first.
func (r *Repository) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]Notification, error) {
	query := `
		SELECT id, recipient_id, kind, message, ref_id, is_read, created_at
		FROM notifications WHERE recipient_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	defer rows.Close()

	var res []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Kind, &n.Message, &n.RefID, &n.Read, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		res = append(res, n)
	}
	return res, errors.Wrap(rows.Err(), "list notifications")
}

// MarkNotificationRead flags a recipient's notification as read. It reports
// false when no such notification exists for the recipient.
func (r *Repository) MarkNotificationRead(ctx context.Context, id, recipientID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2
	`, id, recipientID)
	if err != nil {
		return false, errors.Wrap(err, "mark notification read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "mark notification read")
	}
	return n == 1, nil
}
