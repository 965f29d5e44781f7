package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/journalmate/internal/model"
)

const notificationColumns = `
	id, user_id, source_type, source_id, notification_type,
	title, body, scheduled_at, timezone, route, status,
	metadata, sent_at, failure_reason, created_at, updated_at`

// CreateSmartNotification inserts a new scheduled notification. Generates a
// UUID if ID is empty and defaults the status to pending.
func (s *SQLiteStore) CreateSmartNotification(ctx context.Context, n *model.ScheduledNotification) error {
	if n.Status == "" {
		n.Status = model.StatusPending
	}
	if err := s.validate.Struct(n); err != nil {
		return fmt.Errorf("validating notification: %w", err)
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	n.ScheduledAt = n.ScheduledAt.UTC()

	meta, err := marshalMetadata(n.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO smart_notifications (`+notificationColumns+`
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.SourceType, n.SourceID, n.NotificationType,
		n.Title, n.Body, n.ScheduledAt, n.Timezone, n.Route, n.Status,
		meta, utcPtr(n.SentAt), n.FailureReason, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("creating notification %s for %s/%s: %w",
				n.NotificationType, n.SourceType, n.SourceID, ErrDuplicate)
		}
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

// GetPendingSmartNotifications returns pending rows due at or before now,
// oldest first.
func (s *SQLiteStore) GetPendingSmartNotifications(
	ctx context.Context,
	now time.Time,
) ([]model.ScheduledNotification, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT"+notificationColumns+`
		FROM smart_notifications
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at, created_at`,
		model.StatusPending, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// GetSmartNotification retrieves a single scheduled notification by ID.
func (s *SQLiteStore) GetSmartNotification(
	ctx context.Context,
	id string,
) (*model.ScheduledNotification, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT"+notificationColumns+" FROM smart_notifications WHERE id = ?", id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification %s: %w", id, err)
	}
	return &n, nil
}

// UpdateSmartNotification moves a pending row to patch.Status. It reports
// false when the row is missing or already left pending.
func (s *SQLiteStore) UpdateSmartNotification(
	ctx context.Context,
	id string,
	patch model.NotificationPatch,
) (bool, error) {
	if patch.Status == "" {
		return false, fmt.Errorf("updating notification %s: status must not be empty", id)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE smart_notifications SET
			status = ?, sent_at = COALESCE(?, sent_at),
			failure_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		patch.Status, utcPtr(patch.SentAt),
		patch.FailureReason, time.Now().UTC(),
		id, model.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("updating notification %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// CancelSmartNotifications marks every pending row of a source as cancelled.
func (s *SQLiteStore) CancelSmartNotifications(
	ctx context.Context,
	sourceType model.SourceType,
	sourceID string,
) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE smart_notifications SET status = ?, updated_at = ?
		WHERE source_type = ? AND source_id = ? AND status = ?`,
		model.StatusCancelled, time.Now().UTC(),
		sourceType, sourceID, model.StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("cancelling notifications for %s/%s: %w", sourceType, sourceID, err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// FindPendingSmartNotification returns the newest row matching the key
// with one of the given statuses, or nil when there is none.
func (s *SQLiteStore) FindPendingSmartNotification(
	ctx context.Context,
	userID string,
	sourceType model.SourceType,
	sourceID string,
	notificationType string,
	statuses ...model.Status,
) (*model.ScheduledNotification, error) {
	if len(statuses) == 0 {
		statuses = []model.Status{model.StatusPending}
	}

	query, args, err := sqlx.In(
		"SELECT"+notificationColumns+`
		FROM smart_notifications
		WHERE user_id = ? AND source_type = ? AND source_id = ?
			AND notification_type = ? AND status IN (?)
		ORDER BY created_at DESC
		LIMIT 1`,
		userID, sourceType, sourceID, notificationType, statuses,
	)
	if err != nil {
		return nil, fmt.Errorf("building notification lookup: %w", err)
	}

	row := s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding notification %s for %s/%s: %w",
			notificationType, sourceType, sourceID, err)
	}
	return &n, nil
}

// ListSmartNotificationsForSource returns every row of a source in
// schedule order, whatever its status.
func (s *SQLiteStore) ListSmartNotificationsForSource(
	ctx context.Context,
	sourceType model.SourceType,
	sourceID string,
) ([]model.ScheduledNotification, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT"+notificationColumns+`
		FROM smart_notifications
		WHERE source_type = ? AND source_id = ?
		ORDER BY scheduled_at, notification_type`,
		sourceType, sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying notifications for %s/%s: %w", sourceType, sourceID, err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// CreateNotificationHistory appends a dispatch attempt to the history log.
func (s *SQLiteStore) CreateNotificationHistory(ctx context.Context, h model.NotificationHistory) error {
	if err := s.validate.Struct(h); err != nil {
		return fmt.Errorf("validating history: %w", err)
	}
	if h.ID == "" {
		h.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_history (
			id, user_id, scheduled_notification_id, notification_type,
			title, body, route, channel, haptic_type,
			status, failure_reason, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.UserID, h.ScheduledNotificationID, h.NotificationType,
		h.Title, h.Body, h.Route, h.Channel, h.HapticType,
		h.Status, h.FailureReason, h.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating notification history: %w", err)
	}
	return nil
}

// GetNotificationHistory returns a user's most recent dispatch attempts,
// newest first. A non-positive limit returns every entry.
func (s *SQLiteStore) GetNotificationHistory(
	ctx context.Context,
	userID string,
	limit int,
) ([]model.NotificationHistory, error) {
	query := `
		SELECT id, user_id, scheduled_notification_id, notification_type,
			title, body, route, channel, haptic_type,
			status, failure_reason, sent_at
		FROM notification_history
		WHERE user_id = ?
		ORDER BY sent_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var history []model.NotificationHistory
	if err := s.db.SelectContext(ctx, &history, query, userID); err != nil {
		return nil, fmt.Errorf("querying notification history: %w", err)
	}
	return history, nil
}

// scanNotifications drains rows into scheduled notifications.
func scanNotifications(rows *sqlx.Rows) ([]model.ScheduledNotification, error) {
	var out []model.ScheduledNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanNotification scans a smart_notifications row selected with
// notificationColumns.
func scanNotification(row interface{ Scan(dest ...interface{}) error }) (model.ScheduledNotification, error) {
	var (
		n      model.ScheduledNotification
		meta   string
		sentAt *time.Time
	)

	err := row.Scan(
		&n.ID, &n.UserID, &n.SourceType, &n.SourceID, &n.NotificationType,
		&n.Title, &n.Body, &n.ScheduledAt, &n.Timezone, &n.Route, &n.Status,
		&meta, &sentAt, &n.FailureReason, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ScheduledNotification{}, err
		}
		return model.ScheduledNotification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.Metadata, err = unmarshalMetadata(meta)
	if err != nil {
		return model.ScheduledNotification{}, fmt.Errorf("notification %s: %w", n.ID, err)
	}
	n.SentAt = sentAt
	return n, nil
}

// utcPtr normalises an optional timestamp to UTC.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
