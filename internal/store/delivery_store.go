package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/journalmate/internal/model"
)

// CreateUserNotification inserts an in-app notification record.
func (s *SQLiteStore) CreateUserNotification(ctx context.Context, n model.UserNotification) error {
	if strings.TrimSpace(n.UserID) == "" {
		return fmt.Errorf("user notification user id must not be empty")
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("user notification title must not be empty")
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	meta, err := marshalMetadata(n.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_notifications (
			id, user_id, type, title, body, route, metadata, read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Body, n.Route, meta,
		boolToInt(n.Read), n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating user notification: %w", err)
	}
	return nil
}

// GetUserNotifications returns a user's in-app notifications, newest first.
func (s *SQLiteStore) GetUserNotifications(
	ctx context.Context,
	userID string,
	unreadOnly bool,
) ([]model.UserNotification, error) {
	query := `
		SELECT id, user_id, type, title, body, route, metadata, read, created_at
		FROM user_notifications WHERE user_id = ?`
	if unreadOnly {
		query += " AND read = 0"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user notifications: %w", err)
	}
	defer rows.Close()

	var out []model.UserNotification
	for rows.Next() {
		var (
			n       model.UserNotification
			meta    string
			readInt int
		)
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Route,
			&meta, &readInt, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning user notification row: %w", err)
		}
		n.Read = readInt != 0
		if n.Metadata, err = unmarshalMetadata(meta); err != nil {
			return nil, fmt.Errorf("user notification %s: %w", n.ID, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkUserNotificationRead flags an in-app notification as read.
func (s *SQLiteStore) MarkUserNotificationRead(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE user_notifications SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking user notification %s read: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// RegisterDeviceToken stores a push token. Registering a known token moves
// it to the given user.
func (s *SQLiteStore) RegisterDeviceToken(ctx context.Context, t model.DeviceToken) error {
	if strings.TrimSpace(t.Token) == "" {
		return fmt.Errorf("device token must not be empty")
	}
	if strings.TrimSpace(t.UserID) == "" {
		return fmt.Errorf("device token user id must not be empty")
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_tokens (id, user_id, token, platform, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			user_id = excluded.user_id,
			platform = excluded.platform`,
		t.ID, t.UserID, t.Token, t.Platform, t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("registering device token: %w", err)
	}
	return nil
}

// GetDeviceTokens returns the push tokens registered for a user.
func (s *SQLiteStore) GetDeviceTokens(ctx context.Context, userID string) ([]model.DeviceToken, error) {
	var tokens []model.DeviceToken
	err := s.db.SelectContext(ctx, &tokens, `
		SELECT id, user_id, token, platform, created_at
		FROM device_tokens WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying device tokens: %w", err)
	}
	return tokens, nil
}

// DeleteDeviceToken removes a push token. Deleting an unknown token is not
// an error.
func (s *SQLiteStore) DeleteDeviceToken(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM device_tokens WHERE token = ?", token); err != nil {
		return fmt.Errorf("deleting device token: %w", err)
	}
	return nil
}
