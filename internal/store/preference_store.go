package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/journalmate/internal/model"
)

// GetNotificationPreferences retrieves a user's preferences. A user who
// has never saved any gets model.DefaultPreferences persisted and returned.
func (s *SQLiteStore) GetNotificationPreferences(
	ctx context.Context,
	userID string,
) (*model.NotificationPreferences, error) {
	var prefs model.NotificationPreferences
	err := s.db.GetContext(ctx, &prefs, `
		SELECT user_id, enable_browser_notifications,
			enable_task_reminders, enable_deadline_warnings,
			enable_group_notifications, enable_streak_reminders,
			enable_accountability_reminders, reminder_lead_time,
			quiet_hours_start, quiet_hours_end, timezone, updated_at
		FROM notification_preferences WHERE user_id = ?`, userID)
	if err == nil {
		return &prefs, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting preferences for %s: %w", userID, err)
	}

	prefs = model.DefaultPreferences(userID)
	if err := s.UpsertNotificationPreferences(ctx, prefs); err != nil {
		return nil, err
	}
	prefs.UpdatedAt = time.Now().UTC()
	return &prefs, nil
}

// UpsertNotificationPreferences inserts or replaces a user's preferences.
func (s *SQLiteStore) UpsertNotificationPreferences(
	ctx context.Context,
	prefs model.NotificationPreferences,
) error {
	if strings.TrimSpace(prefs.UserID) == "" {
		return fmt.Errorf("preferences user id must not be empty")
	}
	prefs.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences (
			user_id, enable_browser_notifications,
			enable_task_reminders, enable_deadline_warnings,
			enable_group_notifications, enable_streak_reminders,
			enable_accountability_reminders, reminder_lead_time,
			quiet_hours_start, quiet_hours_end, timezone, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			enable_browser_notifications = excluded.enable_browser_notifications,
			enable_task_reminders = excluded.enable_task_reminders,
			enable_deadline_warnings = excluded.enable_deadline_warnings,
			enable_group_notifications = excluded.enable_group_notifications,
			enable_streak_reminders = excluded.enable_streak_reminders,
			enable_accountability_reminders = excluded.enable_accountability_reminders,
			reminder_lead_time = excluded.reminder_lead_time,
			quiet_hours_start = excluded.quiet_hours_start,
			quiet_hours_end = excluded.quiet_hours_end,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at`,
		prefs.UserID, boolToInt(prefs.EnableBrowserNotifications),
		boolToInt(prefs.EnableTaskReminders), boolToInt(prefs.EnableDeadlineWarnings),
		boolToInt(prefs.EnableGroupNotifications), boolToInt(prefs.EnableStreakReminders),
		boolToInt(prefs.EnableAccountabilityReminders), prefs.ReminderLeadTime,
		prefs.QuietHoursStart, prefs.QuietHoursEnd, prefs.Timezone, prefs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving preferences for %s: %w", prefs.UserID, err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u,
		"SELECT id, display_name, timezone, created_at FROM users WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return &u, nil
}

// UpsertUser inserts a user or updates its display name and timezone.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u model.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id must not be empty")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, timezone, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			timezone = excluded.timezone`,
		u.ID, u.DisplayName, u.Timezone, u.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving user %s: %w", u.ID, err)
	}
	return nil
}
