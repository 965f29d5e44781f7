package store

import (
	"context"
	"time"

	"github.com/nhle/journalmate/internal/model"
)

// Store defines the persistence interface for scheduled notifications,
// their dispatch history, and the user data consulted while scheduling
// and delivering them.
type Store interface {
	// === Scheduled notifications ===

	CreateSmartNotification(ctx context.Context, n *model.ScheduledNotification) error
	GetPendingSmartNotifications(ctx context.Context, now time.Time) ([]model.ScheduledNotification, error)
	GetSmartNotification(ctx context.Context, id string) (*model.ScheduledNotification, error)

	// UpdateSmartNotification applies patch to a pending row and reports
	// whether a row changed. Rows in a terminal state are left untouched.
	UpdateSmartNotification(ctx context.Context, id string, patch model.NotificationPatch) (bool, error)

	// CancelSmartNotifications marks every pending row of a source as
	// cancelled and returns how many changed.
	CancelSmartNotifications(ctx context.Context, sourceType model.SourceType, sourceID string) (int, error)

	// FindPendingSmartNotification returns the newest row for the key whose
	// status is one of statuses (pending when none are given), or nil.
	FindPendingSmartNotification(
		ctx context.Context,
		userID string,
		sourceType model.SourceType,
		sourceID string,
		notificationType string,
		statuses ...model.Status,
	) (*model.ScheduledNotification, error)

	ListSmartNotificationsForSource(ctx context.Context, sourceType model.SourceType, sourceID string) ([]model.ScheduledNotification, error)

	// === History ===

	CreateNotificationHistory(ctx context.Context, h model.NotificationHistory) error
	GetNotificationHistory(ctx context.Context, userID string, limit int) ([]model.NotificationHistory, error)

	// === Users and preferences ===

	// GetNotificationPreferences returns the user's preferences, creating
	// and returning model.DefaultPreferences when none exist.
	GetNotificationPreferences(ctx context.Context, userID string) (*model.NotificationPreferences, error)
	UpsertNotificationPreferences(ctx context.Context, prefs model.NotificationPreferences) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	UpsertUser(ctx context.Context, u model.User) error

	// === In-app records and device tokens ===

	CreateUserNotification(ctx context.Context, n model.UserNotification) error
	GetUserNotifications(ctx context.Context, userID string, unreadOnly bool) ([]model.UserNotification, error)
	MarkUserNotificationRead(ctx context.Context, id string) error
	RegisterDeviceToken(ctx context.Context, t model.DeviceToken) error
	GetDeviceTokens(ctx context.Context, userID string) ([]model.DeviceToken, error)
	DeleteDeviceToken(ctx context.Context, token string) error
}
