package model

import "time"

// Status is the lifecycle state of a scheduled notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// ScheduledNotification is a reminder computed for a domain entity and
// persisted until the dispatcher delivers it.
type ScheduledNotification struct {
	// ID is the unique identifier for this row.
	ID string `json:"id" db:"id"`

	// UserID owns the notification.
	UserID string `json:"user_id" db:"user_id" validate:"required"`

	// SourceType is the kind of entity the reminder belongs to.
	SourceType SourceType `json:"source_type" db:"source_type" validate:"required"`

	// SourceID identifies the owning entity within its source type.
	SourceID string `json:"source_id" db:"source_id" validate:"required"`

	// NotificationType is the dedup key, usually
	// "{sourceType}_{context}_{leadMinutes}".
	NotificationType string `json:"notification_type" db:"notification_type" validate:"required"`

	// Title and Body hold the final rendered content.
	Title string `json:"title" db:"title" validate:"required"`
	Body  string `json:"body" db:"body"`

	// ScheduledAt is the absolute UTC instant the reminder becomes due.
	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at" validate:"required"`

	// Timezone is the IANA zone used for local-time computations.
	Timezone string `json:"timezone" db:"timezone"`

	// Route is the in-app deep link opened by the notification.
	Route string `json:"route" db:"route"`

	Status Status `json:"status" db:"status" validate:"oneof=pending sent failed cancelled"`

	// Metadata is an opaque bag (haptic, channel, location, render vars).
	Metadata map[string]any `json:"metadata,omitempty" db:"-"`

	SentAt        *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	FailureReason string     `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// MetaString returns the string stored under key in Metadata, or "".
func (n *ScheduledNotification) MetaString(key string) string {
	if n.Metadata == nil {
		return ""
	}
	s, _ := n.Metadata[key].(string)
	return s
}

// Metadata keys written by the scheduler.
const (
	MetaHaptic      = "haptic"
	MetaChannel     = "channel"
	MetaCategory    = "category"
	MetaPriority    = "priority"
	MetaField       = "field"
	MetaContext     = "context"
	MetaLeadMinutes = "leadMinutes"
	MetaLocation    = "location"
	MetaLabel       = "label"
	MetaRecurrence  = "recurrence"
	MetaMilestone   = "milestone"
	MetaStep        = "step"
	MetaVars        = "vars"
)

// NotificationPatch describes a transition out of pending. Stores apply
// it only to rows that are still pending.
type NotificationPatch struct {
	Status        Status
	SentAt        *time.Time
	FailureReason string
}

// NotificationHistory is the append-only log of dispatch attempts.
type NotificationHistory struct {
	ID                      string    `json:"id" db:"id"`
	UserID                  string    `json:"user_id" db:"user_id" validate:"required"`
	ScheduledNotificationID string    `json:"scheduled_notification_id" db:"scheduled_notification_id" validate:"required"`
	NotificationType        string    `json:"notification_type" db:"notification_type" validate:"required"`
	Title                   string    `json:"title" db:"title"`
	Body                    string    `json:"body" db:"body"`
	Route                   string    `json:"route" db:"route"`
	Channel                 string    `json:"channel" db:"channel"`
	HapticType              string    `json:"haptic_type" db:"haptic_type"`
	Status                  Status    `json:"status" db:"status" validate:"oneof=sent failed"`
	FailureReason           string    `json:"failure_reason,omitempty" db:"failure_reason"`
	SentAt                  time.Time `json:"sent_at" db:"sent_at" validate:"required"`
}

// UserNotification is the in-app (bell icon) record created on delivery.
type UserNotification struct {
	ID        string         `json:"id" db:"id"`
	UserID    string         `json:"user_id" db:"user_id"`
	Type      string         `json:"type" db:"type"`
	Title     string         `json:"title" db:"title"`
	Body      string         `json:"body" db:"body"`
	Route     string         `json:"route" db:"route"`
	Metadata  map[string]any `json:"metadata,omitempty" db:"-"`
	Read      bool           `json:"read" db:"read"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// DeviceToken is a registered mobile push token.
type DeviceToken struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	Platform  string    `json:"platform" db:"platform"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
