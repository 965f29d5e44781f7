package model

import "time"

// NotificationPreferences is owned by the user and only read here.
type NotificationPreferences struct {
	UserID string `json:"user_id" db:"user_id"`

	// EnableBrowserNotifications gates the mobile/browser push leg only.
	EnableBrowserNotifications bool `json:"enable_browser_notifications" db:"enable_browser_notifications"`

	EnableTaskReminders           bool `json:"enable_task_reminders" db:"enable_task_reminders"`
	EnableDeadlineWarnings        bool `json:"enable_deadline_warnings" db:"enable_deadline_warnings"`
	EnableGroupNotifications      bool `json:"enable_group_notifications" db:"enable_group_notifications"`
	EnableStreakReminders         bool `json:"enable_streak_reminders" db:"enable_streak_reminders"`
	EnableAccountabilityReminders bool `json:"enable_accountability_reminders" db:"enable_accountability_reminders"`

	// ReminderLeadTime is the lead, in minutes, used for contexts the
	// interval policy does not know. Zero keeps the policy default.
	ReminderLeadTime int `json:"reminder_lead_time" db:"reminder_lead_time"`

	// QuietHoursStart and QuietHoursEnd are "HH:mm" in the user's zone.
	// Equal or empty values disable quiet hours.
	QuietHoursStart string `json:"quiet_hours_start" db:"quiet_hours_start"`
	QuietHoursEnd   string `json:"quiet_hours_end" db:"quiet_hours_end"`

	Timezone  string    `json:"timezone" db:"timezone"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultPreferences returns the preferences created for a user that has
// never saved any.
func DefaultPreferences(userID string) NotificationPreferences {
	return NotificationPreferences{
		UserID:                        userID,
		EnableBrowserNotifications:    true,
		EnableTaskReminders:           true,
		EnableDeadlineWarnings:        true,
		EnableGroupNotifications:      true,
		EnableStreakReminders:         true,
		EnableAccountabilityReminders: true,
		QuietHoursStart:               "22:00",
		QuietHoursEnd:                 "08:00",
	}
}
