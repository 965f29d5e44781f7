package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	timezone     TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_preferences (
	user_id                         TEXT PRIMARY KEY,
	enable_browser_notifications    INTEGER NOT NULL DEFAULT 1 CHECK(enable_browser_notifications IN (0, 1)),
	enable_task_reminders           INTEGER NOT NULL DEFAULT 1 CHECK(enable_task_reminders IN (0, 1)),
	enable_deadline_warnings        INTEGER NOT NULL DEFAULT 1 CHECK(enable_deadline_warnings IN (0, 1)),
	enable_group_notifications      INTEGER NOT NULL DEFAULT 1 CHECK(enable_group_notifications IN (0, 1)),
	enable_streak_reminders         INTEGER NOT NULL DEFAULT 1 CHECK(enable_streak_reminders IN (0, 1)),
	enable_accountability_reminders INTEGER NOT NULL DEFAULT 1 CHECK(enable_accountability_reminders IN (0, 1)),
	reminder_lead_time              INTEGER NOT NULL DEFAULT 0,
	quiet_hours_start               TEXT NOT NULL DEFAULT '',
	quiet_hours_end                 TEXT NOT NULL DEFAULT '',
	timezone                        TEXT NOT NULL DEFAULT '',
	updated_at                      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS smart_notifications (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	source_type       TEXT NOT NULL,
	source_id         TEXT NOT NULL,
	notification_type TEXT NOT NULL,
	title             TEXT NOT NULL,
	body              TEXT NOT NULL DEFAULT '',
	scheduled_at      DATETIME NOT NULL,
	timezone          TEXT NOT NULL DEFAULT '',
	route             TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'pending'
		CHECK(status IN ('pending', 'sent', 'failed', 'cancelled')),
	metadata          TEXT NOT NULL DEFAULT '{}',
	sent_at           DATETIME,
	failure_reason    TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

-- At most one pending row per source and notification type.
CREATE UNIQUE INDEX IF NOT EXISTS idx_smart_notifications_pending_key
	ON smart_notifications(source_type, source_id, notification_type)
	WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_smart_notifications_due
	ON smart_notifications(status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_smart_notifications_user
	ON smart_notifications(user_id);

CREATE TABLE IF NOT EXISTS notification_history (
	id                        TEXT PRIMARY KEY,
	user_id                   TEXT NOT NULL,
	scheduled_notification_id TEXT NOT NULL,
	notification_type         TEXT NOT NULL,
	title                     TEXT NOT NULL DEFAULT '',
	body                      TEXT NOT NULL DEFAULT '',
	route                     TEXT NOT NULL DEFAULT '',
	channel                   TEXT NOT NULL DEFAULT '',
	haptic_type               TEXT NOT NULL DEFAULT '',
	status                    TEXT NOT NULL CHECK(status IN ('sent', 'failed')),
	failure_reason            TEXT NOT NULL DEFAULT '',
	sent_at                   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notification_history_notification
	ON notification_history(scheduled_notification_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS user_notifications (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	title      TEXT NOT NULL,
	body       TEXT NOT NULL DEFAULT '',
	route      TEXT NOT NULL DEFAULT '',
	metadata   TEXT NOT NULL DEFAULT '{}',
	read       INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_user_notifications_user_read
	ON user_notifications(user_id, read);

CREATE TABLE IF NOT EXISTS device_tokens (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	token      TEXT NOT NULL UNIQUE,
	platform   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_device_tokens_user ON device_tokens(user_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
CREATE INDEX IF NOT EXISTS idx_notification_history_user_sent
	ON notification_history(user_id, sent_at);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
