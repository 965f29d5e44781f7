package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/journalmate/internal/model"
)

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "journalmate-notify", "debug")

	log.WithUserID("user-1").Debug("scheduled")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scheduled", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "journalmate-notify", entry["service"])
	assert.Equal(t, "user-1", entry["user_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"WARN":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"verbose": logrus.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewLogger_LevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	var buf bytes.Buffer
	log := newLogger(&buf, "svc", "")

	log.Info("dropped")
	assert.Empty(t, buf.String())
}

func TestNotificationFields(t *testing.T) {
	f := NotificationFields(model.ScheduledNotification{
		ID:               "n-1",
		UserID:           "user-1",
		SourceType:       model.SourceTask,
		SourceID:         "task-1",
		NotificationType: "task_due_60",
	})
	assert.Equal(t, "n-1", f["notification_id"])
	assert.Equal(t, "task_due_60", f["notification_type"])
}
