package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nhle/journalmate/internal/model"
)

// Logger wraps logrus logger
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a JSON logger writing to stdout. An empty level falls
// back to the LOG_LEVEL environment variable.
func NewLogger(serviceName, level string) *Logger {
	return newLogger(os.Stdout, serviceName, level)
}

func newLogger(out io.Writer, serviceName, level string) *Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(out)

	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	log.SetLevel(parseLevel(level))

	log.AddHook(serviceHook{service: serviceName})

	return &Logger{Logger: log}
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithUserID adds user ID to logger
func (l *Logger) WithUserID(userID string) *logrus.Entry {
	return l.WithField("user_id", userID)
}

// NotificationFields returns the fields identifying a scheduled row in logs.
func NotificationFields(n model.ScheduledNotification) logrus.Fields {
	return logrus.Fields{
		"notification_id":   n.ID,
		"user_id":           n.UserID,
		"source_type":       n.SourceType,
		"source_id":         n.SourceID,
		"notification_type": n.NotificationType,
	}
}

// serviceHook stamps every entry with the service name.
type serviceHook struct {
	service string
}

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = h.service
	}
	return nil
}
