package scheduler

import (
	"fmt"
	"time"

	"github.com/nhle/journalmate/internal/clock"
	"github.com/nhle/journalmate/internal/interval"
	"github.com/nhle/journalmate/internal/model"
	"github.com/nhle/journalmate/internal/templates"
)

// routes maps an entity type to its deep-link pattern. "%s" is the entity ID.
var routes = map[model.SourceType]string{
	model.SourceTask:          "/tasks?highlight=%s",
	model.SourceActivity:      "/activities/%s",
	model.SourceActivityTask:  "/tasks?highlight=%s",
	model.SourceGoal:          "/goals/%s",
	model.SourceCalendarEvent: "/calendar?event=%s",
	model.SourceMedia:         "/library/%s",
}

// channels maps an entity type to its platform notification channel.
var channels = map[model.SourceType]string{
	model.SourceTask:          templates.ChannelTaskReminders,
	model.SourceActivity:      templates.ChannelActivityReminders,
	model.SourceActivityTask:  templates.ChannelTaskReminders,
	model.SourceGoal:          templates.ChannelGoalReminders,
	model.SourceCalendarEvent: templates.ChannelCalendarReminders,
	model.SourceMedia:         templates.ChannelMediaReleases,
}

// urgentContexts escalate close reminders to the urgent haptic.
var urgentContexts = map[string]bool{
	model.ContextDue:      true,
	model.ContextDeadline: true,
	model.ContextDeparts:  true,
}

// Route returns the deep link opened by a reminder for the entity.
func Route(entityType model.SourceType, entityID string) string {
	pattern, ok := routes[entityType]
	if !ok {
		return "/"
	}
	return fmt.Sprintf(pattern, entityID)
}

// Channel returns the notification channel for the entity type.
func Channel(entityType model.SourceType) string {
	if c, ok := channels[entityType]; ok {
		return c
	}
	return templates.ChannelReminders
}

// Haptic picks the vibration pattern for a reminder lead.
func Haptic(context string, lead int) templates.Haptic {
	switch {
	case lead == interval.MorningOf:
		return templates.HapticMedium
	case lead <= 60 && urgentContexts[context]:
		return templates.HapticUrgent
	case lead <= 60:
		return templates.HapticMedium
	default:
		return templates.HapticLight
	}
}

// CandidateAt computes when a reminder with the given lead fires for
// instant. The morning-of lead resolves to morningHour:00 on the instant's
// calendar day in loc. The result is in UTC.
func CandidateAt(instant time.Time, lead int, loc *time.Location, morningHour int) time.Time {
	if lead == interval.MorningOf {
		return clock.AtLocalHour(instant, loc, morningHour).UTC()
	}
	return instant.Add(-time.Duration(lead) * time.Minute).UTC()
}

// notificationType builds the dedup key for a field and lead. Timeline
// steps share contexts and leads, so each carries its step number.
func notificationType(entityType model.SourceType, f model.TimeField, lead int) string {
	key := templates.Key(string(entityType), f.Context, lead)
	if f.Step > 0 {
		return fmt.Sprintf("%s#step-%d", key, f.Step)
	}
	return key
}

// categoryEnabled reports whether the user's preferences allow reminders
// for this entity type and context.
func categoryEnabled(prefs *model.NotificationPreferences, entityType model.SourceType, context string) bool {
	if prefs == nil {
		return true
	}
	if context == model.ContextDeadline && !prefs.EnableDeadlineWarnings {
		return false
	}
	switch entityType {
	case model.SourceTask, model.SourceActivityTask:
		return prefs.EnableTaskReminders
	}
	return true
}

// immediateEnabled applies category flags to immediate notifications.
func immediateEnabled(prefs *model.NotificationPreferences, category string) bool {
	if prefs == nil {
		return true
	}
	switch category {
	case templates.CategoryStreak:
		return prefs.EnableStreakReminders
	case templates.CategorySocial:
		return prefs.EnableGroupNotifications
	case templates.CategoryAccountability:
		return prefs.EnableAccountabilityReminders
	}
	return true
}

// leadsFor returns the leads for a context. Contexts without a policy of
// their own use the user's reminder lead time when one is set.
func leadsFor(context string, prefs *model.NotificationPreferences) []int {
	if !interval.Known(context) && prefs != nil && prefs.ReminderLeadTime > 0 {
		return []int{prefs.ReminderLeadTime}
	}
	return interval.ForContext(context)
}
