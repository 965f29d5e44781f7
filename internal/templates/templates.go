// Package templates renders notification titles and bodies from a static
// registry keyed by notification type.
package templates

import (
	"fmt"

	"github.com/spf13/cast"
)

// Haptic selects the client vibration pattern.
type Haptic string

const (
	HapticLight       Haptic = "light"
	HapticMedium      Haptic = "medium"
	HapticHeavy       Haptic = "heavy"
	HapticCelebration Haptic = "celebration"
	HapticUrgent      Haptic = "urgent"
)

// Priority is a delivery urgency hint.
type Priority string

const (
	PriorityLow     Priority = "low"
	PriorityDefault Priority = "default"
	PriorityHigh    Priority = "high"
)

// Logical platform channels.
const (
	ChannelTaskReminders     = "task_reminders"
	ChannelActivityReminders = "activity_reminders"
	ChannelGoalReminders     = "goal_reminders"
	ChannelCalendarReminders = "calendar_reminders"
	ChannelMediaReleases     = "media_releases"
	ChannelAchievements      = "achievements"
	ChannelStreaks           = "streaks"
	ChannelAccountability    = "accountability"
	ChannelSocial            = "social"
	ChannelReminders         = "reminders"
)

// Categories group templates for preference checks.
const (
	CategoryReminder       = "reminder"
	CategoryDeadline       = "deadline"
	CategoryAchievement    = "achievement"
	CategoryStreak         = "streak"
	CategoryAccountability = "accountability"
	CategorySocial         = "social"
)

// Length limits applied to interpolated free text.
const (
	TitleLimit    = 40
	NameLimit     = 36
	LocationLimit = 45
)

// Vars is the free-form render context (names, counts, locations).
type Vars map[string]any

// Message is a rendered notification.
type Message struct {
	Title    string
	Body     string
	Haptic   Haptic
	Channel  string
	Category string
	Priority Priority
}

// Template pairs two pure render functions with delivery hints.
type Template struct {
	Title    func(Vars) string
	Body     func(Vars) string
	Haptic   Haptic
	Channel  string
	Category string
	Priority Priority
}

func (t Template) render(v Vars) Message {
	if v == nil {
		v = Vars{}
	}
	return Message{
		Title:    t.Title(v),
		Body:     t.Body(v),
		Haptic:   t.Haptic,
		Channel:  t.Channel,
		Category: t.Category,
		Priority: t.Priority,
	}
}

// registry is built once at init and only read afterwards.
var registry = buildRegistry()

// Generate renders the template registered for notificationType. The
// boolean is false when no template exists; callers skip and warn.
func Generate(notificationType string, vars Vars) (Message, bool) {
	t, ok := registry[notificationType]
	if !ok {
		return Message{}, false
	}
	return t.render(vars), true
}

// Has reports whether notificationType has a registered template.
func Has(notificationType string) bool {
	_, ok := registry[notificationType]
	return ok
}

// Fallback is the generic message used when neither the entity-specific
// nor the context-generic template exists.
func Fallback(context string, lead int, vars Vars) Message {
	if vars == nil {
		vars = Vars{}
	}
	name := Text(vars, "title", "Your plan", TitleLimit)
	body := fmt.Sprintf("%s is coming up %s.", name, LeadPhrase(lead))
	if context != "" {
		body = fmt.Sprintf("%s (%s) is coming up %s.", name, context, LeadPhrase(lead))
	}
	return Message{
		Title:    "Upcoming reminder",
		Body:     body,
		Haptic:   HapticLight,
		Channel:  ChannelReminders,
		Category: CategoryReminder,
		Priority: PriorityDefault,
	}
}

// Truncate shortens s to max runes, ending in "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// Text reads a string var, truncated to limit, or fallback when absent.
func Text(v Vars, key, fallback string, limit int) string {
	s := cast.ToString(v[key])
	if s == "" {
		return fallback
	}
	return Truncate(s, limit)
}

// Number reads an integer var.
func Number(v Vars, key string) (int, bool) {
	raw, ok := v[key]
	if !ok || raw == nil {
		return 0, false
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// LeadPhrase describes a lead time relative to the event.
func LeadPhrase(lead int) string {
	switch {
	case lead == 0:
		return "today"
	case lead%(7*24*60) == 0:
		return plural(lead/(7*24*60), "week")
	case lead == 24*60:
		return "tomorrow"
	case lead%(24*60) == 0:
		return plural(lead/(24*60), "day")
	case lead%60 == 0:
		return plural(lead/60, "hour")
	default:
		return plural(lead, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("in 1 %s", unit)
	}
	return fmt.Sprintf("in %d %ss", n, unit)
}

// at renders " at {location}" or "".
func at(v Vars) string {
	loc := Text(v, "location", "", LocationLimit)
	if loc == "" {
		return ""
	}
	return " at " + loc
}
