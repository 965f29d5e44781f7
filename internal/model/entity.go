package model

import "time"

// SourceType identifies the kind of entity that owns a notification.
type SourceType string

const (
	SourceTask           SourceType = "task"
	SourceActivity       SourceType = "activity"
	SourceActivityTask   SourceType = "activityTask"
	SourceGoal           SourceType = "goal"
	SourceCalendarEvent  SourceType = "calendarEvent"
	SourceMedia          SourceType = "media"
	SourceAccountability SourceType = "accountability"
	SourceStreak         SourceType = "streak"
	SourceGroup          SourceType = "group"

	// SourceAchievement holds celebrations for an activity or goal. They
	// outlive the entity's own reminders, which are cancelled on completion
	// and replaced on reschedule.
	SourceAchievement SourceType = "achievement"
)

// TimeField is a time-bearing value found on an entity. It is produced
// fresh on every extraction and never stored.
type TimeField struct {
	// FieldName is the dotted path into the source entity
	// (e.g. "startDate", "metadata.flightDeparture", "timeline[2].scheduledAt").
	FieldName string

	// Value is the parsed absolute instant.
	Value time.Time

	// Context is the semantic label selecting the interval policy.
	Context string

	// Label is the timeline step title; empty for plain fields.
	Label string

	// Step is the 1-based timeline position; zero for plain fields.
	Step int
}

// Semantic contexts assigned by the extractor.
const (
	ContextDue         = "due"
	ContextStarts      = "starts"
	ContextEnds        = "ends"
	ContextDeadline    = "deadline"
	ContextScheduled   = "scheduled"
	ContextReleases    = "releases"
	ContextDeparts     = "departs"
	ContextArrives     = "arrives"
	ContextCheckIn     = "check-in"
	ContextReservation = "reservation"
	ContextEvent       = "event"
)

// User is the subset of the account record this module reads.
type User struct {
	ID          string    `json:"id" db:"id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Timezone    string    `json:"timezone" db:"timezone"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
