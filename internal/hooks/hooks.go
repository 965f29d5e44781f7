// Package hooks translates domain events from the rest of the application
// into scheduling calls and secondary effects such as streaks and
// milestone celebrations.
package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/journalmate/internal/clock"
	"github.com/nhle/journalmate/internal/dispatch"
	"github.com/nhle/journalmate/internal/model"
	"github.com/nhle/journalmate/internal/templates"
	"github.com/nhle/journalmate/internal/timefield"
)

// Scheduler is the scheduling surface the hooks drive.
type Scheduler interface {
	AutoSchedule(ctx context.Context, entity timefield.Entity, entityType model.SourceType, entityID, userID string) int
	Reschedule(ctx context.Context, entity timefield.Entity, entityType model.SourceType, entityID, userID string) int
	CancelForSource(ctx context.Context, sourceType model.SourceType, sourceID string) (int, error)
	Immediate(
		ctx context.Context,
		userID string,
		sourceType model.SourceType,
		sourceID, notificationType string,
		vars templates.Vars,
		dedupe bool,
	) (*model.ScheduledNotification, error)
	ScheduleStreakReminder(ctx context.Context, userID string, streak int) (*model.ScheduledNotification, error)
}

// TaskState is the completion state of one task.
type TaskState struct {
	ID        string
	Completed bool
}

// TaskDirectory looks up the tasks grouped under an activity or a goal.
type TaskDirectory interface {
	ActivityTasks(ctx context.Context, activityID string) ([]TaskState, error)
	GoalTasks(ctx context.Context, goalID string) ([]TaskState, error)
}

// StreakTracker records a completion and returns the user's current
// streak in days.
type StreakTracker interface {
	RecordCompletion(ctx context.Context, userID string, at time.Time) (int, error)
}

// Dispatcher delivers an immediate notification without waiting for the
// next poll.
type Dispatcher interface {
	DispatchNow(ctx context.Context, n model.ScheduledNotification) (dispatch.Outcome, error)
}

// TaskEvent describes a task completion.
type TaskEvent struct {
	TaskID        string
	UserID        string
	EntityType    model.SourceType
	ActivityID    string
	ActivityTitle string
	GoalID        string
	GoalTitle     string
}

// ActivityShare describes an activity shared with other users.
type ActivityShare struct {
	ActivityID    string
	ActivityTitle string
	SharerID      string
	SharerName    string
	GroupName     string
	RecipientIDs  []string
}

// Hooks adapts entity lifecycle events to the scheduler.
type Hooks struct {
	scheduler  Scheduler
	directory  TaskDirectory
	streaks    StreakTracker
	dispatcher Dispatcher
	clock      clock.Clock
	log        logrus.FieldLogger
	timeFields map[string]bool
}

// Option configures Hooks.
type Option func(*Hooks)

// WithTaskDirectory enables activity completion and goal milestone checks.
func WithTaskDirectory(d TaskDirectory) Option {
	return func(h *Hooks) { h.directory = d }
}

// WithStreakTracker enables streak reminders and streak milestones.
func WithStreakTracker(t StreakTracker) Option {
	return func(h *Hooks) { h.streaks = t }
}

// WithDispatcher delivers immediate notifications as soon as they are
// created. Without one they go out on the next poll.
func WithDispatcher(d Dispatcher) Option {
	return func(h *Hooks) { h.dispatcher = d }
}

// WithClock sets the clock passed to the streak tracker.
func WithClock(c clock.Clock) Option {
	return func(h *Hooks) { h.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Hooks) { h.log = l }
}

// New creates Hooks that drive s.
func New(s Scheduler, opts ...Option) *Hooks {
	h := &Hooks{
		scheduler:  s,
		clock:      clock.NewReal(),
		log:        logrus.StandardLogger(),
		timeFields: make(map[string]bool),
	}
	for _, name := range timefield.FieldNames() {
		h.timeFields[name] = true
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnCreated schedules reminders for a new entity.
func (h *Hooks) OnCreated(
	ctx context.Context,
	entity timefield.Entity,
	entityType model.SourceType,
	entityID, userID string,
) int {
	return h.scheduler.AutoSchedule(ctx, entity, entityType, entityID, userID)
}

// OnUpdated replaces the entity's reminders when changed touches a
// time-bearing field. It reports whether a reschedule happened.
func (h *Hooks) OnUpdated(
	ctx context.Context,
	entity timefield.Entity,
	changed map[string]any,
	entityType model.SourceType,
	entityID, userID string,
) (int, bool) {
	if !h.touchesTime(changed) {
		return 0, false
	}
	return h.scheduler.Reschedule(ctx, entity, entityType, entityID, userID), true
}

// OnCompleted cancels the entity's pending reminders.
func (h *Hooks) OnCompleted(ctx context.Context, entityType model.SourceType, entityID string) int {
	return h.cancel(ctx, entityType, entityID)
}

// OnDeleted cancels the entity's pending reminders.
func (h *Hooks) OnDeleted(ctx context.Context, entityType model.SourceType, entityID string) int {
	return h.cancel(ctx, entityType, entityID)
}

// OnTaskCompleted cancels the task's reminders, then runs the streak,
// activity completion, and goal milestone checks. It returns the
// immediate notifications it created.
func (h *Hooks) OnTaskCompleted(ctx context.Context, ev TaskEvent) []*model.ScheduledNotification {
	entityType := ev.EntityType
	if entityType == "" {
		entityType = model.SourceTask
	}
	h.cancel(ctx, entityType, ev.TaskID)

	log := h.log.WithFields(logrus.Fields{"user_id": ev.UserID, "task_id": ev.TaskID})

	var created []*model.ScheduledNotification
	collect := func(n *model.ScheduledNotification, err error, what string) {
		if err != nil {
			log.WithError(err).Errorf("%s check", what)
			return
		}
		if n != nil {
			created = append(created, n)
		}
	}

	if h.streaks != nil {
		n, err := h.streak(ctx, ev.UserID)
		collect(n, err, "streak")
	}
	if h.directory != nil && ev.ActivityID != "" {
		n, err := h.activityCompletion(ctx, ev)
		collect(n, err, "activity completion")
	}
	if h.directory != nil && ev.GoalID != "" {
		ns, err := h.goalMilestones(ctx, ev)
		if err != nil {
			log.WithError(err).Error("goal milestone check")
		}
		created = append(created, ns...)
	}

	h.dispatchAll(ctx, created)
	return created
}

// OnTaskUncompleted restores the reminders of a reopened task.
func (h *Hooks) OnTaskUncompleted(
	ctx context.Context,
	entity timefield.Entity,
	entityType model.SourceType,
	taskID, userID string,
) int {
	return h.scheduler.Reschedule(ctx, entity, entityType, taskID, userID)
}

// OnActivityShared notifies every recipient other than the sharer.
func (h *Hooks) OnActivityShared(ctx context.Context, share ActivityShare) []*model.ScheduledNotification {
	vars := templates.Vars{
		"activityTitle": share.ActivityTitle,
		"sharerName":    share.SharerName,
		"groupName":     share.GroupName,
		"route":         fmt.Sprintf("/activities/%s", share.ActivityID),
	}

	var created []*model.ScheduledNotification
	for _, recipient := range share.RecipientIDs {
		if recipient == "" || recipient == share.SharerID {
			continue
		}
		n, err := h.scheduler.Immediate(ctx, recipient, model.SourceGroup,
			share.ActivityID+":"+recipient, "group_activity_shared", vars, true)
		if err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"user_id":     recipient,
				"activity_id": share.ActivityID,
			}).Error("notifying shared activity")
			continue
		}
		if n != nil {
			created = append(created, n)
		}
	}

	h.dispatchAll(ctx, created)
	return created
}

func (h *Hooks) touchesTime(changed map[string]any) bool {
	for key := range changed {
		if h.timeFields[key] {
			return true
		}
	}
	return false
}

func (h *Hooks) cancel(ctx context.Context, entityType model.SourceType, entityID string) int {
	n, err := h.scheduler.CancelForSource(ctx, entityType, entityID)
	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"source_type": entityType,
			"source_id":   entityID,
		}).Error("cancelling reminders")
		return 0
	}
	return n
}

func (h *Hooks) dispatchAll(ctx context.Context, created []*model.ScheduledNotification) {
	if h.dispatcher == nil {
		return
	}
	for _, n := range created {
		if _, err := h.dispatcher.DispatchNow(ctx, *n); err != nil {
			h.log.WithError(err).WithField("notification_id", n.ID).Error("dispatching immediate notification")
		}
	}
}
