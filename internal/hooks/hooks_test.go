package hooks_test

import (
	"context"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/journalmate/internal/clock"
	"github.com/nhle/journalmate/internal/dispatch"
	"github.com/nhle/journalmate/internal/hooks"
	"github.com/nhle/journalmate/internal/model"
	"github.com/nhle/journalmate/internal/scheduler"
	"github.com/nhle/journalmate/internal/store"
	"github.com/nhle/journalmate/internal/timefield"
	"github.com/nhle/journalmate/tests/testutil"
)

var now = time.Date(2025, 8, 13, 12, 0, 0, 0, time.UTC)

type directory struct {
	activity map[string][]hooks.TaskState
	goal     map[string][]hooks.TaskState
}

func (d *directory) ActivityTasks(_ context.Context, id string) ([]hooks.TaskState, error) {
	return d.activity[id], nil
}

func (d *directory) GoalTasks(_ context.Context, id string) ([]hooks.TaskState, error) {
	return d.goal[id], nil
}

// complete marks the first n tasks of the goal as done.
func (d *directory) complete(goalID string, n int) {
	for i := range d.goal[goalID] {
		d.goal[goalID][i].Completed = i < n
	}
}

type streaks struct {
	days int
}

func (s *streaks) RecordCompletion(context.Context, string, time.Time) (int, error) {
	s.days++
	return s.days, nil
}

type dispatcher struct {
	ids []string
}

func (d *dispatcher) DispatchNow(_ context.Context, n model.ScheduledNotification) (dispatch.Outcome, error) {
	d.ids = append(d.ids, n.ID)
	return dispatch.OutcomeSent, nil
}

func newHooks(t *testing.T, opts ...hooks.Option) (*hooks.Hooks, *store.SQLiteStore) {
	t.Helper()
	st := testutil.NewTestStore(t)
	logger, _ := logtest.NewNullLogger()
	s := scheduler.New(st, scheduler.WithClock(clock.NewFixed(now)), scheduler.WithLogger(logger))
	base := []hooks.Option{hooks.WithLogger(logger), hooks.WithClock(clock.NewFixed(now))}
	return hooks.New(s, append(base, opts...)...), st
}

func pendingTypes(t *testing.T, st *store.SQLiteStore, sourceType model.SourceType, id string) []string {
	t.Helper()
	rows, err := st.ListSmartNotificationsForSource(context.Background(), sourceType, id)
	require.NoError(t, err)
	var out []string
	for _, r := range rows {
		if r.Status == model.StatusPending {
			out = append(out, r.NotificationType)
		}
	}
	return out
}

func trip(start string) timefield.Entity {
	return timefield.Entity{"id": "a1", "title": "Paris Trip", "startDate": start}
}

func TestOnCreatedAndDeleted(t *testing.T) {
	ctx := context.Background()
	h, st := newHooks(t)

	assert.Equal(t, 4, h.OnCreated(ctx, trip("2025-09-01T00:00:00Z"), model.SourceActivity, "a1", "u1"))
	assert.Len(t, pendingTypes(t, st, model.SourceActivity, "a1"), 4)

	assert.Equal(t, 4, h.OnDeleted(ctx, model.SourceActivity, "a1"))
	assert.Empty(t, pendingTypes(t, st, model.SourceActivity, "a1"))
	assert.Equal(t, 0, h.OnDeleted(ctx, model.SourceActivity, "a1"))
}

func TestOnUpdated(t *testing.T) {
	ctx := context.Background()
	h, st := newHooks(t)
	h.OnCreated(ctx, trip("2025-09-01T00:00:00Z"), model.SourceActivity, "a1", "u1")

	n, rescheduled := h.OnUpdated(ctx, trip("2025-09-01T00:00:00Z"),
		map[string]any{"title": "Paris Trip 2"}, model.SourceActivity, "a1", "u1")
	assert.False(t, rescheduled)
	assert.Equal(t, 0, n)

	// Moving the trip to four days out drops the one-week reminder.
	n, rescheduled = h.OnUpdated(ctx, trip("2025-08-17T00:00:00Z"),
		map[string]any{"startDate": "2025-08-17T00:00:00Z"}, model.SourceActivity, "a1", "u1")
	assert.True(t, rescheduled)
	assert.Equal(t, 3, n)
	assert.Len(t, pendingTypes(t, st, model.SourceActivity, "a1"), 3)
}

func TestOnUpdated_NestedMetadata(t *testing.T) {
	ctx := context.Background()
	h, _ := newHooks(t)

	entity := timefield.Entity{"title": "Lisbon", "metadata": map[string]any{"flightDeparture": "2025-08-20T10:00:00Z"}}
	_, rescheduled := h.OnUpdated(ctx, entity, map[string]any{"metadata": entity["metadata"]}, model.SourceActivity, "a2", "u1")
	assert.True(t, rescheduled)
}

func TestOnTaskCompleted_GoalMilestones(t *testing.T) {
	ctx := context.Background()
	dir := &directory{goal: map[string][]hooks.TaskState{
		"g1": {{ID: "t1"}, {ID: "t2"}, {ID: "t3"}, {ID: "t4"}},
	}}
	disp := &dispatcher{}
	h, st := newHooks(t, hooks.WithTaskDirectory(dir), hooks.WithDispatcher(disp))

	complete := func(n int, taskID string) []*model.ScheduledNotification {
		dir.complete("g1", n)
		return h.OnTaskCompleted(ctx, hooks.TaskEvent{TaskID: taskID, UserID: "u1", GoalID: "g1", GoalTitle: "Run a marathon"})
	}

	assert.Empty(t, complete(1, "t1"))

	created := complete(2, "t2")
	require.Len(t, created, 1)
	assert.Equal(t, "goal_milestone_50", created[0].NotificationType)
	assert.Equal(t, "Halfway there!", created[0].Title)
	assert.Equal(t, []string{created[0].ID}, disp.ids)

	// Uncomplete then complete the second task again.
	dir.complete("g1", 1)
	assert.Empty(t, complete(2, "t2"))

	created = complete(3, "t3")
	require.Len(t, created, 1)
	assert.Equal(t, "goal_milestone_75", created[0].NotificationType)

	rows, err := st.ListSmartNotificationsForSource(ctx, model.SourceAchievement, "g1")
	require.NoError(t, err)
	count50 := 0
	for _, r := range rows {
		if r.NotificationType == "goal_milestone_50" {
			count50++
		}
	}
	assert.Equal(t, 1, count50)
}

func TestOnTaskCompleted_MilestoneDedupAfterSend(t *testing.T) {
	ctx := context.Background()
	dir := &directory{goal: map[string][]hooks.TaskState{
		"g1": {{ID: "t1"}, {ID: "t2"}},
	}}
	h, st := newHooks(t, hooks.WithTaskDirectory(dir))

	dir.complete("g1", 1)
	created := h.OnTaskCompleted(ctx, hooks.TaskEvent{TaskID: "t1", UserID: "u1", GoalID: "g1"})
	require.Len(t, created, 1)

	ok, err := st.UpdateSmartNotification(ctx, created[0].ID, model.NotificationPatch{Status: model.StatusSent})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Empty(t, h.OnTaskCompleted(ctx, hooks.TaskEvent{TaskID: "t1", UserID: "u1", GoalID: "g1"}))
}

func TestOnTaskCompleted_BulkCompletionSkipsMilestone(t *testing.T) {
	ctx := context.Background()
	dir := &directory{goal: map[string][]hooks.TaskState{
		"g1": {{ID: "t1"}, {ID: "t2"}, {ID: "t3"}, {ID: "t4"}},
	}}
	h, _ := newHooks(t, hooks.WithTaskDirectory(dir))

	// Three tasks completed in one operation: only the 75% crossing is seen.
	dir.complete("g1", 3)
	created := h.OnTaskCompleted(ctx, hooks.TaskEvent{TaskID: "t3", UserID: "u1", GoalID: "g1"})
	require.Len(t, created, 1)
	assert.Equal(t, "goal_milestone_75", created[0].NotificationType)
}

func TestOnTaskCompleted_ActivityCompletion(t *testing.T) {
	ctx := context.Background()
	dir := &directory{activity: map[string][]hooks.TaskState{
		"a1": {{ID: "t1", Completed: true}, {ID: "t2"}},
	}}
	h, st := newHooks(t, hooks.WithTaskDirectory(dir))

	task := timefield.Entity{"title": "Book hotel", "dueDate": "2025-08-20T10:00:00Z"}
	h.OnCreated(ctx, task, model.SourceActivityTask, "t2", "u1")
	require.NotEmpty(t, pendingTypes(t, st, model.SourceActivityTask, "t2"))

	ev := hooks.TaskEvent{TaskID: "t2", UserID: "u1", EntityType: model.SourceActivityTask, ActivityID: "a1", ActivityTitle: "Paris Trip"}
	assert.Empty(t, h.OnTaskCompleted(ctx, ev))
	assert.Empty(t, pendingTypes(t, st, model.SourceActivityTask, "t2"))

	dir.activity["a1"][1].Completed = true
	created := h.OnTaskCompleted(ctx, ev)
	require.Len(t, created, 1)
	assert.Equal(t, "activity_completed", created[0].NotificationType)
	assert.Equal(t, "/activities/a1", created[0].Route)

	assert.Empty(t, h.OnTaskCompleted(ctx, ev))
}

func TestOnCompleted_KeepsActivityCelebration(t *testing.T) {
	ctx := context.Background()
	dir := &directory{activity: map[string][]hooks.TaskState{
		"a1": {{ID: "t1", Completed: true}},
	}}
	h, st := newHooks(t, hooks.WithTaskDirectory(dir))

	h.OnCreated(ctx, trip("2025-09-01T00:00:00Z"), model.SourceActivity, "a1", "u1")
	require.NotEmpty(t, pendingTypes(t, st, model.SourceActivity, "a1"))

	created := h.OnTaskCompleted(ctx, hooks.TaskEvent{TaskID: "t1", UserID: "u1", ActivityID: "a1", ActivityTitle: "Paris Trip"})
	require.Len(t, created, 1)

	// Completing the activity itself drops its reminders, not the
	// celebration that is still waiting for delivery.
	h.OnCompleted(ctx, model.SourceActivity, "a1")
	assert.Empty(t, pendingTypes(t, st, model.SourceActivity, "a1"))
	assert.Equal(t, []string{"activity_completed"}, pendingTypes(t, st, model.SourceAchievement, "a1"))
}

func TestOnUpdated_KeepsGoalMilestone(t *testing.T) {
	ctx := context.Background()
	dir := &directory{goal: map[string][]hooks.TaskState{
		"g1": {{ID: "t1"}, {ID: "t2"}},
	}}
	h, st := newHooks(t, hooks.WithTaskDirectory(dir))

	goal := timefield.Entity{"title": "Run a marathon", "deadline": "2025-10-01T00:00:00Z"}
	h.OnCreated(ctx, goal, model.SourceGoal, "g1", "u1")

	dir.complete("g1", 1)
	created := h.OnTaskCompleted(ctx, hooks.TaskEvent{TaskID: "t1", UserID: "u1", GoalID: "g1", GoalTitle: "Run a marathon"})
	require.Len(t, created, 1)
	assert.Equal(t, "/goals/g1", created[0].Route)

	goal["deadline"] = "2025-11-01T00:00:00Z"
	_, rescheduled := h.OnUpdated(ctx, goal, map[string]any{"deadline": goal["deadline"]}, model.SourceGoal, "g1", "u1")
	require.True(t, rescheduled)
	assert.NotEmpty(t, pendingTypes(t, st, model.SourceGoal, "g1"))
	assert.Equal(t, []string{"goal_milestone_50"}, pendingTypes(t, st, model.SourceAchievement, "g1"))
}

func TestOnTaskCompleted_Streak(t *testing.T) {
	ctx := context.Background()
	tracker := &streaks{days: 2}
	h, st := newHooks(t, hooks.WithStreakTracker(tracker))

	created := h.OnTaskCompleted(ctx, hooks.TaskEvent{TaskID: "t1", UserID: "u1"})
	require.Len(t, created, 1)
	assert.Equal(t, "streak_milestone_3", created[0].NotificationType)

	assert.Equal(t, []string{"streak_at_risk"}, pendingTypes(t, st, model.SourceStreak, "u1"))

	// The next completion replaces the at-risk reminder but keeps the
	// undelivered celebration.
	assert.Empty(t, h.OnTaskCompleted(ctx, hooks.TaskEvent{TaskID: "t2", UserID: "u1"}))
	assert.Equal(t, []string{"streak_at_risk"}, pendingTypes(t, st, model.SourceStreak, "u1"))
	assert.Equal(t, []string{"streak_milestone_3"}, pendingTypes(t, st, model.SourceStreak, "u1:3"))
}

func TestOnTaskUncompleted(t *testing.T) {
	ctx := context.Background()
	h, st := newHooks(t)
	task := timefield.Entity{"title": "Report", "dueDate": "2025-08-20T10:00:00Z"}

	h.OnCreated(ctx, task, model.SourceTask, "t1", "u1")
	h.OnCompleted(ctx, model.SourceTask, "t1")
	assert.Empty(t, pendingTypes(t, st, model.SourceTask, "t1"))

	assert.Equal(t, 1, h.OnTaskUncompleted(ctx, task, model.SourceTask, "t1", "u1"))
	assert.Equal(t, []string{"task_due_60"}, pendingTypes(t, st, model.SourceTask, "t1"))
}

func TestOnActivityShared(t *testing.T) {
	ctx := context.Background()
	h, st := newHooks(t)

	share := hooks.ActivityShare{
		ActivityID:    "a1",
		ActivityTitle: "Paris Trip",
		SharerID:      "u1",
		SharerName:    "Ana",
		GroupName:     "Travel Crew",
		RecipientIDs:  []string{"u1", "u2", "u3"},
	}
	created := h.OnActivityShared(ctx, share)
	require.Len(t, created, 2)
	assert.Equal(t, "u2", created[0].UserID)
	assert.Equal(t, "Ana shared a plan", created[0].Title)
	assert.Equal(t, "/activities/a1", created[0].Route)

	// Sharing again does not notify twice.
	assert.Empty(t, h.OnActivityShared(ctx, share))

	prefs := model.DefaultPreferences("u4")
	prefs.EnableGroupNotifications = false
	require.NoError(t, st.UpsertNotificationPreferences(ctx, prefs))
	share.RecipientIDs = []string{"u4"}
	assert.Empty(t, h.OnActivityShared(ctx, share))
}
