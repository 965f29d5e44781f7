package scheduler

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/journalmate/internal/clock"
	"github.com/nhle/journalmate/internal/metrics"
	"github.com/nhle/journalmate/internal/model"
	"github.com/nhle/journalmate/internal/store"
	"github.com/nhle/journalmate/internal/templates"
	"github.com/nhle/journalmate/internal/timefield"
	"github.com/nhle/journalmate/tests/testutil"
)

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *store.SQLiteStore) {
	t.Helper()
	st := testutil.NewTestStore(t)
	logger, _ := logtest.NewNullLogger()
	return New(st, WithClock(clock.NewFixed(now)), WithLogger(logger)), st
}

func parisTrip() timefield.Entity {
	return timefield.Entity{
		"id":        "a1",
		"userId":    "u1",
		"title":     "Paris Trip",
		"startDate": "2025-09-01T00:00:00Z",
	}
}

func notificationTypes(rows []model.ScheduledNotification) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Status == model.StatusPending {
			out = append(out, r.NotificationType)
		}
	}
	sort.Strings(out)
	return out
}

func TestAutoSchedule_ParisTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	s, st := newTestScheduler(t, now)

	created := s.AutoSchedule(ctx, parisTrip(), model.SourceActivity, "a1", "u1")
	require.Equal(t, 4, created)

	rows, err := st.ListSmartNotificationsForSource(ctx, model.SourceActivity, "a1")
	require.NoError(t, err)
	require.Len(t, rows, 4)

	want := []struct {
		notificationType string
		at               time.Time
	}{
		{"activity_starts_10080", time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)},
		{"activity_starts_4320", time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC)},
		{"activity_starts_1440", time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)},
		{"activity_starts_0", time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)},
	}
	for i, w := range want {
		assert.Equal(t, w.notificationType, rows[i].NotificationType)
		assert.True(t, w.at.Equal(rows[i].ScheduledAt), "%s at %s", w.notificationType, rows[i].ScheduledAt)
		assert.Equal(t, "/activities/a1", rows[i].Route)
		assert.Equal(t, "UTC", rows[i].Timezone)
		assert.Equal(t, templates.ChannelActivityReminders, rows[i].MetaString(model.MetaChannel))
		assert.Contains(t, rows[i].Title+rows[i].Body, "Paris Trip")
	}
	assert.Equal(t, "medium", rows[3].MetaString(model.MetaHaptic))
	assert.Equal(t, "light", rows[0].MetaString(model.MetaHaptic))
}

func TestAutoSchedule_UserTimezone(t *testing.T) {
	ctx := context.Background()
	s, st := newTestScheduler(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, st.UpsertUser(ctx, model.User{ID: "u1", Timezone: "Asia/Tokyo"}))

	require.Equal(t, 4, s.AutoSchedule(ctx, parisTrip(), model.SourceActivity, "a1", "u1"))

	n, err := st.FindPendingSmartNotification(ctx, "u1", model.SourceActivity, "a1", "activity_starts_0")
	require.NoError(t, err)
	require.NotNil(t, n)
	// 08:00 in Tokyo on 1 September is 23:00 UTC the day before.
	assert.True(t, time.Date(2025, 8, 31, 23, 0, 0, 0, time.UTC).Equal(n.ScheduledAt))
	assert.Equal(t, "Asia/Tokyo", n.Timezone)
}

func TestAutoSchedule_DropsPastCandidates(t *testing.T) {
	ctx := context.Background()
	s, st := newTestScheduler(t, time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC))

	created := s.AutoSchedule(ctx, parisTrip(), model.SourceActivity, "a1", "u1")
	assert.Equal(t, 2, created)

	rows, err := st.ListSmartNotificationsForSource(ctx, model.SourceActivity, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"activity_starts_0", "activity_starts_1440"}, notificationTypes(rows))
	for _, r := range rows {
		assert.True(t, r.ScheduledAt.After(time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC)))
	}
}

func TestAutoSchedule_CandidateEqualToNowDropped(t *testing.T) {
	ctx := context.Background()
	// Exactly one week before the start.
	s, _ := newTestScheduler(t, time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 3, s.AutoSchedule(ctx, parisTrip(), model.SourceActivity, "a1", "u1"))
}

func TestAutoSchedule_IdempotentReschedule(t *testing.T) {
	ctx := context.Background()
	s, st := newTestScheduler(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))

	var counts []int
	var keys [][]string
	for i := 0; i < 2; i++ {
		_, err := s.CancelForSource(ctx, model.SourceActivity, "a1")
		require.NoError(t, err)
		counts = append(counts, s.AutoSchedule(ctx, parisTrip(), model.SourceActivity, "a1", "u1"))

		rows, err := st.ListSmartNotificationsForSource(ctx, model.SourceActivity, "a1")
		require.NoError(t, err)
		keys = append(keys, notificationTypes(rows))
	}

	assert.Equal(t, counts[0], counts[1])
	assert.Equal(t, keys[0], keys[1])
	assert.Len(t, keys[0], 4)
}

func TestAutoSchedule_DedupWithoutCancel(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 4, s.AutoSchedule(ctx, parisTrip(), model.SourceActivity, "a1", "u1"))
	assert.Equal(t, 0, s.AutoSchedule(ctx, parisTrip(), model.SourceActivity, "a1", "u1"))
}

func TestAutoSchedule_CancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	s.AutoSchedule(ctx, parisTrip(), model.SourceActivity, "a1", "u1")

	n, err := s.CancelForSource(ctx, model.SourceActivity, "a1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = s.CancelForSource(ctx, model.SourceActivity, "a1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAutoSchedule_Reschedule(t *testing.T) {
	ctx := context.Background()
	s, st := newTestScheduler(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	s.AutoSchedule(ctx, parisTrip(), model.SourceActivity, "a1", "u1")

	moved := parisTrip()
	moved["startDate"] = "2025-10-01T00:00:00Z"
	assert.Equal(t, 4, s.Reschedule(ctx, moved, model.SourceActivity, "a1", "u1"))

	n, err := st.FindPendingSmartNotification(ctx, "u1", model.SourceActivity, "a1", "activity_starts_0")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.True(t, time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC).Equal(n.ScheduledAt))
}

func TestAutoSchedule_TaskDue(t *testing.T) {
	ctx := context.Background()
	s, st := newTestScheduler(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))

	task := timefield.Entity{"title": "Submit report", "dueDate": "2025-08-02T17:00:00Z"}
	require.Equal(t, 1, s.AutoSchedule(ctx, task, model.SourceTask, "t1", "u1"))

	n, err := st.FindPendingSmartNotification(ctx, "u1", model.SourceTask, "t1", "task_due_60")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "Task due in 1 hour", n.Title)
	assert.Equal(t, "/tasks?highlight=t1", n.Route)
	assert.Equal(t, "urgent", n.MetaString(model.MetaHaptic))
	assert.True(t, time.Date(2025, 8, 2, 16, 0, 0, 0, time.UTC).Equal(n.ScheduledAt))
}

func TestAutoSchedule_CategoryDisabled(t *testing.T) {
	ctx := context.Background()
	s, st := newTestScheduler(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))

	prefs := model.DefaultPreferences("u1")
	prefs.EnableTaskReminders = false
	prefs.EnableDeadlineWarnings = false
	require.NoError(t, st.UpsertNotificationPreferences(ctx, prefs))

	task := timefield.Entity{"title": "Submit report", "dueDate": "2025-08-02T17:00:00Z"}
	assert.Equal(t, 0, s.AutoSchedule(ctx, task, model.SourceTask, "t1", "u1"))

	goal := timefield.Entity{"title": "Run a 10k", "deadline": "2025-09-01T00:00:00Z", "startDate": "2025-08-20T00:00:00Z"}
	// Only the start reminders survive.
	assert.Equal(t, 4, s.AutoSchedule(ctx, goal, model.SourceGoal, "g1", "u1"))
}

func TestAutoSchedule_TimelineSteps(t *testing.T) {
	ctx := context.Background()
	s, st := newTestScheduler(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))

	entity := timefield.Entity{
		"title": "Tokyo",
		"timeline": []any{
			map[string]any{"title": "Check in", "scheduledAt": "2025-08-10T15:00:00Z"},
			map[string]any{"scheduledAt": "2025-08-10T15:00:00Z"},
		},
	}
	require.Equal(t, 4, s.AutoSchedule(ctx, entity, model.SourceActivity, "a2", "u1"))

	rows, err := st.ListSmartNotificationsForSource(ctx, model.SourceActivity, "a2")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"activity_scheduled_15#step-1",
		"activity_scheduled_15#step-2",
		"activity_scheduled_60#step-1",
		"activity_scheduled_60#step-2",
	}, notificationTypes(rows))

	for _, r := range rows {
		if r.NotificationType == "activity_scheduled_60#step-1" {
			assert.Equal(t, "Check in", r.MetaString(model.MetaLabel))
			assert.Contains(t, r.Title, "Check in")
		}
	}
}

func TestAutoSchedule_NoFields(t *testing.T) {
	s, _ := newTestScheduler(t, time.Now())

	assert.Equal(t, 0, s.AutoSchedule(context.Background(), timefield.Entity{"title": "x"}, model.SourceTask, "t1", "u1"))
}

func TestAutoSchedule_Metrics(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore(t)
	logger, _ := logtest.NewNullLogger()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	s := New(st,
		WithClock(clock.NewFixed(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))),
		WithLogger(logger),
		WithMetrics(m),
	)

	s.AutoSchedule(ctx, parisTrip(), model.SourceActivity, "a1", "u1")
	_, err := s.CancelForSource(ctx, model.SourceActivity, "a1")
	require.NoError(t, err)

	assert.Equal(t, 4.0, promtest.ToFloat64(m.Scheduled.WithLabelValues("activity")))
	assert.Equal(t, 4.0, promtest.ToFloat64(m.Cancelled))
}

func TestRender_FallbackWarns(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	s := New(nil, WithLogger(logger))

	msg := s.render(logger, model.SourceTask, "mystery", 45, templates.Vars{"title": "Thing"})
	assert.Equal(t, "Upcoming reminder", msg.Title)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	hook.Reset()
	msg = s.render(logger, model.SourceTask, model.ContextStarts, 1440, templates.Vars{"title": "Thing"})
	assert.NotEqual(t, "Upcoming reminder", msg.Title)
	assert.Nil(t, hook.LastEntry())
}

func TestImmediate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, now)
	vars := templates.Vars{"goalTitle": "Marathon", "completed": 2, "total": 4, "milestone": 50}

	n, err := s.Immediate(ctx, "u1", model.SourceGoal, "g1", "goal_milestone_50", vars, true)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.True(t, now.Equal(n.ScheduledAt))
	assert.Equal(t, "celebration", n.MetaString(model.MetaHaptic))
	assert.Equal(t, 50, n.Metadata[model.MetaMilestone])

	again, err := s.Immediate(ctx, "u1", model.SourceGoal, "g1", "goal_milestone_50", vars, true)
	require.NoError(t, err)
	assert.Nil(t, again)

	_, err = s.Immediate(ctx, "u1", model.SourceGoal, "g1", "goal_milestone_33", vars, true)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestImmediate_CategoryDisabled(t *testing.T) {
	ctx := context.Background()
	s, st := newTestScheduler(t, time.Now())
	prefs := model.DefaultPreferences("u1")
	prefs.EnableGroupNotifications = false
	require.NoError(t, st.UpsertNotificationPreferences(ctx, prefs))

	n, err := s.Immediate(ctx, "u1", model.SourceGroup, "grp-1", "group_activity_shared",
		templates.Vars{"activityTitle": "Paris Trip"}, false)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestRules(t *testing.T) {
	assert.Equal(t, "/goals/g1", Route(model.SourceGoal, "g1"))
	assert.Equal(t, "/calendar?event=e1", Route(model.SourceCalendarEvent, "e1"))
	assert.Equal(t, "/", Route(model.SourceType("unknown"), "x"))

	assert.Equal(t, templates.ChannelMediaReleases, Channel(model.SourceMedia))
	assert.Equal(t, templates.ChannelReminders, Channel(model.SourceType("unknown")))

	assert.Equal(t, templates.HapticUrgent, Haptic(model.ContextDeadline, 60))
	assert.Equal(t, templates.HapticUrgent, Haptic(model.ContextDeparts, 60))
	assert.Equal(t, templates.HapticMedium, Haptic(model.ContextScheduled, 15))
	assert.Equal(t, templates.HapticMedium, Haptic(model.ContextStarts, 0))
	assert.Equal(t, templates.HapticLight, Haptic(model.ContextDeparts, 180))
}

func TestCandidateAt_MorningOf(t *testing.T) {
	instant := time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC)

	got := CandidateAt(instant, 0, time.UTC, DefaultMorningHour)
	assert.True(t, time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC).Equal(got))

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	got = CandidateAt(instant, 0, ny, DefaultMorningHour)
	assert.True(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC).Equal(got))

	got = CandidateAt(instant, 1440, time.UTC, DefaultMorningHour)
	assert.True(t, time.Date(2025, 6, 14, 23, 0, 0, 0, time.UTC).Equal(got))
}

func TestLeadsFor(t *testing.T) {
	prefs := model.DefaultPreferences("u1")
	prefs.ReminderLeadTime = 45

	assert.Equal(t, []int{45}, leadsFor("mystery", &prefs))
	assert.Equal(t, []int{30}, leadsFor("mystery", nil))
	assert.Equal(t, []int{60}, leadsFor(model.ContextDue, &prefs))
}
