package hooks

import (
	"context"
	"fmt"

	"github.com/nhle/journalmate/internal/model"
	"github.com/nhle/journalmate/internal/scheduler"
	"github.com/nhle/journalmate/internal/templates"
)

// streak records the completion, moves the at-risk reminder to tomorrow,
// and celebrates a milestone streak once.
func (h *Hooks) streak(ctx context.Context, userID string) (*model.ScheduledNotification, error) {
	days, err := h.streaks.RecordCompletion(ctx, userID, h.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("recording streak: %w", err)
	}
	if _, err := h.scheduler.ScheduleStreakReminder(ctx, userID, days); err != nil {
		return nil, err
	}

	for _, m := range templates.StreakMilestones {
		if days == m {
			// Keyed apart from the at-risk reminder, which is replaced on
			// every completion.
			return h.scheduler.Immediate(ctx, userID, model.SourceStreak, fmt.Sprintf("%s:%d", userID, m),
				fmt.Sprintf("streak_milestone_%d", m), templates.Vars{"streak": days, "milestone": m}, true)
		}
	}
	return nil, nil
}

// activityCompletion celebrates once when every task under the activity
// is done.
func (h *Hooks) activityCompletion(ctx context.Context, ev TaskEvent) (*model.ScheduledNotification, error) {
	tasks, err := h.directory.ActivityTasks(ctx, ev.ActivityID)
	if err != nil {
		return nil, fmt.Errorf("loading activity tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	for _, t := range tasks {
		if !t.Completed {
			return nil, nil
		}
	}

	return h.scheduler.Immediate(ctx, ev.UserID, model.SourceAchievement, ev.ActivityID, "activity_completed",
		templates.Vars{
			"activityTitle": ev.ActivityTitle,
			"taskCount":     len(tasks),
			"route":         scheduler.Route(model.SourceActivity, ev.ActivityID),
		}, true)
}

// goalMilestones sends every goal milestone crossed by this completion.
// The previous percentage assumes exactly one task was just completed, so
// completing several tasks in one operation can skip a milestone.
func (h *Hooks) goalMilestones(ctx context.Context, ev TaskEvent) ([]*model.ScheduledNotification, error) {
	tasks, err := h.directory.GoalTasks(ctx, ev.GoalID)
	if err != nil {
		return nil, fmt.Errorf("loading goal tasks: %w", err)
	}
	total := len(tasks)
	if total == 0 {
		return nil, nil
	}
	completed := 0
	for _, t := range tasks {
		if t.Completed {
			completed++
		}
	}

	current := completed * 100 / total
	previous := (completed - 1) * 100 / total

	var created []*model.ScheduledNotification
	for _, m := range templates.GoalMilestones {
		if previous >= m || current < m {
			continue
		}
		vars := templates.Vars{
			"goalTitle": ev.GoalTitle,
			"completed": completed,
			"total":     total,
			"milestone": m,
			"route":     scheduler.Route(model.SourceGoal, ev.GoalID),
		}
		n, err := h.scheduler.Immediate(ctx, ev.UserID, model.SourceAchievement, ev.GoalID,
			fmt.Sprintf("goal_milestone_%d", m), vars, true)
		if err != nil {
			return created, err
		}
		if n != nil {
			created = append(created, n)
		}
	}
	return created, nil
}
