package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/journalmate/internal/model"
	"github.com/nhle/journalmate/internal/templates"
)

// Periods lists every accountability period in scheduling order.
var Periods = []string{templates.PeriodWeekly, templates.PeriodMonthly, templates.PeriodQuarterly}

// NextAccountabilityAt returns the next check-in instant for period:
// weekly is the coming Sunday, monthly the 1st of next month, quarterly the
// first day of the next quarter, all at 09:00 in loc.
func NextAccountabilityAt(now time.Time, loc *time.Location, period string) (time.Time, error) {
	local := now.In(loc)
	y, m, d := local.Date()

	var next time.Time
	switch period {
	case templates.PeriodWeekly:
		days := (7 - int(local.Weekday())) % 7
		next = time.Date(y, m, d+days, accountabilityHour, 0, 0, 0, loc)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
	case templates.PeriodMonthly:
		next = time.Date(y, m+1, 1, accountabilityHour, 0, 0, 0, loc)
	case templates.PeriodQuarterly:
		quarterStart := time.Month((int(m)-1)/3*3 + 1)
		next = time.Date(y, quarterStart+3, 1, accountabilityHour, 0, 0, 0, loc)
	default:
		return time.Time{}, fmt.Errorf("unknown accountability period %q", period)
	}
	return next.UTC(), nil
}

// ScheduleAccountability enqueues the next check-in for period. It returns
// nil when one is already pending or the user turned these reminders off.
func (s *Scheduler) ScheduleAccountability(
	ctx context.Context,
	userID, period string,
) (*model.ScheduledNotification, error) {
	nt := "accountability_" + period
	log := s.log.WithFields(logrus.Fields{"user_id": userID, "notification_type": nt})

	uc, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !uc.prefs.EnableAccountabilityReminders {
		log.Debug("accountability reminders disabled")
		return nil, nil
	}

	at, err := NextAccountabilityAt(s.clock.Now(), uc.loc, period)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindPendingSmartNotification(ctx, userID, model.SourceAccountability, userID, nt)
	if err != nil {
		return nil, fmt.Errorf("checking pending %s: %w", nt, err)
	}
	if existing != nil {
		log.Debug("already pending")
		return nil, nil
	}

	msg, ok := templates.Generate(nt, nil)
	if !ok {
		return nil, fmt.Errorf("accountability %s: %w", period, ErrUnknownTemplate)
	}

	n := &model.ScheduledNotification{
		UserID:           userID,
		SourceType:       model.SourceAccountability,
		SourceID:         userID,
		NotificationType: nt,
		Title:            msg.Title,
		Body:             msg.Body,
		ScheduledAt:      at,
		Timezone:         uc.timezone,
		Route:            "/accountability?period=" + period,
		Status:           model.StatusPending,
		Metadata: map[string]any{
			model.MetaHaptic:     string(msg.Haptic),
			model.MetaChannel:    msg.Channel,
			model.MetaCategory:   msg.Category,
			model.MetaPriority:   string(msg.Priority),
			model.MetaRecurrence: period,
		},
	}
	if err := s.store.CreateSmartNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("persisting %s: %w", nt, err)
	}
	s.metrics.IncScheduled(string(model.SourceAccountability), 1)
	log.WithField("scheduled_at", at).Info("scheduled accountability check-in")
	return n, nil
}

// ScheduleAllAccountability enqueues every period and returns how many
// rows were created. A failing period does not stop the others.
func (s *Scheduler) ScheduleAllAccountability(ctx context.Context, userID string) int {
	created := 0
	for _, period := range Periods {
		n, err := s.ScheduleAccountability(ctx, userID, period)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"user_id": userID,
				"period":  period,
			}).Error("scheduling accountability")
			continue
		}
		if n != nil {
			created++
		}
	}
	return created
}

// ScheduleStreakReminder replaces the user's streak-at-risk reminder with
// one at 20:00 local on the next calendar day.
func (s *Scheduler) ScheduleStreakReminder(
	ctx context.Context,
	userID string,
	streak int,
) (*model.ScheduledNotification, error) {
	if _, err := s.CancelForSource(ctx, model.SourceStreak, userID); err != nil {
		return nil, err
	}

	uc, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !uc.prefs.EnableStreakReminders || streak <= 0 {
		return nil, nil
	}

	vars := templates.Vars{"streak": streak}
	msg, ok := templates.Generate("streak_at_risk", vars)
	if !ok {
		return nil, fmt.Errorf("streak reminder: %w", ErrUnknownTemplate)
	}

	local := s.clock.Now().In(uc.loc)
	y, m, d := local.Date()
	at := time.Date(y, m, d+1, streakCheckHour, 0, 0, 0, uc.loc).UTC()

	n := &model.ScheduledNotification{
		UserID:           userID,
		SourceType:       model.SourceStreak,
		SourceID:         userID,
		NotificationType: "streak_at_risk",
		Title:            msg.Title,
		Body:             msg.Body,
		ScheduledAt:      at,
		Timezone:         uc.timezone,
		Route:            "/",
		Status:           model.StatusPending,
		Metadata: map[string]any{
			model.MetaHaptic:   string(msg.Haptic),
			model.MetaChannel:  msg.Channel,
			model.MetaCategory: msg.Category,
			model.MetaPriority: string(msg.Priority),
			model.MetaVars:     map[string]any(vars),
		},
	}
	if err := s.store.CreateSmartNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("persisting streak reminder: %w", err)
	}
	s.metrics.IncScheduled(string(model.SourceStreak), 1)
	return n, nil
}

// RescheduleRecurring enqueues the next occurrence after a recurring row
// has been sent. Rows without a recurrence are ignored.
func (s *Scheduler) RescheduleRecurring(ctx context.Context, n model.ScheduledNotification) {
	period := n.MetaString(model.MetaRecurrence)
	if period == "" || n.SourceType != model.SourceAccountability {
		return
	}
	if _, err := s.ScheduleAccountability(ctx, n.UserID, period); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id": n.UserID,
			"period":  period,
		}).Error("rescheduling accountability")
	}
}
