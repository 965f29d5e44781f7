package templates

import (
	"fmt"

	"github.com/nhle/journalmate/internal/interval"
	"github.com/nhle/journalmate/internal/model"
)

// Milestone thresholds with registered templates.
var (
	GoalMilestones   = []int{50, 75, 100}
	StreakMilestones = []int{3, 7, 14, 30, 100}
)

// Accountability periods with registered templates.
const (
	PeriodWeekly    = "weekly"
	PeriodMonthly   = "monthly"
	PeriodQuarterly = "quarterly"
)

// Key builds the "{prefix}_{context}_{lead}" lookup key. An empty prefix
// yields the context-generic "{context}_{lead}".
func Key(prefix, context string, lead int) string {
	if prefix == "" {
		return fmt.Sprintf("%s_%d", context, lead)
	}
	return fmt.Sprintf("%s_%s_%d", prefix, context, lead)
}

// contextVerbs phrase each context for generic templates.
var contextVerbs = map[string]string{
	model.ContextDue:         "is due",
	model.ContextStarts:      "starts",
	model.ContextEnds:        "ends",
	model.ContextDeadline:    "deadline is",
	model.ContextScheduled:   "is scheduled",
	model.ContextReleases:    "releases",
	model.ContextDeparts:     "departs",
	model.ContextArrives:     "arrives",
	model.ContextCheckIn:     "check-in is",
	model.ContextReservation: "reservation is",
	model.ContextEvent:       "starts",
}

func buildRegistry() map[string]Template {
	r := make(map[string]Template)

	for _, c := range interval.Contexts() {
		for _, lead := range interval.ForContext(c) {
			r[Key("", c, lead)] = genericTemplate(c, lead)
		}
	}

	registerTasks(r)
	registerActivities(r)
	registerGoals(r)
	registerCalendarAndMedia(r)
	registerAchievements(r)
	registerAccountability(r)
	registerSocial(r)

	return r
}

func genericTemplate(context string, lead int) Template {
	verb := contextVerbs[context]
	when := LeadPhrase(lead)
	urgent := lead > 0 && lead <= 60

	t := Template{
		Title: func(v Vars) string {
			label := Text(v, "label", "", NameLimit)
			if label != "" {
				return fmt.Sprintf("%s %s", label, when)
			}
			return fmt.Sprintf("Reminder: %s", when)
		},
		Body: func(v Vars) string {
			name := Text(v, "title", "Your plan", TitleLimit)
			if label := Text(v, "label", "", NameLimit); label != "" {
				return fmt.Sprintf("%s: %s %s %s%s.", name, label, verb, when, at(v))
			}
			return fmt.Sprintf("%s %s %s%s.", name, verb, when, at(v))
		},
		Haptic:   HapticLight,
		Channel:  ChannelReminders,
		Category: CategoryReminder,
		Priority: PriorityDefault,
	}
	if context == model.ContextDeadline {
		t.Category = CategoryDeadline
	}
	if urgent {
		t.Haptic = HapticMedium
		t.Priority = PriorityHigh
	}
	return t
}

func registerTasks(r map[string]Template) {
	r[Key(string(model.SourceTask), model.ContextDue, 60)] = Template{
		Title: func(v Vars) string { return "Task due in 1 hour" },
		Body: func(v Vars) string {
			return fmt.Sprintf("\"%s\" is due soon. Wrap it up!", Text(v, "title", "Your task", TitleLimit))
		},
		Haptic:   HapticUrgent,
		Channel:  ChannelTaskReminders,
		Category: CategoryReminder,
		Priority: PriorityHigh,
	}
	r[Key(string(model.SourceActivityTask), model.ContextDue, 60)] = Template{
		Title: func(v Vars) string { return "Task due in 1 hour" },
		Body: func(v Vars) string {
			task := Text(v, "title", "A task", TitleLimit)
			if activity := Text(v, "activityTitle", "", NameLimit); activity != "" {
				return fmt.Sprintf("\"%s\" from %s is due soon.", task, activity)
			}
			return fmt.Sprintf("\"%s\" is due soon.", task)
		},
		Haptic:   HapticUrgent,
		Channel:  ChannelTaskReminders,
		Category: CategoryReminder,
		Priority: PriorityHigh,
	}
}

func registerActivities(r map[string]Template) {
	activity := string(model.SourceActivity)
	starts := model.ContextStarts

	r[Key(activity, starts, 10080)] = Template{
		Title: func(v Vars) string {
			return fmt.Sprintf("One week until %s", Text(v, "title", "your plan", NameLimit))
		},
		Body: func(v Vars) string {
			return fmt.Sprintf("%s%s is a week away. Start going through your checklist.", Text(v, "title", "Your plan", TitleLimit), at(v))
		},
		Haptic:   HapticLight,
		Channel:  ChannelActivityReminders,
		Category: CategoryReminder,
		Priority: PriorityLow,
	}
	r[Key(activity, starts, 4320)] = Template{
		Title: func(v Vars) string {
			return fmt.Sprintf("%s is 3 days away", Text(v, "title", "Your plan", NameLimit))
		},
		Body: func(v Vars) string {
			body := "Three days to go. Check what's still open on your plan."
			if n, ok := Number(v, "openTasks"); ok && n > 0 {
				body = fmt.Sprintf("Three days to go and %d tasks still open.", n)
			}
			return body
		},
		Haptic:   HapticLight,
		Channel:  ChannelActivityReminders,
		Category: CategoryReminder,
		Priority: PriorityDefault,
	}
	r[Key(activity, starts, 1440)] = Template{
		Title: func(v Vars) string {
			return fmt.Sprintf("%s is tomorrow", Text(v, "title", "Your plan", NameLimit))
		},
		Body: func(v Vars) string {
			return fmt.Sprintf("Get ready: %s starts tomorrow%s.", Text(v, "title", "your plan", TitleLimit), at(v))
		},
		Haptic:   HapticMedium,
		Channel:  ChannelActivityReminders,
		Category: CategoryReminder,
		Priority: PriorityDefault,
	}
	r[Key(activity, starts, interval.MorningOf)] = Template{
		Title: func(v Vars) string {
			return fmt.Sprintf("Today: %s", Text(v, "title", "your plan", NameLimit))
		},
		Body: func(v Vars) string {
			return fmt.Sprintf("%s is happening today%s. Have a great time!", Text(v, "title", "Your plan", TitleLimit), at(v))
		},
		Haptic:   HapticMedium,
		Channel:  ChannelActivityReminders,
		Category: CategoryReminder,
		Priority: PriorityHigh,
	}
}

func registerGoals(r map[string]Template) {
	goal := string(model.SourceGoal)
	for _, lead := range interval.ForContext(model.ContextDeadline) {
		lead := lead
		t := Template{
			Title: func(v Vars) string {
				return fmt.Sprintf("Goal deadline %s", LeadPhrase(lead))
			},
			Body: func(v Vars) string {
				name := Text(v, "title", "Your goal", TitleLimit)
				if pct, ok := Number(v, "progress"); ok {
					return fmt.Sprintf("%s is %d%% done and due %s.", name, pct, LeadPhrase(lead))
				}
				return fmt.Sprintf("%s is due %s.", name, LeadPhrase(lead))
			},
			Haptic:   HapticMedium,
			Channel:  ChannelGoalReminders,
			Category: CategoryDeadline,
			Priority: PriorityDefault,
		}
		if lead <= 60 {
			t.Haptic = HapticUrgent
			t.Priority = PriorityHigh
		}
		r[Key(goal, model.ContextDeadline, lead)] = t
	}
}

func registerCalendarAndMedia(r map[string]Template) {
	r[Key(string(model.SourceCalendarEvent), model.ContextStarts, 1440)] = Template{
		Title: func(v Vars) string { return "Tomorrow on your calendar" },
		Body: func(v Vars) string {
			return fmt.Sprintf("%s%s.", Text(v, "title", "An event", TitleLimit), at(v))
		},
		Haptic:   HapticLight,
		Channel:  ChannelCalendarReminders,
		Category: CategoryReminder,
		Priority: PriorityDefault,
	}
	r[Key(string(model.SourceCalendarEvent), model.ContextStarts, interval.MorningOf)] = Template{
		Title: func(v Vars) string { return "Today on your calendar" },
		Body: func(v Vars) string {
			return fmt.Sprintf("%s is today%s.", Text(v, "title", "An event", TitleLimit), at(v))
		},
		Haptic:   HapticMedium,
		Channel:  ChannelCalendarReminders,
		Category: CategoryReminder,
		Priority: PriorityDefault,
	}
	r[Key(string(model.SourceMedia), model.ContextReleases, 1440)] = Template{
		Title: func(v Vars) string {
			return fmt.Sprintf("%s drops tomorrow", Text(v, "title", "A release", NameLimit))
		},
		Body: func(v Vars) string {
			return fmt.Sprintf("%s releases tomorrow. It's on your watchlist.", Text(v, "title", "A release", TitleLimit))
		},
		Haptic:   HapticLight,
		Channel:  ChannelMediaReleases,
		Category: CategoryReminder,
		Priority: PriorityLow,
	}
	r[Key(string(model.SourceMedia), model.ContextReleases, interval.MorningOf)] = Template{
		Title: func(v Vars) string {
			return fmt.Sprintf("Out today: %s", Text(v, "title", "a release", NameLimit))
		},
		Body: func(v Vars) string {
			return fmt.Sprintf("%s is out today%s.", Text(v, "title", "A release", TitleLimit), at(v))
		},
		Haptic:   HapticMedium,
		Channel:  ChannelMediaReleases,
		Category: CategoryReminder,
		Priority: PriorityDefault,
	}
}

func registerAchievements(r map[string]Template) {
	r["activity_completed"] = Template{
		Title: func(v Vars) string { return "Activity complete!" },
		Body: func(v Vars) string {
			name := Text(v, "activityTitle", "your activity", TitleLimit)
			if n, ok := Number(v, "taskCount"); ok && n > 0 {
				return fmt.Sprintf("You finished all %d tasks in %s. Nice work!", n, name)
			}
			return fmt.Sprintf("You finished every task in %s. Nice work!", name)
		},
		Haptic:   HapticCelebration,
		Channel:  ChannelAchievements,
		Category: CategoryAchievement,
		Priority: PriorityDefault,
	}

	goalTitles := map[int]string{
		50:  "Halfway there!",
		75:  "75% of the way!",
		100: "Goal achieved!",
	}
	for _, pct := range GoalMilestones {
		pct := pct
		r[fmt.Sprintf("goal_milestone_%d", pct)] = Template{
			Title: func(v Vars) string { return goalTitles[pct] },
			Body: func(v Vars) string {
				name := Text(v, "goalTitle", "your goal", TitleLimit)
				done, okDone := Number(v, "completed")
				total, okTotal := Number(v, "total")
				if okDone && okTotal {
					return fmt.Sprintf("%d of %d tasks done for %s.", done, total, name)
				}
				if pct == 100 {
					return fmt.Sprintf("You completed %s.", name)
				}
				return fmt.Sprintf("You're %d%% through %s.", pct, name)
			},
			Haptic:   HapticCelebration,
			Channel:  ChannelAchievements,
			Category: CategoryAchievement,
			Priority: PriorityDefault,
		}
	}

	for _, days := range StreakMilestones {
		days := days
		r[fmt.Sprintf("streak_milestone_%d", days)] = Template{
			Title: func(v Vars) string { return fmt.Sprintf("%d-day streak!", days) },
			Body: func(v Vars) string {
				return fmt.Sprintf("You've completed something %d days in a row. Keep it going.", days)
			},
			Haptic:   HapticCelebration,
			Channel:  ChannelStreaks,
			Category: CategoryStreak,
			Priority: PriorityDefault,
		}
	}

	r["streak_at_risk"] = Template{
		Title: func(v Vars) string {
			if n, ok := Number(v, "streak"); ok && n > 0 {
				return fmt.Sprintf("Keep your %d-day streak alive", n)
			}
			return "Keep your streak alive"
		},
		Body: func(v Vars) string {
			return "Finish one task today to keep your streak going."
		},
		Haptic:   HapticMedium,
		Channel:  ChannelStreaks,
		Category: CategoryStreak,
		Priority: PriorityDefault,
	}
}

func registerAccountability(r map[string]Template) {
	titles := map[string]string{
		PeriodWeekly:    "Weekly check-in",
		PeriodMonthly:   "Monthly review",
		PeriodQuarterly: "Quarterly reflection",
	}
	spans := map[string]string{
		PeriodWeekly:    "week",
		PeriodMonthly:   "month",
		PeriodQuarterly: "quarter",
	}
	for _, period := range []string{PeriodWeekly, PeriodMonthly, PeriodQuarterly} {
		period := period
		r["accountability_"+period] = Template{
			Title: func(v Vars) string { return titles[period] },
			Body: func(v Vars) string {
				if n, ok := Number(v, "completed"); ok {
					return fmt.Sprintf("You completed %d tasks last %s. Take a minute to plan the next one.", n, spans[period])
				}
				return fmt.Sprintf("Take a minute to look back on your %s and plan the next one.", spans[period])
			},
			Haptic:   HapticLight,
			Channel:  ChannelAccountability,
			Category: CategoryAccountability,
			Priority: PriorityLow,
		}
	}
}

func registerSocial(r map[string]Template) {
	r["group_activity_shared"] = Template{
		Title: func(v Vars) string {
			return fmt.Sprintf("%s shared a plan", Text(v, "sharerName", "Someone", NameLimit))
		},
		Body: func(v Vars) string {
			activity := Text(v, "activityTitle", "a new plan", TitleLimit)
			if group := Text(v, "groupName", "", NameLimit); group != "" {
				return fmt.Sprintf("\"%s\" was shared to %s.", activity, group)
			}
			return fmt.Sprintf("\"%s\" was shared with you.", activity)
		},
		Haptic:   HapticLight,
		Channel:  ChannelSocial,
		Category: CategorySocial,
		Priority: PriorityDefault,
	}
	r["group_member_joined"] = Template{
		Title: func(v Vars) string {
			return fmt.Sprintf("New member in %s", Text(v, "groupName", "your group", NameLimit))
		},
		Body: func(v Vars) string {
			return fmt.Sprintf("%s joined %s.", Text(v, "memberName", "Someone", NameLimit), Text(v, "groupName", "your group", NameLimit))
		},
		Haptic:   HapticLight,
		Channel:  ChannelSocial,
		Category: CategorySocial,
		Priority: PriorityLow,
	}
}
