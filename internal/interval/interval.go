// Package interval maps a semantic time context to the lead times at
// which reminders fire.
package interval

import "github.com/nhle/journalmate/internal/model"

// MorningOf is the lead value meaning "08:00 local on the day of the
// instant" rather than "zero minutes before".
const MorningOf = 0

// Default is the policy for contexts missing from the table.
var Default = []int{30}

// Common lead times, in minutes.
const (
	week     = 7 * 24 * 60
	threeDay = 3 * 24 * 60
	day      = 24 * 60
	hour     = 60
)

// policies lists leads in descending order per context.
var policies = map[string][]int{
	model.ContextDue:         {hour},
	model.ContextStarts:      {week, threeDay, day, MorningOf},
	model.ContextEnds:        {hour},
	model.ContextDeadline:    {threeDay, day, hour},
	model.ContextScheduled:   {hour, 15},
	model.ContextReleases:    {day, MorningOf},
	model.ContextDeparts:     {day, 3 * hour, hour},
	model.ContextArrives:     {hour},
	model.ContextCheckIn:     {day, 2 * hour},
	model.ContextReservation: {day, hour},
	model.ContextEvent:       {week, day, hour},
}

// ForContext returns the lead minutes for context, largest first.
// Unknown contexts get Default. The result is a fresh copy.
func ForContext(context string) []int {
	leads, ok := policies[context]
	if !ok {
		leads = Default
	}
	out := make([]int, len(leads))
	copy(out, leads)
	return out
}

// Known reports whether context has its own policy.
func Known(context string) bool {
	_, ok := policies[context]
	return ok
}

// Contexts returns every context with a policy, for template registration.
func Contexts() []string {
	out := make([]string, 0, len(policies))
	for c := range policies {
		out = append(out, c)
	}
	return out
}
