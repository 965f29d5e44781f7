package clock

import (
	"time"
	// Embedded zone database so IANA names resolve on hosts without tzdata.
	_ "time/tzdata"
)

// ResolveLocation returns the first loadable zone among names, falling
// back to UTC. Empty names are skipped.
func ResolveLocation(names ...string) *time.Location {
	for _, name := range names {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// AtLocalHour returns hour:00 on the calendar day of t as seen in loc.
func AtLocalHour(t time.Time, loc *time.Location, hour int) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
}
