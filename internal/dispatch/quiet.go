package dispatch

import "time"

// InQuietHours reports whether now, seen in loc, falls inside the
// [start, end) window given as "HH:mm". A window whose start is after its
// end spans midnight. Equal, empty, or unparsable bounds disable quiet
// hours.
func InQuietHours(now time.Time, loc *time.Location, start, end string) bool {
	from, ok := minuteOfDay(start)
	if !ok {
		return false
	}
	to, ok := minuteOfDay(end)
	if !ok || from == to {
		return false
	}

	local := now.In(loc)
	cur := local.Hour()*60 + local.Minute()
	if from < to {
		return cur >= from && cur < to
	}
	return cur >= from || cur < to
}

func minuteOfDay(hhmm string) (int, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
