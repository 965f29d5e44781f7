// Package timefield finds time-bearing values on loosely typed entities.
//
// Entities arrive as generic key/value maps (decoded JSON, ORM rows). A
// fixed, ordered table of paths maps well-known field names to a semantic
// context; anything missing or unparsable is skipped rather than reported.
package timefield

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/nhle/journalmate/internal/model"
)

// Entity is the generic key/value view of a domain object.
type Entity map[string]any

// probe pairs a path into an entity with the context it implies.
type probe struct {
	path    []string
	context string
}

// fieldProbes are the top-level fields, in declaration order.
var fieldProbes = []probe{
	{path: []string{"dueDate"}, context: model.ContextDue},
	{path: []string{"startDate"}, context: model.ContextStarts},
	{path: []string{"endDate"}, context: model.ContextEnds},
	{path: []string{"deadline"}, context: model.ContextDeadline},
	{path: []string{"scheduledAt"}, context: model.ContextScheduled},
	{path: []string{"releaseDate"}, context: model.ContextReleases},
	{path: []string{"departureTime"}, context: model.ContextDeparts},
	{path: []string{"arrivalTime"}, context: model.ContextArrives},
	{path: []string{"checkInTime"}, context: model.ContextCheckIn},
	{path: []string{"reservationTime"}, context: model.ContextReservation},
}

// metadataProbes are nested dates carried in the metadata bag.
var metadataProbes = []probe{
	{path: []string{"metadata", "flightDeparture"}, context: model.ContextDeparts},
	{path: []string{"metadata", "hotelCheckIn"}, context: model.ContextCheckIn},
	{path: []string{"metadata", "eventStart"}, context: model.ContextEvent},
	{path: []string{"metadata", "movieRelease"}, context: model.ContextReleases},
}

const timelineKey = "timeline"

// FieldNames lists the top-level keys whose change requires a
// reschedule, including the containers of nested dates.
func FieldNames() []string {
	names := make([]string, 0, len(fieldProbes)+2)
	for _, p := range fieldProbes {
		names = append(names, p.path[0])
	}
	return append(names, timelineKey, "metadata")
}

// Extract returns every valid time field on entity: plain fields first,
// then timeline steps, then metadata dates. Invalid or missing values are
// omitted.
func Extract(entity Entity) []model.TimeField {
	if entity == nil {
		return nil
	}

	var fields []model.TimeField
	for _, p := range fieldProbes {
		if f, ok := evaluate(entity, p); ok {
			fields = append(fields, f)
		}
	}

	fields = append(fields, timeline(entity)...)

	for _, p := range metadataProbes {
		if f, ok := evaluate(entity, p); ok {
			fields = append(fields, f)
		}
	}

	return fields
}

func evaluate(entity Entity, p probe) (model.TimeField, bool) {
	raw, ok := lookup(entity, p.path)
	if !ok {
		return model.TimeField{}, false
	}
	at, ok := ParseInstant(raw)
	if !ok {
		return model.TimeField{}, false
	}
	return model.TimeField{
		FieldName: strings.Join(p.path, "."),
		Value:     at,
		Context:   p.context,
	}, true
}

// timeline emits one field per step carrying a scheduledAt.
func timeline(entity Entity) []model.TimeField {
	raw, ok := entity[timelineKey]
	if !ok || raw == nil {
		return nil
	}
	items, err := cast.ToSliceE(raw)
	if err != nil {
		return nil
	}

	var fields []model.TimeField
	for i, item := range items {
		step, ok := asMap(item)
		if !ok {
			continue
		}
		at, ok := ParseInstant(step["scheduledAt"])
		if !ok {
			continue
		}
		label := strings.TrimSpace(cast.ToString(step["title"]))
		if label == "" {
			label = fmt.Sprintf("Step %d", i+1)
		}
		fields = append(fields, model.TimeField{
			FieldName: fmt.Sprintf("%s[%d].scheduledAt", timelineKey, i),
			Value:     at,
			Context:   model.ContextScheduled,
			Label:     label,
			Step:      i + 1,
		})
	}
	return fields
}

// lookup walks nested maps along path.
func lookup(entity Entity, path []string) (any, bool) {
	var cur any = map[string]any(entity)
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		v, ok := m[key]
		if !ok || v == nil {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// asMap accepts nested entities, decoded JSON objects and JSON strings.
func asMap(v any) (map[string]any, bool) {
	if e, ok := v.(Entity); ok {
		return e, true
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, false
	}
	return m, true
}

// millisThreshold separates unix seconds from unix milliseconds; second
// timestamps stay below it until the year 33658.
const millisThreshold = 1e12

// ParseInstant coerces v into a non-zero instant. It accepts time values,
// date strings in the layouts understood by cast, and unix timestamps in
// seconds or milliseconds.
func ParseInstant(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return nonZero(t)
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return nonZero(*t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		at, err := cast.ToTimeE(s)
		if err != nil {
			return time.Time{}, false
		}
		return nonZero(at)
	case bool:
		return time.Time{}, false
	}

	n, err := cast.ToInt64E(v)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	if n >= millisThreshold {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

func nonZero(t time.Time) (time.Time, bool) {
	if t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}
