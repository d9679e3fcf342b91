package model

import "time"

// DateKind tags a DateValue as a calendar date or a point in time.
type DateKind int

const (
	// AllDay values have date granularity; Time holds midnight UTC of that date.
	AllDay DateKind = iota
	// Instant values carry a time of day; Time is normalized to UTC.
	Instant
)

func (k DateKind) String() string {
	if k == AllDay {
		return "all-day"
	}
	return "instant"
}

// DateValue is one side of a DateRange.
type DateValue struct {
	Kind DateKind
	Time time.Time
}

func (d DateValue) IsAllDay() bool { return d.Kind == AllDay }

// DateRange is the normalized date of an event. End is nil only for
// timed events whose source carried no end.
type DateRange struct {
	Start DateValue
	End   *DateValue
}

// AllDay reports whether the event spans whole days, judged by its start.
func (r DateRange) AllDay() bool { return r.Start.IsAllDay() }

// CalendarEvent is a single record mapped into calendar terms.
type CalendarEvent struct {
	// UID is stable across syncs of the same record in the same database.
	UID string

	Summary     string
	Description string
	// URL deep-links back to the source record.
	URL string

	Range DateRange

	LastModified *time.Time
}

// Calendar is the per-database container written to one .ics file.
type Calendar struct {
	Name   string
	Events []CalendarEvent
}
