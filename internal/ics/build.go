package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"notioncal/internal/model"
)

const (
	ProductID = "-//Notion to iCal Sync//EN"

	// RefreshInterval is the polling hint given to subscribing clients.
	RefreshInterval = "PT5M"

	dateFormat = "20060102"
	utcFormat  = "20060102T150405Z"
)

// Build assembles the VCALENDAR for cal. stamp becomes every event's
// DTSTAMP.
func Build(cal model.Calendar, stamp time.Time) *ical.Calendar {
	out := ical.NewCalendar()
	out.SetVersion("2.0")
	out.SetProductId(ProductID)
	out.SetName(cal.Name)
	out.SetXWRCalName(cal.Name)
	out.SetXWRTimezone("UTC")
	// The property token already carries VALUE=DURATION.
	out.SetRefreshInterval(RefreshInterval)
	out.SetXPublishedTTL(RefreshInterval)

	for _, ev := range cal.Events {
		addEvent(out, ev, stamp)
	}
	return out
}

// Serialize renders cal in iCalendar wire format with CRLF line endings.
func Serialize(cal model.Calendar, stamp time.Time) []byte {
	return []byte(Build(cal, stamp).Serialize(ical.WithNewLineWindows))
}

func addEvent(cal *ical.Calendar, ev model.CalendarEvent, stamp time.Time) {
	e := cal.AddEvent(ev.UID)
	e.SetDtStampTime(stamp.UTC())
	// TEXT values are escaped by the library on serialize.
	e.SetSummary(ev.Summary)
	if ev.Description != "" {
		e.SetDescription(ev.Description)
	}
	if ev.URL != "" {
		e.SetURL(ev.URL)
	}

	setDate(e, ical.ComponentPropertyDtStart, ev.Range.Start)
	if ev.Range.End != nil {
		setDate(e, ical.ComponentPropertyDtEnd, *ev.Range.End)
	}
	if ev.LastModified != nil {
		e.SetModifiedAt(ev.LastModified.UTC())
	}
}

func setDate(e *ical.VEvent, prop ical.ComponentProperty, v model.DateValue) {
	if v.IsAllDay() {
		e.SetProperty(prop, v.Time.Format(dateFormat), ical.WithValue(string(ical.ValueDataTypeDate)))
		return
	}
	e.SetProperty(prop, v.Time.UTC().Format(utcFormat))
}
