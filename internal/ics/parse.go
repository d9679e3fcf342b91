package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "notioncal/internal/log"
	"notioncal/internal/model"
)

// Parse reads a calendar file produced by Serialize back into a
// model.Calendar. Text values come back unescaped from the library.
// Events missing a UID or DTSTART are skipped.
func Parse(r io.Reader) (model.Calendar, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return model.Calendar{}, fmt.Errorf("parse calendar: %w", err)
	}

	var out model.Calendar
	for _, p := range cal.CalendarProperties {
		switch strings.ToUpper(p.IANAToken) {
		case "X-WR-CALNAME":
			out.Name = p.Value
		case "NAME":
			if out.Name == "" {
				out.Name = p.Value
			}
		}
	}

	out.Events = make([]model.CalendarEvent, 0)
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			appLog.Warn("skipping unreadable event", "err", err)
			continue
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (model.CalendarEvent, error) {
	var out model.CalendarEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentProperty("URL")); p != nil {
		out.URL = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, fmt.Errorf("%s: missing DTSTART", out.UID)
	}
	start, err := parseDateProp(startProp)
	if err != nil {
		return out, fmt.Errorf("%s: DTSTART: %w", out.UID, err)
	}
	out.Range.Start = start

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		end, err := parseDateProp(endProp)
		if err != nil {
			return out, fmt.Errorf("%s: DTEND: %w", out.UID, err)
		}
		out.Range.End = &end
	}

	if p := ve.GetProperty(ical.ComponentProperty("LAST-MODIFIED")); p != nil {
		if t, err := time.Parse(utcFormat, strings.TrimSpace(p.Value)); err == nil {
			out.LastModified = &t
		}
	}
	return out, nil
}

// parseDateProp reads DATE (VALUE=DATE or bare YYYYMMDD) and DATE-TIME
// values. Floating times are read as UTC.
func parseDateProp(p *ical.IANAProperty) (model.DateValue, error) {
	v := strings.TrimSpace(p.Value)

	allDay := !strings.Contains(v, "T")
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}
	if allDay {
		t, err := time.Parse(dateFormat, v)
		if err != nil {
			return model.DateValue{}, err
		}
		return model.DateValue{Kind: model.AllDay, Time: t}, nil
	}

	layout := "20060102T150405"
	if strings.HasSuffix(v, "Z") {
		layout = utcFormat
	}
	t, err := time.ParseInLocation(layout, v, time.UTC)
	if err != nil {
		return model.DateValue{}, err
	}
	return model.DateValue{Kind: model.Instant, Time: t.UTC()}, nil
}
