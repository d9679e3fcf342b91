package convert

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"notioncal/internal/model"
)

const dateLayout = "2006-01-02"

// Timestamps without an offset are read as UTC.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

var errEmptyDate = errors.New("empty date")

// ParseDate turns a source date string into a DateValue. A time-of-day
// component ("T") selects an Instant, its absence an AllDay date.
func ParseDate(s string) (model.DateValue, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.DateValue{}, errEmptyDate
	}

	if !strings.Contains(s, "T") {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return model.DateValue{}, fmt.Errorf("parse date %q: %w", s, err)
		}
		return model.DateValue{Kind: model.AllDay, Time: t}, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return model.DateValue{Kind: model.Instant, Time: t.UTC()}, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return model.DateValue{Kind: model.Instant, Time: t}, nil
		}
	}
	return model.DateValue{}, fmt.Errorf("parse timestamp %q: unsupported format", s)
}

// ParseRange normalizes a start and optional end. The end keeps the tag
// its own format implies, even when it differs from the start's. An
// all-day start without an end becomes a single-day range.
func ParseRange(start string, end *string) (model.DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return model.DateRange{}, fmt.Errorf("start: %w", err)
	}
	r := model.DateRange{Start: s}

	if end != nil && strings.TrimSpace(*end) != "" {
		e, err := ParseDate(*end)
		if err != nil {
			return model.DateRange{}, fmt.Errorf("end: %w", err)
		}
		r.End = &e
		return r, nil
	}

	if s.IsAllDay() {
		e := s
		r.End = &e
	}
	return r, nil
}
