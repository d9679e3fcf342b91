package convert

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"notioncal/internal/model"
	"notioncal/internal/notion"
)

const (
	uidSuffix    = "@notion-sync"
	deepLinkBase = "https://notion.so/"
	linkPrefix   = "🔗 "
)

// ErrNoDate means the record has no usable date and produces no event.
var ErrNoDate = errors.New("no date property")

// StableUID derives an event UID from the database and record IDs. The
// same pair always yields the same UID.
func StableUID(databaseID, recordID string) string {
	sum := sha256.Sum256([]byte(databaseID + ":" + recordID))
	return hex.EncodeToString(sum[:]) + uidSuffix
}

// DeepLink returns the URL that opens the record in Notion.
func DeepLink(recordID string) string {
	return deepLinkBase + strings.ReplaceAll(recordID, "-", "")
}

// MapPage converts one record into a calendar event. It returns ErrNoDate
// when the record has no date, and a wrapped parse error when the date is
// malformed; callers treat both as a skipped record.
func MapPage(page notion.Page, databaseID string) (model.CalendarEvent, error) {
	prop, ok := notion.DateProperty(page.Properties)
	if !ok || strings.TrimSpace(prop.Date.Start) == "" {
		return model.CalendarEvent{}, ErrNoDate
	}
	rng, err := ParseRange(prop.Date.Start, prop.Date.End)
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("record %s property %q: %w", page.ID, prop.Name, err)
	}

	link := DeepLink(page.ID)
	description := linkPrefix + link
	if text := notion.Description(page.Properties); text != "" {
		description = text + "\n\n" + description
	}

	return model.CalendarEvent{
		UID:          StableUID(databaseID, page.ID),
		Summary:      notion.Title(page.Properties),
		Description:  description,
		URL:          link,
		Range:        rng,
		LastModified: parseModified(page.LastEditedTime),
	}, nil
}

func parseModified(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
