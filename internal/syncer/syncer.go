package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"notioncal/internal/config"
	"notioncal/internal/convert"
	"notioncal/internal/ics"
	appLog "notioncal/internal/log"
	"notioncal/internal/model"
	"notioncal/internal/notion"
)

// Fetcher is the read side of the Notion API used by a sync run.
type Fetcher interface {
	QueryDatabase(ctx context.Context, databaseID string) ([]notion.Page, error)
	DatabaseTitle(ctx context.Context, databaseID string) (string, error)
}

// Result describes the outcome for one database.
type Result struct {
	DatabaseID string
	Name       string
	Path       string
	Events     int
	// Skipped counts records without a usable date.
	Skipped int
	Err     error
}

// Summary describes a whole run.
type Summary struct {
	RunID     string
	Databases int
	Errors    int
	Events    int
	Skipped   int
	Results   []Result
}

// Syncer writes one calendar file per configured database.
type Syncer struct {
	fetcher   Fetcher
	outputDir string
	now       func() time.Time
}

func New(fetcher Fetcher, outputDir string) *Syncer {
	return &Syncer{fetcher: fetcher, outputDir: outputDir, now: time.Now}
}

// Run syncs every database in order. A failing database is logged and
// counted; it never stops the others.
func (s *Syncer) Run(ctx context.Context, databases []config.DatabaseConfig) Summary {
	sum := Summary{RunID: uuid.NewString(), Results: make([]Result, 0, len(databases))}
	appLog.Info("sync started", "run_id", sum.RunID, "databases", len(databases))

	for _, db := range databases {
		res := s.SyncDatabase(ctx, db)
		if res.Err != nil {
			sum.Errors++
			appLog.Error("database sync failed", res.Err, "run_id", sum.RunID, "database_id", res.DatabaseID, "name", res.Name)
		}
		sum.Databases++
		sum.Events += res.Events
		sum.Skipped += res.Skipped
		sum.Results = append(sum.Results, res)
	}

	appLog.Info("sync finished",
		"run_id", sum.RunID,
		"databases", sum.Databases,
		"events", sum.Events,
		"skipped", sum.Skipped,
		"errors", sum.Errors,
	)
	return sum
}

// SyncDatabase fetches, maps and writes a single database. Any failure is
// reported in Result.Err.
func (s *Syncer) SyncDatabase(ctx context.Context, db config.DatabaseConfig) Result {
	id := db.NormalizedID()
	res := Result{DatabaseID: id, Name: s.displayName(ctx, db, id)}
	appLog.Info("syncing database", "database_id", id, "name", res.Name)

	pages, err := s.fetcher.QueryDatabase(ctx, id)
	if err != nil {
		// Keep the previous file rather than replacing it with a partial one.
		res.Err = fmt.Errorf("fetch %s (%d records before failure): %w", id, len(pages), err)
		return res
	}

	events := make([]model.CalendarEvent, 0, len(pages))
	malformed := 0
	for _, page := range pages {
		ev, err := convert.MapPage(page, id)
		if err != nil {
			res.Skipped++
			if !errors.Is(err, convert.ErrNoDate) {
				malformed++
				appLog.Debug("record has unreadable date", "database_id", id, "err", err)
			}
			continue
		}
		events = append(events, ev)
	}
	res.Events = len(events)

	res.Path = filepath.Join(s.outputDir, SafeFilename(res.Name)+".ics")
	data := ics.Serialize(model.Calendar{Name: res.Name, Events: events}, s.now())
	if err := ics.WriteFile(res.Path, data); err != nil {
		res.Err = fmt.Errorf("write %s: %w", res.Path, err)
		return res
	}

	appLog.Info("database synced",
		"database_id", id,
		"records", len(pages),
		"events", res.Events,
		"skipped", res.Skipped,
		"malformed_dates", malformed,
		"path", res.Path,
	)
	return res
}

// displayName prefers the configured name, then the remote title, then
// the database ID.
func (s *Syncer) displayName(ctx context.Context, db config.DatabaseConfig, id string) string {
	if name := strings.TrimSpace(db.Name); name != "" {
		return name
	}
	title, err := s.fetcher.DatabaseTitle(ctx, id)
	if err != nil {
		appLog.Warn("could not fetch database title", "database_id", id, "err", err)
		return id
	}
	if title == "" {
		return id
	}
	return title
}

// SafeFilename maps a display name to a file name stem: letters, digits,
// '-', '_' and spaces are kept, everything else becomes '_'.
func SafeFilename(name string) string {
	name = norm.NFC.String(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "calendar"
	}
	return b.String()
}
