package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notioncal/internal/config"
	"notioncal/internal/ics"
	"notioncal/internal/notion"
)

type fakeFetcher struct {
	pages    map[string][]notion.Page
	titles   map[string]string
	queryErr map[string]error
	queried  []string
}

func (f *fakeFetcher) QueryDatabase(_ context.Context, id string) ([]notion.Page, error) {
	f.queried = append(f.queried, id)
	return f.pages[id], f.queryErr[id]
}

func (f *fakeFetcher) DatabaseTitle(_ context.Context, id string) (string, error) {
	title, ok := f.titles[id]
	if !ok {
		return "", errors.New("title unavailable")
	}
	return title, nil
}

func datedPage(id, title, date string) notion.Page {
	return notion.Page{
		ID: id,
		Properties: notion.Properties{
			{Name: "Name", Type: notion.TypeTitle, Title: []notion.RichText{{PlainText: title}}},
			{Name: "Date", Type: notion.TypeDate, Date: &notion.DateRange{Start: date}},
		},
	}
}

func undatedPage(id string) notion.Page {
	return notion.Page{ID: id, Properties: notion.Properties{
		{Name: "Name", Type: notion.TypeTitle, Title: []notion.RichText{{PlainText: "no date"}}},
	}}
}

func readCalendar(t *testing.T, path string) (string, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cal, err := ics.Parse(f)
	require.NoError(t, err)
	return cal.Name, len(cal.Events)
}

func TestRunWritesOneFilePerDatabase(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{
		pages: map[string][]notion.Page{
			"db1": {
				datedPage("a", "One", "2024-01-01"),
				datedPage("b", "Two", "2024-01-02T10:00:00Z"),
				datedPage("c", "Three", "2024-01-03"),
			},
		},
		titles: map[string]string{"db2": "Empty Board"},
	}
	s := New(f, dir)

	sum := s.Run(context.Background(), []config.DatabaseConfig{
		{ID: "db1", Name: "Team Calendar"},
		{ID: "db2"},
	})

	assert.Equal(t, 0, sum.Errors)
	assert.Equal(t, 2, sum.Databases)
	assert.Equal(t, 3, sum.Events)
	assert.NotEmpty(t, sum.RunID)

	name, n := readCalendar(t, filepath.Join(dir, "Team Calendar.ics"))
	assert.Equal(t, "Team Calendar", name)
	assert.Equal(t, 3, n)

	name, n = readCalendar(t, filepath.Join(dir, "Empty Board.ics"))
	assert.Equal(t, "Empty Board", name)
	assert.Equal(t, 0, n)
}

func TestRunSkipsUndatedRecords(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{pages: map[string][]notion.Page{
		"db1": {
			datedPage("a", "One", "2024-01-01"),
			undatedPage("b"),
			datedPage("c", "Bad", "not-a-date"),
		},
	}}

	sum := New(f, dir).Run(context.Background(), []config.DatabaseConfig{{ID: "db1", Name: "Cal"}})

	assert.Equal(t, 0, sum.Errors)
	require.Len(t, sum.Results, 1)
	assert.Equal(t, 1, sum.Results[0].Events)
	assert.Equal(t, 2, sum.Results[0].Skipped)
	_, n := readCalendar(t, filepath.Join(dir, "Cal.ics"))
	assert.Equal(t, 1, n)
}

func TestRunIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "Broken.ics")
	require.NoError(t, os.WriteFile(stale, []byte("previous snapshot"), 0o644))

	f := &fakeFetcher{
		pages: map[string][]notion.Page{
			"broken": {datedPage("a", "partial", "2024-01-01")},
			"ok":     {datedPage("b", "fine", "2024-01-01")},
		},
		queryErr: map[string]error{"broken": errors.New("connection reset")},
	}

	sum := New(f, dir).Run(context.Background(), []config.DatabaseConfig{
		{ID: "broken", Name: "Broken"},
		{ID: "ok", Name: "Fine"},
	})

	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, []string{"broken", "ok"}, f.queried)
	require.Error(t, sum.Results[0].Err)
	assert.Contains(t, sum.Results[0].Err.Error(), "connection reset")

	data, err := os.ReadFile(stale)
	require.NoError(t, err)
	assert.Equal(t, "previous snapshot", string(data))

	_, n := readCalendar(t, filepath.Join(dir, "Fine.ics"))
	assert.Equal(t, 1, n)
}

func TestRunCountsWriteFailures(t *testing.T) {
	notADir := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(notADir, nil, 0o644))

	f := &fakeFetcher{pages: map[string][]notion.Page{}}
	sum := New(f, notADir).Run(context.Background(), []config.DatabaseConfig{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}})

	assert.Equal(t, 2, sum.Errors)
	assert.Equal(t, 2, sum.Databases)
}

func TestDisplayNameFallbacks(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{titles: map[string]string{"blank": ""}}

	sum := New(f, dir).Run(context.Background(), []config.DatabaseConfig{
		{ID: "1234-5678"},
		{ID: "blank"},
	})

	require.Len(t, sum.Results, 2)
	assert.Equal(t, "12345678", sum.Results[0].DatabaseID)
	assert.Equal(t, "12345678", sum.Results[0].Name)
	assert.Equal(t, "blank", sum.Results[1].Name)
	assert.FileExists(t, filepath.Join(dir, "12345678.ics"))
}

func TestStableUIDsAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{pages: map[string][]notion.Page{"db1": {datedPage("a", "One", "2024-01-01")}}}
	s := New(f, dir)
	dbs := []config.DatabaseConfig{{ID: "db1", Name: "Cal"}}

	uids := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		s.now = func() time.Time { return time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC) }
		s.Run(context.Background(), dbs)

		fh, err := os.Open(filepath.Join(dir, "Cal.ics"))
		require.NoError(t, err)
		cal, err := ics.Parse(fh)
		fh.Close()
		require.NoError(t, err)
		require.Len(t, cal.Events, 1)
		uids = append(uids, cal.Events[0].UID)
	}
	assert.Equal(t, uids[0], uids[1])
}

func TestSafeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Team Calendar", "Team Calendar"},
		{"Work/Personal", "Work_Personal"},
		{"../../etc/passwd", "______etc_passwd"},
		{"Q1: Plans & Goals", "Q1_ Plans _ Goals"},
		{"Caf\u00e9", "Caf\u00e9"},
		{"Cafe\u0301", "Caf\u00e9"},
		{"日本語 カレンダー", "日本語 カレンダー"},
		{"", "calendar"},
		{"   ", "calendar"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SafeFilename(tc.in), fmt.Sprintf("%q", tc.in))
	}
}

func TestWatchRunsImmediatelyAndOnSchedule(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var calls atomic.Int32
	err := Watch(ctx, "@every 1s", func(context.Context) {
		if calls.Add(1) >= 2 {
			cancel()
		}
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestWatchRejectsBadSchedule(t *testing.T) {
	called := false
	err := Watch(context.Background(), "whenever", func(context.Context) { called = true })
	assert.Error(t, err)
	assert.False(t, called)
}
