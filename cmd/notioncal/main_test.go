package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notioncal/internal/config"
	"notioncal/internal/ics"
	appLog "notioncal/internal/log"
	"notioncal/internal/model"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	appLog.SetOutput(io.Discard)
	t.Cleanup(func() { appLog.SetOutput(os.Stderr) })

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func clearEnv(t *testing.T) {
	for _, key := range []string{
		config.EnvNotionToken, config.EnvNotionDatabase, config.EnvNotionBaseURL,
		config.EnvOutputDir, config.EnvServerPort, config.EnvLogLevel,
	} {
		t.Setenv(key, "")
	}
}

func TestSyncFailsWithoutToken(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvNotionDatabase, `[{"id":"db1"}]`)

	_, err := run(t, "sync", "--env", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, config.ErrNoToken)
}

func TestSyncFailsWithoutDatabases(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvNotionToken, "secret")

	_, err := run(t, "sync", "--env", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, config.ErrNoDatabases)
}

func TestSyncEndToEnd(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if r.URL.Path != "/databases/db1/query" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{
			"results": [
				{"id": "p-1", "last_edited_time": "2024-01-02T03:04:05.000Z", "properties": {
					"Name": {"type": "title", "title": [{"plain_text": "Launch"}]},
					"Date": {"type": "date", "date": {"start": "2024-03-09"}}
				}},
				{"id": "p-2", "properties": {
					"Name": {"type": "title", "title": [{"plain_text": "No date"}]}
				}}
			],
			"has_more": false,
			"next_cursor": null
		}`)
	}))
	defer api.Close()

	out := t.TempDir()
	clearEnv(t)
	t.Setenv(config.EnvNotionToken, "secret")
	t.Setenv(config.EnvNotionBaseURL, api.URL)
	t.Setenv(config.EnvOutputDir, out)
	t.Setenv(config.EnvNotionDatabase, `[{"id":"db1","name":"Team Calendar"},{"id":"db2","name":"Broken"}]`)

	stdout, err := run(t, "sync", "--env", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err, "database failures are not configuration errors")
	assert.Contains(t, stdout, "Team Calendar: 1 events, 1 skipped")
	assert.Contains(t, stdout, "FAIL Broken")
	assert.Contains(t, stdout, "2 databases, 1 events, 1 errors")

	f, err := os.Open(filepath.Join(out, "Team Calendar.ics"))
	require.NoError(t, err)
	defer f.Close()
	cal, err := ics.Parse(f)
	require.NoError(t, err)
	require.Len(t, cal.Events, 1)
	assert.Equal(t, "Launch", cal.Events[0].Summary)
	assert.NoFileExists(t, filepath.Join(out, "Broken.ics"))
}

func TestServeRejectsBadPort(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvOutputDir, t.TempDir())

	_, err := run(t, "serve", "--port", "70000", "--env", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func writeSample(t *testing.T) string {
	t.Helper()
	day := model.DateValue{Kind: model.AllDay, Time: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)}
	start := model.DateValue{Kind: model.Instant, Time: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	cal := model.Calendar{Name: "Team", Events: []model.CalendarEvent{
		{UID: "a@notion-sync", Summary: "Launch", Range: model.DateRange{Start: day, End: &day}},
		{UID: "b@notion-sync", Summary: "Standup", Range: model.DateRange{Start: start}},
	}}
	path := filepath.Join(t.TempDir(), "Team.ics")
	require.NoError(t, ics.WriteFile(path, ics.Serialize(cal, time.Now())))
	return path
}

func TestInspectText(t *testing.T) {
	out, err := run(t, "inspect", writeSample(t))
	require.NoError(t, err)

	assert.Contains(t, out, "Team (2 events)")
	assert.Contains(t, out, "2024-03-09 .. 2024-03-09  Launch")
	assert.Contains(t, out, "2024-03-10T09:00:00Z  Standup")
}

func TestInspectJSON(t *testing.T) {
	out, err := run(t, "inspect", "--json", writeSample(t))
	require.NoError(t, err)

	var view calendarView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "Team", view.Name)
	require.Len(t, view.Events, 2)
	assert.True(t, view.Events[0].AllDay)
	assert.Equal(t, "2024-03-09", view.Events[0].Start)
	assert.False(t, view.Events[1].AllDay)
	assert.Empty(t, view.Events[1].End)
}

func TestInspectMissingFile(t *testing.T) {
	_, err := run(t, "inspect", filepath.Join(t.TempDir(), "nope.ics"))
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "notioncal dev\n", out)
}
