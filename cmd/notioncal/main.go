package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notioncal/internal/config"
	"notioncal/internal/ics"
	appLog "notioncal/internal/log"
	"notioncal/internal/model"
	"notioncal/internal/notion"
	"notioncal/internal/syncer"
	"notioncal/internal/web"
)

var version = "dev"

type rootFlags struct {
	configPath string
	envFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "notioncal",
		Short: "Sync Notion databases into local iCalendar files",
		Long: `notioncal exports every dated record of the configured Notion databases
into one .ics file per database and serves those files on localhost so
calendar apps can subscribe to them.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file (created with defaults if missing)")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env", ".env", "dotenv file with secrets")

	rootCmd.AddCommand(
		newSyncCmd(flags),
		newServeCmd(flags),
		newWatchCmd(flags),
		newInspectCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version info",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "notioncal %s\n", version)
			},
		},
	)
	return rootCmd
}

func newSyncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync of all configured databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, (*config.Config).ValidateSync)
			if err != nil {
				return err
			}
			sum := newSyncer(cfg).Run(cmd.Context(), cfg.Databases)
			printSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generated .ics files on localhost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, func(c *config.Config) error {
				if cmd.Flags().Changed("port") {
					c.ServerPort = port
				}
				return c.ValidateServe()
			})
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", config.DefaultServerPort, "loopback port to listen on")
	return cmd
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var withServer bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync now and then on the configured schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, func(c *config.Config) error {
				if err := c.ValidateSync(); err != nil {
					return err
				}
				if withServer {
					return c.ValidateServe()
				}
				return nil
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			serveErr := make(chan error, 1)
			if withServer {
				go func() {
					serveErr <- serve(ctx, cfg)
					cancel()
				}()
			}

			s := newSyncer(cfg)
			err = syncer.Watch(ctx, cfg.RefreshCron, func(ctx context.Context) {
				s.Run(ctx, cfg.Databases)
			})
			cancel()
			if err != nil {
				return err
			}
			if withServer {
				return <-serveErr
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withServer, "serve", false, "also run the file server")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <file.ics>",
		Short: "Print the events of a generated calendar file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			cal, err := ics.Parse(f)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), inspectView(cal))
			}
			printCalendar(cmd.OutOrStdout(), cal)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

// loadConfig loads the effective config, applies the log level and runs
// check. Any failure here is a configuration error.
func loadConfig(flags *rootFlags, check func(*config.Config) error) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath, flags.envFile)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return nil, err
	}
	if err := check(cfg); err != nil {
		appLog.Error("invalid configuration", err)
		return nil, err
	}
	level, err := appLog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	appLog.SetLevel(level)

	appLog.Info("effective config",
		"notion_base_url", notion.RedactURL(cfg.NotionBaseURL),
		"output_dir", cfg.OutputDir,
		"server_port", cfg.ServerPort,
		"refresh", cfg.RefreshCron,
		"databases", len(cfg.Databases),
	)
	return cfg, nil
}

func newSyncer(cfg *config.Config) *syncer.Syncer {
	client := notion.NewClient(notion.Options{
		BaseURL: cfg.NotionBaseURL,
		Token:   cfg.NotionToken,
		Timeout: cfg.RequestTimeout,
	})
	return syncer.New(client, cfg.OutputDir)
}

func serve(ctx context.Context, cfg *config.Config) error {
	if _, err := os.Stat(cfg.OutputDir); errors.Is(err, os.ErrNotExist) {
		appLog.Warn("output directory does not exist yet; run sync first", "dir", cfg.OutputDir)
	}
	return web.NewServer(cfg.OutputDir).ListenAndServe(ctx, cfg.ListenAddr())
}

func printSummary(w io.Writer, sum syncer.Summary) {
	for _, r := range sum.Results {
		if r.Err != nil {
			fmt.Fprintf(w, "FAIL %s (%s): %v\n", r.Name, r.DatabaseID, r.Err)
			continue
		}
		fmt.Fprintf(w, "ok   %s: %d events, %d skipped -> %s\n", r.Name, r.Events, r.Skipped, r.Path)
	}
	fmt.Fprintf(w, "%d databases, %d events, %d errors\n", sum.Databases, sum.Events, sum.Errors)
}

type eventView struct {
	UID          string     `json:"uid"`
	Summary      string     `json:"summary"`
	Description  string     `json:"description,omitempty"`
	URL          string     `json:"url,omitempty"`
	AllDay       bool       `json:"all_day"`
	Start        string     `json:"start"`
	End          string     `json:"end,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

type calendarView struct {
	Name   string      `json:"name"`
	Events []eventView `json:"events"`
}

func inspectView(cal model.Calendar) calendarView {
	v := calendarView{Name: cal.Name, Events: make([]eventView, 0, len(cal.Events))}
	for _, ev := range cal.Events {
		ew := eventView{
			UID:          ev.UID,
			Summary:      ev.Summary,
			Description:  ev.Description,
			URL:          ev.URL,
			AllDay:       ev.Range.AllDay(),
			Start:        formatDate(ev.Range.Start),
			LastModified: ev.LastModified,
		}
		if ev.Range.End != nil {
			ew.End = formatDate(*ev.Range.End)
		}
		v.Events = append(v.Events, ew)
	}
	return v
}

func formatDate(d model.DateValue) string {
	if d.IsAllDay() {
		return d.Time.Format(time.DateOnly)
	}
	return d.Time.UTC().Format(time.RFC3339)
}

func printCalendar(w io.Writer, cal model.Calendar) {
	fmt.Fprintf(w, "%s (%d events)\n", cal.Name, len(cal.Events))
	for _, ev := range cal.Events {
		when := formatDate(ev.Range.Start)
		if ev.Range.End != nil {
			when += " .. " + formatDate(*ev.Range.End)
		}
		fmt.Fprintf(w, "  %s  %s\n", when, ev.Summary)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
