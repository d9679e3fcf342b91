package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"notioncal/internal/fileutil"
	appLog "notioncal/internal/log"
)

const (
	DefaultNotionBaseURL  = "https://api.notion.com/v1"
	DefaultOutputDir      = "~/NotionCalendars"
	DefaultServerPort     = 8080
	DefaultRefreshCron    = "*/15 * * * *"
	DefaultRequestTimeout = 15 * time.Second
	DefaultLogLevel       = "info"

	// LoopbackHost is the only interface the file server binds to.
	LoopbackHost = "127.0.0.1"
)

// Environment variables. NOTION_TOKEN is only ever read from the
// environment (or .env), never from the YAML file.
const (
	EnvNotionToken    = "NOTION_TOKEN"
	EnvNotionDatabase = "NOTION_DATABASES"
	EnvNotionBaseURL  = "NOTION_BASE_URL"
	EnvOutputDir      = "OUTPUT_DIR"
	EnvServerPort     = "SERVER_PORT"
	EnvLogLevel       = "LOG_LEVEL"
)

var (
	ErrNoToken     = errors.New("NOTION_TOKEN is not set")
	ErrNoDatabases = errors.New("no databases configured")
)

// DatabaseConfig identifies one remote database and the calendar it feeds.
type DatabaseConfig struct {
	// ID is the database identifier, with or without dashes.
	ID string `yaml:"id" json:"id"`
	// Name overrides the calendar display name. When empty the remote
	// database title is used.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// NormalizedID returns the ID without dashes or surrounding space.
func (d DatabaseConfig) NormalizedID() string {
	return strings.ReplaceAll(strings.TrimSpace(d.ID), "-", "")
}

// Config is the top-level application configuration.
type Config struct {
	// NotionToken is the bearer credential for the Notion API.
	NotionToken string `yaml:"-" json:"-"`

	// NotionBaseURL is the API root, overridable for tests and proxies.
	NotionBaseURL string `yaml:"notion_base_url" json:"notion_base_url"`

	// OutputDir receives one .ics file per database and is the root
	// served by the file server. A leading "~/" is expanded.
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// ServerPort is the loopback port of the file server.
	ServerPort int `yaml:"server_port" json:"server_port"`

	// RefreshCron is the cron schedule used by watch mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// RequestTimeout bounds every Notion API call.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Databases []DatabaseConfig `yaml:"databases" json:"databases"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		NotionBaseURL:  DefaultNotionBaseURL,
		OutputDir:      DefaultOutputDir,
		ServerPort:     DefaultServerPort,
		RefreshCron:    DefaultRefreshCron,
		RequestTimeout: DefaultRequestTimeout,
		LogLevel:       DefaultLogLevel,
		Databases:      []DatabaseConfig{},
	}
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	if c.NotionBaseURL == "" {
		c.NotionBaseURL = DefaultNotionBaseURL
	}
	c.NotionBaseURL = strings.TrimRight(c.NotionBaseURL, "/")
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.ServerPort == 0 {
		c.ServerPort = DefaultServerPort
	}
	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefreshCron
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Databases == nil {
		c.Databases = []DatabaseConfig{}
	}
}

// Load builds the effective configuration.
//
// Behavior:
//   - path empty: start from defaults (environment-only setup)
//   - path missing on disk: write defaults there with 0600 perms and use them
//   - path present: unmarshal YAML
//   - envFile, if it exists, is loaded into the process environment
//     without overriding variables that are already set
//   - environment variables override file values
//
// The result is normalized but not validated; callers pick ValidateSync
// or ValidateServe depending on what they are about to do.
func Load(path, envFile string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()

	dir, err := expandHome(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	cfg.OutputDir = dir
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return nil, fmt.Errorf("write default config: %w", err)
			}
			appLog.Info("wrote default config", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookupEnv(EnvNotionToken); ok {
		c.NotionToken = v
	}
	if v, ok := lookupEnv(EnvNotionBaseURL); ok {
		c.NotionBaseURL = v
	}
	if v, ok := lookupEnv(EnvOutputDir); ok {
		c.OutputDir = v
	}
	if v, ok := lookupEnv(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := lookupEnv(EnvServerPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvServerPort, v)
		}
		c.ServerPort = port
	}
	if v, ok := lookupEnv(EnvNotionDatabase); ok {
		var dbs []DatabaseConfig
		if err := json.Unmarshal([]byte(v), &dbs); err != nil {
			return fmt.Errorf("%s is not a valid JSON list: %w", EnvNotionDatabase, err)
		}
		c.Databases = dbs
	}
	return nil
}

// ValidateSync checks everything a sync run needs.
func (c *Config) ValidateSync() error {
	if c.NotionToken == "" {
		return ErrNoToken
	}
	if len(c.Databases) == 0 {
		return ErrNoDatabases
	}
	for i, db := range c.Databases {
		if db.NormalizedID() == "" {
			return fmt.Errorf("databases[%d]: id is required", i)
		}
	}
	u, err := url.Parse(c.NotionBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid notion base url: %q", c.NotionBaseURL)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be > 0")
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", c.RefreshCron, err)
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ValidateServe checks everything the file server needs.
func (c *Config) ValidateServe() error {
	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port: %d", c.ServerPort)
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ListenAddr is the loopback address the file server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(LoopbackHost, strconv.Itoa(c.ServerPort))
}

// Save persists cfg as YAML with 0600 permissions, replacing any existing
// file atomically. NotionToken is tagged out of the YAML and never saved.
func Save(path string, cfg *Config) error {
	switch {
	case path == "":
		return errors.New("config path is empty")
	case cfg == nil:
		return errors.New("config is nil")
	}
	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	// The file lives next to .env secrets; keep the directory private too.
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return fileutil.WriteAtomic(path, data, 0o600)
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
