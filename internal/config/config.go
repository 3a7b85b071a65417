package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"tutorcal/internal/fsutil"
	"tutorcal/internal/timeline"
)

// ICSConfig describes a single ICS subscription source, e.g. a professor's
// personal calendar whose busy slots should appear on the day timeline.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown on the bars.
	Name string `yaml:"name" json:"name"`
}

// APIConfig points at the school's REST API.
type APIConfig struct {
	// BaseURL is the API root, e.g. "https://school.example.com/api".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Token is sent as a Bearer token. Empty disables the header.
	Token string `yaml:"token" json:"-"`
}

// WindowConfig is the visible part of the day, as "HH:MM" strings.
type WindowConfig struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone lesson dates are interpreted in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Window WindowConfig `yaml:"window" json:"window"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for dropping cached day layouts and re-fetching sources.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheTTLSeconds bounds how long a packed day is served from memory.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// CacheDir holds conditional-GET caches for the API and ICS feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	API APIConfig `yaml:"api" json:"api"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"-"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Europe/Rome"
	defaultWindowStart = "08:00"
	defaultWindowEnd   = "22:00"
	defaultRefreshCron = "*/15 * * * *"
	defaultCacheTTL    = 30
	defaultCacheDir    = "/var/lib/tutorcal/cache"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          defaultListen,
		Timezone:        defaultTimezone,
		LogLevel:        "info",
		Window:          WindowConfig{Start: defaultWindowStart, End: defaultWindowEnd},
		RefreshCron:     defaultRefreshCron,
		CacheTTLSeconds: defaultCacheTTL,
		CacheDir:        defaultCacheDir,
		ICS:             []ICSConfig{},
		BasicAuth:       nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Window.Start == "" {
		c.Window.Start = defaultWindowStart
	}
	if c.Window.End == "" {
		c.Window.End = defaultWindowEnd
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = defaultCacheTTL
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Validate checks values that have no safe default: the display window, the
// refresh schedule and the timezone.
func (c *Config) Validate() error {
	if _, _, err := c.WindowMinutes(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("config: invalid refresh schedule %q: %w", c.RefreshCron, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// WindowMinutes returns the display window as minutes since 00:00.
func (c *Config) WindowMinutes() (start, end int, err error) {
	start, err = timeline.ParseClock(c.Window.Start)
	if err != nil {
		return 0, 0, fmt.Errorf("config: window.start: %w", err)
	}
	end, err = timeline.ParseClock(c.Window.End)
	if err != nil {
		return 0, 0, fmt.Errorf("config: window.end: %w", err)
	}
	if start >= end {
		return 0, 0, &timeline.InvalidWindowError{Start: start, End: end}
	}
	return start, end, nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// CacheTTL returns CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (parent directory created as needed) and returned.
//   - Otherwise the YAML is read, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save normalizes cfg and writes it to path as YAML, mode 0600. The file is
// replaced atomically so a crash never leaves a truncated config.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("config: save %s: %w", path, err)
	}
	return nil
}
