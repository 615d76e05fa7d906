package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"apptline/internal/model"
)

// EnvPrefix prefixes environment overrides: APPTLINE_SPAN_HOURS,
// APPTLINE_SNAPSHOT_ENABLED and so on.
const EnvPrefix = "APPTLINE"

const (
	defaultListen    = "127.0.0.1:8080"
	defaultTimezone  = "Local"
	defaultSpanHours = 4
	defaultRefresh   = "*/5 * * * *"
	defaultCacheDir  = "./var/ics-cache"
	defaultLogLevel  = "info"
	defaultLogFormat = "console"
	defaultSnapPath  = "./var/preview.png"
	defaultSnapW     = 1280
	defaultSnapH     = 720
)

var (
	ErrEmptyPath = errors.New("config path is empty")
	ErrNilConfig = errors.New("config is nil")
)

// ResourceConfig is one bookable resource (a doctor, a room) and the ICS
// feed its appointments come from.
type ResourceConfig struct {
	ID   string `yaml:"id" mapstructure:"id" json:"id"`
	Name string `yaml:"name" mapstructure:"name" json:"name"`
	URL  string `yaml:"url" mapstructure:"url" json:"-"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the web UI and API.
type BasicAuthConfig struct {
	Username string `yaml:"username" mapstructure:"username" json:"username"`
	Password string `yaml:"password" mapstructure:"password" json:"-"`
}

// SnapshotConfig controls the headless-browser PNG capture of the timeline.
type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Path    string `yaml:"path" mapstructure:"path" json:"path"`
	Width   int    `yaml:"width" mapstructure:"width" json:"width"`
	Height  int    `yaml:"height" mapstructure:"height" json:"height"`

	// Tricolor reduces the PNG to black, red and white for e-paper signs.
	Tricolor bool `yaml:"tricolor" mapstructure:"tricolor" json:"tricolor"`

	// Planes additionally writes packed 1bpp black and red planes next to
	// the PNG (<path>.black.bin, <path>.red.bin). Implies Tricolor.
	Planes bool `yaml:"planes" mapstructure:"planes" json:"planes"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the web UI and API.
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen"`

	// Timezone is the IANA zone appointment wall-clock times are read in.
	// "Local" uses the host zone.
	Timezone string `yaml:"timezone" mapstructure:"timezone" json:"timezone"`

	// SpanHours is the number of one-hour buckets shown.
	SpanHours int `yaml:"span_hours" mapstructure:"span_hours" json:"span_hours"`

	// RefreshCron is a five-field cron schedule for refetching feeds.
	RefreshCron string `yaml:"refresh" mapstructure:"refresh" json:"refresh"`

	// SplitAcrossBuckets draws appointments that cross an hour boundary as
	// one piece per hour instead of one overflowing box.
	SplitAcrossBuckets bool `yaml:"split_across_buckets" mapstructure:"split_across_buckets" json:"split_across_buckets"`

	// HideStatuses lists appointment statuses left out of the timeline.
	HideStatuses []string `yaml:"hide_statuses" mapstructure:"hide_statuses" json:"hide_statuses"`

	// CacheDir holds the per-feed HTTP cache.
	CacheDir string `yaml:"cache_dir" mapstructure:"cache_dir" json:"cache_dir"`

	LogLevel  string `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format" json:"log_format"`

	Resources []ResourceConfig `yaml:"resources" mapstructure:"resources" json:"resources"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" mapstructure:"basic_auth" json:"basic_auth,omitempty"`

	Snapshot SnapshotConfig `yaml:"snapshot" mapstructure:"snapshot" json:"snapshot"`
}

func defaultHideStatuses() []string {
	return []string{string(model.StatusCancelled), string(model.StatusEnteredInError)}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		Timezone:     defaultTimezone,
		SpanHours:    defaultSpanHours,
		RefreshCron:  defaultRefresh,
		HideStatuses: defaultHideStatuses(),
		CacheDir:     defaultCacheDir,
		LogLevel:     defaultLogLevel,
		LogFormat:    defaultLogFormat,
		Resources:    []ResourceConfig{},
		Snapshot: SnapshotConfig{
			Path:   defaultSnapPath,
			Width:  defaultSnapW,
			Height: defaultSnapH,
		},
	}
}

// Normalize fills in missing or invalid values so that partially filled
// configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.SpanHours <= 0 {
		c.SpanHours = defaultSpanHours
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.HideStatuses == nil {
		c.HideStatuses = defaultHideStatuses()
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		c.LogFormat = defaultLogFormat
	}
	if c.Resources == nil {
		c.Resources = []ResourceConfig{}
	}
	for i := range c.Resources {
		if c.Resources[i].Name == "" {
			c.Resources[i].Name = c.Resources[i].ID
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = defaultSnapPath
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = defaultSnapW
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = defaultSnapH
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// HiddenStatuses returns HideStatuses as a lookup set.
func (c *Config) HiddenStatuses() map[model.Status]bool {
	out := make(map[model.Status]bool, len(c.HideStatuses))
	for _, s := range c.HideStatuses {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out[model.Status(s)] = true
		}
	}
	return out
}

// Resource looks up a configured resource by ID.
func (c *Config) Resource(id string) (ResourceConfig, bool) {
	for _, r := range c.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return ResourceConfig{}, false
}

// Load reads configuration from the YAML file at path, overlaid with
// APPTLINE_* environment variables.
//
// If the file does not exist a default config is written there (0600) and
// used as the base.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err := Save(path, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Normalize()

	return cfg, nil
}

// newViper registers every scalar key with its default so AutomaticEnv can
// resolve APPTLINE_<KEY> even when the file omits the key.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("span_hours", d.SpanHours)
	v.SetDefault("refresh", d.RefreshCron)
	v.SetDefault("split_across_buckets", d.SplitAcrossBuckets)
	v.SetDefault("hide_statuses", d.HideStatuses)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("snapshot.enabled", d.Snapshot.Enabled)
	v.SetDefault("snapshot.path", d.Snapshot.Path)
	v.SetDefault("snapshot.width", d.Snapshot.Width)
	v.SetDefault("snapshot.height", d.Snapshot.Height)
	v.SetDefault("snapshot.tricolor", d.Snapshot.Tricolor)
	v.SetDefault("snapshot.planes", d.Snapshot.Planes)
	return v
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return ErrNilConfig
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".apptline-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
