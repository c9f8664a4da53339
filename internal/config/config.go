package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"zoomsync/internal/atomicfile"
)

// Environment overrides, applied after the YAML file is read.
const (
	EnvAPIToken   = "ZOOMSYNC_API_TOKEN"
	EnvAPIBaseURL = "ZOOMSYNC_API_BASE_URL"
	EnvTimezone   = "ZOOMSYNC_TIMEZONE"
)

// APIConfig is the provider connection.
type APIConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Token is the bearer credential. Prefer ZOOMSYNC_API_TOKEN.
	Token    string        `yaml:"token" json:"-"`
	PageSize int           `yaml:"page_size" json:"page_size"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	// RequestsPerSecond of 0 disables the client-side limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// OutputConfig selects the sinks. Empty paths disable a sink.
type OutputConfig struct {
	ICSPath    string `yaml:"ics_path" json:"ics_path"`
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	API APIConfig `yaml:"api" json:"api"`

	// Timezone is the IANA site timezone provider timestamps are read in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// MeetingType is the provider listing filter ("upcoming", "scheduled", ...).
	MeetingType string `yaml:"meeting_type" json:"meeting_type"`

	// Concurrency bounds parallel provider calls; 1 is sequential.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// RefreshCron is a standard 5-field cron schedule for periodic syncs.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Listen is the status server address. Empty disables the server.
	Listen string `yaml:"listen" json:"listen"`

	Output OutputConfig `yaml:"output" json:"output"`
	Log    LogConfig    `yaml:"log" json:"log"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// fileToken is the token as read from YAML; Save writes it back instead
	// of an environment-provided one.
	fileToken    string
	tokenFromEnv bool
}

const (
	defaultBaseURL     = "https://api.zoom.us/v2"
	defaultPageSize    = 300
	defaultTimeout     = 20 * time.Second
	defaultRPS         = 5
	defaultBurst       = 5
	defaultTimezone    = "America/New_York"
	defaultMeetingType = "upcoming"
	defaultRefresh     = "0 * * * *"
	defaultListen      = "127.0.0.1:8080"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           defaultBaseURL,
			PageSize:          defaultPageSize,
			Timeout:           defaultTimeout,
			RequestsPerSecond: defaultRPS,
			Burst:             defaultBurst,
		},
		Timezone:    defaultTimezone,
		MeetingType: defaultMeetingType,
		Concurrency: 1,
		RefreshCron: defaultRefresh,
		Listen:      defaultListen,
		Output: OutputConfig{
			ICSPath:    "./var/zoomsync.ics",
			SQLitePath: "./var/zoomsync.db",
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Normalize fills zero values with defaults so partial files behave.
func (c *Config) Normalize() {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultBaseURL
	}
	if c.API.PageSize <= 0 {
		c.API.PageSize = defaultPageSize
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = defaultTimeout
	}
	if c.API.RequestsPerSecond < 0 {
		c.API.RequestsPerSecond = 0
	}
	if c.API.Burst <= 0 {
		c.API.Burst = defaultBurst
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.MeetingType == "" {
		c.MeetingType = defaultMeetingType
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		c.Log.Format = "console"
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// ApplyEnv overrides selected keys from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIToken); ok && strings.TrimSpace(v) != "" {
		c.API.Token = strings.TrimSpace(v)
		c.tokenFromEnv = true
	}
	if v, ok := lookup(EnvAPIBaseURL); ok && strings.TrimSpace(v) != "" {
		c.API.BaseURL = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	if v, ok := lookup(EnvTimezone); ok && strings.TrimSpace(v) != "" {
		c.Timezone = strings.TrimSpace(v)
	}
}

// Location loads the site timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate reports every problem at once, one message per line.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.API.Token) == "" {
		add("api.token is empty (set it or %s)", EnvAPIToken)
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		add("api.base_url %q must be an http(s) url", c.API.BaseURL)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		add("timezone %q: %v", c.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		add("refresh %q: %v", c.RefreshCron, err)
	}
	if c.Concurrency > 32 {
		add("concurrency %d is above 32", c.Concurrency)
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		add("basic_auth needs both username and password")
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.New("invalid config:\n  " + strings.Join(errs, "\n  "))
}

// LoadDotEnv reads the given .env files (".env" by default) into the
// process environment, skipping missing ones. Variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("dotenv %s: %w", f, err)
		}
	}
	return nil
}

// Load loads configuration from the given YAML path and applies the
// environment.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			cfg.ApplyEnv(os.LookupEnv)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.fileToken = cfg.API.Token
	cfg.ApplyEnv(os.LookupEnv)

	return &cfg, nil
}

// Save writes cfg atomically with 0600 permissions. A token that came from
// the environment is not persisted.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	out := *cfg
	if cfg.tokenFromEnv {
		out.API.Token = cfg.fileToken
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return atomicfile.Write(path, data, 0o600)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
