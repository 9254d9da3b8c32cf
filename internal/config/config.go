package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pingsantohq/wanwatch/internal/roster"
)

const (
	envConfigPath     = "WANWATCH_CONFIG"
	DefaultConfigPath = "config.yaml"
	envFileName       = ".env"
)

const (
	defaultIntervalSec      = 60
	defaultSinkTimeoutSec   = 5
	defaultSinkMaxAttempts  = 3
	defaultGraceMinutes     = 5
	defaultMaxResetAttempts = 2
	defaultResolverTimeout  = 3 * time.Second
	defaultUpdateRepo       = "ip-monitor"
)

var (
	ErrMissingField = errors.New("missing required field")
	ErrOutOfRange   = errors.New("value out of range")
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

type Config struct {
	Location    LocationConfig `yaml:"location"`
	Providers   []string       `yaml:"providers"`
	Statics     StaticsConfig  `yaml:"statics"`
	IntervalSec int            `yaml:"interval_sec"`
	TestMode    bool           `yaml:"test_mode"`
	API         APIConfig      `yaml:"api"`
	Webhook     WebhookConfig  `yaml:"webhook"`
	Outlet      OutletConfig   `yaml:"outlet"`
	Logging     LoggingConfig  `yaml:"logging"`
	Resolver    ResolverConfig `yaml:"resolver"`
	Status      StatusConfig   `yaml:"status"`
	Update      UpdateConfig   `yaml:"update"`
}

type LocationConfig struct {
	Name string `yaml:"name"`
}

// StaticsConfig is the address roster. Descriptions[0] labels the primary.
type StaticsConfig struct {
	Primary        string   `yaml:"primary"`
	PrimaryGateway string   `yaml:"primary_gateway"`
	Secondaries    []string `yaml:"secondaries"`
	Descriptions   []string `yaml:"descriptions"`
}

type APIConfig struct {
	URL              string `yaml:"url"`
	Key              string `yaml:"key"`
	TimeoutSec       int    `yaml:"timeout_sec"`
	MaxAttempts      int    `yaml:"max_attempts"`
	HeaderFromPrefix string `yaml:"header_from_prefix"`
}

type WebhookConfig struct {
	URL         string `yaml:"url"`
	TimeoutSec  int    `yaml:"timeout_sec"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type OutletConfig struct {
	URL              string   `yaml:"url"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	GraceMinutes     *float64 `yaml:"grace_minutes"`
	MaxResetAttempts *int     `yaml:"max_reset_attempts"`
}

type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

type ResolverConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxAttemptsPerSec float64       `yaml:"max_attempts_per_sec"`
}

type StatusConfig struct {
	Addr string `yaml:"addr"`
}

type UpdateConfig struct {
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	PublicKey  string `yaml:"public_key"`
	StagingDir string `yaml:"staging_dir"`
}

// Load reads the YAML file at path. A .env file next to it is loaded first and
// ${VAR} references in the YAML are expanded from the environment.
func Load(ctx context.Context, path string) (Config, error) {
	var cfg Config

	envPath := filepath.Join(filepath.Dir(path), envFileName)
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load env file %q: %w", envPath, err)
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config %q: %w", path, err)
	}
	return cfg, nil
}

func LoadFromEnv(ctx context.Context) (Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	return Load(ctx, path)
}

func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envRef.FindStringSubmatch(m)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.IntervalSec <= 0 {
		c.IntervalSec = defaultIntervalSec
	}
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = defaultSinkTimeoutSec
	}
	if c.API.MaxAttempts <= 0 {
		c.API.MaxAttempts = defaultSinkMaxAttempts
	}
	if c.Webhook.TimeoutSec <= 0 {
		c.Webhook.TimeoutSec = defaultSinkTimeoutSec
	}
	if c.Webhook.MaxAttempts <= 0 {
		c.Webhook.MaxAttempts = defaultSinkMaxAttempts
	}
	// Zero is a valid grace and a valid attempt limit; only absent keys default.
	if c.Outlet.GraceMinutes == nil {
		grace := float64(defaultGraceMinutes)
		c.Outlet.GraceMinutes = &grace
	}
	if c.Outlet.MaxResetAttempts == nil {
		attempts := defaultMaxResetAttempts
		c.Outlet.MaxResetAttempts = &attempts
	}
	if c.Resolver.Timeout <= 0 {
		c.Resolver.Timeout = defaultResolverTimeout
	}
	if c.Logging.Enabled && c.Logging.File == "" {
		c.Logging.File = "log.txt"
	}
	if c.Update.Repo == "" {
		c.Update.Repo = defaultUpdateRepo
	}
}

// Validate checks required fields and the address roster.
func (c Config) Validate() error {
	providers := 0
	for _, p := range c.Providers {
		if strings.TrimSpace(p) != "" {
			providers++
		}
	}
	if providers == 0 {
		return fmt.Errorf("%w: providers", ErrMissingField)
	}
	if strings.TrimSpace(c.Statics.Primary) == "" {
		return fmt.Errorf("%w: statics.primary", ErrMissingField)
	}
	if _, err := c.Roster(); err != nil {
		return err
	}
	if c.Statics.PrimaryGateway != "" && !roster.ValidIP(c.Statics.PrimaryGateway) {
		return fmt.Errorf("statics.primary_gateway %q: %w", c.Statics.PrimaryGateway, roster.ErrInvalidAddress)
	}
	if c.Outlet.GraceMinutes != nil && *c.Outlet.GraceMinutes < 0 {
		return fmt.Errorf("%w: outlet.grace_minutes %v", ErrOutOfRange, *c.Outlet.GraceMinutes)
	}
	if c.Outlet.MaxResetAttempts != nil && *c.Outlet.MaxResetAttempts < 0 {
		return fmt.Errorf("%w: outlet.max_reset_attempts %d", ErrOutOfRange, *c.Outlet.MaxResetAttempts)
	}
	// Values such as "3ns" or "3us" would fail every provider request.
	if c.Resolver.Timeout < time.Millisecond {
		return fmt.Errorf("%w: resolver.timeout %v (use a unit, e.g. 3s)", ErrOutOfRange, c.Resolver.Timeout)
	}
	return nil
}

// Roster builds the address roster from the statics section.
func (c Config) Roster() (*roster.Roster, error) {
	r, err := roster.New(c.Statics.Primary, c.Statics.Secondaries, c.Statics.Descriptions)
	if err != nil {
		return nil, fmt.Errorf("statics: %w", err)
	}
	return r, nil
}

// ProviderURLs returns the configured providers with blanks removed.
func (c Config) ProviderURLs() []string {
	out := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

func (c Config) Grace() time.Duration {
	if c.Outlet.GraceMinutes == nil {
		return defaultGraceMinutes * time.Minute
	}
	return time.Duration(*c.Outlet.GraceMinutes * float64(time.Minute))
}

// MaxResetAttempts is the configured power-cycle limit; zero disables resets.
func (c Config) MaxResetAttempts() int {
	if c.Outlet.MaxResetAttempts == nil {
		return defaultMaxResetAttempts
	}
	return *c.Outlet.MaxResetAttempts
}

func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}
