// Package config loads mudmapper settings from a YAML file overlaid with
// MUDMAP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/mudmapper/pkg/logging"
	"github.com/crystal-mush/mudmapper/pkg/mudconn"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "MUDMAP_"

// Config holds all settings.
type Config struct {
	// --- Connection ---
	Host         string `yaml:"host" env:"HOST"`
	Port         int    `yaml:"port" env:"PORT"`
	Charset      string `yaml:"charset" env:"CHARSET"`
	TerminalType string `yaml:"terminal_type" env:"TERMINAL_TYPE"`

	// --- Login ---
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`

	// --- Timeouts ---
	ConnectTimeout   time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	NegotiateTimeout time.Duration `yaml:"negotiate_timeout" env:"NEGOTIATE_TIMEOUT"`
	LoginTimeout     time.Duration `yaml:"login_timeout" env:"LOGIN_TIMEOUT"`
	LoginDelay       time.Duration `yaml:"login_delay" env:"LOGIN_DELAY"`
	DecisionTimeout  time.Duration `yaml:"decision_timeout" env:"DECISION_TIMEOUT"`
	EnrichTimeout    time.Duration `yaml:"enrich_timeout" env:"ENRICH_TIMEOUT"`

	// --- Play ---
	AutoPlay     bool          `yaml:"auto_play" env:"AUTO_PLAY"`
	CommandDelay time.Duration `yaml:"command_delay" env:"COMMAND_DELAY"`
	RecentLines  int           `yaml:"recent_lines" env:"RECENT_LINES"`

	Map MapConfig `yaml:"map" envPrefix:"MAP_"`

	// --- Serving ---
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	FeedAddr    string `yaml:"feed_addr" env:"FEED_ADDR"`

	Log LogConfig `yaml:"log" envPrefix:"LOG_"`
}

// MapConfig selects where the world map lives.
type MapConfig struct {
	Name      string `yaml:"name" env:"NAME"`
	Store     string `yaml:"store" env:"STORE"` // json or bolt
	Path      string `yaml:"path" env:"PATH"`
	BoltPath  string `yaml:"bolt_path" env:"BOLT_PATH"`
	AutoSave  bool   `yaml:"auto_save" env:"AUTO_SAVE"`
	SaveEvery int    `yaml:"save_every" env:"SAVE_EVERY"`
}

// SaveInterval is the number of mutations between automatic saves, or 0
// when auto-save is off.
func (m MapConfig) SaveInterval() int {
	if !m.AutoSave {
		return 0
	}
	return m.SaveEvery
}

// LogConfig configures the logger.
type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Host:             "localhost",
		Port:             4000,
		Charset:          "utf-8",
		TerminalType:     "mudmapper",
		ConnectTimeout:   10 * time.Second,
		NegotiateTimeout: 5 * time.Second,
		LoginTimeout:     30 * time.Second,
		LoginDelay:       time.Second,
		DecisionTimeout:  30 * time.Second,
		EnrichTimeout:    30 * time.Second,
		CommandDelay:     2 * time.Second,
		RecentLines:      20,
		Map: MapConfig{
			Name:      "world",
			Store:     "json",
			Path:      "maps/world_map.json",
			BoltPath:  "maps/world_map.db",
			AutoSave:  true,
			SaveEvery: 1,
		},
		MetricsAddr: "",
		FeedAddr:    "",
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults, resolves relative map paths against
// the file's directory and applies environment overrides. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

func load(path string, environ map[string]string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: parsing YAML %s: %w", path, err)
		}
		baseDir := filepath.Dir(path)
		c.Map.Path = resolve(baseDir, c.Map.Path)
		c.Map.BoltPath = resolve(baseDir, c.Map.BoltPath)
	}
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	return c, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate reports every impossible setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !mudconn.ValidCharset(c.Charset) {
		errs = append(errs, fmt.Errorf("unsupported charset %q", c.Charset))
	}
	for _, t := range []struct {
		name string
		d    time.Duration
	}{
		{"connect_timeout", c.ConnectTimeout},
		{"negotiate_timeout", c.NegotiateTimeout},
		{"login_timeout", c.LoginTimeout},
		{"decision_timeout", c.DecisionTimeout},
		{"enrich_timeout", c.EnrichTimeout},
	} {
		if t.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", t.name))
		}
	}
	if c.LoginDelay < 0 || c.CommandDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if c.RecentLines < 1 {
		errs = append(errs, errors.New("recent_lines must be at least 1"))
	}
	switch c.Map.Store {
	case "json":
		if c.Map.Path == "" {
			errs = append(errs, errors.New("map.path is required for the json store"))
		}
	case "bolt":
		if c.Map.BoltPath == "" {
			errs = append(errs, errors.New("map.bolt_path is required for the bolt store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown map.store %q", c.Map.Store))
	}
	if c.Map.AutoSave && c.Map.SaveEvery < 1 {
		errs = append(errs, errors.New("map.save_every must be at least 1"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
