// Package config handles layered YAML/TOML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all shkolo configuration.
type Config struct {
	Cache Cache `yaml:"cache" toml:"cache"`
	API   API   `yaml:"api" toml:"api"`
	UI    UI    `yaml:"ui" toml:"ui"`
	Log   Log   `yaml:"log" toml:"log"`
}

// Cache holds local cache settings.
type Cache struct {
	Dir string        `yaml:"dir" toml:"dir"`
	TTL time.Duration `yaml:"ttl" toml:"ttl"`
}

// API holds settings for talking to the school service.
type API struct {
	BaseURL   string        `yaml:"base_url" toml:"base_url"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
	UserAgent string        `yaml:"user_agent" toml:"user_agent"`
}

// UI holds dashboard settings.
type UI struct {
	Language  string  `yaml:"language" toml:"language"`     // "bg" | "en"
	PaneRatio float64 `yaml:"pane_ratio" toml:"pane_ratio"` // student pane share of the width
}

// Log holds diagnostic log settings.
type Log struct {
	Level string `yaml:"level" toml:"level"` // "debug" | "info" | "warn" | "error"
	File  string `yaml:"file" toml:"file"`
}

// Pane ratio bounds shared with the dashboard.
const (
	MinPaneRatio = 0.15
	MaxPaneRatio = 0.60
)

// HomeDir is the per-user data directory, ~/.shkolo.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shkolo"
	}
	return filepath.Join(home, ".shkolo")
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	base := HomeDir()
	return Config{
		Cache: Cache{
			Dir: filepath.Join(base, "cache"),
			TTL: time.Hour,
		},
		API: API{
			BaseURL:   "https://api.shkolo.bg",
			Timeout:   30 * time.Second,
			UserAgent: "Shkolo-app-iOS/1.43.3",
		},
		UI: UI{
			Language:  "bg",
			PaneRatio: 0.25,
		},
		Log: Log{
			Level: "info",
			File:  filepath.Join(base, "shkolo.log"),
		},
	}
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files are skipped. Files
// ending in .toml are parsed as TOML, everything else as YAML.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if c.Cache.Dir == "" {
		return errors.New("config: cache.dir cannot be empty")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache.ttl must be positive, got %v", c.Cache.TTL)
	}
	if c.API.BaseURL == "" {
		return errors.New("config: api.base_url cannot be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("config: api.timeout must be positive, got %v", c.API.Timeout)
	}
	switch c.UI.Language {
	case "bg", "en":
	default:
		return fmt.Errorf("config: ui.language must be \"bg\" or \"en\", got %q", c.UI.Language)
	}
	if c.UI.PaneRatio < MinPaneRatio || c.UI.PaneRatio > MaxPaneRatio {
		return fmt.Errorf("config: ui.pane_ratio must be within [%.2f, %.2f], got %v", MinPaneRatio, MaxPaneRatio, c.UI.PaneRatio)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: SHKOLO_CACHE_TTL (seconds), SHKOLO_CACHE_DIR,
// SHKOLO_LANG, SHKOLO_LOG_LEVEL.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SHKOLO_CACHE_TTL"); v != "" {
		secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid SHKOLO_CACHE_TTL %q: %w", v, err)
		}
		c.Cache.TTL = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("SHKOLO_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("SHKOLO_LANG"); v != "" {
		c.UI.Language = strings.ToLower(v)
	}
	if v := os.Getenv("SHKOLO_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	Cache *rawCache `yaml:"cache" toml:"cache"`
	API   *rawAPI   `yaml:"api" toml:"api"`
	UI    *rawUI    `yaml:"ui" toml:"ui"`
	Log   *rawLog   `yaml:"log" toml:"log"`
}

type rawCache struct {
	Dir *string        `yaml:"dir" toml:"dir"`
	TTL *time.Duration `yaml:"ttl" toml:"ttl"`
}

type rawAPI struct {
	BaseURL   *string        `yaml:"base_url" toml:"base_url"`
	Timeout   *time.Duration `yaml:"timeout" toml:"timeout"`
	UserAgent *string        `yaml:"user_agent" toml:"user_agent"`
}

type rawUI struct {
	Language  *string  `yaml:"language" toml:"language"`
	PaneRatio *float64 `yaml:"pane_ratio" toml:"pane_ratio"`
}

type rawLog struct {
	Level *string `yaml:"level" toml:"level"`
	File  *string `yaml:"file" toml:"file"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw rawConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&raw)
		if err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: parsing %s: unknown field %q", path, undecoded[0].String())
		}
		return &raw, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if layer.Cache != nil {
		if layer.Cache.Dir != nil {
			c.Cache.Dir = expandHome(*layer.Cache.Dir)
		}
		if layer.Cache.TTL != nil {
			c.Cache.TTL = *layer.Cache.TTL
		}
	}
	if layer.API != nil {
		if layer.API.BaseURL != nil {
			c.API.BaseURL = *layer.API.BaseURL
		}
		if layer.API.Timeout != nil {
			c.API.Timeout = *layer.API.Timeout
		}
		if layer.API.UserAgent != nil {
			c.API.UserAgent = *layer.API.UserAgent
		}
	}
	if layer.UI != nil {
		if layer.UI.Language != nil {
			c.UI.Language = strings.ToLower(*layer.UI.Language)
		}
		if layer.UI.PaneRatio != nil {
			c.UI.PaneRatio = *layer.UI.PaneRatio
		}
	}
	if layer.Log != nil {
		if layer.Log.Level != nil {
			c.Log.Level = strings.ToLower(*layer.Log.Level)
		}
		if layer.Log.File != nil {
			c.Log.File = expandHome(*layer.Log.File)
		}
	}
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
