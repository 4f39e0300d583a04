// Package config loads conceptmap settings from a TOML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ha1tch/conceptmap/pkg/validate"
)

// Config holds conceptmap configuration.
type Config struct {
	Backend   BackendConfig   `toml:"backend"`
	Cache     CacheConfig     `toml:"cache"`
	Layout    LayoutConfig    `toml:"layout"`
	Render    RenderConfig    `toml:"render"`
	Expansion ExpansionConfig `toml:"expansion"`
	Log       LogConfig       `toml:"log"`
}

// BackendConfig locates the generation and expansion endpoints.
type BackendConfig struct {
	BaseURL string   `toml:"base_url" validate:"required,url"`
	Token   string   `toml:"token,omitempty"`
	Timeout Duration `toml:"timeout"`
}

// CacheConfig controls the local document cache.
type CacheConfig struct {
	Enabled bool     `toml:"enabled"`
	Backend string   `toml:"backend" validate:"oneof=sqlite file memory"`
	Dir     string   `toml:"dir"`
	TTL     Duration `toml:"ttl"`
}

// LayoutConfig tunes the force solver and animation.
type LayoutConfig struct {
	Seed          string   `toml:"seed" validate:"oneof=radial tree current"`
	Iterations    int      `toml:"iterations" validate:"gte=1,lte=5000"`
	Repulsion     float64  `toml:"repulsion" validate:"gt=0"`
	Attraction    float64  `toml:"attraction" validate:"gt=0"`
	IdealLength   float64  `toml:"ideal_length" validate:"gt=0"`
	Centering     float64  `toml:"centering" validate:"gte=0"`
	Damping       float64  `toml:"damping" validate:"gt=0,lte=1"`
	RingGap       float64  `toml:"ring_gap" validate:"gt=0"`
	Animate       bool     `toml:"animate"`
	AnimationTime Duration `toml:"animation_time"`
}

// RenderConfig controls box sizing and exports.
type RenderConfig struct {
	FontSize     float64 `toml:"font_size" validate:"gte=6,lte=48"`
	MinWidth     float64 `toml:"min_width" validate:"gt=0"`
	MaxWidth     float64 `toml:"max_width" validate:"gtefield=MinWidth"`
	ExportWidth  int     `toml:"export_width" validate:"gte=64"`
	ExportHeight int     `toml:"export_height" validate:"gte=64"`
	Supersample  int     `toml:"supersample" validate:"gte=1,lte=8"`
}

// ExpansionConfig controls AI expansion requests.
type ExpansionConfig struct {
	Timeout      Duration `toml:"timeout"`
	MaxPrompt    int      `toml:"max_prompt" validate:"gte=1"`
	ChildRadius  float64  `toml:"child_radius" validate:"gt=0"`
	WarmParallel int      `toml:"warm_parallel" validate:"gte=1,lte=32"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"oneof=text json"`
	File   string `toml:"file,omitempty"`
}

// Duration is a time.Duration written as a string ("60s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
			Timeout: Duration{30 * time.Second},
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "sqlite",
			Dir:     DefaultCacheDir(),
			TTL:     Duration{24 * time.Hour},
		},
		Layout: LayoutConfig{
			Seed:          "radial",
			Iterations:    100,
			Repulsion:     8000,
			Attraction:    0.05,
			IdealLength:   150,
			Centering:     0.01,
			Damping:       0.85,
			RingGap:       220,
			Animate:       true,
			AnimationTime: Duration{600 * time.Millisecond},
		},
		Render: RenderConfig{
			FontSize:     14,
			MinWidth:     120,
			MaxWidth:     240,
			ExportWidth:  1600,
			ExportHeight: 1200,
			Supersample:  2,
		},
		Expansion: ExpansionConfig{
			Timeout:      Duration{60 * time.Second},
			MaxPrompt:    500,
			ChildRadius:  200,
			WarmParallel: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the conceptmap config directory path.
func ConfigDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "conceptmap")
}

// DefaultCacheDir returns the default cache directory.
func DefaultCacheDir() string {
	dir := os.Getenv("XDG_CACHE_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".cache")
	}
	return filepath.Join(dir, "conceptmap")
}

// Path returns the default config file path.
func Path() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file at path (Path() when empty), applies
// environment overrides and validates the result. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CONCEPTMAP_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CONCEPTMAP_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("CONCEPTMAP_TOKEN"); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv("CONCEPTMAP_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("CONCEPTMAP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// Save writes the config to path (Path() when empty).
func Save(cfg *Config, path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// EnsureExists creates the config file with defaults if it doesn't exist.
func EnsureExists(path string) error {
	if path == "" {
		path = Path()
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return Save(Default(), path)
}
