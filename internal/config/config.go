package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	defaults "github.com/mcuadros/go-defaults"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Gemini  GeminiConfig  `toml:"gemini"`
	Log     LogConfig     `toml:"log"`
	Session SessionConfig `toml:"session"`
}

type ServerConfig struct {
	Addr         string `toml:"addr" default:":9090"`
	BodyLimit    int    `toml:"body_limit" default:"10485760"`
	AllowOrigins string `toml:"allow_origins" default:"*"`
}

type GeminiConfig struct {
	Endpoint    string  `toml:"endpoint" default:"https://generativelanguage.googleapis.com/v1beta"`
	Model       string  `toml:"model" default:"gemini-2.5-flash"`
	Temperature float64 `toml:"temperature" default:"0.2"`
	APIKeyEnv   string  `toml:"api_key_env" default:"API_KEY"`
	// Zero leaves the outbound call without a deadline.
	Timeout time.Duration `toml:"timeout"`
}

type LogConfig struct {
	Dir          string        `toml:"dir" default:"logs"`
	MaxAge       time.Duration `toml:"max_age" default:"168h"`
	RotationTime time.Duration `toml:"rotation_time" default:"24h"`
	Quiet        bool          `toml:"quiet"`
}

type SessionConfig struct {
	Capacity   int    `toml:"capacity" default:"256"`
	CookieName string `toml:"cookie_name" default:"dgp_session"`
}

// Default returns a config with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load decodes the TOML file at path and fills in whatever it left unset.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	defaults.SetDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv reads .env style files into the process environment. Missing files
// are not an error; variables already set win.
func LoadEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load env: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Gemini.Temperature < 0 || c.Gemini.Temperature > 2 {
		return fmt.Errorf("config: gemini.temperature %v out of range [0,2]", c.Gemini.Temperature)
	}
	if c.Session.Capacity < 1 {
		return fmt.Errorf("config: session.capacity must be positive, got %d", c.Session.Capacity)
	}
	if c.Server.BodyLimit < 1 {
		return fmt.Errorf("config: server.body_limit must be positive, got %d", c.Server.BodyLimit)
	}
	return nil
}
