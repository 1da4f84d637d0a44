// Package config defines the A.U.R.A application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Server       ServerConfig                `json:"server" yaml:"server"`
	Auth         AuthConfig                  `json:"auth" yaml:"auth"`
	DataDir      string                      `json:"data_dir" yaml:"data_dir"`
	LogLevel     string                      `json:"log_level" yaml:"log_level"`
	LLM          LLMConfig                   `json:"llm" yaml:"llm"`
	Bus          BusConfig                   `json:"bus" yaml:"bus"`
	Capabilities map[string]CapabilityConfig `json:"capabilities,omitempty" yaml:"capabilities"` // keyed by domain
	Suggestions  SuggestionsConfig           `json:"suggestions" yaml:"suggestions"`
	Dispatch     DispatchConfig              `json:"dispatch" yaml:"dispatch"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":9090"
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser string `json:"admin_user" yaml:"admin_user"`
	AdminPass string `json:"admin_pass" yaml:"admin_pass"` // plain text or bcrypt hash
}

// LLMConfig selects the language model backend.
type LLMConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // "mock" or "openai"
	Model      string `json:"model,omitempty" yaml:"model"`
	ImageModel string `json:"image_model,omitempty" yaml:"image_model"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url"`
	APIKeyEnv  string `json:"api_key_env,omitempty" yaml:"api_key_env"` // environment variable holding the key
}

// APIKey resolves the key from the configured environment variable.
func (c LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// BusConfig selects the event bus backend.
type BusConfig struct {
	Backend       string `json:"backend" yaml:"backend"` // "memory" or "redis"
	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password"`
	ChannelPrefix string `json:"channel_prefix,omitempty" yaml:"channel_prefix"`
}

// CapabilityConfig configures the provider serving one domain.
type CapabilityConfig struct {
	Backend string        `json:"backend" yaml:"backend"` // "mock" or "http"
	URL     string        `json:"url,omitempty" yaml:"url"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout"`
	Latency time.Duration `json:"latency,omitempty" yaml:"latency"` // mock only
}

// SuggestionsConfig controls the suggestion engine.
type SuggestionsConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled"`
	Max          int  `json:"max" yaml:"max"`
	AfterFailure bool `json:"after_failure" yaml:"after_failure"`
}

// DispatchConfig controls the action dispatcher.
type DispatchConfig struct {
	ProviderTimeout time.Duration `json:"provider_timeout" yaml:"provider_timeout"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9090",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
		},
		DataDir:  "./data",
		LogLevel: "info",
		LLM: LLMConfig{
			Provider:  "mock",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Bus: BusConfig{
			Backend:       "memory",
			ChannelPrefix: "aura:",
		},
		Suggestions: SuggestionsConfig{
			Enabled:      true,
			Max:          3,
			AfterFailure: true,
		},
		Dispatch: DispatchConfig{
			ProviderTimeout: 30 * time.Second,
		},
	}
}

// Load reads a YAML config file and returns the parsed configuration.
// A .env file next to the config, if present, is loaded into the
// environment first; variables already set are not overridden.
func Load(path string) (*Config, error) {
	if err := LoadEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv loads a dotenv file. A missing file is not an error.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env %s: %w", path, err)
	}
	return nil
}

// Validate checks backend names and required settings.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "mock", "openai":
	default:
		return fmt.Errorf("llm: unknown provider %q", c.LLM.Provider)
	}
	switch c.Bus.Backend {
	case "memory":
	case "redis":
		if c.Bus.RedisAddr == "" {
			return errors.New("bus: redis backend requires redis_addr")
		}
	default:
		return fmt.Errorf("bus: unknown backend %q", c.Bus.Backend)
	}
	for domain, cc := range c.Capabilities {
		switch cc.Backend {
		case "", "mock":
		case "http":
			if cc.URL == "" {
				return fmt.Errorf("capabilities.%s: http backend requires url", domain)
			}
		default:
			return fmt.Errorf("capabilities.%s: unknown backend %q", domain, cc.Backend)
		}
	}
	if c.Suggestions.Max < 0 {
		return errors.New("suggestions: max must not be negative")
	}
	if c.Dispatch.ProviderTimeout < 0 {
		return errors.New("dispatch: provider_timeout must not be negative")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
