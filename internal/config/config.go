// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonathan/recruiting-assistant/internal/agents"
	"github.com/jonathan/recruiting-assistant/internal/logging"
	"github.com/jonathan/recruiting-assistant/internal/resolver"
	"github.com/jonathan/recruiting-assistant/internal/workflow"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RECRUITER"

// Limits enforced by Validate.
const (
	MinTimeout = time.Second
	MaxTimeout = 5 * time.Minute
)

// Config represents the configuration that can be loaded from a file and the environment.
// Empty service URLs disable the static fallback for that service.
type Config struct {
	// Service endpoints
	AuthURL     string `mapstructure:"auth_url" json:"auth_url,omitempty"`         // auth_agent JSON-RPC endpoint
	SearchURL   string `mapstructure:"search_url" json:"search_url,omitempty"`     // webservice_agent JSON-RPC endpoint
	RecordsURL  string `mapstructure:"records_url" json:"records_url,omitempty"`   // dbservice_agent JSON-RPC endpoint
	RegistryURL string `mapstructure:"registry_url" json:"registry_url,omitempty"` // optional agent registry

	// RPC behavior
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
	ClientID    string        `mapstructure:"client_id" json:"client_id,omitempty"` // correlation id prefix
	AttachToken bool          `mapstructure:"attach_token" json:"attach_token,omitempty"`

	// Save loop
	SaveConcurrency int           `mapstructure:"save_concurrency" json:"save_concurrency,omitempty"`
	SaveTimeout     time.Duration `mapstructure:"save_timeout" json:"save_timeout,omitempty"`

	// Server and storage
	DatabaseURL string `mapstructure:"database_url" json:"database_url,omitempty"`
	Port        int    `mapstructure:"port" json:"port,omitempty"`
	LogLevel    string `mapstructure:"log_level" json:"log_level,omitempty"`
}

// envAliases are the variable names used by existing deployments, checked after
// the RECRUITER_-prefixed name.
var envAliases = map[string]string{
	"auth_url":     "AUTH_AGENT_URL",
	"search_url":   "WEBSERVICE_AGENT_URL",
	"records_url":  "DBSERVICE_AGENT_URL",
	"registry_url": "A2A_REGISTRY_URL",
	"database_url": "DATABASE_URL",
}

var keys = []string{
	"auth_url", "search_url", "records_url", "registry_url",
	"timeout", "client_id", "attach_token",
	"save_concurrency", "save_timeout",
	"database_url", "port", "log_level",
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		AuthURL:         "http://localhost:8100/a2a",
		SearchURL:       "http://localhost:8101/a2a",
		RecordsURL:      "http://localhost:8102/a2a",
		Timeout:         20 * time.Second,
		ClientID:        "hra-agent-host",
		SaveConcurrency: 1,
		Port:            8007,
		LogLevel:        "info",
	}
}

// Load reads configuration from defaults, an optional file (JSON, YAML or TOML by
// extension) and the environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AllowEmptyEnv(true)

	def := Defaults()
	v.SetDefault("auth_url", def.AuthURL)
	v.SetDefault("search_url", def.SearchURL)
	v.SetDefault("records_url", def.RecordsURL)
	v.SetDefault("registry_url", def.RegistryURL)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("client_id", def.ClientID)
	v.SetDefault("attach_token", def.AttachToken)
	v.SetDefault("save_concurrency", def.SaveConcurrency)
	v.SetDefault("save_timeout", def.SaveTimeout)
	v.SetDefault("database_url", def.DatabaseURL)
	v.SetDefault("port", def.Port)
	v.SetDefault("log_level", def.LogLevel)

	for _, key := range keys {
		names := []string{key, EnvPrefix + "_" + strings.ToUpper(key)}
		if alias, ok := envAliases[key]; ok {
			names = append(names, alias)
		}
		if err := v.BindEnv(names...); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.AuthURL = strings.TrimSpace(c.AuthURL)
	c.SearchURL = strings.TrimSpace(c.SearchURL)
	c.RecordsURL = strings.TrimSpace(c.RecordsURL)
	c.RegistryURL = strings.TrimSpace(c.RegistryURL)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	for name, addr := range map[string]string{
		"auth_url":     c.AuthURL,
		"search_url":   c.SearchURL,
		"records_url":  c.RecordsURL,
		"registry_url": c.RegistryURL,
	} {
		if addr == "" {
			continue
		}
		if err := resolver.ValidateAddress(addr); err != nil {
			return fmt.Errorf("config error: '%s': %w", name, err)
		}
	}

	if c.Timeout < MinTimeout || c.Timeout > MaxTimeout {
		return fmt.Errorf("config error: 'timeout' must be between %s and %s, got %s", MinTimeout, MaxTimeout, c.Timeout)
	}
	if c.SaveTimeout < 0 || c.SaveTimeout > MaxTimeout {
		return fmt.Errorf("config error: 'save_timeout' must be between 0 and %s, got %s", MaxTimeout, c.SaveTimeout)
	}
	if c.SaveConcurrency < 1 || c.SaveConcurrency > workflow.MaxSaveConcurrency {
		return fmt.Errorf("config error: 'save_concurrency' must be between 1 and %d, got %d", workflow.MaxSaveConcurrency, c.SaveConcurrency)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 1 and 65535, got %d", c.Port)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config error: 'log_level': %w", err)
	}
	if c.DatabaseURL != "" {
		u, err := url.Parse(c.DatabaseURL)
		if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			return fmt.Errorf("config error: 'database_url' must be a postgres:// URL")
		}
	}
	return nil
}

// StaticAddresses maps service names to the configured fallback addresses.
func (c *Config) StaticAddresses() map[string]string {
	return map[string]string{
		agents.AuthService:    c.AuthURL,
		agents.SearchService:  c.SearchURL,
		agents.RecordsService: c.RecordsURL,
	}
}

// RedactedDatabaseURL returns the database URL with any password masked.
func (c *Config) RedactedDatabaseURL() string {
	if c.DatabaseURL == "" {
		return ""
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
