// Package config provides configuration management for the Read the Docs MCP Server.
// It supports loading configuration from multiple sources: command-line flags, config files,
// and environment variables, with proper precedence handling.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/j4ng5y/readthedocs-mcp-server/internal/cache"
)

// ProjectPlaceholder is substituted with a project slug in DocsURLTemplate.
const ProjectPlaceholder = "{project}"

// Config holds all configuration settings for the Read the Docs MCP Server.
type Config struct {
	// Server settings
	LogLevel string // Log level: debug, info, warn, error (default: info)

	// Upstream settings
	APIBaseURL      string // Read the Docs API base (default: https://readthedocs.org/api/v3)
	WebsiteURL      string // Read the Docs website, used for the search-page fallback (default: https://readthedocs.org)
	DocsURLTemplate string // Rendered docs root; {project} is replaced with the slug (default: https://{project}.readthedocs.io)
	DocsLanguage    string // Language segment of page URLs (default: en)
	APIToken        string // Default API token (default: empty, unauthenticated)

	// HTTP settings
	FetchTimeout  int // Timeout per request in seconds (default: 10)
	MaxRetries    int // Retries on 5xx/network errors (default: 0)
	MaxConcurrent int // Requests per second allowed by the limiter (default: 5)

	// Cache settings
	CacheTTL      int    // Entry lifetime in seconds (default: 3600)
	CacheCapacity int    // Maximum number of cached entries (default: 1024)
	CacheDir      string // Directory for the cache snapshot (default: empty, no snapshot)

	// CacheSnapshotSchedule is a cron expression for periodic snapshots while
	// running; only used when CacheDir is set (default: @every 10m)
	CacheSnapshotSchedule string

	// Content settings
	MaxContentChars int // Page text is truncated past this many characters (default: 8000)
	MinContentChars int // A content container must hold more text than this (default: 100)

	// Transport settings
	TransportType string // stdio, sse or streamablehttp (default: stdio)
	Host          string // Listen host for network transports (default: localhost)
	Port          int    // Listen port for network transports (default: 0)
}

// NewConfig creates a new Config with default values for all optional parameters.
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",

		APIBaseURL:      "https://readthedocs.org/api/v3",
		WebsiteURL:      "https://readthedocs.org",
		DocsURLTemplate: "https://" + ProjectPlaceholder + ".readthedocs.io",
		DocsLanguage:    "en",
		APIToken:        "",

		FetchTimeout:  10,
		MaxRetries:    0,
		MaxConcurrent: 5,

		CacheTTL:      3600,
		CacheCapacity: cache.DefaultCapacity,
		CacheDir:      "",

		CacheSnapshotSchedule: "@every 10m",

		MaxContentChars: 8000,
		MinContentChars: 100,

		TransportType: "stdio",
		Host:          "localhost",
		Port:          0,
	}
}

// Load loads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := NewConfig()
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file, with environment variables
// as fallback, and defaults as final fallback.
// The precedence order is: config file > environment variables > defaults.
func LoadFromFile(configPath string) (*Config, error) {
	return LoadWithFlags(configPath, nil)
}

// LoadWithFlags loads configuration from command-line flags, config file,
// environment variables, and defaults.
// The precedence order is: flags > config file > environment variables > defaults.
// An empty configPath skips the file layer.
func LoadWithFlags(configPath string, flags map[string]interface{}) (*Config, error) {
	cfg := NewConfig()
	loadFromEnv(cfg)

	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		loadFromViper(cfg, v)
	}

	loadFromFlags(cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var (
	stringKeys = []string{
		"log_level", "api_base_url", "website_url", "docs_url_template",
		"docs_language", "api_token", "cache_dir", "cache_snapshot_schedule",
		"transport_type", "host",
	}
	intKeys = []string{
		"fetch_timeout", "max_retries", "max_concurrent", "cache_ttl",
		"cache_capacity", "max_content_chars", "min_content_chars", "port",
	}
)

// envKey maps a config key to its environment variable
func envKey(key string) string {
	switch key {
	case "api_base_url", "website_url", "docs_url_template", "docs_language":
		return "READTHEDOCS_" + strings.ToUpper(key)
	case "api_token":
		return "READTHEDOCS_TOKEN"
	default:
		return strings.ToUpper(key)
	}
}

// loadFromViper copies every key present in the config file into cfg
func loadFromViper(cfg *Config, v *viper.Viper) {
	for _, key := range stringKeys {
		if v.IsSet(key) {
			*cfg.stringField(key) = v.GetString(key)
		}
	}
	for _, key := range intKeys {
		if v.IsSet(key) {
			*cfg.intField(key) = v.GetInt(key)
		}
	}
}

// loadFromFlags applies flag values, ignoring nil values and values of the wrong type
func loadFromFlags(cfg *Config, flags map[string]interface{}) {
	for key, val := range flags {
		switch v := val.(type) {
		case string:
			if dst := cfg.stringField(key); dst != nil {
				*dst = v
			}
		case int:
			if dst := cfg.intField(key); dst != nil {
				*dst = v
			}
		}
	}
}

// loadFromEnv loads configuration from environment variables into the provided Config.
// Empty values and unparsable integers are ignored.
func loadFromEnv(cfg *Config) {
	for _, key := range stringKeys {
		if val := os.Getenv(envKey(key)); val != "" {
			*cfg.stringField(key) = val
		}
	}
	for _, key := range intKeys {
		if val := os.Getenv(envKey(key)); val != "" {
			if intVal, err := strconv.Atoi(val); err == nil {
				*cfg.intField(key) = intVal
			}
		}
	}
}

func (c *Config) stringField(key string) *string {
	switch key {
	case "log_level":
		return &c.LogLevel
	case "api_base_url":
		return &c.APIBaseURL
	case "website_url":
		return &c.WebsiteURL
	case "docs_url_template":
		return &c.DocsURLTemplate
	case "docs_language":
		return &c.DocsLanguage
	case "api_token":
		return &c.APIToken
	case "cache_dir":
		return &c.CacheDir
	case "cache_snapshot_schedule":
		return &c.CacheSnapshotSchedule
	case "transport_type":
		return &c.TransportType
	case "host":
		return &c.Host
	}
	return nil
}

func (c *Config) intField(key string) *int {
	switch key {
	case "fetch_timeout":
		return &c.FetchTimeout
	case "max_retries":
		return &c.MaxRetries
	case "max_concurrent":
		return &c.MaxConcurrent
	case "cache_ttl":
		return &c.CacheTTL
	case "cache_capacity":
		return &c.CacheCapacity
	case "max_content_chars":
		return &c.MaxContentChars
	case "min_content_chars":
		return &c.MinContentChars
	case "port":
		return &c.Port
	}
	return nil
}

// FetchTimeoutDuration returns FetchTimeout as a time.Duration.
func (c *Config) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// CacheTTLDuration returns CacheTTL as a time.Duration.
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// Validate validates all configuration values and returns descriptive errors
// for any invalid settings. Transport settings are checked separately by
// ValidateTransport.
func (c *Config) Validate() error {
	var errors []string

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel))
	}

	if c.FetchTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("fetch_timeout must be positive, got: %d", c.FetchTimeout))
	}
	if c.MaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("max_retries cannot be negative, got: %d", c.MaxRetries))
	}
	if c.MaxConcurrent <= 0 {
		errors = append(errors, fmt.Sprintf("max_concurrent must be positive, got: %d", c.MaxConcurrent))
	}
	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("cache_ttl must be positive, got: %d", c.CacheTTL))
	}
	if c.CacheCapacity <= 0 {
		errors = append(errors, fmt.Sprintf("cache_capacity must be positive, got: %d", c.CacheCapacity))
	}
	if c.MaxContentChars <= 0 {
		errors = append(errors, fmt.Sprintf("max_content_chars must be positive, got: %d", c.MaxContentChars))
	}
	if c.MinContentChars < 0 {
		errors = append(errors, fmt.Sprintf("min_content_chars cannot be negative, got: %d", c.MinContentChars))
	}

	if c.CacheSnapshotSchedule != "" {
		if _, err := cron.ParseStandard(c.CacheSnapshotSchedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid cache_snapshot_schedule %q: %v", c.CacheSnapshotSchedule, err))
		}
	}

	errors = append(errors, validateURL("api_base_url", c.APIBaseURL)...)
	errors = append(errors, validateURL("website_url", c.WebsiteURL)...)
	errors = append(errors, validateURL("docs_url_template", c.DocsURLTemplate)...)
	if c.DocsURLTemplate != "" && !strings.Contains(c.DocsURLTemplate, ProjectPlaceholder) {
		errors = append(errors, fmt.Sprintf("docs_url_template must contain %s, got: %s", ProjectPlaceholder, c.DocsURLTemplate))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// validateURL checks that value is a non-empty http(s) URL with something after the scheme
func validateURL(name, value string) []string {
	if value == "" {
		return []string{fmt.Sprintf("%s cannot be empty", name)}
	}

	var errors []string
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		errors = append(errors, fmt.Sprintf("%s must start with http:// or https://, got: %s", name, value))
	}
	if value == "http://" || value == "https://" {
		errors = append(errors, fmt.Sprintf("%s is incomplete: %s", name, value))
	}
	return errors
}

// GetTransportType returns the configured transport type.
func (c *Config) GetTransportType() string {
	return c.TransportType
}

// GetPort returns the configured listen port.
func (c *Config) GetPort() int {
	return c.Port
}

// GetTransportAddress returns "host:port" for network transports and an
// empty string for stdio.
func (c *Config) GetTransportAddress() string {
	if c.TransportType == "stdio" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ValidateTransport checks the transport type and, for network transports,
// that a usable port is configured.
func (c *Config) ValidateTransport() error {
	switch c.TransportType {
	case "stdio":
		return nil
	case "sse", "streamablehttp":
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535 for %s transport, got: %d", c.TransportType, c.Port)
		}
		return nil
	default:
		return fmt.Errorf("invalid transport type: %s (must be one of: stdio, sse, streamablehttp)", c.TransportType)
	}
}
