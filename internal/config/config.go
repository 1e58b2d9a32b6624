// Package config handles session configuration: environment variables,
// .env files, and named connection profiles.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// S3Config holds credentials for an S3-compatible object store used as an
// ingestion source. All fields are required for the presigner to be enabled.
type S3Config struct {
	KeyID    *string
	Secret   *string
	Endpoint *string
	Region   *string
	Bucket   *string
}

// Complete returns true if all fields needed to presign requests are set.
func (s *S3Config) Complete() bool {
	return s.KeyID != nil && s.Secret != nil && s.Endpoint != nil && s.Region != nil
}

// Config holds the configuration for a mallard session.
type Config struct {
	Master        string // "local" or the base URL of a compute agent
	AgentToken    string // shared secret for the remote agent
	MetastorePath string // path to the SQLite metastore (default "mallard_meta.sqlite")
	MonitorAddr   string // listen address for the monitoring UI ("" disables)
	LogLevel      string // debug, info, warn, error (default "info")

	// HTTPTimeout bounds individual requests to a remote agent.
	HTTPTimeout time.Duration

	// StatsRefreshSpec is the cron spec for the monitor's dataset stat
	// refresh (default "@every 1m").
	StatsRefreshSpec string

	// S3 holds optional object storage credentials for ingestion.
	S3 S3Config

	// Warnings collects non-fatal warnings generated during loading.
	// Logged by the caller once the logger exists.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
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

// IsRemote returns true when the session targets a remote compute agent.
func (c *Config) IsRemote() bool {
	return strings.HasPrefix(c.Master, "http://") || strings.HasPrefix(c.Master, "https://")
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Master != "local" && !c.IsRemote() {
		return fmt.Errorf("master must be %q or an http(s) agent URL, got %q", "local", c.Master)
	}
	if c.IsRemote() && c.AgentToken == "" {
		return fmt.Errorf("MALLARD_AGENT_TOKEN is required when master is a remote agent")
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables and applies
// defaults. S3 variables are optional; a session can start without them.
func LoadFromEnv() (*Config, error) {
	cfg := ReadEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadEnv reads configuration from environment variables without applying
// defaults or validating. Callers that overlay programmatic options on top
// of the environment use this, then ApplyDefaults and Validate themselves.
func ReadEnv() *Config {
	cfg := &Config{
		Master:           os.Getenv("MALLARD_MASTER"),
		AgentToken:       os.Getenv("MALLARD_AGENT_TOKEN"),
		MetastorePath:    os.Getenv("MALLARD_METASTORE"),
		MonitorAddr:      os.Getenv("MALLARD_MONITOR_ADDR"),
		LogLevel:         os.Getenv("MALLARD_LOG_LEVEL"),
		StatsRefreshSpec: os.Getenv("MALLARD_STATS_REFRESH"),
	}

	if v := os.Getenv("MALLARD_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("invalid MALLARD_HTTP_TIMEOUT %q ignored", v))
		} else {
			cfg.HTTPTimeout = d
		}
	}

	// S3 fields are optional, only set if present
	if v := os.Getenv("MALLARD_S3_KEY_ID"); v != "" {
		cfg.S3.KeyID = &v
	}
	if v := os.Getenv("MALLARD_S3_SECRET"); v != "" {
		cfg.S3.Secret = &v
	}
	if v := os.Getenv("MALLARD_S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = &v
	}
	if v := os.Getenv("MALLARD_S3_REGION"); v != "" {
		cfg.S3.Region = &v
	}
	if v := os.Getenv("MALLARD_S3_BUCKET"); v != "" {
		cfg.S3.Bucket = &v
	}

	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults and records
// warnings for partially-configured features.
func (c *Config) ApplyDefaults() {
	if c.Master == "" {
		c.Master = "local"
	}
	if c.MetastorePath == "" {
		c.MetastorePath = "mallard_meta.sqlite"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.StatsRefreshSpec == "" {
		c.StatsRefreshSpec = "@every 1m"
	}
	if (c.S3.KeyID != nil || c.S3.Secret != nil || c.S3.Endpoint != nil) && !c.S3.Complete() {
		c.Warnings = append(c.Warnings, "S3 configuration is incomplete; s3:// ingestion sources are disabled")
	}
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
