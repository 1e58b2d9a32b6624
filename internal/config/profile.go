package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is a named connection profile as stored in the profiles file.
// Zero-valued fields fall back to env/default values when applied.
type Profile struct {
	Master        string `yaml:"master"`
	AgentToken    string `yaml:"agent_token"`
	MetastorePath string `yaml:"metastore"`
	MonitorAddr   string `yaml:"monitor_addr"`
	LogLevel      string `yaml:"log_level"`
	HTTPTimeout   string `yaml:"http_timeout"`

	S3 struct {
		KeyID    string `yaml:"key_id"`
		Secret   string `yaml:"secret"`
		Endpoint string `yaml:"endpoint"`
		Region   string `yaml:"region"`
		Bucket   string `yaml:"bucket"`
	} `yaml:"s3"`
}

// profilesFile is the on-disk layout of the profiles file.
type profilesFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// DefaultProfilesPath returns the default location of the profiles file,
// honoring MALLARD_PROFILES when set.
func DefaultProfilesPath() string {
	if p := os.Getenv("MALLARD_PROFILES"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "profiles.yaml"
	}
	return filepath.Join(home, ".mallard", "profiles.yaml")
}

// LoadProfile reads the named profile from the YAML profiles file at path and
// applies it over cfg. Fields already set on cfg win over profile values, so
// env vars and explicit options take precedence.
func LoadProfile(cfg *Config, path, name string) error {
	raw, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return fmt.Errorf("read profiles file %s: %w", path, err)
	}

	var pf profilesFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return fmt.Errorf("parse profiles file %s: %w", path, err)
	}

	p, ok := pf.Profiles[name]
	if !ok {
		return fmt.Errorf("profile %q not found in %s", name, path)
	}

	applyString(&cfg.Master, p.Master)
	applyString(&cfg.AgentToken, p.AgentToken)
	applyString(&cfg.MetastorePath, p.MetastorePath)
	applyString(&cfg.MonitorAddr, p.MonitorAddr)
	applyString(&cfg.LogLevel, p.LogLevel)

	if cfg.HTTPTimeout == 0 && p.HTTPTimeout != "" {
		d, err := time.ParseDuration(p.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("profile %q: invalid http_timeout: %w", name, err)
		}
		cfg.HTTPTimeout = d
	}

	applyOptString(&cfg.S3.KeyID, p.S3.KeyID)
	applyOptString(&cfg.S3.Secret, p.S3.Secret)
	applyOptString(&cfg.S3.Endpoint, p.S3.Endpoint)
	applyOptString(&cfg.S3.Region, p.S3.Region)
	applyOptString(&cfg.S3.Bucket, p.S3.Bucket)

	return nil
}

func applyString(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func applyOptString(dst **string, v string) {
	if *dst == nil && v != "" {
		*dst = &v
	}
}
