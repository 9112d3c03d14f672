// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config assembles stepflow's runtime configuration from a YAML
// file overlaid with environment variables. Every sub-config follows the
// same SetDefaults()/Validate() pair so a caller can load a partial or
// empty file and still end up with a fully-defaulted, validated Config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joho/godotenv"

	"github.com/stepflow-dev/stepflow/pkg/observability"
	"github.com/stepflow-dev/stepflow/pkg/telemetry"
)

// Config is the top-level configuration for a stepflow process.
type Config struct {
	Store         StoreConfig             `yaml:"store"`
	Content       ContentConfig           `yaml:"content"`
	Token         TokenConfig             `yaml:"token"`
	Logger        LoggerConfig            `yaml:"logger"`
	Telemetry     telemetry.Config        `yaml:"telemetry"`
	Observability observability.TracerConfig `yaml:"observability"`
	Server  ServerConfig  `yaml:"server"`
}

// StoreConfig controls how the durable store connects and seeds itself.
type StoreConfig struct {
	// Backend selects the storage dialect. Only "filesystem" (sqlite
	// file) is currently supported: the schema's partial indexes, AFTER
	// UPDATE triggers, and knowledge_findings_fts virtual table are all
	// sqlite-specific.
	Backend string `yaml:"backend"`
	// DBPath is the sqlite database file path when Backend is "filesystem".
	DBPath string `yaml:"db_path"`
	// SeedDB, when true, makes `stepflow migrate` insert demo knowledge
	// findings after applying migrations. It does so on every such run,
	// whether or not the database was fresh; `serve --migrate` does not
	// seed.
	SeedDB bool `yaml:"seed_db"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "filesystem"
	}
	if c.DBPath == "" {
		c.DBPath = "stepflow.db"
	}
}

func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case "filesystem":
		if c.DBPath == "" {
			return fmt.Errorf("store: db_path is required when backend=filesystem")
		}
	default:
		return fmt.Errorf("store: unknown backend %q (want filesystem)", c.Backend)
	}
	return nil
}

// ContentConfig controls where workflow/agent definitions are loaded from.
type ContentConfig struct {
	// ContentPath is the filesystem root the content provider watches.
	ContentPath string `yaml:"content_path"`
	// DiscoveryMethod is "autodiscover" (watch ContentPath for changes) or
	// "manual" (load once at startup, no fsnotify watcher).
	DiscoveryMethod string `yaml:"discovery_method"`
}

func (c *ContentConfig) SetDefaults() {
	if c.ContentPath == "" {
		c.ContentPath = "./content"
	}
	if c.DiscoveryMethod == "" {
		c.DiscoveryMethod = "autodiscover"
	}
}

func (c *ContentConfig) Validate() error {
	switch c.DiscoveryMethod {
	case "autodiscover", "manual":
	default:
		return fmt.Errorf("content: unknown discovery_method %q (want autodiscover or manual)", c.DiscoveryMethod)
	}
	if c.ContentPath == "" {
		return fmt.Errorf("content: content_path is required")
	}
	return nil
}

// TokenConfig controls continuation-token issuance and validation.
type TokenConfig struct {
	// TTL is the maximum age of a token before next_step rejects it as
	// Expired. Defaults to 24h per the token contract.
	TTL time.Duration `yaml:"ttl"`
	// ClockSkew is the tolerance applied before rejecting a token whose
	// issued_at appears to be in the future (FutureIssued).
	ClockSkew time.Duration `yaml:"clock_skew"`
	// HMACSecret, when non-empty, switches the token codec to the
	// HMAC-hardened variant; empty keeps the plain opaque codec.
	HMACSecret string `yaml:"hmac_secret"`
}

func (c *TokenConfig) SetDefaults() {
	if c.TTL == 0 {
		c.TTL = 24 * time.Hour
	}
	if c.ClockSkew == 0 {
		c.ClockSkew = 30 * time.Second
	}
}

func (c *TokenConfig) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("token: ttl must be positive")
	}
	if c.ClockSkew < 0 {
		return fmt.Errorf("token: clock_skew must not be negative")
	}
	return nil
}

// LoggerConfig controls the slog-based structured logger.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggerConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logger: unknown level %q", c.Level)
	}
	switch c.Format {
	case "simple", "verbose", "json":
	default:
		return fmt.Errorf("logger: unknown format %q", c.Format)
	}
	return nil
}

// ServerConfig controls the advisory timeout sweeper and transport.
type ServerConfig struct {
	// SweeperEnabled turns on the running-step timeout sweeper (disabled
	// by default: the sweeper is advisory per the concurrency model).
	SweeperEnabled bool `yaml:"sweeper_enabled"`
	// SweeperInterval is how often the sweeper scans for timed-out steps.
	SweeperInterval time.Duration `yaml:"sweeper_interval"`
	// Transport selects how the MCP server is exposed: "stdio" (default)
	// or "http".
	Transport string `yaml:"transport"`
	// HTTPAddr is the bind address used when Transport is "http".
	HTTPAddr string `yaml:"http_addr"`
	// Name and Version identify this server to MCP clients.
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

func (c *ServerConfig) SetDefaults() {
	if c.SweeperInterval == 0 {
		c.SweeperInterval = 30 * time.Second
	}
	if c.Transport == "" {
		c.Transport = "stdio"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8090"
	}
	if c.Name == "" {
		c.Name = "stepflow"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
}

func (c *ServerConfig) Validate() error {
	if c.SweeperEnabled && c.SweeperInterval <= 0 {
		return fmt.Errorf("server: sweeper_interval must be positive when sweeper_enabled")
	}
	switch c.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("server: unknown transport %q (want stdio or http)", c.Transport)
	}
	return nil
}

// SetDefaults fills in every unset field across all sub-configs.
func (c *Config) SetDefaults() {
	c.Store.SetDefaults()
	c.Content.SetDefaults()
	c.Token.SetDefaults()
	c.Logger.SetDefaults()
	c.Server.SetDefaults()
	c.Telemetry.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks every sub-config, returning the first error encountered.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Content.Validate(); err != nil {
		return err
	}
	if err := c.Token.Validate(); err != nil {
		return err
	}
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}

// Load reads a YAML file at path (if it exists), applies environment
// variable overrides, fills in defaults, and validates the result. An
// empty path skips the file and builds configuration from defaults plus
// environment alone.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env.local", ".env")

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides overlays the recognized STEPFLOW_* environment
// variables onto cfg, taking priority over whatever the YAML file set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STEPFLOW_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("STEPFLOW_CONTENT_PATH"); v != "" {
		cfg.Content.ContentPath = v
	}
	if v := os.Getenv("STEPFLOW_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("STEPFLOW_DISCOVERY_METHOD"); v != "" {
		cfg.Content.DiscoveryMethod = v
	}
	if v := os.Getenv("STEPFLOW_SEED_DB"); v != "" {
		cfg.Store.SeedDB = v == "true" || v == "1"
	}
	if v := os.Getenv("STEPFLOW_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("STEPFLOW_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("STEPFLOW_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Token.TTL = d
		}
	}
	if v := os.Getenv("STEPFLOW_CLOCK_SKEW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Token.ClockSkew = d
		}
	}
}
