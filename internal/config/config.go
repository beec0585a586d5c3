package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server        ServerConfig        `json:"server"`
	Providers     []ProviderConfig    `json:"providers"`
	Oracle        OracleConfig        `json:"oracle"`
	Gateway       GatewayConfig       `json:"gateway"`
	Database      DatabaseConfig      `json:"database"`
	Orchestration OrchestrationConfig `json:"orchestration"`
	Specialists   SpecialistsConfig   `json:"specialists"`
	Admins        []string            `json:"admins"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// OracleConfig controls how reasoning calls are routed and bounded.
type OracleConfig struct {
	TimeoutSeconds int                 `json:"timeout_seconds"`
	MaxConcurrent  int                 `json:"max_concurrent"`
	Model          string              `json:"model"`
	Bindings       map[string]string   `json:"bindings,omitempty"`  // purpose -> provider ID
	Fallbacks      map[string][]string `json:"fallbacks,omitempty"` // purpose -> provider chain
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack"`
	Discord DiscordGatewayConfig `json:"discord"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	AppToken string `json:"app_token"`
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN        string `json:"dsn"`
	Migrations string `json:"migrations"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// OrchestrationConfig holds the tunables of the request pipeline.
type OrchestrationConfig struct {
	CorrelationCapacity int     `json:"correlation_capacity"`
	ContextTTLMinutes   int     `json:"context_ttl_minutes"`
	RecentWorkItems     int     `json:"recent_work_items"`
	HistoryTurns        int     `json:"history_turns"`
	ClassifierFloor     float64 `json:"classifier_floor"`
	ClarifyMaxRounds    int     `json:"clarify_max_rounds"`
	MirrorWorkers       int     `json:"mirror_workers"`
}

// SpecialistsConfig points at the YAML seed store used when Postgres is absent.
type SpecialistsConfig struct {
	File            string `json:"file"`
	DefaultPlatform string `json:"default_platform"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references,
// fills defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw JSON config bytes.
func Parse(data []byte) (*Config, error) {
	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Oracle.TimeoutSeconds == 0 {
		c.Oracle.TimeoutSeconds = 20
	}
	if c.Oracle.MaxConcurrent == 0 {
		c.Oracle.MaxConcurrent = 8
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = "default"
	}
	if c.Database.Postgres.Migrations == "" {
		c.Database.Postgres.Migrations = "migrations"
	}

	o := &c.Orchestration
	if o.CorrelationCapacity == 0 {
		o.CorrelationCapacity = 20
	}
	if o.ContextTTLMinutes == 0 {
		o.ContextTTLMinutes = 720
	}
	if o.RecentWorkItems == 0 {
		o.RecentWorkItems = 5
	}
	if o.HistoryTurns == 0 {
		o.HistoryTurns = 20
	}
	if o.ClassifierFloor == 0 {
		o.ClassifierFloor = 0.35
	}
	if o.ClarifyMaxRounds == 0 {
		o.ClarifyMaxRounds = 3
	}
	if o.MirrorWorkers == 0 {
		o.MirrorWorkers = 4
	}

	if c.Specialists.File == "" {
		c.Specialists.File = "configs/specialists.yaml"
	}
	if c.Specialists.DefaultPlatform == "" {
		c.Specialists.DefaultPlatform = "slack"
	}
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Oracle.TimeoutSeconds < 0 || c.Oracle.TimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("oracle.timeout_seconds must be within 1..120, got %d", c.Oracle.TimeoutSeconds))
	}
	if c.Oracle.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("oracle.max_concurrent must be positive"))
	}
	if c.Orchestration.CorrelationCapacity < 1 {
		errs = append(errs, fmt.Errorf("orchestration.correlation_capacity must be positive"))
	}
	if c.Orchestration.ClassifierFloor < 0 || c.Orchestration.ClassifierFloor > 1 {
		errs = append(errs, fmt.Errorf("orchestration.classifier_floor must be within 0..1"))
	}
	seen := make(map[string]bool)
	for _, p := range c.Providers {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("provider with empty id"))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("duplicate provider id %q", p.ID))
		}
		seen[p.ID] = true
	}
	for purpose, id := range c.Oracle.Bindings {
		if !seen[id] {
			errs = append(errs, fmt.Errorf("oracle binding %q references unknown provider %q", purpose, id))
		}
	}
	return errors.Join(errs...)
}

// OracleTimeout returns the per-call reasoning timeout.
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutSeconds) * time.Second
}

// ContextTTL returns how long an idle conversation context is kept.
func (c *Config) ContextTTL() time.Duration {
	return time.Duration(c.Orchestration.ContextTTLMinutes) * time.Minute
}

// IsAdmin reports whether userID may run admin commands.
func (c *Config) IsAdmin(userID string) bool {
	for _, a := range c.Admins {
		if a == userID {
			return true
		}
	}
	return false
}
