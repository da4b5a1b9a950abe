package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for questboard
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Source    SourceConfig    `koanf:"source"`
	GitHub    GitHubConfig    `koanf:"github"`
	LLM       LLMConfig       `koanf:"llm"`
	Generator GeneratorConfig `koanf:"generator"`
	Redis     RedisConfig     `koanf:"redis"`
	Database  DatabaseConfig  `koanf:"database"`
	Admin     AdminConfig     `koanf:"admin"`
	Log       LogConfig       `koanf:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

// CatalogConfig holds the quest catalog freshness and enrichment policy
type CatalogConfig struct {
	FreshnessWindow   time.Duration `koanf:"freshness_window"`
	FetchTimeout      time.Duration `koanf:"fetch_timeout"`
	AnalysisTimeout   time.Duration `koanf:"analysis_timeout"`
	RefreshTimeout    time.Duration `koanf:"refresh_timeout"`
	EnrichConcurrency int           `koanf:"enrich_concurrency"`
	DescriptionLimit  int           `koanf:"description_limit"`
	Dedupe            bool          `koanf:"dedupe"`
	SingleFlight      bool          `koanf:"single_flight"`
	WarmInterval      time.Duration `koanf:"warm_interval"`
}

// SourceConfig selects the upstream issue source
type SourceConfig struct {
	// Kind is "github" or "file"
	Kind string `koanf:"kind"`
	Dir  string `koanf:"dir"`
}

// GitHubConfig holds issue search configuration
type GitHubConfig struct {
	BaseURL string `koanf:"base_url"`
	Token   string `koanf:"token"`
	Query   string `koanf:"query"`
	Sort    string `koanf:"sort"`
	PerPage int    `koanf:"per_page"`
}

// LLMConfig holds chat-completion client configuration
type LLMConfig struct {
	APIKey    string        `koanf:"api_key"`
	BaseURL   string        `koanf:"base_url"`
	Model     string        `koanf:"model"`
	MaxTokens int64         `koanf:"max_tokens"`
	Timeout   time.Duration `koanf:"timeout"`
}

// GeneratorConfig holds quiz and protocol generation settings
type GeneratorConfig struct {
	DefaultSkillLevel string        `koanf:"default_skill_level"`
	CacheTTL          time.Duration `koanf:"cache_ttl"`
}

// RedisConfig holds Redis configuration. An empty address disables the generation cache.
type RedisConfig struct {
	Address  string `koanf:"address"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// DatabaseConfig holds PostgreSQL configuration. An empty DSN disables snapshot persistence.
type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
}

// AdminConfig guards operator endpoints. An empty key leaves them open.
type AdminConfig struct {
	APIKey string `koanf:"api_key"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `koanf:"level"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			RequestTimeout: 60 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Catalog: CatalogConfig{
			FreshnessWindow:   time.Hour,
			FetchTimeout:      10 * time.Second,
			AnalysisTimeout:   30 * time.Second,
			RefreshTimeout:    3 * time.Minute,
			EnrichConcurrency: 4,
			DescriptionLimit:  500,
		},
		Source: SourceConfig{
			Kind: "github",
			Dir:  "./seed",
		},
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com",
			Query:   `label:"good first issue" state:open no:assignee`,
			Sort:    "updated",
			PerPage: 5,
		},
		LLM: LLMConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 2048,
			Timeout:   45 * time.Second,
		},
		Generator: GeneratorConfig{
			DefaultSkillLevel: "Novice Adventurer",
			CacheTTL:          24 * time.Hour,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Catalog.FreshnessWindow <= 0 {
		return fmt.Errorf("catalog freshness window must be positive")
	}

	if c.Catalog.FetchTimeout <= 0 || c.Catalog.AnalysisTimeout <= 0 || c.Catalog.RefreshTimeout <= 0 {
		return fmt.Errorf("catalog timeouts must be positive")
	}

	if c.Catalog.EnrichConcurrency < 1 {
		return fmt.Errorf("invalid enrich concurrency: %d", c.Catalog.EnrichConcurrency)
	}

	switch c.Source.Kind {
	case "github":
		if c.GitHub.PerPage < 1 || c.GitHub.PerPage > 100 {
			return fmt.Errorf("github per_page must be within 1..100, got %d", c.GitHub.PerPage)
		}
	case "file":
		if c.Source.Dir == "" {
			return fmt.Errorf("source dir is required for file source")
		}
	default:
		return fmt.Errorf("unknown source kind: %q", c.Source.Kind)
	}

	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive")
	}

	return nil
}

// Addr returns the HTTP listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
