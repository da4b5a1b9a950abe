package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "QUESTBOARD_"
	configFileEnv = "QUESTBOARD_CONFIG"
)

// Load builds the configuration by layering, from low to high precedence:
//  1. built-in defaults
//  2. YAML file named by QUESTBOARD_CONFIG, if set
//  3. env vars QUESTBOARD_<SECTION>_<KEY> (e.g. QUESTBOARD_CATALOG_FRESHNESS_WINDOW)
//
// GITHUB_TOKEN and ANTHROPIC_API_KEY fill in credentials left empty by the layers above.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(configFileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envKey maps QUESTBOARD_CATALOG_FRESHNESS_WINDOW to catalog.freshness_window.
// Only the first underscore after the prefix separates section from key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if s == "config" {
		return ""
	}
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + key
}
