package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Load reads configuration from an optional YAML file and environment
// variables, applies defaults, and validates the result. Environment
// variables take precedence over file values. A missing file is an error
// only when path is non-empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// SERVER_PORT -> server.port, BANDIT_STATE_PATH -> bandit.state_path.
	// Only the first underscore separates section from key.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		s = strings.ToLower(s)
		parts := strings.SplitN(s, "_", 2)
		if len(parts) != 2 {
			return s
		}
		switch parts[0] {
		case "server", "logging", "bandit", "generation", "safety", "interaction":
			return parts[0] + "." + parts[1]
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
