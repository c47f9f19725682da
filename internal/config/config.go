// Package config provides configuration loading for replyd with YAML file and
// environment variable support. Environment variables override file values;
// SERVER_PORT maps to server.port, BANDIT_ALPHA to bandit.alpha, and so on.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the replyd daemon.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Bandit      BanditConfig      `koanf:"bandit"`
	Generation  GenerationConfig  `koanf:"generation"`
	Safety      SafetyConfig      `koanf:"safety"`
	Interaction InteractionConfig `koanf:"interaction"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Address returns the host:port the server binds to.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// BanditConfig configures the selection policy and its state persistence.
type BanditConfig struct {
	Policy       string  `koanf:"policy"`
	Alpha        float64 `koanf:"alpha"`
	Sigma2       float64 `koanf:"sigma2"`
	Lambda       float64 `koanf:"lambda"`
	Temperature  float64 `koanf:"temperature"`
	Seed         int64   `koanf:"seed"`
	StateBackend string  `koanf:"state_backend"`
	StatePath    string  `koanf:"state_path"`
}

// GenerationConfig configures the candidate generator.
type GenerationConfig struct {
	Model           string  `koanf:"model"`
	APIKey          Secret  `koanf:"api_key"`
	BaseURL         string  `koanf:"base_url"`
	Temperature     float64 `koanf:"temperature"`
	MaxOutputTokens int64   `koanf:"max_output_tokens"`
	CandidateCount  int     `koanf:"candidate_count"`
	PromptsDir      string  `koanf:"prompts_dir"`
	WatchPrompts    bool    `koanf:"watch_prompts"`
}

// SafetyConfig configures candidate review thresholds.
type SafetyConfig struct {
	MinScore  float64 `koanf:"min_score"`
	MaxLength int     `koanf:"max_length"`
}

// InteractionConfig configures interaction logging and the pending store.
type InteractionConfig struct {
	LogPath         string   `koanf:"log_path"`
	PendingCapacity int      `koanf:"pending_capacity"`
	PendingTTL      Duration `koanf:"pending_ttl"`
}

func applyDefaults(c *Config) {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8710
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Bandit.Policy == "" {
		c.Bandit.Policy = "linucb"
	}
	if c.Bandit.Alpha == 0 {
		c.Bandit.Alpha = 0.6
	}
	if c.Bandit.Sigma2 == 0 {
		c.Bandit.Sigma2 = 0.5
	}
	if c.Bandit.Lambda == 0 {
		c.Bandit.Lambda = 1.0
	}
	if c.Bandit.Temperature == 0 {
		c.Bandit.Temperature = 1.0
	}
	if c.Bandit.StateBackend == "" {
		c.Bandit.StateBackend = "file"
	}
	if c.Bandit.StatePath == "" {
		c.Bandit.StatePath = "data/bandit_state.json"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4o-mini"
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = 0.8
	}
	if c.Generation.MaxOutputTokens == 0 {
		c.Generation.MaxOutputTokens = 600
	}
	if c.Generation.CandidateCount == 0 {
		c.Generation.CandidateCount = 4
	}
	if c.Generation.PromptsDir == "" {
		c.Generation.PromptsDir = "prompts"
	}
	if c.Safety.MinScore == 0 {
		c.Safety.MinScore = 0.2
	}
	if c.Safety.MaxLength == 0 {
		c.Safety.MaxLength = 640
	}
	if c.Interaction.LogPath == "" {
		c.Interaction.LogPath = "data/interactions.jsonl"
	}
	if c.Interaction.PendingCapacity == 0 {
		c.Interaction.PendingCapacity = 4096
	}
	if c.Interaction.PendingTTL == 0 {
		c.Interaction.PendingTTL = Duration(30 * time.Minute)
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	switch c.Bandit.Policy {
	case "linucb", "lints":
	default:
		return fmt.Errorf("bandit.policy must be linucb or lints, got %q", c.Bandit.Policy)
	}
	if c.Bandit.Alpha < 0 {
		return fmt.Errorf("bandit.alpha cannot be negative, got %g", c.Bandit.Alpha)
	}
	if c.Bandit.Sigma2 <= 0 {
		return fmt.Errorf("bandit.sigma2 must be positive, got %g", c.Bandit.Sigma2)
	}
	if c.Bandit.Lambda <= 0 {
		return fmt.Errorf("bandit.lambda must be positive, got %g", c.Bandit.Lambda)
	}
	if c.Bandit.Temperature <= 0 {
		return fmt.Errorf("bandit.temperature must be positive, got %g", c.Bandit.Temperature)
	}
	switch c.Bandit.StateBackend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("bandit.state_backend must be file or sqlite, got %q", c.Bandit.StateBackend)
	}
	if c.Generation.CandidateCount < 1 {
		return fmt.Errorf("generation.candidate_count must be at least 1, got %d", c.Generation.CandidateCount)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be in [0, 2], got %g", c.Generation.Temperature)
	}
	if c.Safety.MinScore < 0 || c.Safety.MinScore > 1 {
		return fmt.Errorf("safety.min_score must be in [0, 1], got %g", c.Safety.MinScore)
	}
	if c.Safety.MaxLength < 1 {
		return fmt.Errorf("safety.max_length must be positive, got %d", c.Safety.MaxLength)
	}
	if c.Interaction.PendingCapacity < 1 {
		return fmt.Errorf("interaction.pending_capacity must be positive, got %d", c.Interaction.PendingCapacity)
	}
	return nil
}
