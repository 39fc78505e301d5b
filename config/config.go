// Package config defines the Overseer application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Overseer configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Scoring  ScoringConfig  `json:"scoring" yaml:"scoring"`
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch"`
	Hub      HubConfig      `json:"hub" yaml:"hub"`
	Agents   []AgentConfig  `json:"agents" yaml:"agents"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
}

// Duration lets YAML configs express durations as strings like "30m"
// or "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":9090"
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser string `json:"admin_user" yaml:"admin_user"`
	AdminPass string `json:"admin_pass" yaml:"admin_pass"` // bcrypt hash
}

// StoreConfig controls persistence.
type StoreConfig struct {
	Path string `json:"path" yaml:"path"` // SQLite database file
}

// ScoringConfig tunes the auto-assignment scorer. Zero weights fall
// back to the stock defaults; an empty keyword table keeps the stock
// role keywords.
type ScoringConfig struct {
	LoadPenalty          float64             `json:"load_penalty" yaml:"load_penalty"`
	SpecializationWeight float64             `json:"specialization_weight" yaml:"specialization_weight"`
	SpeedBonus           float64             `json:"speed_bonus" yaml:"speed_bonus"`
	UrgencyBonus         float64             `json:"urgency_bonus" yaml:"urgency_bonus"`
	FastAgentThreshold   Duration            `json:"fast_agent_threshold" yaml:"fast_agent_threshold"`
	CompletionWindow     Duration            `json:"completion_window" yaml:"completion_window"`
	Keywords             map[string][]string `json:"keywords,omitempty" yaml:"keywords"`
}

// DispatchConfig bounds the post-commit delivery attempt.
type DispatchConfig struct {
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// HubConfig controls the event broadcast hub.
type HubConfig struct {
	PingInterval Duration `json:"ping_interval" yaml:"ping_interval"`
}

// AgentConfig seeds one agent row at startup.
type AgentConfig struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Role      string `json:"role" yaml:"role"`
	Approver  bool   `json:"approver,omitempty" yaml:"approver"`
	Model     string `json:"model,omitempty" yaml:"model"`
	SessionID string `json:"session_id,omitempty" yaml:"session_id"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9090",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
		},
		Store: StoreConfig{
			Path: "./data/overseer.db",
		},
		Scoring: ScoringConfig{
			LoadPenalty:          2.0,
			SpecializationWeight: 1.5,
			SpeedBonus:           1.0,
			UrgencyBonus:         3.0,
			FastAgentThreshold:   Duration(30 * time.Minute),
			CompletionWindow:     Duration(24 * time.Hour),
		},
		Dispatch: DispatchConfig{
			Timeout: Duration(5 * time.Second),
		},
		Hub: HubConfig{
			PingInterval: Duration(30 * time.Second),
		},
		LogLevel: "info",
		Agents: []AgentConfig{
			{
				ID:       "lead",
				Name:     "Lead",
				Role:     "orchestrator",
				Approver: true,
			},
		},
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
