// Package config defines the driftwhale configuration file and its loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// Config is the root of ~/.driftwhale/config.json.
type Config struct {
	Provider ProviderConfig `json:"provider"`
	Memory   MemoryConfig   `json:"memory"`
	Agent    AgentConfig    `json:"agent"`
}

// ProviderConfig selects the LLM backend.
type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	APIBase string `json:"apiBase,omitempty"`
	Model   string `json:"model"`
	// UtilityModel handles summarization, extraction and consolidation.
	// Empty means use Model.
	UtilityModel string `json:"utilityModel,omitempty"`
}

// MemoryConfig tunes the context window and consolidation machinery.
type MemoryConfig struct {
	MaxTokens          int     `json:"maxTokens"`
	TrimThreshold      float64 `json:"trimThreshold"`
	SummarizeThreshold float64 `json:"summarizeThreshold"`
	RecentKeep         int     `json:"recentKeep"`
	BrainMaxChars      int     `json:"brainMaxChars"`
	L1Batch            int     `json:"l1Batch"`
	L2Batch            int     `json:"l2Batch"`
	L3Batch            int     `json:"l3Batch"`
	KeepRecentSessions int     `json:"keepRecentSessions"`
	MinUserTurns       int     `json:"minUserTurns"`
	// SessionTimeoutMinutes: idle time after which the sweeper closes a
	// session and runs its boundary.
	SessionTimeoutMinutes int `json:"sessionTimeoutMinutes"`
	// SweepSchedule is a cron expression for the background sweep.
	SweepSchedule string `json:"sweepSchedule"`
}

// AgentConfig names the default agent and the workspace directory.
type AgentConfig struct {
	Name      string `json:"name"`
	Workspace string `json:"workspace,omitempty"`
}

// UtilityModel returns the model used for memory maintenance calls.
func (c *Config) UtilityModel() string {
	if c.Provider.UtilityModel != "" {
		return c.Provider.UtilityModel
	}
	return c.Provider.Model
}

// Workspace returns the configured workspace or the default under the home
// directory.
func (c *Config) Workspace() string {
	if c.Agent.Workspace != "" {
		return c.Agent.Workspace
	}
	return filepath.Join(DataDir(), "workspace")
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderConfig{
			Model: "gpt-4.1-mini",
		},
		Memory: MemoryConfig{
			MaxTokens:             8000,
			TrimThreshold:         0.70,
			SummarizeThreshold:    0.90,
			RecentKeep:            4,
			BrainMaxChars:         6000,
			L1Batch:               5,
			L2Batch:               5,
			L3Batch:               10,
			KeepRecentSessions:    5,
			MinUserTurns:          3,
			SessionTimeoutMinutes: 30,
			SweepSchedule:         "*/10 * * * *",
		},
		Agent: AgentConfig{Name: "main"},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// DataDir returns the driftwhale data directory: ~/.driftwhale.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".driftwhale"
	}
	return filepath.Join(home, ".driftwhale")
}

// Load reads and parses the config file at path. If path is empty,
// ConfigPath() is used. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes cfg to path as indented JSON. If path is empty, ConfigPath()
// is used.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
