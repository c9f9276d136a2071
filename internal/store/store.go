package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderConfig selects and configures the deck provider.
type ProviderConfig struct {
	Name         string `yaml:"name"`
	Username     string `yaml:"username,omitempty"`
	CollectionID string `yaml:"collection_id,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"`
	PasswordEnv  string `yaml:"password_env,omitempty"`
	DecksDir     string `yaml:"decks_dir,omitempty"`
}

// ModelConfig holds reasoning model settings.
type ModelConfig struct {
	BaseURL         string `yaml:"base_url"`
	Name            string `yaml:"name"`
	APIKeyEnv       string `yaml:"api_key_env"`
	ReasoningEffort string `yaml:"reasoning_effort,omitempty"`
	MaxToolRounds   int    `yaml:"max_tool_rounds"`
}

// SessionConfig holds workflow limits.
type SessionConfig struct {
	StepBudget    int `yaml:"step_budget"`
	HistoryWindow int `yaml:"history_window"`
}

// CardsConfig holds card database settings.
type CardsConfig struct {
	ScryfallBaseURL string `yaml:"scryfall_base_url"`
	CachePath       string `yaml:"cache_path"`
}

// Config holds decksmith configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Provider ProviderConfig `yaml:"provider"`
	Model    ModelConfig    `yaml:"model"`
	Session  SessionConfig  `yaml:"session"`
	Cards    CardsConfig    `yaml:"cards"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		Provider: ProviderConfig{
			Name:        "local",
			PasswordEnv: "ARCHIDEKT_PASSWORD",
			DecksDir:    "decks",
		},
		Model: ModelConfig{
			BaseURL:       "https://api.openai.com/v1",
			Name:          "gpt-4.1",
			APIKeyEnv:     "OPENAI_API_KEY",
			MaxToolRounds: 8,
		},
		Session: SessionConfig{
			StepBudget:    25,
			HistoryWindow: 12,
		},
		Cards: CardsConfig{
			ScryfallBaseURL: "https://api.scryfall.com",
			CachePath:       "cards.db",
		},
	}
}

// Store represents a loaded DECKSMITH_HOME.
type Store struct {
	Home   string
	Config Config
}

// Issue represents a health check finding.
type Issue struct {
	Severity string // "warning" or "error"
	Message  string
}

var homeDirs = []string{"sessions", "decks"}

// Home returns the DECKSMITH_HOME path, respecting the DECKSMITH_HOME env var.
func Home() string {
	if h := os.Getenv("DECKSMITH_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".decksmith")
	}
	return filepath.Join(home, ".decksmith")
}

// Init creates the DECKSMITH_HOME directory structure with the given config.
// A zero Config means defaults.
func Init(home string, force bool, cfg ...Config) error {
	if _, err := os.Stat(filepath.Join(home, "config.yaml")); err == nil && !force {
		return fmt.Errorf("DECKSMITH_HOME already exists at %s (use --force to reinitialize)", home)
	}

	dirs := []string{home}
	for _, d := range homeDirs {
		dirs = append(dirs, filepath.Join(home, d))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	c := DefaultConfig()
	if len(cfg) > 0 {
		c = cfg[0]
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	cfgPath := filepath.Join(home, "config.yaml")
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Load reads and validates an existing DECKSMITH_HOME.
// Missing config fields are filled from defaults.
func Load(home string) (*Store, error) {
	cfgPath := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read DECKSMITH_HOME config at %s: %w", cfgPath, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	return &Store{Home: home, Config: cfg}, nil
}

// Validate checks values that would otherwise fail deep inside a session.
func (c Config) Validate() error {
	switch c.Provider.Name {
	case "local", "archidekt":
	default:
		return fmt.Errorf("provider.name must be one of local, archidekt (got %q)", c.Provider.Name)
	}
	if c.Provider.Name == "archidekt" && c.Provider.Username == "" {
		return fmt.Errorf("provider.username is required for archidekt")
	}
	if c.Session.StepBudget < 1 {
		return fmt.Errorf("session.step_budget must be a positive integer")
	}
	if c.Session.HistoryWindow < 1 {
		return fmt.Errorf("session.history_window must be a positive integer")
	}
	if c.Model.MaxToolRounds < 1 {
		return fmt.Errorf("model.max_tool_rounds must be a positive integer")
	}
	return nil
}

// SaveConfig writes the current config to config.yaml.
func (s *Store) SaveConfig() error {
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	cfgPath := filepath.Join(s.Home, "config.yaml")
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

var configKeys = []string{
	"provider.name", "provider.username", "provider.collection_id", "provider.base_url",
	"provider.password_env", "provider.decks_dir",
	"model.base_url", "model.name", "model.api_key_env", "model.reasoning_effort", "model.max_tool_rounds",
	"session.step_budget", "session.history_window",
	"cards.scryfall_base_url", "cards.cache_path",
}

// SetConfigValue sets a config value by dot-path key (e.g. "model.name").
func (s *Store) SetConfigValue(key, value string) error {
	cfg := s.Config
	switch key {
	case "provider.name":
		cfg.Provider.Name = value
	case "provider.username":
		cfg.Provider.Username = value
	case "provider.collection_id":
		cfg.Provider.CollectionID = value
	case "provider.base_url":
		cfg.Provider.BaseURL = value
	case "provider.password_env":
		cfg.Provider.PasswordEnv = value
	case "provider.decks_dir":
		cfg.Provider.DecksDir = value
	case "model.base_url":
		cfg.Model.BaseURL = value
	case "model.name":
		cfg.Model.Name = value
	case "model.api_key_env":
		cfg.Model.APIKeyEnv = value
	case "model.reasoning_effort":
		switch value {
		case "", "minimal", "low", "medium", "high":
		default:
			return fmt.Errorf("model.reasoning_effort must be one of minimal, low, medium, high")
		}
		cfg.Model.ReasoningEffort = value
	case "model.max_tool_rounds":
		n, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		cfg.Model.MaxToolRounds = n
	case "session.step_budget":
		n, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		cfg.Session.StepBudget = n
	case "session.history_window":
		n, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		cfg.Session.HistoryWindow = n
	case "cards.scryfall_base_url":
		cfg.Cards.ScryfallBaseURL = value
	case "cards.cache_path":
		cfg.Cards.CachePath = value
	default:
		return fmt.Errorf("unknown config key: %s\nValid keys: %s", key, strings.Join(configKeys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.Config = cfg
	return s.SaveConfig()
}

func positiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

// Path resolves a path within DECKSMITH_HOME.
func (s *Store) Path(parts ...string) string {
	all := append([]string{s.Home}, parts...)
	return filepath.Join(all...)
}

// Resolve returns p unchanged when absolute, otherwise relative to DECKSMITH_HOME.
func (s *Store) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return s.Path(p)
}

// CheckHealth verifies DECKSMITH_HOME structure integrity.
func CheckHealth(home string) []Issue {
	var issues []Issue

	for _, dir := range homeDirs {
		p := filepath.Join(home, dir)
		info, err := os.Stat(p)
		if err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("missing directory: %s", p)})
		} else if !info.IsDir() {
			issues = append(issues, Issue{"error", fmt.Sprintf("expected directory but found file: %s", p)})
		}
	}

	cfgPath := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("cannot read config.yaml: %v", err)})
		return issues
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("config.yaml is not valid YAML: %v", err)})
		return issues
	}
	if err := cfg.Validate(); err != nil {
		issues = append(issues, Issue{"error", err.Error()})
	}
	if cfg.Model.APIKeyEnv != "" && os.Getenv(cfg.Model.APIKeyEnv) == "" {
		issues = append(issues, Issue{"warning", fmt.Sprintf("%s is not set; suggestion steps will fail", cfg.Model.APIKeyEnv)})
	}

	return issues
}

// CheckSessionIntegrity reports session directories whose checkpoint is
// missing or unreadable.
func CheckSessionIntegrity(home string) []Issue {
	var issues []Issue
	sessionsDir := filepath.Join(home, "sessions")
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		return issues
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sessFile := filepath.Join(sessionsDir, e.Name(), "session.yaml")
		data, err := os.ReadFile(sessFile)
		if err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("session %s: missing session.yaml", e.Name())})
			continue
		}

		var raw struct {
			ID     string `yaml:"id"`
			Status string `yaml:"status"`
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("session %s: invalid YAML: %v", e.Name(), err)})
			continue
		}
		if raw.ID != e.Name() {
			issues = append(issues, Issue{"warning", fmt.Sprintf("session %s: id field is %q", e.Name(), raw.ID)})
		}
		if raw.Status == "running" {
			issues = append(issues, Issue{"warning", fmt.Sprintf("session %s: interrupted mid-step (run 'decksmith session resume %s')", e.Name(), e.Name())})
		}
		if _, err := os.Stat(sessFile + ".tmp"); err == nil {
			issues = append(issues, Issue{"warning", fmt.Sprintf("session %s: leftover partial checkpoint", e.Name())})
		}
	}

	return issues
}

// FixIssues attempts to repair simple issues in DECKSMITH_HOME.
func FixIssues(home string) []string {
	var fixed []string

	for _, dir := range homeDirs {
		p := filepath.Join(home, dir)
		if _, err := os.Stat(p); err != nil {
			if err := os.MkdirAll(p, 0755); err == nil {
				fixed = append(fixed, fmt.Sprintf("recreated missing directory: %s", dir))
			}
		}
	}

	cfgPath := filepath.Join(home, "config.yaml")
	if _, err := os.Stat(cfgPath); err != nil {
		cfg := DefaultConfig()
		data, _ := yaml.Marshal(cfg)
		if os.WriteFile(cfgPath, data, 0644) == nil {
			fixed = append(fixed, "recreated missing config.yaml with defaults")
		}
	}

	matches, _ := filepath.Glob(filepath.Join(home, "sessions", "*", "session.yaml.tmp"))
	for _, m := range matches {
		if os.Remove(m) == nil {
			fixed = append(fixed, fmt.Sprintf("removed partial checkpoint: %s", filepath.Base(filepath.Dir(m))))
		}
	}

	return fixed
}
