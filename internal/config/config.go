// Package config loads server settings from an optional YAML file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"wellness-chatbot/internal/core"
	"wellness-chatbot/internal/llm"
	"wellness-chatbot/internal/medline"
)

// ErrMissingAPIKey is returned when no OpenAI credential is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY must be set")

// Config holds every runtime setting.  The API key is only read from the
// environment.
type Config struct {
	Port        string        `yaml:"port"`
	DatabaseURL string        `yaml:"database_url"`
	OpenAI      OpenAIConfig  `yaml:"openai"`
	Medline     MedlineConfig `yaml:"medline"`
	Session     SessionConfig `yaml:"session"`
	Suggestions struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"suggestions"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type MedlineConfig struct {
	Enabled         *bool         `yaml:"enabled"`
	Endpoint        string        `yaml:"endpoint"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxSummaryRunes *int          `yaml:"max_summary_runes"`
}

// SessionConfig controls how long an untouched session survives.
type SessionConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LookupEnabled reports whether MedlinePlus enrichment is on.
func (m MedlineConfig) LookupEnabled() bool { return m.Enabled == nil || *m.Enabled }

// Load reads path (if non-empty), applies environment overrides from getenv
// and fills defaults.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAMLStrict(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg, getenv)
	applyDefaults(cfg)
	if cfg.OpenAI.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Session.IdleTTL < 0 || cfg.Session.SweepInterval < 0 {
		return nil, fmt.Errorf("session durations must not be negative")
	}
	return cfg, nil
}

func decodeYAMLStrict(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg.OpenAI.APIKey = getenv("OPENAI_API_KEY")
	if v := getenv("OPENAI_MODEL_CHAT"); v != "" {
		cfg.OpenAI.Model = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = llm.DefaultModel
	}
	if cfg.Medline.Endpoint == "" {
		cfg.Medline.Endpoint = medline.DefaultEndpoint
	}
	if cfg.Medline.MaxSummaryRunes == nil {
		n := medline.DefaultMaxSummaryRunes
		cfg.Medline.MaxSummaryRunes = &n
	}
	if cfg.Session.IdleTTL == 0 {
		cfg.Session.IdleTTL = core.DefaultIdleTTL
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = core.DefaultSweepInterval
	}
	if cfg.Suggestions.BaseURL == "" {
		cfg.Suggestions.BaseURL = core.DefaultLinkBase
	}
}

// NewChatService wires the OpenAI client, the MedlinePlus client and the
// suggestion rules described by cfg.
func NewChatService(cfg *Config) *core.ChatService {
	client := llm.NewOpenAIClient(llm.Options{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
	})
	var lookup medline.Looker
	if cfg.Medline.LookupEnabled() {
		opts := medline.Options{
			Endpoint: cfg.Medline.Endpoint,
			Timeout:  cfg.Medline.Timeout,
		}
		if cfg.Medline.MaxSummaryRunes != nil {
			opts.MaxSummaryRunes = *cfg.Medline.MaxSummaryRunes
		}
		lookup = medline.NewClient(opts)
	}
	chat := core.NewChatService(client, lookup)
	chat.Rules = core.DefaultRules(cfg.Suggestions.BaseURL)
	return chat
}
