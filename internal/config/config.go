// Package config reads the genai-chat configuration file. Values in the file
// are defaults; command-line flags that were set explicitly win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config mirrors the command-line flags. Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`

	Backend     string `json:"backend" yaml:"backend" toml:"backend"`
	ServerURL   string `json:"server_url" yaml:"server_url" toml:"server_url"`
	ContextSize *int   `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads     *int   `json:"threads" yaml:"threads" toml:"threads"`
	GPULayers   *int   `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`

	// Sampling defaults
	MaxNewTokens  *int     `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens"`
	Temperature   *float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopK          *int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP          *float64 `json:"top_p" yaml:"top_p" toml:"top_p"`
	RepeatPenalty *float64 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	Seed          *int64   `json:"seed" yaml:"seed" toml:"seed"`

	// Conversation
	Dialect       string `json:"dialect" yaml:"dialect" toml:"dialect"`
	BotName       string `json:"bot_name" yaml:"bot_name" toml:"bot_name"`
	ExitPhrase    string `json:"exit_phrase" yaml:"exit_phrase" toml:"exit_phrase"`
	HideReasoning *bool  `json:"hide_reasoning" yaml:"hide_reasoning" toml:"hide_reasoning"`
	StatusLines   *bool  `json:"status_lines" yaml:"status_lines" toml:"status_lines"`
	HistoryFile   string `json:"history_file" yaml:"history_file" toml:"history_file"`

	// Output
	StreamMode string `json:"stream_mode" yaml:"stream_mode" toml:"stream_mode"`
	LogLevel   string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat  string `json:"log_format" yaml:"log_format" toml:"log_format"`

	// Server
	ServerAddress string `json:"server_address" yaml:"server_address" toml:"server_address"`
	SessionTTL    string `json:"session_ttl" yaml:"session_ttl" toml:"session_ttl"`
	MaxSessions   *int   `json:"max_sessions" yaml:"max_sessions" toml:"max_sessions"`
}

// SessionIdleTTL parses SessionTTL. Zero means unset.
func (c Config) SessionIdleTTL() (time.Duration, error) {
	if strings.TrimSpace(c.SessionTTL) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.SessionTTL))
	if err != nil {
		return 0, fmt.Errorf("session_ttl: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("session_ttl: must not be negative")
	}
	return d, nil
}

// DefaultPath is <user config dir>/genai-chat/config.yaml, or "" when the
// user config dir is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "genai-chat", "config.yaml")
}

// Load reads the file at path, choosing the decoder by extension:
// .yaml/.yml, .toml or .json.
func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) == "" {
		return cfg, errors.New("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension %q (want .yaml, .yml, .toml or .json)", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if _, err := cfg.SessionIdleTTL(); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve loads an explicit path, which must exist, or else the default
// path, which may be missing. It returns the path actually read ("" if none).
func Resolve(explicit string) (Config, string, error) {
	if strings.TrimSpace(explicit) != "" {
		cfg, err := Load(explicit)
		if err != nil {
			return Config{}, "", fmt.Errorf("load config: %w", err)
		}
		return cfg, explicit, nil
	}
	path := DefaultPath()
	if path == "" {
		return Config{}, "", nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, "", nil
	}
	if err != nil {
		return Config{}, "", fmt.Errorf("load config: %w", err)
	}
	return cfg, path, nil
}
