// Package genie reads the genie_config.json file that sits next to a model
// prepared for the NPU front-end and turns it into an engine load spec.
package genie

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/genai-chat/internal/engine"
)

// FileName is the config file looked up inside a model directory.
const FileName = "genie_config.json"

// OpenError reports a config file that could not be read.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string { return "failed to open Genie config file: " + e.Path }

func (e *OpenError) Unwrap() error { return e.Err }

type Config struct {
	Dialog Dialog `json:"dialog"`

	// dir is the model directory the file was read from.
	dir string
}

type Dialog struct {
	Version      int         `json:"version"`
	Type         string      `json:"type"`
	Context      Context     `json:"context"`
	Sampler      Sampler     `json:"sampler"`
	Engine       Engine      `json:"engine"`
	MaxNumTokens int         `json:"max-num-tokens"`
	StopSequence StopList    `json:"stop-sequence"`
	PromptFormat string      `json:"prompt-format"`
	Tokenizer    *PathConfig `json:"tokenizer,omitempty"`
}

type Context struct {
	Size     int `json:"size"`
	NVocab   int `json:"n-vocab"`
	BOSToken int `json:"bos-token"`
	EOSToken int `json:"eos-token"`
}

type Sampler struct {
	Seed   int64   `json:"seed"`
	Temp   float64 `json:"temp"`
	TopK   int     `json:"top-k"`
	TopP   float64 `json:"top-p"`
	Greedy bool    `json:"greedy"`
}

type Engine struct {
	NThreads int     `json:"n-threads"`
	Backend  Backend `json:"backend"`
	Model    Model   `json:"model"`
}

type Backend struct {
	Type      string `json:"type"`
	ServerURL string `json:"server-url"`
	GPULayers int    `json:"gpu-layers"`
}

type Model struct {
	Type   string        `json:"type"`
	Path   string        `json:"path"`
	Binary *BinaryConfig `json:"binary,omitempty"`
}

type BinaryConfig struct {
	CtxBins []string `json:"ctx-bins"`
}

type PathConfig struct {
	Path string `json:"path"`
}

// StopList accepts either a single string or an array of strings.
type StopList []string

func (s *StopList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = StopList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("stop-sequence: want a string or an array of strings")
	}
	*s = many
	return nil
}

// Load reads <modelDir>/genie_config.json.
func Load(modelDir string) (*Config, error) {
	path := filepath.Join(modelDir, FileName)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.dir = modelDir
	return cfg, nil
}

// Parse decodes a config document.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("decode genie config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	d := c.Dialog
	if d.Context.Size < 0 {
		errs = append(errs, errors.New("dialog.context.size must not be negative"))
	}
	if d.MaxNumTokens < 0 {
		errs = append(errs, errors.New("dialog.max-num-tokens must not be negative"))
	}
	if d.Sampler.Temp < 0 {
		errs = append(errs, errors.New("dialog.sampler.temp must not be negative"))
	}
	if d.Sampler.TopP < 0 || d.Sampler.TopP > 1 {
		errs = append(errs, errors.New("dialog.sampler.top-p must be within [0, 1]"))
	}
	return errors.Join(errs...)
}

// Dir is the directory the config was loaded from.
func (c *Config) Dir() string { return c.dir }

// ModelPath returns the configured model file, relative paths resolved
// against the model directory. It falls back to the directory itself.
func (c *Config) ModelPath() string {
	m := c.Dialog.Engine.Model
	p := strings.TrimSpace(m.Path)
	if p == "" && m.Binary != nil && len(m.Binary.CtxBins) > 0 {
		p = strings.TrimSpace(m.Binary.CtxBins[0])
	}
	if p == "" {
		return c.dir
	}
	if filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// LoadSpec converts the config into an engine load spec rooted at the model
// directory. device is passed through unchanged.
func (c *Config) LoadSpec(device string) engine.LoadSpec {
	d := c.Dialog
	temp, topK := d.Sampler.Temp, d.Sampler.TopK
	if d.Sampler.Greedy {
		temp, topK = 0.01, 1
	}
	return engine.LoadSpec{
		Backend:     d.Engine.Backend.Type,
		ModelPath:   c.ModelPath(),
		Device:      device,
		BaseDir:     c.dir,
		ServerURL:   d.Engine.Backend.ServerURL,
		ContextSize: d.Context.Size,
		Threads:     d.Engine.NThreads,
		GPULayers:   d.Engine.Backend.GPULayers,
		Defaults: engine.GenerationConfig{
			MaxNewTokens: d.MaxNumTokens,
			Temperature:  temp,
			TopK:         topK,
			TopP:         d.Sampler.TopP,
			Seed:         d.Sampler.Seed,
			Stop:         append([]string(nil), d.StopSequence...),
		},
	}
}

// PromptFormat is the configured dialect name, or "" to detect it.
func (c *Config) PromptFormat() string { return strings.TrimSpace(c.Dialog.PromptFormat) }
