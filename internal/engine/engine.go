// Package engine drives the external inference runtimes that execute a chat
// model. Backends stream generated text one token at a time and keep the
// transcript of the current chat so later turns see earlier ones.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TokenFunc receives each generated token in order. Returning true ends the
// current Generate call early.
type TokenFunc func(token string) (stop bool)

// Engine is the contract every inference backend satisfies.
//
// StartChat and EndChat bracket a chat session. Between them each Generate
// call sends the accumulated transcript plus the new text. Outside a chat
// Generate is stateless.
type Engine interface {
	StartChat(ctx context.Context) error
	Generate(ctx context.Context, text string, cfg GenerationConfig, onToken TokenFunc) (Stats, error)
	EndChat() error
	Close() error
}

// GenerationConfig carries per-call sampling settings. Zero values fall back
// to the defaults the engine was loaded with.
type GenerationConfig struct {
	MaxNewTokens  int
	Temperature   float64
	TopK          int
	TopP          float64
	RepeatPenalty float64
	Seed          int64
	Stop          []string
}

// DefaultMaxNewTokens is the generation limit when neither the caller nor the
// load defaults name one.
const DefaultMaxNewTokens = 100

func (c GenerationConfig) withDefaults(d GenerationConfig) GenerationConfig {
	if c.MaxNewTokens <= 0 {
		c.MaxNewTokens = d.MaxNewTokens
	}
	if c.MaxNewTokens <= 0 {
		c.MaxNewTokens = DefaultMaxNewTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = d.Temperature
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.TopP <= 0 {
		c.TopP = d.TopP
	}
	if c.RepeatPenalty <= 0 {
		c.RepeatPenalty = d.RepeatPenalty
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	c.Stop = mergeStop(d.Stop, c.Stop)
	return c
}

func mergeStop(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, s := range append(append([]string(nil), base...), extra...) {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

type Stats struct {
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
	// Stopped is set when the token callback ended generation.
	Stopped bool
}

func (s *Stats) finish(start time.Time) {
	s.Duration = time.Since(start)
	if s.Duration.Seconds() > 0 {
		s.TPS = float64(s.TokensGenerated) / s.Duration.Seconds()
	}
}

// Device selects the accelerator a backend should run on.
type Device string

const (
	DeviceCPU  Device = "CPU"
	DeviceGPU  Device = "GPU"
	DeviceNPU  Device = "NPU"
	DeviceAuto Device = "AUTO"
)

// ParseDevice accepts a case-insensitive selector. Empty means CPU.
func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToUpper(strings.TrimSpace(s))); d {
	case "":
		return DeviceCPU, nil
	case DeviceCPU, DeviceGPU, DeviceNPU, DeviceAuto:
		return d, nil
	default:
		return "", fmt.Errorf("%w: unknown device %q (want CPU, GPU, NPU or AUTO)", ErrDeviceUnavailable, s)
	}
}
