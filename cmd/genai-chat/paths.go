package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/samcharles93/genai-chat/internal/engine"
	"github.com/samcharles93/genai-chat/internal/genie"
)

const defaultCacheDir = "ov_cache"

type positional struct {
	ModelDir     string
	Device       string
	MaxNewTokens int
	// MaxSet reports whether max_new_tokens was given.
	MaxSet bool
}

// parsePositional reads <model_dir> [device] [max_new_tokens]. maxArgs caps
// the accepted count; defaultDevice fills a missing device.
func parsePositional(args []string, maxArgs int, defaultDevice string) (positional, error) {
	var p positional
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return p, errors.New("missing <model_dir>")
	}
	if len(args) > maxArgs {
		return p, fmt.Errorf("too many arguments: %q", args[maxArgs:])
	}
	p.ModelDir = filepath.Clean(args[0])
	p.Device = defaultDevice
	if len(args) > 1 && strings.TrimSpace(args[1]) != "" {
		p.Device = args[1]
	}
	if _, err := engine.ParseDevice(p.Device); err != nil {
		return p, err
	}
	p.MaxNewTokens = engine.DefaultMaxNewTokens
	if len(args) > 2 {
		n, err := strconv.Atoi(strings.TrimSpace(args[2]))
		if err != nil || n <= 0 {
			return p, fmt.Errorf("max_new_tokens must be a positive integer, got %q", args[2])
		}
		p.MaxNewTokens = n
		p.MaxSet = true
	}
	return p, nil
}

type modelEntry struct {
	Path  string
	Size  int64
	Genie bool
}

// discoverModels lists *.gguf files and model directories (a directory with a
// genie_config.json or at least one *.gguf) directly under dir.
func discoverModels(dir string) ([]modelEntry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("models directory is empty")
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	models := make([]modelEntry, 0, len(ents))
	for _, e := range ents {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() {
			if !isGGUF(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			models = append(models, modelEntry{Path: path, Size: info.Size()})
			continue
		}
		m, ok := inspectModelDir(path)
		if ok {
			models = append(models, m)
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Path < models[j].Path })
	return models, nil
}

func inspectModelDir(path string) (modelEntry, bool) {
	m := modelEntry{Path: path}
	if _, err := os.Stat(filepath.Join(path, genie.FileName)); err == nil {
		m.Genie = true
	}
	ents, err := os.ReadDir(path)
	if err != nil {
		return m, m.Genie
	}
	found := false
	for _, e := range ents {
		if e.IsDir() || !isGGUF(e.Name()) {
			continue
		}
		found = true
		if info, err := e.Info(); err == nil {
			m.Size += info.Size()
		}
	}
	return m, found || m.Genie
}

func isGGUF(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".gguf")
}

func formatModelSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
