package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/genai-chat/internal/gguf"
	"github.com/samcharles93/genai-chat/internal/prompt"
)

// modelDialect extends prompt.ResolveDialect with the model's own metadata:
// when neither the flag nor the path names a family, the embedded chat
// template and then general.name are consulted before falling back.
func modelDialect(name, modelPath string) (prompt.Dialect, string, error) {
	d, source, err := prompt.ResolveDialect(name, modelPath)
	if err != nil || source != "default" {
		return d, source, err
	}
	if md, ok := readModelMetadata(modelPath); ok {
		if found, ok := prompt.DetectFromTemplate(md.ChatTemplate()); ok {
			return found, "chat-template", nil
		}
		for _, s := range []string{md.Name(), md.Architecture()} {
			if found, ok := prompt.DetectDialect(strings.ReplaceAll(s, " ", "-")); ok {
				return found, "gguf-name", nil
			}
		}
	}
	return d, source, nil
}

// readModelMetadata reads the GGUF header of path, or of the first *.gguf
// inside it when path is a directory.
func readModelMetadata(path string) (gguf.Metadata, bool) {
	file := ggufFile(path)
	if file == "" {
		return gguf.Metadata{}, false
	}
	md, err := gguf.ReadFile(file)
	if err != nil {
		return gguf.Metadata{}, false
	}
	return md, true
}

func ggufFile(path string) string {
	st, err := os.Stat(path)
	if err != nil {
		return ""
	}
	if !st.IsDir() {
		if isGGUF(path) {
			return path
		}
		return ""
	}
	ents, err := os.ReadDir(path)
	if err != nil {
		return ""
	}
	// ReadDir sorts by name.
	for _, e := range ents {
		if !e.IsDir() && isGGUF(e.Name()) {
			return filepath.Join(path, e.Name())
		}
	}
	return ""
}
