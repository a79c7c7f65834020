package prompt

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Dialect identifies the prompt convention a chat-tuned model family expects.
type Dialect int

const (
	Llama2 Dialect = iota + 1
	Llama3
	ChatML
	Mistral
	Gemma
)

// DefaultDialect is used when nothing better is known about the model.
const DefaultDialect = Llama3

var dialectNames = map[Dialect]string{
	Llama2:  "llama2",
	Llama3:  "llama3",
	ChatML:  "chatml",
	Mistral: "mistral",
	Gemma:   "gemma",
}

var dialectAliases = map[string]Dialect{
	"llama2":          Llama2,
	"llama-2":         Llama2,
	"llama_2":         Llama2,
	"llama2-chat":     Llama2,
	"llama3":          Llama3,
	"llama-3":         Llama3,
	"llama_3":         Llama3,
	"llama3.1":        Llama3,
	"llama3.2":        Llama3,
	"llama3-instruct": Llama3,
	"chatml":          ChatML,
	"qwen":            ChatML,
	"qwen2":           ChatML,
	"qwen2.5":         ChatML,
	"qwen3":           ChatML,
	"smollm":          ChatML,
	"mistral":         Mistral,
	"mixtral":         Mistral,
	"gemma":           Gemma,
	"gemma2":          Gemma,
	"gemma3":          Gemma,
}

func (d Dialect) String() string {
	if name, ok := dialectNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dialect(%d)", int(d))
}

// Valid reports whether d names a dialect with a template.
func (d Dialect) Valid() bool {
	_, ok := templates[d]
	return ok
}

// Dialects returns every supported dialect in declaration order.
func Dialects() []Dialect {
	return []Dialect{Llama2, Llama3, ChatML, Mistral, Gemma}
}

// ParseDialect resolves a dialect name or alias (case-insensitive).
func ParseDialect(name string) (Dialect, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if d, ok := dialectAliases[key]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("unknown prompt dialect %q (known: %s)", name, knownNames())
}

// DetectDialect guesses the dialect from a model path or model name such as
// "Llama-3.2-3B-Instruct" or "llama3.2:3b". ok=false means no family matched.
func DetectDialect(model string) (Dialect, bool) {
	name := strings.ToLower(filepath.Base(filepath.Clean(strings.TrimSpace(model))))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return 0, false
	}
	switch {
	case containsAny(name, "llama-3", "llama3", "llama_3"):
		return Llama3, true
	case containsAny(name, "llama-2", "llama2", "llama_2"):
		return Llama2, true
	case containsAny(name, "qwen", "chatml", "smollm"):
		return ChatML, true
	case containsAny(name, "mistral", "mixtral"):
		return Mistral, true
	case strings.Contains(name, "gemma"):
		return Gemma, true
	default:
		return 0, false
	}
}

// DetectFromTemplate recognises the dialect of a model's embedded chat
// template (the tokenizer.chat_template metadata of a GGUF file) by its
// control markers.
func DetectFromTemplate(tpl string) (Dialect, bool) {
	switch {
	case strings.TrimSpace(tpl) == "":
		return 0, false
	case strings.Contains(tpl, "<|start_header_id|>"):
		return Llama3, true
	case strings.Contains(tpl, "<|im_start|>"):
		return ChatML, true
	case strings.Contains(tpl, "<start_of_turn>"):
		return Gemma, true
	case strings.Contains(tpl, "<<SYS>>"):
		return Llama2, true
	case strings.Contains(tpl, "[INST]"):
		return Mistral, true
	default:
		return 0, false
	}
}

// ResolveDialect picks the dialect for a session: an explicit name wins, then
// detection from the model path, then DefaultDialect.
func ResolveDialect(name, modelPath string) (Dialect, string, error) {
	if strings.TrimSpace(name) != "" && !strings.EqualFold(strings.TrimSpace(name), "auto") {
		d, err := ParseDialect(name)
		if err != nil {
			return 0, "", err
		}
		return d, "flag", nil
	}
	if d, ok := DetectDialect(modelPath); ok {
		return d, "model-name", nil
	}
	return DefaultDialect, "default", nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func knownNames() string {
	names := make([]string, 0, len(dialectNames))
	for _, d := range Dialects() {
		names = append(names, d.String())
	}
	return strings.Join(names, ", ")
}
