package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/genai-chat/internal/config"
	"github.com/samcharles93/genai-chat/internal/engine"
	"github.com/samcharles93/genai-chat/internal/prompt"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func unsetServerURL(t *testing.T) {
	t.Helper()
	t.Setenv(envServerURL, "")
	_ = os.Unsetenv(envServerURL)
}

// runWithFlags parses args against the chat flag set and calls fn from the
// command action, where IsSet reflects the parsed arguments.
func runWithFlags(t *testing.T, args []string, fn func(*cli.Command)) {
	t.Helper()
	cmd := &cli.Command{
		Name:  "t",
		Flags: append(conversationFlags(), engineFlags()...),
		Action: func(_ context.Context, c *cli.Command) error {
			fn(c)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"t"}, args...)); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestConfigFillsUnsetFlagsOnly(t *testing.T) {
	unsetServerURL(t)
	cfg := config.Config{
		Dialect:     "chatml",
		BotName:     "Ada",
		ExitPhrase:  "bye",
		StatusLines: boolPtr(false),
		Backend:     "server",
		ServerURL:   "http://cfg:8080",
		TopK:        intPtr(20),
		Temperature: floatPtr(0.3),
	}

	runWithFlags(t, []string{"--dialect", "llama2", "--temp", "0.9"}, func(c *cli.Command) {
		applyConversationConfig(c, cfg)
		applyEngineConfig(c, cfg)
	})

	if dialectName != "llama2" {
		t.Fatalf("dialect: got %q want llama2", dialectName)
	}
	if botName != "Ada" || exitPhrase != "bye" || !noStatus {
		t.Fatalf("conversation config not applied: bot=%q exit=%q noStatus=%v", botName, exitPhrase, noStatus)
	}
	if backendName != "server" || serverURL != "http://cfg:8080" || topK != 20 {
		t.Fatalf("engine config not applied: backend=%q url=%q topK=%d", backendName, serverURL, topK)
	}
	if temperature != 0.9 {
		t.Fatalf("temp: got %v want 0.9", temperature)
	}
}

func TestEnvServerURLBeatsConfig(t *testing.T) {
	t.Setenv(envServerURL, "http://env:9000")

	runWithFlags(t, nil, func(c *cli.Command) {
		applyEngineConfig(c, config.Config{ServerURL: "http://cfg:8080"})
	})
	if serverURL != "http://env:9000" {
		t.Fatalf("got %q want env value", serverURL)
	}
}

func TestApplySetEngineFlagsKeepsGenieValues(t *testing.T) {
	unsetServerURL(t)
	spec := engine.LoadSpec{
		ContextSize: 1024,
		Threads:     3,
		Defaults:    engine.GenerationConfig{Temperature: 0.8, TopK: 40},
	}

	runWithFlags(t, []string{"--top-k", "5"}, func(c *cli.Command) {
		applySetEngineFlags(c, &spec)
	})
	if spec.Defaults.TopK != 5 {
		t.Fatalf("top-k: got %d want 5", spec.Defaults.TopK)
	}
	if spec.ContextSize != 1024 || spec.Threads != 3 || spec.Defaults.Temperature != 0.8 {
		t.Fatalf("unset flags overwrote genie values: %+v", spec)
	}
}

func TestResolveDialectFillsTranscriptSettings(t *testing.T) {
	dialectName, botName = "auto", "Bot"
	t.Cleanup(func() { dialectName, botName = "", "" })

	spec := engine.LoadSpec{ModelPath: "/models/Llama-2-7b-chat.gguf"}
	f, source, err := resolveDialect(&spec)
	if err != nil {
		t.Fatalf("resolveDialect: %v", err)
	}
	if f.Dialect() != prompt.Llama2 || source != "model-name" {
		t.Fatalf("got %v from %s", f.Dialect(), source)
	}
	tpl := prompt.TemplateFor(prompt.Llama2)
	if spec.ReplySuffix != tpl.ReplySuffix || len(spec.Stop) != len(tpl.Stop) {
		t.Fatalf("transcript settings: %+v", spec)
	}

	dialectName = "nonsense"
	if _, _, err := resolveDialect(&engine.LoadSpec{}); err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
}

func TestWelcomeText(t *testing.T) {
	t.Parallel()

	got := welcomeText("Ada", "exit")
	if !strings.Contains(got, "Welcome to Chat with Ada") || !strings.Contains(got, "type `exit` to terminate") {
		t.Fatalf("unexpected welcome: %q", got)
	}
	if got := welcomeText("Ada", ""); !strings.Contains(got, "Ctrl-D") {
		t.Fatalf("unexpected welcome without exit phrase: %q", got)
	}
}

func TestDialectListing(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	listDialects(&out)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(prompt.Dialects()) {
		t.Fatalf("got %d lines want %d:\n%s", len(lines), len(prompt.Dialects()), out.String())
	}
	if !strings.Contains(out.String(), "(default)") || !strings.Contains(out.String(), "uses --bot-name") {
		t.Fatalf("missing markers:\n%s", out.String())
	}

	out.Reset()
	showDialect(&out, prompt.Llama2, "Ada")
	if !strings.Contains(out.String(), "Your name is Ada") || !strings.Contains(out.String(), "--- later turns ---") {
		t.Fatalf("unexpected example:\n%s", out.String())
	}
}
