package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/genai-chat/internal/chat"
	"github.com/samcharles93/genai-chat/internal/config"
)

const (
	envModelsDir = "GENAI_CHAT_MODELS_DIR"
	envServerURL = "GENAI_CHAT_SERVER_URL"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	debug      bool

	// loaded in the root Before hook
	fileCfg config.Config

	dialectName   string
	botName       string
	exitPhrase    string
	streamMode    string
	hideReasoning bool
	noStatus      bool
	historyFile   string

	backendName   string
	serverURL     string
	cacheDir      string
	contextSize   int64
	threads       int64
	gpuLayers     int64
	temperature   float64
	topK          int64
	topP          float64
	repeatPenalty float64
	seed          int64

	modelsDir string
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file (.yaml, .yml, .toml or .json)",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "warn",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func conversationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "dialect",
			Usage:       "prompt dialect (llama2, llama3, chatml, mistral, gemma, auto)",
			Value:       "auto",
			Destination: &dialectName,
		},
		&cli.StringFlag{
			Name:        "bot-name",
			Usage:       "bot name used in the llama2 system prompt",
			Value:       "Bot",
			Destination: &botName,
		},
		&cli.StringFlag{
			Name:        "exit-phrase",
			Usage:       "line that ends the chat (exact match, empty disables)",
			Destination: &exitPhrase,
		},
		&cli.StringFlag{
			Name:        "stream-mode",
			Usage:       "token output mode (instant, typewriter, quiet)",
			Value:       string(chat.StreamInstant),
			Destination: &streamMode,
		},
		&cli.BoolFlag{
			Name:        "hide-reasoning",
			Usage:       "do not print <think> blocks",
			Destination: &hideReasoning,
		},
		&cli.BoolFlag{
			Name:        "no-status",
			Usage:       "do not print STATE lines",
			Destination: &noStatus,
		},
		&cli.StringFlag{
			Name:        "history-file",
			Usage:       "readline history file for interactive sessions",
			Destination: &historyFile,
		},
	}
}

func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "inference backend (llamacpp, server)",
			Destination: &backendName,
		},
		&cli.StringFlag{
			Name:        "server-url",
			Usage:       "llama.cpp server base URL for the server backend",
			Sources:     cli.EnvVars(envServerURL),
			Destination: &serverURL,
		},
		&cli.Int64Flag{
			Name:        "context-size",
			Aliases:     []string{"ctx"},
			Usage:       "context length in tokens (0 uses the backend default)",
			Destination: &contextSize,
		},
		&cli.Int64Flag{
			Name:        "threads",
			Usage:       "CPU threads (0 uses the backend default)",
			Destination: &threads,
		},
		&cli.Int64Flag{
			Name:        "gpu-layers",
			Usage:       "layers to offload on GPU/AUTO devices (0 offloads all)",
			Destination: &gpuLayers,
		},
		&cli.Float64Flag{
			Name:        "temp",
			Aliases:     []string{"temperature"},
			Usage:       "sampling temperature",
			Destination: &temperature,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Usage:       "top-k sampling",
			Destination: &topK,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Usage:       "top-p sampling",
			Destination: &topP,
		},
		&cli.Float64Flag{
			Name:        "repeat-penalty",
			Usage:       "repetition penalty",
			Destination: &repeatPenalty,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling seed (0 lets the backend choose)",
			Destination: &seed,
		},
	}
}

// applyConversationConfig copies config file values into flag variables for
// every flag that was not set on the command line.
func applyConversationConfig(c *cli.Command, cfg config.Config) {
	if cfg.Dialect != "" && !c.IsSet("dialect") {
		dialectName = cfg.Dialect
	}
	if cfg.BotName != "" && !c.IsSet("bot-name") {
		botName = cfg.BotName
	}
	if cfg.ExitPhrase != "" && !c.IsSet("exit-phrase") {
		exitPhrase = cfg.ExitPhrase
	}
	if cfg.StreamMode != "" && !c.IsSet("stream-mode") {
		streamMode = cfg.StreamMode
	}
	if cfg.HideReasoning != nil && !c.IsSet("hide-reasoning") {
		hideReasoning = *cfg.HideReasoning
	}
	if cfg.StatusLines != nil && !c.IsSet("no-status") {
		noStatus = !*cfg.StatusLines
	}
	if cfg.HistoryFile != "" && !c.IsSet("history-file") {
		historyFile = cfg.HistoryFile
	}
}

// applyEngineConfig is applyConversationConfig for the engine flags.
func applyEngineConfig(c *cli.Command, cfg config.Config) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.ServerURL != "" && !c.IsSet("server-url") {
		serverURL = cfg.ServerURL
	}
	if cfg.ContextSize != nil && !c.IsSet("context-size") {
		contextSize = int64(*cfg.ContextSize)
	}
	if cfg.Threads != nil && !c.IsSet("threads") {
		threads = int64(*cfg.Threads)
	}
	if cfg.GPULayers != nil && !c.IsSet("gpu-layers") {
		gpuLayers = int64(*cfg.GPULayers)
	}
	if cfg.Temperature != nil && !c.IsSet("temp") {
		temperature = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		topK = int64(*cfg.TopK)
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		topP = *cfg.TopP
	}
	if cfg.RepeatPenalty != nil && !c.IsSet("repeat-penalty") {
		repeatPenalty = *cfg.RepeatPenalty
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
}
