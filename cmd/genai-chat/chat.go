package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/genai-chat/internal/chat"
	"github.com/samcharles93/genai-chat/internal/engine"
	"github.com/samcharles93/genai-chat/internal/genie"
	"github.com/samcharles93/genai-chat/internal/logger"
	"github.com/samcharles93/genai-chat/internal/metrics"
	"github.com/samcharles93/genai-chat/internal/prompt"
)

func chatCmd() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Chat with a model (default device CPU)",
		ArgsUsage: "<model_dir> [device] [max_new_tokens]",
		Flags: append(append(conversationFlags(), engineFlags()...),
			&cli.StringFlag{
				Name:        "cache-dir",
				Usage:       "prompt cache directory",
				Value:       defaultCacheDir,
				Destination: &cacheDir,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := parsePositional(cmd.Args().Slice(), 3, string(engine.DeviceCPU))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v\nusage: genai-chat chat %s", err, cmd.ArgsUsage), 1)
			}
			applyConversationConfig(cmd, fileCfg)
			applyEngineConfig(cmd, fileCfg)

			maxNew := args.MaxNewTokens
			if !args.MaxSet && fileCfg.MaxNewTokens != nil && *fileCfg.MaxNewTokens > 0 {
				maxNew = *fileCfg.MaxNewTokens
			}
			spec := engine.LoadSpec{
				Backend:   backendName,
				ModelPath: args.ModelDir,
				Device:    args.Device,
				CacheDir:  cacheDir,
			}
			applyEngineFlags(&spec)

			return runChat(ctx, chatSession{
				spec:         spec,
				maxNewTokens: maxNew,
				label:        args.ModelDir,
				statusLines:  !noStatus,
			})
		},
	}
}

func npuCmd() *cli.Command {
	return &cli.Command{
		Name:      "npu",
		Usage:     "Chat with a model described by <model_dir>/" + genie.FileName + " (default device NPU)",
		ArgsUsage: "<model_dir> [device]",
		Flags:     append(conversationFlags(), engineFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := parsePositional(cmd.Args().Slice(), 2, string(engine.DeviceNPU))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v\nusage: genai-chat npu %s", err, cmd.ArgsUsage), 1)
			}
			gcfg, err := genie.Load(args.ModelDir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyConversationConfig(cmd, fileCfg)
			if gcfg.PromptFormat() != "" && !cmd.IsSet("dialect") {
				dialectName = gcfg.PromptFormat()
			}

			// Engine flags only override the genie file when given explicitly.
			spec := gcfg.LoadSpec(args.Device)
			if cmd.IsSet("backend") {
				spec.Backend = backendName
			}
			if cmd.IsSet("server-url") {
				spec.ServerURL = serverURL
			}
			applySetEngineFlags(cmd, &spec)

			maxNew := spec.Defaults.MaxNewTokens
			if maxNew <= 0 {
				maxNew = engine.DefaultMaxNewTokens
			}
			statusLines := fileCfg.StatusLines != nil && *fileCfg.StatusLines && !cmd.IsSet("no-status")
			return runChat(ctx, chatSession{
				spec:         spec,
				maxNewTokens: maxNew,
				label:        args.ModelDir,
				statusLines:  statusLines,
			})
		},
	}
}

// applyEngineFlags copies every engine flag value into spec.
func applyEngineFlags(spec *engine.LoadSpec) {
	spec.ServerURL = serverURL
	spec.ContextSize = int(contextSize)
	spec.Threads = int(threads)
	spec.GPULayers = int(gpuLayers)
	spec.Defaults.Temperature = temperature
	spec.Defaults.TopK = int(topK)
	spec.Defaults.TopP = topP
	spec.Defaults.RepeatPenalty = repeatPenalty
	spec.Defaults.Seed = seed
}

// applySetEngineFlags copies only the engine flags given on the command line.
func applySetEngineFlags(cmd *cli.Command, spec *engine.LoadSpec) {
	if cmd.IsSet("context-size") {
		spec.ContextSize = int(contextSize)
	}
	if cmd.IsSet("threads") {
		spec.Threads = int(threads)
	}
	if cmd.IsSet("gpu-layers") {
		spec.GPULayers = int(gpuLayers)
	}
	if cmd.IsSet("temp") {
		spec.Defaults.Temperature = temperature
	}
	if cmd.IsSet("top-k") {
		spec.Defaults.TopK = int(topK)
	}
	if cmd.IsSet("top-p") {
		spec.Defaults.TopP = topP
	}
	if cmd.IsSet("repeat-penalty") {
		spec.Defaults.RepeatPenalty = repeatPenalty
	}
	if cmd.IsSet("seed") {
		spec.Defaults.Seed = seed
	}
}

type chatSession struct {
	spec         engine.LoadSpec
	maxNewTokens int
	label        string
	statusLines  bool
}

// resolveDialect builds the formatter for a session and fills the dialect's
// transcript settings into spec.
func resolveDialect(spec *engine.LoadSpec) (*prompt.Formatter, string, error) {
	d, source, err := modelDialect(dialectName, spec.ModelPath)
	if err != nil {
		return nil, "", err
	}
	tpl := prompt.TemplateFor(d)
	spec.ReplySuffix = tpl.ReplySuffix
	spec.Stop = append(append([]string(nil), tpl.Stop...), spec.Stop...)
	return prompt.New(d, botName), source, nil
}

func welcomeText(bot, exit string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n:::::::: Welcome to Chat with %s ::::::::\n", bot)
	if exit != "" {
		fmt.Fprintf(&b, "At any time during chat, please type `%s` to terminate the conversation.\n\n", exit)
	} else {
		b.WriteString("Press Ctrl-D to terminate the conversation.\n\n")
	}
	return b.String()
}

func runChat(ctx context.Context, s chatSession) error {
	log := logger.FromContext(ctx)

	formatter, source, err := resolveDialect(&s.spec)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	mode, err := chat.ParseStreamMode(streamMode)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	if s.spec.Backend == "" {
		s.spec.Backend = engine.BackendLlamaCpp
	}
	s.spec.Logger = log
	log.Info("loading model",
		"model", s.spec.ModelPath,
		"backend", s.spec.Backend,
		"device", s.spec.Device,
		"dialect", formatter.Dialect().String(),
		"dialect_source", source,
	)

	eng, err := engine.Load(ctx, s.spec)
	metrics.ObserveLoad(s.spec.Backend, err)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Warn("close engine", "error", err)
		}
	}()

	input, interactive, err := chat.NewStdinReader("> ", historyFile)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	defer func() { _ = input.Close() }()

	loop := &chat.Loop{
		Formatter:     formatter,
		Engine:        eng,
		Input:         input,
		Output:        chat.NewStreamWriter(os.Stdout, mode),
		MaxNewTokens:  s.maxNewTokens,
		ExitPhrase:    exitPhrase,
		StatusLines:   s.statusLines,
		ModelLabel:    s.label,
		HideReasoning: hideReasoning,
		Backend:       s.spec.Backend,
		Logger:        log,
	}
	if interactive {
		loop.Welcome = welcomeText(formatter.BotName(), exitPhrase)
	}

	if err := loop.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return nil
		}
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return nil
}
