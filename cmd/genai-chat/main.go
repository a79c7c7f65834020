package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/genai-chat/internal/chat"
	"github.com/samcharles93/genai-chat/internal/config"
	"github.com/samcharles93/genai-chat/internal/logger"
	"github.com/samcharles93/genai-chat/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "genai-chat",
		Usage:   "Chat with on-device language models",
		Version: version.String(),
		Flags:   loggingFlags(),
		Before:  setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			chatCmd(),
			npuCmd(),
			serveCmd(),
			modelsCmd(),
			dialectsCmd(),
			versionCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		// A second signal kills the process.
		<-ctx.Done()
		stop()
	}()

	if err := app.Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config file and installs the logger every command reads
// from its context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, used, err := config.Resolve(configPath)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	fileCfg = cfg

	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	level := logLevel
	if debug {
		level = "debug"
	}
	log, err := logger.Setup(os.Stderr, logger.Options{
		Level:   level,
		Format:  logFormat,
		NoColor: !chat.IsTerminal(os.Stderr),
	})
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	if used != "" {
		log.Debug("config loaded", "path", used)
	}
	return logger.WithContext(ctx, log), nil
}
