package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/genai-chat/internal/api"
	"github.com/samcharles93/genai-chat/internal/engine"
	"github.com/samcharles93/genai-chat/internal/logger"
	"github.com/samcharles93/genai-chat/internal/prompt"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		sessionTTL  time.Duration
		maxSessions int64
	)

	return &cli.Command{
		Name:      "serve",
		Usage:     "Serve chat sessions over HTTP",
		ArgsUsage: "<model_dir> [device]",
		Flags: append(append(conversationFlags(), engineFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8090",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.DurationFlag{
				Name:        "session-ttl",
				Usage:       "idle time before a session is closed (0 keeps sessions until deleted)",
				Value:       30 * time.Minute,
				Destination: &sessionTTL,
			},
			&cli.Int64Flag{
				Name:        "max-sessions",
				Usage:       "live session limit; the least recently used session is closed beyond it (0 is unlimited)",
				Value:       8,
				Destination: &maxSessions,
			},
			&cli.StringFlag{
				Name:        "cache-dir",
				Usage:       "prompt cache directory",
				Value:       defaultCacheDir,
				Destination: &cacheDir,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			args, err := parsePositional(cmd.Args().Slice(), 2, string(engine.DeviceCPU))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v\nusage: genai-chat serve %s", err, cmd.ArgsUsage), 1)
			}
			applyConversationConfig(cmd, fileCfg)
			applyEngineConfig(cmd, fileCfg)
			if fileCfg.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = fileCfg.ServerAddress
			}
			if ttl, _ := fileCfg.SessionIdleTTL(); ttl > 0 && !cmd.IsSet("session-ttl") {
				sessionTTL = ttl
			}
			if fileCfg.MaxSessions != nil && !cmd.IsSet("max-sessions") {
				maxSessions = int64(*fileCfg.MaxSessions)
			}

			spec := engine.LoadSpec{
				Backend:   backendName,
				ModelPath: args.ModelDir,
				Device:    args.Device,
				CacheDir:  cacheDir,
				Logger:    log,
			}
			if spec.Backend == "" {
				spec.Backend = engine.BackendLlamaCpp
			}
			applyEngineFlags(&spec)
			formatter, _, err := resolveDialect(&spec)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			maxNew := engine.DefaultMaxNewTokens
			if fileCfg.MaxNewTokens != nil && *fileCfg.MaxNewTokens > 0 {
				maxNew = *fileCfg.MaxNewTokens
			}
			spec.Defaults.MaxNewTokens = maxNew

			server, err := api.NewServer(api.Options{
				Load: func(ctx context.Context, d prompt.Dialect) (engine.Engine, error) {
					s := spec
					tpl := prompt.TemplateFor(d)
					s.ReplySuffix = tpl.ReplySuffix
					s.Stop = tpl.Stop
					return engine.Load(ctx, s)
				},
				Dialect:       formatter.Dialect(),
				BotName:       botName,
				Backend:       spec.Backend,
				Generation:    engine.GenerationConfig{MaxNewTokens: maxNew},
				HideReasoning: hideReasoning,
				SessionTTL:    sessionTTL,
				MaxSessions:   int(maxSessions),
				Logger:        log,
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = server.Close() }()

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server",
				"address", addr,
				"model", spec.ModelPath,
				"backend", spec.Backend,
				"dialect", formatter.Dialect().String(),
			)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			if err := sc.Start(ctx, e); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return nil
		},
	}
}
