package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/genai-chat/internal/logger"
)

func modelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "models",
		Aliases: []string{"ls"},
		Usage:   "List models and the prompt dialect each would use",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "models-dir",
				Aliases:     []string{"path"},
				Usage:       "directory holding .gguf files or model directories",
				Sources:     cli.EnvVars(envModelsDir),
				Destination: &modelsDir,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			dir := strings.TrimSpace(modelsDir)
			if dir == "" && cmd.Args().Len() > 0 {
				dir = cmd.Args().First()
			}
			if dir == "" {
				dir = strings.TrimSpace(fileCfg.ModelsDir)
			}
			if dir == "" {
				return cli.Exit("error: --models-dir is required unless "+envModelsDir+" or models_dir is set", 1)
			}

			models, err := discoverModels(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(models) == 0 {
				log.Info("no models found", "path", dir)
				return nil
			}
			printModels(os.Stdout, dir, models)
			return nil
		},
	}
}

func printModels(w io.Writer, dir string, models []modelEntry) {
	_, _ = fmt.Fprintf(w, "Models in %s:\n\n", dir)
	for _, m := range models {
		name := filepath.Base(m.Path)
		d, source, _ := modelDialect("", m.Path)
		dialect := d.String()
		if source == "default" {
			dialect += "?"
		}
		kind := "gguf"
		if m.Genie {
			kind = "genie"
		}
		_, _ = fmt.Fprintf(w, "  %-40s %8s  %-6s %s\n", name, formatModelSize(m.Size), kind, dialect)
	}
	_, _ = fmt.Fprintf(w, "\n%d model(s) found\n", len(models))
}
