package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/genai-chat/internal/prompt"
)

func dialectsCmd() *cli.Command {
	var show string
	return &cli.Command{
		Name:  "dialects",
		Usage: "List prompt dialects, or print the first two turns of one",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "show",
				Usage:       "dialect to render an example conversation for",
				Destination: &show,
			},
			&cli.StringFlag{
				Name:        "bot-name",
				Value:       "Bot",
				Destination: &botName,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if show == "" {
				listDialects(os.Stdout)
				return nil
			}
			d, err := prompt.ParseDialect(show)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			showDialect(os.Stdout, d, botName)
			return nil
		},
	}
}

func listDialects(w io.Writer) {
	for _, d := range prompt.Dialects() {
		note := ""
		if d == prompt.DefaultDialect {
			note = " (default)"
		}
		if prompt.TemplateFor(d).UsesBotName() {
			note += " uses --bot-name"
		}
		_, _ = fmt.Fprintf(w, "%-10s%s\n", d.String(), note)
	}
}

func showDialect(w io.Writer, d prompt.Dialect, bot string) {
	f := prompt.New(d, bot)
	_, _ = fmt.Fprintf(w, "--- first turn ---\n%q\n", f.Format("Hello!"))
	_, _ = fmt.Fprintf(w, "--- later turns ---\n%q\n", f.Format("What can you do?"))
}
