// Package chat runs the console conversation: read a line, format it for the
// model, stream the reply, repeat until input ends.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/samcharles93/genai-chat/internal/engine"
	"github.com/samcharles93/genai-chat/internal/logger"
	"github.com/samcharles93/genai-chat/internal/metrics"
	"github.com/samcharles93/genai-chat/internal/prompt"
	"github.com/samcharles93/genai-chat/internal/reasoning"
)

// Status lines read by a supervising front-end.
const (
	StatusLoadedPrefix = "STATE: Model Loaded: "
	StatusFinished     = "\nSTATE: Finished\n"
)

type Loop struct {
	Formatter *prompt.Formatter
	Engine    engine.Engine
	Input     LineReader
	// Output receives replies and status lines. A *StreamWriter is used as is;
	// any other writer is wrapped in an instant-mode StreamWriter.
	Output io.Writer

	MaxNewTokens int
	Generation   engine.GenerationConfig

	// ExitPhrase ends the chat when a line equals it exactly. Empty disables it.
	ExitPhrase string
	// Welcome is printed once after the chat starts.
	Welcome       string
	StatusLines   bool
	ModelLabel    string
	HideReasoning bool

	// Backend labels metrics.
	Backend string
	Logger  logger.Logger
}

// Run drives the chat until end of input, the exit phrase, cancellation or
// the first error. EndChat runs exactly once whenever StartChat succeeded.
func (l *Loop) Run(ctx context.Context) (err error) {
	if l.Formatter == nil || l.Engine == nil || l.Input == nil || l.Output == nil {
		return errors.New("chat loop requires a formatter, an engine, an input and an output")
	}
	log := l.Logger
	if log == nil {
		log = logger.FromContext(ctx)
	}
	log = log.With("dialect", l.Formatter.Dialect().String())
	out := l.writer()

	if err := l.Engine.StartChat(ctx); err != nil {
		return fmt.Errorf("start chat: %w", err)
	}
	defer func() {
		if endErr := l.Engine.EndChat(); endErr != nil {
			err = errors.Join(err, fmt.Errorf("end chat: %w", endErr))
		}
	}()

	if l.StatusLines {
		if _, err := out.WriteString(StatusLoadedPrefix + l.ModelLabel + "\n"); err != nil {
			return fmt.Errorf("write status: %w", err)
		}
	}
	if l.Welcome != "" {
		if _, err := out.WriteString(l.Welcome); err != nil {
			return fmt.Errorf("write welcome: %w", err)
		}
	}

	turns := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := l.Input.ReadLine()
		if errors.Is(err, io.EOF) {
			log.Debug("input finished", "turns", turns)
			return nil
		}
		if errors.Is(err, ErrLineDiscarded) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if l.ExitPhrase != "" && line == l.ExitPhrase {
			log.Debug("exit phrase received", "turns", turns)
			return nil
		}
		if err := l.turn(ctx, out, log, line); err != nil {
			return err
		}
		turns++
	}
}

func (l *Loop) writer() *StreamWriter {
	if sw, ok := l.Output.(*StreamWriter); ok {
		return sw
	}
	return NewStreamWriter(l.Output, StreamInstant)
}

func (l *Loop) turn(ctx context.Context, out *StreamWriter, log logger.Logger, line string) error {
	text := l.Formatter.Format(line)

	var split *reasoning.Splitter
	if l.HideReasoning {
		split = &reasoning.Splitter{}
	}
	var writeErr error
	show := func(s string) bool {
		if s == "" || writeErr != nil {
			return writeErr != nil
		}
		if err := out.WriteToken(s); err != nil {
			writeErr = err
			return true
		}
		return false
	}
	onToken := func(tok string) bool {
		if split != nil {
			tok, _ = split.Push(tok)
		}
		if show(tok) {
			return true
		}
		return ctx.Err() != nil
	}

	cfg := l.Generation
	cfg.MaxNewTokens = l.MaxNewTokens

	start := time.Now()
	stats, genErr := l.Engine.Generate(ctx, text, cfg, onToken)
	if split != nil {
		c, _ := split.Flush()
		show(c)
	}
	_, endErr := out.EndTurn()
	took := time.Since(start)
	metrics.ObserveTurn(l.Formatter.Dialect().String(), l.Backend, stats.TokensGenerated, took, stats.Stopped, genErr)

	if genErr != nil {
		log.Error("generation failed", "error", genErr)
		return fmt.Errorf("generate: %w", genErr)
	}
	if err := errors.Join(writeErr, endErr); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	log.Debug("turn finished", "tokens", stats.TokensGenerated, "took", took, "stopped", stats.Stopped)

	trailer := "\n"
	if l.StatusLines {
		trailer = StatusFinished
	}
	if _, err := out.WriteString(trailer); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}
