// Package api serves chat sessions over HTTP. Each session owns its own
// prompt formatter and engine; turns are formatted exactly as the terminal
// chat formats them.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/genai-chat/internal/engine"
	"github.com/samcharles93/genai-chat/internal/logger"
	"github.com/samcharles93/genai-chat/internal/metrics"
	"github.com/samcharles93/genai-chat/internal/prompt"
	"github.com/samcharles93/genai-chat/internal/reasoning"
)

// LoadFunc loads a fresh engine for a new session that will use dialect d.
type LoadFunc func(ctx context.Context, d prompt.Dialect) (engine.Engine, error)

type Options struct {
	Load LoadFunc
	// Dialect and BotName apply when a create request does not override them.
	Dialect       prompt.Dialect
	BotName       string
	Backend       string
	Generation    engine.GenerationConfig
	HideReasoning bool
	SessionTTL    time.Duration
	MaxSessions   int
	Logger        logger.Logger
}

type Server struct {
	opts     Options
	sessions *SessionStore
	log      logger.Logger
}

func NewServer(opts Options) (*Server, error) {
	if opts.Load == nil {
		return nil, errors.New("api: no engine loader")
	}
	if !opts.Dialect.Valid() {
		opts.Dialect = prompt.DefaultDialect
	}
	if opts.BotName == "" {
		opts.BotName = "Bot"
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &Server{
		opts:     opts,
		sessions: NewSessionStore(opts.SessionTTL, opts.MaxSessions, opts.Logger),
		log:      opts.Logger,
	}, nil
}

// Sessions exposes the live session store.
func (s *Server) Sessions() *SessionStore { return s.sessions }

// Close releases every session.
func (s *Server) Close() error {
	s.sessions.Close()
	return nil
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/v1/dialects", s.handleDialects)

	e.POST("/v1/sessions", s.handleCreateSession)
	e.POST("/v1/sessions/:id/turns", s.handleTurn)
	e.DELETE("/v1/sessions/:id", s.handleDeleteSession)
}

type CreateSessionRequest struct {
	Dialect string `json:"dialect,omitempty"`
	BotName string `json:"bot_name,omitempty"`
}

type SessionResponse struct {
	ID      string `json:"id"`
	Dialect string `json:"dialect"`
	BotName string `json:"bot_name"`
}

type TurnRequest struct {
	Text         string `json:"text"`
	MaxNewTokens int    `json:"max_new_tokens,omitempty"`
	Stream       bool   `json:"stream,omitempty"`
}

type TurnResponse struct {
	Text       string  `json:"text"`
	Tokens     int     `json:"tokens"`
	Stopped    bool    `json:"stopped,omitempty"`
	DurationMS int64   `json:"duration_ms"`
	TPS        float64 `json:"tokens_per_second"`
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleDialects(c *echo.Context) error {
	data := make([]map[string]any, 0, len(prompt.Dialects()))
	for _, d := range prompt.Dialects() {
		data = append(data, map[string]any{
			"name":          d.String(),
			"uses_bot_name": prompt.TemplateFor(d).UsesBotName(),
			"default":       d == prompt.DefaultDialect,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"data": data})
}

func (s *Server) handleCreateSession(c *echo.Context) error {
	req, err := decodeJSON[CreateSessionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error(), "")
	}

	dialect := s.opts.Dialect
	if strings.TrimSpace(req.Dialect) != "" {
		d, err := prompt.ParseDialect(req.Dialect)
		if err != nil {
			return writeBadRequest(c, err.Error(), "dialect")
		}
		dialect = d
	}
	botName := s.opts.BotName
	if strings.TrimSpace(req.BotName) != "" {
		botName = req.BotName
	}

	ctx := c.Request().Context()
	eng, err := s.opts.Load(ctx, dialect)
	metrics.ObserveLoad(s.opts.Backend, err)
	if err != nil {
		s.log.Error("engine load failed", "error", err)
		return writeError(c, http.StatusServiceUnavailable, "engine_error", err.Error(), "", "load_failed")
	}
	if err := eng.StartChat(ctx); err != nil {
		_ = eng.Close()
		s.log.Error("start chat failed", "error", err)
		return writeError(c, http.StatusServiceUnavailable, "engine_error", err.Error(), "", "start_failed")
	}

	f := prompt.New(dialect, botName)
	sess := newSession(f, eng)
	s.sessions.Add(sess)
	s.log.Info("session created", "session", sess.ID, "dialect", f.Dialect().String())

	return c.JSON(http.StatusCreated, SessionResponse{
		ID:      sess.ID,
		Dialect: f.Dialect().String(),
		BotName: f.BotName(),
	})
}

func (s *Server) handleDeleteSession(c *echo.Context) error {
	id := c.Param("id")
	if !s.sessions.Delete(id) {
		return writeNotFound(c, fmt.Sprintf("session %q not found", id))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTurn(c *echo.Context) error {
	id := c.Param("id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		return writeNotFound(c, fmt.Sprintf("session %q not found", id))
	}
	req, err := decodeJSON[TurnRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error(), "")
	}
	if req.MaxNewTokens < 0 {
		return writeBadRequest(c, "max_new_tokens must be a positive integer", "max_new_tokens")
	}

	if err := sess.lock(); err != nil {
		return writeNotFound(c, fmt.Sprintf("session %q not found", id))
	}
	defer sess.unlock()

	if req.Stream {
		return s.streamTurn(c, sess, req)
	}

	var out strings.Builder
	stats, err := s.generate(c.Request().Context(), sess, req, func(tok string) error {
		out.WriteString(tok)
		return nil
	})
	if err != nil {
		return writeError(c, http.StatusBadGateway, "engine_error", err.Error(), "", "generate_failed")
	}
	return c.JSON(http.StatusOK, TurnResponse{
		Text:       out.String(),
		Tokens:     stats.TokensGenerated,
		Stopped:    stats.Stopped,
		DurationMS: stats.Duration.Milliseconds(),
		TPS:        stats.TPS,
	})
}

func (s *Server) streamTurn(c *echo.Context, sess *Session, req TurnRequest) error {
	sw, err := newSSEWriter(c)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	stats, genErr := s.generate(c.Request().Context(), sess, req, sw.token)
	done := doneEvent{Tokens: stats.TokensGenerated, Stopped: stats.Stopped}
	if genErr != nil {
		done.Error = genErr.Error()
	}
	if err := sw.finish(done); err != nil {
		s.log.Debug("stream closed early", "session", sess.ID, "error", err)
	}
	return nil
}

// generate runs one turn on a locked session. emit receives the visible text
// in order; an emit error or a cancelled request stops generation.
func (s *Server) generate(ctx context.Context, sess *Session, req TurnRequest, emit func(string) error) (engine.Stats, error) {
	text := sess.formatter.Format(req.Text)

	var split *reasoning.Splitter
	if s.opts.HideReasoning {
		split = &reasoning.Splitter{}
	}
	var emitErr error
	show := func(v string) bool {
		if v == "" || emitErr != nil {
			return emitErr != nil
		}
		emitErr = emit(v)
		return emitErr != nil
	}
	onToken := func(tok string) bool {
		if split != nil {
			tok, _ = split.Push(tok)
		}
		return show(tok) || ctx.Err() != nil
	}

	cfg := s.opts.Generation
	if req.MaxNewTokens > 0 {
		cfg.MaxNewTokens = req.MaxNewTokens
	}

	start := time.Now()
	stats, err := sess.engine.Generate(ctx, text, cfg, onToken)
	if split != nil {
		c, _ := split.Flush()
		show(c)
	}
	took := time.Since(start)
	sess.turns++
	metrics.ObserveTurn(sess.formatter.Dialect().String(), s.opts.Backend, stats.TokensGenerated, took, stats.Stopped, err)

	if err != nil {
		s.log.Error("generation failed", "session", sess.ID, "error", err)
		return stats, fmt.Errorf("generate: %w", err)
	}
	if emitErr != nil {
		return stats, fmt.Errorf("write reply: %w", emitErr)
	}
	s.log.Debug("turn finished", "session", sess.ID, "tokens", stats.TokensGenerated, "took", took)
	return stats, nil
}
