package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/genai-chat/internal/logger"
)

// DefaultServerURL is where a local llama.cpp server listens by default.
const DefaultServerURL = "http://127.0.0.1:8080"

// serverEngine talks to a running llama.cpp server over its native
// /completion endpoint and keeps the chat transcript client-side.
type serverEngine struct {
	baseURL  string
	model    string
	client   *http.Client
	defaults GenerationConfig
	log      logger.Logger

	mu     sync.Mutex
	chat   transcript
	closed bool
}

func newServerEngine(ctx context.Context, spec LoadSpec, device Device, log logger.Logger) (Engine, error) {
	base := strings.TrimRight(strings.TrimSpace(spec.ServerURL), "/")
	if base == "" {
		base = DefaultServerURL
	}
	client := spec.HTTPClient
	if client == nil {
		// No client timeout: every request carries its own context.
		client = &http.Client{Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:    4,
			IdleConnTimeout: 90 * time.Second,
		}}
	}
	e := &serverEngine{
		baseURL:  base,
		model:    spec.ModelPath,
		client:   client,
		defaults: spec.Defaults,
		log:      log.With("server", base),
		chat:     newTranscript(spec.ReplySuffix, spec.Stop),
	}
	e.defaults.Stop = mergeStop(spec.Stop, spec.Defaults.Stop)

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.health(hctx); err != nil {
		return nil, loadErr(BackendServer, base, fmt.Errorf("%w: %v", ErrBackendUnavailable, err))
	}
	// Device placement belongs to the server process.
	e.log.Debug("server healthy", "requested_device", string(device))
	return e, nil
}

func (e *serverEngine) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned %s", resp.Status)
	}
	return nil
}

func (e *serverEngine) StartChat(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.chat.start()
	return ctx.Err()
}

func (e *serverEngine) EndChat() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chat.end()
	return nil
}

func (e *serverEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.chat.end()
	e.client.CloseIdleConnections()
	return nil
}

type completionRequest struct {
	Model         string   `json:"model,omitempty"`
	Prompt        string   `json:"prompt"`
	NPredict      int      `json:"n_predict"`
	Temperature   float64  `json:"temperature,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	TopP          float64  `json:"top_p,omitempty"`
	RepeatPenalty float64  `json:"repeat_penalty,omitempty"`
	Seed          int64    `json:"seed,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	Stream        bool     `json:"stream"`
	CachePrompt   bool     `json:"cache_prompt"`
}

type completionChunk struct {
	Content         string `json:"content"`
	Stop            bool   `json:"stop"`
	TokensPredicted int    `json:"tokens_predicted"`
}

func (e *serverEngine) Generate(ctx context.Context, text string, cfg GenerationConfig, onToken TokenFunc) (stats Stats, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return stats, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	defer recoverNonStandard("server generate", &err)

	cfg = cfg.withDefaults(e.defaults)
	body, err := json.Marshal(completionRequest{
		Model:         e.model,
		Prompt:        e.chat.prompt(text),
		NPredict:      cfg.MaxNewTokens,
		Temperature:   cfg.Temperature,
		TopK:          cfg.TopK,
		TopP:          cfg.TopP,
		RepeatPenalty: cfg.RepeatPenalty,
		Seed:          cfg.Seed,
		Stop:          cfg.Stop,
		Stream:        true,
		CachePrompt:   true,
	})
	if err != nil {
		return stats, fmt.Errorf("encode completion request: %w", err)
	}

	// Cancelling reqCtx closes the stream when the callback asks to stop.
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return stats, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		return stats, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return stats, fmt.Errorf("llama server http error: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var reply strings.Builder
	err = readCompletionStream(resp.Body, func(chunk completionChunk) bool {
		if chunk.Content != "" {
			reply.WriteString(chunk.Content)
			stats.TokensGenerated++
			if onToken != nil && onToken(chunk.Content) {
				stats.Stopped = true
				cancel()
				return false
			}
		}
		if chunk.Stop && chunk.TokensPredicted > 0 {
			stats.TokensGenerated = chunk.TokensPredicted
		}
		return !chunk.Stop
	})
	stats.finish(start)
	if err != nil && !stats.Stopped {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		return stats, fmt.Errorf("read completion stream: %w", err)
	}

	e.chat.commit(text, reply.String())
	e.log.Debug("completion finished", "tokens", stats.TokensGenerated, "stopped", stats.Stopped, "duration", stats.Duration)
	return stats, nil
}

// readCompletionStream feeds each decoded "data:" event to fn until fn
// returns false, the stream sends [DONE] or the body ends.
func readCompletionStream(r io.Reader, fn func(completionChunk) bool) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if l := strings.TrimSpace(line); strings.HasPrefix(l, "data:") {
			data := strings.TrimSpace(l[len("data:"):])
			if data == "[DONE]" {
				return nil
			}
			var chunk completionChunk
			if jerr := json.Unmarshal([]byte(data), &chunk); jerr != nil {
				return fmt.Errorf("decode stream event: %w", jerr)
			}
			if !fn(chunk) {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
