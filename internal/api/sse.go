package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

var errStreamingUnsupported = errors.New("streaming unsupported")

// sseWriter emits server-sent events for a streamed turn: one data event per
// token, an optional error event, then "data: [DONE]".
type sseWriter struct {
	w       io.Writer
	flusher func()
}

type tokenEvent struct {
	Token string `json:"token"`
}

type doneEvent struct {
	Tokens  int    `json:"tokens"`
	Stopped bool   `json:"stopped,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newSSEWriter(c *echo.Context) (*sseWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, errStreamingUnsupported
	}
	h := res.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: res, flusher: flusher.Flush}, nil
}

func (s *sseWriter) token(tok string) error {
	return s.send("", tokenEvent{Token: tok})
}

func (s *sseWriter) finish(ev doneEvent) error {
	name := "summary"
	if ev.Error != "" {
		name = "error"
	}
	if err := s.send(name, ev); err != nil {
		return err
	}
	if _, err := io.WriteString(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher()
	return nil
}

func (s *sseWriter) send(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flusher()
	return nil
}
