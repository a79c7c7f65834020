package chat

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

type StreamMode string

const (
	// StreamInstant writes and flushes every token as it arrives.
	StreamInstant StreamMode = "instant"
	// StreamTypewriter writes one rune at a time.
	StreamTypewriter StreamMode = "typewriter"
	// StreamQuiet holds the reply back until the turn ends.
	StreamQuiet StreamMode = "quiet"
)

func StreamModes() []StreamMode {
	return []StreamMode{StreamInstant, StreamTypewriter, StreamQuiet}
}

func ParseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return StreamInstant, nil
	case StreamInstant, StreamTypewriter, StreamQuiet:
		return m, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q (want instant, typewriter or quiet)", s)
	}
}

// StreamWriter is the console sink for generated tokens and status text.
type StreamWriter struct {
	mode StreamMode
	out  *bufio.Writer

	mu   sync.Mutex
	turn strings.Builder
}

func NewStreamWriter(w io.Writer, mode StreamMode) *StreamWriter {
	if mode == "" {
		mode = StreamInstant
	}
	return &StreamWriter{
		mode: mode,
		out:  bufio.NewWriterSize(w, 4096),
	}
}

func (w *StreamWriter) Mode() StreamMode { return w.mode }

// WriteToken records token as part of the current reply and shows it
// according to the stream mode.
func (w *StreamWriter) WriteToken(token string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.turn.WriteString(token)
	switch w.mode {
	case StreamQuiet:
		return nil
	case StreamTypewriter:
		for _, r := range token {
			if _, err := w.out.WriteRune(r); err != nil {
				return err
			}
			if err := w.out.Flush(); err != nil {
				return err
			}
		}
		return nil
	default:
		if _, err := w.out.WriteString(token); err != nil {
			return err
		}
		return w.out.Flush()
	}
}

// EndTurn prints anything held back and returns the reply text of the turn.
func (w *StreamWriter) EndTurn() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	reply := w.turn.String()
	w.turn.Reset()
	if w.mode == StreamQuiet {
		if _, err := w.out.WriteString(reply); err != nil {
			return reply, err
		}
	}
	return reply, w.out.Flush()
}

// WriteString writes text outside of any reply, such as status lines.
func (w *StreamWriter) WriteString(s string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.out.WriteString(s)
	if err != nil {
		return n, err
	}
	return n, w.out.Flush()
}
