package chat

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
)

// ErrLineDiscarded reports that the user abandoned the line being edited.
// The caller should prompt again.
var ErrLineDiscarded = errors.New("line discarded")

// LineReader yields one line of user input per call, without the trailing
// newline. It returns io.EOF once input is exhausted and ErrLineDiscarded
// when a partly typed line was cancelled.
type LineReader interface {
	ReadLine() (string, error)
	Close() error
}

const maxLineBytes = 1 << 20

type scannerReader struct {
	sc     *bufio.Scanner
	closer io.Closer
}

// NewScannerReader reads lines from r. Lines may be up to 1 MiB long.
func NewScannerReader(r io.Reader) LineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	s := &scannerReader{sc: sc}
	if c, ok := r.(io.Closer); ok && r != os.Stdin {
		s.closer = c
	}
	return s
}

func (s *scannerReader) ReadLine() (string, error) {
	if s.sc.Scan() {
		return strings.TrimSuffix(s.sc.Text(), "\r"), nil
	}
	if err := s.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *scannerReader) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

type readlineReader struct {
	rl *readline.Instance
}

// NewReadlineReader returns an interactive line editor on the terminal.
// historyFile may be empty.
func NewReadlineReader(prompt, historyFile string) (LineReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, err
	}
	return &readlineReader{rl: rl}, nil
}

func (r *readlineReader) ReadLine() (string, error) {
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		// Ctrl-C on an empty line ends the chat like Ctrl-D.
		if line == "" {
			return "", io.EOF
		}
		return "", ErrLineDiscarded
	}
	return line, err
}

func (r *readlineReader) Close() error { return r.rl.Close() }

// NewStdinReader picks the interactive editor when stdin is a terminal and
// falls back to plain line scanning otherwise.
func NewStdinReader(prompt, historyFile string) (LineReader, bool, error) {
	if !StdinIsTerminal() {
		return NewScannerReader(os.Stdin), false, nil
	}
	r, err := NewReadlineReader(prompt, historyFile)
	if err != nil {
		return NewScannerReader(os.Stdin), false, nil
	}
	return r, true, nil
}

// StdinIsTerminal reports whether standard input is an interactive terminal.
func StdinIsTerminal() bool { return isTerminal(os.Stdin) }

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool { return isTerminal(f) }
