package chat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/samcharles93/genai-chat/internal/engine"
	"github.com/samcharles93/genai-chat/internal/logger"
	"github.com/samcharles93/genai-chat/internal/prompt"
)

type fakeEngine struct {
	calls    []string
	texts    []string
	cfgs     []engine.GenerationConfig
	reply    []string
	genErr   error
	startErr error
	// emitted counts tokens handed to the callback per Generate call.
	emitted []int
}

func (f *fakeEngine) StartChat(context.Context) error {
	f.calls = append(f.calls, "start")
	return f.startErr
}

func (f *fakeEngine) Generate(_ context.Context, text string, cfg engine.GenerationConfig, onToken engine.TokenFunc) (engine.Stats, error) {
	f.calls = append(f.calls, "generate")
	f.texts = append(f.texts, text)
	f.cfgs = append(f.cfgs, cfg)
	if f.genErr != nil {
		return engine.Stats{}, f.genErr
	}
	var st engine.Stats
	for _, tok := range f.reply {
		st.TokensGenerated++
		if onToken(tok) {
			st.Stopped = true
			break
		}
	}
	f.emitted = append(f.emitted, st.TokensGenerated)
	return st, nil
}

func (f *fakeEngine) EndChat() error {
	f.calls = append(f.calls, "end")
	return nil
}

func (f *fakeEngine) Close() error { return nil }

func newLoop(input string, eng *fakeEngine, out *bytes.Buffer) *Loop {
	return &Loop{
		Formatter:    prompt.New(prompt.Llama2, "Bot"),
		Engine:       eng,
		Input:        NewScannerReader(strings.NewReader(input)),
		Output:       out,
		MaxNewTokens: 100,
		Logger:       logger.Discard(),
		Backend:      "fake",
	}
}

func TestLoopZeroTurns(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	var out bytes.Buffer
	if err := newLoop("", eng, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(eng.calls, ","); got != "start,end" {
		t.Fatalf("got calls %q want %q", got, "start,end")
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestLoopFormatsAndStreams(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{reply: []string{"Hi", " there"}}
	var out bytes.Buffer
	l := newLoop("Hello\nHow are you?\n", eng, &out)
	l.MaxNewTokens = 42
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := strings.Join(eng.calls, ","); got != "start,generate,generate,end" {
		t.Fatalf("got calls %q", got)
	}
	want := []string{
		"[INST] <<SYS>>\nYour name is Bot and you are a helpful AI assistant. Please keep answers consice and to the point. \n<</SYS>>\n\nHello [/INST] ",
		"[INST] How are you? [/INST] ",
	}
	for i, w := range want {
		if eng.texts[i] != w {
			t.Fatalf("turn %d:\ngot  %q\nwant %q", i, eng.texts[i], w)
		}
		if eng.cfgs[i].MaxNewTokens != 42 {
			t.Fatalf("turn %d: limit %d want 42", i, eng.cfgs[i].MaxNewTokens)
		}
	}
	if got, want := out.String(), "Hi there\nHi there\n"; got != want {
		t.Fatalf("output got %q want %q", got, want)
	}
}

func TestLoopExitPhrase(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{reply: []string{"ok"}}
	var out bytes.Buffer
	l := newLoop("first\nBye\nbye\nnever\n", eng, &out)
	l.ExitPhrase = "bye"
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(eng.texts) != 2 {
		t.Fatalf("got %d generate calls want 2", len(eng.texts))
	}
	if !strings.Contains(eng.texts[1], "Bye") {
		t.Fatalf("case-sensitive phrase should not match: %q", eng.texts[1])
	}
	if eng.calls[len(eng.calls)-1] != "end" {
		t.Fatalf("EndChat not called last: %q", eng.calls)
	}
}

type scriptedInput struct {
	lines []string
	errs  []error
}

func (s *scriptedInput) ReadLine() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line, err := s.lines[0], s.errs[0]
	s.lines, s.errs = s.lines[1:], s.errs[1:]
	return line, err
}

func (s *scriptedInput) Close() error { return nil }

func TestLoopSkipsDiscardedLines(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{reply: []string{"ok"}}
	var out bytes.Buffer
	l := newLoop("", eng, &out)
	l.Input = &scriptedInput{
		lines: []string{"", "Hello", ""},
		errs:  []error{ErrLineDiscarded, nil, ErrLineDiscarded},
	}
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(eng.calls, ","); got != "start,generate,end" {
		t.Fatalf("got calls %q", got)
	}
	if !strings.Contains(eng.texts[0], "<<SYS>>") || !strings.Contains(eng.texts[0], "Hello [/INST] ") {
		t.Fatalf("first turn should carry the system preamble and the real line: %q", eng.texts[0])
	}
}

func TestLoopStatusLines(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{reply: []string{"Hello"}}
	var out bytes.Buffer
	l := newLoop("Hi\n", eng, &out)
	l.StatusLines = true
	l.ModelLabel = "models/llama-3"
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "STATE: Model Loaded: models/llama-3\nHello\nSTATE: Finished\n"
	if got := out.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestLoopGenerateErrorStillEndsChat(t *testing.T) {
	t.Parallel()

	boom := errors.New("device lost")
	eng := &fakeEngine{genErr: boom}
	var out bytes.Buffer
	err := newLoop("a\nb\n", eng, &out).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("got %v want %v", err, boom)
	}
	if got := strings.Join(eng.calls, ","); got != "start,generate,end" {
		t.Fatalf("got calls %q", got)
	}
}

func TestLoopStartChatError(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{startErr: errors.New("no session")}
	var out bytes.Buffer
	if err := newLoop("a\n", eng, &out).Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if got := strings.Join(eng.calls, ","); got != "start" {
		t.Fatalf("got calls %q", got)
	}
}

func TestLoopCancelStopsGeneration(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := &fakeEngine{reply: []string{"a", "b", "c"}}
	var out bytes.Buffer
	l := newLoop("x\ny\n", eng, &out)
	l.Output = writerFunc(func(p []byte) (int, error) {
		cancel()
		return out.Write(p)
	})

	err := l.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", err)
	}
	if len(eng.emitted) != 1 || eng.emitted[0] != 1 {
		t.Fatalf("generation not stopped after first token: %v", eng.emitted)
	}
	if got := strings.Join(eng.calls, ","); got != "start,generate,end" {
		t.Fatalf("got calls %q", got)
	}
}

func TestLoopHidesReasoning(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{reply: []string{"<thi", "nk>plan</think>", "Ans", "wer"}}
	var out bytes.Buffer
	l := newLoop("q\n", eng, &out)
	l.HideReasoning = true
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.String(); got != "Answer\n" {
		t.Fatalf("got %q want %q", got, "Answer\n")
	}
}

func TestLoopWelcome(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	var out bytes.Buffer
	l := newLoop("", eng, &out)
	l.Welcome = "Type quit to end the chat.\n"
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != l.Welcome {
		t.Fatalf("got %q", out.String())
	}
}

func TestLoopRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if err := (&Loop{}).Run(context.Background()); err == nil {
		t.Fatalf("expected error for empty loop")
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
