package engine

import (
	"strings"

	"github.com/samcharles93/genai-chat/internal/reasoning"
)

// transcript is the text of a chat so far: every formatted turn followed by
// the cleaned model reply and the dialect's reply suffix.
type transcript struct {
	active      bool
	replySuffix string
	stop        []string
	buf         strings.Builder
}

func newTranscript(replySuffix string, stop []string) transcript {
	return transcript{replySuffix: replySuffix, stop: append([]string(nil), stop...)}
}

func (t *transcript) start() {
	t.active = true
	t.buf.Reset()
}

func (t *transcript) end() {
	t.active = false
	t.buf.Reset()
}

// prompt returns what the backend should be sent for text.
func (t *transcript) prompt(text string) string {
	if !t.active || t.buf.Len() == 0 {
		return text
	}
	return t.buf.String() + text
}

func (t *transcript) commit(text, reply string) {
	if !t.active {
		return
	}
	t.buf.WriteString(text)
	t.buf.WriteString(SanitizeReply(reply, t.stop))
	t.buf.WriteString(t.replySuffix)
}

func (t *transcript) String() string { return t.buf.String() }

// SanitizeReply removes reasoning blocks and end-of-turn sentinels before a
// reply is fed back into later turns.
func SanitizeReply(text string, stop []string) string {
	s := reasoning.SplitRaw(text).Content
	for _, token := range append([]string{
		"<|im_end|>",
		"<|endoftext|>",
		"<|end_of_text|>",
		"<|eot_id|>",
		"<end_of_turn>",
		"</s>",
	}, stop...) {
		if token == "" {
			continue
		}
		s = strings.ReplaceAll(s, token, "")
	}
	return strings.TrimSpace(s)
}
