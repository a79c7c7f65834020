// Package reasoning separates <think>...</think> blocks emitted by reasoning
// models from the answer text, for whole replies and for token streams.
package reasoning

import "strings"

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

type SplitResult struct {
	Content   string
	Reasoning string
}

// SplitRaw separates content and reasoning in a complete reply. An unclosed
// think block turns the remainder into reasoning.
func SplitRaw(raw string) SplitResult {
	var s Splitter
	c1, r1 := s.Push(raw)
	c2, r2 := s.Flush()
	return SplitResult{Content: c1 + c2, Reasoning: r1 + r2}
}

// Splitter routes streamed text into content and reasoning deltas. Tags may
// arrive split across deltas; a possible partial tag is held back until the
// next Push or Flush decides it.
type Splitter struct {
	inThink bool
	pending string
}

// InThink reports whether the stream is currently inside a think block.
func (s *Splitter) InThink() bool { return s.inThink }

func (s *Splitter) Push(delta string) (content, reasoning string) {
	if delta == "" {
		return "", ""
	}
	buf := s.pending + delta
	s.pending = ""

	var c, r strings.Builder
	emit := func(text string) {
		if s.inThink {
			r.WriteString(text)
		} else {
			c.WriteString(text)
		}
	}

	for buf != "" {
		tag := openTag
		if s.inThink {
			tag = closeTag
		}
		if i := indexFold(buf, tag); i >= 0 {
			emit(buf[:i])
			buf = buf[i+len(tag):]
			s.inThink = !s.inThink
			continue
		}
		k := partialSuffix(buf, tag)
		emit(buf[:len(buf)-k])
		s.pending = buf[len(buf)-k:]
		break
	}
	return c.String(), r.String()
}

// Flush releases any held-back text. The splitter keeps its think state.
func (s *Splitter) Flush() (content, reasoning string) {
	p := s.pending
	s.pending = ""
	if s.inThink {
		return "", p
	}
	return p, ""
}

// indexFold is strings.Index with ASCII case folding of tag.
func indexFold(s, tag string) int {
	for i := 0; i+len(tag) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(tag)], tag) {
			return i
		}
	}
	return -1
}

// partialSuffix returns the length of the longest proper prefix of tag that
// ends s.
func partialSuffix(s, tag string) int {
	n := min(len(s), len(tag)-1)
	for k := n; k > 0; k-- {
		if strings.EqualFold(s[len(s)-k:], tag[:k]) {
			return k
		}
	}
	return 0
}
