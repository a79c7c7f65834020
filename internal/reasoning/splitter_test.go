package reasoning

import "testing"

func TestSplitRaw(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		in            string
		wantContent   string
		wantReasoning string
	}{
		{
			name:        "no thinking",
			in:          "Hello world",
			wantContent: "Hello world",
		},
		{
			name:          "closed thinking block",
			in:            "<think>internal</think>Hello",
			wantContent:   "Hello",
			wantReasoning: "internal",
		},
		{
			name:          "unclosed thinking block",
			in:            "<think>internal only",
			wantReasoning: "internal only",
		},
		{
			name:          "interleaved text",
			in:            "A<THINK>r1</think>B<think>r2</Think>C",
			wantContent:   "ABC",
			wantReasoning: "r1r2",
		},
		{
			name:        "trailing partial tag is content",
			in:          "a < b <thi",
			wantContent: "a < b <thi",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := SplitRaw(tc.in)
			if got.Content != tc.wantContent {
				t.Fatalf("content got %q want %q", got.Content, tc.wantContent)
			}
			if got.Reasoning != tc.wantReasoning {
				t.Fatalf("reasoning got %q want %q", got.Reasoning, tc.wantReasoning)
			}
		})
	}
}

func TestSplitterPush(t *testing.T) {
	t.Parallel()

	var s Splitter

	c, r := s.Push("<think>abc")
	if c != "" || r != "abc" {
		t.Fatalf("first delta got content=%q reasoning=%q", c, r)
	}
	if !s.InThink() {
		t.Fatalf("expected to be inside a think block")
	}

	c, r = s.Push("</think>Hello")
	if c != "Hello" || r != "" {
		t.Fatalf("second delta got content=%q reasoning=%q", c, r)
	}
}

func TestSplitterTagAcrossDeltas(t *testing.T) {
	t.Parallel()

	var s Splitter
	var content, reasoning string
	for _, d := range []string{"Hi <", "th", "ink>plan", "</th", "ink> there", " <"} {
		c, r := s.Push(d)
		content += c
		reasoning += r
	}
	c, r := s.Flush()
	content += c
	reasoning += r

	if content != "Hi  there <" {
		t.Fatalf("content got %q", content)
	}
	if reasoning != "plan" {
		t.Fatalf("reasoning got %q", reasoning)
	}
}
