// Package prompt turns raw user input into the text a chat-tuned model expects,
// one turn at a time.
package prompt

import "strings"

// Formatter formats the turns of a single chat session. The first call to
// Format carries the system preamble; every later call does not. A Formatter
// is owned by one session and is not safe for concurrent use.
type Formatter struct {
	dialect   Dialect
	tpl       Template
	botName   string
	preamble  string
	firstTurn bool
}

// New returns a Formatter positioned at the first turn. An unknown dialect
// falls back to DefaultDialect.
func New(d Dialect, botName string) *Formatter {
	if !d.Valid() {
		d = DefaultDialect
	}
	tpl := TemplateFor(d)
	return &Formatter{
		dialect:   d,
		tpl:       tpl,
		botName:   botName,
		preamble:  tpl.Preamble(botName),
		firstTurn: true,
	}
}

// Format returns the model-ready text for userText and moves the session past
// its first turn. It never fails and applies no validation to userText.
func (f *Formatter) Format(userText string) string {
	var b strings.Builder
	if f.firstTurn {
		f.firstTurn = false
		b.Grow(len(f.tpl.FirstPrefix) + len(f.preamble) + len(f.tpl.FirstInfix) + len(userText) + len(f.tpl.EndOfTurn))
		b.WriteString(f.tpl.FirstPrefix)
		b.WriteString(f.preamble)
		b.WriteString(f.tpl.FirstInfix)
	} else {
		b.Grow(len(f.tpl.TurnPrefix) + len(userText) + len(f.tpl.EndOfTurn))
		b.WriteString(f.tpl.TurnPrefix)
	}
	b.WriteString(userText)
	b.WriteString(f.tpl.EndOfTurn)
	return b.String()
}

func (f *Formatter) Dialect() Dialect { return f.dialect }

func (f *Formatter) BotName() string { return f.botName }

// FirstTurn reports whether the next Format call is the first of the session.
func (f *Formatter) FirstTurn() bool { return f.firstTurn }

// Template returns a copy of the fragments in use.
func (f *Formatter) Template() Template { return cloneTemplate(f.tpl) }

// Preamble is the system prompt as rendered into the first turn.
func (f *Formatter) Preamble() string { return f.preamble }
