// Package format turns raw (possibly still streaming) model output into
// renderable block and inline nodes.
//
// The formatter recognises only the markdown subset the chat backends
// actually produce: a leading "thinking" section, fenced code, pipe tables,
// headers, rules, list items, quotes, links, images, audio links and
// bold/italic spans. It is total: every input, including a prefix cut in the
// middle of a token, formats to some node sequence, and anything it cannot
// classify is kept as literal text.
package format

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ThinkingMarker opens a reasoning section at the start of a reply.
const ThinkingMarker = "*Thinking...*"

type BlockKind string

const (
	BlockThinking  BlockKind = "thinking"
	BlockCode      BlockKind = "code"
	BlockTable     BlockKind = "table"
	BlockHeading   BlockKind = "heading"
	BlockRule      BlockKind = "rule"
	BlockBullet    BlockKind = "bullet"
	BlockNumbered  BlockKind = "numbered"
	BlockQuote     BlockKind = "quote"
	BlockSpacer    BlockKind = "spacer"
	BlockParagraph BlockKind = "paragraph"
)

// Block is one renderable block node. Which fields are set depends on Kind.
type Block struct {
	Kind BlockKind `json:"kind"`

	// heading
	Level int `json:"level,omitempty"`
	// numbered list item
	Number string `json:"number,omitempty"`

	// code
	Lang string `json:"lang,omitempty"`
	Code string `json:"code,omitempty"`

	// thinking: Label and Expanded; code: Label is the copy action text
	Label    string  `json:"label,omitempty"`
	Expanded bool    `json:"expanded,omitempty"`
	Children []Block `json:"children,omitempty"`

	// heading, list items, quote, paragraph
	Inline []Inline `json:"inline,omitempty"`

	// table
	Header []Cell   `json:"header,omitempty"`
	Rows   [][]Cell `json:"rows,omitempty"`
}

type Cell []Inline

type Labels struct {
	Thinking      string `json:"thinking"`
	Copy          string `json:"copy"`
	AudioFallback string `json:"audioFallback"`
}

func DefaultLabels() Labels {
	return Labels{
		Thinking:      "Thinking Process",
		Copy:          "Copy",
		AudioFallback: "Your browser does not support the audio element.",
	}
}

// Options are the tunables of the thinking/answer split.
type Options struct {
	// MaxDepth bounds recursive formatting of nested thinking sections.
	MaxDepth int
	// TailGuard is the number of trailing characters in which a blank line
	// is not accepted as the thinking/answer boundary.
	TailGuard int
}

func DefaultOptions() Options {
	return Options{MaxDepth: 8, TailGuard: 20}
}

type Formatter struct {
	labels Labels
	opts   Options
}

func New(labels Labels, opts Options) *Formatter {
	d := DefaultLabels()
	if labels.Thinking == "" {
		labels.Thinking = d.Thinking
	}
	if labels.Copy == "" {
		labels.Copy = d.Copy
	}
	if labels.AudioFallback == "" {
		labels.AudioFallback = d.AudioFallback
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultOptions().MaxDepth
	}
	if opts.TailGuard < 0 {
		opts.TailGuard = 0
	}
	return &Formatter{labels: labels, opts: opts}
}

// Format is a shorthand for New(labels, DefaultOptions()).Format(text).
func Format(text string, labels Labels) []Block {
	return New(labels, DefaultOptions()).Format(text)
}

func (f *Formatter) Format(text string) []Block {
	var out []Block
	for b := range f.Blocks(text) {
		out = append(out, b)
	}
	return out
}

// Blocks yields the top-level blocks of text lazily.
func (f *Formatter) Blocks(text string) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		f.emit(text, 0, yield)
	}
}

func (f *Formatter) emit(text string, depth int, yield func(Block) bool) bool {
	if depth >= f.opts.MaxDepth {
		return f.emitSegments(text, yield)
	}

	content, ok := stripThinkingMarker(text)
	if !ok {
		return f.emitSegments(text, yield)
	}

	thought, answer, found := f.splitThinking(content)
	if !found {
		// Still streaming the reasoning: nothing can be called an answer yet.
		return f.emitSegments(content, yield)
	}

	if thought != "" {
		var children []Block
		f.emit(thought, depth+1, func(b Block) bool {
			children = append(children, b)
			return true
		})
		block := Block{
			Kind:     BlockThinking,
			Label:    f.labels.Thinking,
			Expanded: true,
			Children: children,
		}
		if !yield(block) {
			return false
		}
	}
	if answer != "" {
		return f.emit(answer, depth+1, yield)
	}
	return true
}

func stripThinkingMarker(text string) (string, bool) {
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	if !strings.HasPrefix(trimmed, ThinkingMarker) {
		return "", false
	}
	return strings.TrimLeftFunc(trimmed[len(ThinkingMarker):], unicode.IsSpace), true
}

var answerLeadIns = []string{"---", "# ", "Answer:", "Here is", "Here's"}

// splitThinking finds the boundary between reasoning and answer in content
// (the text after the marker). Both returned parts are trimmed.
func (f *Formatter) splitThinking(content string) (thought, answer string, found bool) {
	// A leading run of quoted lines is the reasoning, verbatim.
	if n := leadingQuoteRun(content); n > 0 {
		lines := strings.Split(content[:n], "\n")
		for i, line := range lines {
			line = strings.TrimPrefix(line, ">")
			lines[i] = strings.TrimPrefix(line, " ")
		}
		return strings.TrimSpace(strings.Join(lines, "\n")), strings.TrimSpace(content[n:]), true
	}

	// A paragraph break followed by an answer lead-in.
	for from := 0; from < len(content); {
		i := strings.Index(content[from:], "\n\n")
		if i < 0 {
			break
		}
		at := from + i
		rest := content[at+2:]
		for _, lead := range answerLeadIns {
			if strings.HasPrefix(rest, lead) {
				return strings.TrimSpace(content[:at]), strings.TrimSpace(content[at:]), true
			}
		}
		from = at + 1
	}

	// The last blank line, unless it sits in the still-growing tail.
	if at := strings.LastIndex(content, "\n\n"); at >= 0 {
		if utf8.RuneCountInString(content[at:]) > f.opts.TailGuard {
			return strings.TrimSpace(content[:at]), strings.TrimSpace(content[at:]), true
		}
	}
	return "", "", false
}

// leadingQuoteRun returns the byte length of the run of '>' lines at the
// start of s, including their line breaks.
func leadingQuoteRun(s string) int {
	pos := 0
	for pos < len(s) && s[pos] == '>' {
		nl := strings.IndexByte(s[pos:], '\n')
		if nl < 0 {
			return len(s)
		}
		pos += nl + 1
	}
	return pos
}
