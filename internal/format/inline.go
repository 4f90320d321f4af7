package format

import (
	"regexp"
	"strings"
	"unicode"
)

type InlineKind string

const (
	InlineText   InlineKind = "text"
	InlineBold   InlineKind = "bold"
	InlineItalic InlineKind = "italic"
	InlineLink   InlineKind = "link"
	InlineImage  InlineKind = "image"
	InlineAudio  InlineKind = "audio"
)

// Inline is one inline node. For links Children hold the link text; for
// images Text is the alt text; for audio Text is the fallback label.
type Inline struct {
	Kind     InlineKind `json:"kind"`
	Text     string     `json:"text,omitempty"`
	URL      string     `json:"url,omitempty"`
	Title    string     `json:"title,omitempty"`
	Children []Inline   `json:"children,omitempty"`
}

var (
	imageExtRe   = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|bmp|svg)(?:[?#]|$)`)
	audioExtRe   = regexp.MustCompile(`(?i)\.(mp3|wav|ogg|m4a|aac|webm)(?:[?#]|$)`)
	rawURLRe     = regexp.MustCompile(`https?://[^\s<]+[^<.,:;"')\]\s]`)
	boldRe       = regexp.MustCompile(`\*\*.*?\*\*`)
	italicRe     = regexp.MustCompile(`\*.*?\*`)
	dqTitleRe    = regexp.MustCompile(`\s+"(.*?)"$`)
	sqTitleRe    = regexp.MustCompile(`\s+'(.*?)'$`)
	generatedAlt = "Generated"
)

func isImageURL(url string) bool {
	return imageExtRe.MatchString(url)
}

func isAudioURL(url string) bool {
	return audioExtRe.MatchString(url) ||
		(strings.Contains(url, "poecdn.net") && strings.Contains(url, "/audio/"))
}

// inline parses one line (or table cell) of text.
func (f *Formatter) inline(text string) []Inline {
	var out []Inline
	pos := 0
	for pos < len(text) {
		tok, ok := nextLinkToken(text, pos)
		if !ok {
			break
		}
		out = append(out, f.rawURLs(text[pos:tok.start])...)
		out = append(out, f.linkNode(tok))
		pos = tok.end
	}
	return append(out, f.rawURLs(text[pos:])...)
}

type linkToken struct {
	start, end int
	image      bool
	text       string
	url        string
}

// nextLinkToken finds the leftmost [text](url) or ![alt](url) at or after
// from. Link text may contain one level of bracketed text; the URL part may
// contain balanced parentheses.
func nextLinkToken(s string, from int) (linkToken, bool) {
	for p := from; p < len(s); p++ {
		switch {
		case s[p] == '!' && p+1 < len(s) && s[p+1] == '[':
			if tok, ok := parseLinkAt(s, p+1); ok {
				tok.start, tok.image = p, true
				return tok, true
			}
		case s[p] == '[':
			if tok, ok := parseLinkAt(s, p); ok {
				return tok, true
			}
		}
	}
	return linkToken{}, false
}

func parseLinkAt(s string, open int) (linkToken, bool) {
	i := open + 1
	closed := false
	for i < len(s) && !closed {
		switch s[i] {
		case ']':
			closed = true
		case '[':
			j := strings.IndexByte(s[i+1:], ']')
			if j < 0 {
				return linkToken{}, false
			}
			i += j + 2
			continue
		}
		i++
	}
	if !closed {
		return linkToken{}, false
	}
	textEnd := i - 1

	for i < len(s) && isSpaceByte(s[i]) {
		i++
	}
	if i >= len(s) || s[i] != '(' {
		return linkToken{}, false
	}
	urlStart := i + 1
	depth := 0
	for i = urlStart; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return linkToken{
					start: open,
					end:   i + 1,
					text:  s[open+1 : textEnd],
					url:   s[urlStart:i],
				}, true
			}
			depth--
		}
	}
	return linkToken{}, false
}

func isSpaceByte(b byte) bool {
	return b < 0x80 && unicode.IsSpace(rune(b))
}

func (f *Formatter) linkNode(tok linkToken) Inline {
	url := strings.TrimSpace(tok.url)
	title := ""
	for _, re := range []*regexp.Regexp{dqTitleRe, sqTitleRe} {
		if m := re.FindStringSubmatchIndex(url); m != nil {
			title = url[m[2]:m[3]]
			url = strings.TrimSpace(url[:m[0]])
			break
		}
	}

	switch {
	case tok.image || isImageURL(url):
		return Inline{Kind: InlineImage, Text: tok.text, URL: url, Title: title}
	case isAudioURL(url):
		return Inline{Kind: InlineAudio, Text: f.labels.AudioFallback, URL: url, Title: title}
	default:
		return Inline{Kind: InlineLink, URL: url, Title: title, Children: emphasis(tok.text)}
	}
}

// rawURLs turns bare http(s) URLs into image, audio or link nodes.
func (f *Formatter) rawURLs(text string) []Inline {
	if text == "" {
		return nil
	}
	var out []Inline
	pos := 0
	for _, m := range rawURLRe.FindAllStringIndex(text, -1) {
		out = append(out, emphasis(text[pos:m[0]])...)
		url := text[m[0]:m[1]]
		switch {
		case isImageURL(url):
			out = append(out, Inline{Kind: InlineImage, Text: generatedAlt, URL: url})
		case isAudioURL(url):
			out = append(out, Inline{Kind: InlineAudio, Text: f.labels.AudioFallback, URL: url})
		default:
			out = append(out, Inline{Kind: InlineLink, URL: url, Children: []Inline{{Kind: InlineText, Text: url}}})
		}
		pos = m[1]
	}
	return append(out, emphasis(text[pos:])...)
}

// emphasis splits text into bold, italic and plain spans. Bold wins over
// italic; a lone "**" stays literal.
func emphasis(text string) []Inline {
	var out []Inline
	pos := 0
	for _, m := range boldRe.FindAllStringIndex(text, -1) {
		out = append(out, italics(text[pos:m[0]])...)
		out = append(out, Inline{Kind: InlineBold, Text: text[m[0]+2 : m[1]-2]})
		pos = m[1]
	}
	return append(out, italics(text[pos:])...)
}

func italics(text string) []Inline {
	var out []Inline
	pos := 0
	for _, m := range italicRe.FindAllStringIndex(text, -1) {
		if m[1]-m[0] <= 2 {
			continue
		}
		out = appendText(out, text[pos:m[0]])
		out = append(out, Inline{Kind: InlineItalic, Text: text[m[0]+1 : m[1]-1]})
		pos = m[1]
	}
	return appendText(out, text[pos:])
}

func appendText(out []Inline, s string) []Inline {
	if s == "" {
		return out
	}
	if n := len(out); n > 0 && out[n-1].Kind == InlineText {
		out[n-1].Text += s
		return out
	}
	return append(out, Inline{Kind: InlineText, Text: s})
}
