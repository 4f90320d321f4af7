package format

import (
	"regexp"
	"strings"
)

const fence = "```"

var (
	fencedCodeRe  = regexp.MustCompile("^```(\\w*)\\n((?s:.*?))```")
	tableDelimRe  = regexp.MustCompile(`^\s*\|?[-:| ]+\|[-:| ]+\|?\s*$`)
	orderedItemRe = regexp.MustCompile(`^(\d+)\.\s`)
)

var headingPrefixes = []struct {
	prefix string
	level  int
}{
	{"### ", 3},
	{"## ", 2},
	{"# ", 1},
}

// emitSegments splits text on closed code fences. An opening fence with no
// closing partner stays in the text segment.
func (f *Formatter) emitSegments(text string, yield func(Block) bool) bool {
	for text != "" {
		start := strings.Index(text, fence)
		if start < 0 {
			break
		}
		end := strings.Index(text[start+len(fence):], fence)
		if end < 0 {
			break
		}
		end += start + 2*len(fence)

		if !f.emitLines(text[:start], yield) {
			return false
		}
		if !yield(f.codeBlock(text[start:end])) {
			return false
		}
		text = text[end:]
	}
	return f.emitLines(text, yield)
}

func (f *Formatter) codeBlock(segment string) Block {
	b := Block{Kind: BlockCode, Label: f.labels.Copy}
	if m := fencedCodeRe.FindStringSubmatch(segment); m != nil {
		b.Lang = m[1]
		b.Code = m[2]
		return b
	}
	b.Code = segment[len(fence) : len(segment)-len(fence)]
	return b
}

func (f *Formatter) emitLines(text string, yield func(Block) bool) bool {
	if text == "" {
		return true
	}
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if i+1 < len(lines) && lines[i+1] != "" &&
			tableDelimRe.MatchString(lines[i+1]) && strings.Contains(trimmed, "|") {
			header := f.tableRow(line)
			var rows [][]Cell
			i += 2
			for i < len(lines) && strings.Contains(lines[i], "|") {
				rows = append(rows, padRow(f.tableRow(lines[i]), len(header)))
				i++
			}
			i--
			if !yield(Block{Kind: BlockTable, Header: header, Rows: rows}) {
				return false
			}
			continue
		}

		if !yield(f.lineBlock(line, trimmed)) {
			return false
		}
	}
	return true
}

func (f *Formatter) lineBlock(line, trimmed string) Block {
	if trimmed == "" {
		return Block{Kind: BlockSpacer}
	}
	for _, h := range headingPrefixes {
		if strings.HasPrefix(line, h.prefix) {
			return Block{Kind: BlockHeading, Level: h.level, Inline: f.inline(line[len(h.prefix):])}
		}
	}
	if trimmed == "---" {
		return Block{Kind: BlockRule}
	}
	if strings.HasPrefix(trimmed, "- ") {
		return Block{Kind: BlockBullet, Inline: f.inline(trimmed[2:])}
	}
	if m := orderedItemRe.FindStringSubmatch(trimmed); m != nil {
		return Block{Kind: BlockNumbered, Number: m[1], Inline: f.inline(trimmed[len(m[0]):])}
	}
	if strings.HasPrefix(line, "> ") {
		return Block{Kind: BlockQuote, Inline: f.inline(line[2:])}
	}
	return Block{Kind: BlockParagraph, Inline: f.inline(line)}
}

func (f *Formatter) tableRow(line string) []Cell {
	row := strings.TrimSpace(line)
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")
	parts := strings.Split(row, "|")
	cells := make([]Cell, len(parts))
	for i, p := range parts {
		cells[i] = f.inline(strings.TrimSpace(p))
	}
	return cells
}

// padRow extends a body row with empty cells up to the header width.
func padRow(row []Cell, width int) []Cell {
	for len(row) < width {
		row = append(row, Cell{})
	}
	return row
}
