package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(s string) Inline { return Inline{Kind: InlineText, Text: s} }

func paragraph(s string) Block {
	return Block{Kind: BlockParagraph, Inline: []Inline{text(s)}}
}

func TestFormat_ThinkingQuoteThenRule(t *testing.T) {
	blocks := Format("*Thinking...*\n> I should check X.\n\n---\nThe answer is 42.", DefaultLabels())

	require.Len(t, blocks, 3)
	assert.Equal(t, BlockThinking, blocks[0].Kind)
	assert.Equal(t, "Thinking Process", blocks[0].Label)
	assert.True(t, blocks[0].Expanded)
	assert.Equal(t, []Block{paragraph("I should check X.")}, blocks[0].Children)

	assert.Equal(t, BlockRule, blocks[1].Kind)
	assert.Equal(t, paragraph("The answer is 42."), blocks[2])
}

func TestFormat_ThinkingRuleLeadIn(t *testing.T) {
	blocks := Format("*Thinking...*\nI should check X.\n\n---\nThe answer is 42.", DefaultLabels())

	require.Len(t, blocks, 3)
	assert.Equal(t, BlockThinking, blocks[0].Kind)
	assert.Equal(t, []Block{paragraph("I should check X.")}, blocks[0].Children)
	assert.Equal(t, Block{Kind: BlockRule}, blocks[1])
	assert.Equal(t, paragraph("The answer is 42."), blocks[2])
}

func TestFormat_ThinkingLeadIn(t *testing.T) {
	blocks := Format("*Thinking...*\nmull it over\n\nHere is the result.", Labels{Thinking: "思考過程"})

	require.Len(t, blocks, 2)
	assert.Equal(t, "思考過程", blocks[0].Label)
	assert.Equal(t, []Block{paragraph("mull it over")}, blocks[0].Children)
	assert.Equal(t, paragraph("Here is the result."), blocks[1])
}

func TestFormat_ThinkingTailGuard(t *testing.T) {
	// The blank line is too close to the end to be trusted as a boundary.
	blocks := Format("*Thinking...*\nplan\n\nshort", DefaultLabels())
	for _, b := range blocks {
		assert.NotEqual(t, BlockThinking, b.Kind)
	}
	assert.Equal(t, []Block{paragraph("plan"), {Kind: BlockSpacer}, paragraph("short")}, blocks)

	blocks = Format("*Thinking...*\nplan step\n\nThis is the final answer text.", DefaultLabels())
	require.Len(t, blocks, 2)
	assert.Equal(t, BlockThinking, blocks[0].Kind)
	assert.Equal(t, paragraph("This is the final answer text."), blocks[1])
}

func TestFormat_TailGuardIsTunable(t *testing.T) {
	f := New(DefaultLabels(), Options{TailGuard: 3})
	blocks := f.Format("*Thinking...*\nplan\n\nshort")
	require.Len(t, blocks, 2)
	assert.Equal(t, BlockThinking, blocks[0].Kind)
}

func TestFormat_StreamingThinkingHasNoAnswer(t *testing.T) {
	blocks := Format("*Thinking...*\nstill working on it", DefaultLabels())
	assert.Equal(t, []Block{paragraph("still working on it")}, blocks)
}

func TestFormat_MarkerMustLead(t *testing.T) {
	blocks := Format("> quoted\n\nplain", DefaultLabels())
	require.Len(t, blocks, 3)
	assert.Equal(t, BlockQuote, blocks[0].Kind)
}

func TestFormat_CodeFence(t *testing.T) {
	blocks := Format("before\n```go\nfmt.Println(1)\n```\nafter", DefaultLabels())

	assert.Equal(t, []Block{
		paragraph("before"),
		{Kind: BlockSpacer},
		{Kind: BlockCode, Lang: "go", Code: "fmt.Println(1)\n", Label: "Copy"},
		{Kind: BlockSpacer},
		paragraph("after"),
	}, blocks)
}

func TestFormat_FenceWithoutNewline(t *testing.T) {
	blocks := Format("```inline code```", DefaultLabels())
	require.Len(t, blocks, 1)
	assert.Equal(t, "", blocks[0].Lang)
	assert.Equal(t, "inline code", blocks[0].Code)
}

func TestFormat_UnclosedFenceIsText(t *testing.T) {
	blocks := Format("```go\nfmt.Println(", DefaultLabels())
	assert.Equal(t, []Block{paragraph("```go"), paragraph("fmt.Println(")}, blocks)
}

func TestFormat_TablePadsShortRows(t *testing.T) {
	blocks := Format("| a | b |\n|---|:-:|\n| 1 |\n| 2 | 3 |\nafter", DefaultLabels())

	require.Len(t, blocks, 2)
	table := blocks[0]
	assert.Equal(t, BlockTable, table.Kind)
	assert.Equal(t, []Cell{{text("a")}, {text("b")}}, table.Header)
	assert.Equal(t, [][]Cell{
		{{text("1")}, {}},
		{{text("2")}, {text("3")}},
	}, table.Rows)
	assert.Equal(t, paragraph("after"), blocks[1])
}

func TestFormat_LineBlocks(t *testing.T) {
	blocks := Format("# One\n## Two\n### Three\n---\n- item\n12. twelve\n> said", DefaultLabels())

	assert.Equal(t, []Block{
		{Kind: BlockHeading, Level: 1, Inline: []Inline{text("One")}},
		{Kind: BlockHeading, Level: 2, Inline: []Inline{text("Two")}},
		{Kind: BlockHeading, Level: 3, Inline: []Inline{text("Three")}},
		{Kind: BlockRule},
		{Kind: BlockBullet, Inline: []Inline{text("item")}},
		{Kind: BlockNumbered, Number: "12", Inline: []Inline{text("twelve")}},
		{Kind: BlockQuote, Inline: []Inline{text("said")}},
	}, blocks)
}

func TestFormat_RawImageURLIsImage(t *testing.T) {
	blocks := Format("look: http://x.com/a.png", DefaultLabels())
	require.Len(t, blocks, 1)
	assert.Equal(t, []Inline{
		text("look: "),
		{Kind: InlineImage, Text: "Generated", URL: "http://x.com/a.png"},
	}, blocks[0].Inline)
}

func TestFormat_Deterministic(t *testing.T) {
	input := "*Thinking...*\n> a\n\n# Title\n| x | y |\n|---|---|\n| [l](https://e.com/(p)) | **b** |\n```\ncode\n```"
	assert.Equal(t, Format(input, DefaultLabels()), Format(input, DefaultLabels()))
}

func TestFormat_EveryPrefixFormats(t *testing.T) {
	input := "*Thinking...*\n> step one\n> step two\n\nHere's **the** [answer](https://x.com/a_(b) \"t\").\n" +
		"```py\nprint('hi')\n```\n| h |\n|---|\n| ![img](https://x.com/i.png) |\nhttps://x.poecdn.net/audio/z"
	for i := 0; i <= len(input); i++ {
		assert.NotPanics(t, func() { Format(input[:i], DefaultLabels()) }, "prefix %d", i)
	}
}

func TestBlocks_StopsEarly(t *testing.T) {
	f := New(DefaultLabels(), DefaultOptions())
	var seen []Block
	for b := range f.Blocks("one\ntwo\nthree") {
		seen = append(seen, b)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []Block{paragraph("one"), paragraph("two")}, seen)
}

func TestFormat_NestedThinkingIsBounded(t *testing.T) {
	input := strings.Repeat("*Thinking...*\n> x\n\n", 20) + "done"
	blocks := New(DefaultLabels(), Options{MaxDepth: 3}).Format(input)
	require.NotEmpty(t, blocks)
}
