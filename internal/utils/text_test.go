package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "sk-poe-abc", SanitizeKey("  sk-poe-abc\n"))
	assert.Equal(t, "sk-poe-abc", SanitizeKey("sk-poe-\u200babc"))
	assert.Equal(t, "", SanitizeKey("\u3000"))
}

func TestTruncateTitle(t *testing.T) {
	assert.Equal(t, "Short title", TruncateTitle("Short title"))

	long := strings.Repeat("a", 45)
	assert.Equal(t, strings.Repeat("a", 40)+"...", TruncateTitle(long))

	exact := strings.Repeat("字", 40)
	assert.Equal(t, exact, TruncateTitle(exact))
}

func TestSuggestionLines(t *testing.T) {
	got := SuggestionLines("1. Explain Go\n\n- Write a poem\n* Plan a trip\n• Compare X\nExtra line", 4)
	assert.Equal(t, []string{"Explain Go", "Write a poem", "Plan a trip", "Compare X"}, got)

	assert.Empty(t, SuggestionLines("\n \n", 4))
}
