package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, En, Parse("en"))
	assert.Equal(t, ZhTW, Parse("zh-TW"))
	assert.Equal(t, Default, Parse("fr"))
	assert.Equal(t, Default, Parse(""))
}

func TestFor_ReturnsCopy(t *testing.T) {
	s := For(En)
	s.Suggestions[0] = "changed"
	assert.Equal(t, "Explain quantum computing", For(En).Suggestions[0])
	assert.Equal(t, "Cantonese (Hong Kong)", For(ZhTW).PromptLanguage)
	assert.Equal(t, "新增對話", For("xx").NewChat)
}
