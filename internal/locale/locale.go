// Package locale holds the user-visible strings the service itself produces.
package locale

import "slices"

type Language string

const (
	ZhTW Language = "zh-TW"
	En   Language = "en"
)

// Default is used for unknown or unset languages.
const Default = ZhTW

type Strings struct {
	NewChat        string   `json:"newChat"`
	ContextCleared string   `json:"contextCleared"`
	Error          string   `json:"error"`
	Thinking       string   `json:"thinkingProcess"`
	Copy           string   `json:"copy"`
	AudioFallback  string   `json:"audioFallback"`
	UsageConsumed  string   `json:"usageConsumed"`
	UsagePoints    string   `json:"usagePoints"`
	Suggestions    []string `json:"suggestions"`

	// Language named in the suggestion prompt.
	PromptLanguage string `json:"-"`
}

var table = map[Language]Strings{
	ZhTW: {
		NewChat:        "新增對話",
		ContextCleared: "已清除上下文記憶",
		Error:          "連線發生錯誤。",
		Thinking:       "思考過程",
		Copy:           "複製",
		AudioFallback:  "您的瀏覽器不支援音訊播放。",
		UsageConsumed:  "耗用",
		UsagePoints:    "點",
		Suggestions:    []string{"解釋量子計算", "寫一個 Python 爬蟲", "比較 React 和 Vue", "創作一首關於雨的詩"},
		PromptLanguage: "Cantonese (Hong Kong)",
	},
	En: {
		NewChat:        "New Chat",
		ContextCleared: "Context memory cleared",
		Error:          "Connection error.",
		Thinking:       "Thinking Process",
		Copy:           "Copy",
		AudioFallback:  "Your browser does not support the audio element.",
		UsageConsumed:  "Used",
		UsagePoints:    "points",
		Suggestions:    []string{"Explain quantum computing", "Write a Python script", "Compare React vs Vue", "Write a poem about rain"},
		PromptLanguage: "English",
	},
}

// Parse returns lang if it is supported, Default otherwise.
func Parse(lang string) Language {
	l := Language(lang)
	if _, ok := table[l]; ok {
		return l
	}
	return Default
}

// For returns the strings of lang. The returned value is a copy.
func For(lang Language) Strings {
	s, ok := table[lang]
	if !ok {
		s = table[Default]
	}
	s.Suggestions = slices.Clone(s.Suggestions)
	return s
}
