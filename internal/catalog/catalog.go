// Package catalog holds the static model catalog. Each entry declares which
// optional parameters the model accepts; the API layer and the stream
// normalizer both consult it before surfacing or sending a parameter.
package catalog

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

type ThinkingLevel string

const (
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingHigh    ThinkingLevel = "high"
)

const DefaultFallbackModel = "gemini-3-flash-preview"

type ModelConfig struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	IsPro       bool     `yaml:"is_pro" json:"isPro"`
	Labels      []string `yaml:"capabilities" json:"capabilities"`

	SupportsThinking      bool            `yaml:"supports_thinking" json:"supportsThinking,omitempty"`
	AllowedThinkingLevels []ThinkingLevel `yaml:"allowed_thinking_levels" json:"allowedThinkingLevels,omitempty"`
	SupportsImageOptions  bool            `yaml:"supports_image_options" json:"supportsImageOptions,omitempty"`
	SupportsTTS           bool            `yaml:"supports_tts" json:"supportsTTS,omitempty"`

	// Model used when the request is routed to the fallback backend.
	FallbackModel string `yaml:"fallback_model" json:"-"`
}

func (m ModelConfig) AllowsThinkingLevel(level ThinkingLevel) bool {
	return m.SupportsThinking && slices.Contains(m.AllowedThinkingLevels, level)
}

func (m ModelConfig) FallbackModelID() string {
	if m.FallbackModel != "" {
		return m.FallbackModel
	}
	return DefaultFallbackModel
}

type Catalog struct {
	models []ModelConfig
}

func New(models []ModelConfig) *Catalog {
	return &Catalog{models: slices.Clone(models)}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return New(defaultModels)
}

// LoadFile reads a YAML list of models. An empty path yields the default catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read models file %s: %w", path, err)
	}
	var doc struct {
		Models []ModelConfig `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse models file %s: %w", path, err)
	}
	if len(doc.Models) == 0 {
		return nil, fmt.Errorf("models file %s declares no models", path)
	}
	return New(doc.Models), nil
}

func (c *Catalog) Models() []ModelConfig {
	return slices.Clone(c.models)
}

// Lookup returns the entry for id. Unknown ids get a bare entry with no
// optional capabilities so that only web search can be sent for them.
func (c *Catalog) Lookup(id string) (ModelConfig, bool) {
	for _, m := range c.models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelConfig{ID: id, Name: id}, false
}

// DefaultModel is the first catalog entry.
func (c *Catalog) DefaultModel() ModelConfig {
	if len(c.models) == 0 {
		return ModelConfig{ID: DefaultFallbackModel, Name: DefaultFallbackModel}
	}
	return c.models[0]
}

var defaultModels = []ModelConfig{
	{
		ID:                    "gemini-3-flash",
		Name:                  "Gemini 3 Flash",
		Description:           "Google's latest fast multimodal model.",
		Labels:                []string{"Fast", "Vision"},
		SupportsThinking:      true,
		AllowedThinkingLevels: []ThinkingLevel{ThinkingMinimal, ThinkingLow, ThinkingHigh},
		FallbackModel:         "gemini-3-flash-preview",
	},
	{
		ID:                    "gemini-3-pro",
		Name:                  "Gemini 3 Pro",
		Description:           "Google's advanced reasoning model.",
		IsPro:                 true,
		Labels:                []string{"Reasoning", "Complex Tasks"},
		SupportsThinking:      true,
		AllowedThinkingLevels: []ThinkingLevel{ThinkingLow, ThinkingHigh},
		FallbackModel:         "gemini-3-pro-preview",
	},
	{
		ID:            "gpt-5.2-instant",
		Name:          "GPT-5.2 Instant",
		Description:   "Latest instant model.",
		IsPro:         true,
		Labels:        []string{"Web Search", "Analysis"},
		FallbackModel: "gemini-3-flash-preview",
	},
	{
		ID:            "gpt-5-nano",
		Name:          "GPT-5 Nano",
		Description:   "Lightweight efficient model.",
		Labels:        []string{"Fast", "Lightweight"},
		FallbackModel: "gemini-3-flash-preview",
	},
	{
		ID:                   "nano-banana-pro",
		Name:                 "Nano Banana Pro",
		Description:          "Advanced multimodal image model.",
		IsPro:                true,
		Labels:               []string{"Vision", "Generation"},
		SupportsImageOptions: true,
		FallbackModel:        "gemini-3-pro-image-preview",
	},
	{
		ID:          "hailuo-speech-02",
		Name:        "Hailuo Speech 02",
		Description: "High-fidelity text-to-speech model.",
		IsPro:       true,
		Labels:      []string{"Audio", "TTS"},
		SupportsTTS: true,
	},
}

// Parameter value sets surfaced to the settings form.
var (
	ImageSizes   = []string{"1K", "2K", "4K"}
	AspectRatios = []string{"21:9", "16:9", "4:3", "1:1", "3:4", "9:16", "2:3", "3:2", "4:5", "5:4"}
	TTSVoices    = []string{
		"Wise_Woman", "Friendly_Person", "Inspirational_Girl", "Deep_Voice_Man",
		"Calm_Woman", "Casual_Guy", "Lively_Girl", "Patient_Man", "Young_Knight",
		"Determined_Man", "Lovely_Girl", "Decent_Boy", "Imposing_Manner",
		"Elegant_Man", "Abbess", "Sweet_Girl_2", "Exuberant_Girl",
	}
	TTSEmotions  = []string{"None", "happy", "sad", "angry", "fearful", "disgusted", "surprised", "neutral"}
	TTSLanguages = []string{
		"auto", "Chinese", "Chinese,Yue", "English", "Arabic", "Russian", "Spanish",
		"French", "Portuguese", "German", "Turkish", "Dutch", "Ukrainian",
		"Vietnamese", "Indonesian", "Japanese", "Italian", "Korean", "Thai",
		"Polish", "Romanian", "Greek", "Czech", "Finnish", "Hindi",
	}
)
