package catalog

// ModelParameters carries every optional parameter the UI can set. Fields the
// selected model does not support are ignored by ExtraBody.
type ModelParameters struct {
	WebSearch     bool          `json:"webSearch"`
	ThinkingLevel ThinkingLevel `json:"thinkingLevel,omitempty"`

	ImageSize   string `json:"imageSize,omitempty"`
	ImageOnly   bool   `json:"imageOnly,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`

	TTSLanguage string   `json:"ttsLanguage,omitempty"`
	TTSEmotion  string   `json:"ttsEmotion,omitempty"`
	TTSSpeed    *float64 `json:"ttsSpeed,omitempty"`
	TTSVolume   *float64 `json:"ttsVolume,omitempty"`
	TTSPitch    *float64 `json:"ttsPitch,omitempty"`
	TTSVoice    string   `json:"ttsVoice,omitempty"`
	TTSHD       *bool    `json:"ttsHd,omitempty"`
}

// RegenerateParameters are used when a reply is regenerated; the original
// parameters of the turn are not stored.
func RegenerateParameters() ModelParameters {
	return ModelParameters{WebSearch: false, ThinkingLevel: ThinkingLow}
}

// ExtraBody builds the capability-gated extra_body object for the primary
// backend. It returns nil when nothing applies.
func (p ModelParameters) ExtraBody(m ModelConfig) map[string]any {
	extra := map[string]any{}

	if p.WebSearch {
		extra["web_search"] = true
	}

	if p.ThinkingLevel != "" && m.AllowsThinkingLevel(p.ThinkingLevel) {
		extra["thinking_level"] = string(p.ThinkingLevel)
	}

	if m.SupportsImageOptions {
		if p.ImageSize != "" {
			extra["image_size"] = p.ImageSize
		}
		if p.ImageOnly {
			extra["image_only"] = true
		}
		if p.AspectRatio != "" {
			extra["aspect_ratio"] = p.AspectRatio
		}
	}

	if m.SupportsTTS {
		if p.TTSLanguage != "" && p.TTSLanguage != "auto" {
			extra["language"] = p.TTSLanguage
		}
		if p.TTSEmotion != "" && p.TTSEmotion != "None" {
			extra["emotion"] = p.TTSEmotion
		}
		if p.TTSSpeed != nil {
			extra["speed"] = *p.TTSSpeed
		}
		if p.TTSVolume != nil {
			extra["volume"] = *p.TTSVolume
		}
		if p.TTSPitch != nil {
			extra["pitch"] = *p.TTSPitch
		}
		if p.TTSVoice != "" {
			extra["voice"] = p.TTSVoice
		}
		if p.TTSHD != nil {
			extra["hd"] = *p.TTSHD
		}
	}

	if len(extra) == 0 {
		return nil
	}
	return extra
}
