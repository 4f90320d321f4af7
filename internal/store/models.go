package store

type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64 payload
}

type UsageMetadata struct {
	Points    float64 `json:"points"`
	AppName   string  `json:"appName"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

type Message struct {
	ID                 string         `json:"id"`
	Role               Role           `json:"role"`
	Text               string         `json:"text"`
	Timestamp          int64          `json:"timestamp"` // unix milliseconds
	Attachments        []Attachment   `json:"attachments,omitempty"`
	ModelID            string         `json:"modelId,omitempty"`
	Usage              *UsageMetadata `json:"usage,omitempty"`
	ExcludeFromContext bool           `json:"excludeFromContext,omitempty"`
	IsContextDivider   bool           `json:"isContextDivider,omitempty"`
	IsError            bool           `json:"isError,omitempty"`
}

// InContext reports whether the message is sent to a backend as history.
func (m Message) InContext() bool {
	return m.Role != RoleSystem && !m.ExcludeFromContext && !m.IsContextDivider && !m.IsError
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	ModelID   string    `json:"modelId"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// Fixed keys of the persisted state.
const (
	KeySessions          = "chat_sessions"
	KeyTheme             = "theme_mode"
	KeyLanguage          = "app_language"
	KeySystemInstruction = "gemini_system_instruction"
	KeyUsePrimary        = "use_poe_api"
	KeyPrimaryAPIKey     = "poe_api_key"
)
