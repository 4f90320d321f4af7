package stream

import (
	"net/http"

	"github.com/poe-chat/chatd/internal/catalog"
	"github.com/poe-chat/chatd/internal/store"
)

type Backend string

const (
	BackendPrimary  Backend = "primary"
	BackendFallback Backend = "fallback"
)

// BackendChoice is decided once per call by the caller.
type BackendChoice struct {
	Backend Backend `json:"backend"`
	Reason  string  `json:"reason,omitempty"`
}

// Choose picks the primary backend when it is enabled and has a credential.
func Choose(usePrimary bool, primaryKey string) BackendChoice {
	switch {
	case !usePrimary:
		return BackendChoice{Backend: BackendFallback, Reason: "primary backend disabled"}
	case primaryKey == "":
		return BackendChoice{Backend: BackendFallback, Reason: "no primary credential"}
	default:
		return BackendChoice{Backend: BackendPrimary}
	}
}

// Config carries everything a call needs. Nothing is read from ambient
// state inside this package.
type Config struct {
	Choice            BackendChoice
	PrimaryKey        string
	PrimaryBaseURL    string
	UsageURL          string
	FallbackKey       string
	SystemInstruction string
	HTTPClient        *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Request is one chat completion: the history to send, ending with the
// new user turn, plus the selected model and its parameters.
type Request struct {
	Model   catalog.ModelConfig
	History []store.Message
	Params  catalog.ModelParameters
}

// contextMessages filters history down to what a backend may see.
func (r Request) contextMessages() []store.Message {
	out := make([]store.Message, 0, len(r.History))
	for _, m := range r.History {
		if m.InContext() {
			out = append(out, m)
		}
	}
	return out
}
