package core

import (
	"errors"
	"slices"

	"github.com/poe-chat/chatd/internal/store"
)

// ErrNotRegenerable is returned when the message before a reply is not a
// user message.
var ErrNotRegenerable = errors.New("message has no preceding user message")

// Draft is what an edited message hands back to the input box.
type Draft struct {
	Text        string             `json:"text"`
	Attachments []store.Attachment `json:"attachments,omitempty"`
}

// ClearContext excludes every message so far and appends divider.
func ClearContext(msgs []store.Message, divider store.Message) []store.Message {
	out := make([]store.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		m.ExcludeFromContext = true
		out = append(out, m)
	}
	divider.Role = store.RoleSystem
	divider.IsContextDivider = true
	divider.ExcludeFromContext = true
	return append(out, divider)
}

// UndoClear removes the divider and restores the messages before it, back to
// the start or the previous divider. An unknown divider is a no-op.
func UndoClear(msgs []store.Message, dividerID string) ([]store.Message, bool) {
	i := indexOfMessage(msgs, dividerID)
	if i < 0 || !msgs[i].IsContextDivider {
		return msgs, false
	}
	out := slices.Delete(slices.Clone(msgs), i, i+1)
	for j := i - 1; j >= 0; j-- {
		if out[j].IsContextDivider {
			break
		}
		out[j].ExcludeFromContext = false
	}
	return out, true
}

// Eligible returns the messages that are sent as history, in order.
func Eligible(msgs []store.Message) []store.Message {
	var out []store.Message
	for _, m := range msgs {
		if m.InContext() {
			out = append(out, m)
		}
	}
	return out
}

// TruncateForEdit drops the message and everything after it.
func TruncateForEdit(msgs []store.Message, messageID string) ([]store.Message, Draft, error) {
	i := indexOfMessage(msgs, messageID)
	if i < 0 {
		return msgs, Draft{}, ErrMessageNotFound
	}
	m := msgs[i]
	return slices.Clone(msgs[:i]), Draft{Text: m.Text, Attachments: m.Attachments}, nil
}

// TruncateForRegenerate drops the reply and the user message before it, and
// returns that user message for resubmission.
func TruncateForRegenerate(msgs []store.Message, messageID string) ([]store.Message, store.Message, error) {
	i := indexOfMessage(msgs, messageID)
	if i < 0 {
		return msgs, store.Message{}, ErrMessageNotFound
	}
	if i == 0 || msgs[i-1].Role != store.RoleUser {
		return msgs, store.Message{}, ErrNotRegenerable
	}
	return slices.Clone(msgs[:i-1]), msgs[i-1], nil
}
