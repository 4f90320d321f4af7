package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/poe-chat/chatd/internal/store"
)

const doneSentinel = "[DONE]"

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
	File     *filePart `json:"file,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type filePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type completionRequest struct {
	Model     string         `json:"model"`
	Messages  []chatMessage  `json:"messages"`
	Stream    bool           `json:"stream"`
	ExtraBody map[string]any `json:"extra_body,omitempty"`
}

func dataURL(a store.Attachment) string {
	return "data:" + a.MimeType + ";base64," + a.Data
}

// primaryMessages shapes history for the chat completions API: the system
// instruction first, then each eligible message. Messages with attachments
// become part arrays; text-only messages never have empty content.
func primaryMessages(systemInstruction string, history []store.Message) []chatMessage {
	out := []chatMessage{{Role: "system", Content: systemInstruction}}
	for _, m := range history {
		role := "user"
		if m.Role == store.RoleModel {
			role = "assistant"
		}

		if len(m.Attachments) == 0 {
			text := m.Text
			if text == "" {
				text = " "
			}
			out = append(out, chatMessage{Role: role, Content: text})
			continue
		}

		var parts []contentPart
		if m.Text != "" {
			parts = append(parts, contentPart{Type: "text", Text: m.Text})
		}
		for _, a := range m.Attachments {
			if strings.HasPrefix(a.MimeType, "image/") {
				parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: dataURL(a)}})
			} else {
				parts = append(parts, contentPart{Type: "file", File: &filePart{Filename: a.Name, FileData: dataURL(a)}})
			}
		}
		out = append(out, chatMessage{Role: role, Content: parts})
	}
	return out
}

func openPrimary(ctx context.Context, cfg Config, req Request) (Source, error) {
	body, err := json.Marshal(completionRequest{
		Model:     req.Model.ID,
		Messages:  primaryMessages(cfg.SystemInstruction, req.contextMessages()),
		Stream:    true,
		ExtraBody: req.Params.ExtraBody(req.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	url := strings.TrimRight(cfg.PrimaryBaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.PrimaryKey)

	resp, err := cfg.httpClient().Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrAborted
		}
		return nil, &TransportError{Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, upstreamError(resp)
	}

	return &sseSource{body: resp.Body, events: newEventReader(resp.Body)}, nil
}

// upstreamError prefers the provider's error.message over the status text.
func upstreamError(resp *http.Response) *TransportError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := gjson.GetBytes(raw, "error.message").String()
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return &TransportError{Status: resp.StatusCode, Message: msg}
}

type sseSource struct {
	body   io.ReadCloser
	events *eventReader
}

func (s *sseSource) Next() (string, error) {
	for {
		data, err := s.events.ReadData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", fmt.Errorf("failed to read event stream: %w", err)
		}

		payload := string(data)
		if payload == doneSentinel {
			return "", io.EOF
		}
		if !gjson.Valid(payload) {
			log.Printf("Skipping stream event: %v", &ParseError{Payload: payload, Err: errors.New("invalid JSON")})
			continue
		}
		return gjson.Get(payload, "choices.0.delta.content").String(), nil
	}
}

func (s *sseSource) Close() error {
	return s.body.Close()
}
