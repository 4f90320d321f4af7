package stream

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/poe-chat/chatd/internal/store"
)

// GenAIContents shapes history for Gemini. Plain-text attachments are
// decoded and inlined as text; other attachments are sent as inline data.
func GenAIContents(history []store.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		var parts []genai.Part
		for _, a := range m.Attachments {
			data, err := base64.StdEncoding.DecodeString(a.Data)
			if err != nil {
				log.Printf("Dropping attachment %s: %v", a.Name, err)
				continue
			}
			if a.MimeType == "text/plain" {
				parts = append(parts, genai.Text(fmt.Sprintf("[File: %s]\n%s", a.Name, data)))
			} else {
				parts = append(parts, genai.Blob{MIMEType: a.MimeType, Data: data})
			}
		}
		if m.Text != "" {
			parts = append(parts, genai.Text(m.Text))
		}
		if len(parts) == 0 {
			parts = []genai.Part{genai.Text(" ")}
		}

		role := "user"
		if m.Role == store.RoleModel {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

// OpenGenAI streams a reply from Gemini. A client is created per call since
// the credential can change between calls.
func OpenGenAI(ctx context.Context, cfg Config, req Request) (Source, error) {
	if cfg.FallbackKey == "" {
		return nil, &TransportError{Message: "no Gemini API key configured"}
	}

	contents := GenAIContents(req.contextMessages())
	if len(contents) == 0 {
		return nil, errors.New("prompt history is empty for chat completion")
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return nil, errors.New("last message in history is not from 'user', cannot proceed with chat completion")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.FallbackKey))
	if err != nil {
		return nil, &TransportError{Message: fmt.Sprintf("failed to create GenAI client: %v", err)}
	}

	model := client.GenerativeModel(req.Model.FallbackModelID())
	if cfg.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(cfg.SystemInstruction)},
		}
	}
	if req.Params.WebSearch {
		// The Gemini Go client exposes no search grounding tool.
		log.Printf("Web search requested for %s; not available on the fallback backend", req.Model.ID)
	}

	chatSession := model.StartChat()
	chatSession.History = contents[:len(contents)-1]

	return &genaiSource{
		client: client,
		iter:   chatSession.SendMessageStream(ctx, last.Parts...),
	}, nil
}

type genaiSource struct {
	client *genai.Client
	iter   *genai.GenerateContentResponseIterator
}

func (g *genaiSource) Next() (string, error) {
	resp, err := g.iter.Next()
	if errors.Is(err, iterator.Done) {
		return "", io.EOF
	}
	if err != nil {
		return "", &TransportError{Message: err.Error()}
	}
	return responseText(resp), nil
}

func (g *genaiSource) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return text.String()
}
