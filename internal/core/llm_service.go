package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/openai/openai-go"
	oaioption "github.com/openai/openai-go/option"
	"google.golang.org/api/option"

	"github.com/poe-chat/chatd/internal/config"
	"github.com/poe-chat/chatd/internal/locale"
	"github.com/poe-chat/chatd/internal/stream"
	"github.com/poe-chat/chatd/internal/utils"
)

const (
	titleSystemInstruction = "Generate a 3-5 word title. No quotes."
	fallbackTitlePrompt    = "Generate a short title (3-5 words) for this chat message. Do not use quotes. Message: %s"
	suggestionsPrompt      = "Generate 4 short, engaging, and diverse conversation starters or tasks for an AI chatbot. " +
		"Return ONLY the 4 lines of text, no numbering, no preamble. Language: %s"

	maxSuggestions = 4
)

// fallbackGenerator runs a single-shot prompt on the fallback backend.
type fallbackGenerator func(ctx context.Context, apiKey, model, prompt string) (string, error)

// LLMService runs the small one-shot calls: chat titles and suggestions.
// Both use the same backend selection as the chat itself.
type LLMService struct {
	utilityModel         string
	fallbackUtilityModel string
	httpClient           *http.Client
	fallback             fallbackGenerator
}

func NewLLMService(cfg *config.Config) *LLMService {
	return &LLMService{
		utilityModel:         cfg.UtilityModel,
		fallbackUtilityModel: cfg.FallbackUtilityModel,
		httpClient:           &http.Client{Timeout: cfg.RequestTimeout},
		fallback:             generateWithGenAI,
	}
}

// GenerateTitle names a chat after its first message. The result is capped
// at 40 characters.
func (s *LLMService) GenerateTitle(ctx context.Context, bc stream.Config, firstMessage string) (string, error) {
	var (
		title string
		err   error
	)
	if bc.Choice.Backend == stream.BackendPrimary {
		title, err = s.completePrimary(ctx, bc,
			openai.SystemMessage(titleSystemInstruction),
			openai.UserMessage(firstMessage),
		)
	} else {
		title, err = s.fallback(ctx, bc.FallbackKey, s.fallbackUtilityModel, fmt.Sprintf(fallbackTitlePrompt, firstMessage))
	}
	if err != nil {
		return "", fmt.Errorf("title generation failed: %w", err)
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("LLM generated an empty title string")
	}
	return utils.TruncateTitle(title), nil
}

// GenerateSuggestions returns up to four conversation starters in lang.
func (s *LLMService) GenerateSuggestions(ctx context.Context, bc stream.Config, lang locale.Language) ([]string, error) {
	prompt := fmt.Sprintf(suggestionsPrompt, locale.For(lang).PromptLanguage)

	var (
		text string
		err  error
	)
	if bc.Choice.Backend == stream.BackendPrimary {
		text, err = s.completePrimary(ctx, bc, openai.UserMessage(prompt))
	} else {
		text, err = s.fallback(ctx, bc.FallbackKey, s.fallbackUtilityModel, prompt)
	}
	if err != nil {
		return nil, fmt.Errorf("suggestion generation failed: %w", err)
	}
	return utils.SuggestionLines(text, maxSuggestions), nil
}

func (s *LLMService) completePrimary(ctx context.Context, bc stream.Config, msgs ...openai.ChatCompletionMessageParamUnion) (string, error) {
	client := openai.NewClient(
		oaioption.WithAPIKey(bc.PrimaryKey),
		oaioption.WithBaseURL(bc.PrimaryBaseURL),
		oaioption.WithHTTPClient(s.httpClient),
		oaioption.WithMaxRetries(0),
	)

	resp, err := client.Chat.Completions.New(ctx,
		openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(s.utilityModel),
			Messages: msgs,
		},
		oaioption.WithJSONSet("extra_body", map[string]any{"thinking_level": "minimal"}),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func generateWithGenAI(ctx context.Context, apiKey, model, prompt string) (string, error) {
	if apiKey == "" {
		return "", errors.New("no Gemini API key configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create GenAI client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}()

	resp, err := client.GenerativeModel(model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return text.String(), nil
}
