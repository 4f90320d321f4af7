package core

import (
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poe-chat/chatd/internal/catalog"
	"github.com/poe-chat/chatd/internal/config"
	"github.com/poe-chat/chatd/internal/format"
	"github.com/poe-chat/chatd/internal/locale"
	"github.com/poe-chat/chatd/internal/store"
	"github.com/poe-chat/chatd/internal/stream"
)

// ErrBusy is returned by Regenerate while the session is still streaming.
var ErrBusy = errors.New("session is busy")

// Observer receives every new or changed message of a send, in order.
type Observer func(msg store.Message)

type SendRequest struct {
	SessionID   string                  `json:"sessionId"`
	Text        string                  `json:"text"`
	Attachments []store.Attachment      `json:"attachments"`
	ModelID     string                  `json:"modelId"`
	Params      catalog.ModelParameters `json:"params"`
}

type SendResult struct {
	SessionID      string         `json:"sessionId"`
	UserMessageID  string         `json:"userMessageId"`
	ModelMessageID string         `json:"modelMessageId"`
	Aborted        bool           `json:"aborted,omitempty"`
	Error          *store.Message `json:"error,omitempty"`
}

type run struct {
	cancel context.CancelFunc
}

type ChatService struct {
	conversations *ConversationStore
	settings      *SettingsService
	models        *catalog.Catalog
	normalizer    *stream.Normalizer
	llmService    *LLMService

	usageDelay     time.Duration
	requestTimeout time.Duration
	debug          bool

	mu   sync.Mutex
	runs map[string]*run // latest send per session

	baseCtx    context.Context
	cancelBase context.CancelFunc
	bg         sync.WaitGroup
}

func NewChatService(conversations *ConversationStore, settings *SettingsService, models *catalog.Catalog,
	normalizer *stream.Normalizer, llm *LLMService, cfg *config.Config) *ChatService {
	ctx, cancel := context.WithCancel(context.Background())
	return &ChatService{
		conversations:  conversations,
		settings:       settings,
		models:         models,
		normalizer:     normalizer,
		llmService:     llm,
		usageDelay:     cfg.UsageDelay,
		requestTimeout: cfg.RequestTimeout,
		debug:          cfg.Debug(),
		runs:           make(map[string]*run),
		baseCtx:        ctx,
		cancelBase:     cancel,
	}
}

// Close stops background work (title, usage) and waits for it.
func (s *ChatService) Close() {
	s.cancelBase()
	s.bg.Wait()
}

func (s *ChatService) background(fn func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(s.baseCtx)
	}()
}

func (s *ChatService) localized() locale.Strings {
	return locale.For(s.settings.Language())
}

func (s *ChatService) resolveModel(id string) catalog.ModelConfig {
	if id == "" {
		return s.models.DefaultModel()
	}
	m, _ := s.models.Lookup(id)
	return m
}

// NewSession creates and selects an empty session titled "New Chat" in the
// current language.
func (s *ChatService) NewSession(modelID string) store.Session {
	return s.conversations.CreateSession(s.resolveModel(modelID).ID, s.localized().NewChat)
}

// Loading reports whether a send is in flight for the session.
func (s *ChatService) Loading(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[sessionID]
	return ok
}

// Stop cancels the latest send of the session. Text already streamed is kept.
func (s *ChatService) Stop(sessionID string) bool {
	s.mu.Lock()
	r, ok := s.runs[sessionID]
	delete(s.runs, sessionID)
	s.mu.Unlock()
	if ok {
		r.cancel()
	}
	return ok
}

// startRun registers a cancellable send. A newer send replaces the stop
// handle without cancelling the older stream. With exclusive set, nothing is
// registered and ok is false while another send of the session is running.
func (s *ChatService) startRun(ctx context.Context, sessionID string, exclusive bool) (runCtx context.Context, done func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.runs[sessionID]; busy && exclusive {
		return nil, nil, false
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel}
	s.runs[sessionID] = r

	return runCtx, func() {
		s.mu.Lock()
		if s.runs[sessionID] == r {
			delete(s.runs, sessionID)
		}
		s.mu.Unlock()
		cancel()
	}, true
}

// Send appends the user message, streams the reply into a new model message
// and reports every change to observe. Without a session id the active
// session is used, and a new one is created only when none is active.
// Backend failures do not return an error: they become an error-flagged
// message in the session.
func (s *ChatService) Send(ctx context.Context, req SendRequest, observe Observer) (SendResult, error) {
	if req.SessionID == "" {
		if active, ok := s.conversations.Active(); ok {
			req.SessionID = active.ID
		} else {
			req.SessionID = s.NewSession(req.ModelID).ID
		}
	}

	runCtx, done, _ := s.startRun(ctx, req.SessionID, false)
	defer done()
	return s.send(runCtx, req, observe, true)
}

// send runs one exchange. ctx belongs to a run registered by the caller.
func (s *ChatService) send(ctx context.Context, req SendRequest, observe Observer, allowTitle bool) (SendResult, error) {
	if observe == nil {
		observe = func(store.Message) {}
	}
	model := s.resolveModel(req.ModelID)
	sessionID := req.SessionID

	userMsg := store.Message{
		ID:          uuid.New().String(),
		Role:        store.RoleUser,
		Text:        req.Text,
		Timestamp:   time.Now().UnixMilli(),
		Attachments: req.Attachments,
	}

	var (
		history      []store.Message
		firstMessage bool
	)
	err := s.conversations.UpdateSession(sessionID, func(session *store.Session) error {
		firstMessage = len(session.Messages) == 0
		session.ModelID = model.ID
		session.Messages = append(session.Messages, userMsg)
		session.UpdatedAt = userMsg.Timestamp
		history = slices.Clone(session.Messages)
		return nil
	})
	if err != nil {
		return SendResult{}, err
	}
	observe(userMsg)

	bc := s.settings.BackendConfig()
	if firstMessage && allowTitle {
		s.background(func(ctx context.Context) {
			s.generateAndSaveTitle(ctx, bc, sessionID, req.Text)
		})
	}

	botMsg := store.Message{
		ID:        uuid.New().String(),
		Role:      store.RoleModel,
		Timestamp: time.Now().UnixMilli(),
		ModelID:   model.ID,
	}
	if err := s.conversations.AppendMessage(sessionID, botMsg); err != nil {
		return SendResult{}, err
	}
	observe(botMsg)

	result := SendResult{SessionID: sessionID, UserMessageID: userMsg.ID, ModelMessageID: botMsg.ID}

	streamReq := stream.Request{Model: model, History: history, Params: req.Params}
	err = s.streamReply(ctx, bc, streamReq, sessionID, botMsg.ID, observe)
	switch {
	case err == nil:
		if bc.Choice.Backend == stream.BackendPrimary {
			s.background(func(ctx context.Context) {
				s.mergeUsage(ctx, bc, sessionID, botMsg.ID)
			})
		}
	case errors.Is(err, stream.ErrAborted):
		result.Aborted = true
	default:
		log.Printf("Chat request failed for session %s: %v", sessionID, err)
		errMsg := s.appendError(sessionID, model.ID, err)
		if errMsg != nil {
			observe(*errMsg)
		}
		result.Error = errMsg
	}
	return result, nil
}

func (s *ChatService) streamReply(ctx context.Context, bc stream.Config, req stream.Request,
	sessionID, messageID string, observe Observer) error {
	st, err := s.normalizer.Open(ctx, bc, req)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("Error closing stream for session %s: %v", sessionID, err)
		}
	}()

	for st.Next() {
		text := StabilizeThinking(st.Current())
		msg, err := s.conversations.UpdateMessage(sessionID, messageID, func(m *store.Message) {
			m.Text = text
		})
		if err != nil {
			// Deleted or truncated meanwhile; keep draining so the backend call completes.
			continue
		}
		if s.debug {
			log.Printf("Snapshot for %s/%s: %d bytes", sessionID, messageID, len(text))
		}
		observe(msg)
	}
	return st.Err()
}

func (s *ChatService) appendError(sessionID, modelID string, err error) *store.Message {
	text := s.localized().Error
	if msg := err.Error(); msg != "" {
		text = "API Error: " + msg
	}
	errMsg := store.Message{
		ID:        uuid.New().String(),
		Role:      store.RoleModel,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		IsError:   true,
		ModelID:   modelID,
	}
	if err := s.conversations.AppendMessage(sessionID, errMsg); err != nil {
		log.Printf("Failed to record error message for session %s: %v", sessionID, err)
		return nil
	}
	return &errMsg
}

// StabilizeThinking keeps only the last thinking section when a snapshot
// repeats the marker.
func StabilizeThinking(text string) string {
	parts := strings.Split(text, format.ThinkingMarker)
	if len(parts) > 2 {
		return format.ThinkingMarker + parts[len(parts)-1]
	}
	return text
}

func (s *ChatService) generateAndSaveTitle(ctx context.Context, bc stream.Config, sessionID, firstMessage string) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	title, err := s.llmService.GenerateTitle(ctx, bc, firstMessage)
	if err != nil {
		log.Printf("Failed to generate title for session %s: %v", sessionID, err)
		return
	}
	err = s.conversations.UpdateSession(sessionID, func(session *store.Session) error {
		session.Title = title
		return nil
	})
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		log.Printf("Failed to save title for session %s: %v", sessionID, err)
	}
}

func (s *ChatService) mergeUsage(ctx context.Context, bc stream.Config, sessionID, messageID string) {
	select {
	case <-time.After(s.usageDelay):
	case <-ctx.Done():
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	usage, err := stream.FetchUsage(ctx, bc)
	if err != nil {
		log.Printf("Failed to fetch usage: %v", err)
		return
	}
	if usage == nil {
		return
	}
	_, err = s.conversations.UpdateMessage(sessionID, messageID, func(m *store.Message) {
		m.Usage = usage
	})
	if err != nil && s.debug {
		log.Printf("Usage for %s/%s dropped: %v", sessionID, messageID, err)
	}
}

// Regenerate drops a reply and its prompt, then resubmits the prompt with
// default parameters.
func (s *ChatService) Regenerate(ctx context.Context, sessionID, messageID string, observe Observer) (SendResult, error) {
	// Claimed before truncating so concurrent regenerates cannot both pass.
	runCtx, done, ok := s.startRun(ctx, sessionID, true)
	if !ok {
		return SendResult{}, ErrBusy
	}
	defer done()

	session, found := s.conversations.Session(sessionID)
	if !found {
		return SendResult{}, ErrSessionNotFound
	}

	var prompt store.Message
	err := s.conversations.ReplaceMessages(sessionID, func(msgs []store.Message) ([]store.Message, error) {
		out, prev, err := TruncateForRegenerate(msgs, messageID)
		prompt = prev
		return out, err
	})
	if err != nil {
		return SendResult{}, err
	}

	return s.send(runCtx, SendRequest{
		SessionID:   sessionID,
		Text:        prompt.Text,
		Attachments: prompt.Attachments,
		ModelID:     session.ModelID,
		Params:      catalog.RegenerateParameters(),
	}, observe, false)
}

// Edit truncates the session before the message and returns its content.
func (s *ChatService) Edit(sessionID, messageID string) (Draft, error) {
	var draft Draft
	err := s.conversations.ReplaceMessages(sessionID, func(msgs []store.Message) ([]store.Message, error) {
		out, d, err := TruncateForEdit(msgs, messageID)
		draft = d
		return out, err
	})
	return draft, err
}

// ClearContext excludes the history so far and returns the divider.
func (s *ChatService) ClearContext(sessionID string) (store.Message, error) {
	divider := store.Message{
		ID:        uuid.New().String(),
		Text:      s.localized().ContextCleared,
		Timestamp: time.Now().UnixMilli(),
	}
	var added store.Message
	err := s.conversations.ReplaceMessages(sessionID, func(msgs []store.Message) ([]store.Message, error) {
		out := ClearContext(msgs, divider)
		added = out[len(out)-1]
		return out, nil
	})
	return added, err
}

// UndoClearContext reverses a clear. An unknown divider is ignored.
func (s *ChatService) UndoClearContext(sessionID, dividerID string) error {
	return s.conversations.ReplaceMessages(sessionID, func(msgs []store.Message) ([]store.Message, error) {
		out, _ := UndoClear(msgs, dividerID)
		return out, nil
	})
}

// Suggestions returns fresh conversation starters, or the localized
// defaults when generation fails.
func (s *ChatService) Suggestions(ctx context.Context) []string {
	lang := s.settings.Language()
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	suggestions, err := s.llmService.GenerateSuggestions(ctx, s.settings.BackendConfig(), lang)
	if err != nil {
		log.Printf("Failed to generate suggestions: %v", err)
	}
	if len(suggestions) == 0 {
		return locale.For(lang).Suggestions
	}
	return suggestions
}
