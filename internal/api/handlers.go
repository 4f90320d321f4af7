package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/poe-chat/chatd/internal/catalog"
	"github.com/poe-chat/chatd/internal/core"
	"github.com/poe-chat/chatd/internal/format"
	"github.com/poe-chat/chatd/internal/locale"
	"github.com/poe-chat/chatd/internal/store"
)

type APIHandler struct {
	chatService   *core.ChatService
	conversations *core.ConversationStore
	settings      *core.SettingsService
	models        *catalog.Catalog
}

func NewAPIHandler(cs *core.ChatService, conversations *core.ConversationStore, settings *core.SettingsService, models *catalog.Catalog) *APIHandler {
	return &APIHandler{
		chatService:   cs,
		conversations: conversations,
		settings:      settings,
		models:        models,
	}
}

// writeError maps service errors to status codes. Unexpected errors are
// logged and reported as 500 with a generic message.
func writeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrMessageNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, core.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, core.ErrNotRegenerable):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Error trying to %s: %v", action, err)
		http.Error(w, "Failed to "+action, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func (h *APIHandler) ListModelsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.models.Models())
}

type ListSessionsResponse struct {
	Sessions        []store.Session `json:"sessions"`
	ActiveSessionID string          `json:"activeSessionId,omitempty"`
}

func (h *APIHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	resp := ListSessionsResponse{Sessions: h.conversations.Sessions()}
	if resp.Sessions == nil {
		resp.Sessions = []store.Session{}
	}
	if active, ok := h.conversations.Active(); ok {
		resp.ActiveSessionID = active.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

type CreateSessionRequest struct {
	ModelID string `json:"modelId"`
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, http.StatusCreated, h.chatService.NewSession(req.ModelID))
}

type SessionResponse struct {
	store.Session
	Loading bool `json:"loading"`
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, ok := h.conversations.Session(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Session: session, Loading: h.chatService.Loading(sessionID)})
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	h.chatService.Stop(sessionID)
	if err := h.conversations.DeleteSession(sessionID); err != nil {
		writeError(w, err, "delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) SelectSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.conversations.SelectSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err, "select session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// streamSend runs send and reports its messages as SSE "message" events,
// then a final "done" or "error" event.
func (h *APIHandler) streamSend(w http.ResponseWriter, action string,
	send func(observe core.Observer) (core.SendResult, error)) {
	events, ok := newEventWriter(w)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	observe := func(msg store.Message) {
		if err := events.send("message", msg); err != nil {
			log.Printf("Error writing stream event: %v", err)
		}
	}

	result, err := send(observe)
	if err != nil {
		if !events.started {
			writeError(w, err, action)
			return
		}
		_ = events.send("error", map[string]string{"error": err.Error()})
		return
	}

	event := "done"
	if result.Error != nil {
		event = "error"
	}
	if err := events.send(event, result); err != nil {
		log.Printf("Error writing final stream event: %v", err)
	}
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req core.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Text == "" && len(req.Attachments) == 0 {
		http.Error(w, "Message text or attachments are required", http.StatusBadRequest)
		return
	}
	if req.SessionID != "" {
		if _, ok := h.conversations.Session(req.SessionID); !ok {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
	}

	// A dropped connection does not abort the reply; only the stop endpoint does.
	ctx := context.WithoutCancel(r.Context())
	h.streamSend(w, "send message", func(observe core.Observer) (core.SendResult, error) {
		return h.chatService.Send(ctx, req, observe)
	})
}

func (h *APIHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	stopped := h.chatService.Stop(chi.URLParam(r, "sessionID"))
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (h *APIHandler) ClearContextHandler(w http.ResponseWriter, r *http.Request) {
	divider, err := h.chatService.ClearContext(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err, "clear context")
		return
	}
	writeJSON(w, http.StatusCreated, divider)
}

func (h *APIHandler) UndoClearHandler(w http.ResponseWriter, r *http.Request) {
	err := h.chatService.UndoClearContext(chi.URLParam(r, "sessionID"), chi.URLParam(r, "dividerID"))
	if err != nil {
		writeError(w, err, "undo clear context")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) EditMessageHandler(w http.ResponseWriter, r *http.Request) {
	draft, err := h.chatService.Edit(chi.URLParam(r, "sessionID"), chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, err, "edit message")
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (h *APIHandler) RegenerateHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messageID := chi.URLParam(r, "messageID")

	ctx := context.WithoutCancel(r.Context())
	h.streamSend(w, "regenerate message", func(observe core.Observer) (core.SendResult, error) {
		return h.chatService.Regenerate(ctx, sessionID, messageID, observe)
	})
}

type RenderResponse struct {
	Blocks []format.Block `json:"blocks"`
	Usage  string         `json:"usage,omitempty"`
}

func (h *APIHandler) RenderMessageHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.conversations.Session(chi.URLParam(r, "sessionID"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	messageID := chi.URLParam(r, "messageID")
	for _, msg := range session.Messages {
		if msg.ID != messageID {
			continue
		}
		strs := locale.For(h.settings.Language())
		labels := format.Labels{Thinking: strs.Thinking, Copy: strs.Copy, AudioFallback: strs.AudioFallback}
		blocks := format.Format(msg.Text, labels)
		if blocks == nil {
			blocks = []format.Block{}
		}
		writeJSON(w, http.StatusOK, RenderResponse{Blocks: blocks, Usage: usageLabel(msg.Usage, strs)})
		return
	}
	http.Error(w, "Message not found", http.StatusNotFound)
}

// usageLabel renders e.g. "Used 1,250 points · Gemini-3-Flash · 2 minutes ago".
func usageLabel(u *store.UsageMetadata, strs locale.Strings) string {
	if u == nil {
		return ""
	}
	label := fmt.Sprintf("%s %s %s", strs.UsageConsumed, humanize.Commaf(u.Points), strs.UsagePoints)
	if u.AppName != "" {
		label += " · " + u.AppName
	}
	if u.Timestamp > 0 {
		label += " · " + humanize.Time(time.UnixMilli(u.Timestamp))
	}
	return label
}

func (h *APIHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Get())
}

func (h *APIHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req core.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	settings, err := h.settings.Update(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *APIHandler) SuggestionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"suggestions": h.chatService.Suggestions(r.Context())})
}
