package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poe-chat/chatd/internal/catalog"
	"github.com/poe-chat/chatd/internal/config"
	"github.com/poe-chat/chatd/internal/store"
	"github.com/poe-chat/chatd/internal/stream"
)

func testConfig() *config.Config {
	return &config.Config{
		GeminiAPIKey:         "g-key",
		RequestTimeout:       5 * time.Second,
		DefaultLanguage:      "en",
		UtilityModel:         "Gemini-3-Flash",
		FallbackUtilityModel: "gemini-3-flash-preview",
	}
}

type chunkSource struct {
	ctx    context.Context
	chunks []string
	block  bool // wait for cancellation after the chunks
	err    error
}

func (c *chunkSource) Next() (string, error) {
	if len(c.chunks) > 0 {
		next := c.chunks[0]
		c.chunks = c.chunks[1:]
		return next, nil
	}
	if c.block {
		<-c.ctx.Done()
		return "", c.ctx.Err()
	}
	if c.err != nil {
		return "", c.err
	}
	return "", io.EOF
}

func (c *chunkSource) Close() error { return nil }

type harness struct {
	svc           *ChatService
	conversations *ConversationStore
	settings      *SettingsService
	kv            *memKV

	mu       sync.Mutex
	requests []stream.Request
}

func newHarness(t *testing.T, cfg *config.Config, open func(ctx context.Context) (stream.Source, error), gen fallbackGenerator) *harness {
	t.Helper()
	h := &harness{kv: newMemKV()}
	h.conversations = NewConversationStore(h.kv)
	h.settings = NewSettingsService(h.kv, cfg)

	normalizer := stream.NewNormalizer(func(ctx context.Context, _ stream.Config, req stream.Request) (stream.Source, error) {
		h.mu.Lock()
		h.requests = append(h.requests, req)
		h.mu.Unlock()
		return open(ctx)
	})

	llm := NewLLMService(cfg)
	if gen == nil {
		gen = func(context.Context, string, string, string) (string, error) {
			return "", errors.New("offline")
		}
	}
	llm.fallback = gen

	h.svc = NewChatService(h.conversations, h.settings, catalog.Default(), normalizer, llm, cfg)
	t.Cleanup(h.svc.Close)
	return h
}

func chunks(c ...string) func(ctx context.Context) (stream.Source, error) {
	return func(ctx context.Context) (stream.Source, error) {
		return &chunkSource{ctx: ctx, chunks: c}, nil
	}
}

func TestSend_StreamsIntoNewSession(t *testing.T) {
	h := newHarness(t, testConfig(), chunks("Hel", "Hello", "Hello!"),
		func(_ context.Context, key, model, prompt string) (string, error) {
			assert.Equal(t, "g-key", key)
			assert.Equal(t, "gemini-3-flash-preview", model)
			assert.Contains(t, prompt, "Message: hi there")
			return "  Greeting Exchange  ", nil
		})

	var seen []string
	res, err := h.svc.Send(context.Background(), SendRequest{Text: "hi there"}, func(m store.Message) {
		seen = append(seen, string(m.Role)+":"+m.Text)
	})
	require.NoError(t, err)
	assert.False(t, res.Aborted)
	assert.Nil(t, res.Error)
	assert.Equal(t, []string{"user:hi there", "model:", "model:Hel", "model:Hello", "model:Hello!"}, seen)

	h.svc.bg.Wait()

	session, ok := h.conversations.Session(res.SessionID)
	require.True(t, ok)
	assert.Equal(t, "Greeting Exchange", session.Title)
	assert.Equal(t, "gemini-3-flash", session.ModelID)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, "Hello!", session.Messages[1].Text)
	assert.Equal(t, "gemini-3-flash", session.Messages[1].ModelID)
	assert.False(t, h.svc.Loading(res.SessionID))

	require.Len(t, h.requests, 1)
	assert.Equal(t, []store.Message{session.Messages[0]}, h.requests[0].History)
}

func TestSend_TitleFailureKeepsDefault(t *testing.T) {
	h := newHarness(t, testConfig(), chunks("ok"), nil)

	res, err := h.svc.Send(context.Background(), SendRequest{Text: "hi"}, nil)
	require.NoError(t, err)
	h.svc.bg.Wait()

	session, _ := h.conversations.Session(res.SessionID)
	assert.Equal(t, "New Chat", session.Title)
}

func TestSend_TransportErrorAppendsErrorMessage(t *testing.T) {
	h := newHarness(t, testConfig(), func(context.Context) (stream.Source, error) {
		return nil, &stream.TransportError{Status: 401, Message: "Invalid API key"}
	}, nil)

	res, err := h.svc.Send(context.Background(), SendRequest{Text: "hi"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, "API Error: Invalid API key", res.Error.Text)

	session, _ := h.conversations.Session(res.SessionID)
	require.Len(t, session.Messages, 3)
	assert.True(t, session.Messages[2].IsError)
	assert.Len(t, Eligible(session.Messages), 2, "the error message is not context")
}

func TestSend_ErrorAfterPartialKeepsText(t *testing.T) {
	h := newHarness(t, testConfig(), func(ctx context.Context) (stream.Source, error) {
		return &chunkSource{ctx: ctx, chunks: []string{"part"}, err: errors.New("connection reset")}, nil
	}, nil)

	res, err := h.svc.Send(context.Background(), SendRequest{Text: "hi"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Error)

	session, _ := h.conversations.Session(res.SessionID)
	assert.Equal(t, "part", session.Messages[1].Text)
	assert.Equal(t, "API Error: connection reset", session.Messages[2].Text)
}

func TestStop_KeepsPartialText(t *testing.T) {
	h := newHarness(t, testConfig(), func(ctx context.Context) (stream.Source, error) {
		return &chunkSource{ctx: ctx, chunks: []string{"partial"}, block: true}, nil
	}, nil)
	session := h.svc.NewSession("")

	streamed := make(chan struct{})
	var once sync.Once
	type outcome struct {
		res SendResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.svc.Send(context.Background(), SendRequest{SessionID: session.ID, Text: "go"}, func(m store.Message) {
			if m.Text == "partial" {
				once.Do(func() { close(streamed) })
			}
		})
		done <- outcome{res, err}
	}()

	<-streamed
	assert.True(t, h.svc.Loading(session.ID))
	assert.True(t, h.svc.Stop(session.ID))

	out := <-done
	require.NoError(t, out.err)
	assert.True(t, out.res.Aborted)
	assert.Nil(t, out.res.Error)

	got, _ := h.conversations.Session(session.ID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "partial", got.Messages[1].Text)
	assert.False(t, h.svc.Loading(session.ID))
	assert.False(t, h.svc.Stop(session.ID))
}

func TestSend_ContextClearedHistory(t *testing.T) {
	h := newHarness(t, testConfig(), chunks("reply"), nil)
	session := h.svc.NewSession("")
	require.NoError(t, h.conversations.AppendMessage(session.ID, user("u0", "old")))
	divider, err := h.svc.ClearContext(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Context memory cleared", divider.Text)

	_, err = h.svc.Send(context.Background(), SendRequest{SessionID: session.ID, Text: "new"}, nil)
	require.NoError(t, err)

	require.Len(t, h.requests, 1)
	eligible := Eligible(h.requests[0].History)
	require.Len(t, eligible, 1)
	assert.Equal(t, "new", eligible[0].Text)

	require.NoError(t, h.svc.UndoClearContext(session.ID, divider.ID))
	got, _ := h.conversations.Session(session.ID)
	assert.Len(t, Eligible(got.Messages), 3)
}

func TestRegenerate_ResubmitsPromptWithDefaults(t *testing.T) {
	h := newHarness(t, testConfig(), chunks("second answer"), nil)
	session := h.svc.NewSession("gemini-3-pro")
	prompt := user("u1", "question")
	prompt.Attachments = []store.Attachment{{Name: "a.png", MimeType: "image/png", Data: "AA=="}}
	require.NoError(t, h.conversations.AppendMessage(session.ID, prompt))
	require.NoError(t, h.conversations.AppendMessage(session.ID, model("m1", "first answer")))

	res, err := h.svc.Regenerate(context.Background(), session.ID, "m1", nil)
	require.NoError(t, err)

	got, _ := h.conversations.Session(session.ID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "question", got.Messages[0].Text)
	assert.Equal(t, prompt.Attachments, got.Messages[0].Attachments)
	assert.NotEqual(t, "u1", got.Messages[0].ID)
	assert.Equal(t, res.ModelMessageID, got.Messages[1].ID)
	assert.Equal(t, "second answer", got.Messages[1].Text)

	require.Len(t, h.requests, 1)
	assert.Equal(t, catalog.RegenerateParameters(), h.requests[0].Params)
	assert.Equal(t, "gemini-3-pro", h.requests[0].Model.ID)
}

func TestRegenerate_BlockedWhileLoading(t *testing.T) {
	h := newHarness(t, testConfig(), chunks("x"), nil)
	session := h.svc.NewSession("")

	_, done, ok := h.svc.startRun(context.Background(), session.ID, false)
	require.True(t, ok)
	defer done()

	_, _, ok = h.svc.startRun(context.Background(), session.ID, true)
	assert.False(t, ok)

	_, err := h.svc.Regenerate(context.Background(), session.ID, "m1", nil)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestRegenerate_ConcurrentCallsRunOnce(t *testing.T) {
	h := newHarness(t, testConfig(), func(ctx context.Context) (stream.Source, error) {
		return &chunkSource{ctx: ctx, block: true}, nil
	}, nil)
	session := h.svc.NewSession("")
	require.NoError(t, h.conversations.AppendMessage(session.ID, user("u1", "question")))
	require.NoError(t, h.conversations.AppendMessage(session.ID, model("m1", "answer")))

	const callers = 8
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := h.svc.Regenerate(context.Background(), session.ID, "m1", nil)
			errs <- err
		}()
	}

	// The winner blocks in its stream until stopped; everyone else is turned away.
	for i := 0; i < callers-1; i++ {
		assert.ErrorIs(t, <-errs, ErrBusy)
	}
	require.Eventually(t, func() bool {
		got, _ := h.conversations.Session(session.ID)
		return len(got.Messages) == 2 && got.Messages[0].ID != "u1"
	}, time.Second, 5*time.Millisecond)
	assert.True(t, h.svc.Stop(session.ID))
	assert.NoError(t, <-errs)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Len(t, h.requests, 1)
}

func TestSend_UsesActiveSession(t *testing.T) {
	h := newHarness(t, testConfig(), chunks("ok"), nil)
	first := h.svc.NewSession("")
	second := h.svc.NewSession("")
	_, err := h.conversations.SelectSession(first.ID)
	require.NoError(t, err)

	res, err := h.svc.Send(context.Background(), SendRequest{Text: "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, res.SessionID)
	assert.Len(t, h.conversations.Sessions(), 2)

	got, _ := h.conversations.Session(second.ID)
	assert.Empty(t, got.Messages)

	require.NoError(t, h.conversations.DeleteSession(first.ID))
	require.NoError(t, h.conversations.DeleteSession(second.ID))
	res, err = h.svc.Send(context.Background(), SendRequest{Text: "again"}, nil)
	require.NoError(t, err)
	active, ok := h.conversations.Active()
	require.True(t, ok)
	assert.Equal(t, active.ID, res.SessionID, "a new session is created and selected when none is active")
}

func TestEdit_TruncatesAndReturnsDraft(t *testing.T) {
	h := newHarness(t, testConfig(), chunks(), nil)
	session := h.svc.NewSession("")
	for i, m := range []store.Message{user("u1", "a"), model("m1", "b"), user("u2", "c"), model("m2", "d"), user("u3", "e")} {
		require.NoError(t, h.conversations.AppendMessage(session.ID, m), "message %d", i)
	}

	draft, err := h.svc.Edit(session.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, "c", draft.Text)

	got, _ := h.conversations.Session(session.ID)
	assert.Len(t, got.Messages, 2)
}

func TestStabilizeThinking(t *testing.T) {
	assert.Equal(t, "*Thinking...*\nfinal", StabilizeThinking("*Thinking...*\nold*Thinking...*\nmid*Thinking...*\nfinal"))
	assert.Equal(t, "*Thinking...*\nonly", StabilizeThinking("*Thinking...*\nonly"))
	assert.Equal(t, "plain", StabilizeThinking("plain"))
}

func TestSuggestions(t *testing.T) {
	h := newHarness(t, testConfig(), chunks(), func(_ context.Context, _, _, prompt string) (string, error) {
		assert.Contains(t, prompt, "Language: English")
		return "1. Plan a trip\n- Learn Go\n\n* Write a haiku\n• Fix a bug\n5. Extra", nil
	})
	assert.Equal(t, []string{"Plan a trip", "Learn Go", "Write a haiku", "Fix a bug"}, h.svc.Suggestions(context.Background()))

	failing := newHarness(t, testConfig(), chunks(), nil)
	assert.Equal(t, []string{"Explain quantum computing", "Write a Python script", "Compare React vs Vue", "Write a poem about rain"},
		failing.svc.Suggestions(context.Background()))
}

// primaryServer serves streaming completions, one-shot completions and the
// usage history from one handler.
func primaryServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/usage") {
			_, _ = w.Write([]byte(`{"data":[{"cost_points":42,"app_name":"Gemini-3-Flash","creation_time":1700000000000000}]}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"stream":true`) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n")
			return
		}
		assert.Contains(t, string(body), `"thinking_level":"minimal"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"Gemini-3-Flash",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Primary Title"}}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSend_PrimaryMergesUsageAndTitle(t *testing.T) {
	srv := primaryServer(t)
	cfg := testConfig()
	cfg.PrimaryBaseURL = srv.URL
	cfg.UsageURL = srv.URL + "/usage"
	cfg.UsageDelay = time.Millisecond

	kv := newMemKV()
	conversations := NewConversationStore(kv)
	settings := NewSettingsService(kv, cfg)
	_, err := settings.Update(SettingsUpdate{UsePrimary: ptr(true), PrimaryKey: ptr("sk-test")})
	require.NoError(t, err)

	svc := NewChatService(conversations, settings, catalog.Default(), stream.NewNormalizer(nil), NewLLMService(cfg), cfg)
	defer svc.Close()

	res, err := svc.Send(context.Background(), SendRequest{Text: "hello"}, nil)
	require.NoError(t, err)
	require.Nil(t, res.Error)
	svc.bg.Wait()

	session, _ := conversations.Session(res.SessionID)
	assert.Equal(t, "Primary Title", session.Title)
	reply := session.Messages[1]
	assert.Equal(t, "Hi", reply.Text)
	require.NotNil(t, reply.Usage)
	assert.Equal(t, store.UsageMetadata{Points: 42, AppName: "Gemini-3-Flash", Timestamp: 1700000000000}, *reply.Usage)
}
