package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func collect(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func deltas(events []StreamEvent) string {
	var sb strings.Builder
	for _, ev := range events {
		if ev.Type == EventDelta {
			sb.WriteString(ev.Content)
		}
	}
	return sb.String()
}

// --- Registry tests ---

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("test-provider", &MockClient{ProviderName: "test-provider"})

	client, err := reg.Resolve("test-provider")
	require.NoError(t, err)
	assert.Equal(t, "test-provider", client.Name())
}

func TestRegistryAlias(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("openai", &MockClient{ProviderName: "openai"})
	reg.Alias("gpt-4o", "openai")

	client, err := reg.Resolve("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Name())
}

func TestRegistryFallback(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("default-llm", &MockClient{ProviderName: "default-llm"})
	reg.SetFallback("default-llm")

	client, err := reg.Resolve("unknown-model-xyz")
	require.NoError(t, err)
	assert.Equal(t, "default-llm", client.Name())
}

func TestRegistryResolveNotFound(t *testing.T) {
	reg := NewRegistry(silentLog())
	_, err := reg.Resolve("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model provider")
}

func TestRegistryListAndFailovers(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("b", &MockClient{ProviderName: "b"})
	reg.Register("a", &MockClient{ProviderName: "a"})
	reg.AddFailover("b")
	reg.AddFailover("missing")

	assert.Equal(t, []string{"a", "b"}, reg.List())
	failovers := reg.Failovers()
	require.Len(t, failovers, 1)
	assert.Equal(t, "b", failovers[0].Name())
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := config.LLMConfig{
		ProviderConfig: config.ProviderConfig{Provider: "openai", APIKey: "k", Model: "gpt-4o-mini"},
		Fallbacks: []config.ProviderConfig{
			{Provider: "claude", APIKey: "k2", Model: "claude-sonnet-4-5"},
			{Provider: "openai", APIKey: "k3", Model: "gpt-4o", Endpoint: "http://localhost:1234/v1"},
		},
	}
	reg, err := NewRegistryFromConfig(cfg, silentLog())
	require.NoError(t, err)

	assert.Equal(t, []string{"claude", "openai", "openai#2"}, reg.List())

	primary, err := reg.Resolve("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai", primary.Name())

	failovers := reg.Failovers()
	require.Len(t, failovers, 2)
	assert.Equal(t, "claude", failovers[0].Name())
}

func TestNewRegistryFromConfigUnknownProvider(t *testing.T) {
	_, err := NewRegistryFromConfig(config.LLMConfig{ProviderConfig: config.ProviderConfig{Provider: "bard"}}, silentLog())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bard")
}

// --- Mock tests ---

func TestMockClientDefaultStream(t *testing.T) {
	m := &MockClient{ProviderName: "mock"}
	ch, err := m.Stream(context.Background(), CompletionRequest{})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, "mock response", deltas(events))
	assert.Equal(t, EventDone, events[2].Type)
}

func TestDeltas(t *testing.T) {
	events := collect(t, Deltas("a", "b", "c"))
	require.Len(t, events, 4)
	assert.Equal(t, "abc", events[3].Response.Content)
}

// --- ProviderError ---

func TestProviderErrorFormat(t *testing.T) {
	assert.Equal(t, "openai: 429 slow down", (&ProviderError{Provider: "openai", Code: 429, Message: "slow down"}).Error())
	assert.Equal(t, "ollama: offline", (&ProviderError{Provider: "ollama", Message: "offline"}).Error())
}

// --- OpenAI ---

func openAIServer(t *testing.T, lines []string, check func(r *http.Request, body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		if check != nil {
			check(r, body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n\n", l)
			w.(http.Flusher).Flush()
		}
	}))
}

func TestOpenAIStream(t *testing.T) {
	srv := openAIServer(t, []string{
		`: keep-alive`,
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: {"choices":[],"usage":{"prompt_tokens":7,"completion_tokens":2}}`,
		`data: [DONE]`,
	}, func(r *http.Request, body map[string]any) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "gpt-test", body["model"])
		assert.Equal(t, true, body["stream"])
		msgs, _ := body["messages"].([]any)
		if !assert.Len(t, msgs, 2) {
			return
		}
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "be brief", msgs[0].(map[string]any)["content"])
	})
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "gpt-test", srv.URL)
	ch, err := c.Stream(context.Background(), CompletionRequest{
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, "Hello", deltas(events))
	done := events[2]
	assert.Equal(t, EventDone, done.Type)
	assert.Equal(t, "Hello", done.Response.Content)
	assert.Equal(t, "stop", done.Response.StopReason)
	assert.Equal(t, Usage{InputTokens: 7, OutputTokens: 2}, done.Response.Usage)
}

func TestOpenAIStreamTruncated(t *testing.T) {
	srv := openAIServer(t, []string{`data: {"choices":[{"delta":{"content":"par"}}]}`}, nil)
	defer srv.Close()

	ch, err := NewOpenAIClient("k", "m", srv.URL).Stream(context.Background(), CompletionRequest{})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 2)
	assert.Equal(t, "par", events[0].Content)
	assert.Equal(t, EventError, events[1].Type)
}

func TestOpenAIStreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient("k", "m", srv.URL).Stream(context.Background(), CompletionRequest{})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.Code)
	assert.Equal(t, "openai", pe.Provider)
}

func TestOpenAIStreamInBandError(t *testing.T) {
	srv := openAIServer(t, []string{`data: {"error":{"message":"overloaded"}}`}, nil)
	defer srv.Close()

	ch, err := NewOpenAIClient("k", "m", srv.URL).Stream(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	events := collect(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Contains(t, events[0].Error, "overloaded")
}

// --- Claude ---

func TestClaudeStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "ck", r.Header.Get("x-api-key"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sys", body["system"])
		assert.EqualValues(t, defaultClaudeMaxTokens, body["max_tokens"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range []string{
			"event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":5}}}",
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Szia\"}}",
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"!\"}}",
			"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":3}}",
			"event: message_stop\ndata: {\"type\":\"message_stop\"}",
		} {
			fmt.Fprintf(w, "%s\n\n", l)
		}
	}))
	defer srv.Close()

	c := NewClaudeAPIClient("ck", "claude-test", srv.URL)
	ch, err := c.Stream(context.Background(), CompletionRequest{System: "sys", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, "Szia!", deltas(events))
	assert.Equal(t, "end_turn", events[2].Response.StopReason)
	assert.Equal(t, Usage{InputTokens: 5, OutputTokens: 3}, events[2].Response.Usage)
}

func TestClaudeStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"message\":\"overloaded\"}}\n\n")
	}))
	defer srv.Close()

	ch, err := NewClaudeAPIClient("k", "m", srv.URL).Stream(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	events := collect(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, "claude: overloaded", events[0].Error)
}

// --- Ollama ---

func TestOllamaStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		assert.Equal(t, "/api/chat", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":4,"eval_count":2}`)
	}))
	defer srv.Close()

	c, err := NewOllamaClient(srv.URL, "llama3")
	require.NoError(t, err)
	ch, err := c.Stream(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, "Hello", deltas(events))
	assert.Equal(t, "stop", events[2].Response.StopReason)
	assert.Equal(t, 2, events[2].Response.Usage.OutputTokens)
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := NewOllamaClient(srv.URL, "llama3")
	require.NoError(t, err)
	_, err = c.Stream(context.Background(), CompletionRequest{})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusServiceUnavailable, pe.Code)
}

// --- SSE scanner ---

func TestServerSentEventScanner(t *testing.T) {
	s := newServerSentEventScanner(strings.NewReader("event: x\ndata: one\n\n: comment\ndata:two\n\n"))
	var got []string
	for s.Next() {
		got = append(got, s.Data())
	}
	require.NoError(t, s.Err())
	assert.Equal(t, []string{"one", "two"}, got)
}
