package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	catalogmodels "llm-arena/backend/catalog/models"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Fragment) (string, *Usage, error) {
	t.Helper()
	var (
		sb    strings.Builder
		usage *Usage
	)
	for f := range ch {
		if f.Err != nil {
			return sb.String(), usage, f.Err
		}
		if f.Usage != nil {
			usage = f.Usage
		}
		sb.WriteString(f.Text)
	}
	return sb.String(), usage, nil
}

func sseServer(t *testing.T, path string, status int, lines []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicStreamsTextAndUsage(t *testing.T) {
	srv := sseServer(t, "/v1/messages", http.StatusOK, []string{
		"event: message_start",
		`data: {"type":"message_start","message":{"usage":{"input_tokens":12}}}`,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hello"}}`,
		`data: {"type":"ping"}`,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":", world"}}`,
		`data: {"type":"message_delta","usage":{"output_tokens":4}}`,
		`data: {"type":"message_stop"}`,
	})

	b := NewAnthropicBackend("key", srv.URL+"/v1", srv.Client())
	ch, err := b.StreamCompletion(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}, "claude-3-5-sonnet", Options{})
	require.NoError(t, err)

	text, usage, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)
	require.NotNil(t, usage)
	assert.Equal(t, 12, usage.PromptTokens)
	assert.Equal(t, 4, usage.CompletionTokens)
}

func TestAnthropicMidStreamError(t *testing.T) {
	srv := sseServer(t, "/v1/messages", http.StatusOK, []string{
		`data: {"type":"content_block_delta","delta":{"text":"partial"}}`,
		`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
	})

	b := NewAnthropicBackend("key", srv.URL+"/v1", srv.Client())
	ch, err := b.StreamCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, "claude", Options{})
	require.NoError(t, err)

	text, _, err := collect(t, ch)
	assert.Equal(t, "partial", text)
	var ae *apperrors.AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Error(), "Overloaded")
}

func TestAnthropicRejectedRequest(t *testing.T) {
	srv := sseServer(t, "/v1/messages", http.StatusUnauthorized, []string{`{"error":"bad key"}`})

	b := NewAnthropicBackend("key", srv.URL+"/v1", srv.Client())
	_, err := b.StreamCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, "claude", Options{})
	require.Error(t, err)
	assert.True(t, apperrors.IsAdapterError(err))
	assert.Contains(t, err.Error(), "401")
}

func TestOpenAIStreamsDeltas(t *testing.T) {
	chunk := func(s string) string {
		return fmt.Sprintf(`data: {"id":"c1","object":"chat.completion.chunk","model":"gpt-4o","choices":[{"index":0,"delta":{"content":%q}}]}`, s)
	}
	srv := sseServer(t, "/v1/chat/completions", http.StatusOK, []string{
		chunk("The "), chunk("answer"), chunk(" is 42"), "data: [DONE]",
	})

	b := NewOpenAIBackend("openai", "key", srv.URL+"/v1")
	ch, err := b.StreamCompletion(context.Background(), []Message{{Role: "user", Content: "?"}}, "gpt-4o", Options{MaxTokens: 16})
	require.NoError(t, err)

	text, usage, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42", text)
	assert.Nil(t, usage)
}

type scriptedBackend struct {
	calls int
	err   error
}

func (s *scriptedBackend) Name() string { return "scripted" }

func (s *scriptedBackend) StreamCompletion(context.Context, []Message, string, Options) (<-chan Fragment, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan Fragment, 1)
	ch <- Fragment{Text: "ok"}
	close(ch)
	return ch, nil
}

func TestGuardedOpensBreaker(t *testing.T) {
	inner := &scriptedBackend{err: apperrors.NewAdapterError("scripted", "m", errors.New("502"))}
	g := NewGuarded(inner, GuardConfig{Breaker: resilience.CircuitBreakerConfig{
		Name:             "scripted",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RetryTimeout:     time.Hour,
	}}, logger.Discard())

	for i := 0; i < 2; i++ {
		_, err := g.StreamCompletion(context.Background(), nil, "m", Options{})
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, g.State())

	_, err := g.StreamCompletion(context.Background(), nil, "m", Options{})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.True(t, apperrors.IsAdapterError(err))
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the backend")
}

func TestGuardedRateLimitHonoursContext(t *testing.T) {
	g := NewGuarded(&scriptedBackend{}, GuardConfig{RequestsPerSecond: 0.001, Burst: 1}, logger.Discard())

	_, err := g.StreamCompletion(context.Background(), nil, "m", Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.StreamCompletion(ctx, nil, "m", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestRegistryFillsOptionsAndRejectsUnknownProvider(t *testing.T) {
	var got Options
	reg := NewRegistry(Options{MaxTokens: 512, Temperature: 0.7})
	reg.Register(catalogmodels.ProviderOpenAI, backendFunc(func(opts Options) { got = opts }))

	_, err := reg.StreamCompletion(context.Background(), &catalogmodels.Model{Provider: catalogmodels.ProviderOpenAI, Code: "gpt", Temperature: 0.2}, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 512, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)

	_, err = reg.StreamCompletion(context.Background(), &catalogmodels.Model{Provider: catalogmodels.ProviderCohere, Code: "command"}, nil, Options{})
	assert.True(t, apperrors.IsAdapterError(err))
}

type backendFunc func(Options)

func (f backendFunc) Name() string { return "func" }

func (f backendFunc) StreamCompletion(_ context.Context, _ []Message, _ string, opts Options) (<-chan Fragment, error) {
	f(opts)
	ch := make(chan Fragment)
	close(ch)
	return ch, nil
}
