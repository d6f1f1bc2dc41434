package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
	defaultAnthropicTokens  = 4096
)

// AnthropicBackend streams from the Messages API over server-sent events
type AnthropicBackend struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewAnthropicBackend(apiKey, baseURL string, client *http.Client) *AnthropicBackend {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &AnthropicBackend{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (b *AnthropicBackend) Name() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (b *AnthropicBackend) StreamCompletion(ctx context.Context, history []Message, model string, opts Options) (<-chan Fragment, error) {
	req := anthropicRequest{
		Model:       model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      true,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultAnthropicTokens
	}
	// System turns travel in their own field
	for _, m := range history {
		if m.Role == "system" {
			if req.System != "" {
				req.System += "\n\n"
			}
			req.System += m.Content
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, adapterError(b.Name(), model, fmt.Errorf("marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, adapterError(b.Name(), model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", b.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, adapterError(b.Name(), model, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, adapterError(b.Name(), model, fmt.Errorf("api error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		b.readEvents(ctx, resp.Body, model, out)
	}()
	return out, nil
}

func (b *AnthropicBackend) readEvents(ctx context.Context, body io.Reader, model string, out chan<- Fragment) {
	var usage Usage
	fail := func(err error) {
		send(ctx, out, Fragment{Err: adapterError(b.Name(), model, err)})
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "message_start":
			usage.PromptTokens = ev.Message.Usage.InputTokens
		case "content_block_delta":
			if ev.Delta.Text != "" && !send(ctx, out, Fragment{Text: ev.Delta.Text}) {
				return
			}
		case "message_delta":
			if ev.Usage.OutputTokens > 0 {
				usage.CompletionTokens = ev.Usage.OutputTokens
			}
		case "message_stop":
			send(ctx, out, Fragment{Usage: &usage})
			return
		case "error":
			fail(fmt.Errorf("%s: %s", ev.Error.Type, ev.Error.Message))
			return
		}
	}

	if err := scanner.Err(); err != nil {
		fail(fmt.Errorf("read stream: %w", err))
		return
	}
	if ctx.Err() != nil {
		return
	}
	fail(errors.New("stream ended without message_stop"))
}
