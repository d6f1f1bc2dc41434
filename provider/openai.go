package provider

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// OpenAIBackend talks to OpenAI or any API compatible with its chat
// completions endpoint
type OpenAIBackend struct {
	name   string
	client *openai.Client
}

func NewOpenAIBackend(name, apiKey, baseURL string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if name == "" {
		name = "openai"
	}
	return &OpenAIBackend{name: name, client: openai.NewClientWithConfig(cfg)}
}

func (b *OpenAIBackend) Name() string {
	return b.name
}

func (b *OpenAIBackend) StreamCompletion(ctx context.Context, history []Message, model string, opts Options) (<-chan Fragment, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	stream, err := b.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
		Stream:      true,
	})
	if err != nil {
		return nil, adapterError(b.name, model, describeOpenAIError(err))
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				send(ctx, out, Fragment{Err: adapterError(b.name, model, describeOpenAIError(err))})
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !send(ctx, out, Fragment{Text: resp.Choices[0].Delta.Content}) {
				return
			}
		}
	}()
	return out, nil
}

func describeOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("api error (status %d, type %s): %s: %w", apiErr.HTTPStatusCode, apiErr.Type, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("request error (status %d): %w", reqErr.HTTPStatusCode, err)
	}
	return err
}
