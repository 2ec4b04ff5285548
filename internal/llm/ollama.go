package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaClient streams chat completions from an Ollama server.
type OllamaClient struct {
	model  string
	client *api.Client
}

// NewOllamaClient creates a client for the given endpoint. An empty endpoint
// falls back to OLLAMA_HOST / the local default.
func NewOllamaClient(endpoint, model string) (*OllamaClient, error) {
	if endpoint == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		return &OllamaClient{model: model, client: c}, nil
	}

	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("ollama endpoint %q: %w", endpoint, err)
	}
	return &OllamaClient{model: model, client: api.NewClient(base, http.DefaultClient)}, nil
}

// Name returns the provider name.
func (c *OllamaClient) Name() string { return "ollama" }

// Stream sends a streaming chat request. Reachability is checked up front so
// an offline server surfaces as a ProviderError.
func (c *OllamaClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	if err := c.client.Heartbeat(ctx); err != nil {
		return nil, &ProviderError{Provider: c.Name(), Code: http.StatusServiceUnavailable, Message: err.Error()}
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	msgs := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, api.Message{Role: RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := true
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{},
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.MaxTokens
	}

	ch := make(chan StreamEvent)
	go c.run(ctx, chatReq, ch)
	return ch, nil
}

func (c *OllamaClient) run(ctx context.Context, req *api.ChatRequest, ch chan<- StreamEvent) {
	defer close(ch)

	start := time.Now()
	var final api.ChatResponse
	var content []byte

	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			content = append(content, resp.Message.Content...)
			if !emit(ctx, ch, StreamEvent{Type: EventDelta, Content: resp.Message.Content}) {
				return ctx.Err()
			}
		}
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			err = &ProviderError{Provider: c.Name(), Code: statusErr.StatusCode, Message: statusErr.ErrorMessage}
		}
		emit(ctx, ch, StreamEvent{Type: EventError, Error: err.Error()})
		return
	}
	if !final.Done {
		emit(ctx, ch, StreamEvent{Type: EventError, Error: "ollama: stream ended before completion"})
		return
	}

	emit(ctx, ch, StreamEvent{
		Type: EventDone,
		Response: &CompletionResponse{
			Content:    string(content),
			StopReason: final.DoneReason,
			Usage: Usage{
				InputTokens:  final.PromptEvalCount,
				OutputTokens: final.EvalCount,
			},
			Model:    req.Model,
			Duration: time.Since(start),
		},
	})
}
