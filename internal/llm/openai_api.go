package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// OpenAIClient streams chat completions from the OpenAI API or any endpoint
// speaking the same protocol.
type OpenAIClient struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewOpenAIClient creates an OpenAI chat completions client. An empty endpoint
// uses the public API.
func NewOpenAIClient(apiKey, model, endpoint string) *OpenAIClient {
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	return &OpenAIClient{
		apiKey:   apiKey,
		model:    model,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{},
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return "openai" }

// Stream sends a streaming chat completion request.
func (c *OpenAIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	payload, err := json.Marshal(c.buildRequestBody(req, model))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, requestError(c.Name(), err)
	}
	if err := checkStatus(c.Name(), resp); err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent)
	go c.readStream(ctx, resp, ch, model)
	return ch, nil
}

func (c *OpenAIClient) buildRequestBody(req CompletionRequest, model string) openAIRequest {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: req.System})
	}
	msgs = append(msgs, req.Messages...)

	body := openAIRequest{
		Model:         model,
		Messages:      msgs,
		Stream:        true,
		Temperature:   req.Temperature,
		StreamOptions: &openAIStreamOptions{IncludeUsage: true},
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	return body
}

func (c *OpenAIClient) readStream(ctx context.Context, resp *http.Response, ch chan<- StreamEvent, model string) {
	defer close(ch)
	defer resp.Body.Close()

	start := time.Now()
	scanner := newServerSentEventScanner(resp.Body)
	var full strings.Builder
	var usage Usage
	var stopReason string
	finished := false

	for scanner.Next() {
		data := scanner.Data()
		if data == "[DONE]" {
			finished = true
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			emit(ctx, ch, StreamEvent{Type: EventError, Error: "openai: " + chunk.Error.Message})
			return
		}
		if chunk.Usage != nil {
			usage = Usage{InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens}
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				stopReason = choice.FinishReason
			}
			if choice.Delta.Content == "" {
				continue
			}
			full.WriteString(choice.Delta.Content)
			if !emit(ctx, ch, StreamEvent{Type: EventDelta, Content: choice.Delta.Content}) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		emit(ctx, ch, StreamEvent{Type: EventError, Error: fmt.Sprintf("openai: stream read failed: %v", err)})
		return
	}
	if ctx.Err() != nil {
		emit(ctx, ch, StreamEvent{Type: EventError, Error: ctx.Err().Error()})
		return
	}
	if !finished && stopReason == "" {
		emit(ctx, ch, StreamEvent{Type: EventError, Error: "openai: stream ended before completion"})
		return
	}

	emit(ctx, ch, StreamEvent{
		Type: EventDone,
		Response: &CompletionResponse{
			Content:    full.String(),
			StopReason: stopReason,
			Usage:      usage,
			Model:      model,
			Duration:   time.Since(start),
		},
	})
}

type openAIRequest struct {
	Model         string               `json:"model"`
	Messages      []Message            `json:"messages"`
	Stream        bool                 `json:"stream"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   *float64             `json:"temperature,omitempty"`
	StreamOptions *openAIStreamOptions `json:"stream_options,omitempty"`
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
