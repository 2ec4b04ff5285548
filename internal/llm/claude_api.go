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

const (
	defaultClaudeEndpoint  = "https://api.anthropic.com/v1"
	defaultClaudeMaxTokens = 4096
)

// ClaudeAPIClient is a direct HTTP client for the Claude Messages API.
type ClaudeAPIClient struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewClaudeAPIClient creates a new Claude API client. An empty endpoint uses
// the public API.
func NewClaudeAPIClient(apiKey, model, endpoint string) *ClaudeAPIClient {
	if endpoint == "" {
		endpoint = defaultClaudeEndpoint
	}
	return &ClaudeAPIClient{
		apiKey:   apiKey,
		model:    model,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{},
	}
}

// Name returns the provider name.
func (c *ClaudeAPIClient) Name() string {
	return "claude"
}

// Stream sends a streaming completion request to the Claude API.
func (c *ClaudeAPIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	payload, err := json.Marshal(c.buildRequestBody(req, model))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

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

func (c *ClaudeAPIClient) buildRequestBody(req CompletionRequest, model string) map[string]any {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}

	body := map[string]any{
		"model":      model,
		"messages":   req.Messages,
		"max_tokens": maxTokens,
		"stream":     true,
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	return body
}

func (c *ClaudeAPIClient) readStream(ctx context.Context, resp *http.Response, ch chan<- StreamEvent, model string) {
	defer close(ch)
	defer resp.Body.Close()

	start := time.Now()
	scanner := newServerSentEventScanner(resp.Body)
	var full strings.Builder
	var usage Usage
	var stopReason string
	stopped := false

	for scanner.Next() {
		var event claudeStreamEvent
		if err := json.Unmarshal([]byte(scanner.Data()), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				full.WriteString(event.Delta.Text)
				if !emit(ctx, ch, StreamEvent{Type: EventDelta, Content: event.Delta.Text}) {
					return
				}
			}
		case "message_start":
			if event.Message != nil {
				usage.InputTokens = event.Message.Usage.InputTokens
			}
		case "message_delta":
			if event.Delta.StopReason != "" {
				stopReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				usage.OutputTokens = event.Usage.OutputTokens
			}
		case "message_stop":
			stopped = true
		case "error":
			msg := "unknown error"
			if event.Error != nil {
				msg = event.Error.Message
			}
			emit(ctx, ch, StreamEvent{Type: EventError, Error: "claude: " + msg})
			return
		}
		if stopped {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		emit(ctx, ch, StreamEvent{Type: EventError, Error: fmt.Sprintf("claude: stream read failed: %v", err)})
		return
	}
	if ctx.Err() != nil {
		emit(ctx, ch, StreamEvent{Type: EventError, Error: ctx.Err().Error()})
		return
	}
	if !stopped {
		emit(ctx, ch, StreamEvent{Type: EventError, Error: "claude: stream ended before message_stop"})
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

type claudeStreamEvent struct {
	Type    string             `json:"type"`
	Delta   claudeStreamDelta  `json:"delta"`
	Message *claudeMessageInfo `json:"message,omitempty"`
	Usage   *claudeUsage       `json:"usage,omitempty"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type claudeStreamDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

type claudeMessageInfo struct {
	Model string      `json:"model"`
	Usage claudeUsage `json:"usage"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
