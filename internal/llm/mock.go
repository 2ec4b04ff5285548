package llm

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	StreamFunc   func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return ScriptedStream(
		StreamEvent{Type: EventDelta, Content: "mock "},
		StreamEvent{Type: EventDelta, Content: "response"},
		StreamEvent{Type: EventDone, Response: &CompletionResponse{Content: "mock response"}},
	), nil
}

// ScriptedStream returns a closed, buffered channel holding events in order.
func ScriptedStream(events ...StreamEvent) <-chan StreamEvent {
	ch := make(chan StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

// Deltas builds a successful scripted stream from text fragments.
func Deltas(fragments ...string) <-chan StreamEvent {
	events := make([]StreamEvent, 0, len(fragments)+1)
	var full string
	for _, f := range fragments {
		events = append(events, StreamEvent{Type: EventDelta, Content: f})
		full += f
	}
	events = append(events, StreamEvent{Type: EventDone, Response: &CompletionResponse{Content: full}})
	return ScriptedStream(events...)
}
