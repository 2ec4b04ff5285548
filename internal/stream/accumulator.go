// Package stream relays model output fragments to a consumer while
// accumulating the complete reply.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/chatrelay/internal/llm"
)

// ErrUpstream marks a failure of the model stream after it was opened.
var ErrUpstream = errors.New("upstream stream failure")

// Forward receives each event relayed to the caller.
type Forward func(ev llm.StreamEvent)

// Result is the outcome of draining a stream.
type Result struct {
	// Text is the concatenation of every fragment forwarded. When Complete
	// is false it is only the partial text received before the failure.
	Text     string
	Complete bool
	Err      error
	Response *llm.CompletionResponse
}

// Accumulate drains events, forwarding every non-empty delta unmodified and
// in arrival order before reading the next one. On an error event or context
// cancellation a single terminal error event is forwarded and the partial
// text is returned with Complete false. A done event or a closed channel
// completes the stream.
func Accumulate(ctx context.Context, events <-chan llm.StreamEvent, forward Forward) Result {
	if forward == nil {
		forward = func(llm.StreamEvent) {}
	}
	var sb strings.Builder

	fail := func(err error) Result {
		wrapped := fmt.Errorf("%w: %v", ErrUpstream, err)
		forward(llm.StreamEvent{Type: llm.EventError, Error: wrapped.Error()})
		return Result{Text: sb.String(), Err: wrapped}
	}

	for {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())

		case ev, ok := <-events:
			if !ok {
				return Result{Text: sb.String(), Complete: true}
			}
			switch ev.Type {
			case llm.EventDelta:
				if ev.Content == "" {
					continue
				}
				sb.WriteString(ev.Content)
				forward(ev)
			case llm.EventDone:
				return Result{Text: sb.String(), Complete: true, Response: ev.Response}
			case llm.EventError:
				msg := ev.Error
				if msg == "" {
					msg = "stream error"
				}
				return fail(errors.New(msg))
			}
		}
	}
}
