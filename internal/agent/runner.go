// Package agent runs chat rounds: it records the user's message, streams the
// model's reply to the caller and records the reply once the stream ends.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/chatrelay/internal/conversation"
	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/llm"
	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/soyeahso/chatrelay/internal/store"
	"github.com/soyeahso/chatrelay/internal/stream"
)

// RunnerConfig configures the runner.
type RunnerConfig struct {
	Model        string
	Instructions string
	MaxTokens    int
	Temperature  *float64
	Timeout      time.Duration
}

// TurnResult is the outcome of one message round.
type TurnResult struct {
	SessionID string        `json:"sessionId"`
	Response  string        `json:"response"`
	Partial   bool          `json:"partial,omitempty"`
	Model     string        `json:"model,omitempty"`
	Usage     llm.Usage     `json:"usage"`
	Duration  time.Duration `json:"duration"`
}

// Runner implements begin_session and submit_message on top of the
// conversation log. Delivery is triggered through the turn_completed hook
// after the reply has been fully forwarded.
type Runner struct {
	cfg    RunnerConfig
	client llm.Client
	log    *conversation.Registry
	store  store.TranscriptStore
	hooks  *hooks.Manager
	rounds *conversation.KeyedMutex
	logger *logging.Logger
}

// NewRunner creates a runner. store and hm may be nil.
func NewRunner(
	cfg RunnerConfig,
	client llm.Client,
	reg *conversation.Registry,
	ts store.TranscriptStore,
	hm *hooks.Manager,
	log *logging.Logger,
) *Runner {
	return &Runner{
		cfg:    cfg,
		client: client,
		log:    reg,
		store:  ts,
		hooks:  hm,
		rounds: conversation.NewKeyedMutex(),
		logger: log.Sub("agent"),
	}
}

// BeginSession starts or resumes a session. An empty id starts a new session
// with a generated key. A known id is returned unchanged; an id that is not
// live but has a persisted transcript is restored from it.
func (r *Runner) BeginSession(ctx context.Context, id string) (string, error) {
	if id == "" {
		id = r.log.Begin("")
		r.logger.Info().Str("sessionId", id).Msg("session started")
		r.emit(ctx, hooks.EventSessionStarted, map[string]any{hooks.KeySessionID: id})
		return id, nil
	}
	if !domain.ValidSessionID(id) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidSession, id)
	}
	ok, err := r.resume(ctx, id)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	r.log.Begin(id)
	r.logger.Info().Str("sessionId", id).Msg("session started")
	r.emit(ctx, hooks.EventSessionStarted, map[string]any{hooks.KeySessionID: id})
	return id, nil
}

// SubmitMessage runs one round for the session. Every fragment is passed to
// forward as it arrives. On an upstream failure forward receives a terminal
// error event, the partial reply is recorded as a partial turn and the
// returned error wraps stream.ErrUpstream. A session that is persisted but
// not live is restored first. Unknown sessions fail with
// domain.ErrInvalidSession before anything is recorded.
func (r *Runner) SubmitMessage(ctx context.Context, sessionID, text string, forward stream.Forward) (*TurnResult, error) {
	ok, err := r.resume(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidSession, sessionID)
	}

	unlock := r.rounds.Lock(sessionID)
	defer unlock()

	start := time.Now()
	log := r.logger.With("sessionId", sessionID)

	if _, err := r.log.AppendUser(sessionID, text); err != nil {
		return nil, err
	}
	history, err := r.log.Snapshot(sessionID)
	if err != nil {
		return nil, err
	}

	log.Info().Int("historyLen", len(history)).Msg("processing message")

	sctx, cancel := r.streamContext(ctx)
	defer cancel()

	var res stream.Result
	events, err := r.client.Stream(sctx, r.request(history))
	if err != nil {
		res = stream.Accumulate(sctx, failed(err), forward)
	} else {
		res = stream.Accumulate(sctx, events, forward)
	}

	partial := !res.Complete
	if _, err := r.log.AppendAssistant(sessionID, res.Text, partial); err != nil {
		return nil, err
	}

	result := &TurnResult{
		SessionID: sessionID,
		Response:  res.Text,
		Partial:   partial,
		Model:     r.cfg.Model,
		Duration:  time.Since(start),
	}
	if res.Response != nil {
		if res.Response.Model != "" {
			result.Model = res.Response.Model
		}
		result.Usage = res.Response.Usage
	}

	// Delivery must not depend on the request staying open.
	r.emit(context.WithoutCancel(ctx), hooks.EventTurnCompleted, map[string]any{
		hooks.KeySessionID: sessionID,
		hooks.KeyPartial:   partial,
		hooks.KeyModel:     result.Model,
	})

	if res.Err != nil {
		log.Warn().Err(res.Err).Int("partialLen", len(res.Text)).Msg("model stream failed")
		return result, res.Err
	}

	log.Info().
		Str("model", result.Model).
		Int("inputTokens", result.Usage.InputTokens).
		Int("outputTokens", result.Usage.OutputTokens).
		Dur("duration", result.Duration).
		Msg("response streamed")
	return result, nil
}

// resume makes a persisted session live again. It reports whether id is live
// afterwards.
func (r *Runner) resume(ctx context.Context, id string) (bool, error) {
	if r.log.Exists(id) {
		return true, nil
	}
	if r.store == nil || !domain.ValidSessionID(id) {
		return false, nil
	}
	tr, err := r.store.Load(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("restore session %s: %w", id, err)
	}
	if r.log.Restore(id, tr.Turns) {
		r.logger.Info().Str("sessionId", id).Int("turns", len(tr.Turns)).Msg("session restored")
	}
	return true, nil
}

func (r *Runner) streamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, r.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// request converts the session history into a model request. Partial replies
// are sent as they were shown to the user.
func (r *Runner) request(history []domain.Turn) llm.CompletionRequest {
	msgs := make([]llm.Message, 0, len(history))
	for _, t := range history {
		msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return llm.CompletionRequest{
		Model:       r.cfg.Model,
		System:      r.cfg.Instructions,
		Messages:    msgs,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	}
}

func (r *Runner) emit(ctx context.Context, event string, data map[string]any) {
	if r.hooks != nil {
		r.hooks.Emit(ctx, event, data)
	}
}

// failed turns a stream-open error into a one-event stream so it takes the
// same path as a mid-stream failure.
func failed(err error) <-chan llm.StreamEvent {
	return llm.ScriptedStream(llm.StreamEvent{Type: llm.EventError, Error: err.Error()})
}
