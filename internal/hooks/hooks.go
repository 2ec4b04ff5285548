// Package hooks dispatches relay lifecycle events to registered handlers.
// The delivery pipeline hangs off turn_completed; other events are emitted
// for logging and for anyone embedding the relay.
package hooks

import (
	"context"
	"sync"

	"github.com/soyeahso/chatrelay/internal/logging"
)

// Event names.
const (
	EventSessionStarted    = "session_started"
	EventTurnCompleted     = "turn_completed"
	EventDeliveryCompleted = "delivery_completed"
	EventDeliveryFailed    = "delivery_failed"
	EventNotificationSent  = "notification_sent"
	EventGatewayStart      = "gateway_start"
	EventGatewayStop       = "gateway_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventSessionStarted,
	EventTurnCompleted,
	EventDeliveryCompleted,
	EventDeliveryFailed,
	EventNotificationSent,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload data keys.
const (
	KeySessionID = "sessionId"
	KeyPartial   = "partial"
	KeyModel     = "model"
	KeyError     = "error"
	KeyDocument  = "document"
)

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// String returns the string value stored under key, or "".
func (p Payload) String(key string) string {
	s, _ := p.Data[key].(string)
	return s
}

// SessionID returns the session the event refers to, if any.
func (p Payload) SessionID() string {
	return p.String(KeySessionID)
}

// Handler is a function that handles a hook event.
// Returning an error logs the failure but does not stop processing.
type Handler func(ctx context.Context, p Payload) error

// Manager manages hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	inflight sync.WaitGroup
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
// The name identifies the handler for logging and debugging.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[event]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	m.handlers[event] = filtered
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handlers := make([]namedHandler, len(m.handlers[event]))
	copy(handlers, m.handlers[event])
	return handlers
}

// Emit dispatches an event to all registered handlers synchronously, in
// registration order. Errors are logged and do not stop later handlers.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		m.call(ctx, h, payload)
	}
}

// EmitAsync dispatches an event to all registered handlers concurrently and
// returns immediately. Wait blocks until those handlers finish.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		m.inflight.Add(1)
		go func(h namedHandler) {
			defer m.inflight.Done()
			m.call(ctx, h, payload)
		}(h)
	}
}

// Wait blocks until all handlers started by EmitAsync have returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Str("sessionId", p.SessionID()).
			Msg("hook handler error")
	}
}
