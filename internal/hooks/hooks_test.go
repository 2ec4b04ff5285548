package hooks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var called bool
	m.On(EventGatewayStart, "test", func(_ context.Context, p Payload) error {
		called = true
		assert.Equal(t, EventGatewayStart, p.Event)
		return nil
	})

	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.True(t, called)
}

func TestManager_Emit_MultipleHandlers(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventTurnCompleted, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventTurnCompleted, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventTurnCompleted, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_Emit_WithData(t *testing.T) {
	m := testManager()

	var got Payload
	m.On(EventTurnCompleted, "test", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})

	m.Emit(context.Background(), EventTurnCompleted, map[string]any{
		KeySessionID: "s1",
		KeyPartial:   true,
	})

	assert.Equal(t, "s1", got.SessionID())
	assert.Equal(t, true, got.Data[KeyPartial])
	assert.Equal(t, "", got.String(KeyModel))
}

func TestManager_Emit_HandlerError(t *testing.T) {
	m := testManager()

	var secondCalled bool
	m.On(EventGatewayStart, "failing", func(_ context.Context, _ Payload) error {
		return errors.New("handler broke")
	})
	m.On(EventGatewayStart, "second", func(_ context.Context, _ Payload) error {
		secondCalled = true
		return nil
	})

	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.True(t, secondCalled)
}

func TestManager_Emit_NoHandlers(t *testing.T) {
	m := testManager()
	m.Emit(context.Background(), EventGatewayStop, nil)
}

func TestManager_Off(t *testing.T) {
	m := testManager()

	var callCount int
	m.On(EventGatewayStart, "removable", func(_ context.Context, _ Payload) error {
		callCount++
		return nil
	})

	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.Equal(t, 1, callCount)

	m.Off(EventGatewayStart, "removable")
	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.Equal(t, 1, callCount)
}

func TestManager_Off_KeepsOthers(t *testing.T) {
	m := testManager()

	var keepCalled int
	m.On(EventGatewayStart, "remove-me", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventGatewayStart, "keep-me", func(_ context.Context, _ Payload) error {
		keepCalled++
		return nil
	})

	m.Off(EventGatewayStart, "remove-me")
	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.Equal(t, 1, keepCalled)
}

func TestManager_EmitAsync_Wait(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	slow := func(_ context.Context, _ Payload) error {
		time.Sleep(20 * time.Millisecond)
		count.Add(1)
		return nil
	}
	m.On(EventNotificationSent, "async1", slow)
	m.On(EventNotificationSent, "async2", slow)

	m.EmitAsync(context.Background(), EventNotificationSent, nil)

	done := make(chan struct{})
	go func() { m.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handlers did not complete in time")
	}

	assert.Equal(t, int32(2), count.Load())
}

func TestAllEvents_NotEmpty(t *testing.T) {
	require.NotEmpty(t, AllEvents)
	assert.Contains(t, AllEvents, EventTurnCompleted)
	assert.Contains(t, AllEvents, EventNotificationSent)
}
