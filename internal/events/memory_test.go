// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEventBus_Publish(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	event := Event{
		Type:      EventSessionAdded,
		SessionID: "abc123",
		Payload:   map[string]interface{}{"session_id": "abc123"},
	}

	err := bus.Publish(context.Background(), event)
	assert.NoError(t, err)
}

func TestMemoryEventBus_Publish_AssignsID(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var receivedEvent Event
	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		receivedEvent = e
		return nil
	})
	require.NoError(t, err)

	err = bus.Publish(context.Background(), Event{Type: EventSessionAdded})
	require.NoError(t, err)

	assert.NotEmpty(t, receivedEvent.ID)
	assert.Equal(t, "1.0", receivedEvent.Version)
	assert.False(t, receivedEvent.Timestamp.IsZero())
}

func TestMemoryEventBus_Subscribe(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	received := make(chan Event, 1)

	_, err := bus.Subscribe(EventSessionAdded, func(ctx context.Context, e Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	event := Event{Type: EventSessionAdded, Payload: map[string]interface{}{"session_id": "abc123"}}
	err = bus.Publish(context.Background(), event)
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, EventSessionAdded, e.Type)
		assert.Equal(t, "abc123", e.Payload["session_id"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestMemoryEventBus_Subscribe_PatternMatching(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var count int32

	// Subscribe to all session lifecycle events
	_, err := bus.Subscribe("session_*", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)

	// Publish various events
	events := []Event{
		{Type: EventSessionAdded},
		{Type: EventSessionRemoved},
		{Type: EventSessionStatus},
		{Type: EventMessage}, // Should not match
	}

	for _, e := range events {
		bus.Publish(context.Background(), e)
	}

	// Give sync handlers time to complete
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
}

func TestMemoryEventBus_Subscribe_MultipleHandlers(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var count1, count2 int32

	_, err := bus.Subscribe("session_*", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count1, 1)
		return nil
	})
	require.NoError(t, err)

	_, err = bus.Subscribe(EventSessionAdded, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count2, 1)
		return nil
	})
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Type: EventSessionAdded})
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&count1))
	assert.Equal(t, int32(1), atomic.LoadInt32(&count2))
}

func TestMemoryEventBus_Subscribe_HandlerPanic(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var count int32

	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		panic("handler exploded")
	})
	require.NoError(t, err)

	_, err = bus.Subscribe("*", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)

	// A panicking handler must not take down the publisher or
	// starve the other subscribers.
	err = bus.Publish(context.Background(), Event{Type: EventMessage})
	assert.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestMemoryEventBus_SubscribeAsync(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	received := make(chan Event, 10)

	_, err := bus.SubscribeAsync(EventMessage, func(ctx context.Context, e Event) error {
		received <- e
		return nil
	}, 10)
	require.NoError(t, err)

	err = bus.Publish(context.Background(), Event{Type: EventMessage, SessionID: "abc123"})
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, "abc123", e.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for async event")
	}
}

func TestMemoryEventBus_SubscribeChannel(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	_, ch, err := bus.SubscribeChannel("*", 4)
	require.NoError(t, err)

	err = bus.Publish(context.Background(), Event{Type: EventSessionAdded, SessionID: "abc123"})
	require.NoError(t, err)

	select {
	case e := <-ch:
		assert.Equal(t, EventSessionAdded, e.Type)
		assert.Equal(t, "abc123", e.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel event")
	}
}

func TestMemoryEventBus_SubscribeChannel_FullBufferDrops(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	// Nobody drains the channel. With a buffer of 2, the third publish
	// must be dropped for this subscriber without blocking the publisher.
	_, ch, err := bus.SubscribeChannel("*", 2)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			bus.Publish(context.Background(), Event{Type: EventMessage})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber channel")
	}

	assert.Equal(t, 2, len(ch))
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var count int32

	id, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Type: EventMessage})

	err = bus.Unsubscribe(id)
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Type: EventMessage})
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestMemoryEventBus_Unsubscribe_NotFound(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	err := bus.Unsubscribe(SubscriptionID("nonexistent"))
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestMemoryEventBus_History(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	events := []Event{
		{Type: EventSessionAdded, SessionID: "s1"},
		{Type: EventSessionRemoved, SessionID: "s1"},
		{Type: EventSessionAdded, SessionID: "s2"},
	}
	for _, e := range events {
		require.NoError(t, bus.Publish(context.Background(), e))
	}

	history, err := bus.History(EventFilter{})
	require.NoError(t, err)
	assert.Len(t, history, 3)

	// Filter by type
	history, err = bus.History(EventFilter{Types: []string{EventSessionAdded}})
	require.NoError(t, err)
	assert.Len(t, history, 2)

	// Filter by owning session
	history, err = bus.History(EventFilter{SessionID: "s1"})
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestMemoryEventBus_History_RingOverwritesOldest(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{HistoryMaxEvents: 5})
	defer bus.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(context.Background(), Event{
			ID:   fmt.Sprintf("%d", i),
			Type: EventMessage,
		}))
	}

	history, err := bus.History(EventFilter{})
	require.NoError(t, err)
	require.Len(t, history, 5)

	// Oldest entries were overwritten in place; the newest five remain,
	// oldest first.
	for i, e := range history {
		assert.Equal(t, fmt.Sprintf("%d", 5+i), e.ID)
	}
}

func TestMemoryEventBus_History_PruneDropsExpired(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{HistoryMaxAge: 100 * time.Millisecond})
	defer bus.Close()

	require.NoError(t, bus.Publish(context.Background(), Event{
		ID:        "old",
		Type:      EventMessage,
		Timestamp: time.Now().Add(-200 * time.Millisecond),
	}))
	require.NoError(t, bus.Publish(context.Background(), Event{
		ID:   "new",
		Type: EventMessage,
	}))

	// The background pruner ticks on a coarse interval; drive it directly.
	bus.log.prune()

	history, err := bus.History(EventFilter{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "new", history[0].ID)
}

func TestMemoryEventBus_History_TimeRange(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	now := time.Now()
	for i, id := range []string{"1", "2", "3"} {
		require.NoError(t, bus.Publish(context.Background(), Event{
			ID:        id,
			Type:      EventMessage,
			Timestamp: now.Add(time.Duration(i-3) * 10 * time.Minute),
		}))
	}

	history, err := bus.History(EventFilter{Since: now.Add(-25 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, history, 2)

	history, err = bus.History(EventFilter{Until: now.Add(-25 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "1", history[0].ID)
}

func TestMemoryEventBus_History_CombinedFilter(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	now := time.Now()
	events := []Event{
		{ID: "1", Type: EventSessionAdded, SessionID: "s1", Timestamp: now.Add(-30 * time.Minute)},
		{ID: "2", Type: EventSessionStatus, SessionID: "s1", Timestamp: now.Add(-15 * time.Minute)},
		{ID: "3", Type: EventSessionStatus, SessionID: "s2", Timestamp: now.Add(-10 * time.Minute)},
		{ID: "4", Type: EventMessage, SessionID: "s1", Timestamp: now.Add(-5 * time.Minute)},
	}
	for _, e := range events {
		require.NoError(t, bus.Publish(context.Background(), e))
	}

	// session_* events for s1 in the last 20 minutes
	history, err := bus.History(EventFilter{
		Types:     []string{"session_*"},
		SessionID: "s1",
		Since:     now.Add(-20 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "2", history[0].ID)
}

func TestMemoryEventBus_History_LimitKeepsNewest(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(context.Background(), Event{
			ID:   fmt.Sprintf("%d", i),
			Type: EventMessage,
		}))
	}

	history, err := bus.History(EventFilter{Limit: 3})
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "7", history[0].ID)
	assert.Equal(t, "9", history[2].ID)
}

func TestMemoryEventBus_Closed(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), Event{Type: EventMessage})
	assert.ErrorIs(t, err, ErrBusClosed)

	_, err = bus.Subscribe("*", func(ctx context.Context, e Event) error { return nil })
	assert.ErrorIs(t, err, ErrBusClosed)

	_, _, err = bus.SubscribeChannel("*", 1)
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestMemoryEventBus_Close_Idempotent(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	assert.NoError(t, bus.Close())
	assert.NoError(t, bus.Close())
}

func TestMemoryEventBus_ConcurrentPublish(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var count int32
	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				bus.Publish(context.Background(), Event{
					Type:      EventMessage,
					SessionID: fmt.Sprintf("s%d", n),
				})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(200), atomic.LoadInt32(&count))
}

func TestMemoryEventBus_PerSubscriberOrdering(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	_, ch, err := bus.SubscribeChannel("*", 100)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, bus.Publish(context.Background(), Event{
			Type:    EventMessage,
			Payload: map[string]interface{}{"seq": i},
		}))
	}

	// Events must drain in publish order.
	for i := 0; i < 50; i++ {
		select {
		case e := <-ch:
			assert.Equal(t, i, e.Payload["seq"])
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}
