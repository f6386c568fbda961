package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEvent(t *testing.T, text string) Event {
	t.Helper()
	e, err := NewEvent(EventNewMessage, map[string]string{"text": text})
	require.NoError(t, err)
	return e
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func requireClosed(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "channel still open")
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestMemoryHub_FanOut(t *testing.T) {
	hub := NewMemoryHub(4)
	defer hub.Close()
	ctx := context.Background()

	a, cancelA, err := hub.Subscribe(ctx)
	require.NoError(t, err)
	defer cancelA()
	b, cancelB, err := hub.Subscribe(ctx)
	require.NoError(t, err)
	defer cancelB()

	e := mustEvent(t, "hello")
	require.NoError(t, hub.Publish(ctx, e))

	assert.Equal(t, e.ID, receive(t, a).ID)
	assert.Equal(t, e.ID, receive(t, b).ID)
	assert.Equal(t, 2, hub.Subscribers())
}

func TestMemoryHub_SlowSubscriberDrops(t *testing.T) {
	hub := NewMemoryHub(1)
	defer hub.Close()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx)
	require.NoError(t, err)
	defer cancel()

	first := mustEvent(t, "one")
	require.NoError(t, hub.Publish(ctx, first))
	require.NoError(t, hub.Publish(ctx, mustEvent(t, "two")))

	assert.Equal(t, first.ID, receive(t, ch).ID)
	assert.Equal(t, uint64(1), hub.Dropped())
}

func TestMemoryHub_CancelClosesChannel(t *testing.T) {
	hub := NewMemoryHub(0)
	defer hub.Close()

	ch, cancel, err := hub.Subscribe(context.Background())
	require.NoError(t, err)

	cancel()
	cancel()
	requireClosed(t, ch)
	assert.Equal(t, 0, hub.Subscribers())
}

func TestMemoryHub_ContextEndsSubscription(t *testing.T) {
	hub := NewMemoryHub(0)
	defer hub.Close()

	ctx, cancelCtx := context.WithCancel(context.Background())
	ch, cancel, err := hub.Subscribe(ctx)
	require.NoError(t, err)
	defer cancel()

	cancelCtx()
	requireClosed(t, ch)
}

func TestMemoryHub_Close(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())
	requireClosed(t, ch)

	assert.ErrorIs(t, hub.Publish(ctx, mustEvent(t, "late")), ErrClosed)
	_, _, err = hub.Subscribe(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, hub.Ping(ctx), ErrClosed)
}

func TestMemoryHub_PublishCanceledContext(t *testing.T) {
	hub := NewMemoryHub(0)
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, hub.Publish(ctx, mustEvent(t, "x")), context.Canceled)
}

func TestMemoryHub_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	hub := NewMemoryHub(8)
	defer hub.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx)
			if err != nil {
				return
			}
			for j := 0; j < 3; j++ {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = hub.Publish(ctx, mustEvent(t, "x"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers())
}
