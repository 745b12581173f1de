package pubsub

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receive(t *testing.T, sub Subscription) []byte {
	t.Helper()
	select {
	case payload, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		return payload
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func TestChatTopic(t *testing.T) {
	assert.Equal(t, "chat:7", ChatTopic(7))
}

func TestMemoryBrokerFanOut(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(discardLogger())
	defer b.Close()

	first, err := b.Subscribe(ctx, ChatTopic(1))
	require.NoError(t, err)
	second, err := b.Subscribe(ctx, ChatTopic(1))
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, ChatTopic(2))
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, ChatTopic(1), []byte("a")))
	require.NoError(t, b.Publish(ctx, ChatTopic(1), []byte("b")))

	for _, sub := range []Subscription{first, second} {
		assert.Equal(t, "a", string(receive(t, sub)))
		assert.Equal(t, "b", string(receive(t, sub)))
	}
	select {
	case payload := <-other.Messages():
		t.Fatalf("unexpected payload on other topic: %s", payload)
	default:
	}
}

func TestMemorySubscriptionClose(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(discardLogger())

	sub, err := b.Subscribe(ctx, "chat:1")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers("chat:1"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, b.Subscribers("chat:1"))

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	require.NoError(t, b.Publish(ctx, "chat:1", []byte("x")))
}

func TestMemoryBrokerClose(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(discardLogger())

	sub, err := b.Subscribe(ctx, "chat:1")
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	require.NoError(t, sub.Close())
	assert.ErrorIs(t, b.Publish(ctx, "chat:1", nil), ErrClosed)
	_, err = b.Subscribe(ctx, "chat:1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBrokerDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(discardLogger())
	defer b.Close()

	sub, err := b.Subscribe(ctx, "chat:1")
	require.NoError(t, err)

	for i := 0; i < memoryBufferSize+10; i++ {
		require.NoError(t, b.Publish(ctx, "chat:1", []byte("x")))
	}
	assert.Len(t, sub.Messages(), memoryBufferSize)
}

func TestNewBrokerWithoutURL(t *testing.T) {
	b, err := NewBroker(context.Background(), "", discardLogger())
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "memory", Mode(b))
}
