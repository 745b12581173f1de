package pubsub

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBrokerPublishSubscribe(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	b, err := NewBroker(ctx, "redis://"+srv.Addr(), discardLogger())
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "redis", Mode(b))

	first, err := b.Subscribe(ctx, ChatTopic(7))
	require.NoError(t, err)
	defer first.Close()
	second, err := b.Subscribe(ctx, ChatTopic(7))
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, b.Publish(ctx, ChatTopic(7), []byte(`{"type":"message"}`)))
	require.NoError(t, b.Publish(ctx, ChatTopic(7), []byte(`{"type":"read_status"}`)))

	for _, sub := range []Subscription{first, second} {
		assert.Equal(t, `{"type":"message"}`, string(receive(t, sub)))
		assert.Equal(t, `{"type":"read_status"}`, string(receive(t, sub)))
	}
}

func TestRedisSubscriptionCloseEndsStream(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	b, err := NewBroker(ctx, "redis://"+srv.Addr(), discardLogger())
	require.NoError(t, err)
	defer b.Close()

	sub, err := b.Subscribe(ctx, ChatTopic(1))
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	for range sub.Messages() {
	}
}

func TestNewBrokerBadURL(t *testing.T) {
	_, err := NewBroker(context.Background(), "not-a-url://", discardLogger())
	require.Error(t, err)
}
