package pubsub

import (
	"context"
	"log/slog"
	"sync"
)

const memoryBufferSize = 256

// MemoryBroker is an in-process fan-out bus for single-instance deployments
// and tests. A subscriber whose buffer is full misses the event.
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySubscription]struct{}
	closed bool
	logger *slog.Logger
}

func NewMemoryBroker(logger *slog.Logger) *MemoryBroker {
	return &MemoryBroker{
		topics: make(map[string]map[*memorySubscription]struct{}),
		logger: logger,
	}
}

func (b *MemoryBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for sub := range b.topics[topic] {
		select {
		case sub.ch <- payload:
		default:
			b.logger.Warn("pubsub subscriber buffer full, dropping event", "topic", topic)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{broker: b, topic: topic, ch: make(chan []byte, memoryBufferSize)}
	if _, ok := b.topics[topic]; !ok {
		b.topics[topic] = make(map[*memorySubscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	return sub, nil
}

// Close closes every open subscription. Later calls are no-ops.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.topics {
		for sub := range subs {
			close(sub.ch)
		}
		delete(b.topics, topic)
	}
	return nil
}

// Subscribers returns the number of open subscriptions on topic.
func (b *MemoryBroker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

type memorySubscription struct {
	broker *MemoryBroker
	topic  string
	ch     chan []byte
}

func (s *memorySubscription) Messages() <-chan []byte {
	return s.ch
}

func (s *memorySubscription) Close() error {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[s.topic]
	if !ok {
		return nil
	}
	if _, ok := subs[s]; !ok {
		return nil
	}
	delete(subs, s)
	close(s.ch)
	if len(subs) == 0 {
		delete(b.topics, s.topic)
	}
	return nil
}
