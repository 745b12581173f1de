package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedPublish struct {
	routingKey string
	event      any
	headers    map[string]string
}

type capturePublisher struct {
	calls []capturedPublish
	err   error
}

func (p *capturePublisher) Publish(_ context.Context, routingKey string, event any, headers map[string]string) error {
	p.calls = append(p.calls, capturedPublish{routingKey: routingKey, event: event, headers: headers})
	return p.err
}

func TestAuditEmitterEmit(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewAuditEmitter(pub, "audit.chat-service", "chat-service", "test", slog.New(slog.NewTextHandler(io.Discard, nil)))

	emitter.Emit(context.Background(), "INFO", "chat created", "req-1", 42)

	require.Len(t, pub.calls, 1)
	call := pub.calls[0]
	assert.Equal(t, "audit.chat-service", call.routingKey)
	assert.Equal(t, map[string]string{"x-request-id": "req-1"}, call.headers)

	envelope, ok := call.event.(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, 1, envelope.SchemaVersion)
	assert.Equal(t, "audit_log", envelope.EventType)
	assert.Equal(t, "chat-service", envelope.Service)
	assert.Equal(t, "test", envelope.Environment)
	require.NotNil(t, envelope.UserID)
	assert.Equal(t, "42", *envelope.UserID)
	assert.Equal(t, AuditPayload{Level: "INFO", Text: "chat created"}, envelope.Payload)
}

func TestAuditEmitterAnonymousAndFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	emitter := NewAuditEmitter(pub, "audit", "svc", "dev", slog.New(slog.NewTextHandler(io.Discard, nil)))

	emitter.Emit(context.Background(), "WARN", "login failed", "", 0)

	require.Len(t, pub.calls, 1)
	assert.Empty(t, pub.calls[0].headers)
	assert.Nil(t, pub.calls[0].event.(AuditEnvelope).UserID)
}

func TestAuditEmitterNil(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "noop", "", 1)
	})
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "", "chat-service", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
