package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"realtime-chat/internal/observability"
	"realtime-chat/internal/pubsub"
	"realtime-chat/internal/wire"
)

var (
	ErrAlreadyConnected = errors.New("connection already registered")
	ErrManagerClosed    = errors.New("connection manager closed")
)

type forwardingTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

// Manager owns the live connections of this process. Each registered
// connection has exactly one forwarding goroutine relaying its chat topic.
type Manager struct {
	broker       pubsub.Broker
	logger       *slog.Logger
	pingInterval time.Duration
	now          func() time.Time

	mu     sync.Mutex
	tasks  map[*Connection]*forwardingTask
	closed bool

	locksMu sync.Mutex
	locks   map[int]*chatLock
}

type ManagerOption func(*Manager)

// WithPingInterval enables keepalive pings on every connection.
func WithPingInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.pingInterval = d }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func NewManager(broker pubsub.Broker, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		broker: broker,
		logger: logger,
		now:    time.Now,
		tasks:  make(map[*Connection]*forwardingTask),
		locks:  make(map[int]*chatLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect subscribes to the connection's chat topic and starts its
// forwarder. The caller must have authorized the user for the chat.
func (m *Manager) Connect(ctx context.Context, conn *Connection) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if _, ok := m.tasks[conn]; ok {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.mu.Unlock()

	sub, err := m.broker.Subscribe(ctx, pubsub.ChatTopic(conn.ChatID))
	if err != nil {
		return fmt.Errorf("subscribe chat %d: %w", conn.ChatID, err)
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	task := &forwardingTask{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		_ = sub.Close()
		return ErrManagerClosed
	}
	if _, ok := m.tasks[conn]; ok {
		m.mu.Unlock()
		cancel()
		_ = sub.Close()
		return ErrAlreadyConnected
	}
	m.tasks[conn] = task
	m.mu.Unlock()

	observability.IncWSActive(wsKind)
	go m.listenForMessages(taskCtx, conn, sub, task.done)
	return nil
}

func (m *Manager) listenForMessages(ctx context.Context, conn *Connection, sub pubsub.Subscription, done chan struct{}) {
	defer close(done)
	defer sub.Close()

	select {
	case <-ctx.Done():
		return
	case <-conn.Streaming():
	}

	var pings <-chan time.Time
	if m.pingInterval > 0 {
		ticker := time.NewTicker(m.pingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.Messages():
			if !ok {
				if ctx.Err() == nil {
					m.logger.Warn("chat subscription ended", "chat_id", conn.ChatID, "conn_id", conn.Info.ConnID)
					m.Disconnect(conn)
				}
				return
			}
			if err := conn.Send(payload); err != nil {
				if ctx.Err() == nil {
					m.logger.Debug("forward failed, disconnecting", "chat_id", conn.ChatID, "conn_id", conn.Info.ConnID, "error", err)
					m.Disconnect(conn)
				}
				return
			}
		case <-pings:
			if err := conn.ping(); err != nil {
				if ctx.Err() == nil {
					m.logger.Debug("ping failed, disconnecting", "chat_id", conn.ChatID, "conn_id", conn.Info.ConnID, "error", err)
					m.Disconnect(conn)
				}
				return
			}
		}
	}
}

// Disconnect cancels the connection's forwarder and closes its socket. It is
// safe to call any number of times, from any goroutine.
func (m *Manager) Disconnect(conn *Connection) {
	m.disconnect(conn, websocket.CloseNormalClosure)
}

func (m *Manager) disconnect(conn *Connection, code int) {
	m.mu.Lock()
	task, ok := m.tasks[conn]
	if ok {
		delete(m.tasks, conn)
	}
	m.mu.Unlock()

	if ok {
		task.cancel()
		observability.DecWSActive(wsKind)
	}
	conn.close(code, "")
}

// Shutdown disconnects every live connection and waits for the forwarders to
// exit or ctx to expire. Later Connect calls fail with ErrManagerClosed.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	conns := make([]*Connection, 0, len(m.tasks))
	dones := make([]chan struct{}, 0, len(m.tasks))
	for conn, task := range m.tasks {
		conns = append(conns, conn)
		dones = append(dones, task.done)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		m.disconnect(conn, websocket.CloseGoingAway)
	}
	for _, done := range dones {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// BroadcastMessage publishes a persisted message to every connection on the
// chat, the sender's own included.
func (m *Manager) BroadcastMessage(ctx context.Context, chatID int, msg wire.MessageOut) error {
	return m.broadcastToChat(ctx, chatID, msg)
}

// BroadcastReadStatus publishes a read receipt stamped with the current time.
func (m *Manager) BroadcastReadStatus(ctx context.Context, messageID, chatID, readerID int) error {
	return m.broadcastToChat(ctx, chatID, wire.NewReadStatusOut(messageID, readerID, m.now().UTC()))
}

func (m *Manager) broadcastToChat(ctx context.Context, chatID int, frame any) error {
	payload, err := wire.Encode(frame)
	if err != nil {
		return err
	}
	if err := m.broker.Publish(ctx, pubsub.ChatTopic(chatID), payload); err != nil {
		observability.IncBusPublishError()
		m.logger.Error("chat broadcast failed", "chat_id", chatID, "error", err)
		return err
	}
	return nil
}

// LockChat serializes persist-then-publish for one chat within this process so
// live delivery order matches storage order. Call the returned func to release.
func (m *Manager) LockChat(chatID int) func() {
	m.locksMu.Lock()
	lock, ok := m.locks[chatID]
	if !ok {
		lock = &chatLock{}
		m.locks[chatID] = lock
	}
	lock.refs++
	m.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		m.locksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(m.locks, chatID)
		}
		m.locksMu.Unlock()
	}
}

// ActiveConnections reports how many connections are registered.
func (m *Manager) ActiveConnections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
