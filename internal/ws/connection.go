package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var ErrConnectionClosed = errors.New("connection closed")

// Socket is the part of *websocket.Conn a Connection writes through.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection is an accepted socket bound to one chat for its whole lifetime.
// Writes are serialized so the session and its forwarder can share it.
type Connection struct {
	Info   ConnInfo
	ChatID int

	socket    Socket
	writeWait time.Duration
	writeMu   sync.Mutex

	streaming  chan struct{}
	streamOnce sync.Once
	closeOnce  sync.Once
	closed     atomic.Bool
}

func NewConnection(socket Socket, chatID int, info ConnInfo, writeWait time.Duration) *Connection {
	return &Connection{
		Info:      info,
		ChatID:    chatID,
		socket:    socket,
		writeWait: writeWait,
		streaming: make(chan struct{}),
	}
}

// Send writes one text frame.
func (c *Connection) Send(payload []byte) error {
	return c.write(websocket.TextMessage, payload)
}

func (c *Connection) SendJSON(frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

func (c *Connection) ping() error {
	return c.write(websocket.PingMessage, nil)
}

func (c *Connection) write(messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if c.writeWait > 0 {
		if err := c.socket.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
			return err
		}
	}
	return c.socket.WriteMessage(messageType, payload)
}

// BeginStreaming opens the gate the forwarder waits on before relaying live
// frames. Calling it more than once is harmless.
func (c *Connection) BeginStreaming() {
	c.streamOnce.Do(func() { close(c.streaming) })
}

// Streaming is closed once history replay has finished.
func (c *Connection) Streaming() <-chan struct{} {
	return c.streaming
}

// Closed reports whether the socket has been closed by the server.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// close sends a close frame and closes the socket. Only the first call has
// any effect.
func (c *Connection) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		c.closed.Store(true)
		deadline := time.Now().Add(time.Second)
		if c.writeWait > 0 {
			deadline = time.Now().Add(c.writeWait)
		}
		_ = c.socket.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.socket.Close()
	})
}
