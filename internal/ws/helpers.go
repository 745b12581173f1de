package ws

import "github.com/google/uuid"

const (
	wsKind       = "chat"
	wsRoutingKey = "ws_events.chats"
)

func newConnID() string {
	return uuid.NewString()
}
