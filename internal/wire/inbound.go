package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownType  = errors.New("unknown frame type")
	ErrInvalidFrame = errors.New("invalid frame")
)

// Inbound is a frame received from a client. It is implemented only by
// MessageIn and ReadStatusIn.
type Inbound interface {
	FrameType() Type
}

// MessageIn is a chat message sent by a client.
type MessageIn struct {
	Content string
}

func (MessageIn) FrameType() Type { return TypeMessage }

// ReadStatusIn marks a message as read.
type ReadStatusIn struct {
	MessageID int
}

func (ReadStatusIn) FrameType() Type { return TypeReadStatus }

type envelope struct {
	Type Type `json:"type"`
}

// Pointer fields tell a missing key apart from a zero value.
type messageInPayload struct {
	Content *string `json:"content" validate:"required"`
}

type readStatusInPayload struct {
	MessageID *int `json:"message_id" validate:"required"`
}

var validate = validator.New()

// Decode parses a client frame. It returns ErrMalformed for invalid JSON,
// ErrUnknownType for a missing or unrecognized discriminant and
// ErrInvalidFrame when the payload does not fit the declared variant.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %v", ErrUnknownType, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeMessage:
		var p messageInPayload
		if err := decodeVariant(data, &p); err != nil {
			return nil, err
		}
		return MessageIn{Content: *p.Content}, nil
	case TypeReadStatus:
		var p readStatusInPayload
		if err := decodeVariant(data, &p); err != nil {
			return nil, err
		}
		return ReadStatusIn{MessageID: *p.MessageID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeVariant(data []byte, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return nil
}
