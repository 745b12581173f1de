package auth

import (
	"errors"
	"strings"

	"realtime-chat/internal/repositories"
)

// Close reasons sent with a policy-violation close before a socket is accepted.
const (
	ReasonMissingHeader   = "Missing authentication header"
	ReasonInvalidScheme   = "Invalid authentication scheme"
	ReasonInvalidToken    = "Invalid authentication token"
	ReasonUserNotFound    = "User not found"
	ReasonInvalidFormat   = "Invalid authorization header format"
	ReasonChatNotFound    = "Chat not found"
	ReasonNotAParticipant = "User is not a participant in this chat"
)

// RejectError is a pre-accept failure with the reason reported to the client.
type RejectError struct {
	Reason string
	Err    error
}

func (e *RejectError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *RejectError) Unwrap() error { return e.Err }

func reject(reason string, err error) *RejectError {
	return &RejectError{Reason: reason, Err: err}
}

// ParseAuthorizationHeader extracts the token from "Bearer <token>".
func ParseAuthorizationHeader(header string) (string, error) {
	if header == "" {
		return "", reject(ReasonMissingHeader, nil)
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return "", reject(ReasonInvalidFormat, nil)
	}
	if !strings.EqualFold(parts[0], "bearer") {
		return "", reject(ReasonInvalidScheme, nil)
	}
	return parts[1], nil
}

// RejectionFor maps a token resolution error onto its close reason. It
// returns nil for failures unrelated to the presented credential.
func RejectionFor(err error) *RejectError {
	var rejectErr *RejectError
	switch {
	case errors.As(err, &rejectErr):
		return rejectErr
	case errors.Is(err, ErrMalformedSubject):
		return reject(ReasonInvalidFormat, err)
	case errors.Is(err, ErrInvalidToken):
		return reject(ReasonInvalidToken, err)
	case errors.Is(err, repositories.ErrUserNotFound):
		return reject(ReasonUserNotFound, err)
	default:
		return nil
	}
}
