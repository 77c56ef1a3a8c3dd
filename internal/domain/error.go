package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotConnected     = errors.New("stream is not connected")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// ErrKind classifies sync failures for logging and user display.
type ErrKind string

const (
	KindConnectionFailed ErrKind = "connection_failed"
	KindConnectionLost   ErrKind = "connection_lost"
	KindTimeout          ErrKind = "timeout"
	KindInvalidMessage   ErrKind = "invalid_message" // non-fatal, never tears down a stream
	KindServerError      ErrKind = "server_error"
	KindUnknown          ErrKind = "unknown"
)

// SyncError pairs an internal detail with a short user-facing message.
type SyncError struct {
	Kind    ErrKind
	Op      string
	UserMsg string
	Err     error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *SyncError) Unwrap() error { return e.Err }

// UserMessage returns the short display string, falling back per kind.
func (e *SyncError) UserMessage() string {
	if e.UserMsg != "" {
		return e.UserMsg
	}
	switch e.Kind {
	case KindConnectionFailed:
		return "Could not connect to the server."
	case KindConnectionLost:
		return "Connection to the server was lost."
	case KindTimeout:
		return "The server took too long to respond."
	case KindInvalidMessage:
		return "Received an unreadable update."
	case KindServerError:
		return "The server reported an error."
	default:
		return "Something went wrong."
	}
}

func NewSyncError(kind ErrKind, op string, err error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the error kind, defaulting to KindUnknown.
func KindOf(err error) ErrKind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
