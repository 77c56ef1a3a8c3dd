package adapter

import (
	"context"

	"agentboard/internal/domain/model"
)

// StreamConn is one open transport connection. ReadFrame blocks until a
// frame arrives or the transport fails; a failure ends the connection.
type StreamConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	Close() error
}

// StreamTransport dials the push stream for one resource. The websocket
// implementation lives in infra; tests script their own.
type StreamTransport interface {
	Dial(ctx context.Context, resourceID string) (StreamConn, error)
}

// StreamSession is the use-case view of one reconnecting stream client.
type StreamSession interface {
	Connect(ctx context.Context, resourceID string)
	SendUserInput(text string) error
	Subscribe() (<-chan model.StreamMessage, func())
	States() (<-chan model.ConnectionState, func())
	Errors() (<-chan error, func())
	Disconnect()
	ResetAndReconnect()
}
