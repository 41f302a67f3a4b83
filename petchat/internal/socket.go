// Package internal holds the websocket plumbing shared by the petchat
// connection manager. Nothing here is part of the public API.
package internal

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Socket is a JSON-envelope websocket with per-operation deadlines.
// A zero timeout disables the deadline for that direction; the caller's
// context still applies. Close is safe to call from multiple teardown
// paths; only the first call reaches the wire.
type Socket struct {
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func NewSocket(ws *websocket.Conn, readTimeout, writeTimeout time.Duration) *Socket {
	return &Socket{ws: ws, readTimeout: readTimeout, writeTimeout: writeTimeout}
}

// Read decodes the next JSON envelope into v. It blocks until a frame
// arrives, the read deadline passes, or ctx is done.
func (s *Socket) Read(ctx context.Context, v any) error {
	if s.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.readTimeout)
		defer cancel()
	}
	return wsjson.Read(ctx, s.ws, v)
}

// Write encodes v as one JSON envelope.
func (s *Socket) Write(ctx context.Context, v any) error {
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, s.ws, v)
}

// Close performs the websocket close handshake once. Later calls return
// the first call's result, so the connection manager's disconnect and
// failure paths can both call it without tracking who won.
func (s *Socket) Close(code websocket.StatusCode, reason string) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ws.Close(code, reason)
	})
	return s.closeErr
}
