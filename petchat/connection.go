package petchat

import (
	"context"
	"errors"
	"io"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/Yomna-Elshorbagy/Petique-Clinic-sub002/petchat/internal"

	"github.com/coder/websocket"
)

// transport is the minimal connection surface the manager needs. It is
// satisfied by internal.Socket and by test fakes.
type transport interface {
	Read(ctx context.Context, v any) error
	Write(ctx context.Context, v any) error
	Close(code websocket.StatusCode, reason string) error
}

type dialFunc func(ctx context.Context, socketURL string) (transport, error)

// ConnectionManager owns the single transport connection: the auth
// handshake, the read/write loops, and the bounded reconnection policy.
// All inbound pushes are fed to the Dispatcher.
type ConnectionManager struct {
	cfg        Config
	logger     Logger
	dispatcher *Dispatcher
	dial       dialFunc

	writeCh chan Command

	mu          sync.Mutex
	status      ConnStatus
	conn        transport
	cancelLoops context.CancelFunc
	retryTimer  *time.Timer
	attempts    int
	closed      bool
	observers   []func(StatusEvent)
}

// NewConnectionManager constructs a manager in the closed state.
func NewConnectionManager(cfg Config, logger Logger, d *Dispatcher) *ConnectionManager {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &ConnectionManager{
		cfg:        cfg,
		logger:     logger,
		dispatcher: d,
		writeCh:    make(chan Command, 16),
	}
	c.dial = func(ctx context.Context, socketURL string) (transport, error) {
		ws, _, err := websocket.Dial(ctx, socketURL, nil)
		if err != nil {
			return nil, err
		}
		return internal.NewSocket(ws, cfg.ReadTimeout, cfg.WriteTimeout), nil
	}
	return c
}

// OnStatus registers an observer for connection status changes. Register
// observers before calling Connect.
func (c *ConnectionManager) OnStatus(fn func(StatusEvent)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Status returns the current connection status.
func (c *ConnectionManager) Status() ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect opens the transport, authenticates, and starts the internal
// loops. Without a credential it does nothing and returns nil: the rest
// of the application keeps working in guest mode.
func (c *ConnectionManager) Connect(ctx context.Context) error {
	if c.cfg.Token == "" {
		c.logger.Info("no credential, skipping transport connection", nil)
		return nil
	}
	if c.cfg.SocketURL == "" {
		return NewError(ErrorInvalidConfig, "empty socket URL")
	}

	c.mu.Lock()
	if c.status == StatusOpen || c.status == StatusConnecting {
		c.mu.Unlock()
		return NewError(ErrorConnection, "already connected")
	}
	c.closed = false
	c.attempts = 0
	c.mu.Unlock()

	c.setStatus(StatusConnecting, nil)
	if err := c.open(ctx); err != nil {
		c.setStatus(StatusClosed, err)
		return err
	}
	return nil
}

// Disconnect closes deterministically: it cancels the loops and any
// pending reconnect timer and leaves the status closed.
func (c *ConnectionManager) Disconnect() error {
	c.mu.Lock()
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.cancelLoops != nil {
		c.cancelLoops()
		c.cancelLoops = nil
	}
	conn := c.conn
	c.conn = nil
	c.attempts = 0
	c.mu.Unlock()

	c.setStatus(StatusClosed, nil)
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client close")
	}
	return nil
}

// Send queues a command for the write loop. Commands are rejected, never
// queued indefinitely, while the connection is not open.
func (c *ConnectionManager) Send(ctx context.Context, cmd Command) error {
	c.mu.Lock()
	open := c.status == StatusOpen
	c.mu.Unlock()
	if !open {
		return NewError(ErrorNotConnected, "connection is not open")
	}

	select {
	case c.writeCh <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ConnectionManager) open(ctx context.Context) error {
	u, err := url.Parse(c.cfg.SocketURL)
	if err != nil {
		return WrapError(ErrorInvalidConfig, "invalid socket URL", err)
	}

	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	conn, err := c.dial(dialCtx, u.String())
	if err != nil {
		return WrapError(ErrorConnection, "dial failed", err)
	}

	hello := Command{Type: cmdAuth, Data: AuthPayload{Token: c.cfg.Token}}
	if err := conn.Write(ctx, hello); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "handshake error")
		return WrapError(ErrorConnection, "auth handshake failed", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "client close")
		return NewError(ErrorDisconnected, "closed during connect")
	}
	c.conn = conn
	c.cancelLoops = cancel
	c.attempts = 0
	c.mu.Unlock()

	c.setStatus(StatusOpen, nil)
	go c.readLoop(runCtx, conn)
	go c.writeLoop(runCtx, conn)
	return nil
}

func (c *ConnectionManager) readLoop(ctx context.Context, conn transport) {
	for {
		var p Push
		if err := conn.Read(ctx, &p); err != nil {
			if isExpectedDisconnect(ctx, err) {
				return
			}
			c.logger.Warn("read loop exit", map[string]any{"error": err.Error()})
			c.dispatcher.fireError(WrapError(ErrorConnection, "connection lost", err))
			c.handleLost(err)
			return
		}
		c.dispatcher.Dispatch(p)
	}
}

func (c *ConnectionManager) writeLoop(ctx context.Context, conn transport) {
	for {
		select {
		case cmd := <-c.writeCh:
			if err := conn.Write(ctx, cmd); err != nil {
				if isExpectedDisconnect(ctx, err) {
					return
				}
				// The read loop notices the broken connection and owns
				// the reconnect; this loop just reports and exits.
				c.logger.Warn("write loop exit", map[string]any{"error": err.Error()})
				c.dispatcher.fireError(WrapError(ErrorConnection, "write failed", err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleLost reacts to an unexpected closure: tear down the loops and
// start the bounded retry sequence.
func (c *ConnectionManager) handleLost(cause error) {
	c.mu.Lock()
	if c.closed || c.status == StatusFailed {
		c.mu.Unlock()
		return
	}
	if c.cancelLoops != nil {
		c.cancelLoops()
		c.cancelLoops = nil
	}
	c.conn = nil
	c.mu.Unlock()

	c.setStatus(StatusConnecting, cause)
	c.scheduleRetry(cause)
}

func (c *ConnectionManager) scheduleRetry(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.mu.Unlock()
		c.logger.Error("reconnect attempts exhausted", map[string]any{
			"attempts": c.cfg.MaxReconnectAttempts,
		})
		c.setStatus(StatusFailed, cause)
		c.dispatcher.fireError(WrapError(ErrorDisconnected, "reconnect attempts exhausted", cause))
		return
	}
	c.attempts++
	attempt := c.attempts
	c.retryTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() { c.retry(attempt) })
	c.mu.Unlock()
	c.logger.Info("reconnect scheduled", map[string]any{"attempt": attempt})
}

func (c *ConnectionManager) retry(attempt int) {
	c.mu.Lock()
	if c.closed || c.status == StatusFailed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.open(context.Background()); err != nil {
		c.logger.Warn("reconnect attempt failed", map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		})
		c.scheduleRetry(err)
	}
}

func (c *ConnectionManager) setStatus(status ConnStatus, err error) {
	c.mu.Lock()
	// A transition decided before Disconnect ran must not resurrect a
	// closed manager.
	if c.closed && status != StatusClosed {
		c.mu.Unlock()
		return
	}
	old := c.status
	if old == status {
		c.mu.Unlock()
		return
	}
	c.status = status
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(StatusEvent{Old: old, New: status, Err: err})
	}
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
