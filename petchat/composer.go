package petchat

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"
)

// commandSender is the slice of the connection the composer and receipt
// tracker need.
type commandSender interface {
	Send(ctx context.Context, cmd Command) error
}

var imageMIMETypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

var voiceMIMETypes = map[string]struct{}{
	"audio/webm": {},
	"audio/ogg":  {},
	"audio/mpeg": {},
	"audio/wav":  {},
}

// Composer builds and dispatches outbound messages with optimistic local
// insertion. Every send carries a client-generated correlation id
// (clientRef) that the server echoes on the persisted message, so
// reconciliation is an exact-match lookup, never a heuristic.
//
// Sends attempted while the connection is not open fail fast: the pending
// entry flips to failed and stays visible. Nothing is resubmitted
// automatically on reconnect; Retry re-dispatches on explicit user action.
//
// Media payloads are encoded as a single base64 data URI message, not
// chunked, which bounds the supported attachment size to what one
// transport frame carries.
type Composer struct {
	cfg      Config
	sender   commandSender
	streams  *StreamSet
	identity *SessionIdentity
	logger   Logger
	now      func() time.Time

	mu         sync.Mutex
	lastStart  map[string]time.Time
	idleTimers map[string]*time.Timer
	// typingGens invalidates idle-stop timers already in flight; a
	// refreshing NotifyTyping or an explicit StopTyping bumps the
	// conversation's generation and a stale idleStop does nothing.
	typingGens map[string]uint64
	closed     bool
}

func NewComposer(cfg Config, sender commandSender, streams *StreamSet, identity *SessionIdentity, logger Logger) *Composer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Composer{
		cfg:        cfg,
		sender:     sender,
		streams:    streams,
		identity:   identity,
		logger:     logger,
		now:        time.Now,
		lastStart:  make(map[string]time.Time),
		idleTimers: make(map[string]*time.Timer),
		typingGens: make(map[string]uint64),
	}
}

// Send constructs a pending message, inserts it into the conversation's
// stream immediately, and dispatches it. The returned message carries the
// local id; on failure its state is failed and it remains in the buffer.
func (c *Composer) Send(ctx context.Context, conversationID, receiverID, body string, kind MessageKind) (Message, error) {
	if c.identity == nil {
		return Message{}, NewError(ErrorUnauthorized, "guest sessions cannot send messages")
	}
	if body == "" {
		if kind == KindText {
			return Message{}, NewError(ErrorBadRequest, "empty message body")
		}
		return Message{}, NewError(ErrorMedia, "empty media payload")
	}

	localID := uuid.NewString()
	msg := Message{
		ID:             localID,
		ConversationID: conversationID,
		SenderID:       c.identity.UserID,
		ReceiverID:     receiverID,
		Body:           body,
		Kind:           kind,
		CreatedAt:      c.now(),
		ClientRef:      localID,
		SendState:      SendPending,
	}

	stream := c.streams.Get(conversationID)
	stream.Append(msg)

	if err := c.dispatch(ctx, msg); err != nil {
		stream.SetSendState(localID, SendFailed)
		msg.SendState = SendFailed
		return msg, err
	}
	return msg, nil
}

// SendImage encodes image bytes as a data URI and sends them as one
// image message.
func (c *Composer) SendImage(ctx context.Context, conversationID, receiverID string, data []byte, mimeType string) (Message, error) {
	if _, ok := imageMIMETypes[mimeType]; !ok {
		return Message{}, NewError(ErrorMedia, "unsupported image type "+mimeType)
	}
	if len(data) == 0 {
		return Message{}, NewError(ErrorMedia, "empty image payload")
	}
	return c.Send(ctx, conversationID, receiverID, dataURI(mimeType, data), KindImage)
}

// SendVoice encodes a recording as a data URI and sends it as one voice
// message.
func (c *Composer) SendVoice(ctx context.Context, conversationID, receiverID string, data []byte, mimeType string) (Message, error) {
	if _, ok := voiceMIMETypes[mimeType]; !ok {
		return Message{}, NewError(ErrorMedia, "unsupported audio type "+mimeType)
	}
	if len(data) == 0 {
		return Message{}, NewError(ErrorMedia, "empty recording")
	}
	return c.Send(ctx, conversationID, receiverID, dataURI(mimeType, data), KindVoice)
}

// Retry re-dispatches a failed pending entry. This is the only resend
// path; reconnection never resubmits on its own.
func (c *Composer) Retry(ctx context.Context, conversationID, localID string) error {
	stream := c.streams.Get(conversationID)
	msg, ok := stream.Get(localID)
	if !ok {
		return NewError(ErrorNotFound, "no pending message "+localID)
	}
	if msg.SendState != SendFailed {
		return NewError(ErrorBadRequest, "message is not in a failed state")
	}

	stream.SetSendState(localID, SendPending)
	if err := c.dispatch(ctx, msg); err != nil {
		stream.SetSendState(localID, SendFailed)
		return err
	}
	return nil
}

// NotifyTyping reports local keystroke activity. Start emissions are
// throttled per conversation so rapid keystrokes do not flood the
// transport; going quiet for the quiet window emits a stop.
func (c *Composer) NotifyTyping(ctx context.Context, conversationID, receiverID string) {
	if c.identity == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	nw := c.now()
	emitStart := nw.Sub(c.lastStart[conversationID]) >= c.cfg.TypingThrottle
	if emitStart {
		c.lastStart[conversationID] = nw
	}
	if timer, ok := c.idleTimers[conversationID]; ok {
		timer.Stop()
	}
	c.typingGens[conversationID]++
	gen := c.typingGens[conversationID]
	c.idleTimers[conversationID] = time.AfterFunc(c.cfg.TypingQuietWindow, func() {
		c.idleStop(conversationID, receiverID, gen)
	})
	c.mu.Unlock()

	if emitStart {
		cmd := Command{Type: cmdTypingStart, Data: TypingPayload{ConversationID: conversationID, ReceiverID: receiverID}}
		if err := c.sender.Send(ctx, cmd); err != nil {
			c.logger.Debug("typing start not sent", map[string]any{"error": err.Error()})
		}
	}
}

// StopTyping emits an explicit stop and cancels the idle timer. It is a
// no-op when no typing activity is outstanding.
func (c *Composer) StopTyping(ctx context.Context, conversationID, receiverID string) {
	c.mu.Lock()
	timer, active := c.idleTimers[conversationID]
	if active {
		timer.Stop()
		delete(c.idleTimers, conversationID)
		delete(c.lastStart, conversationID)
		c.typingGens[conversationID]++
	}
	c.mu.Unlock()
	if !active {
		return
	}

	cmd := Command{Type: cmdTypingStop, Data: TypingPayload{ConversationID: conversationID, ReceiverID: receiverID}}
	if err := c.sender.Send(ctx, cmd); err != nil {
		c.logger.Debug("typing stop not sent", map[string]any{"error": err.Error()})
	}
}

// Close cancels all typing timers. The composer accepts no further
// activity afterwards.
func (c *Composer) Close() {
	c.mu.Lock()
	c.closed = true
	for id, timer := range c.idleTimers {
		timer.Stop()
		delete(c.idleTimers, id)
	}
	c.mu.Unlock()
}

func (c *Composer) dispatch(ctx context.Context, m Message) error {
	cmd := Command{Type: cmdSendMessage, Data: SendPayload{
		ConversationID: m.ConversationID,
		ReceiverID:     m.ReceiverID,
		Body:           m.Body,
		Kind:           m.Kind,
		ClientRef:      m.ClientRef,
	}}
	return c.sender.Send(ctx, cmd)
}

func (c *Composer) idleStop(conversationID, receiverID string, gen uint64) {
	c.mu.Lock()
	// A refresh or explicit stop that raced this timer bumped the
	// generation; the stop belongs to a superseded quiet window.
	if c.closed || c.typingGens[conversationID] != gen {
		c.mu.Unlock()
		return
	}
	delete(c.idleTimers, conversationID)
	delete(c.lastStart, conversationID)
	c.mu.Unlock()

	cmd := Command{Type: cmdTypingStop, Data: TypingPayload{ConversationID: conversationID, ReceiverID: receiverID}}
	if err := c.sender.Send(context.Background(), cmd); err != nil {
		c.logger.Debug("typing stop not sent", map[string]any{"error": err.Error()})
	}
}

func dataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
