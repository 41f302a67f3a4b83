package petchat

import (
	"context"
	"sync"

	"github.com/Yomna-Elshorbagy/Petique-Clinic-sub002/petchat/rest"
)

// Session is the composition root for one authenticated chat session. It
// owns the connection, the state stores, and every timer they create, and
// wires inbound events to reducer-style updates against the typed model.
//
// A Session is scoped to one credential. On logout/login build a fresh
// Session; never reuse one across users, or state leaks between them.
// Close tears down the transport, cancels all timers, and cancels the
// session context so late REST callbacks are no-ops.
type Session struct {
	cfg    Config
	logger Logger

	identity      *SessionIdentity
	api           *rest.Client
	dispatcher    *Dispatcher
	conn          *ConnectionManager
	conversations *ConversationStore
	streams       *StreamSet
	presence      *PresenceTracker
	typing        *TypingCoordinator
	composer      *Composer
	receipts      *ReadReceiptTracker

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	closed     bool
	onMessage  func(Message)
	onTyping   func(peerID string, typing bool)
	onPresence func(PresenceEvent)
	onError    func(error)
}

// NewSession builds a session from the config. An empty cfg.Token yields
// a guest session: REST browsing works unauthenticated and Connect is a
// no-op. A nil logger discards logs.
func NewSession(cfg Config, logger Logger) (*Session, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	identity, err := IdentityFromToken(cfg.Token)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	api := rest.NewClient(ctx, cfg.APIURL)
	api.SetToken(cfg.Token)

	s := &Session{
		cfg:      cfg,
		logger:   logger,
		identity: identity,
		api:      api,
		ctx:      ctx,
		cancel:   cancel,
	}

	selfID := ""
	if identity != nil {
		selfID = identity.UserID
	}

	s.dispatcher = &Dispatcher{logger: logger}
	s.conn = NewConnectionManager(cfg, logger, s.dispatcher)
	s.streams = NewStreamSet(api, cfg.PageSize)
	s.conversations = NewConversationStore(api, selfID, cfg.PageSize, logger)
	s.presence = NewPresenceTracker()
	s.typing = NewTypingCoordinator(cfg.TypingQuietWindow)
	s.composer = NewComposer(cfg, s.conn, s.streams, identity, logger)
	s.receipts = NewReadReceiptTracker(s.conn, s.streams, identity, logger)

	s.wire()
	return s, nil
}

// wire maps each inbound event type to its reducer.
func (s *Session) wire() {
	s.dispatcher.SetOnMessage(s.reduceMessage)
	s.dispatcher.SetOnConversationUpdated(func(ev ConversationUpdatedEvent) {
		s.conversations.Upsert(ev.Conversation)
	})
	s.dispatcher.SetOnTyping(func(ev TypingEvent) {
		if ev.IsTyping {
			s.typing.Start(ev.UserID)
		} else {
			s.typing.Stop(ev.UserID)
		}
	})
	s.dispatcher.SetOnPresence(func(ev PresenceEvent) {
		s.presence.Apply(ev.UserID, ev.IsOnline)
		s.mu.Lock()
		fn := s.onPresence
		s.mu.Unlock()
		if fn != nil {
			fn(ev)
		}
	})
	s.dispatcher.SetOnRoster(func(ev RosterEvent) {
		s.presence.SetRoster(ev.Users)
	})
	s.dispatcher.SetOnMessagesRead(func(ev MessagesReadEvent) {
		s.receipts.ApplyAck(ev)
	})
	s.dispatcher.SetOnError(func(err error) {
		s.logger.Warn("transport error", map[string]any{"error": err.Error()})
		s.mu.Lock()
		fn := s.onError
		s.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	})

	// A (re)connect re-authenticates but the server forgets room
	// membership, so the conversation the viewer still has open must be
	// re-joined. This also replays a join that was skipped while offline.
	s.conn.OnStatus(func(ev StatusEvent) {
		if ev.New != StatusOpen {
			return
		}
		current := s.conversations.Current()
		if current == "" {
			return
		}
		cmd := Command{Type: cmdJoin, Data: RoomPayload{ConversationID: current}}
		if err := s.conn.Send(s.ctx, cmd); err != nil {
			s.logger.Debug("rejoin not sent", map[string]any{
				"conversation": current,
				"error":        err.Error(),
			})
		}
	})

	// The typing coordinator owns expiry, so observing it (rather than
	// raw events) covers explicit stops and quiet-window timeouts alike.
	s.typing.OnChange(func(peerID string, typing bool) {
		s.mu.Lock()
		fn := s.onTyping
		s.mu.Unlock()
		if fn != nil {
			fn(peerID, typing)
		}
	})

	// Switching into a conversation acknowledges its unread messages.
	s.conversations.OnOpen(func(conversationID string) {
		if _, err := s.receipts.MarkRead(s.ctx, conversationID); err != nil {
			s.logger.Warn("mark read failed", map[string]any{
				"conversation": conversationID,
				"error":        err.Error(),
			})
		}
	})
}

func (s *Session) reduceMessage(ev MessageArrivedEvent) {
	msg := ev.Message
	added := s.streams.Get(msg.ConversationID).Append(msg)
	if added {
		// Replayed pushes (reconnect races) must not double-count.
		s.conversations.ApplyIncomingMessage(msg)
	}

	fromPeer := s.identity != nil && msg.SenderID != s.identity.UserID
	if fromPeer {
		// A delivered message supersedes any typing indicator.
		s.typing.Stop(msg.SenderID)
	}
	if added && fromPeer && s.conversations.Current() == msg.ConversationID {
		if _, err := s.receipts.MarkRead(s.ctx, msg.ConversationID); err != nil {
			s.logger.Warn("mark read failed", map[string]any{
				"conversation": msg.ConversationID,
				"error":        err.Error(),
			})
		}
	}

	s.mu.Lock()
	fn := s.onMessage
	s.mu.Unlock()
	if added && fn != nil {
		fn(msg)
	}
}

// Callback registration. Register before Connect.

func (s *Session) OnMessage(fn func(Message)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

func (s *Session) OnTyping(fn func(peerID string, typing bool)) {
	s.mu.Lock()
	s.onTyping = fn
	s.mu.Unlock()
}

func (s *Session) OnPresence(fn func(PresenceEvent)) {
	s.mu.Lock()
	s.onPresence = fn
	s.mu.Unlock()
}

func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

func (s *Session) OnStatus(fn func(StatusEvent)) { s.conn.OnStatus(fn) }

// Connect opens the transport. Guest sessions stay offline and return nil.
func (s *Session) Connect(ctx context.Context) error {
	return s.conn.Connect(ctx)
}

// Close tears the session down deterministically: typing and composer
// timers are cancelled, the transport closes, and the session context is
// cancelled so anything still in flight resolves as a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.composer.Close()
	s.typing.Close()
	err := s.conn.Disconnect()
	s.cancel()
	return err
}

// Status returns the transport status.
func (s *Session) Status() ConnStatus { return s.conn.Status() }

// Identity returns the authenticated user, or nil for guests.
func (s *Session) Identity() *SessionIdentity { return s.identity }

// Component accessors.

func (s *Session) Conversations() *ConversationStore { return s.conversations }
func (s *Session) Streams() *StreamSet               { return s.streams }
func (s *Session) Presence() *PresenceTracker        { return s.presence }
func (s *Session) Typing() *TypingCoordinator        { return s.typing }
func (s *Session) Composer() *Composer               { return s.composer }
func (s *Session) Receipts() *ReadReceiptTracker     { return s.receipts }
func (s *Session) REST() *rest.Client                { return s.api }

// LoadConversations fetches the authoritative conversation list.
func (s *Session) LoadConversations(ctx context.Context) error {
	return s.conversations.LoadInitial(ctx)
}

// LoadHistory fetches one page of a conversation's history into its
// stream. Page 1 is the newest slice; higher pages reach further back.
func (s *Session) LoadHistory(ctx context.Context, conversationID string, page int) (bool, error) {
	return s.streams.Get(conversationID).LoadPage(ctx, page)
}

// StartConversation returns the direct conversation with a peer, creating
// it server-side on first use.
func (s *Session) StartConversation(ctx context.Context, peerID string) (Conversation, error) {
	rc, err := s.api.GetOrCreateConversation(ctx, peerID)
	if err != nil {
		return Conversation{}, WrapError(ErrorRequest, "get or create conversation", err)
	}
	conv := conversationFromRest(*rc)
	s.conversations.Upsert(conv)
	return conv, nil
}

// OpenConversation makes a conversation the current one: joins its room,
// zeroes its unread counter, and acknowledges unread peer messages. A
// closed transport does not block opening; the join is simply skipped.
func (s *Session) OpenConversation(ctx context.Context, conversationID string) {
	cmd := Command{Type: cmdJoin, Data: RoomPayload{ConversationID: conversationID}}
	if err := s.conn.Send(ctx, cmd); err != nil {
		s.logger.Debug("join not sent", map[string]any{"error": err.Error()})
	}
	s.conversations.SetCurrent(conversationID)
}

// CloseConversation leaves the current conversation's room and clears the
// current marker. Unread counters are left untouched going forward.
func (s *Session) CloseConversation(ctx context.Context) {
	current := s.conversations.Current()
	if current == "" {
		return
	}
	cmd := Command{Type: cmdLeave, Data: RoomPayload{ConversationID: current}}
	if err := s.conn.Send(ctx, cmd); err != nil {
		s.logger.Debug("leave not sent", map[string]any{"error": err.Error()})
	}
	s.conversations.SetCurrent("")
}

// Send dispatches a text message with optimistic insertion.
func (s *Session) Send(ctx context.Context, conversationID, receiverID, body string) (Message, error) {
	return s.composer.Send(ctx, conversationID, receiverID, body, KindText)
}

// DeleteMessage soft-deletes a message for this viewer and strikes it
// from the local buffer. Other participants keep their copy.
func (s *Session) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	if err := s.api.DeleteMessage(ctx, messageID); err != nil {
		return WrapError(ErrorRequest, "delete message", err)
	}
	s.streams.Get(conversationID).Remove(messageID)
	return nil
}
