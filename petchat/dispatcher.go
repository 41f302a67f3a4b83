package petchat

// Dispatcher routes server pushes to registered callbacks. Each inbound
// event type maps to one typed callback; unknown events are logged and
// dropped rather than treated as fatal.
type Dispatcher struct {
	logger Logger

	onMessage             func(MessageArrivedEvent)
	onConversationUpdated func(ConversationUpdatedEvent)
	onTyping              func(TypingEvent)
	onPresence            func(PresenceEvent)
	onRoster              func(RosterEvent)
	onMessagesRead        func(MessagesReadEvent)
	onError               func(error)
}

func (d *Dispatcher) SetOnMessage(fn func(MessageArrivedEvent)) { d.onMessage = fn }
func (d *Dispatcher) SetOnConversationUpdated(fn func(ConversationUpdatedEvent)) {
	d.onConversationUpdated = fn
}
func (d *Dispatcher) SetOnTyping(fn func(TypingEvent))             { d.onTyping = fn }
func (d *Dispatcher) SetOnPresence(fn func(PresenceEvent))         { d.onPresence = fn }
func (d *Dispatcher) SetOnRoster(fn func(RosterEvent))             { d.onRoster = fn }
func (d *Dispatcher) SetOnMessagesRead(fn func(MessagesReadEvent)) { d.onMessagesRead = fn }
func (d *Dispatcher) SetOnError(fn func(error))                    { d.onError = fn }

func (d *Dispatcher) Dispatch(p Push) {
	if p.Type == pushError && p.Error != nil {
		d.fireError(FromProtocolError(p.Error))
		return
	}
	switch p.Event {
	case eventNewMessage:
		if d.onMessage == nil {
			return
		}
		var ev MessageArrivedEvent
		if err := UnmarshalData(p.Data, &ev); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal new_message event", err))
			return
		}
		if ev.Message.ConversationID == "" {
			ev.Message.ConversationID = ev.ConversationID
		}
		d.onMessage(ev)
	case eventConversationUpdated:
		if d.onConversationUpdated == nil {
			return
		}
		var ev ConversationUpdatedEvent
		if err := UnmarshalData(p.Data, &ev); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal conversation_updated event", err))
			return
		}
		d.onConversationUpdated(ev)
	case eventTyping:
		if d.onTyping == nil {
			return
		}
		var ev TypingEvent
		if err := UnmarshalData(p.Data, &ev); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal typing event", err))
			return
		}
		d.onTyping(ev)
	case eventPresence:
		if d.onPresence == nil {
			return
		}
		var ev PresenceEvent
		if err := UnmarshalData(p.Data, &ev); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal presence event", err))
			return
		}
		d.onPresence(ev)
	case eventRoster:
		if d.onRoster == nil {
			return
		}
		var ev RosterEvent
		if err := UnmarshalData(p.Data, &ev); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal online_users event", err))
			return
		}
		d.onRoster(ev)
	case eventMessagesRead:
		if d.onMessagesRead == nil {
			return
		}
		var ev MessagesReadEvent
		if err := UnmarshalData(p.Data, &ev); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal messages_read event", err))
			return
		}
		d.onMessagesRead(ev)
	default:
		if d.logger != nil {
			d.logger.Debug("ignoring unknown event", map[string]any{"event": p.Event})
		}
	}
}

func (d *Dispatcher) fireError(err error) {
	if d.onError != nil && err != nil {
		d.onError(err)
	}
}
