package petchat

import "encoding/json"

const (
	cmdAuth        = "auth"
	cmdJoin        = "join"
	cmdLeave       = "leave"
	cmdSendMessage = "send_message"
	cmdTypingStart = "typing_start"
	cmdTypingStop  = "typing_stop"
	cmdMarkRead    = "mark_read"

	pushEvent = "event"
	pushError = "error"

	eventNewMessage          = "new_message"
	eventConversationUpdated = "conversation_updated"
	eventTyping              = "typing"
	eventPresence            = "presence"
	eventRoster              = "online_users"
	eventMessagesRead        = "messages_read"
)

// Command is the envelope from client to server.
type Command struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Push is the envelope server -> client.
type Push struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ProtocolError  `json:"error,omitempty"`
}

// AuthPayload authenticates the connection.
type AuthPayload struct {
	Token string `json:"token"`
}

// RoomPayload joins or leaves a conversation room.
type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// SendPayload submits a message.
type SendPayload struct {
	ConversationID string      `json:"conversationId,omitempty"`
	ReceiverID     string      `json:"receiverId"`
	Body           string      `json:"body"`
	Kind           MessageKind `json:"kind"`
	ClientRef      string      `json:"clientRef"`
}

// TypingPayload signals typing start/stop to the peer.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
}

// MarkReadPayload acknowledges a batch of messages.
type MarkReadPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

// ProtocolError describes a server-pushed error.
type ProtocolError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Msg
}

// UnmarshalData decodes RawMessage into target.
func UnmarshalData(data json.RawMessage, v any) error {
	return json.Unmarshal(data, v)
}
