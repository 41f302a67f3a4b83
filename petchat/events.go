package petchat

// MessageArrivedEvent emitted when a message is pushed to the client.
type MessageArrivedEvent struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
}

// ConversationUpdatedEvent carries a refreshed conversation summary.
type ConversationUpdatedEvent struct {
	Conversation Conversation `json:"conversation"`
}

// TypingEvent emitted when a peer starts or stops typing.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// PresenceEvent emitted when a user goes online or offline.
type PresenceEvent struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// RosterEvent carries the full online roster snapshot sent on (re)connect.
type RosterEvent struct {
	Users []string `json:"users"`
}

// MessagesReadEvent emitted when the peer acknowledges reading messages
// the local user sent.
type MessagesReadEvent struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
	ReaderID       string   `json:"readerId"`
}
