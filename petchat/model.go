package petchat

import (
	"time"

	"github.com/Yomna-Elshorbagy/Petique-Clinic-sub002/petchat/rest"
)

// MessageKind discriminates message payload types.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVoice MessageKind = "voice"
)

// SendState is the local delivery state of an optimistically sent message.
// Confirmed messages (received from or echoed by the server) carry SendNone.
type SendState string

const (
	SendNone    SendState = ""
	SendPending SendState = "pending"
	SendFailed  SendState = "failed"
)

// User is an immutable participant snapshot as received from the server.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Role        string `json:"role"`
}

// Conversation is a two-party message thread.
type Conversation struct {
	ID            string    `json:"id"`
	Participants  []User    `json:"participants"`
	LastMessage   *Message  `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
	IsArchived    bool      `json:"isArchived"`
}

// Peer returns the participant that is not selfID, if present.
func (c Conversation) Peer(selfID string) (User, bool) {
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return User{}, false
}

// Message is one chat message. Immutable once created except for the
// read flag and local soft removal.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	ReceiverID     string      `json:"receiverId"`
	Body           string      `json:"body"`
	Kind           MessageKind `json:"kind"`
	IsRead         bool        `json:"isRead"`
	ReadAt         *time.Time  `json:"readAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`

	// ClientRef is the client-generated correlation id echoed by the
	// server on persisted messages, used to reconcile optimistic sends.
	ClientRef string `json:"clientRef,omitempty"`

	// SendState never travels over the wire.
	SendState SendState `json:"-"`
}

// before reports whether m sorts ahead of other in a message buffer:
// ascending createdAt, ties broken by id for deterministic order.
func (m Message) before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

func userFromRest(u rest.User) User {
	return User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Role:        u.Role,
	}
}

func messageFromRest(m rest.Message) Message {
	return Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Body:           m.Body,
		Kind:           MessageKind(m.Kind),
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		CreatedAt:      m.CreatedAt,
		ClientRef:      m.ClientRef,
	}
}

func conversationFromRest(c rest.Conversation) Conversation {
	conv := Conversation{
		ID:            c.ID,
		LastMessageAt: c.LastMessageAt,
		UnreadCount:   c.UnreadCount,
		IsArchived:    c.IsArchived,
	}
	for _, p := range c.Participants {
		conv.Participants = append(conv.Participants, userFromRest(p))
	}
	if c.LastMessage != nil {
		m := messageFromRest(*c.LastMessage)
		conv.LastMessage = &m
	}
	return conv
}
