package rest

import "time"

// User is a chat participant as returned by the API.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Role        string `json:"role"`
}

// Conversation is a two-party thread summary.
type Conversation struct {
	ID            string    `json:"id"`
	Participants  []User    `json:"participants"`
	LastMessage   *Message  `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
	IsArchived    bool      `json:"isArchived"`
}

// Message is a single chat message in history responses.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	ReceiverID     string     `json:"receiverId"`
	Body           string     `json:"body"`
	Kind           string     `json:"kind"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ClientRef      string     `json:"clientRef,omitempty"`
}

// ConversationPage is one page of the conversation list.
type ConversationPage struct {
	Conversations []Conversation `json:"conversations"`
	Page          int            `json:"page"`
	HasMore       bool           `json:"hasMore"`
}

// MessagePage is one page of message history, newest first as the server
// returns it.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	HasMore  bool      `json:"hasMore"`
}

// DirectConversationRequest asks for the direct thread with a peer,
// creating it if needed.
type DirectConversationRequest struct {
	UserID string `json:"userId"`
}

// ArchiveRequest flips a conversation's archived flag.
type ArchiveRequest struct {
	Archived bool `json:"archived"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
