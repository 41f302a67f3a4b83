package petchat

import "time"

// Config controls how the SDK connects and how the sync engine behaves.
type Config struct {
	SocketURL string // websocket endpoint, e.g. "ws://localhost:8080/ws"
	APIURL    string // REST base URL, e.g. "http://localhost:8080/api"
	Token     string // bearer credential; empty means guest mode

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration

	// Reconnection policy for unexpected closures.
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration

	// TypingQuietWindow is how long a peer's typing indicator survives
	// without a refreshing start event; it also bounds the local user's
	// idle-stop emission.
	TypingQuietWindow time.Duration

	// TypingThrottle is the minimum interval between outbound
	// typing-start emissions for one conversation.
	TypingThrottle time.Duration

	// PageSize for conversation and message history fetches.
	PageSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:     10 * time.Second,
		ReadTimeout:          30 * time.Second,
		WriteTimeout:         10 * time.Second,
		MaxReconnectAttempts: 5,
		ReconnectDelay:       time.Second,
		TypingQuietWindow:    3 * time.Second,
		TypingThrottle:       time.Second,
		PageSize:             20,
	}
}
