package petchat

// ConnStatus represents the current state of the transport connection.
type ConnStatus int

const (
	// StatusClosed means no connection is open. This is the resting state
	// before Connect, after Disconnect, and for guest sessions.
	StatusClosed ConnStatus = iota

	// StatusConnecting means a connect or reconnect attempt is in flight.
	StatusConnecting

	// StatusOpen means the connection is authenticated and ready.
	StatusOpen

	// StatusFailed means the reconnection bound was exhausted; no further
	// attempts happen automatically.
	StatusFailed
)

// String returns the string representation of a ConnStatus.
func (s ConnStatus) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StatusEvent represents a connection status change.
type StatusEvent struct {
	Old ConnStatus
	New ConnStatus
	Err error // optional error that caused the change
}
