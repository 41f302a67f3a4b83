package petchat

import (
	"context"
	"time"
)

// ReadReceiptTracker marks inbound messages read while their conversation
// is actively viewed, and applies the peer's acknowledgements to the local
// user's sent messages. Receiver matching always uses the authenticated
// user id; socket/session identifiers are a different namespace and must
// never be compared against message receivers.
type ReadReceiptTracker struct {
	sender   commandSender
	streams  *StreamSet
	identity *SessionIdentity
	logger   Logger
	now      func() time.Time
}

func NewReadReceiptTracker(sender commandSender, streams *StreamSet, identity *SessionIdentity, logger Logger) *ReadReceiptTracker {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ReadReceiptTracker{
		sender:   sender,
		streams:  streams,
		identity: identity,
		logger:   logger,
		now:      time.Now,
	}
}

// MarkRead acknowledges every unread peer-sent message in the
// conversation as one batch. Self-sent messages never qualify. Returns
// the acknowledged ids; an empty batch emits nothing.
func (r *ReadReceiptTracker) MarkRead(ctx context.Context, conversationID string) ([]string, error) {
	if r.identity == nil {
		return nil, nil
	}

	stream := r.streams.Get(conversationID)
	ids := stream.UnreadReceivedBy(r.identity.UserID)
	if len(ids) == 0 {
		return nil, nil
	}

	cmd := Command{Type: cmdMarkRead, Data: MarkReadPayload{
		ConversationID: conversationID,
		MessageIDs:     ids,
	}}
	if err := r.sender.Send(ctx, cmd); err != nil {
		return nil, err
	}
	stream.MarkRead(ids, r.now())
	return ids, nil
}

// ApplyAck handles the peer's read acknowledgement: it flips the read
// flag on messages the local user sent. This is the only path by which a
// sent message becomes read on the sender's view.
func (r *ReadReceiptTracker) ApplyAck(ev MessagesReadEvent) {
	if r.identity == nil || ev.ReaderID == r.identity.UserID {
		return
	}

	stream := r.streams.Get(ev.ConversationID)
	var mine []string
	for _, id := range ev.MessageIDs {
		if m, ok := stream.Get(id); ok && m.SenderID == r.identity.UserID {
			mine = append(mine, id)
		}
	}
	if len(mine) == 0 {
		return
	}
	stream.MarkRead(mine, r.now())
}
