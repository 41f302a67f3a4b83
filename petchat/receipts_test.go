package petchat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReceipts(sender commandSender) (*ReadReceiptTracker, *StreamSet) {
	streams := NewStreamSet(&fakeHistory{}, 20)
	identity := &SessionIdentity{UserID: "u1"}
	return NewReadReceiptTracker(sender, streams, identity, nil), streams
}

func TestMarkReadEmitsSingleBatch(t *testing.T) {
	sender := &captureSender{}
	r, streams := newTestReceipts(sender)

	stream := streams.Get("c1")
	stream.Append(msgAt("m1", "c1", "u2", "u1", "a", t0))
	stream.Append(msgAt("m2", "c1", "u2", "u1", "b", t0.Add(time.Second)))

	ids, err := r.MarkRead(context.Background(), "c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m1", "m2"}, ids)

	cmds := sender.commandsOfType(cmdMarkRead)
	require.Len(t, cmds, 1, "one batched acknowledgement, not one per message")
	payload := cmds[0].Data.(MarkReadPayload)
	assert.ElementsMatch(t, []string{"m1", "m2"}, payload.MessageIDs)

	// Local flags flipped; a second call has nothing to acknowledge.
	ids, err = r.MarkRead(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Len(t, sender.commandsOfType(cmdMarkRead), 1)
}

func TestMarkReadSkipsSelfSentMessages(t *testing.T) {
	sender := &captureSender{}
	r, streams := newTestReceipts(sender)

	stream := streams.Get("c1")
	stream.Append(msgAt("mine", "c1", "u1", "u2", "sent by me", t0))

	ids, err := r.MarkRead(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, ids, "self-sent messages are never acknowledged")
	assert.Empty(t, sender.commands())
}

// Receiver matching must use the authenticated user id. Messages
// addressed to some other identifier (a socket id, a different user)
// must never be swept into the local user's acknowledgement batch.
func TestMarkReadUsesUserIdentity(t *testing.T) {
	sender := &captureSender{}
	r, streams := newTestReceipts(sender)

	stream := streams.Get("c1")
	stream.Append(msgAt("for-me", "c1", "u2", "u1", "a", t0))
	stream.Append(msgAt("for-socket", "c1", "u2", "sock-81fa", "b", t0.Add(time.Second)))

	ids, err := r.MarkRead(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"for-me"}, ids)
}

func TestMarkReadSkipsPendingEntries(t *testing.T) {
	sender := &captureSender{}
	r, streams := newTestReceipts(sender)

	pending := msgAt("local-1", "c1", "u2", "u1", "unconfirmed", t0)
	pending.SendState = SendPending
	streams.Get("c1").Append(pending)

	ids, err := r.MarkRead(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMarkReadSendFailureLeavesFlags(t *testing.T) {
	sender := &captureSender{fail: true}
	r, streams := newTestReceipts(sender)

	stream := streams.Get("c1")
	stream.Append(msgAt("m1", "c1", "u2", "u1", "a", t0))

	_, err := r.MarkRead(context.Background(), "c1")
	require.Error(t, err)
	m, _ := stream.Get("m1")
	assert.False(t, m.IsRead, "unacknowledged messages stay unread locally")
}

func TestApplyAckFlipsOwnSentMessages(t *testing.T) {
	sender := &captureSender{}
	r, streams := newTestReceipts(sender)

	stream := streams.Get("c1")
	stream.Append(msgAt("mine", "c1", "u1", "u2", "sent by me", t0))
	stream.Append(msgAt("theirs", "c1", "u2", "u1", "sent by peer", t0.Add(time.Second)))

	r.ApplyAck(MessagesReadEvent{
		ConversationID: "c1",
		MessageIDs:     []string{"mine", "theirs", "unknown"},
		ReaderID:       "u2",
	})

	mine, _ := stream.Get("mine")
	assert.True(t, mine.IsRead, "peer ack flips the sender's isRead")
	theirs, _ := stream.Get("theirs")
	assert.False(t, theirs.IsRead, "peer ack only covers messages the local user sent")
}

func TestApplyAckIgnoresOwnEcho(t *testing.T) {
	sender := &captureSender{}
	r, streams := newTestReceipts(sender)

	stream := streams.Get("c1")
	stream.Append(msgAt("mine", "c1", "u1", "u2", "x", t0))

	r.ApplyAck(MessagesReadEvent{ConversationID: "c1", MessageIDs: []string{"mine"}, ReaderID: "u1"})
	m, _ := stream.Get("mine")
	assert.False(t, m.IsRead)
}

func TestReceiptsGuestIsNoop(t *testing.T) {
	sender := &captureSender{}
	streams := NewStreamSet(&fakeHistory{}, 20)
	r := NewReadReceiptTracker(sender, streams, nil, nil)

	ids, err := r.MarkRead(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, ids)
	r.ApplyAck(MessagesReadEvent{ConversationID: "c1", MessageIDs: []string{"m1"}})
}
