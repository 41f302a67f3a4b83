package petchat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestComposer(t *testing.T, sender commandSender) (*Composer, *StreamSet) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TypingThrottle = 50 * time.Millisecond
	cfg.TypingQuietWindow = 40 * time.Millisecond
	streams := NewStreamSet(&fakeHistory{}, cfg.PageSize)
	identity := &SessionIdentity{UserID: "u1", DisplayName: "Owner"}
	return NewComposer(cfg, sender, streams, identity, nil), streams
}

func TestComposerOptimisticSend(t *testing.T) {
	sender := &captureSender{}
	c, streams := newTestComposer(t, sender)

	msg, err := c.Send(context.Background(), "c1", "u2", "hello", KindText)
	require.NoError(t, err)

	stream := streams.Get("c1")
	require.Equal(t, 1, stream.Len(), "pending entry appears before any round trip")
	assert.Equal(t, SendPending, msg.SendState)
	assert.Equal(t, msg.ID, msg.ClientRef, "local id doubles as the correlation id")
	assert.Equal(t, "u1", msg.SenderID)

	cmds := sender.commandsOfType(cmdSendMessage)
	require.Len(t, cmds, 1)
	payload := cmds[0].Data.(SendPayload)
	assert.Equal(t, msg.ClientRef, payload.ClientRef)
	assert.Equal(t, "hello", payload.Body)
}

func TestComposerEchoReplacesPending(t *testing.T) {
	sender := &captureSender{}
	c, streams := newTestComposer(t, sender)

	msg, err := c.Send(context.Background(), "c1", "u2", "hello", KindText)
	require.NoError(t, err)
	stream := streams.Get("c1")
	require.Equal(t, 1, stream.Len())

	echo := Message{
		ID:             "srv-1",
		ConversationID: "c1",
		SenderID:       "u1",
		ReceiverID:     "u2",
		Body:           "hello",
		Kind:           KindText,
		CreatedAt:      msg.CreatedAt.Add(5 * time.Millisecond),
		ClientRef:      msg.ClientRef,
	}
	stream.Append(echo)

	require.Equal(t, 1, stream.Len(), "echo replaces, buffer must not grow to 2")
	got := stream.Messages()[0]
	assert.Equal(t, "srv-1", got.ID)
	assert.Equal(t, SendNone, got.SendState)
}

func TestComposerFailedSendKeepsEntry(t *testing.T) {
	sender := &captureSender{fail: true}
	c, streams := newTestComposer(t, sender)

	msg, err := c.Send(context.Background(), "c1", "u2", "hello", KindText)
	require.Error(t, err)
	assert.ErrorIs(t, err, NewError(ErrorNotConnected, ""))
	assert.Equal(t, SendFailed, msg.SendState)

	stream := streams.Get("c1")
	require.Equal(t, 1, stream.Len(), "failed entry stays visible, never silently dropped")
	stored, ok := stream.Get(msg.ID)
	require.True(t, ok)
	assert.Equal(t, SendFailed, stored.SendState)
}

// Offline sends are not resubmitted on reconnect; Retry is the only
// resend path and it must be explicit.
func TestComposerExplicitRetry(t *testing.T) {
	sender := &captureSender{fail: true}
	c, streams := newTestComposer(t, sender)

	msg, err := c.Send(context.Background(), "c1", "u2", "hello", KindText)
	require.Error(t, err)

	// Retrying a message that is not failed is rejected.
	require.Error(t, c.Retry(context.Background(), "c1", "nope"))

	sender.setFail(false)
	require.NoError(t, c.Retry(context.Background(), "c1", msg.ID))

	stream := streams.Get("c1")
	stored, _ := stream.Get(msg.ID)
	assert.Equal(t, SendPending, stored.SendState)
	require.Len(t, sender.commandsOfType(cmdSendMessage), 1, "retry re-dispatches once")

	// Already pending again: a second retry is rejected.
	require.Error(t, c.Retry(context.Background(), "c1", msg.ID))
}

func TestComposerGuestCannotSend(t *testing.T) {
	cfg := DefaultConfig()
	streams := NewStreamSet(&fakeHistory{}, cfg.PageSize)
	c := NewComposer(cfg, &captureSender{}, streams, nil, nil)

	_, err := c.Send(context.Background(), "c1", "u2", "hello", KindText)
	require.Error(t, err)
	assert.ErrorIs(t, err, NewError(ErrorUnauthorized, ""))
	assert.Equal(t, 0, streams.Get("c1").Len())
}

func TestComposerMediaEncoding(t *testing.T) {
	sender := &captureSender{}
	c, streams := newTestComposer(t, sender)

	msg, err := c.SendImage(context.Background(), "c1", "u2", []byte{0x89, 0x50}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, KindImage, msg.Kind)
	assert.True(t, strings.HasPrefix(msg.Body, "data:image/png;base64,"), "body=%q", msg.Body)

	voice, err := c.SendVoice(context.Background(), "c1", "u2", []byte{1, 2, 3}, "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, KindVoice, voice.Kind)
	assert.Equal(t, 2, streams.Get("c1").Len())
}

func TestComposerMediaErrors(t *testing.T) {
	sender := &captureSender{}
	c, streams := newTestComposer(t, sender)

	_, err := c.SendImage(context.Background(), "c1", "u2", []byte{1}, "application/pdf")
	assert.True(t, IsMediaError(err), "unsupported type: %v", err)

	_, err = c.SendVoice(context.Background(), "c1", "u2", nil, "audio/webm")
	assert.True(t, IsMediaError(err), "empty recording: %v", err)

	// A media failure abandons only that operation; nothing was inserted.
	assert.Equal(t, 0, streams.Get("c1").Len())
	assert.Empty(t, sender.commands())
}

func TestComposerTypingThrottle(t *testing.T) {
	sender := &captureSender{}
	c, _ := newTestComposer(t, sender)
	defer c.Close()

	clock := newFakeClock(t0)
	c.now = clock.Now

	for i := 0; i < 5; i++ {
		c.NotifyTyping(context.Background(), "c1", "u2")
		clock.Advance(5 * time.Millisecond)
	}
	require.Len(t, sender.commandsOfType(cmdTypingStart), 1, "rapid keystrokes collapse to one start")

	clock.Advance(100 * time.Millisecond)
	c.NotifyTyping(context.Background(), "c1", "u2")
	require.Len(t, sender.commandsOfType(cmdTypingStart), 2, "a start past the throttle goes out")
}

func TestComposerIdleEmitsStop(t *testing.T) {
	sender := &captureSender{}
	c, _ := newTestComposer(t, sender)
	defer c.Close()

	c.NotifyTyping(context.Background(), "c1", "u2")
	require.Eventually(t, func() bool {
		return len(sender.commandsOfType(cmdTypingStop)) == 1
	}, time.Second, 5*time.Millisecond, "quiet window must emit a stop")
}

func TestComposerSupersededIdleStopIgnored(t *testing.T) {
	sender := &captureSender{}
	cfg := DefaultConfig()
	cfg.TypingQuietWindow = time.Hour
	streams := NewStreamSet(&fakeHistory{}, cfg.PageSize)
	c := NewComposer(cfg, sender, streams, &SessionIdentity{UserID: "u1"}, nil)
	defer c.Close()

	c.NotifyTyping(context.Background(), "c1", "u2")
	c.NotifyTyping(context.Background(), "c1", "u2") // refresh re-arms the window

	// The first window's timer fired but lost the race with the refresh.
	c.idleStop("c1", "u2", 1)
	require.Empty(t, sender.commandsOfType(cmdTypingStop),
		"a superseded idle stop must not emit against the refreshed window")

	// The live window's expiry still goes out.
	c.idleStop("c1", "u2", 2)
	require.Len(t, sender.commandsOfType(cmdTypingStop), 1)
}

func TestComposerExplicitStopCancelsIdleTimer(t *testing.T) {
	sender := &captureSender{}
	c, _ := newTestComposer(t, sender)
	defer c.Close()

	c.NotifyTyping(context.Background(), "c1", "u2")
	c.StopTyping(context.Background(), "c1", "u2")
	require.Len(t, sender.commandsOfType(cmdTypingStop), 1)

	time.Sleep(80 * time.Millisecond)
	require.Len(t, sender.commandsOfType(cmdTypingStop), 1, "idle timer must not fire a second stop")

	// With nothing outstanding, stop is a no-op.
	c.StopTyping(context.Background(), "c1", "u2")
	require.Len(t, sender.commandsOfType(cmdTypingStop), 1)
}

func TestComposerCloseCancelsTimers(t *testing.T) {
	sender := &captureSender{}
	c, _ := newTestComposer(t, sender)

	c.NotifyTyping(context.Background(), "c1", "u2")
	c.Close()

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, sender.commandsOfType(cmdTypingStop), "no stop after close")
}

// fakeClock is a manual clock for throttle tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
