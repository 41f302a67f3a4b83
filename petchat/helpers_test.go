package petchat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Yomna-Elshorbagy/Petique-Clinic-sub002/petchat/rest"
)

// makeToken builds a signed JWT for identity tests. The signature key is
// irrelevant client-side; only the claims matter.
func makeToken(t *testing.T, id, name, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  id,
		"name": name,
		"role": role,
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// captureSender records commands; fail makes every send error.
type captureSender struct {
	mu   sync.Mutex
	cmds []Command
	fail bool
}

func (c *captureSender) Send(_ context.Context, cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return NewError(ErrorNotConnected, "connection is not open")
	}
	c.cmds = append(c.cmds, cmd)
	return nil
}

func (c *captureSender) setFail(fail bool) {
	c.mu.Lock()
	c.fail = fail
	c.mu.Unlock()
}

func (c *captureSender) commands() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Command, len(c.cmds))
	copy(out, c.cmds)
	return out
}

func (c *captureSender) commandsOfType(typ string) []Command {
	var out []Command
	for _, cmd := range c.commands() {
		if cmd.Type == typ {
			out = append(out, cmd)
		}
	}
	return out
}

// fakeTransport is an in-memory transport fed by tests.
type fakeTransport struct {
	pushes    chan Push
	writes    chan Command
	broken    chan struct{}
	breakOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		pushes: make(chan Push, 32),
		writes: make(chan Command, 64),
		broken: make(chan struct{}),
	}
}

func (f *fakeTransport) Read(ctx context.Context, v any) error {
	select {
	case p := <-f.pushes:
		*(v.(*Push)) = p
		return nil
	case <-f.broken:
		return errors.New("connection reset")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Write(_ context.Context, v any) error {
	select {
	case <-f.broken:
		return errors.New("connection reset")
	default:
	}
	f.writes <- v.(Command)
	return nil
}

func (f *fakeTransport) Close(websocket.StatusCode, string) error {
	f.breakConn()
	return nil
}

// breakConn simulates an unexpected closure.
func (f *fakeTransport) breakConn() {
	f.breakOnce.Do(func() { close(f.broken) })
}

// pushEventRaw feeds one event push through the transport.
func (f *fakeTransport) push(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal push payload: %v", err)
	}
	f.pushes <- Push{Type: pushEvent, Event: event, Data: data}
}

// fakeHistory serves canned message pages.
type fakeHistory struct {
	mu    sync.Mutex
	pages map[int]rest.MessagePage
	err   error
}

func (f *fakeHistory) ListMessages(_ context.Context, _ string, page, _ int) (*rest.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.pages[page]
	if !ok {
		return &rest.MessagePage{Page: page}, nil
	}
	return &p, nil
}

// fakeConvAPI serves canned conversation pages and records mutations.
type fakeConvAPI struct {
	mu       sync.Mutex
	pages    []rest.ConversationPage
	err      error
	archived map[string]bool
	cleared  bool
}

func (f *fakeConvAPI) ListConversations(_ context.Context, page, _ int) (*rest.ConversationPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if page-1 < len(f.pages) {
		p := f.pages[page-1]
		return &p, nil
	}
	return &rest.ConversationPage{Page: page}, nil
}

func (f *fakeConvAPI) ArchiveConversation(_ context.Context, conversationID string, archived bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.archived == nil {
		f.archived = make(map[string]bool)
	}
	f.archived[conversationID] = archived
	return nil
}

func (f *fakeConvAPI) ClearConversations(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cleared = true
	return nil
}

func msgAt(id, convID, sender, receiver, body string, at time.Time) Message {
	return Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Body:           body,
		Kind:           KindText,
		CreatedAt:      at,
	}
}
