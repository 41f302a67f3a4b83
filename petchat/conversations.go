package petchat

import (
	"context"
	"sort"
	"sync"

	"github.com/Yomna-Elshorbagy/Petique-Clinic-sub002/petchat/rest"
)

// conversationAPI is the slice of the REST client the store needs.
type conversationAPI interface {
	ListConversations(ctx context.Context, page, limit int) (*rest.ConversationPage, error)
	ArchiveConversation(ctx context.Context, conversationID string, archived bool) error
	ClearConversations(ctx context.Context) error
}

// ConversationStore holds the ordered conversation list, unread counters
// and last-message summaries, reconciling REST snapshots with push
// updates. Ordering policy: most-recent-first by lastMessageAt, re-sorted
// on every update, not just on insert.
type ConversationStore struct {
	api      conversationAPI
	logger   Logger
	selfID   string // empty for guests
	pageSize int

	mu      sync.Mutex
	byID    map[string]*Conversation
	order   []string
	current string
	onOpen  func(conversationID string)
}

func NewConversationStore(api conversationAPI, selfID string, pageSize int, logger Logger) *ConversationStore {
	if logger == nil {
		logger = noopLogger{}
	}
	if pageSize <= 0 {
		pageSize = DefaultConfig().PageSize
	}
	return &ConversationStore{
		api:      api,
		logger:   logger,
		selfID:   selfID,
		pageSize: pageSize,
		byID:     make(map[string]*Conversation),
	}
}

// OnOpen registers the hook fired when a conversation becomes the open
// one (the read-receipt trigger).
func (cs *ConversationStore) OnOpen(fn func(conversationID string)) {
	cs.mu.Lock()
	cs.onOpen = fn
	cs.mu.Unlock()
}

// LoadInitial fetches the authoritative conversation list and replaces
// local state, including server-reported unread counts. A failed fetch
// leaves the prior state intact; retrying is the caller's decision.
func (cs *ConversationStore) LoadInitial(ctx context.Context) error {
	var fetched []Conversation
	for page := 1; ; page++ {
		resp, err := cs.api.ListConversations(ctx, page, cs.pageSize)
		if err != nil {
			return WrapError(ErrorRequest, "load conversation list", err)
		}
		for _, rc := range resp.Conversations {
			fetched = append(fetched, conversationFromRest(rc))
		}
		if !resp.HasMore || len(resp.Conversations) == 0 {
			break
		}
	}

	cs.mu.Lock()
	cs.byID = make(map[string]*Conversation, len(fetched))
	cs.order = cs.order[:0]
	for i := range fetched {
		c := fetched[i]
		if _, ok := cs.byID[c.ID]; ok {
			continue
		}
		cs.byID[c.ID] = &c
		cs.order = append(cs.order, c.ID)
	}
	cs.sortLocked()
	cs.mu.Unlock()
	return nil
}

// Upsert inserts-or-replaces a conversation summary by id. Unknown ids
// are inserted as new, never dropped.
func (cs *ConversationStore) Upsert(conv Conversation) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.byID[conv.ID]; !ok {
		cs.order = append([]string{conv.ID}, cs.order...)
	}
	c := conv
	cs.byID[conv.ID] = &c
	cs.sortLocked()
}

// ApplyIncomingMessage updates the owning conversation's last-message
// summary. The unread counter increments only when the message came from
// the peer and its conversation is not the currently open one.
func (cs *ConversationStore) ApplyIncomingMessage(m Message) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	conv, ok := cs.byID[m.ConversationID]
	if !ok {
		conv = &Conversation{ID: m.ConversationID}
		cs.byID[m.ConversationID] = conv
		cs.order = append([]string{m.ConversationID}, cs.order...)
	}
	msg := m
	conv.LastMessage = &msg
	if m.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageAt = m.CreatedAt
	}
	if m.SenderID != cs.selfID && m.ConversationID != cs.current {
		conv.UnreadCount++
	}
	cs.sortLocked()
}

// SetCurrent switches the open conversation. Switching into one zeroes
// its unread counter and fires the open hook so unread messages get
// acknowledged; switching away (empty id) leaves counters untouched.
func (cs *ConversationStore) SetCurrent(conversationID string) {
	cs.mu.Lock()
	cs.current = conversationID
	var fire func(string)
	if conversationID != "" {
		if conv, ok := cs.byID[conversationID]; ok {
			conv.UnreadCount = 0
		}
		fire = cs.onOpen
	}
	cs.mu.Unlock()

	if fire != nil {
		fire(conversationID)
	}
}

// Current returns the id of the open conversation, or "".
func (cs *ConversationStore) Current() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.current
}

// Get returns a copy of one conversation.
func (cs *ConversationStore) Get(conversationID string) (Conversation, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	conv, ok := cs.byID[conversationID]
	if !ok {
		return Conversation{}, false
	}
	return *conv, true
}

// Conversations returns a snapshot in most-recent-first order.
func (cs *ConversationStore) Conversations() []Conversation {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]Conversation, 0, len(cs.order))
	for _, id := range cs.order {
		out = append(out, *cs.byID[id])
	}
	return out
}

// UnreadCount returns the unread counter for one conversation.
func (cs *ConversationStore) UnreadCount(conversationID string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if conv, ok := cs.byID[conversationID]; ok {
		return conv.UnreadCount
	}
	return 0
}

// Archive flips the archived flag server-side, then locally. The local
// state stays untouched when the request fails.
func (cs *ConversationStore) Archive(ctx context.Context, conversationID string, archived bool) error {
	if err := cs.api.ArchiveConversation(ctx, conversationID, archived); err != nil {
		return WrapError(ErrorRequest, "archive conversation", err)
	}
	cs.mu.Lock()
	if conv, ok := cs.byID[conversationID]; ok {
		conv.IsArchived = archived
	}
	cs.mu.Unlock()
	return nil
}

// ClearAll removes every conversation server-side, then locally.
func (cs *ConversationStore) ClearAll(ctx context.Context) error {
	if err := cs.api.ClearConversations(ctx); err != nil {
		return WrapError(ErrorRequest, "clear conversations", err)
	}
	cs.mu.Lock()
	cs.byID = make(map[string]*Conversation)
	cs.order = nil
	cs.current = ""
	cs.mu.Unlock()
	return nil
}

// sortLocked keeps the order most-recent-first. An entry without a
// timestamp yet sorts as newest, so a fresh upsert stays at the front
// until its first message gives it a real lastMessageAt.
func (cs *ConversationStore) sortLocked() {
	sort.SliceStable(cs.order, func(i, j int) bool {
		a, b := cs.byID[cs.order[i]], cs.byID[cs.order[j]]
		if a.LastMessageAt.IsZero() != b.LastMessageAt.IsZero() {
			return a.LastMessageAt.IsZero()
		}
		return a.LastMessageAt.After(b.LastMessageAt)
	})
}
