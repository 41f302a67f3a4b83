package petchat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Yomna-Elshorbagy/Petique-Clinic-sub002/petchat/rest"
)

// historyFetcher is the slice of the REST client the stream needs.
type historyFetcher interface {
	ListMessages(ctx context.Context, conversationID string, page, limit int) (*rest.MessagePage, error)
}

// Stream is the per-conversation ordered, deduplicated message buffer.
// Messages are kept ascending by createdAt with id tie-breaks, so merges
// of REST pages and live pushes are order-independent. A message id never
// appears twice, whatever mix of append and page loads produced it.
type Stream struct {
	conversationID string
	fetch          historyFetcher
	pageSize       int

	mu      sync.Mutex
	msgs    []Message
	ids     map[string]struct{}
	refs    map[string]string // pending clientRef -> local entry id
	hasMore bool
}

func newStream(conversationID string, fetch historyFetcher, pageSize int) *Stream {
	return &Stream{
		conversationID: conversationID,
		fetch:          fetch,
		pageSize:       pageSize,
		ids:            make(map[string]struct{}),
		refs:           make(map[string]string),
		hasMore:        true,
	}
}

// LoadPage fetches one page of history and merges it into the buffer.
// The server returns newest first; the buffer re-orders ascending. Older
// pages slot in ahead of already-held messages without disturbing them.
// A failed fetch leaves the buffer intact.
func (s *Stream) LoadPage(ctx context.Context, page int) (bool, error) {
	resp, err := s.fetch.ListMessages(ctx, s.conversationID, page, s.pageSize)
	if err != nil {
		return false, WrapError(ErrorRequest, "load message page", err)
	}

	s.mu.Lock()
	for _, rm := range resp.Messages {
		s.upsertLocked(messageFromRest(rm))
	}
	s.hasMore = resp.HasMore
	s.mu.Unlock()
	return resp.HasMore, nil
}

// Append adds a live message if its id is not already present; it is a
// no-op otherwise. A message echoing a pending clientRef replaces the
// pending entry instead of adding a second one. Reports whether the
// buffer gained a message it did not show before.
func (s *Stream) Append(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(m)
}

// Remove strikes a message from the buffer (delete-for-me). It says
// nothing about other participants' views.
func (s *Stream) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; !ok {
		return false
	}
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			if ref := s.msgs[i].ClientRef; ref != "" {
				delete(s.refs, ref)
			}
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			break
		}
	}
	delete(s.ids, id)
	return true
}

// Messages returns a copy of the buffer in ascending order.
func (s *Stream) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Get returns a copy of one buffered message by id.
func (s *Stream) Get(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; !ok {
		return Message{}, false
	}
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			return s.msgs[i], true
		}
	}
	return Message{}, false
}

// Len returns the number of buffered messages, pending entries included.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// HasMore reports whether older history pages remain.
func (s *Stream) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// SetSendState updates the local delivery state of a pending entry.
func (s *Stream) SetSendState(id string, state SendState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs[i].SendState = state
			return true
		}
	}
	return false
}

// MarkRead flips the read flag on the given ids. Returns how many
// messages actually changed.
func (s *Stream) MarkRead(ids []string, at time.Time) int {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for i := range s.msgs {
		if _, ok := want[s.msgs[i].ID]; !ok || s.msgs[i].IsRead {
			continue
		}
		s.msgs[i].IsRead = true
		t := at
		s.msgs[i].ReadAt = &t
		changed++
	}
	return changed
}

// UnreadReceivedBy returns ids of unread, confirmed messages addressed to
// the given user. Pending local sends never qualify.
func (s *Stream) UnreadReceivedBy(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.IsRead || m.SendState != SendNone || m.ReceiverID != userID {
			continue
		}
		out = append(out, m.ID)
	}
	return out
}

// upsertLocked inserts m at its sorted position, replacing a pending
// entry that shares its clientRef. Duplicate ids are dropped.
func (s *Stream) upsertLocked(m Message) bool {
	if _, ok := s.ids[m.ID]; ok {
		return false
	}
	if m.ClientRef != "" {
		if localID, ok := s.refs[m.ClientRef]; ok && localID != m.ID {
			s.removeLocked(localID)
			delete(s.refs, m.ClientRef)
		}
	}
	if m.SendState != SendNone && m.ClientRef != "" {
		s.refs[m.ClientRef] = m.ID
	}

	pos := sort.Search(len(s.msgs), func(i int) bool {
		return m.before(s.msgs[i])
	})
	s.msgs = append(s.msgs, Message{})
	copy(s.msgs[pos+1:], s.msgs[pos:])
	s.msgs[pos] = m
	s.ids[m.ID] = struct{}{}
	return true
}

func (s *Stream) removeLocked(id string) {
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			break
		}
	}
	delete(s.ids, id)
}

// StreamSet lazily manages one Stream per conversation.
type StreamSet struct {
	fetch    historyFetcher
	pageSize int

	mu      sync.Mutex
	streams map[string]*Stream
}

func NewStreamSet(fetch historyFetcher, pageSize int) *StreamSet {
	if pageSize <= 0 {
		pageSize = DefaultConfig().PageSize
	}
	return &StreamSet{
		fetch:    fetch,
		pageSize: pageSize,
		streams:  make(map[string]*Stream),
	}
}

// Get returns the stream for a conversation, creating it lazily.
func (ss *StreamSet) Get(conversationID string) *Stream {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	st, ok := ss.streams[conversationID]
	if !ok {
		st = newStream(conversationID, ss.fetch, ss.pageSize)
		ss.streams[conversationID] = st
	}
	return st
}

// Drop discards a conversation's buffer (e.g. after clear-all).
func (ss *StreamSet) Drop(conversationID string) {
	ss.mu.Lock()
	delete(ss.streams, conversationID)
	ss.mu.Unlock()
}

// Reset discards every buffer.
func (ss *StreamSet) Reset() {
	ss.mu.Lock()
	ss.streams = make(map[string]*Stream)
	ss.mu.Unlock()
}
