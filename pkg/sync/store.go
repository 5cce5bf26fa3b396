package sync

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/logaxpapp/randc-client-sub001/pkg/model"
)

// Reaction is one (user, emoji) pair on a message. Reactions are kept ordered
// by timestamp, with insertion order breaking ties.
type Reaction struct {
	UserID string
	Emoji  string
	At     time.Time
}

// Message is the read-side view of one message. Snapshots hand out copies;
// mutating a returned Message has no effect on the store.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	CreatedAt      time.Time
	EditedAt       *time.Time
	Deleted        bool
	Reactions      []Reaction
	Readers        []string
}

type message struct {
	id             string
	conversationID string
	senderID       string
	body           string
	createdAt      time.Time
	editedAt       time.Time // zero until first edit
	deleted        bool
	reactions      []Reaction
	readers        map[string]struct{}
}

// effectiveAt is the timestamp used for last-write-wins edit resolution.
func (m *message) effectiveAt() time.Time {
	if !m.editedAt.IsZero() {
		return m.editedAt
	}
	return m.createdAt
}

// before orders messages by server-assigned creation time, with the id as a
// deterministic tie-break.
func (m *message) before(other *message) bool {
	if !m.createdAt.Equal(other.createdAt) {
		return m.createdAt.Before(other.createdAt)
	}
	return m.id < other.id
}

type conversation struct {
	id       string
	order    []*message        // sorted, tombstones included
	lastRead map[string]string // participant id -> last read message id
}

// ConversationStore holds the local view of conversations and messages and
// applies mutations idempotently regardless of delivery order. Mutations are
// serialized by the router's dispatch goroutine; the lock makes snapshot
// getters safe from any goroutine.
type ConversationStore struct {
	mu    sync.RWMutex
	byID  map[string]*message
	convs map[string]*conversation
	log   *zap.Logger
}

func NewConversationStore(log *zap.Logger) *ConversationStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversationStore{
		byID:  make(map[string]*message),
		convs: make(map[string]*conversation),
		log:   log,
	}
}

func (s *ConversationStore) conversationLocked(id string) *conversation {
	c, ok := s.convs[id]
	if !ok {
		c = &conversation{id: id, lastRead: make(map[string]string)}
		s.convs[id] = c
	}
	return c
}

// AppendMessage inserts a message at the position its server timestamp
// dictates. Redelivery of an already-known id is a no-op.
func (s *ConversationStore) AppendMessage(p model.MessagePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[p.ID]; ok {
		s.log.Debug("duplicate message dropped", zap.String("message_id", p.ID))
		return
	}

	m := &message{
		id:             p.ID,
		conversationID: p.ConversationID,
		senderID:       p.SenderID,
		body:           p.Body,
		createdAt:      p.CreatedAt,
		readers:        make(map[string]struct{}),
	}
	if p.EditedAt != nil {
		m.editedAt = *p.EditedAt
	}

	c := s.conversationLocked(p.ConversationID)
	i := sort.Search(len(c.order), func(i int) bool {
		return m.before(c.order[i])
	})
	c.order = append(c.order, nil)
	copy(c.order[i+1:], c.order[i:])
	c.order[i] = m

	s.byID[p.ID] = m
}

// ApplyEdit replaces the body of an existing message. Edits older than the
// state already held are discarded (last-write-wins); unknown ids are a no-op.
func (s *ConversationStore) ApplyEdit(p model.MessagePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[p.ID]
	if !ok {
		s.log.Debug("edit for unknown message dropped", zap.String("message_id", p.ID))
		return
	}

	at := p.CreatedAt
	if p.EditedAt != nil {
		at = *p.EditedAt
	}
	if !at.After(m.effectiveAt()) {
		s.log.Debug("stale edit dropped",
			zap.String("message_id", p.ID),
			zap.Time("incoming", at))
		return
	}

	m.body = p.Body
	m.editedAt = at
}

// ApplyTombstone marks a message deleted in place. The message keeps its id
// and position so ordering stays stable for anything still referencing it.
func (s *ConversationStore) ApplyTombstone(p model.DeletePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[p.ID]
	if !ok {
		s.log.Debug("delete for unknown message dropped", zap.String("message_id", p.ID))
		return
	}
	m.deleted = true
}

// AddReaction records a (user, emoji) pair on a message, keeping reactions
// ordered by timestamp. Re-adding an existing pair is a no-op.
func (s *ConversationStore) AddReaction(p model.ReactionPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[p.MessageID]
	if !ok {
		return
	}
	for _, r := range m.reactions {
		if r.UserID == p.UserID && r.Emoji == p.Emoji {
			return
		}
	}

	r := Reaction{UserID: p.UserID, Emoji: p.Emoji, At: p.At}
	// Insert after every reaction with an equal or earlier timestamp, so
	// insertion order breaks ties.
	i := sort.Search(len(m.reactions), func(i int) bool {
		return m.reactions[i].At.After(r.At)
	})
	m.reactions = append(m.reactions, Reaction{})
	copy(m.reactions[i+1:], m.reactions[i:])
	m.reactions[i] = r
}

// RemoveReaction removes a (user, emoji) pair if present.
func (s *ConversationStore) RemoveReaction(p model.ReactionPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[p.MessageID]
	if !ok {
		return
	}
	for i, r := range m.reactions {
		if r.UserID == p.UserID && r.Emoji == p.Emoji {
			m.reactions = append(m.reactions[:i], m.reactions[i+1:]...)
			return
		}
	}
}

// MarkRead adds a user to a message's reader set and advances that user's
// last-read pointer in the conversation if the message is newer.
func (s *ConversationStore) MarkRead(p model.ReadPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[p.MessageID]
	if !ok {
		return
	}
	m.readers[p.UserID] = struct{}{}

	c := s.conversationLocked(m.conversationID)
	if prev, ok := s.byID[c.lastRead[p.UserID]]; ok && !prev.before(m) {
		return
	}
	c.lastRead[p.UserID] = m.id
}

// Messages returns the conversation's messages in timestamp order, tombstones
// included.
func (s *ConversationStore) Messages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convs[conversationID]
	if !ok {
		return nil
	}
	out := make([]Message, 0, len(c.order))
	for _, m := range c.order {
		out = append(out, m.snapshot())
	}
	return out
}

// Message returns one message by id.
func (s *ConversationStore) Message(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return Message{}, false
	}
	return m.snapshot(), true
}

// LastRead returns the per-participant last-read pointers of a conversation.
func (s *ConversationStore) LastRead(conversationID string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convs[conversationID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(c.lastRead))
	for user, id := range c.lastRead {
		out[user] = id
	}
	return out
}

// Conversations returns the ids of all known conversations, sorted.
func (s *ConversationStore) Conversations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.convs))
	for id := range s.convs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *message) snapshot() Message {
	out := Message{
		ID:             m.id,
		ConversationID: m.conversationID,
		SenderID:       m.senderID,
		Body:           m.body,
		CreatedAt:      m.createdAt,
		Deleted:        m.deleted,
	}
	if !m.editedAt.IsZero() {
		at := m.editedAt
		out.EditedAt = &at
	}
	if len(m.reactions) > 0 {
		out.Reactions = append([]Reaction(nil), m.reactions...)
	}
	if len(m.readers) > 0 {
		out.Readers = make([]string, 0, len(m.readers))
		for id := range m.readers {
			out.Readers = append(out.Readers, id)
		}
		sort.Strings(out.Readers)
	}
	return out
}
