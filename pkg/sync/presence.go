package sync

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/logaxpapp/randc-client-sub001/pkg/model"
)

// DefaultTypingTTL is the horizon after which a typing indicator expires when
// no stopTyping event arrives.
const DefaultTypingTTL = 6 * time.Second

// PresenceEntry is the retained status for one user.
type PresenceEntry struct {
	UserID    string
	Status    model.PresenceStatus
	UpdatedAt time.Time
}

type typingKey struct {
	conversationID string
	userID         string
}

// PresenceTracker keeps per-user presence (last-write-wins by server
// timestamp) and per-conversation typing indicators with a fixed expiry.
type PresenceTracker struct {
	mu      sync.RWMutex
	entries map[string]PresenceEntry
	typing  map[typingKey]time.Time // pair -> expiry
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
}

func NewPresenceTracker(ttl time.Duration, log *zap.Logger) *PresenceTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PresenceTracker{
		entries: make(map[string]PresenceEntry),
		typing:  make(map[typingKey]time.Time),
		ttl:     ttl,
		now:     time.Now,
		log:     log,
	}
}

// UpsertPresence applies a presence update, keeping only the newest entry per
// user. Updates with an equal or earlier timestamp are discarded.
func (t *PresenceTracker) UpsertPresence(p model.PresencePayload) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.entries[p.UserID]; ok && !p.UpdatedAt.After(cur.UpdatedAt) {
		t.log.Debug("stale presence dropped",
			zap.String("user_id", p.UserID),
			zap.Time("incoming", p.UpdatedAt))
		return
	}
	t.entries[p.UserID] = PresenceEntry{
		UserID:    p.UserID,
		Status:    p.Status,
		UpdatedAt: p.UpdatedAt,
	}
}

// Presence returns the retained status for a user.
func (t *PresenceTracker) Presence(userID string) (PresenceEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[userID]
	return e, ok
}

// Snapshot returns all presence entries, sorted by user id.
func (t *PresenceTracker) Snapshot() []PresenceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PresenceEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// SetTyping inserts or refreshes a typing indicator. An existing pair gets a
// new expiry rather than a second entry.
func (t *PresenceTracker) SetTyping(conversationID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing[typingKey{conversationID, userID}] = t.now().Add(t.ttl)
}

// ClearTyping removes a typing indicator immediately.
func (t *PresenceTracker) ClearTyping(conversationID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.typing, typingKey{conversationID, userID})
}

// TypingUsers returns the users currently typing in a conversation, sorted.
// Expired entries are swept on the way out.
func (t *PresenceTracker) TypingUsers(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var out []string
	for key, expiry := range t.typing {
		if !expiry.After(now) {
			delete(t.typing, key)
			continue
		}
		if key.conversationID == conversationID {
			out = append(out, key.userID)
		}
	}
	sort.Strings(out)
	return out
}

// SweepExpired removes all expired typing indicators. The engine calls this
// on a ticker so indicators fade even in conversations nobody reads.
func (t *PresenceTracker) SweepExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key, expiry := range t.typing {
		if !expiry.After(now) {
			delete(t.typing, key)
		}
	}
}
