package sync

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/logaxpapp/randc-client-sub001/pkg/model"
)

// Notification is one entry in the inbox.
type Notification struct {
	ID        string
	Text      string
	CreatedAt time.Time
	Read      bool
	Data      json.RawMessage
}

// NotificationInbox is an arrival-ordered, id-deduplicated feed of
// out-of-band notifications.
type NotificationInbox struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Notification
}

func NewNotificationInbox() *NotificationInbox {
	return &NotificationInbox{byID: make(map[string]*Notification)}
}

// Insert appends a notification. Redelivery of a known id is a no-op. An
// entry arriving without an id gets a locally generated one; such entries
// cannot be deduplicated, which is the server's problem to avoid.
func (n *NotificationInbox) Insert(p model.NotificationPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := n.byID[id]; ok {
		return
	}
	n.byID[id] = &Notification{
		ID:        id,
		Text:      p.Text,
		CreatedAt: p.CreatedAt,
		Data:      p.Data,
	}
	n.order = append(n.order, id)
}

// MarkRead flags a notification as read. Unknown ids are a no-op.
func (n *NotificationInbox) MarkRead(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if e, ok := n.byID[id]; ok {
		e.Read = true
	}
}

// All returns the feed in arrival order.
func (n *NotificationInbox) All() []Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]Notification, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, *n.byID[id])
	}
	return out
}

// UnreadCount returns the number of unread entries.
func (n *NotificationInbox) UnreadCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	count := 0
	for _, e := range n.byID {
		if !e.Read {
			count++
		}
	}
	return count
}
