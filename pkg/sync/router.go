package sync

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/logaxpapp/randc-client-sub001/pkg/model"
)

// EventRouter translates each named inbound event into exactly one typed
// command against the stores. The event table is fixed at compile time; there
// is no dynamic handler registration, so a reconnect can never double-bind.
type EventRouter struct {
	store    *ConversationStore
	presence *PresenceTracker
	inbox    *NotificationInbox
	log      *zap.Logger

	mu    sync.Mutex
	bound bool
}

func NewEventRouter(store *ConversationStore, presence *PresenceTracker, inbox *NotificationInbox, log *zap.Logger) *EventRouter {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventRouter{
		store:    store,
		presence: presence,
		inbox:    inbox,
		log:      log,
	}
}

// Bind arms the router. Binding twice without an Unbind in between is a bug
// in the caller and returns an error.
func (r *EventRouter) Bind() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bound {
		return errAlreadyBound
	}
	r.bound = true
	return nil
}

// Unbind disarms the router. Envelopes dispatched after Unbind are dropped,
// so no handler fires against a torn-down session. Idempotent.
func (r *EventRouter) Unbind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bound = false
}

// Dispatch applies one inbound envelope. Handlers read only the payload and
// the current store state; they never assume server-send order.
func (r *EventRouter) Dispatch(env model.Envelope) {
	r.mu.Lock()
	bound := r.bound
	r.mu.Unlock()
	if !bound {
		return
	}

	switch env.Event {
	case model.EventNewMessage:
		var p model.MessagePayload
		if !r.decode(env, &p) {
			return
		}
		r.store.AppendMessage(p)

	case model.EventMessageEdited:
		var p model.MessagePayload
		if !r.decode(env, &p) {
			return
		}
		r.store.ApplyEdit(p)

	case model.EventMessageDeleted:
		var p model.DeletePayload
		if !r.decode(env, &p) {
			return
		}
		r.store.ApplyTombstone(p)

	case model.EventReactionAdded:
		var p model.ReactionPayload
		if !r.decode(env, &p) {
			return
		}
		r.store.AddReaction(p)

	case model.EventReactionRemoved:
		var p model.ReactionPayload
		if !r.decode(env, &p) {
			return
		}
		r.store.RemoveReaction(p)

	case model.EventMessageRead:
		var p model.ReadPayload
		if !r.decode(env, &p) {
			return
		}
		r.store.MarkRead(p)

	case model.EventTyping:
		var p model.TypingPayload
		if !r.decode(env, &p) {
			return
		}
		r.presence.SetTyping(p.ConversationID, p.UserID)

	case model.EventStopTyping:
		var p model.TypingPayload
		if !r.decode(env, &p) {
			return
		}
		r.presence.ClearTyping(p.ConversationID, p.UserID)

	case model.EventPresenceUpdate:
		var p model.PresencePayload
		if !r.decode(env, &p) {
			return
		}
		r.presence.UpsertPresence(p)

	case model.EventNotification:
		var p model.NotificationPayload
		if !r.decode(env, &p) {
			return
		}
		r.inbox.Insert(p)

	default:
		r.log.Debug("unhandled event", zap.String("event", env.Event))
	}
}

func (r *EventRouter) decode(env model.Envelope, out any) bool {
	if err := json.Unmarshal(env.Payload, out); err != nil {
		r.log.Debug("malformed payload dropped",
			zap.String("event", env.Event),
			zap.Error(err))
		return false
	}
	return true
}
