// Package sync is the real-time synchronization engine: it supervises one
// push-channel connection per authenticated session and folds the server's
// event stream into local stores of conversations, presence, and
// notifications. The stores never regress or duplicate state under
// out-of-order delivery, duplicate redelivery, or reconnects.
package sync

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/logaxpapp/randc-client-sub001/pkg/model"
)

// Options configures an Engine.
type Options struct {
	// Dialer opens the push channel. Required.
	Dialer Dialer

	Logger *zap.Logger

	// TypingTTL is the typing-indicator expiry horizon.
	TypingTTL time.Duration

	Supervisor SupervisorOptions
}

// Engine ties one supervisor, router, and set of stores to one session. It is
// an explicitly owned value: callers construct it, pass it around, and stop
// it when the session ends. There is no process-wide instance.
type Engine struct {
	log        *zap.Logger
	store      *ConversationStore
	presence   *PresenceTracker
	inbox      *NotificationInbox
	router     *EventRouter
	supervisor *ConnectionSupervisor

	mu        sync.Mutex
	sweepStop chan struct{}
}

func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	store := NewConversationStore(log)
	presence := NewPresenceTracker(opts.TypingTTL, log)
	inbox := NewNotificationInbox()
	router := NewEventRouter(store, presence, inbox, log)

	return &Engine{
		log:        log,
		store:      store,
		presence:   presence,
		inbox:      inbox,
		router:     router,
		supervisor: NewConnectionSupervisor(opts.Dialer, router, opts.Supervisor, log),
	}
}

// Start opens the push channel for the session and begins applying events.
func (e *Engine) Start(session Session) error {
	if err := e.supervisor.Start(session); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sweepStop == nil {
		stop := make(chan struct{})
		e.sweepStop = stop
		go e.sweep(stop)
	}
	return nil
}

// Stop tears everything down. Idempotent; the stores keep their state so a
// later Start absorbs redelivered events without a resync.
func (e *Engine) Stop() {
	e.supervisor.Stop()

	e.mu.Lock()
	if e.sweepStop != nil {
		close(e.sweepStop)
		e.sweepStop = nil
	}
	e.mu.Unlock()
}

func (e *Engine) sweep(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.presence.SweepExpired()
		case <-stop:
			return
		}
	}
}

// Status reports the connection state.
func (e *Engine) Status() Status { return e.supervisor.Status() }

// Conversations is the conversation/message store. Pure reads, safe from a
// render path.
func (e *Engine) Conversations() *ConversationStore { return e.store }

// Presence is the presence and typing tracker.
func (e *Engine) Presence() *PresenceTracker { return e.presence }

// Inbox is the notification feed.
func (e *Engine) Inbox() *NotificationInbox { return e.inbox }

// LastSeen exposes the supervisor's resume cursor for a conversation.
func (e *Engine) LastSeen(conversationID string) (string, bool) {
	return e.supervisor.LastSeen(conversationID)
}

// SendMessage emits a sendMessage command. The server assigns the id and
// timestamp; the message lands in the store when it is fanned back out.
func (e *Engine) SendMessage(conversationID, body string) error {
	return e.supervisor.Emit(model.EventSendMessage, model.SendPayload{
		ConversationID: conversationID,
		Body:           body,
	})
}

// EditMessage emits an editMessage command.
func (e *Engine) EditMessage(id, conversationID, body string) error {
	return e.supervisor.Emit(model.EventEditMessage, model.EditPayload{
		ID:             id,
		ConversationID: conversationID,
		Body:           body,
	})
}

// DeleteMessage emits a deleteMessage command.
func (e *Engine) DeleteMessage(id, conversationID string) error {
	return e.supervisor.Emit(model.EventDeleteMessage, model.DeletePayload{
		ID:             id,
		ConversationID: conversationID,
	})
}

// AddReaction emits an addReaction command.
func (e *Engine) AddReaction(messageID, conversationID, emoji string) error {
	return e.supervisor.Emit(model.EventAddReaction, model.ReactionPayload{
		MessageID:      messageID,
		ConversationID: conversationID,
		Emoji:          emoji,
	})
}

// RemoveReaction emits a removeReaction command.
func (e *Engine) RemoveReaction(messageID, conversationID, emoji string) error {
	return e.supervisor.Emit(model.EventRemoveReaction, model.ReactionPayload{
		MessageID:      messageID,
		ConversationID: conversationID,
		Emoji:          emoji,
	})
}

// MarkRead emits a markRead command.
func (e *Engine) MarkRead(messageID, conversationID string) error {
	return e.supervisor.Emit(model.EventMarkRead, model.ReadPayload{
		MessageID:      messageID,
		ConversationID: conversationID,
	})
}

// Typing emits a typing command.
func (e *Engine) Typing(conversationID string) error {
	return e.supervisor.Emit(model.EventTyping, model.TypingPayload{
		ConversationID: conversationID,
	})
}

// StopTyping emits a stopTyping command.
func (e *Engine) StopTyping(conversationID string) error {
	return e.supervisor.Emit(model.EventStopTyping, model.TypingPayload{
		ConversationID: conversationID,
	})
}
