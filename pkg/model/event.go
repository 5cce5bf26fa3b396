package model

import (
	"encoding/json"
	"time"
)

// Server -> client events.
const (
	EventNewMessage      = "newMessage"
	EventMessageEdited   = "messageEdited"
	EventMessageDeleted  = "messageDeleted"
	EventReactionAdded   = "reactionAdded"
	EventReactionRemoved = "reactionRemoved"
	EventMessageRead     = "messageRead"
	EventTyping          = "typing"
	EventStopTyping      = "stopTyping"
	EventPresenceUpdate  = "presenceUpdate"
	EventNotification    = "notification"
)

// Client -> server commands.
const (
	EventSubscribeTenant = "subscribeToTenant"
	EventSendMessage     = "sendMessage"
	EventEditMessage     = "editMessage"
	EventDeleteMessage   = "deleteMessage"
	EventAddReaction     = "addReaction"
	EventRemoveReaction  = "removeReaction"
	EventMarkRead        = "markRead"
)

// Envelope is the wire format for everything on the push channel: one event
// name plus its undecoded payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope for event.
func NewEnvelope(event string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Payload: raw}, nil
}

// MessagePayload carries newMessage and messageEdited events. The id and
// created timestamp are server-assigned; edits carry an edited timestamp used
// for last-write-wins resolution.
type MessagePayload struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
}

// DeletePayload carries messageDeleted events.
type DeletePayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
}

// ReactionPayload carries reactionAdded and reactionRemoved events.
type ReactionPayload struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Emoji          string    `json:"emoji"`
	At             time.Time `json:"at"`
}

// ReadPayload carries messageRead events (read receipts).
type ReadPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// TypingPayload carries typing and stopTyping events.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

// PresencePayload carries presenceUpdate events. UpdatedAt is the server
// timestamp used for last-write-wins resolution.
type PresencePayload struct {
	UserID    string         `json:"user_id"`
	Status    PresenceStatus `json:"status"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NotificationPayload carries notification events. Data is opaque to the
// sync layer and passed through to consumers untouched.
type NotificationPayload struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TenantPayload carries the subscribeToTenant command, sent once per
// connection open for tenant-scoped sessions.
type TenantPayload struct {
	TenantID string `json:"tenant_id"`
}

// SendPayload carries the sendMessage command. The gateway assigns the id
// and created timestamp before fanning the message out.
type SendPayload struct {
	ConversationID string `json:"conversation_id"`
	Body           string `json:"body"`
}

// EditPayload carries the editMessage command.
type EditPayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Body           string `json:"body"`
}
