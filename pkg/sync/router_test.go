package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/logaxpapp/randc-client-sub001/pkg/model"
)

func newTestRouter(t *testing.T) (*EventRouter, *ConversationStore, *PresenceTracker, *NotificationInbox) {
	t.Helper()
	store := NewConversationStore(nil)
	presence := NewPresenceTracker(0, nil)
	inbox := NewNotificationInbox()
	return NewEventRouter(store, presence, inbox, nil), store, presence, inbox
}

func envelope(t *testing.T, event string, payload any) model.Envelope {
	t.Helper()
	env, err := model.NewEnvelope(event, payload)
	require.NoError(t, err)
	return env
}

func TestRouterDispatchesEachEvent(t *testing.T) {
	router, store, presence, inbox := newTestRouter(t)
	require.NoError(t, router.Bind())

	router.Dispatch(envelope(t, model.EventNewMessage, msg("m1", "c1", "u1", "hello", 100)))
	router.Dispatch(envelope(t, model.EventMessageEdited, func() model.MessagePayload {
		p := msg("m1", "c1", "u1", "hello there", 100)
		at := time.UnixMilli(200).UTC()
		p.EditedAt = &at
		return p
	}()))
	router.Dispatch(envelope(t, model.EventReactionAdded, model.ReactionPayload{
		MessageID: "m1", ConversationID: "c1", UserID: "u2", Emoji: "👍", At: time.UnixMilli(150).UTC(),
	}))
	router.Dispatch(envelope(t, model.EventMessageRead, model.ReadPayload{
		MessageID: "m1", ConversationID: "c1", UserID: "u2",
	}))
	router.Dispatch(envelope(t, model.EventTyping, model.TypingPayload{ConversationID: "c1", UserID: "u3"}))
	router.Dispatch(envelope(t, model.EventPresenceUpdate, model.PresencePayload{
		UserID: "u1", Status: model.StatusOnline, UpdatedAt: time.UnixMilli(100),
	}))
	router.Dispatch(envelope(t, model.EventNotification, model.NotificationPayload{ID: "n1", Text: "hi"}))

	m, ok := store.Message("m1")
	require.True(t, ok)
	require.Equal(t, "hello there", m.Body)
	require.Len(t, m.Reactions, 1)
	require.Equal(t, []string{"u2"}, m.Readers)

	require.Equal(t, []string{"u3"}, presence.TypingUsers("c1"))
	e, ok := presence.Presence("u1")
	require.True(t, ok)
	require.Equal(t, model.StatusOnline, e.Status)

	require.Len(t, inbox.All(), 1)

	router.Dispatch(envelope(t, model.EventStopTyping, model.TypingPayload{ConversationID: "c1", UserID: "u3"}))
	require.Empty(t, presence.TypingUsers("c1"))

	router.Dispatch(envelope(t, model.EventReactionRemoved, model.ReactionPayload{
		MessageID: "m1", ConversationID: "c1", UserID: "u2", Emoji: "👍",
	}))
	m, _ = store.Message("m1")
	require.Empty(t, m.Reactions)

	router.Dispatch(envelope(t, model.EventMessageDeleted, model.DeletePayload{ID: "m1", ConversationID: "c1"}))
	m, _ = store.Message("m1")
	require.True(t, m.Deleted)
}

func TestRouterUnboundDropsEvents(t *testing.T) {
	router, store, _, _ := newTestRouter(t)

	router.Dispatch(envelope(t, model.EventNewMessage, msg("m1", "c1", "u1", "hello", 100)))
	require.Empty(t, store.Messages("c1"))
}

func TestRouterDoubleBindFails(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	require.NoError(t, router.Bind())
	require.Error(t, router.Bind())

	router.Unbind()
	router.Unbind() // idempotent
	require.NoError(t, router.Bind())
}

func TestRouterUnknownEventIgnored(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	require.NoError(t, router.Bind())

	router.Dispatch(model.Envelope{Event: "somethingElse", Payload: []byte(`{}`)})
	require.Empty(t, store.Conversations())
}

func TestRouterMalformedPayloadIgnored(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	require.NoError(t, router.Bind())

	router.Dispatch(model.Envelope{Event: model.EventNewMessage, Payload: []byte(`not json`)})
	require.Empty(t, store.Conversations())
}

// Redelivering a window of events across an unbind/rebind cycle must
// converge to the same state as a single delivery.
func TestRouterReconnectRedeliverySafe(t *testing.T) {
	events := []model.Envelope{}
	add := func(event string, payload any) {
		env, err := model.NewEnvelope(event, payload)
		if err != nil {
			panic(err)
		}
		events = append(events, env)
	}
	add(model.EventNewMessage, msg("m1", "c1", "u1", "a", 100))
	add(model.EventNewMessage, msg("m2", "c1", "u2", "b", 200))
	add(model.EventReactionAdded, model.ReactionPayload{
		MessageID: "m1", ConversationID: "c1", UserID: "u2", Emoji: "👍", At: time.UnixMilli(150).UTC(),
	})
	add(model.EventMessageRead, model.ReadPayload{MessageID: "m2", ConversationID: "c1", UserID: "u1"})
	add(model.EventNotification, model.NotificationPayload{ID: "n1", Text: "ping"})

	// Reference: delivered exactly once.
	refRouter, refStore, _, refInbox := newTestRouter(t)
	require.NoError(t, refRouter.Bind())
	for _, env := range events {
		refRouter.Dispatch(env)
	}

	// Reconnect: full delivery, then the last three redelivered after an
	// unbind/rebind cycle.
	router, store, _, inbox := newTestRouter(t)
	require.NoError(t, router.Bind())
	for _, env := range events {
		router.Dispatch(env)
	}
	router.Unbind()
	require.NoError(t, router.Bind())
	for _, env := range events[2:] {
		router.Dispatch(env)
	}

	require.Equal(t, refStore.Messages("c1"), store.Messages("c1"))
	require.Equal(t, refStore.LastRead("c1"), store.LastRead("c1"))
	require.Equal(t, refInbox.All(), inbox.All())
}
