package main

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/logaxpapp/randc-client-sub001/pkg/model"
	"github.com/logaxpapp/randc-client-sub001/pkg/snowflake"
)

// routedEnvelope is what travels on the Kafka topic: the client-facing
// envelope plus the routing scope the gateway fans out on. Exactly one of
// the scope fields is normally set; an envelope with none is broadcast.
type routedEnvelope struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	TenantID       string         `json:"tenant_id,omitempty"`
	Envelope       model.Envelope `json:"envelope"`
}

type Hub struct {
	conversations map[string]map[*Client]bool // conversation_id -> clients
	userClients   map[string]map[*Client]bool // user_id -> clients
	tenantClients map[string]map[*Client]bool // tenant_id -> clients
	outbound      chan routedEnvelope
	register      chan *Client
	unregister    chan *Client
	mu            sync.RWMutex
	producer      *kafka.Writer
	redis         *redis.Client
	snowflake     *snowflake.Node
}

func NewHub(kafkaBrokers []string, topic string, redisAddr string) *Hub {
	producer := &kafka.Writer{
		Addr:     kafka.TCP(kafkaBrokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Consumer for fanout. The group id is unique per instance so every
	// gateway sees every envelope.
	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkaBrokers,
		Topic:       topic,
		GroupID:     "gateway-group-" + uuid.NewString(),
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	})

	// Node ID should be unique per instance in production (env var or
	// service discovery).
	node, err := snowflake.NewNode(1)
	if err != nil {
		log.Fatalf("Failed to initialize snowflake node: %v", err)
	}

	h := &Hub{
		conversations: make(map[string]map[*Client]bool),
		userClients:   make(map[string]map[*Client]bool),
		tenantClients: make(map[string]map[*Client]bool),
		outbound:      make(chan routedEnvelope, 256),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		producer:      producer,
		redis:         rdb,
		snowflake:     node,
	}

	go func() {
		defer consumer.Close()
		for {
			m, err := consumer.ReadMessage(context.Background())
			if err != nil {
				log.Printf("Gateway consumer error: %v", err)
				break
			}

			var routed routedEnvelope
			if err := json.Unmarshal(m.Value, &routed); err != nil {
				log.Printf("Failed to unmarshal envelope from Kafka: %v", err)
				continue
			}
			h.fanout(routed)
		}
	}()

	return h
}

// fanout delivers one envelope to every client in its routing scope.
func (h *Hub) fanout(routed routedEnvelope) {
	data, err := json.Marshal(routed.Envelope)
	if err != nil {
		log.Printf("Failed to marshal envelope: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var targets map[*Client]bool
	switch {
	case routed.UserID != "":
		targets = h.userClients[routed.UserID]
	case routed.ConversationID != "":
		targets = h.conversations[routed.ConversationID]
	case routed.TenantID != "":
		targets = h.tenantClients[routed.TenantID]
	default:
		// Broadcast (presence updates).
		for _, clients := range h.userClients {
			for client := range clients {
				client.trySend(data)
			}
		}
		return
	}

	for client := range targets {
		client.trySend(data)
	}
}

func (h *Hub) Run() {
	defer h.producer.Close()
	defer h.redis.Close()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			for _, convID := range client.Conversations {
				if h.conversations[convID] == nil {
					h.conversations[convID] = make(map[*Client]bool)
				}
				h.conversations[convID][client] = true
			}
			if h.userClients[client.ID] == nil {
				h.userClients[client.ID] = make(map[*Client]bool)
			}
			h.userClients[client.ID][client] = true
			h.mu.Unlock()

			for _, convID := range client.Conversations {
				if err := h.redis.SAdd(context.Background(), "conversation:"+convID+":online", client.ID).Err(); err != nil {
					log.Printf("Failed to set presence for %s: %v", client.ID, err)
				}
			}
			log.Printf("Client registered: %s (%d conversations)", client.ID, len(client.Conversations))

			h.publishPresence(client.ID, model.StatusOnline)

		case client := <-h.unregister:
			h.mu.Lock()
			for _, convID := range client.Conversations {
				if clients, ok := h.conversations[convID]; ok {
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.conversations, convID)
					}
				}
			}
			if clients, ok := h.userClients[client.ID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.userClients, client.ID)
					}
				}
			}
			if client.TenantID != "" {
				if clients, ok := h.tenantClients[client.TenantID]; ok {
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.tenantClients, client.TenantID)
					}
				}
			}
			h.mu.Unlock()

			for _, convID := range client.Conversations {
				if err := h.redis.SRem(context.Background(), "conversation:"+convID+":online", client.ID).Err(); err != nil {
					log.Printf("Failed to delete presence for %s: %v", client.ID, err)
				}
			}
			log.Printf("Client unregistered: %s", client.ID)

			h.publishPresence(client.ID, model.StatusOffline)

		case routed := <-h.outbound:
			h.publish(routed)
		}
	}
}

func (h *Hub) publishPresence(userID string, status model.PresenceStatus) {
	env, err := model.NewEnvelope(model.EventPresenceUpdate, model.PresencePayload{
		UserID:    userID,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("Failed to build presence envelope: %v", err)
		return
	}
	// No scope: presence goes to everyone.
	h.publish(routedEnvelope{Envelope: env})
}

func (h *Hub) publish(routed routedEnvelope) {
	data, err := json.Marshal(routed)
	if err != nil {
		log.Printf("Failed to marshal envelope: %v", err)
		return
	}

	err = h.producer.WriteMessages(context.Background(),
		kafka.Message{
			Value: data,
			Time:  time.Now(),
		},
	)
	if err != nil {
		log.Printf("Failed to write envelope to Kafka: %v", err)
	}
}

// handleCommand turns one client command into one canonical server envelope.
// Server-assigned ids and timestamps are attached here, so clients can never
// spoof ordering.
func (h *Hub) handleCommand(c *Client, env model.Envelope) {
	now := time.Now().UTC()

	switch env.Event {
	case model.EventSendMessage:
		var p model.SendPayload
		if !decode(env, &p) {
			return
		}
		h.route(model.EventNewMessage, p.ConversationID, model.MessagePayload{
			ID:             h.snowflake.GenerateString(),
			ConversationID: p.ConversationID,
			SenderID:       c.ID,
			Body:           p.Body,
			CreatedAt:      now,
		})

	case model.EventEditMessage:
		var p model.EditPayload
		if !decode(env, &p) {
			return
		}
		h.route(model.EventMessageEdited, p.ConversationID, model.MessagePayload{
			ID:             p.ID,
			ConversationID: p.ConversationID,
			SenderID:       c.ID,
			Body:           p.Body,
			EditedAt:       &now,
		})

	case model.EventDeleteMessage:
		var p model.DeletePayload
		if !decode(env, &p) {
			return
		}
		h.route(model.EventMessageDeleted, p.ConversationID, p)

	case model.EventAddReaction, model.EventRemoveReaction:
		var p model.ReactionPayload
		if !decode(env, &p) {
			return
		}
		p.UserID = c.ID
		p.At = now
		event := model.EventReactionAdded
		if env.Event == model.EventRemoveReaction {
			event = model.EventReactionRemoved
		}
		h.route(event, p.ConversationID, p)

	case model.EventMarkRead:
		var p model.ReadPayload
		if !decode(env, &p) {
			return
		}
		p.UserID = c.ID
		h.route(model.EventMessageRead, p.ConversationID, p)

	case model.EventTyping, model.EventStopTyping:
		var p model.TypingPayload
		if !decode(env, &p) {
			return
		}
		p.UserID = c.ID
		h.route(env.Event, p.ConversationID, p)

	case model.EventSubscribeTenant:
		var p model.TenantPayload
		if !decode(env, &p) {
			return
		}
		h.mu.Lock()
		if h.tenantClients[p.TenantID] == nil {
			h.tenantClients[p.TenantID] = make(map[*Client]bool)
		}
		h.tenantClients[p.TenantID][c] = true
		c.TenantID = p.TenantID
		h.mu.Unlock()

	default:
		log.Printf("Unknown command %q from %s", env.Event, c.ID)
	}
}

func (h *Hub) route(event, conversationID string, payload any) {
	env, err := model.NewEnvelope(event, payload)
	if err != nil {
		log.Printf("Failed to build %s envelope: %v", event, err)
		return
	}
	h.outbound <- routedEnvelope{ConversationID: conversationID, Envelope: env}
}

// Notify publishes a notification envelope scoped to a user or a tenant.
func (h *Hub) Notify(userID, tenantID, text string, data json.RawMessage) {
	env, err := model.NewEnvelope(model.EventNotification, model.NotificationPayload{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		log.Printf("Failed to build notification envelope: %v", err)
		return
	}
	h.outbound <- routedEnvelope{UserID: userID, TenantID: tenantID, Envelope: env}
}

func decode(env model.Envelope, out any) bool {
	if err := json.Unmarshal(env.Payload, out); err != nil {
		log.Printf("Malformed %s payload: %v", env.Event, err)
		return false
	}
	return true
}
