package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/logaxpapp/randc-client-sub001/pkg/db"
	"github.com/logaxpapp/randc-client-sub001/pkg/model"
)

// routedEnvelope mirrors the gateway's Kafka wire format.
type routedEnvelope struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	TenantID       string         `json:"tenant_id,omitempty"`
	Envelope       model.Envelope `json:"envelope"`
}

type Consumer struct {
	reader *kafka.Reader
	db     *db.Session
}

func NewConsumer(brokers []string, topic string, groupID string, session *db.Session) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{reader: r, db: session}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			log.Printf("Error reading message: %v. Retrying in 1s...", err)
			time.Sleep(1 * time.Second)
			continue
		}

		var routed routedEnvelope
		if err := json.Unmarshal(m.Value, &routed); err != nil {
			log.Printf("Failed to unmarshal envelope: %v", err)
			continue
		}

		switch routed.Envelope.Event {
		case model.EventNewMessage:
			var p model.MessagePayload
			if err := json.Unmarshal(routed.Envelope.Payload, &p); err != nil {
				log.Printf("Failed to unmarshal message payload: %v", err)
				continue
			}
			c.persistMessage(p)

		case model.EventMessageEdited:
			var p model.MessagePayload
			if err := json.Unmarshal(routed.Envelope.Payload, &p); err != nil {
				log.Printf("Failed to unmarshal edit payload: %v", err)
				continue
			}
			c.persistEdit(p)

		case model.EventMessageDeleted:
			var p model.DeletePayload
			if err := json.Unmarshal(routed.Envelope.Payload, &p); err != nil {
				log.Printf("Failed to unmarshal delete payload: %v", err)
				continue
			}
			c.persistDelete(p)

		default:
			// Typing, presence, reactions, read receipts, and notifications
			// are ephemeral; only the message log is durable.
		}
	}
}

func (c *Consumer) persistMessage(p model.MessagePayload) {
	query := `INSERT INTO messages (conversation_id, id, sender_id, body, created_at, deleted) VALUES (?, ?, ?, ?, ?, false)`
	if err := c.db.Query(query, p.ConversationID, p.ID, p.SenderID, p.Body, p.CreatedAt).Exec(); err != nil {
		log.Printf("Failed to save message to ScyllaDB: %v", err)
		return
	}

	// Update each participant's conversation list and unread counter.
	iter := c.db.Query(`SELECT user_id FROM conversation_participants WHERE conversation_id = ?`, p.ConversationID).Iter()
	var userID string
	for iter.Scan(&userID) {
		q := `INSERT INTO user_conversations (user_id, conversation_id, last_updated) VALUES (?, ?, ?)`
		if err := c.db.Query(q, userID, p.ConversationID, p.CreatedAt).Exec(); err != nil {
			log.Printf("Failed to update conversation for %s: %v", userID, err)
		}

		if userID == p.SenderID {
			continue
		}
		qCounter := `UPDATE conversation_counters SET unread_count = unread_count + 1 WHERE user_id = ? AND conversation_id = ?`
		if err := c.db.Query(qCounter, userID, p.ConversationID).Exec(); err != nil {
			log.Printf("Failed to increment unread count for %s: %v", userID, err)
		}
	}
	if err := iter.Close(); err != nil {
		log.Printf("Failed to iterate participants for %s: %v", p.ConversationID, err)
	}
}

func (c *Consumer) persistEdit(p model.MessagePayload) {
	at := time.Now().UTC()
	if p.EditedAt != nil {
		at = *p.EditedAt
	}
	query := `UPDATE messages SET body = ?, edited_at = ? WHERE conversation_id = ? AND id = ?`
	if err := c.db.Query(query, p.Body, at, p.ConversationID, p.ID).Exec(); err != nil {
		log.Printf("Failed to apply edit to ScyllaDB: %v", err)
	}
}

func (c *Consumer) persistDelete(p model.DeletePayload) {
	query := `UPDATE messages SET deleted = true, body = '' WHERE conversation_id = ? AND id = ?`
	if err := c.db.Query(query, p.ConversationID, p.ID).Exec(); err != nil {
		log.Printf("Failed to apply delete to ScyllaDB: %v", err)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
