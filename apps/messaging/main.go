package main

import (
	"context"
	"fmt"
	"log"

	"github.com/logaxpapp/randc-client-sub001/pkg/config"
	"github.com/logaxpapp/randc-client-sub001/pkg/db"
)

func main() {
	cfg := config.Load()

	groupID := "messaging-service-group"

	// Note: In production, schema creation should be handled by migration
	// tools. For now we create keyspace/tables if missing, which needs a
	// session without a keyspace first.
	sysSession, err := db.NewSession(cfg.ScyllaHosts, "system")
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB system keyspace: %v", err)
	}

	err = sysSession.Query(fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`, cfg.Keyspace)).Exec()
	if err != nil {
		log.Fatalf("Failed to create keyspace: %v", err)
	}
	sysSession.Close()

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB %s keyspace: %v", cfg.Keyspace, err)
	}
	defer session.Close()

	err = session.Query(`CREATE TABLE IF NOT EXISTS messages (
		conversation_id text,
		id text,
		sender_id text,
		body text,
		created_at timestamp,
		edited_at timestamp,
		deleted boolean,
		PRIMARY KEY (conversation_id, id)
	) WITH CLUSTERING ORDER BY (id DESC)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create messages table: %v", err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id text,
		user_id text,
		PRIMARY KEY (conversation_id, user_id)
	)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create conversation_participants table: %v", err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS user_conversations (
		user_id text,
		conversation_id text,
		last_updated timestamp,
		PRIMARY KEY (user_id, conversation_id)
	)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create user_conversations table: %v", err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS conversation_counters (
		user_id text,
		conversation_id text,
		unread_count counter,
		PRIMARY KEY (user_id, conversation_id)
	)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create conversation_counters table: %v", err)
	}

	consumer := NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, groupID, session)
	defer consumer.Close()

	log.Println("Starting Kafka Consumer...")
	consumer.Consume(context.Background())
}
