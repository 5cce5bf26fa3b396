package main

import (
	"log"

	"github.com/gocql/gocql"

	"github.com/logaxpapp/randc-client-sub001/pkg/config"
)

func main() {
	cfg := config.Load()

	cluster := gocql.NewCluster(cfg.ScyllaHosts...)
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	statements := []string{
		`CREATE KEYSPACE IF NOT EXISTS ` + cfg.Keyspace + ` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`,
		`CREATE TABLE IF NOT EXISTS ` + cfg.Keyspace + `.messages (
			conversation_id text,
			id text,
			sender_id text,
			body text,
			created_at timestamp,
			edited_at timestamp,
			deleted boolean,
			PRIMARY KEY (conversation_id, id)
		) WITH CLUSTERING ORDER BY (id DESC)`,
		`CREATE TABLE IF NOT EXISTS ` + cfg.Keyspace + `.conversation_participants (
			conversation_id text,
			user_id text,
			PRIMARY KEY (conversation_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + cfg.Keyspace + `.user_conversations (
			user_id text,
			conversation_id text,
			last_updated timestamp,
			PRIMARY KEY (user_id, conversation_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + cfg.Keyspace + `.conversation_counters (
			user_id text,
			conversation_id text,
			unread_count counter,
			PRIMARY KEY (user_id, conversation_id)
		)`,
	}

	for _, stmt := range statements {
		if err := session.Query(stmt).Exec(); err != nil {
			log.Fatal(err)
		}
	}

	log.Println("Schema created successfully")
}
