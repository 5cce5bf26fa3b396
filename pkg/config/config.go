package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries the shared settings for the backend apps. Values come from
// the environment, with an optional .env file for local development.
type Config struct {
	KafkaBrokers []string
	KafkaTopic   string
	RedisAddr    string
	ScyllaHosts  []string
	Keyspace     string
	GatewayAddr  string
	APIAddr      string
}

// Load reads the environment, falling back to the local development defaults.
func Load() *Config {
	// Missing .env is fine; env vars still apply.
	_ = godotenv.Load()

	return &Config{
		KafkaBrokers: splitList(getenv("KAFKA_BROKERS", "localhost:19092")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "sync-events"),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		ScyllaHosts:  splitList(getenv("SCYLLA_HOSTS", "localhost:9042")),
		Keyspace:     getenv("SCYLLA_KEYSPACE", "sync"),
		GatewayAddr:  getenv("GATEWAY_ADDR", ":8080"),
		APIAddr:      getenv("API_ADDR", ":8081"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	return strings.Split(s, ",")
}
