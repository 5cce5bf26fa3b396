package main

import (
	"log"
	"net/http"

	"github.com/logaxpapp/randc-client-sub001/pkg/config"
	"github.com/logaxpapp/randc-client-sub001/pkg/db"
)

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Allow all for dev, or specific origin
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	cfg := config.Load()

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	log.Printf("API Service Starting on %s...", cfg.APIAddr)

	// Public endpoint
	http.Handle("/login", CORSMiddleware(http.HandlerFunc(LoginHandler)))

	// Protected endpoints
	historyHandler := NewHistoryHandler(session)
	http.Handle("/history", CORSMiddleware(AuthMiddleware(historyHandler)))

	// Route: /conversations/{id}/online
	presenceHandler := NewPresenceHandler(cfg.RedisAddr)
	http.Handle("/conversations/", CORSMiddleware(AuthMiddleware(presenceHandler)))

	http.Handle("/conversations", CORSMiddleware(AuthMiddleware(ConversationsHandler(session))))
	http.Handle("/read", CORSMiddleware(AuthMiddleware(ReadHandler(session))))

	if err := http.ListenAndServe(cfg.APIAddr, nil); err != nil {
		log.Fatal(err)
	}
}
