package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
)

type PresenceHandler struct {
	redis *redis.Client
}

func NewPresenceHandler(redisAddr string) *PresenceHandler {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	return &PresenceHandler{redis: rdb}
}

func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Extract conversation ID from URL path: /conversations/{id}/online
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 4 || pathParts[3] != "online" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	conversationID := pathParts[2]

	// Query Redis Set
	users, err := h.redis.SMembers(context.Background(), "conversation:"+conversationID+":online").Result()
	if err != nil {
		log.Printf("Failed to fetch presence for conversation %s: %v", conversationID, err)
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}
