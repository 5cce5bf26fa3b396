package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/logaxpapp/randc-client-sub001/pkg/auth"
	"github.com/logaxpapp/randc-client-sub001/pkg/db"
	"github.com/logaxpapp/randc-client-sub001/pkg/model"
)

type HistoryHandler struct {
	db *db.Session
}

func NewHistoryHandler(session *db.Session) *HistoryHandler {
	return &HistoryHandler{db: session}
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	var messages []model.MessagePayload
	// Query by conversation_id (Partition Key)
	iter := h.db.Query(`SELECT conversation_id, id, sender_id, body, created_at, edited_at, deleted
		FROM messages WHERE conversation_id = ?`, conversationID).Iter()

	var id, senderID, body, convID string
	var createdAt, editedAt time.Time
	var deleted bool

	for iter.Scan(&convID, &id, &senderID, &body, &createdAt, &editedAt, &deleted) {
		m := model.MessagePayload{
			ID:             id,
			ConversationID: convID,
			SenderID:       senderID,
			Body:           body,
			CreatedAt:      createdAt,
		}
		if !editedAt.IsZero() {
			at := editedAt
			m.EditedAt = &at
		}
		if deleted {
			m.Body = ""
		}
		messages = append(messages, m)
	}

	if err := iter.Close(); err != nil {
		log.Printf("Failed to iterate messages: %v", err)
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id,omitempty"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	token, err := auth.GenerateToken(req.UserID, req.TenantID)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{Token: token})
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		claims, err := auth.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), auth.UserKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
