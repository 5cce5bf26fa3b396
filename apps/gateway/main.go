package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/logaxpapp/randc-client-sub001/pkg/config"
)

type notifyRequest struct {
	UserID   string          `json:"user_id,omitempty"`
	TenantID string          `json:"tenant_id,omitempty"`
	Text     string          `json:"text"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// notifyHandler lets internal services (booking, marketplace) push a
// notification onto the channel. Not exposed publicly.
func notifyHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req notifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Text == "" {
			http.Error(w, "text is required", http.StatusBadRequest)
			return
		}

		hub.Notify(req.UserID, req.TenantID, req.Text, req.Data)
		w.WriteHeader(http.StatusAccepted)
	}
}

func main() {
	cfg := config.Load()

	hub := NewHub(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.RedisAddr)
	go hub.Run()

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})
	http.HandleFunc("/notify", notifyHandler(hub))

	log.Printf("Gateway Service Starting on %s...", cfg.GatewayAddr)
	if err := http.ListenAndServe(cfg.GatewayAddr, nil); err != nil {
		log.Fatal(err)
	}
}
