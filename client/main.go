package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/logaxpapp/randc-client-sub001/pkg/logger"
	"github.com/logaxpapp/randc-client-sub001/pkg/sync"
)

type LoginResponse struct {
	Token string `json:"token"`
}

func login(apiAddr, userID, tenantID string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"user_id": userID, "tenant_id": tenantID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}

	return loginResp.Token, nil
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	tenantID := flag.String("tenant", "", "tenant id")
	conversationID := flag.String("conversation", "general", "conversation id")
	flag.Parse()

	// 1. Login to get token
	log.Printf("Logging in as %s...", *userID)
	token, err := login(*apiAddr, *userID, *tenantID)
	if err != nil {
		log.Fatal("Login failed:", err)
	}
	log.Printf("Login successful. Token: %s...", token[:10])

	// 2. Run an engine against the gateway
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	q := u.Query()
	q.Set("conversations", *conversationID)
	u.RawQuery = q.Encode()

	engine := sync.New(sync.Options{
		Dialer: &sync.WebsocketDialer{URL: u.String()},
		Logger: logger.New(),
		Supervisor: sync.SupervisorOptions{
			OnResumed:  func() { fmt.Print("\r(resumed)\n> ") },
			OnDegraded: func(err error) { fmt.Printf("\r(%v, still retrying)\n> ", err) },
		},
	})

	session := sync.Session{Token: token, TenantID: *tenantID}
	if err := engine.Start(session); err != nil {
		log.Fatal("start:", err)
	}
	defer engine.Stop()

	// 3. Render store snapshots as they grow
	done := make(chan struct{})
	go func() {
		printed := 0
		ticker := time.NewTicker(300 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				messages := engine.Conversations().Messages(*conversationID)
				for _, m := range messages[printed:] {
					if m.Deleted {
						fmt.Printf("\r%s: (deleted)\n> ", m.SenderID)
					} else {
						fmt.Printf("\r%s: %s\n> ", m.SenderID, m.Body)
					}
				}
				printed = len(messages)
				if typing := engine.Presence().TypingUsers(*conversationID); len(typing) > 0 {
					fmt.Printf("\r%s typing...\n> ", strings.Join(typing, ", "))
				}
			case <-done:
				return
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// 4. Read from stdin and send commands
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				fmt.Print("> ")
				continue
			}

			fields := strings.Fields(text)
			if len(fields) == 0 {
				fmt.Print("> ")
				continue
			}

			var err error
			switch {
			case text == "/quit":
				interrupt <- os.Interrupt
				return
			case text == "/typing":
				err = engine.Typing(*conversationID)
			case text == "/stop":
				err = engine.StopTyping(*conversationID)
			case text == "/who":
				for _, e := range engine.Presence().Snapshot() {
					fmt.Printf("%s: %s\n", e.UserID, e.Status)
				}
			case text == "/inbox":
				for _, n := range engine.Inbox().All() {
					marker := "*"
					if n.Read {
						marker = " "
					}
					fmt.Printf("%s %s %s\n", marker, n.ID, n.Text)
				}
			case fields[0] == "/edit" && len(fields) >= 3:
				err = engine.EditMessage(fields[1], *conversationID, strings.Join(fields[2:], " "))
			case fields[0] == "/delete" && len(fields) == 2:
				err = engine.DeleteMessage(fields[1], *conversationID)
			case fields[0] == "/react" && len(fields) == 3:
				err = engine.AddReaction(fields[1], *conversationID, fields[2])
			case fields[0] == "/read" && len(fields) == 2:
				err = engine.MarkRead(fields[1], *conversationID)
			default:
				err = engine.SendMessage(*conversationID, text)
			}
			if err != nil {
				log.Println("send:", err)
			}
			fmt.Print("> ")
		}
	}()

	<-interrupt
	log.Println("interrupt")
	close(done)
}
