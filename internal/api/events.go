package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// handleEvents streams map updates for a character's personal and
// corporation scopes over a websocket.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	characterID := strings.TrimSpace(r.URL.Query().Get("character_id"))
	if characterID == "" {
		writeError(w, 400, "character_id is required")
		return
	}
	ch, err := s.members.Character(r.Context(), characterID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	scopes := []string{knowledge.CharacterScope(ch.ID).Key()}
	if ch.CorporationID != "" {
		scopes = append(scopes, knowledge.CorporationScope(ch.CorporationID).Key())
	}

	// Subscribe before the upgrade so no update published after the
	// handshake completes is missed.
	id, updates := s.hub.Subscribe(scopes...)
	defer s.hub.Unsubscribe(id)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	eventSubscribers.Inc()
	defer eventSubscribers.Dec()
	log.Printf("[API] Events: character=%s subscribed (%s)", characterID, strings.Join(scopes, ", "))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reader loop: only control frames are expected; any error ends the stream.
	go func() {
		defer cancel()
		conn.SetReadLimit(4 * 1024)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case u, ok := <-updates:
			if !ok {
				return
			}
			b, err := json.Marshal(u)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
