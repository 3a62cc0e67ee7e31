package mapclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/coverage"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/events"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
)

// Subscribe opens the map event stream for characterID. The returned
// channel is closed when ctx ends or the connection drops.
func (c *Client) Subscribe(ctx context.Context, characterID string) (<-chan events.MapUpdate, error) {
	u, err := url.Parse(c.baseURL + "/api/map/events")
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"character_id": {characterID}}.Encode()

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(err.Error())}
		}
		return nil, fmt.Errorf("dial events: %w", err)
	}

	out := make(chan events.MapUpdate, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// Wakes up a blocking ReadMessage.
		case <-done:
		}
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var upd events.MapUpdate
			if err := json.Unmarshal(msg, &upd); err != nil {
				continue
			}
			select {
			case out <- upd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// HandleUpdate reacts to a map update: coverage around the updated sector
// is dropped so the next viewport fetch sees the new knowledge, and a
// pending FitSectors request takes another step.
func (c *Client) HandleUpdate(ctx context.Context, characterID string, u events.MapUpdate) (coverage.FitOutcome, error) {
	c.mu.Lock()
	if s, ok := c.sectors[u.SectorID]; ok {
		c.coverage.Invalidate(graph.ToWorld(s.Position))
	} else {
		c.coverage.Reset()
	}
	active := c.fit.Active()
	c.mu.Unlock()

	if !active {
		return coverage.FitIdle, nil
	}
	return c.fitStep(ctx, characterID)
}

// Run subscribes and feeds every update to HandleUpdate until ctx ends.
// onOutcome, if set, sees every non-idle FitRetry transition.
func (c *Client) Run(ctx context.Context, characterID string, onOutcome func(coverage.FitOutcome)) error {
	updates, err := c.Subscribe(ctx, characterID)
	if err != nil {
		return err
	}
	for u := range updates {
		outcome, err := c.HandleUpdate(ctx, characterID, u)
		if err != nil {
			return err
		}
		if outcome != coverage.FitIdle && onOutcome != nil {
			onOutcome(outcome)
		}
	}
	return ctx.Err()
}
