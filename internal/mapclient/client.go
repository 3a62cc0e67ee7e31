// Package mapclient is a consumer of the local map API. It routes viewport
// fetches through a coverage cache so repeated pans and zooms over the same
// area do not hit the server again, and it follows map update events.
package mapclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/config"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/coverage"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/localmap"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxSectors = 200
	// maxRadius mirrors the server's bounds.radius limit.
	maxRadius = 1000
)

// APIError is a non-2xx response from the map server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("map api: %d %s", e.Status, e.Message)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxSectors int
	margin     float64

	mu       sync.Mutex
	coverage *coverage.State
	fit      *coverage.FitRetry
	sectors  map[int]localmap.SectorView
	view     coverage.Rect
	hasView  bool
	now      func() time.Time
}

// New creates a client for the server at baseURL (e.g. "http://127.0.0.1:13380").
func New(baseURL string, cfg config.CoverageConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxSectors: defaultMaxSectors,
		margin:     cfg.RecenterMargin,
		coverage:   coverage.NewState(cfg.InFlightTTL),
		fit:        coverage.NewFitRetry(cfg.FitRetryLimit),
		sectors:    make(map[int]localmap.SectorView),
		now:        time.Now,
	}
}

// WithMaxSectors sets the sector cap sent with region requests.
func (c *Client) WithMaxSectors(n int) *Client {
	if n > 0 {
		c.maxSectors = n
	}
	return c
}

// Sector returns the most recently fetched view of a sector.
func (c *Client) Sector(id int) (localmap.SectorView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sectors[id]
	return s, ok
}

// View returns the current viewport, if one was set.
func (c *Client) View() (coverage.Rect, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view, c.hasView
}

// RequestRegion makes sure the square of half-size radius around center is
// loaded. It returns a nil payload without contacting the server when the
// area is already covered or being fetched.
func (c *Client) RequestRegion(ctx context.Context, characterID string, center graph.World, radius float64) (*localmap.Payload, error) {
	if !(radius > 0) {
		return nil, fmt.Errorf("region radius must be positive, got %v", radius)
	}
	area := coverage.RectAround(center, radius)
	key := uuid.NewString()

	c.mu.Lock()
	c.view, c.hasView = area, true
	if c.coverage.IsAlreadyCovered(area, c.now()) {
		c.mu.Unlock()
		return nil, nil
	}
	c.coverage.BeginFetch(key, area, c.now())
	c.mu.Unlock()

	// The server selects by circle; ask for the circle around the square.
	req := localmap.Request{
		CharacterID: characterID,
		MaxSectors:  &c.maxSectors,
		Bounds: &localmap.Bounds{
			Center: center,
			Radius: math.Min(radius*math.Sqrt2, maxRadius),
		},
	}
	var payload localmap.Payload
	err := c.post(ctx, "/api/map/local", req, &payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.coverage.FailFetch(key)
		return nil, err
	}
	c.apply(&payload)
	if payload.TotalSectors >= c.maxSectors || radius*math.Sqrt2 > maxRadius {
		// Truncated: the area may hold more than we got.
		c.coverage.FailFetch(key)
	} else {
		c.coverage.CompleteFetch(key, area)
	}
	return &payload, nil
}

// Follow keeps focus away from the viewport edges, fetching the moved
// viewport when it has to recenter.
func (c *Client) Follow(ctx context.Context, characterID string, focus graph.World) (*localmap.Payload, error) {
	c.mu.Lock()
	if !c.hasView {
		c.mu.Unlock()
		return nil, nil
	}
	view, moved := coverage.Recenter(c.view, focus, c.margin)
	c.mu.Unlock()
	if !moved {
		return nil, nil
	}
	return c.RequestRegion(ctx, characterID, view.Center(), math.Max(view.Width(), view.Height())/2)
}

// FitSectors widens the viewport until every target sector has been
// fetched. It returns FitSatisfied when all targets are already known.
func (c *Client) FitSectors(ctx context.Context, characterID string, targets []int) (coverage.FitOutcome, error) {
	c.mu.Lock()
	outcome := c.fit.Start(targets, c.missingLocked(targets))
	c.mu.Unlock()
	if outcome != coverage.FitRetryFetch {
		return outcome, nil
	}
	return c.fitStep(ctx, characterID)
}

// fitStep fetches a wider region and reports the FitRetry transition.
func (c *Client) fitStep(ctx context.Context, characterID string) (coverage.FitOutcome, error) {
	c.mu.Lock()
	center, radius := c.fitRegionLocked()
	c.mu.Unlock()

	if _, err := c.RequestRegion(ctx, characterID, center, radius); err != nil {
		return coverage.FitIdle, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fit.OnKnowledgeUpdate(c.missingLocked(c.fit.Targets())), nil
}

// fitRegionLocked doubles the current viewport around its centre, stretched
// to include every target whose position is already known.
func (c *Client) fitRegionLocked() (graph.World, float64) {
	view := c.view
	if !c.hasView {
		view = coverage.RectAround(graph.World{}, 10)
	}
	for _, id := range c.fit.Targets() {
		if s, ok := c.sectors[id]; ok {
			w := graph.ToWorld(s.Position)
			view.MinX, view.MaxX = math.Min(view.MinX, w.X), math.Max(view.MaxX, w.X)
			view.MinY, view.MaxY = math.Min(view.MinY, w.Y), math.Max(view.MaxY, w.Y)
		}
	}
	radius := math.Max(view.Width(), view.Height())
	return view.Center(), math.Min(radius, maxRadius/math.Sqrt2)
}

func (c *Client) missingLocked(targets []int) int {
	n := 0
	for _, id := range targets {
		if _, ok := c.sectors[id]; !ok {
			n++
		}
	}
	return n
}

// apply stores payload sectors; a visited view replaces an older fog view
// but not the other way round.
func (c *Client) apply(p *localmap.Payload) {
	for _, s := range p.Sectors {
		if prev, ok := c.sectors[s.ID]; ok && prev.Visited && !s.Visited {
			continue
		}
		c.sectors[s.ID] = s
	}
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
