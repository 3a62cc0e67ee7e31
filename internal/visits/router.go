package visits

import (
	"context"
	"fmt"
	"time"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
)

// Locator is implemented by membership stores that also track where a
// character currently is.
type Locator interface {
	SetCurrentSector(ctx context.Context, characterID string, sectorID int) error
}

// Movement is a completed move of a character or one of its corporation's
// units.
type Movement struct {
	CharacterID string
	SectorID    int
	// CorpOwned routes the visit to the corporation's knowledge record.
	CorpOwned bool
	At        time.Time
}

// Router turns movements into visits: it snapshots the sector from the
// repository and picks the knowledge scope.
type Router struct {
	rec     *Recorder
	repo    graph.Repository
	members knowledge.Membership
	now     func() time.Time
}

// NewRouter wires a Router.
func NewRouter(rec *Recorder, repo graph.Repository, members knowledge.Membership) *Router {
	return &Router{rec: rec, repo: repo, members: members, now: time.Now}
}

// Scope returns the knowledge scope a movement writes to.
func (rt *Router) Scope(ctx context.Context, m Movement) (knowledge.Scope, error) {
	ch, err := rt.members.Character(ctx, m.CharacterID)
	if err != nil {
		return knowledge.Scope{}, err
	}
	if !m.CorpOwned {
		return knowledge.CharacterScope(ch.ID), nil
	}
	if ch.CorporationID == "" {
		return knowledge.Scope{}, fmt.Errorf("character %s: %w", ch.ID, ErrNoCorporation)
	}
	return knowledge.CorporationScope(ch.CorporationID), nil
}

// RecordMovement records the sector snapshot at m.SectorID in the right scope.
func (rt *Router) RecordMovement(ctx context.Context, m Movement) (Result, error) {
	scope, err := rt.Scope(ctx, m)
	if err != nil {
		return Result{}, err
	}
	rows, err := rt.repo.FetchSectors(ctx, []int{m.SectorID})
	if err != nil {
		return Result{}, fmt.Errorf("fetch sector: %w", err)
	}
	row, ok := rows[m.SectorID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %d", graph.ErrUnknownSector, m.SectorID)
	}
	codes, err := rt.repo.FetchPortCodes(ctx, []int{m.SectorID})
	if err != nil {
		return Result{}, fmt.Errorf("fetch port code: %w", err)
	}

	at := m.At
	if at.IsZero() {
		at = rt.now()
	}
	v := knowledge.Visit{
		SectorID:  m.SectorID,
		Adjacency: row.Adjacent(),
		Position:  row.Position,
		Timestamp: at,
	}
	if code, ok := codes[m.SectorID]; ok {
		v.Port = &knowledge.PortSummary{Code: code}
	}

	res, err := rt.rec.RecordVisit(ctx, scope, v)
	if err != nil {
		return res, err
	}
	if loc, ok := rt.members.(Locator); ok && !m.CorpOwned {
		if err := loc.SetCurrentSector(ctx, m.CharacterID, m.SectorID); err != nil {
			return res, fmt.Errorf("set current sector: %w", err)
		}
	}
	return res, nil
}
