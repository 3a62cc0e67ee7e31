package localmap

import (
	"context"
	"errors"
	"fmt"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/config"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
)

// Service answers "get local map" requests for characters.
type Service struct {
	store   knowledge.Store
	members knowledge.Membership
	builder *Builder
	cfg     config.LocalMapConfig
}

// NewService wires a Service.
func NewService(store knowledge.Store, members knowledge.Membership, repo graph.Repository, cfg config.LocalMapConfig) *Service {
	return &Service{
		store:   store,
		members: members,
		builder: NewBuilder(repo),
		cfg:     cfg,
	}
}

// Knowledge returns the character's merged view: personal knowledge merged
// with its corporation's, or personal knowledge tagged as player-only.
func (s *Service) Knowledge(ctx context.Context, characterID string) (*knowledge.MapKnowledge, knowledge.Character, error) {
	ch, err := s.members.Character(ctx, characterID)
	if err != nil {
		if errors.Is(err, knowledge.ErrUnknownCharacter) {
			return nil, knowledge.Character{}, &ValidationError{Field: "character_id", Message: "unknown character " + characterID}
		}
		return nil, knowledge.Character{}, fmt.Errorf("load character: %w", err)
	}
	personal, _, err := s.store.Load(ctx, knowledge.CharacterScope(ch.ID))
	if err != nil {
		return nil, ch, fmt.Errorf("load personal knowledge: %w", err)
	}
	if ch.CorporationID == "" {
		return knowledge.TagAsPlayerOnly(personal), ch, nil
	}
	corp, _, err := s.store.Load(ctx, knowledge.CorporationScope(ch.CorporationID))
	if err != nil {
		return nil, ch, fmt.Errorf("load corporation knowledge: %w", err)
	}
	if len(corp.SectorsVisited) == 0 {
		return knowledge.TagAsPlayerOnly(personal), ch, nil
	}
	return knowledge.Merge(personal, corp), ch, nil
}

// LocalMap validates req, resolves the center and builds the payload.
func (s *Service) LocalMap(ctx context.Context, req Request) (*Payload, error) {
	lim, err := req.Resolve(s.cfg)
	if err != nil {
		return nil, err
	}
	merged, ch, err := s.Knowledge(ctx, req.CharacterID)
	if err != nil {
		return nil, err
	}

	current := merged.CurrentSector
	if current == nil {
		current = ch.CurrentSector
	}
	var center int
	switch {
	case req.CenterSector != nil:
		center = *req.CenterSector
		if !merged.Visited(center) && (current == nil || *current != center) {
			return nil, &ValidationError{Field: "center_sector", Message: fmt.Sprintf("sector %d has not been visited", center)}
		}
	case current != nil:
		center = *current
	default:
		return nil, &ValidationError{Field: "center_sector", Message: "required: character has no known location"}
	}

	if req.Bounds != nil {
		return s.builder.BuildBounds(ctx, center, req.Bounds.Center, req.Bounds.Radius, lim.MaxSectors, merged)
	}
	return s.builder.Build(ctx, center, lim, merged)
}
