package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ScopeKind distinguishes personal from corporation knowledge records.
type ScopeKind string

const (
	ScopeCharacter   ScopeKind = "character"
	ScopeCorporation ScopeKind = "corporation"
)

// Scope identifies the owner of a knowledge record.
type Scope struct {
	Kind ScopeKind
	ID   string
}

func CharacterScope(id string) Scope   { return Scope{Kind: ScopeCharacter, ID: id} }
func CorporationScope(id string) Scope { return Scope{Kind: ScopeCorporation, ID: id} }

// Key is the serialization key used for locks, storage and event routing.
func (s Scope) Key() string {
	return string(s.Kind) + ":" + s.ID
}

func (s Scope) String() string { return s.Key() }

// Validate checks the kind and that the id is non-empty.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeCharacter, ScopeCorporation:
	default:
		return fmt.Errorf("invalid scope kind %q", s.Kind)
	}
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("empty %s id", s.Kind)
	}
	return nil
}

var (
	// ErrVersionConflict is returned by Store.Save when the stored version no
	// longer matches the version the caller read.
	ErrVersionConflict = errors.New("knowledge version conflict")
	// ErrUnknownCharacter is returned by Membership for unknown characters.
	ErrUnknownCharacter = errors.New("unknown character")
)

// Store persists knowledge records with optimistic concurrency.
type Store interface {
	// Load returns the record and its version. A missing record is an empty
	// knowledge set at version 0.
	Load(ctx context.Context, scope Scope) (*MapKnowledge, int64, error)
	// Save writes k if the stored version still equals expectedVersion and
	// returns the new version.
	Save(ctx context.Context, scope Scope, k *MapKnowledge, expectedVersion int64) (int64, error)
}

// Character is the membership data needed to pick knowledge scopes.
type Character struct {
	ID            string `json:"character_id"`
	CorporationID string `json:"corporation_id,omitempty"`
	// CurrentSector is the last sector the character was placed in.
	CurrentSector *int `json:"current_sector,omitempty"`
}

// Membership resolves characters to corporations.
type Membership interface {
	Character(ctx context.Context, characterID string) (Character, error)
}
