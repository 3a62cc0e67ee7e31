package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
)

// Character implements knowledge.Membership.
func (d *DB) Character(ctx context.Context, characterID string) (knowledge.Character, error) {
	characterID = strings.TrimSpace(characterID)
	var ch knowledge.Character
	var current sql.NullInt64
	err := d.sql.QueryRowContext(ctx,
		"SELECT character_id, corporation_id, current_sector FROM characters WHERE character_id = ?",
		characterID,
	).Scan(&ch.ID, &ch.CorporationID, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return knowledge.Character{}, fmt.Errorf("%w: %s", knowledge.ErrUnknownCharacter, characterID)
	}
	if err != nil {
		return knowledge.Character{}, fmt.Errorf("query character: %w", err)
	}
	if current.Valid {
		cs := int(current.Int64)
		ch.CurrentSector = &cs
	}
	return ch, nil
}

// UpsertCharacter creates or updates a character's corporation membership.
// The current sector is only overwritten when ch.CurrentSector is set.
func (d *DB) UpsertCharacter(ctx context.Context, ch knowledge.Character) error {
	ch.ID = strings.TrimSpace(ch.ID)
	if ch.ID == "" {
		return fmt.Errorf("character_id is required")
	}
	var current interface{}
	if ch.CurrentSector != nil {
		current = *ch.CurrentSector
	}
	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO characters (character_id, corporation_id, current_sector, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(character_id)
		DO UPDATE SET
			corporation_id = excluded.corporation_id,
			current_sector = COALESCE(excluded.current_sector, characters.current_sector),
			updated_at = excluded.updated_at
	`, ch.ID, strings.TrimSpace(ch.CorporationID), current, time.Now().UTC().Format(time.RFC3339))
	return err
}

// SetCurrentSector records where a character is.
func (d *DB) SetCurrentSector(ctx context.Context, characterID string, sectorID int) error {
	res, err := d.sql.ExecContext(ctx,
		"UPDATE characters SET current_sector = ?, updated_at = ? WHERE character_id = ?",
		sectorID, time.Now().UTC().Format(time.RFC3339), strings.TrimSpace(characterID))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", knowledge.ErrUnknownCharacter, characterID)
	}
	return nil
}
