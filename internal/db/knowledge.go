package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
)

// KnowledgeStore persists map knowledge in the map_knowledge table with a
// per-row version for optimistic concurrency.
type KnowledgeStore struct {
	d *DB
}

// Knowledge returns the knowledge.Store backed by this database.
func (d *DB) Knowledge() *KnowledgeStore {
	return &KnowledgeStore{d: d}
}

// Load implements knowledge.Store.
func (s *KnowledgeStore) Load(ctx context.Context, scope knowledge.Scope) (*knowledge.MapKnowledge, int64, error) {
	if err := scope.Validate(); err != nil {
		return nil, 0, err
	}
	var version int64
	var blob []byte
	err := s.d.sql.QueryRowContext(ctx,
		"SELECT version, blob FROM map_knowledge WHERE scope_kind = ? AND scope_id = ?",
		string(scope.Kind), scope.ID,
	).Scan(&version, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return knowledge.New(), 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query knowledge: %w", err)
	}
	return knowledge.DecodeBlob(blob), version, nil
}

// Save implements knowledge.Store.
func (s *KnowledgeStore) Save(ctx context.Context, scope knowledge.Scope, k *knowledge.MapKnowledge, expectedVersion int64) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	blob, err := knowledge.EncodeBlob(k)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	next := expectedVersion + 1

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.d.sql.ExecContext(ctx, `
			INSERT INTO map_knowledge (scope_kind, scope_id, version, encoding, blob, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(scope_kind, scope_id) DO NOTHING
		`, string(scope.Kind), scope.ID, next, knowledge.EncodingZstd, blob, now)
	} else {
		res, err = s.d.sql.ExecContext(ctx, `
			UPDATE map_knowledge
			SET version = ?, encoding = ?, blob = ?, updated_at = ?
			WHERE scope_kind = ? AND scope_id = ? AND version = ?
		`, next, knowledge.EncodingZstd, blob, now, string(scope.Kind), scope.ID, expectedVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("save knowledge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%s at version %d: %w", scope, expectedVersion, knowledge.ErrVersionConflict)
	}
	return next, nil
}
