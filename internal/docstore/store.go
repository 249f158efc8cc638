// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package docstore provides a Postgres-backed entity store with hierarchical
// keys. Each entity keeps its full property map in a JSONB column alongside a
// GIN-indexed projection that omits the properties excluded from indexing.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/inbound/internal/keys"
)

// Entity is a single save request.
type Entity struct {
	Key                *keys.Key
	Data               map[string]any
	ExcludeFromIndexes []string
	// ReceivedAt is stored as a native timestamp column for range queries.
	// The zero value stores NULL.
	ReceivedAt time.Time
}

// Store saves entities in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an entity store backed by the given Postgres pool.
// It ensures the entities table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure entity schema: %w", err)
	}
	slog.Info("entity store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS entities (
			id          BIGSERIAL PRIMARY KEY,
			entity_key  TEXT NOT NULL UNIQUE,
			parent_key  TEXT NOT NULL DEFAULT '',
			kind        TEXT NOT NULL,
			data        JSONB NOT NULL,
			indexed     JSONB NOT NULL,
			unindexed   TEXT[] NOT NULL DEFAULT '{}',
			received_at TIMESTAMPTZ,
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW()
		);
		ALTER TABLE entities ADD COLUMN IF NOT EXISTS received_at TIMESTAMPTZ;
		CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(parent_key, kind);
		CREATE INDEX IF NOT EXISTS idx_entities_indexed ON entities USING GIN (indexed);
		CREATE INDEX IF NOT EXISTS idx_entities_received ON entities(kind, received_at);
	`)
	return err
}

// Save writes e and returns its complete key. A named key is upserted; an
// incomplete key is given the next row ID as its ordinal.
func (s *Store) Save(ctx context.Context, e Entity) (*keys.Key, error) {
	if e.Key == nil {
		return nil, errors.New("save entity: nil key")
	}

	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal entity data: %w", err)
	}
	indexed, err := json.Marshal(indexedProjection(e.Data, e.ExcludeFromIndexes))
	if err != nil {
		return nil, fmt.Errorf("marshal indexed data: %w", err)
	}
	unindexed := e.ExcludeFromIndexes
	if unindexed == nil {
		unindexed = []string{}
	}

	key := e.Key
	var id *int64
	if key.Incomplete() {
		var next int64
		if err := s.pool.QueryRow(ctx,
			`SELECT nextval(pg_get_serial_sequence('entities', 'id'))`,
		).Scan(&next); err != nil {
			return nil, fmt.Errorf("allocate entity id: %w", err)
		}
		key = key.WithID(next)
		id = &next
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO entities
			(id, entity_key, parent_key, kind, data, indexed, unindexed, received_at)
		VALUES (COALESCE($1, nextval(pg_get_serial_sequence('entities', 'id'))),
		        $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8)
		ON CONFLICT (entity_key) DO UPDATE SET
			data        = EXCLUDED.data,
			indexed     = EXCLUDED.indexed,
			unindexed   = EXCLUDED.unindexed,
			received_at = EXCLUDED.received_at,
			updated_at  = NOW()
	`, id, key.String(), parentString(key), key.Kind(), string(data), string(indexed), unindexed, nullableTime(e.ReceivedAt))
	if err != nil {
		return nil, fmt.Errorf("save entity %s: %w", key, err)
	}
	return key, nil
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// indexedProjection copies data without the excluded properties.
func indexedProjection(data map[string]any, exclude []string) map[string]any {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if !skip[k] {
			out[k] = v
		}
	}
	return out
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func parentString(k *keys.Key) string {
	if p := k.Parent(); p != nil {
		return p.String()
	}
	return ""
}
