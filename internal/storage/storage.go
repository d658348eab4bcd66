// Package storage persists replays, auto-saves and the land colour table
// in Postgres.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/planarnexus/nexus-server/internal/game/autosave"
	"github.com/planarnexus/nexus-server/internal/game/mana"
	"github.com/planarnexus/nexus-server/internal/game/replay"
	"github.com/planarnexus/nexus-server/internal/game/state"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS replays (
	id          TEXT PRIMARY KEY,
	game_id     TEXT NOT NULL,
	format      TEXT NOT NULL DEFAULT '',
	winner      TEXT NOT NULL DEFAULT '',
	action_count INT NOT NULL DEFAULT 0,
	data        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_replays_game_id ON replays(game_id);
CREATE TABLE IF NOT EXISTS auto_saves (
	game_id     TEXT NOT NULL,
	slot        INT NOT NULL,
	id          TEXT NOT NULL,
	trigger_name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	state       JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	serial      BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (game_id, slot)
);
ALTER TABLE auto_saves ADD COLUMN IF NOT EXISTS serial BIGINT NOT NULL DEFAULT 0;
CREATE TABLE IF NOT EXISTS land_mana (
	name   TEXT PRIMARY KEY,
	colors TEXT[] NOT NULL
);
`

// Store is the Postgres backend for replays and auto-saves.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var (
	_ replay.Store   = (*Store)(nil)
	_ autosave.Store = (*Store)(nil)
)

// NewStore connects to Postgres and ensures the tables exist. If
// databaseURL is empty, NewStore returns (nil, nil) and callers fall back
// to file storage.
func NewStore(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if databaseURL == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	stats := pool.Stat()
	logger.Info("connected to postgres",
		zap.Int32("total_conns", stats.TotalConns()),
		zap.Int32("idle_conns", stats.IdleConns()),
	)
	return &Store{pool: pool, logger: logger}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// SaveReplay inserts or replaces a replay.
func (s *Store) SaveReplay(ctx context.Context, r *replay.Replay) error {
	data, err := replay.Export(r)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO replays (id, game_id, format, winner, action_count, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			winner = EXCLUDED.winner,
			action_count = EXCLUDED.action_count,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`,
		r.ID,
		r.Metadata.GameID,
		r.Metadata.Format,
		r.Metadata.Winner,
		r.TotalActions,
		data,
		r.CreatedAt,
		r.LastModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("save replay %s: %w", r.ID, err)
	}
	return nil
}

// LoadReplay reads a replay by ID.
func (s *Store) LoadReplay(ctx context.Context, id string) (*replay.Replay, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM replays WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", replay.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load replay %s: %w", id, err)
	}
	return replay.Import(data)
}

// DeleteReplay removes a replay by ID.
func (s *Store) DeleteReplay(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM replays WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete replay %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", replay.ErrNotFound, id)
	}
	return nil
}

// ReplaySummary is a listing row for a stored replay.
type ReplaySummary struct {
	ID          string    `json:"id"`
	GameID      string    `json:"gameId"`
	Format      string    `json:"format"`
	Winner      string    `json:"winner,omitempty"`
	ActionCount int       `json:"actionCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListReplays returns the most recent replays, newest first.
func (s *Store) ListReplays(ctx context.Context, limit, offset int) ([]ReplaySummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, game_id, format, winner, action_count, created_at
		FROM replays
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReplaySummary
	for rows.Next() {
		var r ReplaySummary
		if err := rows.Scan(&r.ID, &r.GameID, &r.Format, &r.Winner, &r.ActionCount, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Put writes an auto-save into its slot, replacing what was there.
func (s *Store) Put(ctx context.Context, save autosave.Save) error {
	st, err := json.Marshal(save.State)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO auto_saves (game_id, slot, id, trigger_name, description, state, created_at, serial)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (game_id, slot) DO UPDATE SET
			id = EXCLUDED.id,
			trigger_name = EXCLUDED.trigger_name,
			description = EXCLUDED.description,
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at,
			serial = EXCLUDED.serial
	`,
		save.GameID,
		save.Slot,
		save.ID,
		string(save.Trigger),
		save.Description,
		st,
		save.CreatedAt,
		save.Serial,
	)
	if err != nil {
		return fmt.Errorf("put auto-save %s/%d: %w", save.GameID, save.Slot, err)
	}
	return nil
}

// List returns a game's auto-saves, oldest first.
func (s *Store) List(ctx context.Context, gameID string) ([]autosave.Save, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, slot, trigger_name, description, state, created_at, serial
		FROM auto_saves
		WHERE game_id = $1
		ORDER BY created_at, serial, slot
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []autosave.Save
	for rows.Next() {
		save := autosave.Save{GameID: gameID}
		var trigger string
		var st []byte
		if err := rows.Scan(&save.ID, &save.Slot, &trigger, &save.Description, &st, &save.CreatedAt, &save.Serial); err != nil {
			return nil, err
		}
		save.Trigger = autosave.Trigger(trigger)
		save.State = &state.GameState{}
		if err := json.Unmarshal(st, save.State); err != nil {
			return nil, fmt.Errorf("decode auto-save %s: %w", save.ID, err)
		}
		out = append(out, save)
	}
	return out, rows.Err()
}

// DeleteGame removes every auto-save of gameID.
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM auto_saves WHERE game_id = $1`, gameID)
	return err
}

// LandEntry is one row of the land colour table.
type LandEntry struct {
	Name   string
	Colors []mana.Color
}

// LoadLandTable returns the default land table overlaid with the stored
// rows. Unknown colour names in the database are skipped.
func (s *Store) LoadLandTable(ctx context.Context) (mana.LandTable, error) {
	table := mana.DefaultLandTable()
	if s == nil || s.pool == nil {
		return table, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT name, colors FROM land_mana`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var name string
		var colors []string
		if err := rows.Scan(&name, &colors); err != nil {
			return nil, err
		}
		parsed := parseColors(colors)
		if len(parsed) == 0 {
			s.logger.Warn("land has no known colours", zap.String("name", name), zap.Strings("colors", colors))
			continue
		}
		table.Set(name, parsed...)
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Info("land table loaded", zap.Int("stored_lands", n))
	return table, nil
}

// UpsertLands writes land entries in one batch and reports how many rows
// were written.
func (s *Store) UpsertLands(ctx context.Context, lands []LandEntry) (int, error) {
	if len(lands) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, land := range lands {
		batch.Queue(`
			INSERT INTO land_mana (name, colors) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET colors = EXCLUDED.colors
		`, mana.CanonicalName(land.Name), formatColors(land.Colors))
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	written := 0
	for _, land := range lands {
		if _, err := results.Exec(); err != nil {
			return written, fmt.Errorf("upsert land %s: %w", land.Name, err)
		}
		written++
	}
	return written, nil
}

func parseColors(names []string) []mana.Color {
	out := make([]mana.Color, 0, len(names))
	for _, name := range names {
		c := mana.Color(name)
		for _, known := range mana.PaymentOrder {
			if c == known {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func formatColors(colors []mana.Color) []string {
	out := make([]string, len(colors))
	for i, c := range colors {
		out[i] = string(c)
	}
	return out
}
