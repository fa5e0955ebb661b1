// Package sqlite provides a durable core.Store backed by SQLite through the
// pure Go modernc.org/sqlite driver. Each agent is one row holding the JSON
// encoded snapshot plus a few indexed columns for inspection.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/agenttree/core"
)

// Store is a snapshot store backed by SQLite. All public methods are safe
// for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// Open creates a store at the given database path. Use ":memory:" for an
// ephemeral database. The schema is created automatically on first use.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and consistent.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// New wraps an existing database handle and runs migrations.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_snapshots (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		parent_id  TEXT NOT NULL DEFAULT '',
		state      TEXT NOT NULL,
		version    INTEGER NOT NULL,
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agent_snapshots_parent ON agent_snapshots(parent_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save upserts a snapshot. Rows are only replaced by strictly newer versions.
func (s *Store) Save(ctx context.Context, snap core.Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("save snapshot: empty id")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_snapshots (id, name, parent_id, state, version, data, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE
		 SET name = excluded.name, parent_id = excluded.parent_id, state = excluded.state,
		     version = excluded.version, data = excluded.data, updated_at = excluded.updated_at
		 WHERE excluded.version > agent_snapshots.version`,
		snap.ID, snap.Name, snap.ParentID, string(snap.State), int64(snap.Version), string(data),
		snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// Load returns the stored snapshot or core.ErrSnapshotNotFound.
func (s *Store) Load(ctx context.Context, agentID string) (core.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM agent_snapshots WHERE id = ?`, agentID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, agentID)
	}
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load snapshot %s: %w", agentID, err)
	}

	return decode(agentID, data)
}

// Children returns the stored snapshots whose parent is parentID, ordered by
// name.
func (s *Store) Children(ctx context.Context, parentID string) ([]core.Snapshot, error) {
	return s.query(ctx, `SELECT id, data FROM agent_snapshots WHERE parent_id = ? ORDER BY name`, parentID)
}

// List returns every stored snapshot ordered by name.
func (s *Store) List(ctx context.Context) ([]core.Snapshot, error) {
	return s.query(ctx, `SELECT id, data FROM agent_snapshots ORDER BY name`)
}

// Delete removes a snapshot. No error is returned if it does not exist.
func (s *Store) Delete(ctx context.Context, agentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM agent_snapshots WHERE id = ?`, agentID); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", agentID, err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]core.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []core.Snapshot
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap, err := decode(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func decode(id, data string) (core.Snapshot, error) {
	var snap core.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return snap, nil
}
