// Package memory provides a volatile core.Store keeping snapshots in a
// process local map. Suitable for tests and single-process deployments that
// do not need to survive restarts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agenttree/core"
)

// Store is a naive process-local snapshot store. Concurrency: protected by
// RWMutex. Snapshots are cloned on the way in and out.
type Store struct {
	mu    sync.RWMutex
	snaps map[string]core.Snapshot
}

// New creates an empty store.
func New() *Store {
	return &Store{snaps: make(map[string]core.Snapshot)}
}

// Save stores snap unless a snapshot with the same or a newer version is
// already present.
func (s *Store) Save(_ context.Context, snap core.Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("save snapshot: empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.snaps[snap.ID]; ok && cur.Version >= snap.Version {
		return nil
	}
	s.snaps[snap.ID] = snap.Clone()
	return nil
}

// Load returns the stored snapshot or core.ErrSnapshotNotFound.
func (s *Store) Load(_ context.Context, agentID string) (core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snaps[agentID]
	if !ok {
		return core.Snapshot{}, fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, agentID)
	}
	return snap.Clone(), nil
}

// Delete removes a snapshot. Missing ids are ignored.
func (s *Store) Delete(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, agentID)
	return nil
}

// List returns every stored snapshot ordered by name.
func (s *Store) List(_ context.Context) ([]core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
