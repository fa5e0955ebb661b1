package session

import (
	"sync"

	"github.com/hupe1980/agenttree/core"
)

// Store is the transcript storage contract used by the engine.
type Store interface {
	// Append adds messages to the agent's transcript.
	Append(agentID string, msgs ...core.Message) error
	// History returns the last limit messages, or all when limit <= 0.
	History(agentID string, limit int) ([]core.Message, error)
	// Delete drops the agent's transcript.
	Delete(agentID string) error
}

// InMemoryStore is a volatile Store keeping transcripts in a process local
// map. It is safe for concurrent access. Returned slices are copies.
type InMemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string][]core.Message
	maxLen      int
}

// NewInMemoryStore constructs an empty store. maxLen caps each transcript,
// dropping the oldest messages; zero keeps everything.
func NewInMemoryStore(maxLen int) *InMemoryStore {
	return &InMemoryStore{transcripts: make(map[string][]core.Message), maxLen: maxLen}
}

// Append implements Store.
func (s *InMemoryStore) Append(agentID string, msgs ...core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := append(s.transcripts[agentID], msgs...)
	if s.maxLen > 0 && len(t) > s.maxLen {
		t = append([]core.Message(nil), t[len(t)-s.maxLen:]...)
	}
	s.transcripts[agentID] = t
	return nil
}

// History implements Store.
func (s *InMemoryStore) History(agentID string, limit int) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.transcripts[agentID]
	if limit > 0 && len(t) > limit {
		t = t[len(t)-limit:]
	}
	return append([]core.Message(nil), t...), nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, agentID)
	return nil
}
