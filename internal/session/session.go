// Package session holds per-conversation turn logs. Turns are append-only
// and never reordered; the orchestrator only reads a trailing window.
package session

import (
	"context"
	"sync"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single conversation entry. Immutable once appended.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store is the session repository capability consumed by the HTTP layer.
type Store interface {
	Get(ctx context.Context, id string) ([]Turn, error)
	Append(ctx context.Context, id string, turn Turn) error
}

// Tail returns the most recent n turns, oldest discarded.
func Tail(turns []Turn, n int) []Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// MemoryStore keeps sessions in process memory. Appends are serialised so
// concurrent turns on the same session preserve ordering.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Turn)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sessions[id]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, id string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = append(s.sessions[id], turn)
	return nil
}
