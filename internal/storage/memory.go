// Package storage provides conversation history implementations.
package storage

import (
	"context"
	"sync"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

// Compile-time interface check.
var _ domain.ConversationStore = (*MemoryStore)(nil)

// MemoryStore keeps conversation turns in memory, keyed by conversation
// ID. Safe for concurrent access.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]domain.Turn
	log           *logger.Logger
}

// NewMemoryStore creates an empty in-memory conversation store.
func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string][]domain.Turn),
		log:           log.With("store"),
	}
}

// Append records a turn at the end of the conversation.
func (s *MemoryStore) Append(ctx context.Context, id string, turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[id] = append(s.conversations[id], turn)
	s.log.Debug("conversation %s: appended %s turn (%d total)", id, turn.Role, len(s.conversations[id]))
	return nil
}

// Recent returns a copy of the last n turns, oldest first. n <= 0 returns
// the whole conversation. An unknown conversation is empty, not an error.
func (s *MemoryStore) Recent(ctx context.Context, id string, n int) ([]domain.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.conversations[id]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Clear forgets the conversation.
func (s *MemoryStore) Clear(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, id)
	s.log.Debug("conversation %s: cleared", id)
	return nil
}

// Stats counts the turns of a conversation.
func (s *MemoryStore) Stats(ctx context.Context, id string) (domain.ConversationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.conversations[id]
	var st domain.ConversationStats
	st.TotalMessages = len(turns)
	for _, t := range turns {
		switch t.Role {
		case domain.RoleUser:
			st.UserMessages++
		case domain.RoleAssistant:
			st.AssistantMessages++
		}
	}
	if len(turns) > 0 {
		st.StartedAt = turns[0].Timestamp
	}
	return st, nil
}
