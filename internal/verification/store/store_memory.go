package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Hodazia/kubecredentials/internal/verification/models"
)

// MemoryStore keeps the verification log in process memory. Used in tests
// and when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []models.LogEntry
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(_ context.Context, entry *models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *MemoryStore) History(_ context.Context, limit int) ([]models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Later entries overwrite earlier ones per hash; ids increase in
	// insertion order so the map ends up holding the latest attempt.
	latest := make(map[string]models.LogEntry, len(s.entries))
	for _, entry := range s.entries {
		latest[entry.ContentHash] = entry
	}

	out := make([]models.LogEntry, 0, len(latest))
	for _, entry := range latest {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

var _ Store = (*MemoryStore)(nil)
