package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Hodazia/kubecredentials/internal/issuance/models"
	"github.com/Hodazia/kubecredentials/pkg/platform/sentinel"
)

// MemoryStore keeps credentials in memory. Used in tests and when no
// database is configured. The mutex gives it the same atomic
// insert-or-reject behavior the postgres unique constraint provides.
type MemoryStore struct {
	mu     sync.RWMutex
	byHash map[string]models.Credential
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]models.Credential)}
}

func (s *MemoryStore) FindByHash(_ context.Context, hash string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cred, ok := s.byHash[hash]; ok {
		c := cred
		return &c, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) Insert(_ context.Context, credential *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[credential.ContentHash]; ok {
		return sentinel.ErrDuplicateHash
	}
	s.byHash[credential.ContentHash] = *credential
	return nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Credential, 0, len(s.byHash))
	for _, cred := range s.byHash {
		out = append(out, cred)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.After(out[j].IssuedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
