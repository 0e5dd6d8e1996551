package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/bnema/walletctl/internal/ports"
)

// Store is a process-local KeyValueStore. Values do not survive a restart.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ ports.KeyValueStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{values: map[string]string{}}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("stored value %q: %w", key, ports.ErrKeyNotFound)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Snapshot copies the current contents.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}
