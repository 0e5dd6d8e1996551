package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/walletctl/internal/adapters/storage/file"
	memorystore "github.com/bnema/walletctl/internal/adapters/storage/memory"
	"github.com/bnema/walletctl/internal/ports"
)

// Store writes to primary and falls back to fallback when primary fails, so
// a read-only or missing storage directory degrades to process-local state.
type Store struct {
	primary  ports.KeyValueStore
	fallback ports.KeyValueStore
}

var _ ports.KeyValueStore = (*Store)(nil)

var (
	errNilPrimaryStore  = errors.New("primary store is nil")
	errNilFallbackStore = errors.New("fallback store is nil")
)

func NewStore(primary ports.KeyValueStore, fallback ports.KeyValueStore) *Store {
	store, err := NewStoreChecked(primary, fallback)
	if err != nil {
		panic(err)
	}

	return store
}

func NewStoreChecked(primary ports.KeyValueStore, fallback ports.KeyValueStore) (*Store, error) {
	if primary == nil {
		return nil, errNilPrimaryStore
	}
	if fallback == nil {
		return nil, errNilFallbackStore
	}

	return &Store{primary: primary, fallback: fallback}, nil
}

func NewFileFirstWithMemoryFallback(fileRoot string) (*Store, error) {
	return NewStoreChecked(filestore.NewStore(fileRoot), memorystore.NewStore())
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	err := s.primary.Put(ctx, key, value)
	if err == nil {
		return nil
	}
	if shouldSkipFallback(err) {
		return err
	}

	fallbackErr := s.fallback.Put(ctx, key, value)
	if fallbackErr == nil {
		return nil
	}

	return fmt.Errorf("primary backend put failed: %w; fallback backend put failed: %w", err, fallbackErr)
}

// Get reads primary first. A key missing from primary is looked up in
// fallback too, since earlier writes may only have reached fallback.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if shouldSkipFallback(err) {
		return "", err
	}

	fallbackValue, fallbackErr := s.fallback.Get(ctx, key)
	if fallbackErr == nil {
		return fallbackValue, nil
	}
	if errors.Is(err, ports.ErrKeyNotFound) && errors.Is(fallbackErr, ports.ErrKeyNotFound) {
		return "", fmt.Errorf("stored value %q: %w", key, ports.ErrKeyNotFound)
	}

	return "", fmt.Errorf("primary backend get failed: %w; fallback backend get failed: %w", err, fallbackErr)
}

// Delete removes key from both backends.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.primary.Delete(ctx, key)
	if err != nil && shouldSkipFallback(err) {
		return err
	}

	fallbackErr := s.fallback.Delete(ctx, key)
	if err == nil || fallbackErr == nil {
		return nil
	}

	return fmt.Errorf("primary backend delete failed: %w; fallback backend delete failed: %w", err, fallbackErr)
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
