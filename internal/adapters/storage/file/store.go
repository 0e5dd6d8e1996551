package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bnema/walletctl/internal/ports"
)

const (
	storeDirMode = 0o700
	valueFileMod = 0o600
)

// Store keeps one file per key under root, the on-disk analogue of an
// origin's localStorage.
type Store struct {
	root string
	mu   sync.RWMutex
}

var _ ports.KeyValueStore = (*Store)(nil)

func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathForKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), storeDirMode); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), valueFileMod); err != nil {
		return fmt.Errorf("write stored value %q: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace stored value %q: %w", key, err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.pathForKey(key)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stored value %q: %w", key, ports.ErrKeyNotFound)
		}
		return "", fmt.Errorf("read stored value %q: %w", key, err)
	}

	return string(data), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathForKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete stored value %q: %w", key, err)
	}

	return nil
}

func (s *Store) pathForKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", errors.New("storage key is empty")
	}

	cleaned := filepath.Clean(trimmed)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") || cleaned == "." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}

	return filepath.Join(s.root, cleaned), nil
}
