//go:build js && wasm

package browser

import (
	"context"
	"fmt"
	"strings"
	"syscall/js"

	"github.com/bnema/walletctl/internal/ports"
)

// LocalStorage persists values in window.localStorage. Keys are stored as
// given so other page code can read walletConnection and the reconnect
// counters directly.
type LocalStorage struct {
	prefix string
}

var _ ports.KeyValueStore = (*LocalStorage)(nil)

func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

// NewPrefixedLocalStorage namespaces every key, for pages that host more than
// one orchestrator.
func NewPrefixedLocalStorage(prefix string) *LocalStorage {
	return &LocalStorage{prefix: prefix}
}

func (s *LocalStorage) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	storage, err := localStorage()
	if err != nil {
		return "", err
	}

	v := storage.Call("getItem", s.key(key))
	if v.IsNull() || v.IsUndefined() {
		return "", ports.ErrKeyNotFound
	}
	return v.String(), nil
}

func (s *LocalStorage) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("storage key is empty")
	}
	storage, err := localStorage()
	if err != nil {
		return err
	}
	return jsCall(func() { storage.Call("setItem", s.key(key), value) })
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	storage, err := localStorage()
	if err != nil {
		return err
	}
	return jsCall(func() { storage.Call("removeItem", s.key(key)) })
}

func (s *LocalStorage) key(key string) string {
	return s.prefix + key
}

func localStorage() (js.Value, error) {
	storage := js.Global().Get("localStorage")
	if storage.IsUndefined() || storage.IsNull() {
		return js.Value{}, fmt.Errorf("localStorage unavailable")
	}
	return storage, nil
}

// jsCall turns a thrown JS exception (quota exceeded, private mode) into an
// error.
func jsCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write localStorage: %v", r)
		}
	}()
	fn()
	return nil
}
