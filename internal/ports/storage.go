package ports

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by KeyValueStore.Get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is durable, origin-scoped storage in the shape of browser
// localStorage. Delete of a missing key is not an error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
