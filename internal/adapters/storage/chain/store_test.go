package chain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bnema/walletctl/internal/ports"
	portmocks "github.com/bnema/walletctl/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const recordKey = "walletConnection"

func TestStoreGetUsesPrimaryWhenItSucceeds(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockKeyValueStore(t)
	fallback := portmocks.NewMockKeyValueStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Get(mock.Anything, recordKey).Return("from-file", nil).Once()

	value, err := store.Get(context.Background(), recordKey)
	require.NoError(t, err)
	assert.Equal(t, "from-file", value)
}

func TestStoreGetFallsBackWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockKeyValueStore(t)
	fallback := portmocks.NewMockKeyValueStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Get(mock.Anything, recordKey).Return("", errors.New("disk unavailable")).Once()
	fallback.EXPECT().Get(mock.Anything, recordKey).Return("from-memory", nil).Once()

	value, err := store.Get(context.Background(), recordKey)
	require.NoError(t, err)
	assert.Equal(t, "from-memory", value)
}

func TestStoreGetReturnsKeyNotFoundWhenBothBackendsMiss(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockKeyValueStore(t)
	fallback := portmocks.NewMockKeyValueStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Get(mock.Anything, recordKey).Return("", ports.ErrKeyNotFound).Once()
	fallback.EXPECT().Get(mock.Anything, recordKey).Return("", ports.ErrKeyNotFound).Once()

	_, err := store.Get(context.Background(), recordKey)
	require.ErrorIs(t, err, ports.ErrKeyNotFound)
	assert.NotContains(t, err.Error(), "primary backend")
}

func TestStoreGetReturnsCombinedErrorWhenBothBackendsFail(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockKeyValueStore(t)
	fallback := portmocks.NewMockKeyValueStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Get(mock.Anything, recordKey).Return("", errors.New("file failed")).Once()
	fallback.EXPECT().Get(mock.Anything, recordKey).Return("", errors.New("memory failed")).Once()

	_, err := store.Get(context.Background(), recordKey)
	require.Error(t, err)
	assert.ErrorContains(t, err, "primary backend")
	assert.ErrorContains(t, err, "fallback backend")
	assert.ErrorContains(t, err, "file failed")
	assert.ErrorContains(t, err, "memory failed")
}

func TestStorePutFallsBackWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockKeyValueStore(t)
	fallback := portmocks.NewMockKeyValueStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Put(mock.Anything, recordKey, "record").Return(errors.New("read-only filesystem")).Once()
	fallback.EXPECT().Put(mock.Anything, recordKey, "record").Return(nil).Once()

	err := store.Put(context.Background(), recordKey, "record")
	require.NoError(t, err)
}

func TestStorePutDoesNotCallFallbackWhenPrimarySucceeds(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockKeyValueStore(t)
	fallback := portmocks.NewMockKeyValueStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Put(mock.Anything, recordKey, "record").Return(nil).Once()

	err := store.Put(context.Background(), recordKey, "record")
	require.NoError(t, err)
}

func TestStoreDeleteClearsBothBackends(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockKeyValueStore(t)
	fallback := portmocks.NewMockKeyValueStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Delete(mock.Anything, recordKey).Return(nil).Once()
	fallback.EXPECT().Delete(mock.Anything, recordKey).Return(nil).Once()

	err := store.Delete(context.Background(), recordKey)
	require.NoError(t, err)
}

func TestStoreDeleteSucceedsWhenOneBackendFails(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockKeyValueStore(t)
	fallback := portmocks.NewMockKeyValueStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Delete(mock.Anything, recordKey).Return(errors.New("permission denied")).Once()
	fallback.EXPECT().Delete(mock.Anything, recordKey).Return(nil).Once()

	err := store.Delete(context.Background(), recordKey)
	require.NoError(t, err)
}

func TestStoreGetDoesNotFallbackOnCanceledContextError(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockKeyValueStore(t)
	fallback := portmocks.NewMockKeyValueStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Get(mock.Anything, recordKey).Return("", context.Canceled).Once()

	_, err := store.Get(context.Background(), recordKey)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewStoreCheckedRejectsNilBackends(t *testing.T) {
	t.Parallel()

	_, err := NewStoreChecked(nil, portmocks.NewMockKeyValueStore(t))
	require.ErrorIs(t, err, errNilPrimaryStore)

	_, err = NewStoreChecked(portmocks.NewMockKeyValueStore(t), nil)
	require.ErrorIs(t, err, errNilFallbackStore)
}

func TestFileFirstStoreFallsBackToMemoryWhenRootIsAFile(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o600))

	store, err := NewFileFirstWithMemoryFallback(root)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), recordKey, "record"))
	value, err := store.Get(context.Background(), recordKey)
	require.NoError(t, err)
	assert.Equal(t, "record", value)
}
