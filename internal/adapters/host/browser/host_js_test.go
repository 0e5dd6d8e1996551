//go:build js && wasm

package browser

import (
	"context"
	"syscall/js"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitReturnsResolvedValue(t *testing.T) {
	promise := js.Global().Get("Promise").Call("resolve", "sign1abc")

	v, err := await(context.Background(), promise)
	require.NoError(t, err)
	assert.Equal(t, "sign1abc", v.String())
}

func TestAwaitReturnsRejectionMessage(t *testing.T) {
	reason := js.Global().Get("Error").New("User rejected the request")
	promise := js.Global().Get("Promise").Call("reject", reason)

	_, err := await(context.Background(), promise)
	require.EqualError(t, err, "User rejected the request")
}

func TestAwaitKeepsCallbacksUntilLateSettle(t *testing.T) {
	var resolve js.Value
	executor := js.FuncOf(func(_ js.Value, args []js.Value) any {
		resolve = args[0]
		return nil
	})
	defer executor.Release()
	promise := js.Global().Get("Promise").New(executor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := await(ctx, promise)
	require.ErrorIs(t, err, context.Canceled)

	var lateValue string
	observer := js.FuncOf(func(_ js.Value, args []js.Value) any {
		lateValue = args[0].String()
		return nil
	})
	defer observer.Release()
	promise.Call("then", observer)

	resolve.Invoke("late")

	// A promise resolved after the late one settles after its callbacks ran.
	v, err := await(context.Background(), js.Global().Get("Promise").Call("resolve", "next"))
	require.NoError(t, err)
	assert.Equal(t, "next", v.String())
	assert.Equal(t, "late", lateValue)
}

func TestAwaitPassesThroughNonPromise(t *testing.T) {
	v, err := await(context.Background(), js.ValueOf("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", v.String())
}
