//go:build js && wasm

package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"syscall/js"
	"time"

	"github.com/bnema/walletctl/internal/domain"
	"github.com/bnema/walletctl/internal/ports"
)

const DefaultGlobal = "puzzleWallet"

// Host looks up the extension object on every call; extensions inject it
// late and may remove it when disabled.
type Host struct {
	global string

	mu            sync.Mutex
	disconnectFns []func()
	release       js.Func
	subscribed    bool
}

var (
	_ ports.HostBinding        = (*Host)(nil)
	_ ports.DisconnectNotifier = (*Host)(nil)
)

func NewHost(global string) *Host {
	if global == "" {
		global = DefaultGlobal
	}
	return &Host{global: global}
}

func (h *Host) wallet() (js.Value, bool) {
	v := js.Global().Get(h.global)
	if v.IsUndefined() || v.IsNull() {
		return js.Value{}, false
	}
	return v, true
}

func (h *Host) Probe() bool {
	_, ok := h.wallet()
	return ok
}

func (h *Host) Adapters() []string {
	w, ok := h.wallet()
	if !ok {
		return nil
	}
	list := w.Get("adapters")
	if list.Type() != js.TypeObject {
		return nil
	}

	names := make([]string, 0, list.Length())
	for i := 0; i < list.Length(); i++ {
		names = append(names, list.Index(i).Get("name").String())
	}
	return names
}

func (h *Host) Select(ctx context.Context, adapterName string) error {
	_, err := h.call(ctx, "select", adapterName)
	return err
}

func (h *Host) Selected() string {
	w, ok := h.wallet()
	if !ok {
		return ""
	}
	selected := w.Get("selected")
	if selected.Type() != js.TypeString {
		return ""
	}
	return selected.String()
}

func (h *Host) Connect(ctx context.Context, opts ports.ConnectOptions) (ports.ConnectResult, error) {
	arg, err := toJS(opts)
	if err != nil {
		return ports.ConnectResult{}, err
	}
	v, err := h.call(ctx, "connect", arg)
	if err != nil {
		return ports.ConnectResult{}, err
	}
	h.subscribeDisconnect()

	result := ports.ConnectResult{AdapterName: h.Selected()}
	if address := v.Get("address"); address.Type() == js.TypeString {
		result.Address = address.String()
	}
	return result, nil
}

func (h *Host) Disconnect(ctx context.Context) error {
	_, err := h.call(ctx, "disconnect")
	return err
}

func (h *Host) SignMessage(ctx context.Context, message string) (ports.SignResult, error) {
	v, err := h.call(ctx, "signMessage", message)
	if err != nil {
		return ports.SignResult{}, err
	}
	if v.Type() == js.TypeString {
		return ports.SignResult{Signature: v.String()}, nil
	}
	return ports.SignResult{Signature: v.Get("signature").String()}, nil
}

func (h *Host) RequestTransaction(ctx context.Context, req ports.TransactionRequest) (ports.TransactionResult, error) {
	arg, err := toJS(map[string]any{
		"programId":  req.ProgramID,
		"functionId": req.Function,
		"inputs":     req.Inputs,
		"fee":        req.Fee,
	})
	if err != nil {
		return ports.TransactionResult{}, err
	}
	v, err := h.call(ctx, "requestTransaction", arg)
	if err != nil {
		return ports.TransactionResult{}, err
	}
	return ports.TransactionResult{EventID: v.Get("eventId").String()}, nil
}

func (h *Host) Balances(ctx context.Context, address string) (domain.BalanceSnapshot, error) {
	v, err := h.call(ctx, "getBalance", address)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}

	var raw struct {
		Balances []struct {
			ProgramID string `json:"programId"`
			Symbol    string `json:"symbol"`
			Public    uint64 `json:"public"`
			Private   uint64 `json:"private"`
		} `json:"balances"`
	}
	if err := fromJS(v, &raw); err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("decode balances: %w", err)
	}

	snapshot := domain.BalanceSnapshot{FetchedAt: time.Now()}
	for _, b := range raw.Balances {
		snapshot.Entries = append(snapshot.Entries, domain.BalanceEntry{
			ProgramID:     b.ProgramID,
			Symbol:        b.Symbol,
			PublicAmount:  b.Public,
			PrivateAmount: b.Private,
		})
	}
	return snapshot, nil
}

func (h *Host) OnExternalDisconnect(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectFns = append(h.disconnectFns, fn)
}

// subscribeDisconnect registers once for the extension's disconnect event.
func (h *Host) subscribeDisconnect() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribed {
		return
	}
	w, ok := h.wallet()
	if !ok || w.Get("on").Type() != js.TypeFunction {
		return
	}

	h.release = js.FuncOf(func(js.Value, []js.Value) any {
		h.mu.Lock()
		fns := slices.Clone(h.disconnectFns)
		h.mu.Unlock()
		go func() {
			for _, fn := range fns {
				fn()
			}
		}()
		return nil
	})
	w.Call("on", "disconnect", h.release)
	h.subscribed = true
}

// call invokes a promise-returning method and waits for it to settle.
func (h *Host) call(ctx context.Context, method string, args ...any) (js.Value, error) {
	w, ok := h.wallet()
	if !ok {
		return js.Value{}, errors.New("wallet extension not installed")
	}
	if w.Get(method).Type() != js.TypeFunction {
		return js.Value{}, fmt.Errorf("wallet does not support %s", method)
	}
	return await(ctx, w.Call(method, args...))
}

func await(ctx context.Context, promise js.Value) (js.Value, error) {
	if promise.Type() != js.TypeObject || promise.Get("then").Type() != js.TypeFunction {
		return promise, nil
	}

	type settled struct {
		value js.Value
		err   error
	}
	done := make(chan settled, 1)

	// The callbacks release themselves once the promise settles, which may be
	// after ctx is done.
	var onResolve, onReject js.Func
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			onResolve.Release()
			onReject.Release()
		})
	}

	onResolve = js.FuncOf(func(_ js.Value, args []js.Value) any {
		v := js.Undefined()
		if len(args) > 0 {
			v = args[0]
		}
		done <- settled{value: v}
		release()
		return nil
	})
	onReject = js.FuncOf(func(_ js.Value, args []js.Value) any {
		msg := "wallet request rejected"
		if len(args) > 0 {
			if m := args[0].Get("message"); m.Type() == js.TypeString {
				msg = m.String()
			} else if args[0].Type() == js.TypeString {
				msg = args[0].String()
			}
		}
		done <- settled{err: errors.New(msg)}
		release()
		return nil
	})

	promise.Call("then", onResolve, onReject)

	select {
	case <-ctx.Done():
		return js.Value{}, ctx.Err()
	case s := <-done:
		return s.value, s.err
	}
}

func toJS(v any) (js.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return js.Value{}, fmt.Errorf("encode request: %w", err)
	}
	return js.Global().Get("JSON").Call("parse", string(data)), nil
}

func fromJS(v js.Value, target any) error {
	raw := js.Global().Get("JSON").Call("stringify", v).String()
	return json.Unmarshal([]byte(raw), target)
}
