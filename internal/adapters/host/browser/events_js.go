//go:build js && wasm

package browser

import (
	"context"
	"encoding/json"
	"syscall/js"
	"time"

	"github.com/bnema/walletctl/internal/application"
	"github.com/bnema/walletctl/internal/domain"
	"go.uber.org/zap"
)

// EventHandler is the part of the bridge the dispatcher drives.
type EventHandler interface {
	HandleEvent(ctx context.Context, event application.InboundEvent) (any, error)
	Subscribe(fn func(domain.Notification)) func()
}

var inboundEvents = []domain.EventName{
	domain.EventConnectRequest,
	domain.EventDisconnectRequest,
	domain.EventSignRequest,
	domain.EventMintRequest,
}

// Dispatcher turns window CustomEvents into bridge calls and bridge
// notifications back into CustomEvents. The event detail carries JSON.
type Dispatcher struct {
	handler EventHandler
	logger  *zap.Logger
	funcs   []js.Func
	cleanup []func()
}

func NewDispatcher(handler EventHandler, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{handler: handler, logger: logger.Named("dom")}
}

func (d *Dispatcher) Attach(ctx context.Context) {
	window := js.Global()

	for _, name := range inboundEvents {
		name := name
		fn := js.FuncOf(func(_ js.Value, args []js.Value) any {
			payload := detailJSON(args)
			go d.handle(ctx, name, payload)
			return nil
		})
		window.Call("addEventListener", string(name), fn)
		d.funcs = append(d.funcs, fn)
		d.cleanup = append(d.cleanup, func() {
			window.Call("removeEventListener", string(name), fn)
		})
	}

	d.cleanup = append(d.cleanup, d.handler.Subscribe(func(n domain.Notification) {
		dispatch(n.Event, domain.EventPayload(n))
	}))
}

func (d *Dispatcher) handle(ctx context.Context, name domain.EventName, payload json.RawMessage) {
	result, err := d.handler.HandleEvent(ctx, application.InboundEvent{Name: name, Payload: payload})
	if err != nil {
		d.logger.Debug("inbound event failed", zap.String("event", string(name)), zap.Error(err))
	}

	reply, ok := application.ReplyFor(name, result, err, time.Now())
	if ok {
		dispatch(reply.Event, reply)
	}
}

func (d *Dispatcher) Detach() {
	for _, fn := range d.cleanup {
		fn()
	}
	for _, fn := range d.funcs {
		fn.Release()
	}
	d.cleanup = nil
	d.funcs = nil
}

func detailJSON(args []js.Value) json.RawMessage {
	if len(args) == 0 {
		return nil
	}
	detail := args[0].Get("detail")
	if detail.IsUndefined() || detail.IsNull() {
		return nil
	}
	if detail.Type() == js.TypeString {
		return json.RawMessage(detail.String())
	}
	return json.RawMessage(js.Global().Get("JSON").Call("stringify", detail).String())
}

// dispatch fires a CustomEvent on window. A nil detail dispatches the event
// without one.
func dispatch(name domain.EventName, detail any) {
	init := js.Global().Get("Object").New()
	if detail != nil {
		detailValue, err := toJS(detail)
		if err != nil {
			return
		}
		init.Set("detail", detailValue)
	}
	event := js.Global().Get("CustomEvent").New(string(name), init)
	js.Global().Call("dispatchEvent", event)
}
