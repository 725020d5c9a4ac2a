// Package monitor carries page events into Go through CDP runtime bindings.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/ajsharma/tts_inspect/internal/events"
)

// teardownTimeout bounds the CDP calls made when the last handler of a
// binding goes away.
const teardownTimeout = 5 * time.Second

// Recorder persists echoed page events.
type Recorder interface {
	Record(eventType string, data map[string]interface{}) error
}

// Binding describes a page-callable function and the script that wires a
// page listener to it.
type Binding struct {
	// Name is the global function the page calls with a string payload.
	Name string
	// Install registers the page listener. It runs now and on every new document.
	Install string
	// Teardown removes the page listener.
	Teardown string
}

type binding struct {
	spec     Binding
	handlers map[uint64]func(payload string)
	scriptID page.ScriptIdentifier
}

type delivery struct {
	handlers []func(payload string)
	payload  string
}

// Bridge fans binding calls out to Go handlers. Handlers run one at a time
// on the bridge's own goroutine, so they may issue CDP commands.
type Bridge struct {
	targetCtx   context.Context
	log         zerolog.Logger
	echoConsole bool
	recorder    Recorder

	// installMu serializes page installs and teardowns; mu guards bindings.
	installMu sync.Mutex
	mu        sync.Mutex
	bindings  map[string]*binding
	nextID    uint64

	queue chan delivery
	done  chan struct{}
}

// NewBridge starts listening on the page behind targetCtx. The bridge stops
// when targetCtx is done.
func NewBridge(targetCtx context.Context, log zerolog.Logger, echoConsole bool) *Bridge {
	b := newBridge(targetCtx, log, echoConsole)
	chromedp.ListenTarget(targetCtx, b.handleEvent)
	go b.run(targetCtx)
	return b
}

func newBridge(targetCtx context.Context, log zerolog.Logger, echoConsole bool) *Bridge {
	return &Bridge{
		targetCtx:   targetCtx,
		log:         log,
		echoConsole: echoConsole,
		bindings:    make(map[string]*binding),
		queue:       make(chan delivery, 64),
		done:        make(chan struct{}),
	}
}

// SetRecorder records echoed console messages and exceptions.
func (b *Bridge) SetRecorder(r Recorder) {
	b.recorder = r
}

// Done is closed once the delivery goroutine has exited.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Subscribe registers fn for calls of the binding, installing it in the page
// on first use. The returned function unregisters fn; the last one removes
// the binding and its page listener.
func (b *Bridge) Subscribe(ctx context.Context, spec Binding, fn func(payload string)) (func(), error) {
	b.installMu.Lock()
	defer b.installMu.Unlock()

	b.mu.Lock()
	bd, ok := b.bindings[spec.Name]
	b.mu.Unlock()

	if !ok {
		// CDP round trips happen outside mu: handleEvent takes it on the
		// event loop that delivers their responses.
		scriptID, err := b.install(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("install binding %s: %w", spec.Name, err)
		}
		bd = &binding{
			spec:     spec,
			handlers: make(map[uint64]func(payload string)),
			scriptID: scriptID,
		}
	}

	b.mu.Lock()
	b.bindings[spec.Name] = bd
	b.nextID++
	id := b.nextID
	bd.handlers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(spec.Name, id) })
	}, nil
}

func (b *Bridge) unsubscribe(name string, id uint64) {
	b.installMu.Lock()
	defer b.installMu.Unlock()

	b.mu.Lock()
	bd, ok := b.bindings[name]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(bd.handlers, id)
	last := len(bd.handlers) == 0
	if last {
		delete(b.bindings, name)
	}
	b.mu.Unlock()

	if !last {
		return
	}
	if err := b.teardown(bd); err != nil {
		// The page may already be gone
		b.log.Debug().Err(err).Str("binding", name).Msg("binding teardown failed")
	}
}

func (b *Bridge) install(ctx context.Context, spec Binding) (page.ScriptIdentifier, error) {
	runCtx, cancel := withDeadlineOf(b.targetCtx, ctx)
	defer cancel()

	var scriptID page.ScriptIdentifier
	err := chromedp.Run(runCtx,
		runtime.AddBinding(spec.Name),
		chromedp.ActionFunc(func(ctx context.Context) error {
			id, err := page.AddScriptToEvaluateOnNewDocument(spec.Install).Do(ctx)
			scriptID = id
			return err
		}),
		chromedp.Evaluate(spec.Install, nil),
	)
	return scriptID, err
}

func (b *Bridge) teardown(bd *binding) error {
	runCtx, cancel := context.WithTimeout(b.targetCtx, teardownTimeout)
	defer cancel()

	actions := []chromedp.Action{
		runtime.RemoveBinding(bd.spec.Name),
	}
	if bd.scriptID != "" {
		actions = append(actions, page.RemoveScriptToEvaluateOnNewDocument(bd.scriptID))
	}
	if bd.spec.Teardown != "" {
		actions = append(actions, chromedp.Evaluate(bd.spec.Teardown, nil))
	}
	return chromedp.Run(runCtx, actions...)
}

// handleEvent processes CDP events. It runs on the chromedp event loop and
// must not block.
func (b *Bridge) handleEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *runtime.EventBindingCalled:
		b.dispatch(ev.Name, ev.Payload)

	case *runtime.EventConsoleAPICalled:
		if !b.echoConsole {
			return
		}
		eventType := events.EventConsoleLog
		switch ev.Type {
		case runtime.APITypeWarning:
			eventType = events.EventConsoleWarn
		case runtime.APITypeError:
			eventType = events.EventConsoleError
		}

		args := make([]interface{}, 0, len(ev.Args))
		for _, arg := range ev.Args {
			args = append(args, extractRemoteObjectValue(arg))
		}
		b.log.Debug().Str("event_type", eventType).Interface("args", args).Msg("page console")
		b.record(eventType, map[string]interface{}{"args": args})

	case *runtime.EventExceptionThrown:
		if !b.echoConsole || ev.ExceptionDetails == nil {
			return
		}
		details := ev.ExceptionDetails
		b.log.Warn().
			Str("text", details.Text).
			Int64("line", details.LineNumber).
			Int64("column", details.ColumnNumber).
			Str("url", details.URL).
			Msg("page exception")
		b.record(events.EventErrorRuntime, map[string]interface{}{
			"text":   details.Text,
			"line":   details.LineNumber,
			"column": details.ColumnNumber,
			"url":    details.URL,
		})
	}
}

// dispatch queues a binding call for the handlers registered right now.
func (b *Bridge) dispatch(name, payload string) {
	b.mu.Lock()
	bd, ok := b.bindings[name]
	var handlers []func(payload string)
	if ok {
		handlers = make([]func(payload string), 0, len(bd.handlers))
		for _, h := range bd.handlers {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	if len(handlers) == 0 {
		return
	}

	select {
	case b.queue <- delivery{handlers: handlers, payload: payload}:
	default:
		b.log.Warn().Str("binding", name).Msg("dropping page event, handlers are falling behind")
	}
}

func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-b.queue:
			for _, h := range d.handlers {
				h(d.payload)
			}
		}
	}
}

func (b *Bridge) record(eventType string, data map[string]interface{}) {
	if b.recorder == nil {
		return
	}
	_ = b.recorder.Record(eventType, data)
}

// withDeadlineOf derives a context from base that also carries ctx's deadline.
func withDeadlineOf(base, ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, deadline)
	}
	return context.WithCancel(base)
}

// extractRemoteObjectValue extracts a usable value from a CDP RemoteObject.
func extractRemoteObjectValue(obj *runtime.RemoteObject) interface{} {
	if obj == nil {
		return nil
	}

	// Infinity, -Infinity, NaN, -0, bigint
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue)
	}

	if obj.Value != nil {
		var v interface{}
		if err := json.Unmarshal(obj.Value, &v); err == nil {
			return v
		}
		return string(obj.Value)
	}

	if obj.Type == runtime.TypeUndefined {
		return "undefined"
	}
	if obj.Subtype == runtime.SubtypeNull {
		return nil
	}

	if obj.Preview != nil {
		return extractObjectPreview(obj.Preview)
	}
	if obj.Description != "" {
		return obj.Description
	}
	return string(obj.Type)
}

// extractObjectPreview extracts a readable representation from an ObjectPreview.
func extractObjectPreview(preview *runtime.ObjectPreview) interface{} {
	if preview.Subtype == runtime.SubtypeArray {
		arr := make([]interface{}, 0, len(preview.Properties))
		for _, prop := range preview.Properties {
			arr = append(arr, prop.Value)
		}
		if preview.Overflow {
			arr = append(arr, "...")
		}
		return arr
	}

	obj := make(map[string]interface{}, len(preview.Properties))
	for _, prop := range preview.Properties {
		obj[prop.Name] = prop.Value
	}
	if preview.Overflow {
		obj["..."] = "(truncated)"
	}
	return obj
}
