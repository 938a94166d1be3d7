package sandbox

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// Frame is an isolated rendering surface holding one applet document
type Frame struct {
	config Config
	logger *zap.Logger

	// mu guards the realm and everything scripts can observe
	mu        sync.Mutex
	vm        *goja.Runtime
	dom       *DOM
	loaded    bool
	scrollX   float64
	scrollY   float64
	console   []LogEntry
	listeners map[string][]goja.Callable
	closed    bool

	subsMu  sync.RWMutex
	subs    map[uint64]Listener
	nextSub uint64

	queueMu sync.Mutex
	queue   []Message
	signal  chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a frame and starts its message dispatcher
func New(config Config, logger *zap.Logger) *Frame {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	f := &Frame{
		config: config,
		logger: logger,
		subs:   make(map[uint64]Listener),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	f.wg.Add(1)
	go f.dispatch()

	return f
}

// Navigate replaces the frame's document. The previous realm is discarded,
// inline scripts run in document order, then DOMContentLoaded and load
// handlers fire. onLoad runs last, after the frame lock is released.
func (f *Frame) Navigate(ctx context.Context, html string, onLoad func()) error {
	dom, err := ParseDOM(html)
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFrameClosed
	}

	f.vm = goja.New()
	f.dom = dom
	f.loaded = false
	f.scrollX, f.scrollY = 0, 0
	f.console = nil
	f.listeners = make(map[string][]goja.Callable)

	if f.config.MaxCallStack > 0 {
		f.vm.SetMaxCallStackSize(f.config.MaxCallStack)
	}

	if err := f.setupGlobals(); err != nil {
		f.mu.Unlock()
		return fmt.Errorf("failed to set up realm: %w", err)
	}

	dom.Scripts(func(index int, source string) {
		if _, err := f.run(ctx, fmt.Sprintf("script-%d", index), source); err != nil {
			f.logger.Debug("Applet script failed", zap.Int("script", index), zap.Error(err))
			f.appendConsole("error", err.Error())
		}
	})

	f.fire(ctx, "DOMContentLoaded")
	f.loaded = true
	f.fire(ctx, "load")
	f.mu.Unlock()

	if onLoad != nil {
		onLoad()
	}
	return nil
}

// Eval runs code in the current document's realm and returns its exported value
func (f *Frame) Eval(ctx context.Context, script string) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFrameClosed
	}
	if f.vm == nil {
		return nil, ErrNoDocument
	}

	val, err := f.run(ctx, "eval", script)
	if err != nil {
		return nil, err
	}
	return exportValue(val), nil
}

// run executes source with the configured timeout. Caller holds f.mu.
func (f *Frame) run(ctx context.Context, name, source string) (goja.Value, error) {
	return f.guarded(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunScript(name, source)
	})
}

// call runs a JavaScript callback under the script timeout. Caller holds f.mu.
func (f *Frame) call(ctx context.Context, fn goja.Callable) error {
	_, err := f.guarded(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		return fn(vm.GlobalObject())
	})
	return err
}

// guarded interrupts the realm when the timeout or ctx expires
func (f *Frame) guarded(ctx context.Context, exec func(vm *goja.Runtime) (goja.Value, error)) (goja.Value, error) {
	vm := f.vm
	timer := time.NewTimer(f.config.Timeout)
	defer timer.Stop()

	stop := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		select {
		case <-timer.C:
			vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			vm.Interrupt("context cancelled")
		case <-stop:
		}
	}()

	val, err := exec(vm)
	close(stop)
	<-exited
	vm.ClearInterrupt()
	return val, err
}

// fire invokes the registered handlers for an event plus window.onload for
// the load event. Caller holds f.mu.
func (f *Frame) fire(ctx context.Context, event string) {
	handlers := append([]goja.Callable{}, f.listeners[event]...)
	if event == "load" {
		if fn, ok := goja.AssertFunction(f.vm.GlobalObject().Get("onload")); ok {
			handlers = append(handlers, fn)
		}
	}

	for _, fn := range handlers {
		if err := f.call(ctx, fn); err != nil {
			f.logger.Debug("Applet event handler failed", zap.String("event", event), zap.Error(err))
			f.appendConsole("error", err.Error())
		}
	}
}

// ScrollOffset returns the current scroll position. ok is false before the
// first document has loaded.
func (f *Frame) ScrollOffset() (x, y float64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.vm == nil || !f.loaded {
		return 0, 0, false
	}
	return f.scrollX, f.scrollY, true
}

// ScrollTo moves the viewport of the current document
func (f *Frame) ScrollTo(x, y float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrollTo(x, y)
}

func (f *Frame) scrollTo(x, y float64) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return
	}
	f.scrollX = clampScroll(x)
	f.scrollY = clampScroll(y)
}

func clampScroll(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Document returns the serialized current document
func (f *Frame) Document() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dom == nil {
		return "", ErrNoDocument
	}
	return f.dom.HTML()
}

// Text returns a plain-text preview of the current document body
func (f *Frame) Text() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dom == nil {
		return "", ErrNoDocument
	}
	body, err := f.dom.BodyHTML()
	if err != nil {
		return "", err
	}
	text := bluemonday.StrictPolicy().Sanitize(body)
	return strings.Join(strings.Fields(text), " "), nil
}

// Changes returns DOM modifications made by applet code in the current document
func (f *Frame) Changes() []DOMChange {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dom == nil {
		return nil
	}
	return f.dom.GetChanges()
}

// Console returns the console output captured for the current document
func (f *Frame) Console() []LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LogEntry{}, f.console...)
}

// appendConsole records console output. Caller holds f.mu.
func (f *Frame) appendConsole(level, msg string) {
	if !f.config.EnableConsole {
		return
	}
	if f.config.ConsoleLimit > 0 && len(f.console) >= f.config.ConsoleLimit {
		f.console = f.console[1:]
	}
	f.console = append(f.console, LogEntry{
		Level:   level,
		Message: msg,
		Time:    time.Now(),
	})
}

// Close tears down the realm and stops message delivery
func (f *Frame) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.vm = nil
	f.dom = nil
	f.listeners = nil
	f.mu.Unlock()

	close(f.done)
	f.wg.Wait()
	return nil
}

// exportValue converts a goja value to a Go value
func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// hasFunction reports whether the argument at i is callable
func hasFunction(call goja.FunctionCall, i int) (goja.Callable, bool) {
	if len(call.Arguments) <= i {
		return nil, false
	}
	return goja.AssertFunction(call.Arguments[i])
}
