package sandbox

import (
	"strings"

	"github.com/dop251/goja"
)

// nativeStorage is the realm's own volatile localStorage. It is configurable
// so documents may shadow it.
const nativeStorage = `(function() {
  var data = Object.create(null);
  var has = Object.prototype.hasOwnProperty;
  var storage = {
    setItem: function(key, value) { data[String(key)] = String(value); },
    getItem: function(key) { return has.call(data, key) ? data[key] : null; },
    removeItem: function(key) { delete data[key]; },
    clear: function() { data = Object.create(null); },
    key: function(index) {
      var k = Object.keys(data)[Number(index)];
      return typeof k === 'string' ? k : null;
    }
  };
  Object.defineProperty(storage, 'length', {
    get: function() { return Object.keys(data).length; }
  });
  Object.defineProperty(window, 'localStorage', {
    value: storage,
    writable: true,
    configurable: true,
    enumerable: true
  });
})();`

// setupGlobals builds the window surface of a fresh realm. Caller holds f.mu.
func (f *Frame) setupGlobals() error {
	vm := f.vm
	window := vm.GlobalObject()

	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if err := vm.Set("window", window); err != nil {
		return err
	}
	if err := vm.Set("self", window); err != nil {
		return err
	}

	parent := vm.NewObject()
	if err := parent.Set("postMessage", f.postMessage); err != nil {
		return err
	}
	if err := vm.Set("parent", parent); err != nil {
		return err
	}

	if err := vm.Set("scrollTo", f.jsScrollTo); err != nil {
		return err
	}
	if err := vm.Set("scroll", f.jsScrollTo); err != nil {
		return err
	}
	for _, axis := range []string{"scrollX", "scrollY", "pageXOffset", "pageYOffset"} {
		vertical := axis == "scrollY" || axis == "pageYOffset"
		getter := vm.ToValue(func(goja.FunctionCall) goja.Value {
			if vertical {
				return vm.ToValue(f.scrollY)
			}
			return vm.ToValue(f.scrollX)
		})
		if err := window.DefineAccessorProperty(axis, getter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}

	if err := vm.Set("addEventListener", f.addEventListener); err != nil {
		return err
	}

	// Timers are inert inside the sandbox
	timerID := int64(0)
	inert := func(goja.FunctionCall) goja.Value {
		timerID++
		return vm.ToValue(timerID)
	}
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout":    inert,
		"setInterval":   inert,
		"clearTimeout":  noop,
		"clearInterval": noop,
	} {
		if err := vm.Set(name, fn); err != nil {
			return err
		}
	}

	if err := f.setupConsole(); err != nil {
		return err
	}
	if err := f.injectDOM(); err != nil {
		return err
	}

	_, err := vm.RunScript("native-storage", nativeStorage)
	return err
}

// setupConsole installs console capture. Caller holds f.mu.
func (f *Frame) setupConsole() error {
	console := f.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, f.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	return f.vm.Set("console", console)
}

// makeConsoleFunc creates a console function
func (f *Frame) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		f.appendConsole(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// jsScrollTo implements window.scrollTo(x, y) and scrollTo({left, top})
func (f *Frame) jsScrollTo(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) == 1 {
		if opts, ok := call.Argument(0).(*goja.Object); ok {
			x, y := f.scrollX, f.scrollY
			if v := opts.Get("left"); v != nil && !goja.IsUndefined(v) {
				x = v.ToFloat()
			}
			if v := opts.Get("top"); v != nil && !goja.IsUndefined(v) {
				y = v.ToFloat()
			}
			f.scrollTo(x, y)
			return goja.Undefined()
		}
	}
	f.scrollTo(call.Argument(0).ToFloat(), call.Argument(1).ToFloat())
	return goja.Undefined()
}

// addEventListener records handlers for load-cycle events
func (f *Frame) addEventListener(call goja.FunctionCall) goja.Value {
	fn, ok := hasFunction(call, 1)
	if !ok {
		return goja.Undefined()
	}
	event := call.Argument(0).String()
	f.listeners[event] = append(f.listeners[event], fn)
	return goja.Undefined()
}

// postMessage queues a message for the host. It never blocks the script.
func (f *Frame) postMessage(call goja.FunctionCall) goja.Value {
	msg := Message{Data: exportValue(call.Argument(0))}
	if len(call.Arguments) > 1 {
		msg.Origin = call.Argument(1).String()
	}
	f.enqueue(msg)
	return goja.Undefined()
}
