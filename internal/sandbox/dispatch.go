package sandbox

import (
	"go.uber.org/zap"
)

// Subscribe registers a host listener for messages posted by the applet.
// The returned function removes the listener.
func (f *Frame) Subscribe(listener Listener) (unsubscribe func()) {
	f.subsMu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = listener
	f.subsMu.Unlock()

	return func() {
		f.subsMu.Lock()
		delete(f.subs, id)
		f.subsMu.Unlock()
	}
}

// enqueue appends a message without blocking the posting script
func (f *Frame) enqueue(msg Message) {
	f.queueMu.Lock()
	f.queue = append(f.queue, msg)
	f.queueMu.Unlock()

	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// dispatch delivers queued messages in posting order
func (f *Frame) dispatch() {
	defer f.wg.Done()

	for {
		select {
		case <-f.done:
			return
		case <-f.signal:
		}

		for {
			f.queueMu.Lock()
			if len(f.queue) == 0 {
				f.queueMu.Unlock()
				break
			}
			msg := f.queue[0]
			f.queue = f.queue[1:]
			f.queueMu.Unlock()

			f.deliver(msg)

			select {
			case <-f.done:
				return
			default:
			}
		}
	}
}

// deliver hands one message to every current listener
func (f *Frame) deliver(msg Message) {
	f.subsMu.RLock()
	listeners := make([]Listener, 0, len(f.subs))
	for _, l := range f.subs {
		listeners = append(listeners, l)
	}
	f.subsMu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					f.logger.Error("Message listener panicked", zap.Any("panic", r))
				}
			}()
			listener(msg)
		}()
	}
}
