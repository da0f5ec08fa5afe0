package app

import "sync"

// watchers fans values out to subscribers without ever blocking the sender.
type watchers[T any] struct {
	mu     sync.Mutex
	subs   map[chan T]struct{}
	closed bool
}

func newWatchers[T any]() *watchers[T] {
	return &watchers[T]{subs: make(map[chan T]struct{})}
}

// subscribe registers a buffered channel primed with initial. The caller must
// invoke the returned cancel function to avoid leaks. After closeAll the
// channel only yields initial and is already closed.
func (w *watchers[T]) subscribe(initial T) (<-chan T, func()) {
	ch := make(chan T, 8)
	ch <- initial

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	w.subs[ch] = struct{}{}
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		if _, ok := w.subs[ch]; ok {
			delete(w.subs, ch)
			close(ch)
		}
		w.mu.Unlock()
	}
	return ch, cancel
}

// publish delivers v to every subscriber; a full buffer loses its oldest value.
func (w *watchers[T]) publish(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

func (w *watchers[T]) closeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for ch := range w.subs {
		delete(w.subs, ch)
		close(ch)
	}
}
