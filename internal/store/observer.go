package store

import "sync"

type listener[T any] struct {
	id int
	fn func(T)
}

// listeners is a subscription list notified in subscription order.
type listeners[T any] struct {
	mu     sync.Mutex
	nextID int
	fns    []listener[T]
}

// add registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.fns = append(l.fns, listener[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, ln := range l.fns {
				if ln.id == id {
					l.fns = append(l.fns[:i:i], l.fns[i+1:]...)
					return
				}
			}
		})
	}
}

// notify calls every listener with v. Listeners run without l.mu held, so
// they may subscribe or unsubscribe.
func (l *listeners[T]) notify(v T) {
	l.mu.Lock()
	fns := make([]listener[T], len(l.fns))
	copy(fns, l.fns)
	l.mu.Unlock()

	for _, ln := range fns {
		ln.fn(v)
	}
}

func (l *listeners[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}
