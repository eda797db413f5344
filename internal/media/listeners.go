package media

import (
	"sort"
	"sync"
)

// Listeners is a set of handlers for one event stream. Each registration
// returns its own Unsubscribe handle.
type Listeners[T any] struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(T)
}

// Add registers fn and returns the handle that removes it.
func (l *Listeners[T]) Add(fn func(T)) Unsubscribe {
	if fn == nil {
		return func() {}
	}

	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// Emit delivers v to every registered handler in registration order.
// Handlers run on the caller's goroutine.
func (l *Listeners[T]) Emit(v T) {
	l.mu.RLock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len reports the number of registered handlers.
func (l *Listeners[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fns)
}
