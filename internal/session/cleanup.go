package session

import (
	"context"
	"sync"
)

// cleanupCoordinator runs teardown exactly once no matter how many exit
// paths fire. Every caller waits for that single run (or for its own ctx).
type cleanupCoordinator struct {
	once sync.Once
	done chan struct{}
}

func newCleanupCoordinator() *cleanupCoordinator {
	return &cleanupCoordinator{done: make(chan struct{})}
}

// trigger consumes the flag on first call and starts work. It reports
// whether this call was the one that started it.
func (cc *cleanupCoordinator) trigger(ctx context.Context, work func()) (bool, error) {
	first := false
	cc.once.Do(func() {
		first = true
		go func() {
			defer close(cc.done)
			work()
		}()
	})

	select {
	case <-cc.done:
		return first, nil
	default:
	}

	select {
	case <-cc.done:
		return first, nil
	case <-ctx.Done():
		return first, ctx.Err()
	}
}

func (cc *cleanupCoordinator) finished() <-chan struct{} {
	return cc.done
}
