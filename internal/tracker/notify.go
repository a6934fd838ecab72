package tracker

import (
	"sync"
)

// broadcaster fans out change notifications to subscribers. Each subscriber
// channel holds at most one pending signal; bursts coalesce.
type broadcaster struct {
	mu        sync.RWMutex
	listeners []chan struct{}
	closed    bool
}

func (b *broadcaster) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.listeners = append(b.listeners, ch)
	return ch
}

func (b *broadcaster) unsubscribe(ch <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(listener)
			break
		}
	}
}

func (b *broadcaster) notify() {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, listener := range b.listeners {
		select {
		case listener <- struct{}{}:
		default:
			// A signal is already pending
		}
	}
}

// close ends every subscription. Later subscribers get a closed channel.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, listener := range b.listeners {
		close(listener)
	}
	b.listeners = nil
}
