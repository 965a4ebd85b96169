package process

import "sync"

// Broadcaster fans lines out to every subscriber. Subscribers must keep
// draining their channel until it is closed.
type Broadcaster struct {
	mu     sync.Mutex
	subs   []chan Line
	closed bool
}

// NewBroadcaster creates an open broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe returns a channel receiving every line published from now on.
// The channel is closed by Close.
func (b *Broadcaster) Subscribe() <-chan Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Line, 256)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers line to all subscribers. Lines published after Close
// are dropped.
func (b *Broadcaster) Publish(line Line) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		ch <- line
	}
}

// Close closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
