package runtime

import "sync"

// Broadcast is the process-wide, level-triggered shutdown signal. Any
// collaborator holding the handle may trigger it; every consumer task
// observes it. Triggering is idempotent.
type Broadcast struct {
	once sync.Once
	done chan struct{}
}

// NewBroadcast returns an untriggered broadcast.
func NewBroadcast() *Broadcast {
	return &Broadcast{done: make(chan struct{})}
}

// Trigger requests shutdown. Safe to call from any goroutine, any number of
// times.
func (b *Broadcast) Trigger() {
	b.once.Do(func() { close(b.done) })
}

// Done returns a channel that is closed once shutdown has been requested.
// Listeners that subscribe after the trigger still observe it.
func (b *Broadcast) Done() <-chan struct{} {
	return b.done
}

// Triggered reports whether shutdown has been requested.
func (b *Broadcast) Triggered() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
