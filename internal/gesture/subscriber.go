package gesture

import "sync"

const subscriberBuffer = 64

// subscriber is one Subscribe channel. Progress, tick and feedback events
// are dropped when the buffer is full; completions and lock transitions
// evict them instead.
type subscriber struct {
	mu sync.Mutex
	ch chan Event
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan Event, subscriberBuffer)}
}

func (ev Event) droppable() bool {
	switch ev.Type {
	case EventComplete, EventLock, EventUnlock:
		return false
	}
	return true
}

// send must be called with the Lock's hookMu read-locked so the channel
// cannot be closed underneath it.
func (s *subscriber) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.ch <- ev:
		return
	default:
	}
	if ev.droppable() {
		return
	}

	var kept []Event
	for drained := false; !drained; {
		select {
		case old := <-s.ch:
			if !old.droppable() {
				kept = append(kept, old)
			}
		default:
			drained = true
		}
	}
	kept = append(kept, ev)
	// Only a buffer full of undelivered transitions loses its oldest.
	if over := len(kept) - cap(s.ch); over > 0 {
		kept = kept[over:]
	}
	for _, e := range kept {
		s.ch <- e
	}
}
