package series

import "sync"

// defaultSubscriptionBuffer is used when Subscribe is given a non-positive buffer.
const defaultSubscriptionBuffer = 64

// Subscription receives an Update for every live append.
//
// Delivery never blocks the writer: when the buffer is full the update is
// dropped for this subscriber and counted in Stats().Dropped.
type Subscription struct {
	store *Store
	ch    chan Update
	once  sync.Once
}

// Subscribe registers a new subscriber with the given buffer size.
func (s *Store) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	sub := &Subscription{
		store: s,
		ch:    make(chan Update, buffer),
	}

	s.subsMu.Lock()
	s.subs[sub] = struct{}{}
	s.subsMu.Unlock()

	return sub
}

// C returns the channel updates are delivered on. It is closed by Close.
func (sub *Subscription) C() <-chan Update {
	return sub.ch
}

// Close unregisters the subscription and closes its channel.
// Safe to call multiple times.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.store.subsMu.Lock()
		delete(sub.store.subs, sub)
		close(sub.ch)
		sub.store.subsMu.Unlock()
	})
}

// publish fans an update out to every subscriber without blocking.
// The read lock is held across the sends so Close cannot close a
// channel mid-send.
func (s *Store) publish(u Update) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for sub := range s.subs {
		select {
		case sub.ch <- u:
		default:
			s.dropped.Add(1)
		}
	}
}
