package series

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/weatherstation-core/internal/metric"
)

// DefaultCapacity is the per-metric bound used when none is configured:
// one day of samples at a five second poll period.
const DefaultCapacity = 17280

// Sample is a single timestamped reading. It is passed and stored by value,
// so a reader always sees a timestamp together with its value.
type Sample struct {
	Time  time.Time `json:"timestamp"`
	Value float64   `json:"value"`
}

// Update is published to subscribers for every live append.
type Update struct {
	Metric metric.Metric `json:"metric"`
	Sample Sample        `json:"sample"`
}

// Stats holds store counters.
type Stats struct {
	Appended uint64 // Samples added via Append
	Seeded   uint64 // Samples added via Seed
	Evicted  uint64 // Samples dropped by the capacity bound
	Dropped  uint64 // Updates not delivered because a subscriber was full
}

// Store keeps one bounded, chronological series per metric.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Each metric has its own lock, so appends to one metric never block
//     snapshots of another.
type Store struct {
	capacity int
	series   [metric.Count]*ring

	subs   map[*Subscription]struct{}
	subsMu sync.RWMutex

	appended atomic.Uint64
	seeded   atomic.Uint64
	evicted  atomic.Uint64
	dropped  atomic.Uint64
}

// NewStore creates an empty store holding at most capacity samples per metric.
// A non-positive capacity selects DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
	for i := range s.series {
		s.series[i] = newRing(capacity)
	}
	return s
}

// Capacity returns the per-metric sample bound.
func (s *Store) Capacity() int {
	return s.capacity
}

// Append adds a live sample and notifies subscribers.
//
// Append never fails: samples for unknown metrics are ignored and the oldest
// sample is evicted once the bound is reached.
func (s *Store) Append(m metric.Metric, sample Sample) {
	if !m.Valid() {
		return
	}
	if s.series[m].push(sample) {
		s.evicted.Add(1)
	}
	s.appended.Add(1)
	s.publish(Update{Metric: m, Sample: sample})
}

// Seed bulk-loads historical samples in the given order. Seeding is additive:
// a second call appends after what is already there. Subscribers are not
// notified since seeded data is not live.
func (s *Store) Seed(m metric.Metric, samples []Sample) {
	if !m.Valid() || len(samples) == 0 {
		return
	}
	evicted := s.series[m].pushAll(samples)
	s.evicted.Add(uint64(evicted))
	s.seeded.Add(uint64(len(samples)))
}

// Snapshot returns a point-in-time copy of a metric's series, oldest first.
func (s *Store) Snapshot(m metric.Metric) []Sample {
	if !m.Valid() {
		return nil
	}
	return s.series[m].snapshot()
}

// Latest returns the most recent sample of a metric.
func (s *Store) Latest(m metric.Metric) (Sample, bool) {
	if !m.Valid() {
		return Sample{}, false
	}
	return s.series[m].latest()
}

// Len returns the number of samples held for a metric.
func (s *Store) Len(m metric.Metric) int {
	if !m.Valid() {
		return 0
	}
	return s.series[m].len()
}

// Stats returns a copy of the store counters.
func (s *Store) Stats() Stats {
	return Stats{
		Appended: s.appended.Load(),
		Seeded:   s.seeded.Load(),
		Evicted:  s.evicted.Load(),
		Dropped:  s.dropped.Load(),
	}
}

// ring is a fixed-size FIFO of samples.
type ring struct {
	mu    sync.RWMutex
	buf   []Sample
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Sample, capacity)}
}

// push adds one sample and reports whether the oldest was evicted.
func (r *ring) push(sample Sample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushLocked(sample)
}

func (r *ring) pushAll(samples []Sample) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for _, sample := range samples {
		if r.pushLocked(sample) {
			evicted++
		}
	}
	return evicted
}

func (r *ring) pushLocked(sample Sample) bool {
	size := len(r.buf)
	if r.n < size {
		r.buf[(r.start+r.n)%size] = sample
		r.n++
		return false
	}
	r.buf[r.start] = sample
	r.start = (r.start + 1) % size
	return true
}

func (r *ring) snapshot() []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Sample, r.n)
	size := len(r.buf)
	first := copy(out, r.buf[r.start:min(r.start+r.n, size)])
	copy(out[first:], r.buf[:r.n-first])
	return out
}

func (r *ring) latest() (Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.n == 0 {
		return Sample{}, false
	}
	return r.buf[(r.start+r.n-1)%len(r.buf)], true
}

func (r *ring) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}
