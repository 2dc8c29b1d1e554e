package series

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/weatherstation-core/internal/metric"
)

func sampleAt(sec int64, value float64) Sample {
	return Sample{Time: time.Unix(sec, 0), Value: value}
}

func TestAppendUnderCapacity(t *testing.T) {
	store := NewStore(10)
	for i := range 5 {
		store.Append(metric.Temperature, sampleAt(int64(100+i), float64(i)))
	}

	got := store.Snapshot(metric.Temperature)
	if len(got) != 5 {
		t.Fatalf("len(Snapshot()) = %d, want 5", len(got))
	}
	for i, s := range got {
		if s.Time.Unix() != int64(100+i) || s.Value != float64(i) {
			t.Errorf("Snapshot()[%d] = %+v, want (%d, %d)", i, s, 100+i, i)
		}
	}

	if other := store.Snapshot(metric.Humidity); len(other) != 0 {
		t.Errorf("humidity series has %d samples, want 0", len(other))
	}
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		appends  int
	}{
		{name: "one over", capacity: 4, appends: 5},
		{name: "exactly double", capacity: 3, appends: 6},
		{name: "many wraps", capacity: 5, appends: 23},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(tt.capacity)
			for i := range tt.appends {
				store.Append(metric.Barometer, sampleAt(int64(i), float64(i)))
			}

			got := store.Snapshot(metric.Barometer)
			if len(got) != tt.capacity {
				t.Fatalf("len(Snapshot()) = %d, want %d", len(got), tt.capacity)
			}

			k := tt.appends - tt.capacity
			for i, s := range got {
				if want := float64(k + i); s.Value != want {
					t.Errorf("Snapshot()[%d].Value = %v, want %v", i, s.Value, want)
				}
			}

			if stats := store.Stats(); stats.Evicted != uint64(k) {
				t.Errorf("Stats().Evicted = %d, want %d", stats.Evicted, k)
			}
		})
	}
}

func TestSeedIsAdditive(t *testing.T) {
	store := NewStore(10)
	store.Seed(metric.Humidity, []Sample{sampleAt(100, 5.0), sampleAt(200, 6.0)})

	got := store.Snapshot(metric.Humidity)
	if len(got) != 2 || got[0].Value != 5.0 || got[1].Value != 6.0 {
		t.Fatalf("Snapshot() after seed = %+v", got)
	}

	store.Seed(metric.Humidity, []Sample{sampleAt(300, 7.0)})
	store.Append(metric.Humidity, sampleAt(400, 8.0))

	got = store.Snapshot(metric.Humidity)
	want := []float64{5.0, 6.0, 7.0, 8.0}
	if len(got) != len(want) {
		t.Fatalf("len(Snapshot()) = %d, want %d", len(got), len(want))
	}
	for i, v := range want {
		if got[i].Value != v {
			t.Errorf("Snapshot()[%d].Value = %v, want %v", i, got[i].Value, v)
		}
	}
}

func TestSeedDoesNotNotify(t *testing.T) {
	store := NewStore(10)
	sub := store.Subscribe(4)
	defer sub.Close()

	store.Seed(metric.Ambient, []Sample{sampleAt(1, 1)})

	select {
	case u := <-sub.C():
		t.Fatalf("unexpected update from Seed: %+v", u)
	default:
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewStore(3)
	store.Append(metric.Temperature, sampleAt(1, 1))

	snap := store.Snapshot(metric.Temperature)
	snap[0].Value = 99

	if got, _ := store.Latest(metric.Temperature); got.Value != 1 {
		t.Errorf("Latest().Value = %v after mutating snapshot, want 1", got.Value)
	}
}

func TestLatestAndLen(t *testing.T) {
	store := NewStore(2)
	if _, ok := store.Latest(metric.Ambient); ok {
		t.Error("Latest() ok = true on empty series")
	}

	store.Append(metric.Ambient, sampleAt(1, 10))
	store.Append(metric.Ambient, sampleAt(2, 20))
	store.Append(metric.Ambient, sampleAt(3, 30))

	latest, ok := store.Latest(metric.Ambient)
	if !ok || latest.Value != 30 {
		t.Errorf("Latest() = %+v, %v, want value 30", latest, ok)
	}
	if n := store.Len(metric.Ambient); n != 2 {
		t.Errorf("Len() = %d, want 2", n)
	}
}

func TestInvalidMetricIgnored(t *testing.T) {
	store := NewStore(2)
	bad := metric.Metric(-1)

	store.Append(bad, sampleAt(1, 1))
	store.Seed(bad, []Sample{sampleAt(1, 1)})

	if snap := store.Snapshot(bad); snap != nil {
		t.Errorf("Snapshot(invalid) = %v, want nil", snap)
	}
	if stats := store.Stats(); stats.Appended != 0 || stats.Seeded != 0 {
		t.Errorf("Stats() = %+v, want zero counters", stats)
	}
}

func TestDefaultCapacity(t *testing.T) {
	if got := NewStore(0).Capacity(); got != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", got, DefaultCapacity)
	}
}

func TestSubscribeReceivesAppends(t *testing.T) {
	store := NewStore(10)
	sub := store.Subscribe(2)

	store.Append(metric.Temperature, sampleAt(1, 21.5))
	store.Append(metric.Humidity, sampleAt(1, 40))
	store.Append(metric.Ambient, sampleAt(1, 300)) // buffer full, dropped

	first := <-sub.C()
	if first.Metric != metric.Temperature || first.Sample.Value != 21.5 {
		t.Errorf("first update = %+v", first)
	}
	second := <-sub.C()
	if second.Metric != metric.Humidity {
		t.Errorf("second update metric = %v, want humidity", second.Metric)
	}

	if dropped := store.Stats().Dropped; dropped != 1 {
		t.Errorf("Stats().Dropped = %d, want 1", dropped)
	}

	sub.Close()
	sub.Close()
	if _, ok := <-sub.C(); ok {
		t.Error("channel still open after Close()")
	}

	// Appending after Close must not panic.
	store.Append(metric.Temperature, sampleAt(2, 22))
}

// TestConcurrentSnapshotNeverTorn checks that readers only ever observe
// complete samples while a writer is appending.
func TestConcurrentSnapshotNeverTorn(t *testing.T) {
	store := NewStore(64)
	const writes = 5000

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 1; i <= writes; i++ {
			store.Append(metric.Temperature, sampleAt(int64(i), float64(i)))
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := store.Snapshot(metric.Temperature)
				for i, s := range snap {
					if s.Value != float64(s.Time.Unix()) {
						t.Errorf("torn sample: time=%d value=%v", s.Time.Unix(), s.Value)
						return
					}
					if i > 0 && s.Time.Before(snap[i-1].Time) {
						t.Errorf("snapshot out of order at %d", i)
						return
					}
				}
			}
		}()
	}

	wg.Wait()

	if n := store.Len(metric.Temperature); n != 64 {
		t.Errorf("Len() = %d, want 64", n)
	}
}
