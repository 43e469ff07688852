package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"newswire/internal/news"
)

// Event types published by the server.
const (
	TypeCycleDone = "ingest.cycle_done" // Data: CycleResult
	TypeNewItems  = "ingest.new_items"  // Data: []news.Item, ascending publish order
)

// CycleResult summarizes one ingestion cycle for observers.
type CycleResult struct {
	New       int
	Skipped   bool
	Watermark time.Time
	Err       string
}

// Event is a lightweight in-memory signal used to decouple the ingestion
// loop from the broadcast hub.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

// NewItems extracts the batch from a TypeNewItems event (nil otherwise).
func (e Event) NewItems() []news.Item {
	if e.Type != TypeNewItems {
		return nil
	}
	items, _ := e.Data.([]news.Item)
	return items
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while sending.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery; if a subscriber unsubscribes concurrently
		// and the channel closes, recover from the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
