package news

import (
	"sync"
	"time"
)

const DefaultWindowSize = 1000

// Window is the in-process dedup state: a bounded buffer of the most recent
// items plus the latest-seen publication watermark.
//
// The watermark is the authority for "new" within a process lifetime; the
// buffer is an output cache only. Cross-restart dedup is the store's job
// (upsert by GUID).
type Window struct {
	mu sync.Mutex

	items      []Item
	capacity   int
	latestSeen time.Time
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{capacity: capacity}
}

// Admit classifies the item against the watermark. If it is new, the
// watermark advances and the item is appended to the buffer (evicting the
// oldest entry when full).
//
// The watermark never decreases: items at or before it are rejected.
func (w *Window) Admit(it Item) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.latestSeen.IsZero() && !it.PublishedAt.After(w.latestSeen) {
		return false
	}
	w.latestSeen = it.PublishedAt

	w.items = append(w.items, it)
	if len(w.items) > w.capacity {
		w.items = w.items[len(w.items)-w.capacity:]
	}
	return true
}

// LatestSeen returns the current watermark (zero before the first admit).
func (w *Window) LatestSeen() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latestSeen
}

// Recent returns a copy of the buffered items, oldest first.
func (w *Window) Recent() []Item {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Item(nil), w.items...)
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}
