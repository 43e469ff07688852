package hub

import (
	"context"
	"math"
	"sync"

	"newswire/internal/news"
	logx "newswire/pkg/logx"
)

const DefaultPageSize = 100

// Historian is the slice of the store the hub reads history from.
type Historian interface {
	Count(ctx context.Context) (int, error)
	HistoryPage(ctx context.Context, offset, limit int) ([]news.Item, error)
}

// Hub owns the set of live subscriber sessions and fans new-item batches out
// to all of them. Fan-out is best-effort: a send failure evicts that session
// and never affects delivery to the others.
type Hub struct {
	log      logx.Logger
	store    Historian
	pageSize int

	// runNow triggers an out-of-band ingestion cycle ("reload" command).
	// May be nil when the hub is serving history only (tests).
	runNow func()

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

func New(store Historian, pageSize int, runNow func(), log logx.Logger) *Hub {
	if log.IsZero() {
		log = logx.Nop()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Hub{
		log:      log,
		store:    store,
		pageSize: pageSize,
		runNow:   runNow,
		sessions: map[*session]struct{}{},
	}
}

func (h *Hub) register(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	return true
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	n := len(h.sessions)
	h.mu.Unlock()
	h.log.Debug("subscriber removed", logx.String("remote", s.remote), logx.Int("active", n))
}

// Subscribers returns the number of live sessions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Broadcast sends the batch to every currently registered session
// concurrently and waits for all sends to settle. Items are expected in
// ascending publication order (the pipeline guarantees this per cycle).
func (h *Hub) Broadcast(items []news.Item) {
	if len(items) == 0 {
		return
	}

	h.mu.Lock()
	targets := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	msg := newUpdateMessage(items)
	var wg sync.WaitGroup
	for _, s := range targets {
		wg.Add(1)
		go func(s *session) {
			defer wg.Done()
			if err := s.send(msg); err != nil {
				h.log.Warn("broadcast send failed; evicting subscriber",
					logx.String("remote", s.remote), logx.Err(err))
				s.close()
			}
		}(s)
	}
	wg.Wait()

	h.log.Info("broadcast done", logx.Int("count", len(items)), logx.Int("subscribers", len(targets)))
}

// History builds one page of persisted items, newest first. Pages beyond the
// end come back empty with the pagination math intact.
func (h *Hub) History(ctx context.Context, page int) (HistoryMessage, error) {
	if page < 1 {
		page = 1
	}
	total, err := h.store.Count(ctx)
	if err != nil {
		return HistoryMessage{}, err
	}
	items, err := h.store.HistoryPage(ctx, (page-1)*h.pageSize, h.pageSize)
	if err != nil {
		return HistoryMessage{}, err
	}
	return HistoryMessage{
		Type:       TypeHistory,
		Articles:   items,
		Total:      total,
		Page:       page,
		PageSize:   h.pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(h.pageSize))),
	}, nil
}

// Close evicts every session and refuses new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	targets := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.sessions = map[*session]struct{}{}
	h.mu.Unlock()

	for _, s := range targets {
		s.close()
	}
}
