package news

import (
	"context"
	"sort"
	"sync"

	logx "newswire/pkg/logx"
)

// Source produces candidate items on demand. Implementations live in
// internal/feed; the pipeline only needs this much.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Item, error)
}

// Upserter is the slice of the store the pipeline writes through.
type Upserter interface {
	UpsertItems(ctx context.Context, items []Item) error
}

// Pipeline runs the ingestion cycle: fetch -> sort -> classify against the
// watermark -> persist the new batch. One cycle at a time; a cycle that is
// still running when the next trigger fires is skipped, not queued.
type Pipeline struct {
	log     logx.Logger
	sources []Source
	store   Upserter
	window  *Window

	cycleMu sync.Mutex
}

func NewPipeline(sources []Source, store Upserter, window *Window, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	if window == nil {
		window = NewWindow(0)
	}
	return &Pipeline{log: log, sources: sources, store: store, window: window}
}

func (p *Pipeline) Window() *Window { return p.window }

// RunCycle executes one ingestion cycle and returns the items classified new,
// ascending by publication time. An empty result is a normal no-op cycle.
func (p *Pipeline) RunCycle(ctx context.Context) ([]Item, error) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()
	return p.cycle(ctx)
}

// TryRunCycle is RunCycle unless a cycle is already in flight, in which case
// it reports skipped=true without blocking.
func (p *Pipeline) TryRunCycle(ctx context.Context) (items []Item, skipped bool, err error) {
	if !p.cycleMu.TryLock() {
		return nil, true, nil
	}
	defer p.cycleMu.Unlock()
	items, err = p.cycle(ctx)
	return items, false, err
}

func (p *Pipeline) cycle(ctx context.Context) ([]Item, error) {
	var candidates []Item
	for _, src := range p.sources {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		items, err := src.Fetch(ctx)
		if err != nil {
			// One bad source must not starve the rest of the cycle.
			p.log.Warn("feed fetch failed", logx.String("source", src.Name()), logx.Err(err))
			continue
		}
		candidates = append(candidates, items...)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PublishedAt.Before(candidates[j].PublishedAt)
	})

	var fresh []Item
	for _, it := range candidates {
		if p.window.Admit(it) {
			fresh = append(fresh, it)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	if p.store != nil {
		if err := p.store.UpsertItems(ctx, fresh); err != nil {
			// Items are still broadcast; they will be re-upserted next time
			// they appear, the watermark does not depend on the store.
			p.log.Error("persist batch failed", logx.Int("count", len(fresh)), logx.Err(err))
		}
	}

	p.log.Info("ingestion cycle done",
		logx.Int("candidates", len(candidates)),
		logx.Int("new", len(fresh)),
		logx.Time("watermark", p.window.LatestSeen()))
	return fresh, nil
}
