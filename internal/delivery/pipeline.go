// Package delivery relays news items to the external messaging API with a
// global rate gate, a bounded worker pool and a per-item retry budget.
// Delivery is at-least-once effort: an item that exhausts its retries is
// logged and dropped, never re-queued.
package delivery

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"newswire/internal/news"
	logx "newswire/pkg/logx"
)

var (
	ErrQueueFull = errors.New("delivery queue full")
	ErrStopped   = errors.New("delivery pipeline stopped")
)

const probeTimeout = 10 * time.Second

type Config struct {
	// Workers bounds concurrent in-flight sends. Default 5.
	Workers int
	// QueueSize bounds queued items before Enqueue drops. Default 256.
	QueueSize int
	// RateLimit is the minimum spacing between any two sends, shared across
	// all workers. Default 1.2s.
	RateLimit time.Duration
	// RetryMax is the attempt budget per item. Default 3.
	RetryMax int
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 1200 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
}

// Pipeline is the rate-limited, retrying sender.
//
// Each attempt runs the whole image-then-text fallback:
//  1. if the item has a media URL and it probes reachable, try an
//     image-with-caption send (caption clipped to the caption limit);
//  2. otherwise, or when the image send fails, try a plain-text send
//     (clipped to the text limit).
type Pipeline struct {
	log    logx.Logger
	sender Sender
	cfg    Config

	// limiter serializes the "last sent" spacing across all workers:
	// burst 1, refill every RateLimit.
	limiter *rate.Limiter
	probe   *http.Client

	mu        sync.Mutex
	queue     chan news.Item
	accepting bool
	wg        sync.WaitGroup

	// sendCtx outlives the Start context so Stop can drain the queue after
	// the caller's context is already cancelled. Stop cancels it when the
	// drain window closes.
	sendCtx context.Context
	cancel  context.CancelFunc

	// backoff is stubbed in tests.
	backoff func(ctx context.Context, attempt int) bool
}

func NewPipeline(cfg Config, sender Sender, log logx.Logger) *Pipeline {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Pipeline{
		log:     log,
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.RateLimit), 1),
		probe:   &http.Client{Timeout: probeTimeout},
	}
	p.backoff = p.sleepBackoff
	return p
}

// Start launches the worker pool. Idempotent. The pool runs until Stop;
// ctx only contributes request-scoped values, cancelling it does not stop
// the workers (that would make the shutdown drain a no-op).
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue != nil {
		return
	}
	p.sendCtx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	p.queue = make(chan news.Item, p.cfg.QueueSize)
	p.accepting = true

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.workerLoop()
		}()
	}
}

// Stop blocks intake and drains queued items until ctx expires. When the
// drain window closes, in-flight sends are aborted and the remainder of the
// queue is dropped with a logged failure per item.
func (p *Pipeline) Stop(ctx context.Context) {
	p.mu.Lock()
	q := p.queue
	if q == nil || !p.accepting {
		p.mu.Unlock()
		return
	}
	p.accepting = false
	p.mu.Unlock()

	close(q)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.cancel()
		<-done
	}
	p.cancel()
}

// Enqueue hands one item to the pool without blocking the caller.
func (p *Pipeline) Enqueue(it news.Item) error {
	p.mu.Lock()
	q := p.queue
	ok := p.accepting
	p.mu.Unlock()

	if q == nil || !ok {
		return ErrStopped
	}
	select {
	case q <- it:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pipeline) workerLoop() {
	for it := range p.queue {
		p.deliver(p.sendCtx, it)
	}
}

// deliver shields the worker from a panicking send path: one poisoned item
// must not take the whole pool down.
func (p *Pipeline) deliver(ctx context.Context, it news.Item) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("delivery panic recovered",
				logx.String("guid", it.GUID), logx.Any("panic", r))
		}
	}()
	p.Send(ctx, it)
}

// SetRateLimit retunes the shared send spacing at runtime.
func (p *Pipeline) SetRateLimit(d time.Duration) {
	if d <= 0 {
		return
	}
	p.limiter.SetLimit(rate.Every(d))
}

// Send delivers one item synchronously, honoring the shared rate gate and
// the retry budget. Exhausting the budget drops the item with a logged
// failure; the error is not propagated.
func (p *Pipeline) Send(ctx context.Context, it news.Item) {
	msg := FormatMessage(it)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.RetryMax; attempt++ {
		// Global spacing between sends, independent of retry backoff.
		if err := p.limiter.Wait(ctx); err != nil {
			p.log.Warn("item dropped: send aborted",
				logx.String("guid", it.GUID), logx.Err(err))
			return
		}

		lastErr = p.attempt(ctx, it, msg)
		if lastErr == nil {
			p.log.Debug("item delivered", logx.String("guid", it.GUID), logx.Int("attempt", attempt))
			return
		}
		p.log.Warn("delivery attempt failed",
			logx.String("guid", it.GUID), logx.Int("attempt", attempt), logx.Err(lastErr))

		if attempt < p.cfg.RetryMax && !p.backoff(ctx, attempt) {
			return
		}
	}

	p.log.Error("item dropped: retry budget exhausted",
		logx.String("guid", it.GUID), logx.Int("attempts", p.cfg.RetryMax), logx.Err(lastErr))
}

// attempt runs one full image-then-text fallback pass.
func (p *Pipeline) attempt(ctx context.Context, it news.Item, msg string) error {
	if it.MediaURL != "" && p.mediaReachable(ctx, it.MediaURL) {
		err := p.sender.SendPhoto(ctx, it.MediaURL, truncateRunes(msg, captionLimit))
		if err == nil {
			return nil
		}
		p.log.Debug("image send failed; falling back to text",
			logx.String("guid", it.GUID), logx.Err(err))
	}
	return p.sender.SendText(ctx, truncateRunes(msg, textLimit))
}

// mediaReachable probes the media URL before asking the messaging API to
// fetch it. HEAD first; some CDNs reject HEAD, so fall back to GET.
func (p *Pipeline) mediaReachable(ctx context.Context, url string) bool {
	ok, tried := p.probeOnce(ctx, http.MethodHead, url)
	if ok || !tried {
		return ok
	}
	ok, _ = p.probeOnce(ctx, http.MethodGet, url)
	return ok
}

// probeOnce returns (reachable, methodAccepted). tried=false means the
// method itself was rejected and a different method may still succeed.
func (p *Pipeline) probeOnce(ctx context.Context, method, url string) (ok, tried bool) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return false, true
	}
	resp, err := p.probe.Do(req)
	if err != nil {
		return false, true
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusMethodNotAllowed {
		return false, false
	}
	return resp.StatusCode == http.StatusOK, true
}

// sleepBackoff waits 2^attempt seconds or until ctx is done.
func (p *Pipeline) sleepBackoff(ctx context.Context, attempt int) bool {
	d := time.Duration(1<<attempt) * time.Second
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
