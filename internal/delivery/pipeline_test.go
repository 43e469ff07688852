package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"newswire/internal/news"
	logx "newswire/pkg/logx"
)

// fakeSender records calls and fails on request.
type fakeSender struct {
	mu         sync.Mutex
	photoCalls []string
	textCalls  []string
	sendTimes  []time.Time

	photoErr error
	textErr  error

	// failFirstN makes the first N text sends fail, then succeed.
	failFirstN int
}

func (f *fakeSender) SendPhoto(ctx context.Context, url, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photoCalls = append(f.photoCalls, caption)
	f.sendTimes = append(f.sendTimes, time.Now())
	return f.photoErr
}

func (f *fakeSender) SendText(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls = append(f.textCalls, text)
	f.sendTimes = append(f.sendTimes, time.Now())
	if f.failFirstN > 0 {
		f.failFirstN--
		return errors.New("flaky")
	}
	return f.textErr
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.textCalls...)
}

func (f *fakeSender) photos() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.photoCalls...)
}

func newTestPipeline(cfg Config, sender Sender) *Pipeline {
	p := NewPipeline(cfg, sender, logx.Nop())
	p.backoff = func(ctx context.Context, attempt int) bool { return true }
	return p
}

func TestSendTextOnly(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	p := newTestPipeline(Config{RateLimit: time.Millisecond}, sender)

	p.Send(context.Background(), news.Item{GUID: "g", Title: "hello", Link: "https://example.com"})

	if got := sender.texts(); len(got) != 1 {
		t.Fatalf("text sends = %d, want 1", len(got))
	}
	if got := sender.photos(); len(got) != 0 {
		t.Fatalf("photo sends = %d, want 0", len(got))
	}
}

func TestSendImageWithReachableMedia(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := &fakeSender{}
	p := newTestPipeline(Config{RateLimit: time.Millisecond}, sender)

	p.Send(context.Background(), news.Item{GUID: "g", Title: "t", MediaURL: srv.URL, Link: "https://example.com"})

	if got := sender.photos(); len(got) != 1 {
		t.Fatalf("photo sends = %d, want 1", len(got))
	}
	if got := sender.texts(); len(got) != 0 {
		t.Fatalf("text sends = %d, want 0", len(got))
	}
}

func TestSendFallsBackToTextOnUnreachableMedia(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sender := &fakeSender{}
	p := newTestPipeline(Config{RateLimit: time.Millisecond}, sender)

	p.Send(context.Background(), news.Item{GUID: "g", Title: "t", MediaURL: srv.URL, Link: "https://example.com"})

	if got := sender.photos(); len(got) != 0 {
		t.Fatalf("photo sends = %d, want 0", len(got))
	}
	if got := sender.texts(); len(got) != 1 {
		t.Fatalf("text sends = %d, want 1", len(got))
	}
}

func TestSendFallsBackToTextOnPhotoError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := &fakeSender{photoErr: errors.New("media rejected")}
	p := newTestPipeline(Config{RateLimit: time.Millisecond}, sender)

	p.Send(context.Background(), news.Item{GUID: "g", Title: "t", MediaURL: srv.URL, Link: "https://example.com"})

	if got := sender.photos(); len(got) != 1 {
		t.Fatalf("photo sends = %d, want 1", len(got))
	}
	if got := sender.texts(); len(got) != 1 {
		t.Fatalf("fallback text sends = %d, want 1", len(got))
	}
}

func TestMediaProbeFallsBackToGET(t *testing.T) {
	t.Parallel()

	var gotGet bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodGet:
			gotGet = true
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	p := newTestPipeline(Config{RateLimit: time.Millisecond}, &fakeSender{})
	if !p.mediaReachable(context.Background(), srv.URL) {
		t.Fatal("media not reachable despite GET success")
	}
	if !gotGet {
		t.Fatal("GET probe never issued after HEAD 405")
	}
}

func TestSendRetriesUpToBudget(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{textErr: errors.New("always down")}
	p := newTestPipeline(Config{RateLimit: time.Millisecond, RetryMax: 3}, sender)

	p.Send(context.Background(), news.Item{GUID: "g", Title: "t", Link: "https://example.com"})

	if got := len(sender.texts()); got != 3 {
		t.Fatalf("text attempts = %d, want 3", got)
	}
}

func TestSendRecoversMidBudget(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{failFirstN: 1}
	p := newTestPipeline(Config{RateLimit: time.Millisecond, RetryMax: 3}, sender)

	p.Send(context.Background(), news.Item{GUID: "g", Title: "t", Link: "https://example.com"})

	if got := len(sender.texts()); got != 2 {
		t.Fatalf("text attempts = %d, want 2 (one failure, one success)", got)
	}
}

func TestSendTruncatesCaptionAndText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	long := news.Item{
		GUID:     "g",
		Title:    "t",
		Link:     "https://example.com",
		MediaURL: srv.URL,
	}
	// Inflate the message well past both limits via the ticker field, which
	// the formatter does not clip.
	for len(long.Tickers) < textLimit+500 {
		long.Tickers += "LONGTICKER, "
	}

	sender := &fakeSender{photoErr: errors.New("force fallback")}
	p := newTestPipeline(Config{RateLimit: time.Millisecond}, sender)
	p.Send(context.Background(), long)

	photos := sender.photos()
	texts := sender.texts()
	if len(photos) != 1 || len(texts) != 1 {
		t.Fatalf("sends = %d photo / %d text, want 1/1", len(photos), len(texts))
	}
	if n := len([]rune(photos[0])); n > captionLimit {
		t.Errorf("caption length = %d, want <= %d", n, captionLimit)
	}
	if n := len([]rune(texts[0])); n > textLimit {
		t.Errorf("text length = %d, want <= %d", n, textLimit)
	}
}

func TestRateLimitSpacesSends(t *testing.T) {
	t.Parallel()

	const spacing = 60 * time.Millisecond
	sender := &fakeSender{}
	p := newTestPipeline(Config{Workers: 3, RateLimit: spacing}, sender)

	ctx := context.Background()
	p.Start(ctx)
	start := time.Now()
	items := []news.Item{
		{GUID: "a", Title: "a", Link: "https://example.com/a"},
		{GUID: "b", Title: "b", Link: "https://example.com/b"},
		{GUID: "c", Title: "c", Link: "https://example.com/c"},
	}
	for _, it := range items {
		if err := p.Enqueue(it); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	p.Stop(stopCtx)

	if got := len(sender.texts()); got != 3 {
		t.Fatalf("sends = %d, want 3", got)
	}
	// Even with three workers, the shared limiter forces the full batch to
	// take at least (N-1) spacings.
	if elapsed := time.Since(start); elapsed < 2*spacing {
		t.Errorf("batch finished in %v, want >= %v", elapsed, 2*spacing)
	}
}

func TestStopDrainsAfterStartContextCancel(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	p := newTestPipeline(Config{Workers: 1, RateLimit: time.Millisecond}, sender)

	startCtx, cancel := context.WithCancel(context.Background())
	p.Start(startCtx)
	// The caller's context dying must not kill the pool before Stop had a
	// chance to drain what is queued.
	cancel()

	for _, guid := range []string{"a", "b", "c"} {
		if err := p.Enqueue(news.Item{GUID: guid, Title: guid, Link: "https://example.com/" + guid}); err != nil {
			t.Fatalf("Enqueue(%s): %v", guid, err)
		}
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	p.Stop(drainCtx)

	if got := len(sender.texts()); got != 3 {
		t.Fatalf("delivered %d of 3 queued items during drain", got)
	}
}

func TestStopAbortsWhenDrainWindowCloses(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	// Spacing far wider than the drain window: at most one item fits.
	p := newTestPipeline(Config{Workers: 1, RateLimit: time.Minute}, sender)
	p.Start(context.Background())

	for _, guid := range []string{"a", "b", "c"} {
		if err := p.Enqueue(news.Item{GUID: guid, Link: "https://example.com/" + guid}); err != nil {
			t.Fatalf("Enqueue(%s): %v", guid, err)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	p.Stop(drainCtx)

	// Stop must come back shortly after the window, not a minute later.
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Stop took %v after an expired drain window", elapsed)
	}
	if got := len(sender.texts()); got > 1 {
		t.Fatalf("sends = %d, want at most the one in flight", got)
	}
}

func TestSetRateLimit(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(Config{RateLimit: time.Second}, &fakeSender{})
	p.SetRateLimit(100 * time.Millisecond)
	if got := p.limiter.Limit(); got != rate.Every(100*time.Millisecond) {
		t.Fatalf("limit = %v", got)
	}
	// Non-positive values are ignored.
	p.SetRateLimit(0)
	if got := p.limiter.Limit(); got != rate.Every(100*time.Millisecond) {
		t.Fatalf("limit changed on zero: %v", got)
	}
}

func TestEnqueueAfterStop(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(Config{RateLimit: time.Millisecond}, &fakeSender{})
	ctx := context.Background()
	p.Start(ctx)
	p.Stop(ctx)

	if err := p.Enqueue(news.Item{GUID: "g"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue after Stop = %v, want ErrStopped", err)
	}
}

func TestEnqueueFullQueue(t *testing.T) {
	t.Parallel()

	// No Start: fill the queue manually so nothing drains it.
	p := newTestPipeline(Config{QueueSize: 1, RateLimit: time.Millisecond}, &fakeSender{})
	p.mu.Lock()
	p.queue = make(chan news.Item, 1)
	p.accepting = true
	p.mu.Unlock()

	if err := p.Enqueue(news.Item{GUID: "a"}); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := p.Enqueue(news.Item{GUID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Enqueue = %v, want ErrQueueFull", err)
	}
}
