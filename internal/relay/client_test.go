package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"newswire/internal/hub"
	"newswire/internal/news"
	logx "newswire/pkg/logx"
)

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	base := 10 * time.Second
	max := 5 * time.Minute

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{3, 80 * time.Second},
		{4, 160 * time.Second},
		{5, 5 * time.Minute},  // 320s clipped to the cap
		{6, 5 * time.Minute},  // exponent stops growing
		{50, 5 * time.Minute}, // and never overflows
		{-1, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := BackoffDelay(base, max, tt.attempt); got != tt.want {
			t.Errorf("BackoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDelaySmallCap(t *testing.T) {
	t.Parallel()

	// A cap below the base still wins.
	if got := BackoffDelay(10*time.Second, 5*time.Second, 0); got != 5*time.Second {
		t.Errorf("BackoffDelay = %v, want the cap", got)
	}
}

type itemCollector struct {
	mu    sync.Mutex
	items []news.Item
}

func (c *itemCollector) handle(ctx context.Context, it news.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, it)
}

func (c *itemCollector) snapshot() []news.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]news.Item(nil), c.items...)
}

func newTestClient(endpoint string, h Handler) *Client {
	c := NewClient(endpoint, h, time.Millisecond, 10*time.Millisecond, logx.Nop())
	c.sleep = func(ctx context.Context, d time.Duration) bool { return ctx.Err() == nil }
	return c
}

// wsFixture serves one connection: write the given frames, then hold until
// the client goes away.
func wsFixture(t *testing.T, frames []any) string {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			switch v := f.(type) {
			case string:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(v)); err != nil {
					return
				}
			default:
				if err := conn.WriteJSON(v); err != nil {
					return
				}
			}
		}
		// Keep the connection open until the peer drops it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientHandlesUpdateFrames(t *testing.T) {
	t.Parallel()

	update := hub.UpdateMessage{
		Type:  hub.TypeUpdate,
		Count: 2,
		Articles: []news.Item{
			{GUID: "a", Title: "first"},
			{GUID: "b", Title: "second"},
		},
	}
	history := hub.HistoryMessage{Type: hub.TypeHistory, Total: 10, TotalPages: 1}

	endpoint := wsFixture(t, []any{
		history,          // informational, must not reach the handler
		"{oops",          // malformed, skipped
		`{"type":"???"}`, // unknown, skipped
		update,
	})

	col := &itemCollector{}
	c := newTestClient(endpoint, col.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for len(col.snapshot()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("items = %+v, want 2", col.snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := col.snapshot()
	if got[0].GUID != "a" || got[1].GUID != "b" {
		t.Fatalf("items = %+v, want a then b", got)
	}
}

func TestClientReconnects(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		dials int
	)
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()

		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			// Drop the first connection immediately.
			_ = conn.Close()
			return
		}
		_ = conn.WriteJSON(hub.UpdateMessage{Type: hub.TypeUpdate, Count: 1, Articles: []news.Item{{GUID: "after-reconnect"}}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}))
	defer srv.Close()

	col := &itemCollector{}
	c := newTestClient("ws"+strings.TrimPrefix(srv.URL, "http"), col.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for len(col.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("never received an item after reconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := col.snapshot()[0].GUID; got != "after-reconnect" {
		t.Fatalf("item = %q", got)
	}
}

func TestClientStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	// Unreachable endpoint: the client lives in the dial/backoff loop.
	c := newTestClient("ws://127.0.0.1:1", func(context.Context, news.Item) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
