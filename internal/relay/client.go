// Package relay is the consumer side of the broadcast protocol: a
// persistent websocket subscription that survives server restarts, feeding
// every received item through enrichment into the delivery pipeline.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"newswire/internal/hub"
	"newswire/internal/news"
	logx "newswire/pkg/logx"
)

const (
	DefaultReconnectBase = 10 * time.Second
	DefaultReconnectMax  = 5 * time.Minute

	// maxBackoffShift caps the exponent: the 6th consecutive failure waits
	// no longer than the 5th (modulo the max cap).
	maxBackoffShift = 5

	handshakeTimeout = 10 * time.Second
	readWait         = 60 * time.Second
	maxFrameSize     = 1 << 20
)

// Handler consumes one received item. Failures are the handler's problem;
// the client never retries an item.
type Handler func(ctx context.Context, it news.Item)

// Client maintains the subscription. There is no terminal failure state
// short of ctx cancellation: every teardown re-enters the dial loop.
type Client struct {
	log      logx.Logger
	endpoint string
	handler  Handler

	base time.Duration
	max  time.Duration

	dialer *websocket.Dialer

	// sleep is stubbed in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewClient(endpoint string, handler Handler, base, max time.Duration, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if base <= 0 {
		base = DefaultReconnectBase
	}
	if max <= 0 {
		max = DefaultReconnectMax
	}
	c := &Client{
		log:      log,
		endpoint: endpoint,
		handler:  handler,
		base:     base,
		max:      max,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
	c.sleep = sleepCtx
	return c
}

// BackoffDelay returns the dial backoff for the given consecutive failure
// count: min(base * 2^attempt, max), with attempt capped.
func BackoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	if attempt < 0 {
		attempt = 0
	}
	d := base << uint(attempt)
	if d > max || d <= 0 {
		d = max
	}
	return d
}

// Run blocks until ctx is done.
func (c *Client) Run(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
		if err != nil {
			delay := BackoffDelay(c.base, c.max, attempt)
			c.log.Warn("connect failed; backing off",
				logx.String("endpoint", c.endpoint),
				logx.Int("attempt", attempt),
				logx.Duration("delay", delay),
				logx.Err(err))
			if !c.sleep(ctx, delay) {
				return
			}
			if attempt < maxBackoffShift {
				attempt++
			}
			continue
		}

		c.log.Info("connected", logx.String("endpoint", c.endpoint))
		attempt = 0
		c.readLoop(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.log.Info("connection lost; reconnecting", logx.Duration("delay", c.base))
		if !c.sleep(ctx, c.base) {
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	// The server pings on an interval; refresh the deadline and let gorilla
	// answer with the pong.
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})

	// Close the connection when ctx dies so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("read failed", logx.Err(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		c.handleMessage(ctx, data)
	}
}

// handleMessage dispatches one server frame. Malformed frames are logged
// and skipped; they never tear the connection down.
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		c.log.Warn("malformed server message", logx.Err(err))
		return
	}

	switch probe.Type {
	case hub.TypeUpdate:
		var msg hub.UpdateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("malformed update message", logx.Err(err))
			return
		}
		c.log.Info("update received", logx.Int("count", len(msg.Articles)))
		for _, it := range msg.Articles {
			if ctx.Err() != nil {
				return
			}
			c.handler(ctx, it)
		}

	case hub.TypeHistory:
		// Informational on connect; history is never re-delivered.
		var msg hub.HistoryMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("malformed history message", logx.Err(err))
			return
		}
		c.log.Info("history received",
			logx.Int("count", len(msg.Articles)),
			logx.Int("total", msg.Total),
			logx.Int("pages", msg.TotalPages))

	default:
		c.log.Warn("unknown server message type", logx.String("type", probe.Type))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
