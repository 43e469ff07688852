package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"newswire/internal/config"
	"newswire/internal/delivery"
	"newswire/internal/news"
	"newswire/internal/translate"
	logx "newswire/pkg/logx"
)

// App wires the relay side: reconnecting subscription, optional translation
// enrichment, rate-limited Telegram delivery.
type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	client   *Client
	enricher *translate.Enricher
	pipe     *delivery.Pipeline
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	rc := cfg.Relay
	if strings.TrimSpace(rc.Endpoint) == "" {
		return nil, errors.New("relay.endpoint is required")
	}
	if strings.TrimSpace(rc.Telegram.Token) == "" {
		return nil, errors.New("relay.telegram.token is required")
	}
	if rc.Telegram.ChatID == 0 {
		return nil, errors.New("relay.telegram.chat_id is required")
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig(cfg.Logging.File),
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	base, err := config.ParseDurationOrDefault("relay.reconnect_base", rc.ReconnectBase, DefaultReconnectBase)
	if err != nil {
		return nil, err
	}
	max, err := config.ParseDurationOrDefault("relay.reconnect_max", rc.ReconnectMax, DefaultReconnectMax)
	if err != nil {
		return nil, err
	}
	rateLimit, err := config.ParseDurationField("relay.delivery.rate_limit", rc.Delivery.RateLimit)
	if err != nil {
		return nil, err
	}
	trTimeout, err := config.ParseDurationField("relay.translate.timeout", rc.Translate.Timeout)
	if err != nil {
		return nil, err
	}

	enricher, err := buildEnricher(rc.Translate, trTimeout, log.With(logx.String("comp", "translate")))
	if err != nil {
		return nil, err
	}

	sender, err := delivery.NewTelegramSender(rc.Telegram.Token, rc.Telegram.ChatID)
	if err != nil {
		return nil, fmt.Errorf("telegram sender: %w", err)
	}
	pipe := delivery.NewPipeline(delivery.Config{
		Workers:   rc.Delivery.Workers,
		QueueSize: rc.Delivery.QueueSize,
		RateLimit: rateLimit,
		RetryMax:  rc.Delivery.RetryMax,
	}, sender, log.With(logx.String("comp", "delivery")))

	a := &App{
		cfgm:     cfgm,
		logs:     logs,
		log:      log,
		enricher: enricher,
		pipe:     pipe,
	}
	a.client = NewClient(rc.Endpoint, a.handleItem, base, max, log.With(logx.String("comp", "client")))
	return a, nil
}

// buildEnricher maps the provider name onto a translator. An empty provider
// disables enrichment entirely.
func buildEnricher(tc config.TranslateConfig, timeout time.Duration, log logx.Logger) (*translate.Enricher, error) {
	switch strings.TrimSpace(tc.Provider) {
	case "":
		return nil, nil
	case "openai":
		tr, err := translate.NewOpenAI(translate.OpenAIConfig{
			APIKey:  tc.APIKey,
			Model:   tc.Model,
			BaseURL: tc.BaseURL,
			Target:  tc.Target,
		})
		if err != nil {
			return nil, err
		}
		return translate.NewEnricher(tr, timeout, log), nil
	case "workflow":
		tr, err := translate.NewWorkflow(tc.Endpoint, tc.APIKey)
		if err != nil {
			return nil, err
		}
		return translate.NewEnricher(tr, timeout, log), nil
	default:
		return nil, fmt.Errorf("relay.translate.provider: unknown provider %q", tc.Provider)
	}
}

// Run blocks until ctx is cancelled, then drains the delivery queue.
func (a *App) Run(ctx context.Context) error {
	cfgCh := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(cfgCh)
	go func() {
		for cfg := range cfgCh {
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logx.FileConfig(cfg.Logging.File),
			})
			if d, err := config.ParseDurationField("relay.delivery.rate_limit", cfg.Relay.Delivery.RateLimit); err == nil && d > 0 {
				a.pipe.SetRateLimit(d)
			}
		}
	}()
	go func() { _ = a.cfgm.Watch(ctx) }()

	a.pipe.Start(ctx)
	a.log.Info("relay started", logx.String("endpoint", a.client.endpoint))

	a.client.Run(ctx)

	// Give queued items a bounded chance to go out before exit.
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.pipe.Stop(drainCtx)

	_ = a.logs.Close()
	return nil
}

// handleItem is the per-item path: enrich, then hand off to the delivery
// queue. A full queue drops the item with a log line rather than blocking
// the websocket read loop.
func (a *App) handleItem(ctx context.Context, it news.Item) {
	it = a.enricher.Enrich(ctx, it)
	if err := a.pipe.Enqueue(it); err != nil {
		a.log.Error("item dropped", logx.String("guid", it.GUID), logx.Err(err))
	}
}
