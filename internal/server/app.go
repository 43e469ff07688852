// Package server wires the ingestion side together: config, store, dedup
// window, ingestion pipeline, event bus, broadcast hub and the cycle timer.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"newswire/internal/config"
	"newswire/internal/eventbus"
	"newswire/internal/feed"
	"newswire/internal/hub"
	"newswire/internal/news"
	"newswire/internal/storage"
	logx "newswire/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store storage.Store
	pipe  *news.Pipeline
	bus   eventbus.Bus
	hub   *hub.Hub
	wsSrv *hub.Server

	cron     *cron.Cron
	interval time.Duration
	listen   string
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	srvCfg := cfg.Server
	if strings.TrimSpace(srvCfg.Listen) == "" {
		return nil, errors.New("server.listen is required")
	}
	if strings.TrimSpace(srvCfg.Storage.Path) == "" {
		return nil, errors.New("server.storage.path is required")
	}
	if strings.TrimSpace(srvCfg.Feeds.SitemapURL) == "" && len(srvCfg.Feeds.RSSURLs) == 0 {
		return nil, errors.New("at least one of server.feeds.sitemap_url or server.feeds.rss_urls is required")
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig(cfg.Logging.File),
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	interval, err := config.ParseDurationOrDefault("server.fetch_interval", srvCfg.FetchInterval, 60*time.Second)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := config.ParseDurationOrDefault("server.feeds.fetch_timeout", srvCfg.Feeds.FetchTimeout, feed.DefaultFetchTimeout)
	if err != nil {
		return nil, err
	}
	busyTimeout, err := config.ParseDurationField("server.storage.busy_timeout", srvCfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storage.Config{
		Path:        srvCfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	var sources []news.Source
	feedLog := log.With(logx.String("comp", "feed"))
	if u := strings.TrimSpace(srvCfg.Feeds.SitemapURL); u != "" {
		sources = append(sources, feed.NewSitemapSource(u, fetchTimeout, feedLog))
	}
	for _, u := range srvCfg.Feeds.RSSURLs {
		if u = strings.TrimSpace(u); u != "" {
			sources = append(sources, feed.NewRSSSource(u, fetchTimeout, feedLog))
		}
	}

	window := news.NewWindow(srvCfg.CacheSize)
	pipe := news.NewPipeline(sources, store, window, log.With(logx.String("comp", "ingest")))
	bus := eventbus.New()

	a := &App{
		cfgm:     cfgm,
		logs:     logs,
		log:      log,
		store:    store,
		pipe:     pipe,
		bus:      bus,
		interval: interval,
		listen:   srvCfg.Listen,
	}
	a.hub = hub.New(store, srvCfg.PageSize, a.requestCycle, log.With(logx.String("comp", "hub")))
	a.wsSrv = hub.NewServer(a.hub, log.With(logx.String("comp", "ws")))
	return a, nil
}

// Run blocks until ctx is cancelled, then tears everything down in order:
// cycle timer, websocket listener and sessions, store, log sinks.
func (a *App) Run(ctx context.Context) error {
	// Broadcast consumer: decouples the ingestion loop from hub sends.
	events, unsub := a.bus.Subscribe(16)
	defer unsub()
	go func() {
		for ev := range events {
			if items := ev.NewItems(); len(items) > 0 {
				a.hub.Broadcast(items)
			}
		}
	}()

	// Hot reload of logging tunables.
	cfgCh := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(cfgCh)
	go func() {
		for cfg := range cfgCh {
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logx.FileConfig(cfg.Logging.File),
			})
		}
	}()
	go func() { _ = a.cfgm.Watch(ctx) }()

	a.cron = cron.New()
	_, err := a.cron.AddFunc("@every "+a.interval.String(), func() { a.runCycle(ctx, true) })
	if err != nil {
		return fmt.Errorf("schedule ingestion: %w", err)
	}
	a.cron.Start()
	a.log.Info("ingestion scheduled", logx.Duration("interval", a.interval))

	// Prime the watermark and history before the first tick.
	a.runCycle(ctx, false)

	err = a.wsSrv.ListenAndServe(ctx, a.listen)

	stop := a.cron.Stop()
	<-stop.Done()
	if cerr := a.store.Close(); cerr != nil {
		a.log.Warn("store close failed", logx.Err(cerr))
	}
	_ = a.logs.Close()
	return err
}

// requestCycle serves the subscriber "reload" command: fire a cycle now,
// without blocking the session read loop and without stacking cycles.
func (a *App) requestCycle() {
	go a.runCycle(context.Background(), true)
}

// runCycle executes one ingestion cycle and publishes the outcome. With
// skipIfBusy set an in-flight cycle wins and this trigger is dropped.
func (a *App) runCycle(ctx context.Context, skipIfBusy bool) {
	var (
		items   []news.Item
		skipped bool
		err     error
	)
	if skipIfBusy {
		items, skipped, err = a.pipe.TryRunCycle(ctx)
		if skipped {
			a.log.Debug("cycle trigger skipped: previous cycle still running")
		}
	} else {
		items, err = a.pipe.RunCycle(ctx)
	}

	res := eventbus.CycleResult{New: len(items), Skipped: skipped, Watermark: a.pipe.Window().LatestSeen()}
	if err != nil {
		res.Err = err.Error()
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleDone, Data: res})
	if len(items) > 0 {
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeNewItems, Data: items})
	}
}
