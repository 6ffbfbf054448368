package cmd

import (
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/kbpulse/internal/activity"
	"github.com/Aman-CERP/kbpulse/internal/config"
	"github.com/Aman-CERP/kbpulse/internal/content"
	"github.com/Aman-CERP/kbpulse/internal/logging"
	"github.com/Aman-CERP/kbpulse/internal/search"
	"github.com/Aman-CERP/kbpulse/internal/server"
	"github.com/Aman-CERP/kbpulse/internal/stream"
	"github.com/Aman-CERP/kbpulse/internal/telemetry"
	"github.com/Aman-CERP/kbpulse/internal/watcher"
)

// app is the wired set of long-lived components behind `serve`.
type app struct {
	store       *content.FileStore
	detector    *watcher.Detector
	cache       *search.Cache
	searcher    *search.Searcher
	broadcaster *stream.Broadcaster
	activity    *activity.Service
	recorder    *telemetry.Recorder
	server      *server.Server

	unwatch func()
}

// telemetryPath returns the configured telemetry database path.
func telemetryPath(cfg *config.Config) string {
	if cfg.Telemetry.Path != "" {
		return cfg.Telemetry.Path
	}
	return filepath.Join(logging.StateDir(), "telemetry.db")
}

// newRecorder opens the telemetry recorder. Disabled telemetry still
// aggregates in memory for /api/stats but never touches disk.
func newRecorder(cfg *config.Config, logger *slog.Logger) (*telemetry.Recorder, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.FlushInterval = cfg.Telemetry.FlushIntervalDuration()

	if !cfg.Telemetry.Enabled {
		return telemetry.NewRecorder(nil, tcfg, logger), nil
	}
	store, err := telemetry.OpenSQLiteStore(telemetryPath(cfg))
	if err != nil {
		return nil, err
	}
	return telemetry.NewRecorder(store, tcfg, logger), nil
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	recorder, err := newRecorder(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.recorder = recorder

	a.store = content.NewFileStore(cfg.Content.Root, cfg.Content.Extension, content.WithLogger(logger))

	a.cache = search.NewCache(
		search.StoreBuilder(a.store, search.BuildOptions{ExcerptWords: cfg.Search.ExcerptWords}),
		search.WithTTL(cfg.Search.TTLDuration()),
		search.WithCacheLogger(logger),
		search.WithObserver(recorder),
	)
	a.searcher, err = search.NewSearcher(a.cache, cfg.Search.QueryCacheSize, cfg.Search.DefaultLimit)
	if err != nil {
		_ = recorder.Close()
		return nil, err
	}
	a.searcher.SetQueryObserver(recorder)

	a.detector = watcher.NewDetector(cfg.Content.Root, cfg.Content.Extension, watcher.Options{
		DebounceWindow: cfg.Watch.DebounceDuration(),
		PollInterval:   cfg.Watch.PollIntervalDuration(),
		IgnorePatterns: cfg.Watch.Ignore,
		ForcePolling:   cfg.Watch.ForcePolling,
	}, watcher.WithDetectorLogger(logger))

	if cfg.Search.InvalidateOnChange {
		a.unwatch = a.detector.Subscribe(watcher.HandlerFunc(func(sig watcher.Signal) {
			logger.Debug("invalidating search dataset", slog.String("slug", sig.Slug))
			a.cache.Invalidate()
			a.searcher.Purge()
		}))
	}

	a.broadcaster = stream.NewBroadcaster(
		stream.WithHeartbeatInterval(cfg.Stream.HeartbeatDuration()),
		stream.WithLogger(logger),
	)
	a.activity = activity.NewService(a.detector, a.store, a.broadcaster,
		activity.WithServiceLogger(logger),
		activity.WithBacklogSize(cfg.Stream.BacklogSize),
		activity.WithSignalBuffer(cfg.Stream.SignalBuffer),
		activity.WithMetrics(recorder),
		activity.WithGeneration(a.cache.Peek),
	)

	a.server = server.New(cfg.Server.Addr, server.Deps{
		Activity: a.activity,
		Cache:    a.cache,
		Searcher: a.searcher,
		Store:    a.store,
		Stats:    recorder,
	}, server.WithLogger(logger), server.WithWriteTimeout(cfg.Stream.WriteTimeoutDuration()))

	return a, nil
}

// Close tears the components down in reverse dependency order and flushes
// telemetry.
func (a *app) Close() error {
	a.activity.Close()
	a.broadcaster.Close()
	if a.unwatch != nil {
		a.unwatch()
	}
	return a.recorder.Close()
}
