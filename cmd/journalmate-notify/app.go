package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nhle/journalmate/internal/credential"
	"github.com/nhle/journalmate/internal/delivery"
	"github.com/nhle/journalmate/internal/dispatch"
	"github.com/nhle/journalmate/internal/hooks"
	"github.com/nhle/journalmate/internal/logger"
	"github.com/nhle/journalmate/internal/metrics"
	"github.com/nhle/journalmate/internal/model"
	"github.com/nhle/journalmate/internal/push"
	"github.com/nhle/journalmate/internal/realtime"
	"github.com/nhle/journalmate/internal/scheduler"
	"github.com/nhle/journalmate/internal/store"
)

// pushTokenEnv overrides the keyring entry for the push gateway token.
const pushTokenEnv = "JOURNALMATE_PUSH_TOKEN"

// app holds the wired components shared by the subcommands.
type app struct {
	cfg        *model.AppConfig
	log        *logger.Logger
	store      *store.SQLiteStore
	metrics    *metrics.Metrics
	scheduler  *scheduler.Scheduler
	dispatcher *dispatch.Dispatcher
	hooks      *hooks.Hooks
	closers    []func() error
}

// newApp loads configuration and wires the store, scheduler, delivery
// legs, dispatcher and event hooks. reg receives the metrics; nil uses a private
// registry.
func newApp(ctx context.Context, opts *rootOptions, reg prometheus.Registerer) (*app, error) {
	cfg, err := model.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	log := logger.NewLogger("journalmate-notify", cfg.Log.Level)

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.NewMetrics(reg)

	a := &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		metrics: m,
		closers: []func() error{st.Close},
	}

	a.scheduler = scheduler.New(st,
		scheduler.WithLogger(log),
		scheduler.WithMetrics(m),
		scheduler.WithDefaultTimezone(cfg.Scheduler.DefaultTimezone),
		scheduler.WithMorningHour(cfg.Scheduler.MorningHour),
	)

	deliveryOpts := []delivery.Option{
		delivery.WithLogger(log),
		delivery.WithMetrics(m),
	}
	if cfg.Redis.Enabled {
		pub, err := realtime.NewRedisPublisher(ctx, cfg.Redis.URL, cfg.Redis.ChannelPrefix)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		deliveryOpts = append(deliveryOpts, delivery.WithLivePublisher(pub))
	}
	if cfg.Push.Enabled {
		token, err := credential.Resolve(cfg.Push.CredentialKey, pushTokenEnv)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("resolving push gateway token: %w", err)
		}
		deliveryOpts = append(deliveryOpts, delivery.WithPushSender(push.NewClient(cfg.Push.BaseURL, token)))
	}
	sender := delivery.NewService(st, deliveryOpts...)

	a.dispatcher = dispatch.New(st, sender,
		dispatch.WithLogger(log),
		dispatch.WithMetrics(m),
		dispatch.WithDefaultTimezone(cfg.Scheduler.DefaultTimezone),
		dispatch.WithInterval(secondsToDuration(cfg.Dispatcher.PollIntervalSec)),
		dispatch.WithOnSent(a.scheduler.RescheduleRecurring),
	)
	a.hooks = hooks.New(a.scheduler,
		hooks.WithLogger(log),
		hooks.WithDispatcher(a.dispatcher),
	)

	return a, nil
}

// Close releases every resource opened by newApp, newest first.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
