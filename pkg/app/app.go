// Copyright 2025 Deckhand Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package app assembles the deckhand application: configuration, the worker
// API client, the process supervisor, the job poller, and the shared asset
// cache. Everything is constructed here and passed down explicitly; there
// are no ambient singletons.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/deckhand/deckhand/pkg/assets"
	"github.com/deckhand/deckhand/pkg/cache"
	"github.com/deckhand/deckhand/pkg/client"
	"github.com/deckhand/deckhand/pkg/config"
	"github.com/deckhand/deckhand/pkg/jobs"
	"github.com/deckhand/deckhand/pkg/supervisor"
	"github.com/deckhand/deckhand/pkg/workerpath"
)

// App is the top-level application controller. It owns the single shared
// ResourceCache instance and the worker supervisor.
type App struct {
	cfg config.Config

	Client     *client.Client
	Cache      *cache.ResourceCache
	Supervisor *supervisor.Supervisor

	lifecycle *lifecycleListener
}

// New wires an App from loaded configuration.
func New(cfg config.Config) *App {
	apiClient := client.New(cfg.Worker.BaseURL, client.WithAPIKey(cfg.Worker.APIKey))

	resourceCache := cache.New(assets.FileLoader(cfg.Assets.Dir),
		cache.WithBudget(cache.ClassStatic, cfg.Cache.StaticBudgetMB<<20),
		cache.WithBudget(cache.ClassAnimated, cfg.Cache.AnimatedBudgetMB<<20),
	)

	locator := workerpath.Locator{
		Interpreter: cfg.Worker.Interpreter,
		Script:      cfg.Worker.Script,
		WorkDir:     cfg.Worker.WorkDir,
	}

	lifecycle := newLifecycleListener()
	sup := supervisor.New(locator, apiClient, supervisorConfig(cfg.Worker),
		supervisor.WithListener(lifecycle))

	return &App{
		cfg:        cfg,
		Client:     apiClient,
		Cache:      resourceCache,
		Supervisor: sup,
		lifecycle:  lifecycle,
	}
}

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// StartWorker launches the worker and blocks until it is ready, it fails
// fatally, or ctx expires.
func (a *App) StartWorker(ctx context.Context) error {
	if err := a.Supervisor.Start(ctx); err != nil {
		return err
	}
	return a.WaitReady(ctx)
}

// WaitReady blocks until the supervisor reports ready or fatal.
func (a *App) WaitReady(ctx context.Context) error {
	select {
	case <-a.lifecycle.ready:
		return nil
	case err := <-a.lifecycle.fatal:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for worker: %w", ctx.Err())
	}
}

// Fatal exposes the supervisor's fatal channel so callers can react to a
// worker crash after startup.
func (a *App) Fatal() <-chan error {
	return a.lifecycle.fatal
}

// PreloadAssets warms the shared cache from the configured manifest, or
// the built-in default when none is set. Failures are logged, not fatal.
func (a *App) PreloadAssets() {
	manifest := assets.DefaultManifest()
	if a.cfg.Assets.Manifest != "" {
		m, err := assets.LoadManifest(a.cfg.Assets.Manifest)
		if err != nil {
			log.Warn().Err(err).Msg("asset manifest unreadable, using defaults")
		} else {
			manifest = m
		}
	}

	loaded, err := assets.Preload(a.Cache, manifest)
	if err != nil {
		log.Warn().Err(err).Msg("some assets failed to preload")
	}
	log.Info().Int("assets", loaded).Float64("hit_ratio", a.Cache.HitRatio()).
		Msg("asset cache warmed")
}

// NewPoller creates a job poller bound to the worker client. One poller
// tracks one job at a time; the dialog layer owns its lifetime.
func (a *App) NewPoller(listener jobs.Listener, prompter jobs.Prompter) *jobs.Poller {
	return jobs.New(a.Client, pollerConfig(a.cfg.Poll),
		jobs.WithListener(listener),
		jobs.WithPrompter(prompter),
	)
}

// Shutdown runs the worker shutdown protocol. Safe to call regardless of
// poller or dialog state, and more than once.
func (a *App) Shutdown() {
	a.Supervisor.Stop()
}

func supervisorConfig(w config.WorkerConfig) supervisor.Config {
	return supervisor.Config{
		HealthInterval:  time.Duration(w.HealthInterval) * time.Second,
		ProbeTimeout:    time.Duration(w.ProbeTimeout) * time.Second,
		MaxRetries:      w.MaxRetries,
		GracefulTimeout: time.Duration(w.GracefulTimeout) * time.Second,
		KillTimeout:     time.Duration(w.KillTimeout) * time.Second,
	}
}

func pollerConfig(p config.PollConfig) jobs.Config {
	return jobs.Config{
		BaseInterval:         time.Duration(p.BaseIntervalMS) * time.Millisecond,
		MaxInterval:          time.Duration(p.MaxIntervalMS) * time.Millisecond,
		GrowThreshold:        p.GrowThreshold,
		BackgroundThreshold:  p.BackgroundThreshold,
		BackgroundResume:     p.BackgroundResume,
		ErrorPromptThreshold: p.ErrorPromptThreshold,
		ErrorPromptReset:     p.ErrorPromptReset,
	}
}

// lifecycleListener bridges supervisor callbacks onto channels the app can
// select on.
type lifecycleListener struct {
	ready     chan struct{}
	fatal     chan error
	readyOnce sync.Once
}

func newLifecycleListener() *lifecycleListener {
	return &lifecycleListener{
		ready: make(chan struct{}),
		fatal: make(chan error, 1),
	}
}

func (l *lifecycleListener) OnReady() {
	l.readyOnce.Do(func() { close(l.ready) })
}

func (l *lifecycleListener) OnStateChange(from, to supervisor.State) {
	log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("worker state changed")
}

func (l *lifecycleListener) OnFatal(err error) {
	if err == nil {
		err = errors.New("worker failed")
	}
	select {
	case l.fatal <- err:
	default:
	}
}
