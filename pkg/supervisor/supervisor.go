// Copyright 2025 Deckhand Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package supervisor owns the lifecycle of the local deck-processing worker:
// launch, readiness probing with bounded retries, crash detection, and a
// graceful-then-forced shutdown protocol.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Command is a resolved worker invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
}

// Locator resolves the worker executable and working directory. The
// supervisor never computes project-root heuristics itself.
type Locator interface {
	Resolve() (Command, error)
}

// Prober issues one readiness probe against the worker. Any error counts
// as a failed probe.
type Prober interface {
	Ping(ctx context.Context) error
}

// Listener receives supervisor lifecycle events. Callbacks are invoked
// outside the supervisor lock but never concurrently with each other.
type Listener interface {
	// OnReady fires once per run when the worker answers its first probe.
	OnReady()

	// OnStateChange fires on every transition.
	OnStateChange(from, to State)

	// OnFatal fires when the supervisor enters StateError.
	OnFatal(err error)
}

// Config carries the supervisor timing knobs. Zero values are replaced by
// the defaults below.
type Config struct {
	// HealthInterval is the fixed probe cadence. There is no backoff here;
	// backoff belongs to the job poller, not the readiness probe.
	HealthInterval time.Duration

	// ProbeTimeout bounds a single probe request.
	ProbeTimeout time.Duration

	// MaxRetries is the number of failed startup probes tolerated before
	// the supervisor gives up.
	MaxRetries int

	// GracefulTimeout (T1) is how long stop waits after the termination
	// signal before escalating to a kill.
	GracefulTimeout time.Duration

	// KillTimeout (T2) is how long stop waits after the kill before
	// marking the process stopped regardless.
	KillTimeout time.Duration
}

// Defaults mirror the worker's observed startup and shutdown behavior.
const (
	DefaultHealthInterval  = 10 * time.Second
	DefaultProbeTimeout    = 5 * time.Second
	DefaultMaxRetries      = 30
	DefaultGracefulTimeout = 40 * time.Second
	DefaultKillTimeout     = 3 * time.Second
)

func (c Config) withDefaults() Config {
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = DefaultGracefulTimeout
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = DefaultKillTimeout
	}
	return c
}

// Supervisor owns the worker process handle and its health-check timer.
// All state has a single writer; the mutex serializes Start/Stop with the
// probe loop and the process-exit watcher.
type Supervisor struct {
	cfg      Config
	locator  Locator
	prober   Prober
	listener Listener

	mu         sync.Mutex
	state      State
	retryCount int
	lastErr    error
	startedAt  time.Time

	proc       process
	procDone   chan struct{}
	probeStop  context.CancelFunc
	probeBusy  bool
	generation int

	startProcess func(Command) (process, error)
}

// process abstracts the launched worker for tests.
type process interface {
	Signal(sig syscall.Signal) error
	Kill() error
	Wait() error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithListener registers the lifecycle event listener.
func WithListener(l Listener) Option {
	return func(s *Supervisor) {
		s.listener = l
	}
}

// withStartProcess overrides process launching; used by tests.
func withStartProcess(f func(Command) (process, error)) Option {
	return func(s *Supervisor) {
		s.startProcess = f
	}
}

// New creates a Supervisor in StateStopped.
func New(locator Locator, prober Prober, cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:          cfg.withDefaults(),
		locator:      locator,
		prober:       prober,
		state:        StateStopped,
		startProcess: startOSProcess,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns a snapshot of the supervisor state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:      s.state,
		RetryCount: s.retryCount,
		StartedAt:  s.startedAt,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches the worker and begins readiness probing. It is idempotent
// while the worker is already Starting or Running; from Stopped or Error it
// resets the retry counter and re-enters Starting.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStarting, StateRunning:
		s.mu.Unlock()
		return nil
	case StateStopping:
		s.mu.Unlock()
		return ErrShuttingDown
	}

	cmd, err := s.locator.Resolve()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("resolve worker command: %w", err)
	}

	s.retryCount = 0
	s.lastErr = nil
	s.generation++
	gen := s.generation

	proc, err := s.startProcess(cmd)
	if err != nil {
		startErr := &StartError{Err: err}
		s.lastErr = startErr
		from := s.state
		s.state = StateError
		s.mu.Unlock()
		s.notifyStateChange(from, StateError)
		s.notifyFatal(startErr)
		return startErr
	}

	s.proc = proc
	s.procDone = make(chan struct{})
	s.startedAt = time.Now()
	from := s.state
	s.state = StateStarting

	probeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.probeStop = cancel
	done := s.procDone
	s.mu.Unlock()

	log.Info().Str("path", cmd.Path).Str("dir", cmd.Dir).Msg("worker process started")
	s.notifyStateChange(from, StateStarting)

	go s.watchExit(proc, done, gen)
	go s.probeLoop(probeCtx, gen)
	return nil
}

// watchExit waits for the process to terminate and classifies the exit by
// the state it happened in.
func (s *Supervisor) watchExit(proc process, done chan struct{}, gen int) {
	err := proc.Wait()
	close(done)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}

	switch s.state {
	case StateStopping, StateStopped:
		// Exit during shutdown is success, never an error.
		s.mu.Unlock()
		log.Debug().Msg("worker exited during shutdown")
	case StateRunning:
		reason := "exit status unknown"
		if err != nil {
			reason = err.Error()
		}
		crash := &CrashError{Reason: reason}
		s.lastErr = crash
		s.state = StateError
		s.stopProbingLocked()
		s.mu.Unlock()
		log.Error().Str("reason", reason).Msg("worker crashed")
		s.notifyStateChange(StateRunning, StateError)
		s.notifyFatal(crash)
	case StateStarting:
		// A worker that dies before answering a probe will never become
		// ready; fail fast instead of burning the retry budget.
		reason := "worker exited before becoming ready"
		if err != nil {
			reason = fmt.Sprintf("%s: %v", reason, err)
		}
		startErr := &StartError{Err: fmt.Errorf("%s", reason)}
		s.lastErr = startErr
		s.state = StateError
		s.stopProbingLocked()
		s.mu.Unlock()
		log.Error().Str("reason", reason).Msg("worker failed to start")
		s.notifyStateChange(StateStarting, StateError)
		s.notifyFatal(startErr)
	default:
		s.mu.Unlock()
	}
}

func (s *Supervisor) probeLoop(ctx context.Context, gen int) {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeOnce(ctx, gen)
		}
	}
}

// probeOnce issues a single readiness probe. A tick that fires while a
// probe is still outstanding is a no-op.
func (s *Supervisor) probeOnce(ctx context.Context, gen int) {
	s.mu.Lock()
	if s.generation != gen || s.probeBusy {
		s.mu.Unlock()
		return
	}
	s.probeBusy = true
	s.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	err := s.prober.Ping(probeCtx)
	cancel()

	s.mu.Lock()
	s.probeBusy = false
	if s.generation != gen {
		s.mu.Unlock()
		return
	}

	switch {
	case err == nil && s.state == StateStarting:
		s.state = StateRunning
		s.retryCount = 0
		s.mu.Unlock()
		log.Info().Msg("worker is ready")
		s.notifyStateChange(StateStarting, StateRunning)
		s.notifyReady()

	case err == nil:
		// Healthy while Running; nothing to do.
		s.mu.Unlock()

	case s.state == StateStarting:
		s.retryCount++
		attempt := s.retryCount
		if attempt < s.cfg.MaxRetries {
			s.mu.Unlock()
			log.Debug().Int("attempt", attempt).Int("max", s.cfg.MaxRetries).
				Msg("worker not ready yet")
			return
		}
		exhausted := fmt.Errorf("%w after %d probes: %v", ErrHealthCheckExhausted, attempt, err)
		s.lastErr = exhausted
		s.state = StateError
		s.stopProbingLocked()
		s.mu.Unlock()
		log.Error().Int("attempts", attempt).Msg("worker never became ready")
		s.notifyStateChange(StateStarting, StateError)
		s.notifyFatal(exhausted)

	case s.state == StateRunning:
		// A failed probe while running is a potential crash. The exit
		// watcher is authoritative; here we only record the symptom.
		s.mu.Unlock()
		log.Warn().Err(err).Msg("health probe failed while running")

	default:
		s.mu.Unlock()
	}
}

// Stop runs the shutdown protocol: halt probing, ask the worker to exit,
// wait up to GracefulTimeout, kill, wait up to KillTimeout, then mark
// Stopped regardless. Idempotent; shutdown must never hang the application.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateStopping {
		s.mu.Unlock()
		return
	}

	from := s.state
	s.state = StateStopping
	s.stopProbingLocked()
	proc := s.proc
	done := s.procDone
	s.mu.Unlock()

	s.notifyStateChange(from, StateStopping)

	if proc != nil && !isClosed(done) {
		log.Info().Msg("asking worker to shut down")
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			log.Warn().Err(err).Msg("failed to signal worker")
		}

		select {
		case <-done:
			log.Debug().Msg("worker exited gracefully")
		case <-time.After(s.cfg.GracefulTimeout):
			log.Warn().Dur("waited", s.cfg.GracefulTimeout).Msg("forcefully closing worker")
			if err := proc.Kill(); err != nil {
				log.Warn().Err(err).Msg("failed to kill worker")
			}
			select {
			case <-done:
			case <-time.After(s.cfg.KillTimeout):
				// Best effort only; never block application exit.
				log.Error().Msg("worker did not exit after kill; abandoning process")
			}
		}
	}

	s.mu.Lock()
	s.state = StateStopped
	s.proc = nil
	s.mu.Unlock()
	s.notifyStateChange(StateStopping, StateStopped)
	log.Info().Msg("worker stopped")
}

func (s *Supervisor) stopProbingLocked() {
	if s.probeStop != nil {
		s.probeStop()
		s.probeStop = nil
	}
}

func isClosed(ch chan struct{}) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (s *Supervisor) notifyReady() {
	if s.listener != nil {
		s.listener.OnReady()
	}
}

func (s *Supervisor) notifyStateChange(from, to State) {
	if s.listener != nil {
		s.listener.OnStateChange(from, to)
	}
}

func (s *Supervisor) notifyFatal(err error) {
	if s.listener != nil {
		s.listener.OnFatal(err)
	}
}
