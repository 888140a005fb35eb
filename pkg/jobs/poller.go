// Copyright 2025 Deckhand Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package jobs tracks submitted deck-processing jobs by polling the worker's
// status endpoint on an adaptive schedule. Long jobs can be handed off to the
// background; persistent errors escalate to a user decision instead of
// looping forever.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/deckhand/deckhand/pkg/client"
)

// ErrPollActive is returned when StartPolling is called while a different
// job is already being tracked by this poller.
var ErrPollActive = errors.New("a poll is already active for another job")

// StatusFetcher is the slice of the worker client the poller needs.
type StatusFetcher interface {
	JobStatus(ctx context.Context, jobID string) (*client.StatusResponse, error)
}

// Prompter surfaces the two user decisions the poller can require. Both
// calls block the poll loop until the user answers, which intentionally
// suspends polling while the question is up.
type Prompter interface {
	// ContinueInBackground is asked once per job after BackgroundThreshold
	// polls. Returning true detaches the job.
	ContinueInBackground(h Handle) bool

	// CancelAfterErrors is asked when consecutive poll errors exceed
	// ErrorPromptThreshold. Returning true cancels the job locally.
	CancelAfterErrors(h Handle, lastErr error) bool
}

// Listener receives poller events. Callbacks run on the poll goroutine.
type Listener interface {
	// OnStatus fires after every successful non-terminal poll.
	OnStatus(h Handle)

	// OnPollError fires on a transient poll failure. Non-blocking
	// annotation only; recovery is handled by backoff.
	OnPollError(h Handle, err error)

	// OnCompleted fires exactly once when a terminal status is reached,
	// either remotely (complete/failed) or by a local cancel after
	// persistent errors.
	OnCompleted(h Handle, status Status, message string)

	// OnDetached fires when the user sends the job to the background.
	// The job's eventual outcome is discovered later via a refresh.
	OnDetached(h Handle)
}

// Config carries the polling schedule knobs. Zero values take defaults.
// The literal constants are tuning defaults, not contracts.
type Config struct {
	// BaseInterval is the initial poll cadence.
	BaseInterval time.Duration

	// MaxInterval caps both progress growth and error backoff.
	MaxInterval time.Duration

	// GrowThreshold is the poll count after which the interval starts
	// growing to reduce load on long jobs.
	GrowThreshold int

	// BackgroundThreshold is the poll count after which the user is
	// offered, once, to continue in the background.
	BackgroundThreshold int

	// BackgroundResume is the value PollCount is set back to when the
	// user declines the background offer. Lower than the threshold so
	// the long-running annotation is delayed without resetting backoff.
	BackgroundResume int

	// ErrorPromptThreshold is the consecutive-error count that triggers
	// the cancel offer.
	ErrorPromptThreshold int

	// ErrorPromptReset is the consecutive-error value restored when the
	// user declines to cancel, keeping backoff elevated while avoiding
	// an immediate re-prompt.
	ErrorPromptReset int
}

const (
	DefaultBaseInterval         = 2 * time.Second
	DefaultMaxInterval          = 10 * time.Second
	DefaultGrowThreshold        = 10
	DefaultBackgroundThreshold  = 60
	DefaultBackgroundResume     = 40
	DefaultErrorPromptThreshold = 10
	DefaultErrorPromptReset     = 4
)

func (c Config) withDefaults() Config {
	if c.BaseInterval <= 0 {
		c.BaseInterval = DefaultBaseInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.GrowThreshold <= 0 {
		c.GrowThreshold = DefaultGrowThreshold
	}
	if c.BackgroundThreshold <= 0 {
		c.BackgroundThreshold = DefaultBackgroundThreshold
	}
	if c.BackgroundResume <= 0 {
		c.BackgroundResume = DefaultBackgroundResume
	}
	if c.ErrorPromptThreshold <= 0 {
		c.ErrorPromptThreshold = DefaultErrorPromptThreshold
	}
	if c.ErrorPromptReset <= 0 {
		c.ErrorPromptReset = DefaultErrorPromptReset
	}
	return c
}

// growthInterval recomputes the cadence for a long-running healthy job:
// min(max, base * (1 + pollCount/20)), monotonic non-decreasing in pollCount.
func growthInterval(cfg Config, pollCount int) time.Duration {
	d := time.Duration(float64(cfg.BaseInterval) * (1 + float64(pollCount)/20))
	if d > cfg.MaxInterval {
		return cfg.MaxInterval
	}
	return d
}

// errorInterval recomputes the cadence after a failed poll:
// min(max, base * (1 + consecutiveErrors)). Overrides progress growth.
func errorInterval(cfg Config, consecutiveErrors int) time.Duration {
	d := cfg.BaseInterval * time.Duration(1+consecutiveErrors)
	if d > cfg.MaxInterval {
		return cfg.MaxInterval
	}
	return d
}

// Poller tracks at most one job at a time. It owns its schedule exclusively:
// polls are issued sequentially from a single goroutine, so at most one
// status request is ever outstanding and stale responses cannot overtake
// fresh ones.
type Poller struct {
	cfg      Config
	fetch    StatusFetcher
	prompter Prompter
	listener Listener

	mu     sync.Mutex
	handle *Handle
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Poller.
type Option func(*Poller)

// WithListener registers the poll event listener.
func WithListener(l Listener) Option {
	return func(p *Poller) {
		p.listener = l
	}
}

// WithPrompter registers the user-decision collaborator. Without one, the
// background offer is treated as declined and errors never escalate to a
// cancel prompt.
func WithPrompter(pr Prompter) Option {
	return func(p *Poller) {
		p.prompter = pr
	}
}

// New creates an idle Poller.
func New(fetch StatusFetcher, cfg Config, opts ...Option) *Poller {
	p := &Poller{cfg: cfg.withDefaults(), fetch: fetch}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StartPolling begins tracking jobID: an immediate status check, then a
// recurring schedule at BaseInterval. Starting the job that is already
// active is a no-op; starting a different one fails with ErrPollActive.
func (p *Poller) StartPolling(jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != nil {
		if p.handle.ID == jobID {
			return nil
		}
		return ErrPollActive
	}

	h := &Handle{
		ID:              jobID,
		Status:          StatusSubmitted,
		CurrentInterval: p.cfg.BaseInterval.Milliseconds(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.handle = h
	p.cancel = cancel
	p.done = make(chan struct{})

	log.Info().Str("job", jobID).Msg("started polling job status")
	go p.loop(ctx, h, p.done)
	return nil
}

// StopPolling aborts any in-flight request, disarms the schedule, and clears
// the active job. Always safe to call; idempotent. No completion event is
// emitted: the caller chose to walk away.
func (p *Poller) StopPolling() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.handle = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Active reports whether a job is currently being tracked.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle != nil
}

// Snapshot returns a copy of the active job handle, if any.
func (p *Poller) Snapshot() (Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		return Handle{}, false
	}
	return *p.handle, true
}

// loop drives the whole schedule for one job. Requests are issued strictly
// sequentially; the wait between them is whatever the last poll computed.
func (p *Poller) loop(ctx context.Context, h *Handle, done chan struct{}) {
	defer close(done)

	for {
		stop := p.pollOnce(ctx, h)
		if stop {
			return
		}

		p.mu.Lock()
		wait := time.Duration(h.CurrentInterval) * time.Millisecond
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// pollOnce issues one status request and applies the outcome to the handle.
// Returns true when polling must stop.
func (p *Poller) pollOnce(ctx context.Context, h *Handle) bool {
	resp, err := p.fetch.JobStatus(ctx, h.ID)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		return p.handleError(ctx, h, err)
	}
	return p.handleResponse(h, resp)
}

func (p *Poller) handleResponse(h *Handle, resp *client.StatusResponse) bool {
	status := Classify(resp.Status)

	p.mu.Lock()
	h.PollCount++
	h.ConsecutiveErrors = 0
	h.Status = status
	h.Message = resp.Message

	if status.Terminal() {
		snapshot := *h
		p.clearLocked()
		p.mu.Unlock()

		log.Info().Str("job", snapshot.ID).Str("status", string(status)).
			Int("polls", snapshot.PollCount).Msg("job reached terminal status")
		p.notifyCompleted(snapshot, status, resp.Message)
		return true
	}

	needOffer := h.PollCount > p.cfg.BackgroundThreshold && !h.BackgroundOffered
	snapshot := *h
	p.mu.Unlock()

	if needOffer {
		if p.offerBackground(snapshot) {
			p.mu.Lock()
			detached := *h
			p.clearLocked()
			p.mu.Unlock()

			log.Info().Str("job", detached.ID).Msg("job detached to background")
			p.notifyDetached(detached)
			return true
		}

		p.mu.Lock()
		h.BackgroundOffered = true
		h.PollCount = p.cfg.BackgroundResume
		p.mu.Unlock()
	}

	p.mu.Lock()
	if h.PollCount > p.cfg.GrowThreshold {
		h.CurrentInterval = growthInterval(p.cfg, h.PollCount).Milliseconds()
	} else {
		// A success below the growth threshold returns to the base cadence,
		// clearing any error backoff immediately.
		h.CurrentInterval = p.cfg.BaseInterval.Milliseconds()
	}
	snapshot = *h
	p.mu.Unlock()

	p.notifyStatus(snapshot)
	return false
}

func (p *Poller) handleError(ctx context.Context, h *Handle, err error) bool {
	p.mu.Lock()
	h.PollCount++
	h.ConsecutiveErrors++
	h.CurrentInterval = errorInterval(p.cfg, h.ConsecutiveErrors).Milliseconds()
	needPrompt := h.ConsecutiveErrors > p.cfg.ErrorPromptThreshold
	snapshot := *h
	p.mu.Unlock()

	log.Debug().Str("job", h.ID).Int("consecutive", snapshot.ConsecutiveErrors).
		Err(err).Msg("poll failed")
	p.notifyPollError(snapshot, err)

	if !needPrompt {
		return false
	}

	if p.prompter != nil && p.prompter.CancelAfterErrors(snapshot, err) {
		p.mu.Lock()
		canceled := *h
		cancel := p.cancel
		p.clearLocked()
		p.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		log.Warn().Str("job", canceled.ID).Msg("job canceled after repeated poll errors")
		p.notifyCompleted(canceled, StatusFailed, "canceled after repeated status check failures")
		return true
	}

	// Declined: keep backoff elevated but stop re-prompting every tick.
	p.mu.Lock()
	h.ConsecutiveErrors = p.cfg.ErrorPromptReset
	p.mu.Unlock()
	return false
}

// offerBackground asks the one-time background question. Without a prompter
// the job stays in the foreground.
func (p *Poller) offerBackground(h Handle) bool {
	if p.prompter == nil {
		return false
	}
	return p.prompter.ContinueInBackground(h)
}

func (p *Poller) clearLocked() {
	p.handle = nil
	p.cancel = nil
}

func (p *Poller) notifyStatus(h Handle) {
	if p.listener != nil {
		p.listener.OnStatus(h)
	}
}

func (p *Poller) notifyPollError(h Handle, err error) {
	if p.listener != nil {
		p.listener.OnPollError(h, err)
	}
}

func (p *Poller) notifyCompleted(h Handle, status Status, message string) {
	if p.listener != nil {
		p.listener.OnCompleted(h, status, message)
	}
}

func (p *Poller) notifyDetached(h Handle) {
	if p.listener != nil {
		p.listener.OnDetached(h)
	}
}
