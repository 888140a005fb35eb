package supervisor

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProc is a controllable stand-in for the worker process.
type fakeProc struct {
	mu          sync.Mutex
	termSignals int
	kills       int
	exitErr     error
	exited      chan struct{}
	exitOnce    sync.Once

	exitOnTerm bool
	exitOnKill bool
}

func newFakeProc() *fakeProc {
	return &fakeProc{exited: make(chan struct{})}
}

func (p *fakeProc) Signal(sig syscall.Signal) error {
	p.mu.Lock()
	if sig == syscall.SIGTERM {
		p.termSignals++
	}
	exit := p.exitOnTerm
	p.mu.Unlock()
	if exit {
		p.exit(nil)
	}
	return nil
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	p.kills++
	exit := p.exitOnKill
	p.mu.Unlock()
	if exit {
		p.exit(errors.New("signal: killed"))
	}
	return nil
}

func (p *fakeProc) Wait() error {
	<-p.exited
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *fakeProc) exit(err error) {
	p.exitOnce.Do(func() {
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.exited)
	})
}

func (p *fakeProc) counts() (terms, kills int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.termSignals, p.kills
}

// fakeProber returns queued results, then a default.
type fakeProber struct {
	mu      sync.Mutex
	queued  []error
	fallbak error
	calls   int
}

func (f *fakeProber) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.queued) > 0 {
		err := f.queued[0]
		f.queued = f.queued[1:]
		return err
	}
	return f.fallbak
}

func (f *fakeProber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixedLocator struct{ cmd Command }

func (l fixedLocator) Resolve() (Command, error) { return l.cmd, nil }

type recordListener struct {
	mu          sync.Mutex
	ready       bool
	fatal       error
	transitions []State
}

func (r *recordListener) OnReady() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = true
}

func (r *recordListener) OnStateChange(from, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, to)
}

func (r *recordListener) OnFatal(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatal = err
}

func (r *recordListener) isReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *recordListener) fatalErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

func testConfig() Config {
	return Config{
		HealthInterval:  5 * time.Millisecond,
		ProbeTimeout:    100 * time.Millisecond,
		MaxRetries:      3,
		GracefulTimeout: 50 * time.Millisecond,
		KillTimeout:     50 * time.Millisecond,
	}
}

func newTestSupervisor(t *testing.T, prober Prober, proc *fakeProc, l Listener) *Supervisor {
	t.Helper()
	return New(fixedLocator{cmd: Command{Path: "worker"}}, prober, testConfig(),
		WithListener(l),
		withStartProcess(func(Command) (process, error) { return proc, nil }),
	)
}

func TestStart_BecomesRunningOnSuccessfulProbe(t *testing.T) {
	proc := newFakeProc()
	listener := &recordListener{}
	s := newTestSupervisor(t, &fakeProber{}, proc, listener)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateStarting, s.State())

	require.Eventually(t, func() bool { return s.State() == StateRunning },
		time.Second, time.Millisecond)
	require.Eventually(t, listener.isReady, time.Second, time.Millisecond)

	proc.exitOnTerm = true
	s.Stop()
}

func TestStart_IdempotentWhileStartingOrRunning(t *testing.T) {
	proc := newFakeProc()
	s := newTestSupervisor(t, &fakeProber{}, proc, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background())) // Starting: no-op

	require.Eventually(t, func() bool { return s.State() == StateRunning },
		time.Second, time.Millisecond)
	require.NoError(t, s.Start(context.Background())) // Running: no-op

	proc.exitOnTerm = true
	s.Stop()
}

func TestStart_LaunchFailureIsFatal(t *testing.T) {
	listener := &recordListener{}
	boom := errors.New("no such file")
	s := New(fixedLocator{}, &fakeProber{}, testConfig(),
		WithListener(listener),
		withStartProcess(func(Command) (process, error) { return nil, boom }),
	)

	err := s.Start(context.Background())
	require.Error(t, err)

	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, StateError, s.State())
	assert.Error(t, listener.fatalErr())
}

func TestStart_RetriesExhaustedTransitionsToError(t *testing.T) {
	proc := newFakeProc()
	listener := &recordListener{}
	prober := &fakeProber{fallbak: errors.New("connection refused")}
	s := newTestSupervisor(t, prober, proc, listener)

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return s.State() == StateError },
		time.Second, time.Millisecond)

	require.ErrorIs(t, listener.fatalErr(), ErrHealthCheckExhausted)
	assert.NotEmpty(t, s.Status().LastError)

	// No further probes after the Error transition.
	settled := prober.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, prober.callCount())

	proc.exit(nil)
}

func TestStart_ResetsRetryCountAfterError(t *testing.T) {
	proc := newFakeProc()
	prober := &fakeProber{fallbak: errors.New("refused")}
	s := newTestSupervisor(t, prober, proc, nil)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.State() == StateError },
		time.Second, time.Millisecond)
	require.Equal(t, 3, s.Status().RetryCount)
	proc.exit(nil)

	// New run from Error: retry counter starts over and probes succeed.
	proc2 := newFakeProc()
	s.startProcess = func(Command) (process, error) { return proc2, nil }
	prober.mu.Lock()
	prober.fallbak = nil
	prober.mu.Unlock()

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.State() == StateRunning },
		time.Second, time.Millisecond)
	assert.Equal(t, 0, s.Status().RetryCount)

	proc2.exitOnTerm = true
	s.Stop()
}

func TestCrashWhileRunningIsFatal(t *testing.T) {
	proc := newFakeProc()
	listener := &recordListener{}
	s := newTestSupervisor(t, &fakeProber{}, proc, listener)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.State() == StateRunning },
		time.Second, time.Millisecond)

	proc.exit(errors.New("exit status 137"))

	require.Eventually(t, func() bool { return s.State() == StateError },
		time.Second, time.Millisecond)

	var crash *CrashError
	require.ErrorAs(t, listener.fatalErr(), &crash)
	assert.Contains(t, crash.Error(), "exit status 137")
}

func TestExitWhileStartingFailsFast(t *testing.T) {
	proc := newFakeProc()
	listener := &recordListener{}
	prober := &fakeProber{fallbak: errors.New("refused")}
	s := newTestSupervisor(t, prober, proc, listener)

	require.NoError(t, s.Start(context.Background()))
	proc.exit(errors.New("exit status 1"))

	require.Eventually(t, func() bool { return s.State() == StateError },
		time.Second, time.Millisecond)

	var startErr *StartError
	require.ErrorAs(t, listener.fatalErr(), &startErr)
}

func TestStop_GracefulExitNeedsNoKill(t *testing.T) {
	proc := newFakeProc()
	proc.exitOnTerm = true
	s := newTestSupervisor(t, &fakeProber{}, proc, nil)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.State() == StateRunning },
		time.Second, time.Millisecond)

	s.Stop()

	terms, kills := proc.counts()
	assert.Equal(t, 1, terms)
	assert.Equal(t, 0, kills)
	assert.Equal(t, StateStopped, s.State())
}

func TestStop_EscalatesToKill(t *testing.T) {
	proc := newFakeProc()
	proc.exitOnKill = true // ignores SIGTERM
	s := newTestSupervisor(t, &fakeProber{}, proc, nil)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	terms, kills := proc.counts()
	assert.Equal(t, 1, terms)
	assert.Equal(t, 1, kills)
	assert.Equal(t, StateStopped, s.State())
}

func TestStop_MarksStoppedEvenIfProcessNeverExits(t *testing.T) {
	proc := newFakeProc() // ignores everything
	s := newTestSupervisor(t, &fakeProber{}, proc, nil)

	require.NoError(t, s.Start(context.Background()))

	start := time.Now()
	s.Stop()

	// Stop must return after T1+T2, not hang.
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateStopped, s.State())
	proc.exit(nil)
}

func TestStop_Idempotent(t *testing.T) {
	proc := newFakeProc()
	proc.exitOnTerm = true
	s := newTestSupervisor(t, &fakeProber{}, proc, nil)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()

	terms, kills := proc.counts()
	assert.Equal(t, 1, terms, "no duplicate termination signals")
	assert.Equal(t, 0, kills)
	assert.Equal(t, StateStopped, s.State())
}

func TestStop_OnStoppedIsNoop(t *testing.T) {
	s := New(fixedLocator{}, &fakeProber{}, testConfig())
	s.Stop()
	assert.Equal(t, StateStopped, s.State())
}

func TestExitDuringStoppingIsNotAnError(t *testing.T) {
	proc := newFakeProc()
	proc.exitOnTerm = true
	listener := &recordListener{}
	s := newTestSupervisor(t, &fakeProber{}, proc, listener)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.State() == StateRunning },
		time.Second, time.Millisecond)

	s.Stop()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, StateStopped, s.State())
	assert.NoError(t, listener.fatalErr())
}
