package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/deckhand/deckhand/pkg/dialog"
	"github.com/deckhand/deckhand/pkg/jobs"
)

// terminalPrompter answers the poller's two questions from an interactive
// terminal. Reading blocks the poll loop, which is the intended behavior
// while a question is up.
type terminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalPrompter(in io.Reader, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: bufio.NewReader(in), out: out}
}

func (p *terminalPrompter) ContinueInBackground(h jobs.Handle) bool {
	fmt.Fprintf(p.out, "\nJob %s is taking a while (%d checks so far).\n", h.ID, h.PollCount)
	return p.askYesNo("Continue in the background? [y/N]: ")
}

func (p *terminalPrompter) CancelAfterErrors(h jobs.Handle, lastErr error) bool {
	fmt.Fprintf(p.out, "\nStatus checks for job %s keep failing (last error: %v).\n", h.ID, lastErr)
	return p.askYesNo("Stop waiting for this job? [y/N]: ")
}

func (p *terminalPrompter) askYesNo(prompt string) bool {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// consoleSink renders dialog effects as terminal output. It is the CLI
// stand-in for the desktop dialog the effects were designed for.
type consoleSink struct {
	out io.Writer
}

func (s *consoleSink) OnEffects(state dialog.State, eff dialog.Effects) {
	if !eff.Changed {
		return
	}
	switch state {
	case dialog.StateProcessing:
		fmt.Fprintln(s.out, "processing...")
	case dialog.StateComplete:
		fmt.Fprintf(s.out, "done: %s\n", eff.StatusText)
	case dialog.StateError:
		fmt.Fprintf(s.out, "failed: %s\n", eff.StatusText)
	case dialog.StateIdle:
		fmt.Fprintln(s.out, "ready")
	}
}

// pollPrinter relays poller events to the terminal and drives the dialog
// machine. The done channel closes when the job leaves this session for
// any reason.
type pollPrinter struct {
	out     io.Writer
	machine *dialog.Machine
	done    chan struct{}
	outcome jobs.Status
}

func newPollPrinter(out io.Writer, machine *dialog.Machine) *pollPrinter {
	return &pollPrinter{out: out, machine: machine, done: make(chan struct{})}
}

func (l *pollPrinter) OnStatus(h jobs.Handle) {
	fmt.Fprintf(l.out, "  [%d] %s", h.PollCount, h.Status)
	if h.Message != "" {
		fmt.Fprintf(l.out, ": %s", h.Message)
	}
	fmt.Fprintln(l.out)
}

func (l *pollPrinter) OnPollError(h jobs.Handle, err error) {
	fmt.Fprintf(l.out, "  status check failed (%d in a row): %v\n", h.ConsecutiveErrors, err)
}

func (l *pollPrinter) OnCompleted(h jobs.Handle, status jobs.Status, message string) {
	l.outcome = status
	if status == jobs.StatusComplete {
		l.machine.Apply(dialog.Event{Type: dialog.EventComplete, Message: message})
	} else {
		l.machine.Apply(dialog.Event{Type: dialog.EventFail, Message: message})
	}
	close(l.done)
}

func (l *pollPrinter) OnDetached(h jobs.Handle) {
	fmt.Fprintf(l.out, "job %s continues in the background; check it later with `%s status %s`\n",
		h.ID, cliExecutable, h.ID)
	l.machine.Apply(dialog.Event{Type: dialog.EventCancel})
	close(l.done)
}
