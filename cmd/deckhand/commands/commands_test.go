package commands

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand/deckhand/pkg/dialog"
	"github.com/deckhand/deckhand/pkg/jobs"
)

func TestRootCommandFlags(t *testing.T) {
	cmd := NewCommand()

	for _, name := range []string{"config", "verbosity", "verbose", "worker.base_url", "log.level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag %s", name)
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := NewCommand()

	want := []string{"run", "submit", "status", "decks", "version"}
	for _, name := range want {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "missing subcommand %s", name)
	}
}

func TestManagerFromWithoutLoad(t *testing.T) {
	cmd := NewStatusCommand()
	cmd.SetContext(context.Background())

	_, err := managerFrom(cmd)
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := NewVersionCommand()
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), cliExecutable)
	assert.Contains(t, out.String(), "dev")
}

func TestTerminalPrompterAnswers(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", true},
		{"n\n", false},
		{"no\n", false},
		{"\n", false},
		{"whatever\n", false},
		{"", false}, // EOF defaults to no
	}

	for _, tc := range tests {
		var out bytes.Buffer
		p := newTerminalPrompter(strings.NewReader(tc.input), &out)
		got := p.ContinueInBackground(jobs.Handle{ID: "job-1", PollCount: 60})
		assert.Equal(t, tc.want, got, "input %q", tc.input)
		assert.Contains(t, out.String(), "job-1")
	}
}

func TestTerminalPrompterCancelMentionsError(t *testing.T) {
	var out bytes.Buffer
	p := newTerminalPrompter(strings.NewReader("y\n"), &out)

	got := p.CancelAfterErrors(jobs.Handle{ID: "job-2"}, errors.New("connection refused"))
	assert.True(t, got)
	assert.Contains(t, out.String(), "connection refused")
}

func TestConsoleSinkRendersStates(t *testing.T) {
	var out bytes.Buffer
	s := &consoleSink{out: &out}

	s.OnEffects(dialog.StateProcessing, dialog.Effects{Changed: true})
	s.OnEffects(dialog.StateComplete, dialog.Effects{Changed: true, StatusText: "10 questions"})
	s.OnEffects(dialog.StateError, dialog.Effects{Changed: false, StatusText: "ignored"})

	assert.Contains(t, out.String(), "processing")
	assert.Contains(t, out.String(), "10 questions")
	assert.NotContains(t, out.String(), "ignored")
}

func TestPollPrinterCompletionDrivesDialog(t *testing.T) {
	var out bytes.Buffer
	machine := dialog.NewMachine(&consoleSink{out: &out})
	machine.Apply(dialog.Event{Type: dialog.EventSubmit})

	printer := newPollPrinter(&out, machine)
	printer.OnStatus(jobs.Handle{ID: "job-3", PollCount: 1, Status: jobs.StatusProcessing})
	printer.OnCompleted(jobs.Handle{ID: "job-3"}, jobs.StatusComplete, "deck ready")

	select {
	case <-printer.done:
	default:
		t.Fatal("done channel not closed after completion")
	}
	assert.Equal(t, jobs.StatusComplete, printer.outcome)
	assert.Equal(t, dialog.StateComplete, machine.State())
	assert.Contains(t, out.String(), "deck ready")
}

func TestPollPrinterDetachReturnsDialogToIdle(t *testing.T) {
	var out bytes.Buffer
	machine := dialog.NewMachine(nil)
	machine.Apply(dialog.Event{Type: dialog.EventSubmit})

	printer := newPollPrinter(&out, machine)
	printer.OnDetached(jobs.Handle{ID: "job-4", PollCount: 61})

	select {
	case <-printer.done:
	default:
		t.Fatal("done channel not closed after detach")
	}
	assert.Equal(t, dialog.StateIdle, machine.State())
	assert.Contains(t, out.String(), "background")
}
