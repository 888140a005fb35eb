package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/pkg/app"
	"github.com/deckhand/deckhand/pkg/dialog"
	"github.com/deckhand/deckhand/pkg/jobs"
)

// NewSubmitCommand builds the `submit` subcommand: upload source files to a
// running worker and track the resulting job until it finishes or the user
// sends it to the background.
func NewSubmitCommand() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:     "submit --title <title> <file>...",
		Short:   "Create a deck from PDF or image files and wait for the result",
		GroupID: "decks",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := managerFrom(cmd)
			if err != nil {
				return err
			}
			a := app.New(manager.Get())

			if err := a.Client.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("worker is not reachable, start it with `%s run`: %w", cliExecutable, err)
			}

			machine := dialog.NewMachine(&consoleSink{out: cmd.OutOrStdout()})
			machine.Apply(dialog.Event{Type: dialog.EventSubmit})

			resp, err := a.Client.CreateDeck(cmd.Context(), title, args)
			if err != nil {
				machine.Apply(dialog.Event{Type: dialog.EventFail, Message: err.Error()})
				return fmt.Errorf("submit deck: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted job %s (%d files)\n", resp.JobID, len(resp.Files))

			printer := newPollPrinter(cmd.OutOrStdout(), machine)
			prompter := newTerminalPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			poller := a.NewPoller(printer, prompter)

			if err := poller.StartPolling(resp.JobID); err != nil {
				return err
			}
			defer poller.StopPolling()

			select {
			case <-printer.done:
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}

			if printer.outcome == jobs.StatusFailed {
				return fmt.Errorf("deck creation failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Title for the new deck")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}
