package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/pkg/client"
	"github.com/deckhand/deckhand/pkg/jobs"
)

// NewStatusCommand builds the `status` subcommand: a one-shot status query
// for a job, typically one previously sent to the background.
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status <job-id>",
		Short:   "Show the current status of a deck-processing job",
		GroupID: "decks",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := managerFrom(cmd)
			if err != nil {
				return err
			}
			cfg := manager.Get()
			c := client.New(cfg.Worker.BaseURL, client.WithAPIKey(cfg.Worker.APIKey))

			resp, err := c.JobStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("fetch job status: %w", err)
			}

			status := jobs.Classify(resp.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "job %s: %s\n", args[0], status)
			if resp.Message != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", resp.Message)
			}
			if !status.Terminal() {
				fmt.Fprintln(cmd.OutOrStdout(), "  still working; check again later")
			}
			return nil
		},
	}
	return cmd
}
