package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/pkg/app"
)

// NewRunCommand builds the `run` subcommand: launch the worker, warm the
// asset cache, and keep the worker alive until interrupted.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Start the local worker and supervise it until interrupted",
		GroupID: "worker",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := managerFrom(cmd)
			if err != nil {
				return err
			}

			a := app.New(manager.Get())
			if err := a.StartWorker(cmd.Context()); err != nil {
				return fmt.Errorf("start worker: %w", err)
			}
			// Shutdown protocol runs on every exit path from here on.
			defer a.Shutdown()

			a.PreloadAssets()
			fmt.Fprintln(cmd.OutOrStdout(), "worker ready; press Ctrl+C to stop")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)

			select {
			case s := <-sig:
				log.Info().Str("signal", s.String()).Msg("shutting down")
				return nil
			case err := <-a.Fatal():
				return fmt.Errorf("worker failed: %w", err)
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		},
	}
	return cmd
}
