package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/pkg/config"
)

const cliExecutable = "deckhand"

type contextKey string

// configManagerKey stores the loaded *config.Manager on the command context.
const configManagerKey contextKey = "deckhand.config.manager"

// NewCommand constructs the top-level deckhand CLI command, wiring global
// flags and configuration loading shared by every subcommand.
func NewCommand() *cobra.Command {
	var (
		configFile     string
		verbosityCount int
		verbose        bool
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Deckhand runs and talks to the local deck-processing worker",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			manager := config.NewManager()
			if err := manager.Load(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), configManagerKey, manager)

			// Configure global log level based on verbosity flags
			// If explicit --verbose is set, show debug and above
			// Else use -v count: 0=>Error, 1=>Info, 2+=>Debug
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				switch {
				case verbosityCount <= 0:
					zerolog.SetGlobalLevel(zerolog.ErrorLevel)
				case verbosityCount == 1:
					zerolog.SetGlobalLevel(zerolog.InfoLevel)
				default:
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
			}

			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging (shows service layer logs)")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "worker", Title: "Worker Commands"})
	cmd.AddGroup(&cobra.Group{ID: "decks", Title: "Deck Commands"})

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewSubmitCommand())
	cmd.AddCommand(NewStatusCommand())
	cmd.AddCommand(NewDecksCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// managerFrom extracts the config manager the root command loaded. It
// returns an error rather than panicking so subcommands stay testable
// without the root's PersistentPreRunE.
func managerFrom(cmd *cobra.Command) (*config.Manager, error) {
	manager, ok := cmd.Context().Value(configManagerKey).(*config.Manager)
	if !ok || manager == nil {
		return nil, fmt.Errorf("configuration not loaded; run through the root command")
	}
	return manager, nil
}
