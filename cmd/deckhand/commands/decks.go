package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/pkg/client"
)

// NewDecksCommand builds the `decks` subcommand listing every stored deck.
func NewDecksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "decks",
		Short:   "List all decks known to the worker",
		GroupID: "decks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := managerFrom(cmd)
			if err != nil {
				return err
			}
			cfg := manager.Get()
			c := client.New(cfg.Worker.BaseURL, client.WithAPIKey(cfg.Worker.APIKey))

			decks, err := c.ListDecks(cmd.Context())
			if err != nil {
				return fmt.Errorf("list decks: %w", err)
			}
			if len(decks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no decks yet")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tQUESTIONS\tCREATED")
			for _, d := range decks {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.DeckID, d.Title, d.QuestionCount, d.CreatedAt)
			}
			return w.Flush()
		},
	}
	return cmd
}
