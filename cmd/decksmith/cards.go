package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kokistudios/decksmith/internal/mtg"
	"github.com/kokistudios/decksmith/internal/ui"
)

func decksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decks",
		Short: "Browse decks on your provider",
	}
	cmd.AddCommand(decksListCmd())
	cmd.AddCommand(decksShowCmd())
	return cmd
}

func decksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List decks available from the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			p, err := a.provider()
			if err != nil {
				return err
			}

			refs, err := p.ListDecks(cmd.Context())
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				ui.EmptyState(fmt.Sprintf("No decks found on %s.", p.Name()))
				return nil
			}
			rows := make([][]string, len(refs))
			for i, r := range refs {
				rows[i] = []string{r.ID, r.Name}
			}
			ui.Table([]string{"ID", "NAME"}, rows)
			return nil
		},
	}
}

func decksShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <deck-id>",
		Short: "Print a provider deck as a decklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			p, err := a.provider()
			if err != nil {
				return err
			}

			deck, err := p.GetDeck(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ui.SectionHeader(deck.Summary())
			fmt.Print(deck.Decklist())
			return nil
		},
	}
}

func cardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cards",
		Short: "Look up cards and manage the local card cache",
	}
	cmd.AddCommand(cardsLookupCmd())
	cmd.AddCommand(cardsRefreshCmd())
	cmd.AddCommand(cardsStatsCmd())
	cmd.AddCommand(cardsClearCmd())
	return cmd
}

func cardsLookupCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:     "lookup <name>...",
		Short:   "Look up cards by exact name",
		Example: "  decksmith cards lookup \"Sol Ring\" \"Arcane Signet\"",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cards, missing, err := a.cards.ResolveCardsByName(cmd.Context(), args)
			if err != nil {
				return err
			}
			if verbose {
				for _, c := range cards {
					printCard(c)
				}
			} else if len(cards) > 0 {
				rows := make([][]string, len(cards))
				for i, c := range cards {
					rows[i] = []string{c.Name, c.ManaCost, c.TypeLine, strings.Join(c.ColorIdentity, ""), c.CommanderLegality, price(c)}
				}
				ui.Table([]string{"NAME", "COST", "TYPE", "IDENTITY", "COMMANDER", "USD"}, rows)
			}
			for _, n := range missing {
				ui.Warning(fmt.Sprintf("No card named %q", n))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verbose, "text", false, "Show oracle text")
	return cmd
}

func printCard(c mtg.Card) {
	ui.SectionHeader(c.Name)
	ui.KeyValue("Cost:     ", c.ManaCost)
	ui.KeyValue("Type:     ", c.TypeLine)
	ui.KeyValue("Identity: ", strings.Join(c.ColorIdentity, ""))
	ui.KeyValue("Commander:", c.CommanderLegality)
	ui.KeyValue("Price:    ", price(c))
	if c.GameChanger {
		ui.KeyValue("Game changer:", "yes")
	}
	fmt.Println(c.OracleText)
}

func price(c mtg.Card) string {
	if c.Price == "" {
		return "n/a"
	}
	return "$" + c.Price
}

func cardsRefreshCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Import Scryfall's oracle card bulk data into the local cache",
		Long: "Download Scryfall's oracle_cards bulk file and import it into the local card cache, so card " +
			"validation rarely needs the network. Skipped when the cache is already current unless --force is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			spin := ui.NewSpinner("Importing Scryfall bulk data...")
			res, err := a.cache.Refresh(cmd.Context(), a.scryfall, force)
			spin.Stop()
			if err != nil {
				return err
			}
			if res.Skipped {
				ui.Info(fmt.Sprintf("Card cache is current (%s)", res.UpdatedAt.Local().Format("2006-01-02 15:04")))
				return nil
			}
			ui.Success(fmt.Sprintf("Imported %d cards", res.Imported))
			ui.Detail("Bulk data:", res.UpdatedAt.Local().Format("2006-01-02 15:04"))
			ui.Detail("Cache:", a.cache.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Import even if the cache is already current")
	return cmd
}

func cardsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show card cache size and freshness",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.cache.Count(cmd.Context())
			if err != nil {
				return err
			}
			updated, err := a.cache.BulkUpdatedAt(cmd.Context())
			if err != nil {
				return err
			}
			ui.KeyValue("Cache:  ", a.cache.Path())
			ui.KeyValue("Cards:  ", fmt.Sprintf("%d", n))
			if updated.IsZero() {
				ui.KeyValue("Bulk:   ", "never imported")
			} else {
				ui.KeyValue("Bulk:   ", updated.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func cardsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the local card cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ok, err := ui.Confirm("Remove every cached card?")
			if err != nil || !ok {
				return err
			}
			if err := a.cache.Clear(cmd.Context()); err != nil {
				return err
			}
			ui.Success("Card cache cleared")
			return nil
		},
	}
}
