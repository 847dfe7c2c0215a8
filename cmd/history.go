package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xtplay/internal/store"
	"xtplay/internal/ui"
)

var flagRecent bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Resume from watch history",
	Args:  cobra.NoArgs,
	RunE:  historyRun,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget recently played items",
	Args:  cobra.NoArgs,
	RunE:  historyClearRun,
}

func init() {
	historyCmd.Flags().BoolVar(&flagRecent, "recent", false, "Show recently played items instead of progress")
	historyCmd.AddCommand(historyClearCmd)
}

func historyRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if flagJSON {
		if flagRecent {
			recents, err := a.store.Recents(ctx, a.user())
			if err != nil {
				return err
			}
			return writeJSON(recents)
		}
		records, err := a.store.ContinueWatching(ctx, a.user())
		if err != nil {
			return err
		}
		return writeJSON(records)
	}

	if err := a.login(ctx); err != nil {
		return err
	}
	if flagRecent {
		return pickRecent(ctx, a)
	}
	return pickProgress(ctx, a)
}

// pickProgress resumes a partly watched movie or series.
func pickProgress(ctx context.Context, a *app) error {
	records, err := a.store.ContinueWatching(ctx, a.user())
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No history entries found.")
		return nil
	}

	idx, err := ui.Select("Continue watching", store.FormatForDisplay(records))
	if err != nil {
		return err
	}

	selected := records[idx]
	debugf("resuming: %s at %.0fs", selected.Item.Name, selected.Position)
	flagContinue = true
	return watch(ctx, a, selected.Item)
}

func historyClearRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.ClearRecents(cmd.Context(), a.user()); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Recently played cleared.")
	return nil
}
