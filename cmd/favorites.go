package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xtplay/internal/ui"
)

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "Play one of your favorites",
	Args:    cobra.NoArgs,
	RunE:    favoritesRun,
}

var favoritesToggleCmd = &cobra.Command{
	Use:   "toggle <live|movie|series> <id>",
	Short: "Add or remove a favorite",
	Args:  cobra.ExactArgs(2),
	RunE:  favoritesToggleRun,
}

func init() {
	favoritesCmd.AddCommand(favoritesToggleCmd)
}

func favoritesRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if flagJSON {
		favs, err := a.store.Favorites(ctx, a.user())
		if err != nil {
			return err
		}
		return writeJSON(favs)
	}
	if err := a.login(ctx); err != nil {
		return err
	}
	return pickFavorite(ctx, a)
}

func pickFavorite(ctx context.Context, a *app) error {
	favs, err := a.store.Favorites(ctx, a.user())
	if err != nil {
		return fmt.Errorf("loading favorites: %w", err)
	}
	if len(favs) == 0 {
		fmt.Println("No favorites yet. Add one with `xtplay favorites toggle <type> <id>`.")
		return nil
	}

	labels := make([]string, len(favs))
	for i, f := range favs {
		labels[i] = fmt.Sprintf("[%s] %s", f.Item.Type, f.Item.Name)
	}
	idx, err := ui.Select("Favorites", labels)
	if err != nil {
		return err
	}
	return watch(ctx, a, favs[idx].Item)
}

func favoritesToggleRun(cmd *cobra.Command, args []string) error {
	t, id, err := parseTarget(args)
	if err != nil {
		return err
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if err := a.login(ctx); err != nil {
		return err
	}
	it := findItem(ctx, a, t, id)
	added, err := a.store.ToggleFavorite(ctx, a.user(), it)
	if err != nil {
		return err
	}
	if added {
		fmt.Fprintln(os.Stderr, "Added to favorites:", it.Name)
	} else {
		fmt.Fprintln(os.Stderr, "Removed from favorites:", it.Name)
	}
	return nil
}

// pickRecent replays a recently opened item.
func pickRecent(ctx context.Context, a *app) error {
	recents, err := a.store.Recents(ctx, a.user())
	if err != nil {
		return fmt.Errorf("loading recents: %w", err)
	}
	if len(recents) == 0 {
		fmt.Println("Nothing played yet.")
		return nil
	}
	labels := make([]string, len(recents))
	for i, r := range recents {
		labels[i] = fmt.Sprintf("[%s] %s", r.Item.Type, r.Item.Name)
	}
	idx, err := ui.Select("Recently played", labels)
	if err != nil {
		return err
	}
	return watch(ctx, a, recents[idx].Item)
}
