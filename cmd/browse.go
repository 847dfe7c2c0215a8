package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"xtplay/internal/media"
	"xtplay/internal/ui"
)

var liveCmd = &cobra.Command{
	Use:   "live [category]",
	Short: "Browse live TV channels",
	Args:  cobra.MaximumNArgs(1),
	RunE:  browseCmdRun(media.Live),
}

var moviesCmd = &cobra.Command{
	Use:     "movies [category]",
	Aliases: []string{"vod"},
	Short:   "Browse movies",
	Args:    cobra.MaximumNArgs(1),
	RunE:    browseCmdRun(media.Movie),
}

var seriesCmd = &cobra.Command{
	Use:   "series [category]",
	Short: "Browse series",
	Args:  cobra.MaximumNArgs(1),
	RunE:  browseCmdRun(media.Series),
}

func browseCmdRun(t media.ContentType) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if err := a.login(ctx); err != nil {
			return err
		}
		category := ""
		if len(args) == 1 {
			category = args[0]
		}
		return browseType(ctx, a, t, category)
	}
}

const (
	menuLive = iota
	menuMovies
	menuSeries
	menuFavorites
	menuContinue
	menuRecent
)

// browseRun is the interactive main menu.
func browseRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if err := a.login(ctx); err != nil {
		return err
	}

	counts := a.catalog.Overview(ctx)
	if flagJSON {
		return writeJSON(map[string]int{
			"live":   counts[media.Live],
			"movies": counts[media.Movie],
			"series": counts[media.Series],
		})
	}

	menu := []string{
		fmt.Sprintf("Live TV (%d categories)", counts[media.Live]),
		fmt.Sprintf("Movies (%d categories)", counts[media.Movie]),
		fmt.Sprintf("Series (%d categories)", counts[media.Series]),
		"Favorites",
		"Continue watching",
		"Recently played",
	}
	idx, err := ui.Select(a.account.Label(), menu)
	if err != nil {
		return err
	}

	switch idx {
	case menuLive:
		return browseType(ctx, a, media.Live, "")
	case menuMovies:
		return browseType(ctx, a, media.Movie, "")
	case menuSeries:
		return browseType(ctx, a, media.Series, "")
	case menuFavorites:
		return pickFavorite(ctx, a)
	case menuContinue:
		return pickProgress(ctx, a)
	default:
		return pickRecent(ctx, a)
	}
}

// browseType walks category -> item -> playback. category may be an ID or
// a name; empty asks.
func browseType(ctx context.Context, a *app, t media.ContentType, category string) error {
	categories := a.catalog.Categories(ctx, t)

	var categoryID string
	if category != "" {
		c, ok := matchCategory(categories, category)
		if !ok {
			return fmt.Errorf("no %s category matches %q", t, category)
		}
		categoryID = c.ID
	} else if !flagJSON {
		labels := make([]string, 0, len(categories)+1)
		labels = append(labels, "All")
		for _, c := range categories {
			labels = append(labels, c.Name)
		}
		idx, err := ui.Select("Category", labels)
		if err != nil {
			return err
		}
		if idx > 0 {
			categoryID = categories[idx-1].ID
		}
	}

	items := a.catalog.Streams(ctx, t, categoryID)
	if flagJSON {
		return writeJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("Nothing here.")
		return nil
	}

	idx, err := ui.Select(strings.ToUpper(t.String()[:1])+t.String()[1:], itemLabels(items))
	if err != nil {
		return err
	}
	return watch(ctx, a, items[idx])
}

func matchCategory(categories []media.Category, q string) (media.Category, bool) {
	for _, c := range categories {
		if c.ID == q {
			return c, true
		}
	}
	for _, c := range categories {
		if strings.EqualFold(c.Name, q) {
			return c, true
		}
	}
	for _, c := range categories {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(q)) {
			return c, true
		}
	}
	return media.Category{}, false
}

func itemLabels(items []media.Item) []string {
	labels := make([]string, len(items))
	for i, it := range items {
		labels[i] = it.Name
		if it.Rating > 0 {
			labels[i] += fmt.Sprintf(" (%.1f)", it.Rating)
		}
	}
	return labels
}
