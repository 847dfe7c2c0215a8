package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"xtplay/internal/download"
	"xtplay/internal/failure"
	"xtplay/internal/httputil"
	"xtplay/internal/media"
	"xtplay/internal/playback"
	"xtplay/internal/player"
	"xtplay/internal/streamurl"
	"xtplay/internal/ui"
)

var playCmd = &cobra.Command{
	Use:   "play <live|movie|series> <id>",
	Short: "Play a channel, movie or series by ID",
	Args:  cobra.ExactArgs(2),
	RunE:  playRun,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <live|movie|series> <id>",
	Short: "Find the first stream URL that plays, without opening a player",
	Args:  cobra.ExactArgs(2),
	RunE:  resolveRun,
}

func parseTarget(args []string) (media.ContentType, int64, error) {
	t, err := media.ParseContentType(args[0])
	if err != nil {
		return 0, 0, err
	}
	if err := httputil.ValidateNumericID(args[1]); err != nil {
		return 0, 0, err
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, fmt.Errorf("invalid id %q", args[1])
	}
	return t, id, nil
}

// findItem looks the ID up in the full listing so the name and container
// extension are known. Unknown IDs still play with defaults.
func findItem(ctx context.Context, a *app, t media.ContentType, id int64) media.Item {
	for _, it := range a.catalog.Streams(ctx, t, "") {
		if it.ID == id {
			return it
		}
	}
	debugf("%s %d not in catalog, using defaults", t, id)
	return media.Item{Type: t, ID: id, Name: fmt.Sprintf("%s %d", t, id)}
}

func playRun(cmd *cobra.Command, args []string) error {
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
	return watch(ctx, a, findItem(ctx, a, t, id))
}

func resolveRun(cmd *cobra.Command, args []string) error {
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

	creds := a.sess.Credentials()
	candidates := streamurl.ForItem(creds, it)
	if t == media.Series {
		detail := a.catalog.SeriesInfo(ctx, id)
		if len(detail.Seasons) == 0 || len(detail.Seasons[0].Episodes) == 0 {
			return fmt.Errorf("series %d has no episodes", id)
		}
		candidates = streamurl.ForEpisode(creds, it, detail.Seasons[0].Episodes[0])
	}

	sess, err := a.engine("none").Start(ctx, playback.Request{
		Title:      it.Name,
		Candidates: candidates,
		Live:       t == media.Live,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	st := sess.Status()
	if flagJSON {
		type level struct {
			Index   int    `json:"index"`
			Label   string `json:"label"`
			Height  int    `json:"height,omitempty"`
			Bitrate int    `json:"bitrate,omitempty"`
			URI     string `json:"uri,omitempty"`
		}
		levels := make([]level, 0, len(st.Levels))
		for _, l := range st.Levels {
			levels = append(levels, level{l.Index, l.Label(), l.Height, l.Bitrate, l.URI})
		}
		return writeJSON(map[string]any{
			"title":     it.Name,
			"url":       st.URL,
			"candidate": st.Candidate,
			"levels":    levels,
		})
	}

	fmt.Println(st.URL)
	if len(st.Levels) > 0 {
		fmt.Fprintln(os.Stderr, ui.Hint("Qualities: "+strings.Join(ui.QualityLabels(st.Levels, playback.AutoQuality), ", ")))
	}
	return nil
}

// watch plays it: a single stream for live and movies, an episode loop for
// series.
func watch(ctx context.Context, a *app, it media.Item) error {
	if cfg.History {
		if err := a.store.AddRecent(ctx, a.user(), it); err != nil {
			debugf("saving recent: %v", err)
		}
	}
	if it.Type == media.Series {
		return watchSeries(ctx, a, it)
	}

	candidates := streamurl.ForItem(a.sess.Credentials(), it)
	if flagDownload != "" {
		return saveToDisk(ctx, candidates, it.Name)
	}

	var start float64
	if flagContinue && it.Type == media.Movie {
		start = resumePosition(ctx, a, it, 0, 0)
	}
	res, err := playStream(ctx, a, playback.Request{
		Title:         it.Name,
		Candidates:    candidates,
		Live:          it.Type == media.Live,
		StartPosition: start,
	})
	if err != nil {
		return err
	}
	recordProgress(ctx, a, media.Progress{Item: it, Position: res.Position, Duration: res.Duration})
	return nil
}

func watchSeries(ctx context.Context, a *app, it media.Item) error {
	detail := a.catalog.SeriesInfo(ctx, it.ID)
	season, ep, start, err := chooseEpisode(ctx, a, it, detail)
	if err != nil {
		return err
	}

	for {
		title := episodeTitle(it, season, ep)
		candidates := streamurl.ForEpisode(a.sess.Credentials(), it, ep)
		if flagDownload != "" {
			return saveToDisk(ctx, candidates, title)
		}

		res, err := playStream(ctx, a, playback.Request{
			Title:         title,
			Candidates:    candidates,
			Episodic:      true,
			StartPosition: start,
		})
		if err != nil {
			return err
		}
		recordProgress(ctx, a, media.Progress{
			Item:         it,
			Season:       season.Number,
			Episode:      ep.Number,
			EpisodeID:    ep.ID,
			EpisodeTitle: ep.Title,
			Position:     res.Position,
			Duration:     res.Duration,
		})
		if !res.NextEpisode {
			return nil
		}

		next, nextEp, ok := detail.NextEpisode(season.Number, ep.Number)
		if !ok {
			fmt.Fprintln(os.Stderr, ui.Hint("That was the last episode."))
			return nil
		}
		debugf("advancing to S%02dE%02d", next.Number, nextEp.Number)
		season, ep, start = next, nextEp, 0
	}
}

// chooseEpisode resumes the saved episode under --continue, otherwise asks
// for a season and an episode.
func chooseEpisode(ctx context.Context, a *app, it media.Item, d media.SeriesDetail) (media.Season, media.Episode, float64, error) {
	if len(d.Seasons) == 0 {
		return media.Season{}, media.Episode{}, 0, fmt.Errorf("%s has no episodes", it.Name)
	}

	if flagContinue {
		p, err := a.store.Progress(ctx, a.user(), it)
		if err == nil {
			for _, s := range d.Seasons {
				for _, e := range s.Episodes {
					if s.Number == p.Season && e.Number == p.Episode {
						debugf("resuming S%02dE%02d at %.0fs", s.Number, e.Number, p.Position)
						return s, e, p.Position, nil
					}
				}
			}
		}
	}

	season := d.Seasons[0]
	if len(d.Seasons) > 1 {
		labels := make([]string, len(d.Seasons))
		for i, s := range d.Seasons {
			labels[i] = fmt.Sprintf("Season %s (%d episodes)", s.Key, len(s.Episodes))
		}
		idx, err := ui.Select("Season", labels)
		if err != nil {
			return media.Season{}, media.Episode{}, 0, err
		}
		season = d.Seasons[idx]
	}
	if len(season.Episodes) == 0 {
		return media.Season{}, media.Episode{}, 0, fmt.Errorf("season %s has no episodes", season.Key)
	}

	labels := make([]string, len(season.Episodes))
	for i, e := range season.Episodes {
		labels[i] = fmt.Sprintf("%d. %s", e.Number, e.Title)
		if e.Duration != "" {
			labels[i] += " (" + e.Duration + ")"
		}
	}
	idx, err := ui.Select("Episode", labels)
	if err != nil {
		return media.Season{}, media.Episode{}, 0, err
	}
	return season, season.Episodes[idx], 0, nil
}

func episodeTitle(it media.Item, s media.Season, e media.Episode) string {
	title := fmt.Sprintf("%s S%02dE%02d", it.Name, s.Number, e.Number)
	if e.Title != "" {
		title += " " + e.Title
	}
	return title
}

// playStream runs one playback session to its end. Retryable failures
// offer a retry from the first candidate.
func playStream(ctx context.Context, a *app, req playback.Request) (playback.Result, error) {
	if !player.Available(cfg.Player) {
		return playback.Result{}, fmt.Errorf("player %q not found in PATH", cfg.Player)
	}

	sess, err := a.engine(cfg.Player).Start(ctx, req)
	if sess == nil {
		return playback.Result{}, err
	}
	defer sess.Close()

	for err != nil {
		if flagJSON || !failure.KindOf(err).Retryable() {
			return playback.Result{}, err
		}
		fmt.Fprintln(os.Stderr, ui.Error(err))
		again, cerr := ui.Confirm("Retry?")
		if cerr != nil || !again {
			return playback.Result{}, err
		}
		err = sess.Retry(ctx)
	}

	if flagQuality != "" {
		applyQuality(sess, flagQuality)
	}

	res := sess.Wait(ctx)
	if errors.Is(res.Err, context.Canceled) {
		return res, nil
	}
	if res.Err != nil {
		return res, res.Err
	}
	if flagJSON {
		return res, writeJSON(map[string]any{
			"title":    req.Title,
			"state":    res.State.String(),
			"position": res.Position,
			"duration": res.Duration,
		})
	}
	return res, nil
}

// applyQuality picks the level whose height matches want, or the tallest
// level below it.
func applyQuality(sess *playback.Session, want string) {
	height, err := strconv.Atoi(strings.TrimSuffix(want, "p"))
	if err != nil {
		debugf("ignoring quality %q: %v", want, err)
		return
	}
	idx := matchQuality(sess.Status().Levels, height)
	if idx == playback.AutoQuality {
		return
	}
	if err := sess.SelectQuality(idx); err != nil {
		debugf("selecting quality: %v", err)
	}
}

func matchQuality(levels []playback.QualityLevel, height int) int {
	best := playback.AutoQuality
	bestHeight := 0
	for _, l := range levels {
		if l.Height == height {
			return l.Index
		}
		if l.Height < height && l.Height > bestHeight {
			best, bestHeight = l.Index, l.Height
		}
	}
	return best
}

func resumePosition(ctx context.Context, a *app, it media.Item, season, episode int) float64 {
	p, err := a.store.Progress(ctx, a.user(), it)
	if err != nil || p.Season != season || p.Episode != episode {
		return 0
	}
	return p.Position
}

func recordProgress(ctx context.Context, a *app, p media.Progress) {
	if !cfg.History || p.Item.Type == media.Live || p.Position <= 0 {
		return
	}
	if err := a.store.SaveProgress(ctx, a.user(), p); err != nil {
		debugf("saving progress: %v", err)
	}
}

func saveToDisk(ctx context.Context, candidates []string, title string) error {
	dir := flagDownload
	if dir == defaultDownloadDir {
		var err error
		dir, err = cfg.ExpandDownloadDir()
		if err != nil {
			return fmt.Errorf("resolving download dir: %w", err)
		}
	}
	path, err := download.Download(ctx, download.Request{
		Candidates: candidates,
		Title:      title,
		OutputDir:  dir,
		UserAgent:  cfg.Transport.UserAgent,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Downloaded: %s\n", path)
	return nil
}
