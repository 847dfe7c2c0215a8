// Package media defines shared types for the xtplay application.
package media

import (
	"fmt"
	"strings"
)

// ContentType is the kind of catalog entry.
type ContentType int

const (
	Live ContentType = iota
	Movie
	Series
)

func (c ContentType) String() string {
	switch c {
	case Live:
		return "live"
	case Movie:
		return "movie"
	case Series:
		return "series"
	default:
		return "unknown"
	}
}

// ParseContentType accepts the names used on the command line.
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", "tv", "channel", "channels":
		return Live, nil
	case "movie", "movies", "vod":
		return Movie, nil
	case "series", "show", "shows":
		return Series, nil
	default:
		return 0, fmt.Errorf("unknown content type %q (valid: live, movie, series)", s)
	}
}

// Category groups catalog items.
type Category struct {
	ID   string
	Name string
}

// Item is one catalog entry. Live and movie items are identified by a
// stream ID; series by a series ID.
type Item struct {
	Type       ContentType
	ID         int64
	Name       string
	Icon       string
	Rating     float64
	CategoryID string
	Extension  string // movie/series container, e.g. "mp4"
}

// Key returns the identity of the item within its content type.
func (i Item) Key() string {
	return fmt.Sprintf("%s:%d", i.Type, i.ID)
}

// SeriesDetail is the season/episode tree of a series.
type SeriesDetail struct {
	Info    map[string]any
	Seasons []Season
}

// Season holds the episodes of one season. Number is 0 when the panel's
// season key is not numeric; Key keeps the original.
type Season struct {
	Number   int
	Key      string
	Episodes []Episode
}

// Episode is a playable series episode.
type Episode struct {
	ID        int64
	Number    int
	Title     string
	Extension string
	Duration  string
}

// NextEpisode returns the episode that follows (season, episode) in d,
// crossing into the next season when needed.
func (d SeriesDetail) NextEpisode(season, episode int) (Season, Episode, bool) {
	for si, s := range d.Seasons {
		if s.Number != season {
			continue
		}
		for ei, e := range s.Episodes {
			if e.Number != episode {
				continue
			}
			if ei+1 < len(s.Episodes) {
				return s, s.Episodes[ei+1], true
			}
			for _, next := range d.Seasons[si+1:] {
				if len(next.Episodes) > 0 {
					return next, next.Episodes[0], true
				}
			}
			return Season{}, Episode{}, false
		}
	}
	return Season{}, Episode{}, false
}

// Account is a saved portal login.
type Account struct {
	PlaylistName string
	Username     string
	Password     string
	PortalURL    string
	SavedAt      int64 // unix milliseconds
	LastUsed     int64
}

// Label is the display name of the account.
func (a Account) Label() string {
	if a.PlaylistName != "" {
		return a.PlaylistName
	}
	return fmt.Sprintf("%s@%s", a.Username, a.PortalURL)
}

// Favorite is a bookmarked catalog item.
type Favorite struct {
	Item    Item
	AddedAt int64
}

// Recent is an item the user opened.
type Recent struct {
	Item     Item
	PlayedAt int64
}

// Progress is a watch-progress record. Season and Episode are 0 for live and movies.
type Progress struct {
	Item         Item
	Season       int
	Episode      int
	EpisodeID    int64
	EpisodeTitle string
	Position     float64 // seconds
	Duration     float64 // seconds
	UpdatedAt    int64
}

// Percent returns playback completion in the range 0-100.
func (p Progress) Percent() float64 {
	if p.Duration <= 0 {
		return 0
	}
	pct := p.Position / p.Duration * 100
	if pct > 100 {
		return 100
	}
	return pct
}
