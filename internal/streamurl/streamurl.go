// Package streamurl builds the ordered candidate media URLs for a catalog item.
//
// Panels differ in which URL shapes they serve for live channels, so live
// items yield several candidates, most widely supported first. VOD and series
// episodes have a single URL.
package streamurl

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"xtplay/internal/httputil"
	"xtplay/internal/media"
	"xtplay/internal/xtream"
)

// Public sample media used in demo mode.
const (
	SampleLiveURL = "https://test-streams.mux.dev/x36xhzz/x36xhzz.m3u8"
	SampleVODURL  = "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4"
)

// DefaultExtension is used for VOD and series when the panel reports none
// or an unusable one.
const DefaultExtension = "mp4"

// liveFormats is the live candidate order: (path prefix, extension).
var liveFormats = []struct {
	prefix string
	ext    string
}{
	{"/live", "ts"},
	{"/live", "m3u8"},
	{"", "ts"},
	{"", "m3u8"},
}

// Candidates returns the media URLs to try for streamID, in order. For live
// content ext is ignored. An empty BaseURL yields the demo sample URL.
func Candidates(c xtream.Credentials, streamID int64, t media.ContentType, ext string) []string {
	if c.BaseURL == "" {
		if t == media.Live {
			return []string{SampleLiveURL}
		}
		return []string{SampleVODURL}
	}

	base := strings.TrimRight(c.BaseURL, "/")
	user := url.PathEscape(c.Username)
	pass := url.PathEscape(c.Password)
	id := strconv.FormatInt(streamID, 10)

	if t == media.Live {
		out := make([]string, 0, len(liveFormats))
		for _, f := range liveFormats {
			out = append(out, fmt.Sprintf("%s%s/%s/%s/%s.%s", base, f.prefix, user, pass, id, f.ext))
		}
		return out
	}

	if httputil.ValidateExtension(ext) != nil {
		ext = DefaultExtension
	}
	prefix := "movie"
	if t == media.Series {
		prefix = "series"
	}
	return []string{fmt.Sprintf("%s/%s/%s/%s/%s.%s", base, prefix, user, pass, id, ext)}
}

// ForItem returns the candidates for a live or movie item.
func ForItem(c xtream.Credentials, it media.Item) []string {
	return Candidates(c, it.ID, it.Type, it.Extension)
}

// ForEpisode returns the candidates for a series episode. The episode's
// container wins over the series default.
func ForEpisode(c xtream.Credentials, series media.Item, ep media.Episode) []string {
	ext := ep.Extension
	if ext == "" {
		ext = series.Extension
	}
	return Candidates(c, ep.ID, media.Series, ext)
}

// IsHLS reports whether u points at an HLS playlist.
func IsHLS(u string) bool {
	p := u
	if parsed, err := url.Parse(u); err == nil {
		p = parsed.Path
	}
	return strings.HasSuffix(strings.ToLower(p), ".m3u8")
}
