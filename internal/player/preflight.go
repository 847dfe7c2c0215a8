package player

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"xtplay/internal/httputil"
	"xtplay/internal/playback"
	"xtplay/internal/streamurl"
)

// Preflight checks that rawURL serves media before a player is launched.
// HLS manifests are parsed and their variants returned as quality levels,
// lowest bandwidth first. Other URLs get a one-byte ranged GET.
func Preflight(ctx context.Context, client *http.Client, rawURL, userAgent string) ([]playback.QualityLevel, error) {
	headers := httputil.Headers{}
	if userAgent != "" {
		headers["User-Agent"] = userAgent
	}
	hls := streamurl.IsHLS(rawURL)
	if !hls {
		headers["Range"] = "bytes=0-1"
	}

	resp, err := httputil.Get(ctx, client, rawURL, headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, fmt.Errorf("stream answered HTTP %d", resp.StatusCode)
	}
	if !hls && !strings.Contains(resp.Header.Get("Content-Type"), "mpegurl") {
		resp.Body.Close()
		return nil, nil
	}

	body, err := httputil.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return parseManifest(resp.Request.URL, body)
}

func parseManifest(base *url.URL, body []byte) ([]playback.QualityLevel, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("#EXTM3U")) {
		return nil, fmt.Errorf("not an HLS manifest")
	}

	pl, err := playlist.Unmarshal(body)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	mv, ok := pl.(*playlist.Multivariant)
	if !ok {
		// single rendition
		return nil, nil
	}

	variants := make([]*playlist.MultivariantVariant, len(mv.Variants))
	copy(variants, mv.Variants)
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Bandwidth < variants[j].Bandwidth
	})

	levels := make([]playback.QualityLevel, 0, len(variants))
	for i, v := range variants {
		levels = append(levels, playback.QualityLevel{
			Index:   i,
			Height:  resolutionHeight(v.Resolution),
			Bitrate: v.Bandwidth,
			URI:     resolve(base, v.URI),
		})
	}
	return levels, nil
}

// resolutionHeight returns the height of a "1280x720" resolution.
func resolutionHeight(res string) int {
	_, h, ok := strings.Cut(res, "x")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return n
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
