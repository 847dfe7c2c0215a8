// Package player renders streams through external media players.
// All player invocations use exec.Command with explicit argument slices,
// so titles and URLs are never interpreted by a shell.
package player

import (
	"errors"
	"net/http"
	"os/exec"
	"strings"

	"xtplay/internal/playback"
)

// ErrQualityUnsupported is returned when a player cannot switch renditions.
var ErrQualityUnsupported = errors.New("quality selection not supported by this player")

// Options are shared by every pipeline a factory creates.
type Options struct {
	Client    *http.Client
	UserAgent string
}

// New returns a pipeline factory for the named player. "none" only checks
// that the stream answers, without rendering it.
func New(name string, opts Options) playback.Factory {
	name = strings.ToLower(name)
	switch name {
	case "none":
		return func() playback.Pipeline { return &checkOnly{opts: opts} }
	case "vlc":
		return func() playback.Pipeline { return newExternal("vlc", vlcArgs, opts) }
	case "iina", "celluloid":
		return func() playback.Pipeline { return newExternal(name, genericArgs, opts) }
	default:
		return func() playback.Pipeline { return &mpv{binary: "mpv", opts: opts} }
	}
}

// Available checks if the player binary exists in PATH.
func Available(name string) bool {
	name = strings.ToLower(name)
	if name == "none" {
		return true
	}
	_, err := exec.LookPath(name)
	return err == nil
}
