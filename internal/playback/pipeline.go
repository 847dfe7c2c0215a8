// Package playback drives a media pipeline through a list of candidate URLs
// until one plays, and classifies the failure when none does.
//
// A Session moves through these states:
//
//	Probing(i) -> Playing
//	Probing(i) -> Probing(i+1) -> ... -> Exhausted -> Offline | Unreachable
//	Probing(0) -> MixedContentBlocked
//	any        -> Closed
//
// At most one pipeline exists per session: the previous one is closed before
// the next candidate is loaded.
package playback

import (
	"context"
	"fmt"
)

// EventKind identifies a pipeline event.
type EventKind int

const (
	// EventReady means the media can play. Levels carries the quality
	// levels, if the source has any.
	EventReady EventKind = iota
	// EventFatal means the pipeline cannot continue with this URL.
	EventFatal
	// EventEnded means playback reached the natural end of the media.
	EventEnded
	// EventClosed means the user closed the player.
	EventClosed
	// EventPosition reports playback progress.
	EventPosition
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventFatal:
		return "fatal"
	case EventEnded:
		return "ended"
	case EventClosed:
		return "closed"
	case EventPosition:
		return "position"
	default:
		return "unknown"
	}
}

// Event is emitted by a Pipeline.
type Event struct {
	Kind     EventKind
	Levels   []QualityLevel
	Err      error
	Position float64 // seconds
	Duration float64 // seconds, 0 when unknown
}

// QualityLevel is one selectable rendition.
type QualityLevel struct {
	Index   int
	Height  int
	Bitrate int // bits per second
	URI     string
}

// Label returns "720p" when the height is known, else "2500k", else "level N".
func (q QualityLevel) Label() string {
	switch {
	case q.Height > 0:
		return fmt.Sprintf("%dp", q.Height)
	case q.Bitrate > 0:
		return fmt.Sprintf("%dk", q.Bitrate/1000)
	default:
		return fmt.Sprintf("level %d", q.Index)
	}
}

// AutoQuality selects adaptive quality.
const AutoQuality = -1

// Source is what a pipeline is asked to play.
type Source struct {
	URL           string
	Title         string
	Live          bool
	StartPosition float64
}

// Pipeline renders one media URL.
//
// The ctx passed to Load bounds loading only: once EventReady has been sent
// the pipeline lives until Close. The returned channel is closed after the
// pipeline has stopped. Close must be safe to call more than once.
type Pipeline interface {
	Load(ctx context.Context, src Source) (<-chan Event, error)
	SelectQuality(index int) error
	Close() error
}

// Factory creates a fresh pipeline for each attempt.
type Factory func() Pipeline

// Prober checks whether the server answers at all. A nil error means the
// server is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }
